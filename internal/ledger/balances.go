// Package ledger tracks settlement-asset balances at the wallet boundary.
// The wallet/signing collaborator guarantees atomic debit/credit semantics;
// this book mirrors those balances so every venue transaction can fail fast
// with zero partial effects when a transfer cannot be covered.
package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInsufficientBalance rejects a debit that the account cannot cover.
// Validation error: safe to retry after depositing.
var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

// SubAccount distinguishes spendable funds from order escrow.
type SubAccount uint8

const (
	SubAccountAvailable SubAccount = iota
	SubAccountEscrow
)

func (s SubAccount) String() string {
	switch s {
	case SubAccountAvailable:
		return "available"
	case SubAccountEscrow:
		return "escrow"
	default:
		return "unknown"
	}
}

// AccountKey is the in-memory key for balance tracking.
type AccountKey struct {
	Trader uuid.UUID
	Sub    SubAccount
}

// AccountPath returns the string representation for storage/logging.
func (k AccountKey) AccountPath() string {
	return fmt.Sprintf("trader:%s:%s", k.Trader.String(), k.Sub)
}

// BalanceBook maintains in-memory trader balances. Amounts are 1e6
// fixed-point USD. Not thread-safe: mutated only under the venue core's
// transaction lock.
type BalanceBook struct {
	balances map[AccountKey]int64
}

func NewBalanceBook() *BalanceBook {
	return &BalanceBook{
		balances: make(map[AccountKey]int64),
	}
}

// Available returns the trader's spendable balance.
func (b *BalanceBook) Available(trader uuid.UUID) int64 {
	return b.balances[AccountKey{Trader: trader, Sub: SubAccountAvailable}]
}

// Escrowed returns the trader's order-escrowed balance.
func (b *BalanceBook) Escrowed(trader uuid.UUID) int64 {
	return b.balances[AccountKey{Trader: trader, Sub: SubAccountEscrow}]
}

// Deposit credits available balance (wallet layer confirmed the transfer in).
func (b *BalanceBook) Deposit(trader uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive, got %d", amount)
	}
	b.balances[AccountKey{Trader: trader, Sub: SubAccountAvailable}] += amount
	return nil
}

// Withdraw debits available balance (wallet layer pays out).
func (b *BalanceBook) Withdraw(trader uuid.UUID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("withdrawal amount must be positive, got %d", amount)
	}
	key := AccountKey{Trader: trader, Sub: SubAccountAvailable}
	if b.balances[key] < amount {
		return fmt.Errorf("%w: have=%d, need=%d", ErrInsufficientBalance, b.balances[key], amount)
	}
	b.balances[key] -= amount
	return nil
}

// Escrow moves amount from available to escrow at order submission.
func (b *BalanceBook) Escrow(trader uuid.UUID, amount int64) error {
	availKey := AccountKey{Trader: trader, Sub: SubAccountAvailable}
	if b.balances[availKey] < amount {
		return fmt.Errorf("%w: have=%d, need=%d", ErrInsufficientBalance, b.balances[availKey], amount)
	}
	b.balances[availKey] -= amount
	b.balances[AccountKey{Trader: trader, Sub: SubAccountEscrow}] += amount
	return nil
}

// ReleaseEscrow refunds escrow back to available (cancel/expire).
func (b *BalanceBook) ReleaseEscrow(trader uuid.UUID, amount int64) error {
	escrowKey := AccountKey{Trader: trader, Sub: SubAccountEscrow}
	if b.balances[escrowKey] < amount {
		return fmt.Errorf("%w: escrow have=%d, need=%d", ErrInsufficientBalance, b.balances[escrowKey], amount)
	}
	b.balances[escrowKey] -= amount
	b.balances[AccountKey{Trader: trader, Sub: SubAccountAvailable}] += amount
	return nil
}

// CaptureEscrow consumes escrow on order execution: the funds leave the
// trader's book and become position collateral held by the engine.
func (b *BalanceBook) CaptureEscrow(trader uuid.UUID, amount int64) error {
	escrowKey := AccountKey{Trader: trader, Sub: SubAccountEscrow}
	if b.balances[escrowKey] < amount {
		return fmt.Errorf("%w: escrow have=%d, need=%d", ErrInsufficientBalance, b.balances[escrowKey], amount)
	}
	b.balances[escrowKey] -= amount
	return nil
}

// Payout credits settlement proceeds (close returns, liquidation rewards,
// pool share redemptions) to available balance.
func (b *BalanceBook) Payout(trader uuid.UUID, amount int64) {
	if amount <= 0 {
		return
	}
	b.balances[AccountKey{Trader: trader, Sub: SubAccountAvailable}] += amount
}

// ValidateNonNegative checks both sub-accounts of a trader.
func (b *BalanceBook) ValidateNonNegative(trader uuid.UUID) error {
	for _, sub := range []SubAccount{SubAccountAvailable, SubAccountEscrow} {
		key := AccountKey{Trader: trader, Sub: sub}
		if b.balances[key] < 0 {
			return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), b.balances[key])
		}
	}
	return nil
}

// Snapshot returns a copy of all balances (for state hashing).
func (b *BalanceBook) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(b.balances))
	for k, v := range b.balances {
		snapshot[k] = v
	}
	return snapshot
}
