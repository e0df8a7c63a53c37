package projection

import (
	"context"
	"database/sql"

	"PerpVenue/internal/event"
)

func applyPriceUpdated(ctx context.Context, tx *sql.Tx, seq int64, evt *event.PriceUpdated) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.price_history (pair, price, source, sequence, timestamp_us)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (pair, sequence) DO NOTHING
	`, evt.Pair, evt.Price, string(evt.Source), seq, evt.Timestamp.UnixMicro())
	return err
}

func applyPositionOpened(ctx context.Context, tx *sql.Tx, seq int64, evt *event.PositionOpened) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.positions
			(position_id, trader, pair, collateral, size, leverage,
			 entry_price, opening_fee, liquidation_price, status, opened_at_us, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'open', $10, $11)
		ON CONFLICT (position_id) DO NOTHING
	`, evt.PositionID, evt.Trader, evt.Pair, evt.Collateral, evt.Size, evt.Leverage,
		evt.EntryPrice, evt.OpeningFee, evt.LiquidationPrice, evt.Timestamp.UnixMicro(), seq)
	return err
}

func applyReconciled(ctx context.Context, tx *sql.Tx, evt *event.OpenInterestReconciled) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE projections.positions
		SET direction = $2, reconciled = TRUE
		WHERE position_id = $1
	`, evt.PositionID, evt.Direction)
	return err
}

func applyPositionClosed(ctx context.Context, tx *sql.Tx, evt *event.PositionClosed) error {
	status := "closed"
	if evt.Reason == event.CloseReasonStopLoss {
		status = "stopped"
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE projections.positions
		SET status = $2, direction = $3, exit_price = $4, pnl = $5,
		    closing_fee = $6, amount_returned = $7, closed_at_us = $8
		WHERE position_id = $1
	`, evt.PositionID, status, evt.Direction, evt.ExitPrice, evt.PnL,
		evt.ClosingFee, evt.AmountReturned, evt.Timestamp.UnixMicro())
	return err
}

func applyPositionLiquidated(ctx context.Context, tx *sql.Tx, evt *event.PositionLiquidated) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE projections.positions
		SET status = 'liquidated', exit_price = $2, liquidator = $3,
		    liquidation_reward = $4, closed_at_us = $5
		WHERE position_id = $1
	`, evt.PositionID, evt.Price, evt.Liquidator, evt.Reward, evt.Timestamp.UnixMicro())
	return err
}
