// Package confidential wraps trade attributes (direction, leverage, stop
// price) so their plaintext is never stored by the engine. The concrete
// cryptographic scheme is a pluggable backend; the engine only relies on the
// capability contract: seal-with-proof, capability grants, public reveal,
// and verify-a-claimed-plaintext. Decryption is never synchronous — the
// owner reveals off-engine and the engine verifies the claim against the
// still-sealed record.
package confidential

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrInvalidProof means the validity proof does not match the
	// ciphertext and caller. Permanent for that input.
	ErrInvalidProof = errors.New("confidential: invalid proof")

	// ErrUnauthorized means the principal holds no grant for the handle.
	// Permanent for that caller.
	ErrUnauthorized = errors.New("confidential: unauthorized")

	// ErrRevealMismatch means a claimed plaintext does not match the
	// sealed value.
	ErrRevealMismatch = errors.New("confidential: revealed value does not match handle")

	// ErrNotPublic means the handle has not been transitioned to the
	// publicly decryptable state.
	ErrNotPublic = errors.New("confidential: handle not publicly revealed")

	// ErrUnknownHandle means the handle id is not registered.
	ErrUnknownHandle = errors.New("confidential: unknown handle")
)

// Handle is an opaque reference to a sealed value. It is safe to copy and
// to persist; it carries no plaintext.
type Handle struct {
	ID         uuid.UUID
	Commitment [32]byte
}

// IsZero reports whether the handle is unset.
func (h Handle) IsZero() bool {
	return h.ID == uuid.Nil
}

// Backend is the capability contract the engine depends on.
type Backend interface {
	// Seal ingests a value with its validity proof and returns a handle.
	// The plaintext is discarded after the commitment is computed.
	Seal(value int64, caller uuid.UUID, proof []byte) (Handle, error)

	// Grant authorizes a principal to later decrypt the handle off-engine.
	Grant(h Handle, principal uuid.UUID) error

	// CanDecrypt reports whether a principal holds a grant (or the handle
	// is public).
	CanDecrypt(h Handle, principal uuid.UUID) bool

	// RevealPublic transitions the handle to a state decryptable by anyone
	// holding the ciphertext.
	RevealPublic(h Handle) error

	// Verify checks a caller-supplied plaintext claim against the sealed
	// record. Requires a prior RevealPublic.
	Verify(h Handle, claimed int64) error
}

// Prove computes the validity proof a caller must attach when sealing:
// HMAC-SHA256 keyed by the caller identity over the little-endian value.
// Production backends replace this with a real zero-knowledge proof; the
// reference backend only checks that proof, caller and value are consistent.
func Prove(value int64, caller uuid.UUID) []byte {
	mac := hmac.New(sha256.New, caller[:])
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(value))
	mac.Write(buf[:])
	return mac.Sum(nil)
}

// record is the backend-side state for one handle.
type record struct {
	commitment [32]byte
	nonce      [16]byte
	grants     map[uuid.UUID]bool
	public     bool
}

// MemoryBackend is the in-process reference implementation: a salted
// SHA-256 commitment per handle, grant sets, and a public flag. It never
// stores the sealed plaintext.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*record
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[uuid.UUID]*record),
	}
}

func (b *MemoryBackend) Seal(value int64, caller uuid.UUID, proof []byte) (Handle, error) {
	expected := Prove(value, caller)
	if !hmac.Equal(proof, expected) {
		return Handle{}, ErrInvalidProof
	}

	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return Handle{}, err
	}

	commitment := commit(nonce, value)

	id := uuid.New()
	b.mu.Lock()
	b.records[id] = &record{
		commitment: commitment,
		nonce:      nonce,
		grants:     map[uuid.UUID]bool{caller: true},
	}
	b.mu.Unlock()

	return Handle{ID: id, Commitment: commitment}, nil
}

func (b *MemoryBackend) Grant(h Handle, principal uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[h.ID]
	if !ok {
		return ErrUnknownHandle
	}
	rec.grants[principal] = true
	return nil
}

func (b *MemoryBackend) CanDecrypt(h Handle, principal uuid.UUID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.records[h.ID]
	if !ok {
		return false
	}
	return rec.public || rec.grants[principal]
}

func (b *MemoryBackend) RevealPublic(h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[h.ID]
	if !ok {
		return ErrUnknownHandle
	}
	rec.public = true
	return nil
}

func (b *MemoryBackend) Verify(h Handle, claimed int64) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.records[h.ID]
	if !ok {
		return ErrUnknownHandle
	}
	if !rec.public {
		return ErrNotPublic
	}
	if commit(rec.nonce, claimed) != rec.commitment {
		return ErrRevealMismatch
	}
	return nil
}

func commit(nonce [16]byte, value int64) [32]byte {
	hasher := sha256.New()
	hasher.Write(nonce[:])
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(value))
	hasher.Write(buf[:])

	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out
}
