package ingestion

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrBadAttestation rejects a pull-path bundle whose validity proof does not
// check out. Permanent for that payload.
var ErrBadAttestation = errors.New("ingestion: invalid attestation proof")

// AttestationProof computes the reference validity proof for a pull-path
// bundle: HMAC-SHA256 keyed by the pair's registered feed id over the
// canonical bundle encoding, hex-encoded. Production deployments swap in the
// feed vendor's signature scheme; the shape of the check stays the same.
func AttestationProof(feedID string, u *AttestedUpdate) string {
	mac := hmac.New(sha256.New, []byte(feedID))
	fmt.Fprintf(mac, "%s|%d|%d|%d",
		u.Pair, u.Attested.Mantissa, u.Attested.Exponent, u.Attested.Timestamp.UnixMicro())
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyAttestation checks a bundle's proof against the feed id the venue
// has registered for the pair. The bundle must name that feed id itself, so
// a proof minted for one feed cannot vouch for another pair's price.
func VerifyAttestation(registeredFeedID string, u *AttestedUpdate) error {
	if u.FeedID != registeredFeedID {
		return fmt.Errorf("%w: bundle feed %q, pair registered with %q", ErrBadAttestation, u.FeedID, registeredFeedID)
	}
	expected := AttestationProof(registeredFeedID, u)
	if !hmac.Equal([]byte(u.Proof), []byte(expected)) {
		return fmt.Errorf("%w: pair %s", ErrBadAttestation, u.Pair)
	}
	return nil
}
