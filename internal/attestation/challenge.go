// Package attestation implements Ed25519-signed hardware and execution
// attestations, BLAKE3 checkpoint chains, and the challenge/nonce
// protocol that resists replay across verifiers and time windows. Ported
// from molt-attestation's challenge.rs and verification.rs.
package attestation

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// Challenge is a verifier-issued freshness token a node must incorporate
// into a signed attestation.
type Challenge struct {
	Nonce      [32]byte
	IssuedAt   time.Time
	VerifierID string
}

// NewChallenge creates a Challenge with a nonce drawn from the OS CSPRNG.
func NewChallenge(verifierID string, now time.Time) (Challenge, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return Challenge{}, err
	}
	return Challenge{Nonce: nonce, IssuedAt: now, VerifierID: verifierID}, nil
}

// AgeSecs returns the challenge's age in seconds relative to now,
// clamping negative durations (future-dated clocks) to zero.
func (c Challenge) AgeSecs(now time.Time) int64 {
	age := now.Sub(c.IssuedAt)
	if age < 0 {
		return 0
	}
	return int64(age / time.Second)
}

// IsExpired reports whether the challenge's age exceeds maxAgeSecs.
func (c Challenge) IsExpired(now time.Time, maxAgeSecs int64) bool {
	return c.AgeSecs(now) > maxAgeSecs
}

func (c Challenge) NonceHex() string { return hex.EncodeToString(c.Nonce[:]) }

// ToSigningBytes renders the canonical byte serialization of the
// challenge for inclusion in a signed attestation's pre-image: nonce,
// then the issuance timestamp as a little-endian i64 of unix seconds,
// then the verifier id bytes.
func (c Challenge) ToSigningBytes() []byte {
	buf := make([]byte, 0, 32+8+len(c.VerifierID))
	buf = append(buf, c.Nonce[:]...)
	var tsBytes [8]byte
	binary.LittleEndian.PutUint64(tsBytes[:], uint64(c.IssuedAt.Unix()))
	buf = append(buf, tsBytes[:]...)
	buf = append(buf, []byte(c.VerifierID)...)
	return buf
}

// Config controls challenge freshness and nonce cache sizing.
type Config struct {
	MaxAgeSecs      int64
	NonceCacheSize  int
}

// DefaultConfig returns the documented defaults (300s / 10,000 entries).
func DefaultConfig() Config {
	return Config{MaxAgeSecs: 300, NonceCacheSize: 10_000}
}
