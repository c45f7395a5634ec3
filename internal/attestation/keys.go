package attestation

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// KeyPair holds an Ed25519 signing key. Secret material is never
// serialized in debug output — String and GoString redact the private
// key entirely, so no error message or log line can leak it via
// Stringer/debug formatting.
type KeyPair struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// GenerateKeyPair creates a new Ed25519 key pair using the OS CSPRNG
// directly, never a userspace-seeded PRNG.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Public: pub, private: priv}, nil
}

// Sign produces a detached Ed25519 signature over msg.
func (k KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

func (k KeyPair) String() string {
	return fmt.Sprintf("KeyPair{public: %x, private: [redacted]}", k.Public)
}

func (k KeyPair) GoString() string { return k.String() }

// Verify checks an Ed25519 signature against a public key and message.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	return ed25519.Verify(pub, msg, sig)
}
