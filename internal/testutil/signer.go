package testutil

import (
	"crypto/ed25519"
	"encoding/hex"

	"github.com/roach88/msggate/internal/wire"
)

// Signer is an Ed25519 key pair derived from a one-byte seed, so every test
// run uses the same keys.
type Signer struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// NewSigner derives a key pair from a 32-byte seed filled with b.
func NewSigner(b byte) Signer {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return Signer{Public: priv.Public().(ed25519.PublicKey), private: priv}
}

// Sign signs digest.
func (s Signer) Sign(digest wire.Digest) wire.Signature {
	return wire.Signature{
		Signer:    append([]byte(nil), s.Public...),
		Signature: ed25519.Sign(s.private, digest.Bytes()),
	}
}

// PublicHex returns the hex-encoded public key, as written in gateway config.
func (s Signer) PublicHex() string {
	return hex.EncodeToString(s.Public)
}

// PublicKeys returns the public keys of signers.
func PublicKeys(signers ...Signer) [][]byte {
	keys := make([][]byte, len(signers))
	for i, s := range signers {
		keys[i] = append([]byte(nil), s.Public...)
	}
	return keys
}
