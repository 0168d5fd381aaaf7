package hapcrypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"golang.org/x/crypto/curve25519"
)

// GenerateLongTermKeypair creates a new Ed25519 long-term key pair (LTSK,
// LTPK), used once per accessory lifetime and persisted thereafter.
func GenerateLongTermKeypair() (ltpk ed25519.PublicKey, ltsk ed25519.PrivateKey, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	return pub, priv, err
}

// GenerateX25519Keypair creates an ephemeral Curve25519 key pair for a
// single Pair Verify exchange.
func GenerateX25519Keypair() (public, private [32]byte, err error) {
	if _, err = rand.Read(private[:]); err != nil {
		return public, private, err
	}
	pub, err := curve25519.X25519(private[:], curve25519.Basepoint)
	if err != nil {
		return public, private, err
	}
	copy(public[:], pub)
	return public, private, nil
}

// X25519SharedSecret computes the ECDH shared secret Z = X25519(priv, peerPub).
func X25519SharedSecret(priv, peerPub [32]byte) ([]byte, error) {
	return curve25519.X25519(priv[:], peerPub[:])
}
