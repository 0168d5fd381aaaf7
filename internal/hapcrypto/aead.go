package hapcrypto

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrAuthFailed is returned when AEAD decryption/verification fails.
var ErrAuthFailed = errors.New("hapcrypto: AEAD authentication failed")

// Nonce builds the 96-bit ChaCha20-Poly1305 nonce HAP uses everywhere:
// four zero bytes followed by a little-endian 64-bit counter.
func Nonce(counter uint64) []byte {
	n := make([]byte, chacha20poly1305.NonceSize)
	binary.LittleEndian.PutUint64(n[4:], counter)
	return n
}

// FixedNonce builds the fixed (non-counter) 96-bit nonces used during Pair
// Setup/Verify, e.g. "PS-Msg05", "PV-Msg02": four zero bytes followed by the
// literal 8-byte tag.
func FixedNonce(tag string) []byte {
	if len(tag) != 8 {
		panic("hapcrypto: fixed nonce tag must be exactly 8 bytes")
	}
	n := make([]byte, chacha20poly1305.NonceSize)
	copy(n[4:], tag)
	return n
}

// Seal encrypts plaintext with key under nonce and aad, returning
// ciphertext||16-byte tag.
func Seal(key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open decrypts and verifies ciphertext||tag under key, nonce, aad.
func Open(key, nonce, aad, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	out, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return out, nil
}
