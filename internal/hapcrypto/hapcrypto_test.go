package hapcrypto_test

import (
	"testing"

	"github.com/srg/hapd/internal/hapcrypto"
	"github.com/stretchr/testify/require"
)

func TestFixedNonceLength(t *testing.T) {
	n := hapcrypto.FixedNonce("PS-Msg05")
	require.Len(t, n, 12)
	require.Equal(t, []byte{0, 0, 0, 0, 'P', 'S', '-', 'M', 's', 'g', '0', '5'}, n)
}

func TestCounterNonceMonotonic(t *testing.T) {
	n0 := hapcrypto.Nonce(0)
	n1 := hapcrypto.Nonce(1)
	require.NotEqual(t, n0, n1)
	require.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, n0)
	require.Equal(t, []byte{0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0}, n1)
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	nonce := hapcrypto.Nonce(5)
	aad := []byte("aad")
	plaintext := []byte("hello secure session")

	sealed, err := hapcrypto.Seal(key, nonce, aad, plaintext)
	require.NoError(t, err)

	opened, err := hapcrypto.Open(key, nonce, aad, sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := make([]byte, 32)
	nonce := hapcrypto.Nonce(0)
	sealed, err := hapcrypto.Seal(key, nonce, nil, []byte("data"))
	require.NoError(t, err)
	sealed[0] ^= 0xFF

	_, err = hapcrypto.Open(key, nonce, nil, sealed)
	require.ErrorIs(t, err, hapcrypto.ErrAuthFailed)
}

func TestSRPServerRejectsInvalidClientPublicKey(t *testing.T) {
	server, err := hapcrypto.NewSRPServer("Pair-Setup", "31144328")
	require.NoError(t, err)
	require.Len(t, server.Salt(), 16)
	require.NotEmpty(t, server.PublicKeyBytes())

	// A real client derivation is exercised end-to-end in the pairing
	// package tests; here we only check the server-side API shape holds
	// together for a clearly-invalid A.
	err = server.SetClientPublicKey([]byte{0})
	require.ErrorIs(t, err, hapcrypto.ErrSRPInvalidA)
}

func TestX25519SharedSecretSymmetric(t *testing.T) {
	aPub, aPriv, err := hapcrypto.GenerateX25519Keypair()
	require.NoError(t, err)
	bPub, bPriv, err := hapcrypto.GenerateX25519Keypair()
	require.NoError(t, err)

	zA, err := hapcrypto.X25519SharedSecret(aPriv, bPub)
	require.NoError(t, err)
	zB, err := hapcrypto.X25519SharedSecret(bPriv, aPub)
	require.NoError(t, err)

	require.Equal(t, zA, zB)
}
