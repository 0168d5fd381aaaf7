package pairing

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/srg/hapd/internal/hapcrypto"
	"github.com/srg/hapd/internal/tlv8"
)

func TestVerifyEngineFullHandshake(t *testing.T) {
	_, accessoryLTSK, err := hapcrypto.GenerateLongTermKeypair()
	require.NoError(t, err)

	controllerLTPK, controllerLTSK, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	controllerID := "controller-1"

	store := newTestStore(t)
	require.NoError(t, store.Add(controllerID, controllerLTPK, true))

	engine := NewVerifyEngine("AA:BB:CC:DD:EE:FF", accessoryLTSK, store, nil)

	clientPub, clientPriv, err := hapcrypto.GenerateX25519Keypair()
	require.NoError(t, err)

	m2 := tlv8.Decode(engine.Step(tlv8.Encode(tlv8.Items{}.
		AddByte(TLVState, byte(M1)).
		Add(TLVPublicKey, clientPub[:]))))
	require.Equal(t, byte(M2), mustByte(t, m2, TLVState))
	_, hasErr := m2.First(TLVError)
	require.False(t, hasErr)

	accPubItem, ok := m2.First(TLVPublicKey)
	require.True(t, ok)
	var accPub [32]byte
	copy(accPub[:], accPubItem.Value)

	z, err := hapcrypto.X25519SharedSecret(clientPriv, accPub)
	require.NoError(t, err)
	sessionKey := hapcrypto.PairVerifyEncryptKey(z)

	encItem, ok := m2.First(TLVEncryptedData)
	require.True(t, ok)
	plain, err := hapcrypto.Open(sessionKey, hapcrypto.FixedNonce("PV-Msg02"), nil, encItem.Value)
	require.NoError(t, err)
	sub := tlv8.Decode(plain)
	accID, ok := sub.GetString(TLVIdentifier)
	require.True(t, ok)
	require.Equal(t, "AA:BB:CC:DD:EE:FF", accID)

	// Verify accessory's signature is well-formed, even though the
	// accessory's LTPK isn't exercised as a lookup key by VerifyEngine
	// itself (the controller already knows it out of band).
	accSigItem, ok := sub.First(TLVSignature)
	require.True(t, ok)
	require.NotEmpty(t, accSigItem.Value)

	signInfo := append(append(append([]byte{}, clientPub[:]...), []byte(controllerID)...), accPub[:]...)
	sig := ed25519.Sign(controllerLTSK, signInfo)

	ctrlSub := tlv8.Encode(tlv8.Items{}.
		AddString(TLVIdentifier, controllerID).
		Add(TLVSignature, sig))
	sealed, err := hapcrypto.Seal(sessionKey, hapcrypto.FixedNonce("PV-Msg03"), nil, ctrlSub)
	require.NoError(t, err)

	m4 := tlv8.Decode(engine.Step(tlv8.Encode(tlv8.Items{}.
		AddByte(TLVState, byte(M3)).
		Add(TLVEncryptedData, sealed))))
	require.Equal(t, byte(M4), mustByte(t, m4, TLVState))
	_, hasErr = m4.First(TLVError)
	require.False(t, hasErr)

	result := engine.Result()
	require.NotNil(t, result)
	require.Equal(t, controllerID, result.ControllerID)
	require.Len(t, result.ReadKey, 32)
	require.Len(t, result.WriteKey, 32)
	require.NotEqual(t, result.ReadKey, result.WriteKey)
}

func TestVerifyEngineUnknownControllerFails(t *testing.T) {
	_, accessoryLTSK, err := hapcrypto.GenerateLongTermKeypair()
	require.NoError(t, err)
	store := newTestStore(t)
	engine := NewVerifyEngine("AA:BB:CC:DD:EE:FF", accessoryLTSK, store, nil)

	clientPub, clientPriv, err := hapcrypto.GenerateX25519Keypair()
	require.NoError(t, err)

	m2 := tlv8.Decode(engine.Step(tlv8.Encode(tlv8.Items{}.
		AddByte(TLVState, byte(M1)).
		Add(TLVPublicKey, clientPub[:]))))
	accPubItem, _ := m2.First(TLVPublicKey)
	var accPub [32]byte
	copy(accPub[:], accPubItem.Value)

	z, err := hapcrypto.X25519SharedSecret(clientPriv, accPub)
	require.NoError(t, err)
	sessionKey := hapcrypto.PairVerifyEncryptKey(z)

	_, strangerSK, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sig := ed25519.Sign(strangerSK, append(append(append([]byte{}, clientPub[:]...), []byte("ghost")...), accPub[:]...))
	ctrlSub := tlv8.Encode(tlv8.Items{}.
		AddString(TLVIdentifier, "ghost").
		Add(TLVSignature, sig))
	sealed, err := hapcrypto.Seal(sessionKey, hapcrypto.FixedNonce("PV-Msg03"), nil, ctrlSub)
	require.NoError(t, err)

	m4 := tlv8.Decode(engine.Step(tlv8.Encode(tlv8.Items{}.
		AddByte(TLVState, byte(M3)).
		Add(TLVEncryptedData, sealed))))
	errItem, ok := m4.First(TLVError)
	require.True(t, ok)
	require.Equal(t, byte(ErrAuthentication), errItem.Value[0])
	require.Nil(t, engine.Result())
}
