package pairing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/srg/hapd/internal/hapcrypto"
	"github.com/srg/hapd/internal/storage"
	"github.com/srg/hapd/internal/tlv8"
)

// testSRPGroup mirrors hapcrypto's RFC 3526 Group 15 constant. Duplicated
// here because the production SRP client role is deliberately unexported
// (spec.md excludes the accessory-as-controller/initiator role from
// production code); this is a test-only SRP-6a client used purely to drive
// SetupEngine's accessory side end-to-end.
const testSRPGroupHex = "" +
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC7" +
	"4020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14" +
	"374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B" +
	"7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163" +
	"BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208" +
	"552BB9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E" +
	"36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF69" +
	"55817183995497CEA956AE515D2261898FA051015728E5A8AAAC42DAD33170D" +
	"04507A33A85521ABDF1CBA64ECFB850458DBEF0A8AEA71575D060C7DB3970F8" +
	"5A6E1E4C7ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6BF12FFA0" +
	"6D98A0864D87602733EC86A64521F2B18177B200CBBE117577A615D6C770988" +
	"C0BAD946E208E24FA074E5AB3143DB5BFCE0FD108E4B82D120A93AD2CAFFFFFF" +
	"FFFFFFFFFF"

var testSRPN, _ = new(big.Int).SetString(testSRPGroupHex, 16)
var testSRPG = big.NewInt(5)

func testHash(parts ...[]byte) []byte {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func testBigHash(parts ...[]byte) *big.Int {
	return new(big.Int).SetBytes(testHash(parts...))
}

// testSRPClient drives the controller side of SRP-6a against a SetupEngine,
// given the salt/B the engine returned in M2.
type testSRPClient struct {
	username, password string
	a, A                *big.Int
	k                   []byte
}

func newTestSRPClient(t *testing.T, username, password string) *testSRPClient {
	aBytes := make([]byte, 32)
	_, err := rand.Read(aBytes)
	require.NoError(t, err)
	a := new(big.Int).SetBytes(aBytes)
	A := new(big.Int).Exp(testSRPG, a, testSRPN)
	return &testSRPClient{username: username, password: password, a: a, A: A}
}

func (c *testSRPClient) computeProof(salt []byte, bBytes []byte) []byte {
	B := new(big.Int).SetBytes(bBytes)
	x := testBigHash(salt, testHash([]byte(c.username), []byte(":"), []byte(c.password)))
	u := testBigHash(c.A.Bytes(), B.Bytes())

	nBytes := testSRPN.Bytes()
	gPadded := make([]byte, len(nBytes))
	gb := testSRPG.Bytes()
	copy(gPadded[len(gPadded)-len(gb):], gb)
	k1 := testBigHash(nBytes, gPadded)

	gx := new(big.Int).Exp(testSRPG, x, testSRPN)
	kgx := new(big.Int).Mul(k1, gx)
	kgx.Mod(kgx, testSRPN)
	base := new(big.Int).Sub(B, kgx)
	base.Mod(base, testSRPN)
	exp := new(big.Int).Add(c.a, new(big.Int).Mul(u, x))
	S := new(big.Int).Exp(base, exp, testSRPN)

	c.k = testHash(S.Bytes())
	return testHash(c.A.Bytes(), B.Bytes(), c.k)
}

func newTestStore(t *testing.T) *Store {
	st, err := NewStore(newMemStorage())
	require.NoError(t, err)
	return st
}

// memStorage is a minimal in-memory platform.Storage for tests.
type memStorage struct{ m map[string][]byte }

func newMemStorage() *memStorage { return &memStorage{m: map[string][]byte{}} }

func (s *memStorage) Set(key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	s.m[key] = v
	return nil
}
func (s *memStorage) Get(key string) ([]byte, bool, error) {
	v, ok := s.m[key]
	return v, ok, nil
}
func (s *memStorage) Remove(key string) error {
	delete(s.m, key)
	return nil
}
func (s *memStorage) Has(key string) (bool, error) {
	_, ok := s.m[key]
	return ok, nil
}

func TestSetupEngineFullHandshake(t *testing.T) {
	accessoryLTPK, accessoryLTSK, err := hapcrypto.GenerateLongTermKeypair()
	require.NoError(t, err)
	store := newTestStore(t)

	engine := NewSetupEngine("AA:BB:CC:DD:EE:FF", accessoryLTPK, accessoryLTSK, "31144328", store, nil, nil)

	m2 := tlv8.Decode(engine.Step(tlv8.Encode(tlv8.Items{}.AddByte(TLVState, byte(M1)))))
	require.Equal(t, byte(M2), mustByte(t, m2, TLVState))
	salt, ok := m2.First(TLVSalt)
	require.True(t, ok)
	bItem, ok := m2.First(TLVPublicKey)
	require.True(t, ok)

	client := newTestSRPClient(t, "Pair-Setup", "31144328")
	clientM1 := client.computeProof(salt.Value, bItem.Value)

	m4 := tlv8.Decode(engine.Step(tlv8.Encode(tlv8.Items{}.
		AddByte(TLVState, byte(M3)).
		Add(TLVPublicKey, client.A.Bytes()).
		Add(TLVProof, clientM1))))
	require.Equal(t, byte(M4), mustByte(t, m4, TLVState))
	_, hasError := m4.First(TLVError)
	require.False(t, hasError)

	controllerLTPK, controllerLTSK, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	controllerID := "controller-1"

	signSalt := hapcrypto.PairSetupControllerSignSalt(client.k)
	info := append(append(append([]byte{}, signSalt...), []byte(controllerID)...), controllerLTPK...)
	sig := ed25519.Sign(controllerLTSK, info)

	sub := tlv8.Encode(tlv8.Items{}.
		AddString(TLVIdentifier, controllerID).
		Add(TLVPublicKey, controllerLTPK).
		Add(TLVSignature, sig))
	encKey := hapcrypto.PairSetupEncryptKey(client.k)
	sealed, err := hapcrypto.Seal(encKey, hapcrypto.FixedNonce("PS-Msg05"), nil, sub)
	require.NoError(t, err)

	m6 := tlv8.Decode(engine.Step(tlv8.Encode(tlv8.Items{}.
		AddByte(TLVState, byte(M5)).
		Add(TLVEncryptedData, sealed))))
	require.Equal(t, byte(M6), mustByte(t, m6, TLVState))
	_, hasError = m6.First(TLVError)
	require.False(t, hasError)

	encData, ok := m6.First(TLVEncryptedData)
	require.True(t, ok)
	plain, err := hapcrypto.Open(encKey, hapcrypto.FixedNonce("PS-Msg06"), nil, encData.Value)
	require.NoError(t, err)
	respSub := tlv8.Decode(plain)
	accID, ok := respSub.GetString(TLVIdentifier)
	require.True(t, ok)
	require.Equal(t, "AA:BB:CC:DD:EE:FF", accID)

	accLTPKItem, ok := respSub.First(TLVPublicKey)
	require.True(t, ok)
	require.Equal(t, ed25519.PublicKey(accLTPKItem.Value), accessoryLTPK)

	accSigItem, ok := respSub.First(TLVSignature)
	require.True(t, ok)
	accessorySignSalt := hapcrypto.PairSetupAccessorySignSalt(client.k)
	accInfo := append(append(append([]byte{}, accessorySignSalt...), []byte(accID)...), accLTPKItem.Value...)
	require.True(t, ed25519.Verify(accessoryLTPK, accInfo, accSigItem.Value))

	rec, ok := store.Get(controllerID)
	require.True(t, ok)
	require.True(t, rec.Admin, "first pairing must be admin")
	require.Equal(t, ed25519.PublicKey(controllerLTPK), rec.LTPK)

	// Persistence round-trips through internal/storage.
	ids, err := storage.LoadPairingList(store.backing)
	require.NoError(t, err)
	require.Equal(t, []string{controllerID}, ids)
}

func TestSetupEngineWrongPasswordResetsToM1(t *testing.T) {
	accessoryLTPK, accessoryLTSK, err := hapcrypto.GenerateLongTermKeypair()
	require.NoError(t, err)
	store := newTestStore(t)
	engine := NewSetupEngine("AA:BB:CC:DD:EE:FF", accessoryLTPK, accessoryLTSK, "31144328", store, nil, nil)

	m2 := tlv8.Decode(engine.Step(tlv8.Encode(tlv8.Items{}.AddByte(TLVState, byte(M1)))))
	salt, _ := m2.First(TLVSalt)
	bItem, _ := m2.First(TLVPublicKey)

	client := newTestSRPClient(t, "Pair-Setup", "00000000")
	clientM1 := client.computeProof(salt.Value, bItem.Value)

	m4 := tlv8.Decode(engine.Step(tlv8.Encode(tlv8.Items{}.
		AddByte(TLVState, byte(M3)).
		Add(TLVPublicKey, client.A.Bytes()).
		Add(TLVProof, clientM1))))
	errItem, ok := m4.First(TLVError)
	require.True(t, ok)
	require.Equal(t, byte(ErrAuthentication), errItem.Value[0])
	require.Equal(t, byte(M1), mustByte(t, m4, TLVState))
}

func mustByte(t *testing.T, items tlv8.Items, typ byte) byte {
	v, ok := items.GetByte(typ)
	require.True(t, ok)
	return v
}
