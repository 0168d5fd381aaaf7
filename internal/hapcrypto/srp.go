package hapcrypto

import (
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"math/big"
)

// RFC 3526/5054 3072-bit MODP group, as HAP mandates for Pair Setup.
const srpN3072Hex = "" +
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

var (
	srpN *big.Int
	srpG = big.NewInt(5)
)

func init() {
	cleaned := make([]byte, 0, len(srpN3072Hex))
	for _, c := range []byte(srpN3072Hex) {
		if c == ' ' {
			continue
		}
		cleaned = append(cleaned, c)
	}
	n, ok := new(big.Int).SetString(string(cleaned), 16)
	if !ok {
		panic("hapcrypto: invalid SRP-3072 group constant")
	}
	srpN = n
}

var ErrSRPInvalidA = errors.New("hapcrypto: client public key A is invalid (A mod N == 0)")
var ErrSRPProofMismatch = errors.New("hapcrypto: SRP client proof (M1) does not match")

func srpHash(parts ...[]byte) []byte {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func bigHash(parts ...[]byte) *big.Int {
	return new(big.Int).SetBytes(srpHash(parts...))
}

// SRPServer runs the accessory (verifier-holding) side of a single SRP-6a
// exchange for username "Pair-Setup" and the accessory's setup code.
//
// This implements HAP's SkipZeroes_M1_M2 quirk directly: A and B are hashed
// as their raw big-endian byte representation (no zero-padding to the
// group's byte length) when computing u, M1, and M2, rather than the
// PAD(x)-to-group-size form RFC 5054 specifies for generic SRP-6a.
type SRPServer struct {
	username string
	salt     []byte
	v        *big.Int // verifier
	b        *big.Int // private
	B        *big.Int // public
	A        *big.Int // peer public, set in SetClientPublicKey
	k        []byte   // session key K = H(S)
}

// NewSRPServer derives a verifier for username/password, generates a fresh
// 16-byte salt and ephemeral private key, and computes B.
func NewSRPServer(username, password string) (*SRPServer, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	x := computeX(salt, username, password)
	v := new(big.Int).Exp(srpG, x, srpN)

	s := &SRPServer{username: username, salt: salt, v: v}
	if err := s.generateB(); err != nil {
		return nil, err
	}
	return s, nil
}

func computeX(salt []byte, username, password string) *big.Int {
	inner := srpHash([]byte(username), []byte(":"), []byte(password))
	return bigHash(salt, inner)
}

// k = H(N | PAD(g)) per RFC 5054; g's padding is to N's byte length since g
// itself (not A/B) is unaffected by the HAP skip-zero quirk.
func multiplierK() *big.Int {
	nBytes := srpN.Bytes()
	gBytes := padTo(srpG.Bytes(), len(nBytes))
	return bigHash(nBytes, gBytes)
}

func padTo(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}

func (s *SRPServer) generateB() error {
	bBytes := make([]byte, 32)
	if _, err := rand.Read(bBytes); err != nil {
		return err
	}
	s.b = new(big.Int).SetBytes(bBytes)

	k := multiplierK()
	gb := new(big.Int).Exp(srpG, s.b, srpN)
	kv := new(big.Int).Mul(k, s.v)
	kv.Mod(kv, srpN)
	B := new(big.Int).Add(kv, gb)
	B.Mod(B, srpN)
	s.B = B
	return nil
}

// Salt returns the 16-byte salt to send in M2.
func (s *SRPServer) Salt() []byte { return s.salt }

// PublicKeyBytes returns B's big-endian byte representation to send in M2.
func (s *SRPServer) PublicKeyBytes() []byte { return s.B.Bytes() }

// SetClientPublicKey validates and stores the client's A (from M3), and
// derives the shared session key K.
func (s *SRPServer) SetClientPublicKey(aBytes []byte) error {
	A := new(big.Int).SetBytes(aBytes)
	if new(big.Int).Mod(A, srpN).Sign() == 0 {
		return ErrSRPInvalidA
	}
	s.A = A

	u := bigHash(A.Bytes(), s.B.Bytes()) // HAP: unpadded A, B
	vu := new(big.Int).Exp(s.v, u, srpN)
	base := new(big.Int).Mul(A, vu)
	base.Mod(base, srpN)
	S := new(big.Int).Exp(base, s.b, srpN)
	s.k = srpHash(S.Bytes())
	return nil
}

// expectedM1 computes the client proof HAP expects, using the unpadded A/B
// skip-zero quirk.
func (s *SRPServer) expectedM1() []byte {
	return srpHash(s.A.Bytes(), s.B.Bytes(), s.k)
}

// VerifyClientProof checks the client's M1 (from M3) against the derived
// session state. It must be called after SetClientPublicKey.
func (s *SRPServer) VerifyClientProof(clientM1 []byte) error {
	expected := s.expectedM1()
	if !constantTimeEqual(expected, clientM1) {
		return ErrSRPProofMismatch
	}
	return nil
}

// ServerProof computes M2 to return in M4, over the client's verified M1.
func (s *SRPServer) ServerProof(clientM1 []byte) []byte {
	return srpHash(s.A.Bytes(), clientM1, s.k)
}

// SharedKey returns K = H(S), used as the SRP-K input to HKDF for the
// Pair-Setup-Encrypt-* and Pair-Setup-*-Sign-* derivations.
func (s *SRPServer) SharedKey() []byte { return s.k }

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
