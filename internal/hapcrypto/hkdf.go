// Package hapcrypto implements the cryptographic primitives Pair Setup,
// Pair Verify, and the secure session need: HKDF-SHA-512 key derivation,
// ChaCha20-Poly1305 AEAD framing, and the SRP-6a/3072/SHA-512 exchange with
// the HAP-specific zero-padding quirk.
package hapcrypto

import (
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/hkdf"
)

// The exact salt/info byte lengths below are load-bearing: spec.md §9 fixes
// them as the source of truth for interop, independent of the string's
// apparent length after any encoding surprises.
var (
	saltControl                 = []byte("Control-Salt")                   // 12 bytes
	infoControlReadEncryptKey   = []byte("Control-Read-Encryption-Key")     // 27 bytes
	infoControlWriteEncryptKey  = []byte("Control-Write-Encryption-Key")    // 28 bytes
	saltPairSetupEncrypt        = []byte("Pair-Setup-Encrypt-Salt")
	infoPairSetupEncrypt        = []byte("Pair-Setup-Encrypt-Info")
	saltPairSetupControllerSign = []byte("Pair-Setup-Controller-Sign-Salt") // 31 bytes
	infoPairSetupControllerSign = []byte("Pair-Setup-Controller-Sign-Info") // 31 bytes
	saltPairSetupAccessorySign  = []byte("Pair-Setup-Accessory-Sign-Salt")  // 30 bytes
	infoPairSetupAccessorySign  = []byte("Pair-Setup-Accessory-Sign-Info") // 30 bytes
	saltPairVerifyEncrypt       = []byte("Pair-Verify-Encrypt-Salt")
	infoPairVerifyEncrypt       = []byte("Pair-Verify-Encrypt-Info")
)

// HKDF derives n bytes of key material from secret using HKDF-SHA-512 with
// the given salt and info.
func HKDF(secret, salt, info []byte, n int) []byte {
	r := hkdf.New(sha512.New, secret, salt, info)
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		panic("hapcrypto: hkdf read failed: " + err.Error())
	}
	return out
}

func PairSetupEncryptKey(srpK []byte) []byte {
	return HKDF(srpK, saltPairSetupEncrypt, infoPairSetupEncrypt, 32)
}

func PairSetupControllerSignSalt(srpK []byte) []byte {
	return HKDF(srpK, saltPairSetupControllerSign, infoPairSetupControllerSign, 32)
}

func PairSetupAccessorySignSalt(srpK []byte) []byte {
	return HKDF(srpK, saltPairSetupAccessorySign, infoPairSetupAccessorySign, 32)
}

func PairVerifyEncryptKey(z []byte) []byte {
	return HKDF(z, saltPairVerifyEncrypt, infoPairVerifyEncrypt, 32)
}

func ControlReadKey(z []byte) []byte {
	return HKDF(z, saltControl, infoControlReadEncryptKey, 32)
}

func ControlWriteKey(z []byte) []byte {
	return HKDF(z, saltControl, infoControlWriteEncryptKey, 32)
}

// BroadcastEncryptionKey derives the BLE broadcast key from the Pair Verify
// shared secret, salted with the controller's long-term public key, per
// spec.md §4.7 ProtocolConfiguration(GenerateKey).
func BroadcastEncryptionKey(sharedSecret, controllerLTPK []byte) []byte {
	return HKDF(sharedSecret, controllerLTPK, []byte("Broadcast-Encryption-Key"), 32)
}
