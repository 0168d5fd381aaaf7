package pairing

import (
	"crypto/ed25519"

	"github.com/sirupsen/logrus"

	"github.com/srg/hapd/internal/hapcrypto"
	"github.com/srg/hapd/internal/tlv8"
)

// VerifyResult carries the session material a successful Pair Verify M3->M4
// transition produces, for the caller to install on the connection.
type VerifyResult struct {
	ControllerID string
	ReadKey      []byte // accessory -> controller
	WriteKey     []byte // controller -> accessory

	// SharedSecret and ControllerLTPK are retained for the BLE transport's
	// ProtocolConfiguration(GenerateKey) procedure, which derives the
	// broadcast key directly from the raw X25519 shared secret rather than
	// the session's Control-Salt-derived transport keys (spec.md §4.7).
	SharedSecret   []byte
	ControllerLTPK ed25519.PublicKey
}

// VerifyEngine runs one connection's Pair Verify (M1-M4) state machine, the
// same pure (state, body) -> body shape as SetupEngine.
type VerifyEngine struct {
	state State

	accessoryPairingID string
	accessoryLTSK      ed25519.PrivateKey

	ownPublic, ownPrivate [32]byte
	peerPublic            [32]byte
	sharedSecret          []byte
	sessionKey            []byte

	store  *Store
	result *VerifyResult
	log    *logrus.Entry
}

// NewVerifyEngine creates a fresh M1-ready engine for one connection.
func NewVerifyEngine(accessoryPairingID string, accessoryLTSK ed25519.PrivateKey, store *Store, log *logrus.Entry) *VerifyEngine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &VerifyEngine{
		state:               M1,
		accessoryPairingID:  accessoryPairingID,
		accessoryLTSK:       accessoryLTSK,
		store:               store,
		log:                 log.WithField("engine", "pair-verify"),
	}
}

// Result returns the session material from a completed M4, or nil if the
// handshake has not yet succeeded.
func (e *VerifyEngine) Result() *VerifyResult { return e.result }

// Step feeds one TLV8 request body and returns the TLV8 response body.
func (e *VerifyEngine) Step(body []byte) []byte {
	in := tlv8.Decode(body)
	stateByte, ok := in.GetByte(TLVState)
	if !ok {
		return e.fail(unknownError(M2, "missing state"))
	}

	switch State(stateByte) {
	case M1:
		return e.handleM1(in)
	case M3:
		return e.handleM3(in)
	default:
		return e.fail(unknownError(e.state+1, "unexpected state in pair-verify"))
	}
}

func (e *VerifyEngine) handleM1(in tlv8.Items) []byte {
	peerItem, ok := in.First(TLVPublicKey)
	if !ok || len(peerItem.Value) != 32 {
		return e.fail(authError(M1, "missing or malformed peer curve public key"))
	}
	copy(e.peerPublic[:], peerItem.Value)

	pub, priv, err := hapcrypto.GenerateX25519Keypair()
	if err != nil {
		return e.fail(unknownError(M1, err.Error()))
	}
	e.ownPublic, e.ownPrivate = pub, priv

	z, err := hapcrypto.X25519SharedSecret(e.ownPrivate, e.peerPublic)
	if err != nil {
		return e.fail(unknownError(M1, err.Error()))
	}
	e.sharedSecret = z
	e.sessionKey = hapcrypto.PairVerifyEncryptKey(z)

	signInfo := append(append(append([]byte{}, e.ownPublic[:]...), []byte(e.accessoryPairingID)...), e.peerPublic[:]...)
	sig := ed25519.Sign(e.accessoryLTSK, signInfo)

	respSub := tlv8.Items{}.
		AddString(TLVIdentifier, e.accessoryPairingID).
		Add(TLVSignature, sig)
	sealed, err := hapcrypto.Seal(e.sessionKey, hapcrypto.FixedNonce("PV-Msg02"), nil, tlv8.Encode(respSub))
	if err != nil {
		return e.fail(unknownError(M1, err.Error()))
	}

	e.state = M3
	out := tlv8.Items{}.
		AddByte(TLVState, byte(M2)).
		Add(TLVPublicKey, e.ownPublic[:]).
		Add(TLVEncryptedData, sealed)
	e.log.Debug("pair-verify M1->M2")
	return tlv8.Encode(out)
}

func (e *VerifyEngine) handleM3(in tlv8.Items) []byte {
	if e.state != M3 {
		return e.fail(unknownError(M2, "M3 received out of order"))
	}
	encItem, ok := in.First(TLVEncryptedData)
	if !ok {
		return e.fail(authError(M1, "missing encrypted data"))
	}
	plain, err := hapcrypto.Open(e.sessionKey, hapcrypto.FixedNonce("PV-Msg03"), nil, encItem.Value)
	if err != nil {
		return e.fail(authError(M1, "sub-tlv decryption failed"))
	}

	sub := tlv8.Decode(plain)
	controllerID, ok := sub.GetString(TLVIdentifier)
	if !ok {
		return e.fail(authError(M1, "missing controller identifier"))
	}
	sigItem, ok := sub.First(TLVSignature)
	if !ok {
		return e.fail(authError(M1, "missing controller signature"))
	}

	rec, ok := e.store.Get(controllerID)
	if !ok {
		return e.fail(authError(M1, "unknown pairing"))
	}

	verifyInfo := append(append(append([]byte{}, e.peerPublic[:]...), []byte(controllerID)...), e.ownPublic[:]...)
	if !ed25519.Verify(rec.LTPK, verifyInfo, sigItem.Value) {
		return e.fail(authError(M1, "controller signature invalid"))
	}

	e.result = &VerifyResult{
		ControllerID:   controllerID,
		ReadKey:        hapcrypto.ControlReadKey(e.sharedSecret),
		WriteKey:       hapcrypto.ControlWriteKey(e.sharedSecret),
		SharedSecret:   e.sharedSecret,
		ControllerLTPK: rec.LTPK,
	}
	e.state = M1
	e.log.WithField("controller", controllerID).Info("pair-verify complete")
	return tlv8.Encode(tlv8.Items{}.AddByte(TLVState, byte(M4)))
}

func (e *VerifyEngine) fail(perr *ProtocolError) []byte {
	e.state = M1
	e.result = nil
	e.log.WithError(perr).Debug("pair-verify failed, resetting")
	out := tlv8.Items{}.
		AddByte(TLVState, byte(perr.ResetTo)).
		AddByte(TLVError, byte(perr.Code))
	return tlv8.Encode(out)
}
