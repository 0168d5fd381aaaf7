package pairing

import (
	"crypto/ed25519"

	"github.com/sirupsen/logrus"

	"github.com/srg/hapd/internal/hapcrypto"
	"github.com/srg/hapd/internal/tlv8"
)

// RateLimiter is consulted before M1 and may force TLVError.MaxTries or
// TLVError.Backoff instead of starting a new SRP exchange. A nil limiter
// never throttles, matching spec.md's "transport's backoff, not mandated"
// language.
type RateLimiter interface {
	Allow() (ErrorCode, bool)
}

// SetupEngine runs one connection's Pair Setup (M1-M6) state machine. It is
// a pure function of (state, incoming TLV8 body) -> outgoing TLV8 body,
// same as Pair Verify, so both transports can drive it identically.
type SetupEngine struct {
	state State
	srp   *hapcrypto.SRPServer

	accessoryPairingID string
	accessoryLTPK      ed25519.PublicKey
	accessoryLTSK      ed25519.PrivateKey
	setupCode          string

	store   *Store
	limiter RateLimiter
	log     *logrus.Entry
}

// NewSetupEngine creates a fresh M1-ready engine for one connection.
// accessoryPairingID is the accessory's persistent identifier (the same
// `XX:XX:XX:XX:XX:XX`-form ID published as mDNS's `id` TXT field), not
// derived from the LTPK.
func NewSetupEngine(accessoryPairingID string, accessoryLTPK ed25519.PublicKey, accessoryLTSK ed25519.PrivateKey, setupCode string, store *Store, limiter RateLimiter, log *logrus.Entry) *SetupEngine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SetupEngine{
		state:               M1,
		accessoryPairingID:  accessoryPairingID,
		accessoryLTPK:       accessoryLTPK,
		accessoryLTSK:       accessoryLTSK,
		setupCode:           setupCode,
		store:               store,
		limiter:             limiter,
		log:                 log.WithField("engine", "pair-setup"),
	}
}

// Step feeds one TLV8 request body and returns the TLV8 response body.
// On any protocol error, the engine resets to AwaitingM1 (spec.md §4.3) and
// the response carries an Error item instead of the next State's payload.
func (e *SetupEngine) Step(body []byte) []byte {
	in := tlv8.Decode(body)
	stateByte, ok := in.GetByte(TLVState)
	if !ok {
		return e.fail(unknownError(M2, "missing state"))
	}

	switch State(stateByte) {
	case M1:
		return e.handleM1()
	case M3:
		return e.handleM3(in)
	case M5:
		return e.handleM5(in)
	default:
		return e.fail(unknownError(e.state+1, "unexpected state in pair-setup"))
	}
}

func (e *SetupEngine) handleM1() []byte {
	if e.limiter != nil {
		if code, blocked := e.limiter.Allow(); blocked {
			return e.fail(&ProtocolError{Code: code, ResetTo: M1, Msg: "rate limited"})
		}
	}
	srv, err := hapcrypto.NewSRPServer("Pair-Setup", e.setupCode)
	if err != nil {
		return e.fail(unknownError(M1, err.Error()))
	}
	e.srp = srv
	e.state = M3

	out := tlv8.Items{}.
		AddByte(TLVState, byte(M2)).
		Add(TLVSalt, srv.Salt()).
		Add(TLVPublicKey, srv.PublicKeyBytes())
	e.log.Debug("pair-setup M1->M2")
	return tlv8.Encode(out)
}

func (e *SetupEngine) handleM3(in tlv8.Items) []byte {
	if e.state != M3 || e.srp == nil {
		return e.fail(unknownError(M2, "M3 received out of order"))
	}
	aItem, ok := in.First(TLVPublicKey)
	if !ok {
		return e.fail(authError(M1, "missing A"))
	}
	m1Item, ok := in.First(TLVProof)
	if !ok {
		return e.fail(authError(M1, "missing client proof"))
	}
	if err := e.srp.SetClientPublicKey(aItem.Value); err != nil {
		return e.fail(authError(M1, err.Error()))
	}
	if err := e.srp.VerifyClientProof(m1Item.Value); err != nil {
		return e.fail(authError(M1, err.Error()))
	}
	m2 := e.srp.ServerProof(m1Item.Value)
	e.state = M5

	out := tlv8.Items{}.
		AddByte(TLVState, byte(M4)).
		Add(TLVProof, m2)
	e.log.Debug("pair-setup M3->M4")
	return tlv8.Encode(out)
}

func (e *SetupEngine) handleM5(in tlv8.Items) []byte {
	if e.state != M5 || e.srp == nil {
		return e.fail(unknownError(M4, "M5 received out of order"))
	}
	encItem, ok := in.First(TLVEncryptedData)
	if !ok {
		return e.fail(authError(M1, "missing encrypted data"))
	}

	srpK := e.srp.SharedKey()
	encKey := hapcrypto.PairSetupEncryptKey(srpK)
	plain, err := hapcrypto.Open(encKey, hapcrypto.FixedNonce("PS-Msg05"), nil, encItem.Value)
	if err != nil {
		return e.fail(authError(M1, "sub-tlv decryption failed"))
	}

	sub := tlv8.Decode(plain)
	controllerID, ok := sub.GetString(TLVIdentifier)
	if !ok {
		return e.fail(authError(M1, "missing controller identifier"))
	}
	ltpkItem, ok := sub.First(TLVPublicKey)
	if !ok || len(ltpkItem.Value) != ed25519.PublicKeySize {
		return e.fail(authError(M1, "missing or malformed controller LTPK"))
	}
	sigItem, ok := sub.First(TLVSignature)
	if !ok {
		return e.fail(authError(M1, "missing controller signature"))
	}

	signSalt := hapcrypto.PairSetupControllerSignSalt(srpK)
	info := append(append(append([]byte{}, signSalt...), []byte(controllerID)...), ltpkItem.Value...)
	if !ed25519.Verify(ed25519.PublicKey(ltpkItem.Value), info, sigItem.Value) {
		return e.fail(authError(M1, "controller signature invalid"))
	}

	admin := e.store.IsEmpty()
	if err := e.store.Add(controllerID, ed25519.PublicKey(ltpkItem.Value), admin); err != nil {
		return e.fail(unknownError(M1, err.Error()))
	}

	accessorySignSalt := hapcrypto.PairSetupAccessorySignSalt(srpK)
	accessoryID := []byte(e.accessoryPairingID)
	accessoryInfo := append(append(append([]byte{}, accessorySignSalt...), accessoryID...), e.accessoryLTPK...)
	accessorySig := ed25519.Sign(e.accessoryLTSK, accessoryInfo)

	respSub := tlv8.Items{}.
		AddString(TLVIdentifier, e.accessoryPairingID).
		Add(TLVPublicKey, e.accessoryLTPK).
		Add(TLVSignature, accessorySig)
	respSubBytes := tlv8.Encode(respSub)

	sealed, err := hapcrypto.Seal(encKey, hapcrypto.FixedNonce("PS-Msg06"), nil, respSubBytes)
	if err != nil {
		return e.fail(unknownError(M1, err.Error()))
	}

	e.state = M1
	out := tlv8.Items{}.
		AddByte(TLVState, byte(M6)).
		Add(TLVEncryptedData, sealed)
	e.log.WithField("controller", controllerID).Info("pair-setup complete")
	return tlv8.Encode(out)
}

func (e *SetupEngine) fail(perr *ProtocolError) []byte {
	e.state = M1
	e.srp = nil
	e.log.WithError(perr).Debug("pair-setup failed, resetting")
	out := tlv8.Items{}.
		AddByte(TLVState, byte(perr.ResetTo)).
		AddByte(TLVError, byte(perr.Code))
	return tlv8.Encode(out)
}
