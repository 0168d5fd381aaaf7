package ble

import (
	"github.com/srg/hapd/internal/model"
	"github.com/srg/hapd/internal/pairing"
	"github.com/srg/hapd/internal/platform"
	"github.com/srg/hapd/internal/session"
	"github.com/srg/hapd/internal/tlv8"
)

// serviceStub carries just the IID a signature response needs when the
// owning service isn't a database model.Service (the Pairing and Protocol
// Information services are synthesized, not registered in the database).
type serviceStub struct {
	iid uint16
}

// buildPairingService renders the mandatory Pairing Service (short type
// 0x55): Pair Setup, Pair Verify, Pairing Features, and Pairing Pairings,
// none of which require an established session per spec.md §4.7's
// encryption boundary (Pairing Pairings excepted: it is admin-only, which
// implies an established, verified session).
func (s *Server) buildPairingService() platform.GATTService {
	svc := &serviceStub{iid: s.pairingServiceIID()}

	setupAttr := &attribute{uuid: model.FullUUID(PairSetupCharType)}
	setupAttr.signatureRead = func(cs *connState) []byte { return bareSignature(svc, PairSetupCharType) }
	setupAttr.write = func(cs *connState, raw []byte) ([]byte, byte) {
		if cs.setup == nil {
			cs.setup = pairing.NewSetupEngine(s.deps.AccessoryPairingID, s.deps.AccessoryLTPK, s.deps.AccessoryLTSK, s.deps.SetupCode, s.deps.PairingStore, s.deps.RateLimiter, s.log)
		}
		return cs.setup.Step(raw), PDUStatusSuccess
	}

	verifyAttr := &attribute{uuid: model.FullUUID(PairVerifyCharType)}
	verifyAttr.signatureRead = func(cs *connState) []byte { return bareSignature(svc, PairVerifyCharType) }
	verifyAttr.write = func(cs *connState, raw []byte) ([]byte, byte) {
		if cs.verify == nil {
			cs.verify = pairing.NewVerifyEngine(s.deps.AccessoryPairingID, s.deps.AccessoryLTSK, s.deps.PairingStore, s.log)
		}
		resp := cs.verify.Step(raw)
		if result := cs.verify.Result(); result != nil {
			cs.ctx.InstallSession(session.NewSecureSession(result.ReadKey, result.WriteKey), result.ControllerID, isAdminPairing(s.deps.PairingStore, result.ControllerID))
			cs.sharedSecret = result.SharedSecret
			cs.controllerLTPK = result.ControllerLTPK
			cs.verify = nil
		}
		return resp, PDUStatusSuccess
	}

	featuresAttr := &attribute{uuid: model.FullUUID(PairingFeaturesCharType)}
	featuresAttr.signatureRead = func(cs *connState) []byte { return bareSignature(svc, PairingFeaturesCharType) }
	featuresAttr.read = func(cs *connState) ([]byte, byte) { return []byte{0x00}, PDUStatusSuccess }

	pairingsAttr := &attribute{uuid: model.FullUUID(PairingPairingsCharType), encrypted: true}
	pairingsAttr.signatureRead = func(cs *connState) []byte { return bareSignature(svc, PairingPairingsCharType) }
	pairingsAttr.write = func(cs *connState, raw []byte) ([]byte, byte) {
		if !cs.ctx.IsAdmin() {
			return tlv8.Encode(pairingError(pairing.ErrAuthentication)), PDUStatusSuccess
		}
		return s.handlePairingsRequest(raw), PDUStatusSuccess
	}

	return platform.GATTService{
		UUID: model.FullUUID(PairingServiceType),
		Characteristics: []platform.GATTCharacteristic{
			serviceInstanceIDCharacteristic(svc.iid),
			s.toGATT(setupAttr, 0, nil),
			s.toGATT(verifyAttr, 0, nil),
			s.toGATT(featuresAttr, 0, nil),
			s.toGATT(pairingsAttr, 0, nil),
		},
	}
}

func isAdminPairing(store *pairing.Store, controllerID string) bool {
	rec, ok := store.Get(controllerID)
	return ok && rec.Admin
}

// handlePairingsRequest dispatches Add/Remove/List-Pairing directly
// against the pairing store, the BLE-side twin of the HTTP transport's
// /pairings handler.
func (s *Server) handlePairingsRequest(raw []byte) []byte {
	in := tlv8.Decode(raw)
	methodByte, ok := in.GetByte(pairing.TLVMethod)
	if !ok {
		return tlv8.Encode(pairingError(pairing.ErrUnknown))
	}
	switch pairing.Method(methodByte) {
	case pairing.MethodAddPairing:
		return s.handleAddPairing(in)
	case pairing.MethodRemovePairing:
		return s.handleRemovePairing(in)
	case pairing.MethodListPairings:
		return s.handleListPairings()
	default:
		return tlv8.Encode(pairingError(pairing.ErrUnknown))
	}
}

func (s *Server) handleAddPairing(in tlv8.Items) []byte {
	id, ok := in.GetString(pairing.TLVIdentifier)
	ltpkItem, ltpkOK := in.First(pairing.TLVPublicKey)
	permItem, permOK := in.First(pairing.TLVPermissions)
	if !ok || !ltpkOK {
		return tlv8.Encode(pairingError(pairing.ErrUnknown))
	}
	admin := permOK && len(permItem.Value) == 1 && permItem.Value[0]&0x01 != 0
	if err := s.deps.PairingStore.Add(id, ltpkItem.Value, admin); err != nil {
		return tlv8.Encode(pairingError(pairing.ErrUnknown))
	}
	return tlv8.Encode(tlv8.Items{}.AddByte(pairing.TLVState, byte(pairing.M2)))
}

func (s *Server) handleRemovePairing(in tlv8.Items) []byte {
	id, ok := in.GetString(pairing.TLVIdentifier)
	if !ok {
		return tlv8.Encode(pairingError(pairing.ErrUnknown))
	}
	if err := s.deps.PairingStore.Remove(id); err != nil {
		return tlv8.Encode(pairingError(pairing.ErrUnknown))
	}
	return tlv8.Encode(tlv8.Items{}.AddByte(pairing.TLVState, byte(pairing.M2)))
}

func (s *Server) handleListPairings() []byte {
	out := tlv8.Items{}.AddByte(pairing.TLVState, byte(pairing.M2))
	first := true
	s.deps.PairingStore.Range(func(id string, rec pairing.Record) bool {
		if !first {
			out = out.Add(pairing.TLVSeparator, nil)
		}
		first = false
		perms := byte(0)
		if rec.Admin {
			perms = 0x01
		}
		out = out.AddString(pairing.TLVIdentifier, id).
			Add(pairing.TLVPublicKey, rec.LTPK).
			AddByte(pairing.TLVPermissions, perms)
		return true
	})
	return tlv8.Encode(out)
}

func pairingError(code pairing.ErrorCode) tlv8.Items {
	return tlv8.Items{}.AddByte(pairing.TLVState, byte(pairing.M2)).AddByte(pairing.TLVError, byte(code))
}

func bareSignature(svc *serviceStub, charType uint32) []byte {
	return tlv8.Encode(tlv8.Items{}.
		Add(TLVCharacteristicType, model.UUIDBytesLE(model.FullUUID(charType))).
		Add(TLVServiceInstanceID, le16(svc.iid)).
		Add(TLVCharacteristicProperties, le16(PropPairedRead|PropPairedWrite)))
}

func (s *Server) pairingServiceIID() uint16 {
	return s.synthServiceIID("pairing")
}
