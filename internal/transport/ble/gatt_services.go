package ble

import (
	"github.com/srg/hapd/internal/hapcrypto"
	"github.com/srg/hapd/internal/model"
	"github.com/srg/hapd/internal/platform"
	"github.com/srg/hapd/internal/tlv8"
)

// synthServiceIID and synthCharIID allocate stable IIDs for the BLE-only
// synthetic attributes (the Pairing and Protocol Information services and
// their characteristics) from the same model.IIDManager the database uses,
// so they persist across restarts exactly like any other structural key.
func (s *Server) synthServiceIID(key string) uint16 {
	return s.deps.DB.IIDs().Assign("BLE-SVC:" + key)
}

func (s *Server) synthCharIID(key string) uint16 {
	return s.deps.DB.IIDs().Assign("BLE-CHR:" + key)
}

// buildServiceAttributes renders one database service and its
// characteristics into a platform.GATTService.
func (s *Server) buildServiceAttributes(aid uint64, svc *model.Service) platform.GATTService {
	chars := []platform.GATTCharacteristic{serviceInstanceIDCharacteristic(svc.IID)}
	for _, ch := range svc.Characteristics {
		a := s.buildCharacteristicAttribute(aid, svc, ch)
		descriptors := map[string][]byte{ServiceInstanceIDDescriptorUUID: le16(ch.IID)}
		chars = append(chars, s.toGATT(a, int(characteristicProperties(ch)), descriptors))
	}
	return platform.GATTService{UUID: svc.UUID(), Characteristics: chars}
}

// findServiceByIID searches every accessory's services for iid. HAP-BLE
// addresses services by a single device-wide IID space, unlike the IP
// transport's (aid, iid) pairs.
func (s *Server) findServiceByIID(iid uint16) *model.Service {
	for _, acc := range s.deps.DB.Accessories() {
		if svc := acc.ServiceByIID(iid); svc != nil {
			return svc
		}
	}
	return nil
}

// buildProtocolInformationService renders the mandatory Protocol
// Information Service (short type 0xA2): Version, Service Signature, and
// Protocol Configuration.
func (s *Server) buildProtocolInformationService() platform.GATTService {
	svcIID := s.synthServiceIID("protocol-info")

	versionChar := platform.GATTCharacteristic{
		UUID: model.FullUUID(VersionCharType),
		OnRead: func(string) ([]byte, error) {
			return []byte("2.2.0"), nil
		},
	}

	sigAttr := &attribute{uuid: model.FullUUID(ServiceSignatureCharType)}
	sigAttr.serviceSig = func(cs *connState, targetIID uint16) []byte {
		target := s.findServiceByIID(targetIID)
		if target == nil {
			return tlv8.Encode(tlv8.Items{}.Add(TLVServiceProperties, le16(0)).Add(TLVLinkedServices, nil))
		}
		var props uint16
		if target.Primary {
			props |= 0x01
		}
		linked := make([]byte, 0, len(target.LinkedIIDs)*2)
		for _, l := range target.LinkedIIDs {
			linked = append(linked, le16(l)...)
		}
		return tlv8.Encode(tlv8.Items{}.Add(TLVServiceProperties, le16(props)).Add(TLVLinkedServices, linked))
	}

	protoAttr := &attribute{uuid: model.FullUUID(ProtocolConfigurationCharType), encrypted: true}
	protoAttr.protoConfig = func(cs *connState, raw []byte) ([]byte, byte) {
		return s.protocolConfiguration(cs, raw)
	}

	return platform.GATTService{
		UUID: model.FullUUID(ProtocolInformationServiceType),
		Characteristics: []platform.GATTCharacteristic{
			serviceInstanceIDCharacteristic(svcIID),
			versionChar,
			s.toGATT(sigAttr, 0, nil),
			s.toGATT(protoAttr, 0, nil),
		},
	}
}

// Sub-TLV types scoped to the Protocol Configuration characteristic's own
// request/response bodies (spec.md §4.7's GenerateKey/GetAll operations).
const (
	tlvProtoOpGenerateKey byte = 0x01
	tlvProtoOpGetAll      byte = 0x02
	tlvProtoBroadcastKey  byte = 0x01
	tlvProtoStateNumber   byte = 0x01
	tlvProtoConfigNumber  byte = 0x02
	tlvProtoAdvertisingID byte = 0x03
)

func (s *Server) protocolConfiguration(cs *connState, body []byte) ([]byte, byte) {
	in := tlv8.Decode(body)
	if _, ok := in.First(tlvProtoOpGenerateKey); ok {
		if !cs.ctx.IsEncrypted() || len(cs.sharedSecret) == 0 {
			return nil, PDUStatusInsufficientAuthorization
		}
		key := hapcrypto.BroadcastEncryptionKey(cs.sharedSecret, cs.controllerLTPK)
		cs.broadcastKey = key
		cs.broadcastGSN = 0
		return tlv8.Encode(tlv8.Items{}.Add(tlvProtoBroadcastKey, key)), PDUStatusSuccess
	}
	if _, ok := in.First(tlvProtoOpGetAll); ok {
		out := tlv8.Items{}.
			Add(tlvProtoStateNumber, le16(cs.broadcastGSN)).
			AddByte(tlvProtoConfigNumber, 1).
			Add(tlvProtoAdvertisingID, []byte(s.deps.DeviceID))
		return tlv8.Encode(out), PDUStatusSuccess
	}
	return nil, PDUStatusInvalidRequest
}
