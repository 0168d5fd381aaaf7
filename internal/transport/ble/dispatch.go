package ble

import (
	"github.com/srg/hapd/internal/model"
	"github.com/srg/hapd/internal/platform"
	"github.com/srg/hapd/internal/session"
	"github.com/srg/hapd/internal/tlv8"
)

// attribute is the BLE-layer view of one opcode-driven GATT attribute
// (a HAP characteristic, a pairing characteristic, or one of the Protocol
// Information service's shared characteristics). The HAP PDU procedures
// are identical in shape across all of these; only the per-opcode bodies
// differ, so each attribute supplies just the handlers its kind supports.
type attribute struct {
	uuid      string
	encrypted bool // requires an established secure session

	signatureRead func(cs *connState) []byte
	read          func(cs *connState) ([]byte, byte)
	write         func(cs *connState, body []byte) ([]byte, byte)
	serviceSig    func(cs *connState, targetIID uint16) []byte // ServiceSignatureRead, Protocol Info only
	configure     func(cs *connState, body []byte) ([]byte, byte)
	protoConfig   func(cs *connState, body []byte) ([]byte, byte)

	// iid identifies the target for TimedWrite/ExecuteWrite buffering;
	// unused by attributes that don't support those opcodes.
	iid uint16
}

// toGATT renders attribute into the generic platform.GATTCharacteristic
// callback pair every BLE GATT attribute shares: reassemble writes, run
// the opcode, buffer the response for the next GATT read.
func (s *Server) toGATT(a *attribute, properties int, descriptors map[string][]byte) platform.GATTCharacteristic {
	return platform.GATTCharacteristic{
		UUID:       a.uuid,
		Properties: properties,
		Descriptors: descriptors,
		OnWrite: func(connID string, data []byte) error {
			return s.handleWrite(connID, a, data)
		},
		OnRead: func(connID string) ([]byte, error) {
			return s.handleRead(connID, a)
		},
	}
}

func (s *Server) handleWrite(connID string, a *attribute, chunk []byte) error {
	cs := s.connState(connID)
	cs.mu.Lock()
	r, ok := cs.reassemble[a.uuid]
	if !ok {
		r = &Reassembler{}
		cs.reassemble[a.uuid] = r
	}
	cs.mu.Unlock()

	req, err := r.Feed(chunk)
	if err == ErrIncomplete {
		return nil
	}
	if err == ErrTIDMismatch {
		s.log.WithField("conn", connID).Debug("ble: continuation TID mismatch, transaction aborted")
		return nil
	}

	if a.encrypted && !cs.ctx.IsEncrypted() {
		s.bufferResponse(cs, a.uuid, EncodeResponse(req.TID, PDUStatusInsufficientAuthorization, nil))
		return nil
	}

	status, body := s.dispatchOpcode(cs, a, req)
	s.bufferResponse(cs, a.uuid, EncodeResponse(req.TID, status, body))
	return nil
}

func (s *Server) bufferResponse(cs *connState, uuid string, resp []byte) {
	cs.mu.Lock()
	cs.pending[uuid] = resp
	cs.lastWrite[uuid] = s.deps.System.MonotonicMillis()
	cs.mu.Unlock()
}

func (s *Server) handleRead(connID string, a *attribute) ([]byte, error) {
	cs := s.connState(connID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	last, ok := cs.lastWrite[a.uuid]
	if !ok || s.deps.System.MonotonicMillis()-last > readTimeoutMillis {
		return EncodeResponse(0, PDUStatusInvalidRequest, nil), nil
	}
	resp := cs.pending[a.uuid]
	delete(cs.pending, a.uuid)
	return resp, nil
}

func (s *Server) dispatchOpcode(cs *connState, a *attribute, req *Request) (byte, []byte) {
	switch req.Opcode {
	case OpCharacteristicSignatureRead:
		if a.signatureRead == nil {
			return PDUStatusUnsupportedPDU, nil
		}
		return PDUStatusSuccess, a.signatureRead(cs)

	case OpServiceSignatureRead:
		if a.serviceSig == nil {
			return PDUStatusUnsupportedPDU, nil
		}
		return PDUStatusSuccess, a.serviceSig(cs, req.IID)

	case OpCharacteristicRead:
		if a.read == nil {
			return PDUStatusUnsupportedPDU, nil
		}
		body, status := a.read(cs)
		if status != PDUStatusSuccess {
			return status, nil
		}
		return PDUStatusSuccess, tlv8.Encode(tlv8.Items{}.Add(TLVValue, body))

	case OpCharacteristicWrite:
		if a.write == nil {
			return PDUStatusUnsupportedPDU, nil
		}
		return s.applyWrite(cs, a, req.Body)

	case OpCharacteristicTimedWrite:
		in := tlv8.Decode(req.Body)
		val, _ := in.First(TLVValue)
		cs.timed[a.iid] = storedWrite{tid: req.TID, body: val.Value, deadlineMS: s.deps.System.MonotonicMillis() + readTimeoutMillis}
		return PDUStatusSuccess, nil

	case OpCharacteristicExecuteWrite:
		stored, ok := cs.timed[a.iid]
		delete(cs.timed, a.iid)
		if !ok || s.deps.System.MonotonicMillis() > stored.deadlineMS {
			return PDUStatusInvalidRequest, nil
		}
		body := tlv8.Encode(tlv8.Items{}.Add(TLVValue, stored.body))
		return s.applyWrite(cs, a, body)

	case OpCharacteristicConfiguration:
		if a.configure == nil {
			return PDUStatusUnsupportedPDU, nil
		}
		body, status := a.configure(cs, req.Body)
		return status, body

	case OpProtocolConfiguration:
		if a.protoConfig == nil {
			return PDUStatusUnsupportedPDU, nil
		}
		body, status := a.protoConfig(cs, req.Body)
		return status, body

	default:
		return PDUStatusUnsupportedPDU, nil
	}
}

func (s *Server) applyWrite(cs *connState, a *attribute, body []byte) (byte, []byte) {
	in := tlv8.Decode(body)
	val, hasValue := in.First(TLVValue)
	_, wantsResponse := in.First(TLVReturnResponse)
	if !hasValue {
		return PDUStatusInvalidRequest, nil
	}
	respBody, status := a.write(cs, val.Value)
	if status != PDUStatusSuccess {
		return status, nil
	}
	if !wantsResponse || respBody == nil {
		return PDUStatusSuccess, nil
	}
	return PDUStatusSuccess, tlv8.Encode(tlv8.Items{}.Add(TLVValue, respBody))
}

// buildCharacteristicAttribute renders one database characteristic into the
// opcode handlers its permissions support.
func (s *Server) buildCharacteristicAttribute(aid uint64, svc *model.Service, ch *model.Characteristic) *attribute {
	a := &attribute{uuid: ch.UUID(), encrypted: true, iid: ch.IID}

	a.signatureRead = func(cs *connState) []byte {
		return characteristicSignature(svc, ch)
	}

	if ch.Perms.Has(model.PermPairedRead) {
		a.read = func(cs *connState) ([]byte, byte) {
			v := ch.Value
			if ch.OnRead != nil {
				nv, err := ch.OnRead()
				if err != nil {
					return nil, PDUStatusInvalidRequest
				}
				v = nv
			}
			b, err := model.EncodeBinary(v)
			if err != nil {
				return nil, PDUStatusInvalidRequest
			}
			return b, PDUStatusSuccess
		}
	}

	if ch.Perms.Has(model.PermPairedWrite) {
		a.write = func(cs *connState, raw []byte) ([]byte, byte) {
			v, err := model.DecodeBinary(ch.Format, raw)
			if err != nil {
				return nil, PDUStatusInvalidValueInWrite
			}
			ch.Value = v
			if ch.OnWrite != nil {
				if err := ch.OnWrite(v); err != nil {
					return nil, PDUStatusInvalidRequest
				}
			}
			if s.deps.OnValueChange != nil {
				connID := cs.ctx.ID
				s.deps.OnValueChange(session.ValueChange{
					Key:                session.CharKey{AID: aid, IID: ch.IID},
					Value:              raw,
					SourceConnectionID: &connID,
				})
			}
			if ch.Perms.Has(model.PermWriteResponse) {
				b, _ := model.EncodeBinary(v)
				return b, PDUStatusSuccess
			}
			return nil, PDUStatusSuccess
		}
	}

	if ch.Perms.Has(model.PermNotify) {
		a.configure = func(cs *connState, body []byte) ([]byte, byte) {
			in := tlv8.Decode(body)
			item, ok := in.First(0x01) // broadcast-enabled flag, sub-TLV within CharacteristicConfiguration body
			enabled := ok && len(item.Value) == 1 && item.Value[0] != 0
			_ = enabled // parsed only: neither the broadcast flag nor an interval is stored anywhere
			return nil, PDUStatusSuccess
		}
	}
	return a
}

// characteristicSignature renders the CharacteristicSignatureRead response
// body spec.md §4.7 describes.
func characteristicSignature(svc *model.Service, ch *model.Characteristic) []byte {
	items := tlv8.Items{}.
		Add(TLVCharacteristicType, model.UUIDBytesLE(ch.UUID())).
		Add(TLVServiceInstanceID, le16(svc.IID)).
		Add(TLVServiceType, model.UUIDBytesLE(svc.UUID())).
		Add(TLVCharacteristicProperties, le16(characteristicProperties(ch)))
	if ch.Metadata.Description != "" {
		items = items.AddString(TLVUserDescription, ch.Metadata.Description)
	}
	items = items.Add(TLVPresentationFormat, gattPresentationFormat(ch.Format, ch.Metadata.Unit))
	return tlv8.Encode(items)
}

func characteristicProperties(ch *model.Characteristic) uint16 {
	var p uint16
	if ch.Perms.Has(model.PermPairedRead) {
		p |= PropPairedRead
	}
	if ch.Perms.Has(model.PermPairedWrite) {
		p |= PropPairedWrite
	}
	if ch.Perms.Has(model.PermAdditionalAuth) {
		p |= PropAAuth
	}
	if ch.Perms.Has(model.PermTimedWrite) {
		p |= PropTimedWrite
	}
	if ch.Perms.Has(model.PermHidden) {
		p |= PropHidden
	}
	if ch.Perms.Has(model.PermNotify) {
		p |= PropNotifyConn | PropNotifyDisc
	}
	if ch.Perms.Has(model.PermBroadcast) {
		p |= PropBroadcast
	}
	return p
}

func gattPresentationFormat(f model.Format, unit string) []byte {
	out := make([]byte, 7)
	out[0] = model.GATTPresentationByte(f)
	out[1] = 0 // exponent
	u := gattUnitCode(unit)
	out[2] = byte(u)
	out[3] = byte(u >> 8)
	out[4] = 1 // namespace: Bluetooth SIG assigned numbers
	out[5] = 0
	out[6] = 0
	return out
}

func gattUnitCode(unit string) uint16 {
	switch unit {
	case "celsius":
		return 0x272F
	case "percentage":
		return 0x27AD
	case "arcdegrees":
		return 0x2763
	case "lux":
		return 0x2731
	case "seconds":
		return 0x2703
	default:
		return 0x2700 // unitless
	}
}
