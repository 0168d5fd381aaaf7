package ble

import (
	"encoding/binary"
	"time"

	"github.com/srg/hapd/internal/hapcrypto"
	"github.com/srg/hapd/internal/platform"
	"github.com/srg/hapd/internal/session"
)

// maxGSNIncrements is the lifetime of a broadcast key before
// ProtocolConfiguration(GenerateKey) must be run again, per spec.md §4.7.
const maxGSNIncrements = 32_767

// fastAdvertisingDuration is how long the accessory advertises at the fast
// (20ms) interval after a GSN bump before reverting to the slow (1s) one.
const fastAdvertisingDuration = 3 * time.Second

// AdvertisingState is the accessory-wide (not per-connection) advertising
// state: the global state number, the accessory identifiers, and whether
// any pairing exists. The orchestrator owns and updates it; the BLE
// transport only reads it to render payloads.
type AdvertisingState struct {
	GSN          uint16
	DeviceID     [6]byte
	ACID         uint16
	ConfigNumber uint8
	SetupID      string
	Paired       bool
}

func (a *AdvertisingState) statusFlags() byte {
	if a.Paired {
		return 0
	}
	return StatusFlagNotPaired
}

// bumpGSN increments the global state number, skipping 0 on wraparound,
// the same rule the IP transport's configuration number follows.
func (a *AdvertisingState) bumpGSN() {
	a.GSN++
	if a.GSN == 0 {
		a.GSN = 1
	}
}

// PublishChange runs the Connected/Broadcasted/Disconnected event
// selection spec.md §4.7/§7.4.6 describes for one value change, driving
// the platform.Ble adapter accordingly.
func (s *Server) PublishChange(adv *AdvertisingState, ble platform.Ble, change session.ValueChange) error {
	if s.deps.Subscriptions.HasSubscribers(change.Key) {
		return s.emitConnectedEvent(ble, change)
	}
	if cs, ok := s.activeBroadcast(); ok {
		return s.emitBroadcastedEvent(adv, ble, cs, change)
	}
	return s.emitDisconnectedEvent(adv, ble)
}

func (s *Server) emitConnectedEvent(ble platform.Ble, change session.ValueChange) error {
	_, svc, ch, ok := s.deps.DB.Find(change.Key.AID, change.Key.IID)
	if !ok {
		return nil
	}

	s.mu.Lock()
	var targets []string
	for id, cs := range s.conns {
		if change.SourceConnectionID != nil && id == *change.SourceConnectionID {
			continue
		}
		if cs.ctx.IsSubscribed(change.Key) {
			targets = append(targets, id)
		}
	}
	s.mu.Unlock()

	for _, connID := range targets {
		if err := ble.Notify(connID, svc.UUID(), ch.UUID()); err != nil {
			s.log.WithError(err).WithField("conn", connID).Warn("ble: notify failed")
		}
	}
	return nil
}

// activeBroadcast reports whether any connection holds a live broadcast
// key, returning its state for the encryption step.
func (s *Server) activeBroadcast() (*connState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cs := range s.conns {
		if len(cs.broadcastKey) > 0 && cs.broadcastGSN < maxGSNIncrements {
			return cs, true
		}
	}
	return nil, false
}

func (s *Server) emitBroadcastedEvent(adv *AdvertisingState, ble platform.Ble, cs *connState, change session.ValueChange) error {
	adv.bumpGSN()
	cs.broadcastGSN++

	plaintext := make([]byte, 12)
	binary.LittleEndian.PutUint16(plaintext[0:2], adv.GSN)
	binary.LittleEndian.PutUint16(plaintext[2:4], change.Key.IID)
	copy(plaintext[4:12], change.Value)

	sealed, err := hapcrypto.Seal(cs.broadcastKey, broadcastNonce(adv.GSN), adv.DeviceID[:], plaintext)
	if err != nil {
		return err
	}
	// sealed is ciphertext(12)||tag(16); the advertisement carries the
	// ciphertext in full and only the first 4 bytes of the tag.
	payload := append([]byte{advType, 0x13}, sealed[:12]...)
	payload = append(payload, sealed[12:16]...)
	return ble.StartAdvertising(payload)
}

func (s *Server) emitDisconnectedEvent(adv *AdvertisingState, ble platform.Ble) error {
	adv.bumpGSN()
	fast := Advertisement(adv.statusFlags(), adv.DeviceID, adv.ACID, adv.GSN, adv.ConfigNumber, adv.SetupID)
	return ble.StartAdvertisingFast(fast, fastAdvertisingDuration, fast)
}

// broadcastNonce builds the 12-byte ChaCha20-Poly1305 nonce spec.md §4.7
// specifies for Broadcasted Events: the GSN followed by zero bytes.
func broadcastNonce(gsn uint16) []byte {
	n := make([]byte, 12)
	binary.LittleEndian.PutUint16(n[:2], gsn)
	return n
}
