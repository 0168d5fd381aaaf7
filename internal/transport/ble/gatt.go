package ble

import (
	"crypto/ed25519"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/hapd/internal/model"
	"github.com/srg/hapd/internal/pairing"
	"github.com/srg/hapd/internal/platform"
	"github.com/srg/hapd/internal/session"
)

// PDU-level status codes, carried in a response's Status byte.
const (
	PDUStatusSuccess                   byte = 0x00
	PDUStatusUnsupportedPDU            byte = 0x01
	PDUStatusMaxProcedures             byte = 0x02
	PDUStatusInsufficientAuthorization byte = 0x03
	PDUStatusInvalidRequest            byte = 0x04
	PDUStatusInsufficientResources     byte = 0x05
	PDUStatusNotificationNotSupported  byte = 0x06
	PDUStatusInvalidValueInWrite       byte = 0x07
)

// readTimeoutMillis is the window, per spec.md §4.7, within which a GATT read
// must follow the write that produced its response.
const readTimeoutMillis = 10_000

// Deps is everything the BLE transport needs from the rest of the core,
// the BLE-side twin of internal/transport/http's Deps.
type Deps struct {
	DB            *model.Database
	PairingStore  *pairing.Store
	Subscriptions *session.SubscriptionManager
	System        platform.System
	Log           *logrus.Entry

	AccessoryPairingID string
	AccessoryLTPK      ed25519.PublicKey
	AccessoryLTSK      ed25519.PrivateKey
	SetupCode          string
	RateLimiter        pairing.RateLimiter

	OnValueChange func(session.ValueChange)

	DeviceID string // 6-byte accessory identifier, advertising's DeviceID field
	SetupID  string // 4-character Setup ID, advertising's SetupHash input
	ACID     uint16 // Accessory Category Identifier
}

// storedWrite is a CharacteristicTimedWrite's buffered body, applied on a
// matching CharacteristicExecuteWrite.
type storedWrite struct {
	tid        byte
	body       []byte
	deadlineMS int64
}

// connState is the BLE-side per-connection context, tracking the one
// reassembly-in-flight-per-attribute buffers HAP-BLE's serialized
// procedure model allows, the pairing engines, and the GATT
// response-via-read bookkeeping.
type connState struct {
	mu sync.Mutex

	ctx *session.Context

	reassemble map[string]*Reassembler
	pending    map[string][]byte
	lastWrite  map[string]int64
	timed      map[uint16]storedWrite

	setup  *pairing.SetupEngine
	verify *pairing.VerifyEngine

	sharedSecret   []byte
	controllerLTPK []byte
	broadcastKey   []byte
	broadcastGSN   uint16
}

func newConnState(ctx *session.Context) *connState {
	return &connState{
		ctx:        ctx,
		reassemble: map[string]*Reassembler{},
		pending:    map[string][]byte{},
		lastWrite:  map[string]int64{},
		timed:      map[uint16]storedWrite{},
	}
}

// Server builds the GATT layout from a Deps' accessory database and
// dispatches every BLE procedure against it.
type Server struct {
	deps *Deps
	log  *logrus.Entry

	mu    sync.Mutex
	conns map[string]*connState
}

// NewServer creates a Server ready to build its GATT layout.
func NewServer(deps *Deps) *Server {
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{deps: deps, log: log.WithField("transport", "ble"), conns: map[string]*connState{}}
}

// HandleConnect registers a new connection, called by the platform.Ble
// adapter's own connect callback before any GATT traffic arrives.
func (s *Server) HandleConnect(connID, remoteAddr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[connID] = newConnState(session.NewContext(connID, "ble", remoteAddr))
}

// HandleDisconnect tears down connID's state and releases its
// subscriptions, called by the platform.Ble adapter's disconnect callback.
func (s *Server) HandleDisconnect(connID string) {
	s.mu.Lock()
	cs, ok := s.conns[connID]
	delete(s.conns, connID)
	s.mu.Unlock()
	if ok && s.deps.Subscriptions != nil {
		s.deps.Subscriptions.RemoveConnection(cs.ctx)
	}
}

func (s *Server) connState(connID string) *connState {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.conns[connID]
	if !ok {
		cs = newConnState(session.NewContext(connID, "ble", ""))
		s.conns[connID] = cs
	}
	return cs
}

// BuildGATTServices renders the accessory database plus the mandatory
// Pairing and Protocol Information services into platform.GATTService
// entries, per spec.md §4.7's GATT layout.
func (s *Server) BuildGATTServices() []platform.GATTService {
	var out []platform.GATTService
	out = append(out, s.buildPairingService())
	out = append(out, s.buildProtocolInformationService())

	for _, acc := range s.deps.DB.Accessories() {
		for _, svc := range acc.Services {
			out = append(out, s.buildServiceAttributes(acc.AID, svc))
		}
	}
	return out
}

func serviceInstanceIDCharacteristic(iid uint16) platform.GATTCharacteristic {
	return platform.GATTCharacteristic{
		UUID:       model.FullUUID(ServiceInstanceIDCharType),
		Properties: 0,
		OnRead: func(string) ([]byte, error) {
			return le16(iid), nil
		},
	}
}

func le16(v uint16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}
