// Package hap is the public accessory-builder API: it wires the attribute
// database, pairing store, secure sessions, and the HTTP/BLE/mDNS
// transports into one running accessory, the role AccessoryServer.hpp/.cpp
// played in the original implementation.
package hap

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/srg/hapd/internal/groutine"
	"github.com/srg/hapd/internal/hapcrypto"
	"github.com/srg/hapd/internal/mdns"
	"github.com/srg/hapd/internal/model"
	"github.com/srg/hapd/internal/pairing"
	"github.com/srg/hapd/internal/platform"
	"github.com/srg/hapd/internal/scheduler"
	"github.com/srg/hapd/internal/session"
	"github.com/srg/hapd/internal/storage"
	"github.com/srg/hapd/internal/transport/ble"
	iphttp "github.com/srg/hapd/internal/transport/http"
)

// Config carries every identity and transport setting one accessory server
// needs, the Go-native analog of AccessoryServer::Config.
type Config struct {
	AccessoryPairingID string // "XX:XX:XX:XX:XX:XX"
	SetupCode          string // "XXX-XX-XXX"
	Category           uint16
	Model              string
	HTTPPort           int

	BLEEnabled bool
	SetupID    string // 4-char Setup ID; generated and persisted if empty

	Storage platform.Storage
	System  platform.System
	Network platform.Network
	Ble     platform.Ble // nil when BLEEnabled is false

	Log *logrus.Logger
}

// Server is one running accessory: the attribute database, pairing store,
// subscription manager, and the transports built on top of them. All
// shared state is guarded by a single mutex, per spec.md §5: transport
// callbacks, scheduler ticks, and application value-change calls take it
// before touching the database or connection table and release it before
// blocking.
type Server struct {
	cfg Config
	log *logrus.Entry

	mu sync.Mutex

	db            *model.Database
	pairingStore  *pairing.Store
	subscriptions *session.SubscriptionManager

	accessoryLTPK ed25519.PublicKey
	accessoryLTSK ed25519.PrivateKey

	httpDeps *iphttp.Deps
	bleDeps  *ble.Deps
	bleSrv   *ble.Server
	advState *ble.AdvertisingState

	mdnsPub   *mdns.Publisher
	scheduler *scheduler.Scheduler

	ipConns map[string]*iphttp.Conn

	configNumber int
}

// New constructs a Server and loads (or initializes) its persisted
// identity: long-term keys, pairing store, and Setup ID. AddAccessory and
// Start still need to run before the accessory is reachable.
func New(cfg Config) (*Server, error) {
	if cfg.Log == nil {
		cfg.Log = logrus.New()
	}
	log := cfg.Log.WithField("component", "hap")

	ltpk, ltsk, err := loadOrCreateLongTermKeypair(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("hap: long-term keypair: %w", err)
	}

	pairingStore, err := pairing.NewStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("hap: pairing store: %w", err)
	}

	if cfg.SetupID == "" {
		cfg.SetupID, err = storage.LoadSetupID(cfg.Storage, cfg.System.RandomBytes)
		if err != nil {
			return nil, fmt.Errorf("hap: setup id: %w", err)
		}
	}

	return &Server{
		cfg:           cfg,
		log:           log,
		pairingStore:  pairingStore,
		subscriptions: session.NewSubscriptionManager(log),
		accessoryLTPK: ltpk,
		accessoryLTSK: ltsk,
		ipConns:       map[string]*iphttp.Conn{},
		scheduler:     scheduler.New(cfg.System, log),
	}, nil
}

// AddAccessory registers an accessory into the server's database, the
// Go-native analog of AccessoryServer::add_accessory. It must be called
// before Start.
func (s *Server) AddAccessory(a *model.Accessory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		iidMap, err := storage.LoadIIDMap(s.cfg.Storage)
		if err != nil {
			return err
		}
		nextID, err := storage.LoadIIDNext(s.cfg.Storage)
		if err != nil {
			return err
		}
		s.db = model.NewDatabase(model.NewIIDManager(iidMap, nextID))
	}
	return s.db.Register(a)
}

// Start builds the GATT/HTTP routing tables from the registered
// accessories, publishes mDNS, and brings up the IP (and, if enabled, BLE)
// transports. ctx governs the lifetime of every background goroutine Start
// spawns.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.db == nil || len(s.db.Accessories()) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("hap: no accessories registered")
	}
	if err := s.reconcileConfigNumberLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	s.httpDeps = &iphttp.Deps{
		DB:                 s.db,
		PairingStore:        s.pairingStore,
		Subscriptions:       s.subscriptions,
		System:              s.cfg.System,
		Log:                 s.log,
		AccessoryPairingID:  s.cfg.AccessoryPairingID,
		AccessoryLTPK:       s.accessoryLTPK,
		AccessoryLTSK:       s.accessoryLTSK,
		SetupCode:           s.cfg.SetupCode,
		OnValueChange:       s.onValueChange,
		OnDisconnect:        s.onIPDisconnect,
	}

	if s.cfg.BLEEnabled && s.cfg.Ble != nil {
		s.bleDeps = &ble.Deps{
			DB:                 s.db,
			PairingStore:        s.pairingStore,
			Subscriptions:       s.subscriptions,
			System:              s.cfg.System,
			Log:                 s.log,
			AccessoryPairingID:  s.cfg.AccessoryPairingID,
			AccessoryLTPK:       s.accessoryLTPK,
			AccessoryLTSK:       s.accessoryLTSK,
			SetupCode:           s.cfg.SetupCode,
			OnValueChange:       s.onValueChange,
			DeviceID:            s.cfg.AccessoryPairingID,
			SetupID:             s.cfg.SetupID,
			ACID:                s.cfg.Category,
		}
		s.bleSrv = ble.NewServer(s.bleDeps)

		gsn, err := storage.LoadGSN(s.cfg.Storage)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.advState = &ble.AdvertisingState{
			GSN:          gsn,
			DeviceID:     ble.ParseDeviceID(s.cfg.AccessoryPairingID),
			ACID:         s.cfg.Category,
			ConfigNumber: uint8(s.configNumber),
			SetupID:      s.cfg.SetupID,
			Paired:       !s.pairingStore.IsEmpty(),
		}
	}

	s.mdnsPub = mdns.NewPublisher(s.cfg.Network, "hapd", s.cfg.HTTPPort, s.log)
	router := iphttp.NewRouter(s.httpDeps)
	s.mu.Unlock()

	if err := s.publishMDNS(ctx); err != nil {
		return err
	}

	if s.bleSrv != nil {
		if err := s.cfg.Ble.RegisterServices(s.bleSrv.BuildGATTServices()); err != nil {
			return fmt.Errorf("hap: registering GATT services: %w", err)
		}
		// BuildGATTServices assigns the BLE-only synthetic IIDs; persist them.
		if err := storage.SaveIIDMap(s.cfg.Storage, s.db.IIDs()); err != nil {
			return err
		}
		if err := storage.SaveIIDNext(s.cfg.Storage, s.db.IIDs().NextID()); err != nil {
			return err
		}
		if err := s.cfg.Ble.StartAdvertising(s.renderAdvertisement()); err != nil {
			return fmt.Errorf("hap: starting BLE advertising: %w", err)
		}
	}

	groutine.Go(ctx, "hap-scheduler", func(ctx context.Context) {
		s.scheduler.RunLoop(ctx, 100*time.Millisecond)
	})

	groutine.Go(ctx, "hap-tcp-accept", func(ctx context.Context) {
		if err := s.cfg.Network.Listen(ctx, s.cfg.HTTPPort, func(raw platform.Conn) {
			conn := iphttp.NewConn(raw, s.httpDeps, router)
			s.mu.Lock()
			s.ipConns[raw.ID()] = conn
			s.mu.Unlock()
		}); err != nil {
			s.log.WithError(err).Error("hap: tcp listener stopped")
		}
	})

	return nil
}

func (s *Server) onIPDisconnect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ipConns, connID)
}

func (s *Server) renderAdvertisement() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	flags := byte(0)
	if !s.advState.Paired {
		flags = ble.StatusFlagNotPaired
	}
	return ble.Advertisement(flags, s.advState.DeviceID, s.advState.ACID, s.advState.GSN, s.advState.ConfigNumber, s.advState.SetupID)
}

// BroadcastEvent applies an application-originated value change (i.e. not
// the result of a controller's PUT /characteristics) and fans it out to
// every subscriber, the Go-native analog of AccessoryServer::broadcast_event.
func (s *Server) BroadcastEvent(aid uint64, iid uint16, v model.Value) error {
	s.mu.Lock()
	_, _, ch, ok := s.db.Find(aid, iid)
	if !ok {
		s.mu.Unlock()
		return &model.NotFoundError{Resource: "characteristic", AID: aid, IID: iid}
	}
	ch.Value = v
	raw, err := model.EncodeBinary(v)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.onValueChange(session.ValueChange{Key: session.CharKey{AID: aid, IID: iid}, Value: raw})
	return nil
}

// onValueChange is internal/transport/{http,ble}'s Deps.OnValueChange hook:
// it runs after every successful write (from either transport, or from
// BroadcastEvent), pushing the change to every other subscriber over
// whichever transport each one is connected on.
func (s *Server) onValueChange(change session.ValueChange) {
	s.pushIPEvents(change)
	s.pushBLEEvent(change)
}

func (s *Server) pushIPEvents(change session.ValueChange) {
	targets := s.subscriptions.Fanout(change)
	if len(targets) == 0 {
		return
	}
	s.mu.Lock()
	_, _, ch, ok := s.db.Find(change.Key.AID, change.Key.IID)
	s.mu.Unlock()
	if !ok {
		return
	}
	body, err := json.Marshal(eventBody{Characteristics: []eventEntry{{
		AID: change.Key.AID, IID: change.Key.IID, Value: model.ValueAsJSON(ch.Value),
	}}})
	if err != nil {
		s.log.WithError(err).Warn("hap: failed to encode event body")
		return
	}
	for _, ctx := range targets {
		if ctx.Transport != "ip" {
			continue
		}
		s.mu.Lock()
		conn, ok := s.ipConns[ctx.ID]
		s.mu.Unlock()
		if ok {
			conn.PushEvent(body)
		}
	}
}

func (s *Server) pushBLEEvent(change session.ValueChange) {
	if s.bleSrv == nil {
		return
	}
	s.mu.Lock()
	adv := s.advState
	s.mu.Unlock()
	if err := s.bleSrv.PublishChange(adv, s.cfg.Ble, change); err != nil {
		s.log.WithError(err).Warn("hap: ble event publish failed")
	}
}

type eventEntry struct {
	AID   uint64      `json:"aid"`
	IID   uint16      `json:"iid"`
	Value interface{} `json:"value"`
}

type eventBody struct {
	Characteristics []eventEntry `json:"characteristics"`
}

// reconcileConfigNumberLocked compares the database's structural hash
// against the persisted one and bumps (persists) the configuration number
// on a mismatch, per spec.md §4.2. Must be called with s.mu held.
func (s *Server) reconcileConfigNumberLocked() error {
	hash := s.db.StructuralHash()
	hexHash := fmt.Sprintf("%x", hash)

	n, err := storage.LoadConfigNumber(s.cfg.Storage)
	if err != nil {
		return err
	}
	prevHash, had, err := storage.LoadDBHash(s.cfg.Storage)
	if err != nil {
		return err
	}
	if !had || prevHash != hexHash {
		n++
		if n > 0xFFFFFF {
			n = 1
		}
		if err := storage.SaveConfigNumber(s.cfg.Storage, n); err != nil {
			return err
		}
		if err := storage.SaveDBHash(s.cfg.Storage, hexHash); err != nil {
			return err
		}
	}
	s.configNumber = n

	if err := storage.SaveIIDMap(s.cfg.Storage, s.db.IIDs()); err != nil {
		return err
	}
	return storage.SaveIIDNext(s.cfg.Storage, s.db.IIDs().NextID())
}

func (s *Server) publishMDNS(ctx context.Context) error {
	s.mu.Lock()
	f := mdns.Fields{
		ConfigNumber: uint32(s.configNumber),
		AccessoryID:  s.cfg.AccessoryPairingID,
		Model:        s.cfg.Model,
		StateNumber:  1,
		Paired:       !s.pairingStore.IsEmpty(),
		Category:     s.cfg.Category,
	}
	pub := s.mdnsPub
	s.mu.Unlock()
	return pub.Apply(ctx, f)
}

func loadOrCreateLongTermKeypair(backing platform.Storage) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	ltpk, ltsk, ok, err := storage.LoadLongTermKeypair(backing)
	if err != nil {
		return nil, nil, err
	}
	if ok {
		return ltpk, ltsk, nil
	}
	ltpk, ltsk, err = hapcrypto.GenerateLongTermKeypair()
	if err != nil {
		return nil, nil, err
	}
	if err := storage.SaveLongTermKeypair(backing, ltpk, ltsk); err != nil {
		return nil, nil, err
	}
	return ltpk, ltsk, nil
}
