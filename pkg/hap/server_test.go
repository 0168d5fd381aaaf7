package hap

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/srg/hapd/internal/model"
	"github.com/srg/hapd/internal/platform"
)

type memStorage struct{ m map[string][]byte }

func newMemStorage() *memStorage { return &memStorage{m: map[string][]byte{}} }

func (s *memStorage) Set(key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	s.m[key] = v
	return nil
}
func (s *memStorage) Get(key string) ([]byte, bool, error) {
	v, ok := s.m[key]
	return v, ok, nil
}
func (s *memStorage) Remove(key string) error {
	delete(s.m, key)
	return nil
}
func (s *memStorage) Has(key string) (bool, error) {
	_, ok := s.m[key]
	return ok, nil
}

type fakeSystem struct{}

func (fakeSystem) MonotonicMillis() int64           { return 0 }
func (fakeSystem) RandomBytes(n int) ([]byte, error) { return make([]byte, n), nil }

type fakeNetwork struct {
	accepted func(conn platform.Conn)
}

func (f *fakeNetwork) PublishMDNS(context.Context, platform.MDNSRecord) error { return nil }
func (f *fakeNetwork) UpdateMDNS(context.Context, platform.MDNSRecord) error  { return nil }
func (f *fakeNetwork) Listen(ctx context.Context, _ int, onAccept func(conn platform.Conn)) error {
	f.accepted = onAccept
	<-ctx.Done()
	return nil
}

var _ platform.Network = (*fakeNetwork)(nil)

type fakeBle struct {
	registered     []platform.GATTService
	advertised     [][]byte
	advertisedFast [][]byte
}

func (f *fakeBle) RegisterServices(services []platform.GATTService) error {
	f.registered = services
	return nil
}
func (f *fakeBle) StartAdvertising(data []byte) error {
	f.advertised = append(f.advertised, data)
	return nil
}
func (f *fakeBle) StartAdvertisingFast(data []byte, _ time.Duration, _ []byte) error {
	f.advertisedFast = append(f.advertisedFast, data)
	return nil
}
func (f *fakeBle) StopAdvertising() error              { return nil }
func (f *fakeBle) Notify(string, string, string) error { return nil }
func (f *fakeBle) Disconnect(string) error              { return nil }

var _ platform.Ble = (*fakeBle)(nil)

func testAccessory() *model.Accessory {
	return &model.Accessory{AID: 1, Services: []*model.Service{
		{
			Type: model.AccessoryInformationType,
			Characteristics: []*model.Characteristic{
				{Type: 0x23, Format: model.FormatString, Perms: model.Permissions{model.PermPairedRead}, Value: model.Value{Format: model.FormatString, Str: "Test"}},
			},
		},
		{
			Type: 0x43, // Lightbulb
			Characteristics: []*model.Characteristic{
				{Type: 0x25, Format: model.FormatBool, Perms: model.Permissions{model.PermPairedRead, model.PermPairedWrite, model.PermNotify}, Value: model.Value{Format: model.FormatBool, Bool: false}},
			},
		},
	}}
}

func testConfig(storage platform.Storage, network platform.Network, ble platform.Ble) Config {
	return Config{
		AccessoryPairingID: "11:22:33:44:55:66",
		SetupCode:          "031-45-154",
		Category:           5,
		Model:              "hapd-test",
		HTTPPort:           51826,
		BLEEnabled:         ble != nil,
		Storage:            storage,
		System:             fakeSystem{},
		Network:            network,
		Ble:                ble,
		Log:                logrus.New(),
	}
}

func TestNewGeneratesAndPersistsLongTermIdentity(t *testing.T) {
	storage := newMemStorage()

	s1, err := New(testConfig(storage, &fakeNetwork{}, nil))
	require.NoError(t, err)

	s2, err := New(testConfig(storage, &fakeNetwork{}, nil))
	require.NoError(t, err)

	require.Equal(t, s1.accessoryLTPK, s2.accessoryLTPK)
	require.Equal(t, s1.accessoryLTSK, s2.accessoryLTSK)
	require.Equal(t, s1.cfg.SetupID, s2.cfg.SetupID)
	require.Len(t, s1.cfg.SetupID, 4)
}

func TestStartFailsWithoutAccessories(t *testing.T) {
	s, err := New(testConfig(newMemStorage(), &fakeNetwork{}, nil))
	require.NoError(t, err)

	err = s.Start(context.Background())
	require.Error(t, err)
}

func TestStartRegistersGATTServicesAndAdvertises(t *testing.T) {
	storage := newMemStorage()
	ble := &fakeBle{}
	s, err := New(testConfig(storage, &fakeNetwork{}, ble))
	require.NoError(t, err)
	require.NoError(t, s.AddAccessory(testAccessory()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	require.NotEmpty(t, ble.registered)
	require.Len(t, ble.advertised, 1)
}

func TestBroadcastEventUpdatesValueAndReportsMissingCharacteristic(t *testing.T) {
	storage := newMemStorage()
	ble := &fakeBle{}
	s, err := New(testConfig(storage, &fakeNetwork{}, ble))
	require.NoError(t, err)
	require.NoError(t, s.AddAccessory(testAccessory()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	acc := s.db.Accessories()[0]
	var onIID uint16
	for _, svc := range acc.Services {
		if svc.Type == 0x43 {
			onIID = svc.Characteristics[0].IID
		}
	}
	require.NotZero(t, onIID)

	require.NoError(t, s.BroadcastEvent(1, onIID, model.Value{Format: model.FormatBool, Bool: true}))
	_, _, ch, ok := s.db.Find(1, onIID)
	require.True(t, ok)
	require.True(t, ch.Value.Bool)

	// No BLE subscribers and no active broadcast key, so the value change
	// falls through to a Disconnected Event (re-advertise at the fast rate).
	require.NotEmpty(t, ble.advertisedFast)

	var notFound *model.NotFoundError
	err = s.BroadcastEvent(1, 0xFFFF, model.Value{Format: model.FormatBool, Bool: true})
	require.ErrorAs(t, err, &notFound)
}

func TestReconcileConfigNumberStableWithoutStructuralChange(t *testing.T) {
	storage := newMemStorage()
	s, err := New(testConfig(storage, &fakeNetwork{}, nil))
	require.NoError(t, err)
	require.NoError(t, s.AddAccessory(testAccessory()))

	require.NoError(t, s.reconcileConfigNumberLocked())
	first := s.configNumber
	require.NoError(t, s.reconcileConfigNumberLocked())
	require.Equal(t, first, s.configNumber)
}
