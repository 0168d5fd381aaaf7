// Package platform declares the external collaborators the host application
// supplies: monotonic time and randomness, byte-blob persistence, and the
// TCP/mDNS/BLE transports. It declares no crypto or logging interface: the
// core calls internal/hapcrypto directly and logs through logrus.
// This package holds interfaces only — concrete socket/mDNS/BLE radio code
// is out of scope per spec.md §1.
package platform

import (
	"context"
	"time"
)

// System provides monotonic time and secure randomness; it has no logging
// method.
type System interface {
	MonotonicMillis() int64
	RandomBytes(n int) ([]byte, error)
}

// Storage is a byte-blob key/value store. Keys used by the core are listed
// in spec.md §6: accessory_ltpk, accessory_ltsk, pairing_<id>, pairing_list,
// config_number, setup_id, gsn, iid_map, iid_next, db_hash.
type Storage interface {
	Set(key string, value []byte) error
	Get(key string) ([]byte, bool, error)
	Remove(key string) error
	Has(key string) (bool, error)
}

// Network publishes/updates mDNS and runs the TCP listener for the IP
// transport.
type Network interface {
	PublishMDNS(ctx context.Context, service MDNSRecord) error
	UpdateMDNS(ctx context.Context, service MDNSRecord) error

	Listen(ctx context.Context, port int, onAccept func(conn Conn)) error
}

// MDNSRecord is the set of fields the accessory publishes under `_hap._tcp`.
type MDNSRecord struct {
	Name string
	Port int
	TXT  map[string]string
}

// Conn is a single accepted IP connection, delivering bytes and disconnect
// notifications via callbacks rather than blocking reads, matching spec.md
// §5's callback-driven concurrency model.
type Conn interface {
	ID() string
	RemoteAddr() string
	Send(data []byte) error
	Close() error
	OnReceive(fn func(data []byte))
	OnClose(fn func())
}

// Ble registers GATT services and controls advertising for the BLE
// transport.
type Ble interface {
	RegisterServices(services []GATTService) error
	StartAdvertising(data []byte) error
	StartAdvertisingFast(data []byte, duration time.Duration, thenSlow []byte) error
	StopAdvertising() error
	Notify(connID string, serviceUUID, charUUID string) error
	Disconnect(connID string) error
}

// GATTService describes one GATT service to register with the radio stack.
type GATTService struct {
	UUID            string
	Characteristics []GATTCharacteristic
}

// GATTCharacteristic describes one GATT characteristic and its callbacks.
type GATTCharacteristic struct {
	UUID        string
	Properties  int
	OnRead      func(connID string) ([]byte, error)
	OnWrite     func(connID string, data []byte) error
	Descriptors map[string][]byte
}
