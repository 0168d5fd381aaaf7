// Package bleperipheral implements platform.Ble on top of github.com/go-ble/ble's
// peripheral role: it turns the GATT service table internal/transport/ble.Server
// builds into an actual advertised radio, the Go-native counterpart to the
// HomeKit accessory's BLE HCI front end.
package bleperipheral

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"

	"github.com/srg/hapd/internal/groutine"
	"github.com/srg/hapd/internal/platform"
)

// appleCompanyID is the Bluetooth SIG company identifier HAP-BLE manufacturer
// data advertisements are prefixed with.
const appleCompanyID = 0x004C

// DeviceFactory creates the ble.Device the adapter advertises and serves
// GATT requests on; overridable in tests.
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}

// Adapter is a platform.Ble backed by one go-ble/ble peripheral device.
type Adapter struct {
	log *logrus.Entry

	mu        sync.Mutex
	notifiers map[string]ble.Notifier // connID + "/" + charUUID -> notifier
	advCancel context.CancelFunc
}

// New brings up the default BLE device in peripheral mode.
func New(log *logrus.Entry) (*Adapter, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("bleperipheral: open device: %w", err)
	}
	ble.SetDefaultDevice(dev)
	return &Adapter{
		log:       log,
		notifiers: make(map[string]ble.Notifier),
	}, nil
}

var _ platform.Ble = (*Adapter)(nil)

// RegisterServices replaces the radio's GATT table with services. It must be
// called before StartAdvertising.
func (a *Adapter) RegisterServices(services []platform.GATTService) error {
	if err := ble.RemoveAllServices(); err != nil {
		return fmt.Errorf("bleperipheral: clear existing services: %w", err)
	}
	for _, svc := range services {
		uuid, err := ble.Parse(svc.UUID)
		if err != nil {
			return fmt.Errorf("bleperipheral: parse service UUID %q: %w", svc.UUID, err)
		}
		s := ble.NewService(uuid)
		for _, ch := range svc.Characteristics {
			if err := a.addCharacteristic(s, svc.UUID, ch); err != nil {
				return err
			}
		}
		if err := ble.AddService(s); err != nil {
			return fmt.Errorf("bleperipheral: add service %q: %w", svc.UUID, err)
		}
	}
	return nil
}

// addCharacteristic wires one GATTCharacteristic's read/write/notify hooks
// onto a freshly-created ble.Characteristic. HAP-BLE PDUs travel over a
// single write-then-read exchange regardless of the HAP-level permission
// bits carried in ch.Properties, so every characteristic gets the same ATT
// property set; HAP's own access control runs inside OnRead/OnWrite.
func (a *Adapter) addCharacteristic(s *ble.Service, serviceUUID string, ch platform.GATTCharacteristic) error {
	uuid, err := ble.Parse(ch.UUID)
	if err != nil {
		return fmt.Errorf("bleperipheral: parse characteristic UUID %q: %w", ch.UUID, err)
	}
	c := ble.NewCharacteristic(uuid)
	c.Property = ble.CharRead | ble.CharWrite | ble.CharIndicate

	charUUID := ch.UUID
	if ch.OnRead != nil {
		c.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
			connID := connIDOf(req)
			data, err := ch.OnRead(connID)
			if err != nil {
				a.log.WithError(err).WithField("char", charUUID).Debug("read handler failed")
				return
			}
			_, _ = rsp.Write(data)
		}))
	}
	if ch.OnWrite != nil {
		c.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
			connID := connIDOf(req)
			if err := ch.OnWrite(connID, req.Data()); err != nil {
				a.log.WithError(err).WithField("char", charUUID).Debug("write handler failed")
			}
		}))
	}
	c.HandleNotify(ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
		connID := connIDOf(req)
		key := notifierKey(connID, charUUID)
		a.mu.Lock()
		a.notifiers[key] = n
		a.mu.Unlock()
		<-n.Context().Done()
		a.mu.Lock()
		delete(a.notifiers, key)
		a.mu.Unlock()
	}))

	for name, value := range ch.Descriptors {
		dUUID, err := ble.Parse(name)
		if err != nil {
			return fmt.Errorf("bleperipheral: parse descriptor UUID %q: %w", name, err)
		}
		c.NewDescriptor(dUUID).SetValue(value)
	}

	s.AddCharacteristic(c)
	return nil
}

func connIDOf(req ble.Request) string {
	return req.Conn().RemoteAddr().String()
}

func notifierKey(connID, charUUID string) string {
	return connID + "/" + charUUID
}

// StartAdvertising broadcasts data at the slow (Disconnected Mode) interval
// until StopAdvertising or another StartAdvertising* call replaces it.
func (a *Adapter) StartAdvertising(data []byte) error {
	return a.advertise(data, 0, nil)
}

// StartAdvertisingFast broadcasts data at the fast (Connected/event)
// interval for duration, then switches to thenSlow. go-ble's high-level
// AdvertiseMfgData doesn't expose per-call HCI interval tuning, so the
// "fast" distinction here is the duration window before the payload swaps,
// not an actual faster advertising interval.
func (a *Adapter) StartAdvertisingFast(data []byte, duration time.Duration, thenSlow []byte) error {
	return a.advertise(data, duration, thenSlow)
}

func (a *Adapter) advertise(data []byte, fastFor time.Duration, thenSlow []byte) error {
	a.mu.Lock()
	if a.advCancel != nil {
		a.advCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.advCancel = cancel
	a.mu.Unlock()

	groutine.Go(ctx, "ble-peripheral-advertise", func(ctx context.Context) {
		if err := ble.AdvertiseMfgData(ctx, appleCompanyID, data); err != nil && ctx.Err() == nil {
			a.log.WithError(err).Warn("advertising failed")
		}
	})

	if fastFor > 0 && thenSlow != nil {
		time.AfterFunc(fastFor, func() {
			// ctx is cancelled once StopAdvertising or a newer advertise
			// call replaces this advertisement.
			stillCurrent := ctx.Err() == nil
			if stillCurrent {
				_ = a.advertise(thenSlow, 0, nil)
			}
		})
	}
	return nil
}

// StopAdvertising halts any in-flight advertisement.
func (a *Adapter) StopAdvertising() error {
	a.mu.Lock()
	if a.advCancel != nil {
		a.advCancel()
		a.advCancel = nil
	}
	a.mu.Unlock()
	return nil
}

// Notify sends a zero-length Connected Event; HAP-BLE event characteristics
// carry no payload, the controller follows up with its own read.
func (a *Adapter) Notify(connID string, serviceUUID, charUUID string) error {
	a.mu.Lock()
	n, ok := a.notifiers[notifierKey(connID, charUUID)]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("bleperipheral: no active subscription for %s on %s", charUUID, connID)
	}
	_, err := n.Write(nil)
	return err
}

// Disconnect drops every notifier associated with connID; go-ble itself owns
// the underlying link teardown once its notify loops observe the closed
// context.
func (a *Adapter) Disconnect(connID string) error {
	prefix := connID + "/"
	a.mu.Lock()
	for key := range a.notifiers {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(a.notifiers, key)
		}
	}
	a.mu.Unlock()
	return nil
}
