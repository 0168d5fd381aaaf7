package bleperipheral

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNewReturnsErrorWhenDeviceFactoryFails(t *testing.T) {
	orig := DeviceFactory
	defer func() { DeviceFactory = orig }()

	DeviceFactory = func() (ble.Device, error) {
		return nil, errors.New("no adapter")
	}

	_, err := New(logrus.NewEntry(logrus.New()))
	require.Error(t, err)
	require.Contains(t, err.Error(), "no adapter")
}

func TestNotifierKeyIsScopedByConnectionAndCharacteristic(t *testing.T) {
	require.Equal(t, "conn1/char1", notifierKey("conn1", "char1"))
	require.NotEqual(t, notifierKey("conn1", "char1"), notifierKey("conn2", "char1"))
}

func TestDisconnectOnlyDropsNotifiersForThatConnection(t *testing.T) {
	a := &Adapter{log: logrus.NewEntry(logrus.New()), notifiers: map[string]ble.Notifier{}}
	a.notifiers[notifierKey("conn1", "charA")] = nil
	a.notifiers[notifierKey("conn1", "charB")] = nil
	a.notifiers[notifierKey("conn2", "charA")] = nil

	require.NoError(t, a.Disconnect("conn1"))

	require.Len(t, a.notifiers, 1)
	_, ok := a.notifiers[notifierKey("conn2", "charA")]
	require.True(t, ok)
}

func TestStopAdvertisingCancelsInFlightAdvertisement(t *testing.T) {
	a := &Adapter{log: logrus.NewEntry(logrus.New())}
	cancelled := false
	_, cancel := context.WithCancel(context.Background())
	a.advCancel = func() { cancelled = true; cancel() }

	require.NoError(t, a.StopAdvertising())
	require.True(t, cancelled)
	require.Nil(t, a.advCancel)
}

func TestNotifyFailsWithoutActiveSubscription(t *testing.T) {
	a := &Adapter{log: logrus.NewEntry(logrus.New()), notifiers: map[string]ble.Notifier{}}

	err := a.Notify("conn1", "svc", "char")
	require.Error(t, err)
}
