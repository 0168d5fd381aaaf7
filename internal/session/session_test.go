package session

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKeys() (readKey, writeKey []byte) {
	readKey = bytes.Repeat([]byte{0x11}, 32)
	writeKey = bytes.Repeat([]byte{0x22}, 32)
	return
}

func TestSecureSessionRoundTrip(t *testing.T) {
	aRead, aWrite := testKeys()
	// The controller's view has the keys swapped relative to the accessory's.
	accessory := NewSecureSession(aRead, aWrite)
	controller := NewSecureSession(aWrite, aRead)

	msg := bytes.Repeat([]byte("hello hap "), 200) // > 1024 bytes, forces multiple frames

	sealed, err := accessory.EncryptMessage(msg)
	require.NoError(t, err)

	dec := NewDecoder(controller)
	frames, err := dec.Feed(sealed)
	require.NoError(t, err)

	var got []byte
	for _, f := range frames {
		got = append(got, f...)
	}
	require.Equal(t, msg, got)
}

func TestSecureSessionPartialFeed(t *testing.T) {
	aRead, aWrite := testKeys()
	accessory := NewSecureSession(aRead, aWrite)
	controller := NewSecureSession(aWrite, aRead)

	sealed, err := accessory.EncryptMessage([]byte("split me"))
	require.NoError(t, err)

	dec := NewDecoder(controller)
	frames, err := dec.Feed(sealed[:3])
	require.NoError(t, err)
	require.Empty(t, frames)

	frames, err = dec.Feed(sealed[3:])
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("split me")}, frames)
}

func TestSecureSessionAuthFailureClearsBuffer(t *testing.T) {
	aRead, aWrite := testKeys()
	accessory := NewSecureSession(aRead, aWrite)
	wrongWriteKey := bytes.Repeat([]byte{0x33}, 32)
	controller := NewSecureSession(aWrite, wrongWriteKey)

	sealed, err := accessory.EncryptMessage([]byte("tampered"))
	require.NoError(t, err)

	dec := NewDecoder(controller)
	_, err = dec.Feed(sealed)
	require.ErrorIs(t, err, ErrSessionAuthFailed)
	require.Empty(t, dec.buf)
}

func TestSubscriptionManagerFanoutExcludesSourceConnection(t *testing.T) {
	mgr := NewSubscriptionManager(nil)
	key := CharKey{AID: 1, IID: 10}

	a := NewContext("conn-a", "ip", "10.0.0.1")
	b := NewContext("conn-b", "ip", "10.0.0.2")
	mgr.Subscribe(a, key)
	mgr.Subscribe(b, key)

	sourceA := "conn-a"
	out := mgr.Fanout(ValueChange{Key: key, Value: []byte{1}, SourceConnectionID: &sourceA})
	require.Len(t, out, 1)
	require.Equal(t, "conn-b", out[0].ID)
}

func TestSubscriptionManagerFanoutApplicationOriginatedIncludesAll(t *testing.T) {
	mgr := NewSubscriptionManager(nil)
	key := CharKey{AID: 1, IID: 10}

	a := NewContext("conn-a", "ip", "10.0.0.1")
	b := NewContext("conn-b", "ip", "10.0.0.2")
	mgr.Subscribe(a, key)
	mgr.Subscribe(b, key)

	out := mgr.Fanout(ValueChange{Key: key, Value: []byte{1}, SourceConnectionID: nil})
	require.Len(t, out, 2)
}

func TestSubscriptionManagerRemoveConnection(t *testing.T) {
	mgr := NewSubscriptionManager(nil)
	key := CharKey{AID: 1, IID: 10}
	a := NewContext("conn-a", "ip", "10.0.0.1")
	mgr.Subscribe(a, key)
	require.True(t, mgr.HasSubscribers(key))

	mgr.RemoveConnection(a)
	require.False(t, mgr.HasSubscribers(key))
}
