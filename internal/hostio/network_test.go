package hostio

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/srg/hapd/internal/platform"
)

func freePort(t *testing.T) int {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestNetworkListenAcceptsConnectionsAndDeliversReceivedData(t *testing.T) {
	n := NewNetwork(logrus.NewEntry(logrus.New()))
	port := freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	accepted := make(chan platform.Conn, 1)
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- n.Listen(ctx, port, func(c platform.Conn) {
			accepted <- c
		})
	}()

	// Give the accept loop a moment to start listening before dialing.
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	var acceptedConn platform.Conn
	select {
	case acceptedConn = <-accepted:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for accept")
	}
	require.NotEmpty(t, acceptedConn.ID())

	received := make(chan []byte, 1)
	acceptedConn.OnReceive(func(data []byte) { received <- data })

	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)

	select {
	case data := <-received:
		require.Equal(t, []byte("hello"), data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for data")
	}

	cancel()
	select {
	case err := <-listenErr:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Listen to return")
	}
}

