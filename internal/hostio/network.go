package hostio

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/hapd/internal/groutine"
	"github.com/srg/hapd/internal/platform"
)

// Network is a real net.Listen-backed platform.Network. mDNS has no actual
// responder here: spec.md §6 treats advertisement as an external
// collaborator's job (avahi/dns-sd/Bonjour), so PublishMDNS/UpdateMDNS only
// log the record an external responder would be fed.
type Network struct {
	log *logrus.Entry
}

// NewNetwork returns a Network that logs every mDNS record transition at log.
func NewNetwork(log *logrus.Entry) *Network {
	return &Network{log: log}
}

func (n *Network) PublishMDNS(_ context.Context, service platform.MDNSRecord) error {
	n.log.WithFields(logrus.Fields{"name": service.Name, "port": service.Port, "txt": service.TXT}).
		Info("mDNS record published (external responder required to broadcast it)")
	return nil
}

func (n *Network) UpdateMDNS(_ context.Context, service platform.MDNSRecord) error {
	n.log.WithFields(logrus.Fields{"name": service.Name, "port": service.Port, "txt": service.TXT}).
		Info("mDNS record updated")
	return nil
}

// Listen accepts TCP connections on port until ctx is cancelled, handing
// each to onAccept as soon as the handshake completes.
func (n *Network) Listen(ctx context.Context, port int, onAccept func(conn platform.Conn)) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("hostio: listen on port %d: %w", port, err)
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("hostio: accept: %w", err)
		}
		onAccept(newTCPConn(nc, n.log))
	}
}

type tcpConn struct {
	nc  net.Conn
	id  string
	log *logrus.Entry

	mu        sync.Mutex
	onReceive func([]byte)
	onClose   func()
	closeOnce sync.Once
}

func newTCPConn(nc net.Conn, log *logrus.Entry) *tcpConn {
	c := &tcpConn{nc: nc, id: randomConnID(), log: log}
	groutine.Go(context.Background(), "hostio-conn-read-"+c.id, c.readLoop)
	return c
}

func randomConnID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func (c *tcpConn) readLoop(_ context.Context) {
	buf := make([]byte, 4096)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			c.mu.Lock()
			fn := c.onReceive
			c.mu.Unlock()
			if fn != nil {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				fn(chunk)
			}
		}
		if err != nil {
			c.fireClose()
			return
		}
	}
}

func (c *tcpConn) fireClose() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		fn := c.onClose
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

func (c *tcpConn) ID() string          { return c.id }
func (c *tcpConn) RemoteAddr() string  { return c.nc.RemoteAddr().String() }
func (c *tcpConn) Send(data []byte) error {
	_, err := c.nc.Write(data)
	return err
}
func (c *tcpConn) Close() error {
	err := c.nc.Close()
	c.fireClose()
	return err
}
func (c *tcpConn) OnReceive(fn func(data []byte)) {
	c.mu.Lock()
	c.onReceive = fn
	c.mu.Unlock()
}
func (c *tcpConn) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

var _ platform.Conn = (*tcpConn)(nil)
var _ platform.Network = (*Network)(nil)
