package http

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/sirupsen/logrus"

	"github.com/srg/hapd/internal/pairing"
	"github.com/srg/hapd/internal/platform"
	"github.com/srg/hapd/internal/session"
)

type ctxKey int

const connCtxKey ctxKey = 0

func withConn(ctx context.Context, c *Conn) context.Context {
	return context.WithValue(ctx, connCtxKey, c)
}

func connFromRequest(r *http.Request) *Conn {
	c, _ := r.Context().Value(connCtxKey).(*Conn)
	return c
}

// Conn adapts one accepted platform.Conn into the HTTP transport pipeline:
// decrypt (if a session is established) -> parse message boundaries ->
// route -> encrypt (if established) -> send. It also owns the connection's
// Pair Setup/Verify engine instances for the lifetime of a handshake,
// since those are inherently per-connection state.
type Conn struct {
	raw     platform.Conn
	Ctx     *session.Context
	parser  *Parser
	decoder *session.Decoder
	router  http.Handler
	deps    *Deps
	log     *logrus.Entry

	SetupEngine  *pairing.SetupEngine
	VerifyEngine *pairing.VerifyEngine
}

// NewConn wires raw's receive/close callbacks into the pipeline and
// returns the adapter.
func NewConn(raw platform.Conn, deps *Deps, router http.Handler) *Conn {
	c := &Conn{
		raw:    raw,
		Ctx:    session.NewContext(raw.ID(), "ip", raw.RemoteAddr()),
		parser: NewParser(),
		router: router,
		deps:   deps,
		log:    deps.Log.WithField("conn", raw.ID()),
	}
	raw.OnReceive(c.onReceive)
	raw.OnClose(c.onClose)
	return c
}

func (c *Conn) onReceive(data []byte) {
	var chunks [][]byte
	if c.Ctx.IsEncrypted() {
		if c.decoder == nil {
			c.decoder = session.NewDecoder(c.Ctx.Session())
		}
		frames, err := c.decoder.Feed(data)
		chunks = frames
		if err != nil {
			// spec.md §8: an AEAD failure on an established secure session
			// is fatal, the connection is closed.
			c.log.WithError(err).Warn("secure session authentication failed, closing connection")
			_ = c.raw.Close()
			return
		}
	} else {
		chunks = [][]byte{data}
	}

	for _, chunk := range chunks {
		for _, raw := range c.parser.Feed(chunk) {
			c.handleMessage(raw)
		}
	}

	if c.Ctx.CloseRequested() {
		_ = c.raw.Close()
	}
}

func (c *Conn) onClose() {
	c.deps.Subscriptions.RemoveConnection(c.Ctx)
	if c.deps.OnDisconnect != nil {
		c.deps.OnDisconnect(c.Ctx.ID)
	}
}

func (c *Conn) handleMessage(raw []byte) {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		c.log.WithError(err).Debug("malformed HTTP request, dropping frame")
		return
	}
	req = req.WithContext(withConn(req.Context(), c))

	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	resp := rec.Result()

	var out bytes.Buffer
	_ = resp.Write(&out)
	c.send(out.Bytes())
}

func (c *Conn) send(plaintext []byte) {
	if c.Ctx.IsEncrypted() {
		sealed, err := c.Ctx.Session().EncryptMessage(plaintext)
		if err != nil {
			c.log.WithError(err).Error("failed to encrypt response")
			return
		}
		if err := c.raw.Send(sealed); err != nil {
			c.log.WithError(err).Debug("send failed")
		}
		return
	}
	if err := c.raw.Send(plaintext); err != nil {
		c.log.WithError(err).Debug("send failed")
	}
}

// PushEvent sends an unsolicited `EVENT/1.0 200 OK` message, encrypted if
// the connection is encrypted (it always is, by the time it can be
// subscribed — spec.md §4.6).
func (c *Conn) PushEvent(body []byte) {
	var buf bytes.Buffer
	buf.WriteString("EVENT/1.0 200 OK\r\n")
	buf.WriteString("Content-Type: application/hap+json\r\n")
	buf.WriteString("Content-Length: ")
	buf.WriteString(itoa(len(body)))
	buf.WriteString("\r\n\r\n")
	buf.Write(body)
	c.send(buf.Bytes())
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
