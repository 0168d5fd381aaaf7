package session

import "sync"

// CharKey identifies a single characteristic by its (accessory ID,
// instance ID) pair, the unit subscriptions and value changes are keyed
// on throughout the core.
type CharKey struct {
	AID uint64
	IID uint16
}

// PendingWrite is a `/prepare`d timed-write transaction awaiting its
// matching `pid` on a subsequent `PUT /characteristics`.
type PendingWrite struct {
	PID        uint64
	Expiration int64 // platform.System.MonotonicMillis() deadline
}

// Context is the per-connection state spec.md §3 describes: the optional
// secure session, the authenticated controller identity once Pair Verify
// succeeds, the subscription set, and any pending timed write.
type Context struct {
	mu sync.Mutex

	ID         string
	Transport  string // "ip" or "ble"
	RemoteAddr string

	session       *SecureSession
	controllerID  string
	admin         bool
	subscriptions map[CharKey]bool
	pending       *PendingWrite
	closeRequested bool
}

// NewContext creates a fresh, unauthenticated connection context.
func NewContext(id, transport, remoteAddr string) *Context {
	return &Context{ID: id, Transport: transport, RemoteAddr: remoteAddr}
}

// InstallSession attaches the secure session and authenticated identity
// produced by a completed Pair Verify M4.
func (c *Context) InstallSession(sess *SecureSession, controllerID string, admin bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = sess
	c.controllerID = controllerID
	c.admin = admin
}

// Session returns the established secure session, or nil if Pair Verify
// has not yet completed on this connection.
func (c *Context) Session() *SecureSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// IsEncrypted reports whether a secure session is installed.
func (c *Context) IsEncrypted() bool {
	return c.Session() != nil
}

// ControllerID returns the authenticated controller identifier, if any.
func (c *Context) ControllerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controllerID
}

// IsAdmin reports whether the authenticated controller holds admin
// permission.
func (c *Context) IsAdmin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admin
}

// SetPending records a `/prepare`d timed-write transaction, replacing any
// earlier one.
func (c *Context) SetPending(p *PendingWrite) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = p
}

// TakePending returns and clears the pending timed-write transaction if
// its pid matches and it has not expired as of nowMillis.
func (c *Context) TakePending(pid uint64, nowMillis int64) (*PendingWrite, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pending
	if p == nil || p.PID != pid {
		return nil, false
	}
	c.pending = nil
	if nowMillis > p.Expiration {
		return nil, false
	}
	return p, true
}

// RequestClose marks the connection for teardown, e.g. after an AEAD
// authentication failure on an established session (spec.md §8: fatal).
func (c *Context) RequestClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeRequested = true
}

// CloseRequested reports whether RequestClose has been called.
func (c *Context) CloseRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeRequested
}

func (c *Context) addSubscription(key CharKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscriptions == nil {
		c.subscriptions = map[CharKey]bool{}
	}
	c.subscriptions[key] = true
}

func (c *Context) removeSubscription(key CharKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, key)
}

func (c *Context) subscribedKeys() []CharKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CharKey, 0, len(c.subscriptions))
	for k := range c.subscriptions {
		out = append(out, k)
	}
	return out
}

// IsSubscribed reports whether the connection currently subscribes to key.
func (c *Context) IsSubscribed(key CharKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriptions[key]
}
