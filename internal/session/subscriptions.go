package session

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ValueChange is the record a transport or the application hands to the
// orchestrator's value-change hook on every characteristic write; the hook
// runs synchronously and there is no queue. Characteristics keep no
// reference to the server.
type ValueChange struct {
	Key                CharKey
	Value              []byte
	SourceConnectionID *string // nil when the change is application-originated
}

// SubscriptionManager tracks, for every (aid,iid), the set of connections
// that hold a Notify subscription, and fans a ValueChange out to them.
// Re-purposed from the teacher's Lua-subscription manager (which tracked
// goroutines draining characteristic update channels); here the unit of
// subscription is a (aid,iid) key shared across many connections rather
// than a single connection's private channel set.
type SubscriptionManager struct {
	mu     sync.Mutex
	byKey  map[CharKey]map[string]*Context
	logger *logrus.Entry
}

// NewSubscriptionManager creates an empty manager.
func NewSubscriptionManager(logger *logrus.Entry) *SubscriptionManager {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SubscriptionManager{byKey: map[CharKey]map[string]*Context{}, logger: logger}
}

// Subscribe registers ctx's interest in key.
func (m *SubscriptionManager) Subscribe(ctx *Context, key CharKey) {
	ctx.addSubscription(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.byKey[key]
	if !ok {
		set = map[string]*Context{}
		m.byKey[key] = set
	}
	set[ctx.ID] = ctx
	m.logger.WithFields(logrus.Fields{"conn": ctx.ID, "aid": key.AID, "iid": key.IID}).Debug("subscribed")
}

// Unsubscribe removes ctx's interest in key.
func (m *SubscriptionManager) Unsubscribe(ctx *Context, key CharKey) {
	ctx.removeSubscription(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.byKey[key]; ok {
		delete(set, ctx.ID)
		if len(set) == 0 {
			delete(m.byKey, key)
		}
	}
}

// RemoveConnection drops every subscription ctx holds, e.g. on disconnect.
func (m *SubscriptionManager) RemoveConnection(ctx *Context) {
	keys := ctx.subscribedKeys()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if set, ok := m.byKey[k]; ok {
			delete(set, ctx.ID)
			if len(set) == 0 {
				delete(m.byKey, k)
			}
		}
	}
}

// Fanout returns the connections a ValueChange must be pushed to: every
// subscriber of change.Key, excluding the originating connection only
// when the change's source is itself a connection (the Open Question
// resolution recorded in DESIGN.md — application-originated changes fan
// out to every subscriber with no exclusion).
func (m *SubscriptionManager) Fanout(change ValueChange) []*Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.byKey[change.Key]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Context, 0, len(set))
	for id, ctx := range set {
		if change.SourceConnectionID != nil && id == *change.SourceConnectionID {
			continue
		}
		out = append(out, ctx)
	}
	return out
}

// HasSubscribers reports whether any connection subscribes to key, used
// to pick between the Connected/Broadcasted/Disconnected event variants
// of spec.md §4.7.
func (m *SubscriptionManager) HasSubscribers(key CharKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey[key]) > 0
}
