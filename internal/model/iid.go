package model

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// IIDManager assigns stable 16-bit instance IDs to structural keys
// (`S:<type>:<aid>`, `C:<type>:<serviceType>:<aid>`) and never reuses an IID
// for a different key. Keys and next-IID are persisted with
// storage.SaveIIDMap/storage.SaveIIDNext (and read back with LoadIIDMap/
// LoadIIDNext) so the assignment survives restarts.
//
// The backing map is order-preserving, so Snapshot lists keys in insertion
// order. The structural hash that decides the configuration-number bump is
// computed by Database.StructuralHash from the database itself, not from
// this map.
type IIDManager struct {
	keys   *orderedmap.OrderedMap[string, uint16]
	nextID uint16
}

// NewIIDManager creates a manager with the given persisted state. A zero
// nextID starts assignment at 1 (0 is never assigned).
func NewIIDManager(persisted map[string]uint16, nextID uint16) *IIDManager {
	m := orderedmap.New[string, uint16]()
	// Deterministic iteration for persisted entries: sort by IID so replay
	// of a previous run's assignment order is reproducible.
	keys := make([]string, 0, len(persisted))
	for k := range persisted {
		keys = append(keys, k)
	}
	sortByIID(keys, persisted)
	for _, k := range keys {
		m.Set(k, persisted[k])
	}
	if nextID == 0 {
		nextID = 1
	}
	return &IIDManager{keys: m, nextID: nextID}
}

func sortByIID(keys []string, persisted map[string]uint16) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && persisted[keys[j-1]] > persisted[keys[j]]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}

// Assign returns the existing IID for key, or allocates and records the
// next one. Allocation skips 0 on wraparound.
func (m *IIDManager) Assign(key string) uint16 {
	if existing, ok := m.keys.Get(key); ok {
		return existing
	}
	id := m.nextID
	m.nextID++
	if m.nextID == 0 {
		m.nextID = 1
	}
	m.keys.Set(key, id)
	return id
}

// Lookup returns the IID already assigned to key, if any.
func (m *IIDManager) Lookup(key string) (uint16, bool) {
	return m.keys.Get(key)
}

// NextID returns the manager's current allocation cursor, for persistence.
func (m *IIDManager) NextID() uint16 {
	return m.nextID
}

// Snapshot returns the full key->IID map in insertion order, for
// persistence as storage's newline-separated `iid_map` format.
func (m *IIDManager) Snapshot() []KeyIID {
	out := make([]KeyIID, 0, m.keys.Len())
	for pair := m.keys.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, KeyIID{Key: pair.Key, IID: pair.Value})
	}
	return out
}

// KeyIID is a single structural-key/IID pair, as persisted.
type KeyIID struct {
	Key string
	IID uint16
}
