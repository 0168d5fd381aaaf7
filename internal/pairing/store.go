package pairing

import (
	"crypto/ed25519"
	"fmt"

	"github.com/cornelk/hashmap"
	"github.com/srg/hapd/internal/storage"
)

// Record is a single persisted pairing: a controller's long-term Ed25519
// public key plus its admin flag.
type Record struct {
	LTPK  ed25519.PublicKey
	Admin bool
}

// Store is the accessory's persisted set of controller pairings, keyed by
// controller identifier. Reads (every encrypted request re-checks the
// caller's admin bit) vastly outnumber writes (Pair Setup M6,
// Add/Remove-Pairing), the same read-heavy/write-rare profile the teacher's
// scan-result map has, so the store is backed by the same concurrent map.
type Store struct {
	records *hashmap.Map[string, Record]
	backing storage.Storage
}

// NewStore loads a Store from backing storage's persisted pairing_list and
// per-controller pairing_<id> keys.
func NewStore(backing storage.Storage) (*Store, error) {
	s := &Store{records: hashmap.New[string, Record](), backing: backing}
	ids, err := storage.LoadPairingList(backing)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		rec, ok, err := storage.LoadPairing(backing, id)
		if err != nil {
			return nil, err
		}
		if ok {
			s.records.Set(id, Record{LTPK: rec.LTPK, Admin: rec.Admin})
		}
	}
	return s, nil
}

// Get returns the pairing record for id, if any.
func (s *Store) Get(id string) (Record, bool) {
	return s.records.Get(id)
}

// Has reports whether id is a known controller.
func (s *Store) Has(id string) bool {
	_, ok := s.records.Get(id)
	return ok
}

// IsEmpty reports whether the accessory has no pairings (i.e. is unpaired).
func (s *Store) IsEmpty() bool {
	return s.records.Len() == 0
}

// Len returns the number of registered pairings.
func (s *Store) Len() int {
	return int(s.records.Len())
}

// Range iterates all pairings in arbitrary order.
func (s *Store) Range(fn func(id string, rec Record) bool) {
	s.records.Range(func(id string, rec Record) bool {
		return fn(id, rec)
	})
}

// Add persists a new pairing, or verifies idempotence against an existing
// one with a matching LTPK. Returns ErrLTPKMismatch if id is already paired
// with a different key (spec.md §4.6 Add-Pairing semantics).
func (s *Store) Add(id string, ltpk ed25519.PublicKey, admin bool) error {
	if existing, ok := s.records.Get(id); ok {
		if existing.LTPK.Equal(ltpk) {
			return nil
		}
		return ErrLTPKMismatch
	}
	if err := storage.SavePairing(s.backing, id, storage.PairingRecord{LTPK: ltpk, Admin: admin}); err != nil {
		return err
	}
	s.records.Set(id, Record{LTPK: ltpk, Admin: admin})
	return storage.SavePairingList(s.backing, s.ids())
}

// Remove deletes a pairing. It is not an error to remove an unknown id.
func (s *Store) Remove(id string) error {
	if !s.Has(id) {
		return nil
	}
	s.records.Del(id)
	if err := storage.DeletePairing(s.backing, id); err != nil {
		return err
	}
	return storage.SavePairingList(s.backing, s.ids())
}

func (s *Store) ids() []string {
	out := make([]string, 0, s.records.Len())
	s.records.Range(func(id string, _ Record) bool {
		out = append(out, id)
		return true
	})
	return out
}

// ErrLTPKMismatch is returned by Add when id is already paired with a
// different long-term public key.
var ErrLTPKMismatch = fmt.Errorf("pairing: controller already paired with a different LTPK")
