package model

import (
	"crypto/sha256"
	"encoding/binary"
)

// Database is the three-level ordered accessory/service/characteristic
// container. It assigns stable IIDs via an IIDManager and tracks a
// structural hash used to bump the configuration number when the shape of
// the database changes between runs.
type Database struct {
	accessories []*Accessory
	index       map[uint64]int
	iids        *IIDManager
}

// NewDatabase creates an empty database backed by iidMgr (which should be
// constructed from persisted state so IIDs survive restarts).
func NewDatabase(iidMgr *IIDManager) *Database {
	return &Database{index: make(map[uint64]int), iids: iids(iidMgr)}
}

func iids(m *IIDManager) *IIDManager {
	if m == nil {
		return NewIIDManager(nil, 0)
	}
	return m
}

// Register adds accessory a to the database, assigning IIDs to every
// service and characteristic that doesn't already have a structural-key
// entry. It validates capacity and AID uniqueness first.
func (d *Database) Register(a *Accessory) error {
	if err := ValidateRegistration(d.accessories, a); err != nil {
		return err
	}
	for _, s := range a.Services {
		s.IID = d.iids.Assign(s.structuralKey(a.AID))
		for _, c := range s.Characteristics {
			c.IID = d.iids.Assign(c.structuralKey(a.AID, s.ShortTypeHex()))
		}
	}
	d.index[a.AID] = len(d.accessories)
	d.accessories = append(d.accessories, a)
	return nil
}

// Accessories returns the registered accessories in registration order.
func (d *Database) Accessories() []*Accessory {
	return d.accessories
}

// IIDs exposes the backing manager, for persistence by the orchestrator.
func (d *Database) IIDs() *IIDManager {
	return d.iids
}

// Find locates a characteristic by (aid, iid), along with its containing
// service and accessory.
func (d *Database) Find(aid uint64, iid uint16) (acc *Accessory, svc *Service, ch *Characteristic, ok bool) {
	idx, present := d.index[aid]
	if !present {
		return nil, nil, nil, false
	}
	acc = d.accessories[idx]
	for _, s := range acc.Services {
		if c := s.CharacteristicByIID(iid); c != nil {
			return acc, s, c, true
		}
	}
	return acc, nil, nil, false
}

// FindService locates a service by (aid, iid).
func (d *Database) FindService(aid uint64, iid uint16) (*Service, bool) {
	idx, present := d.index[aid]
	if !present {
		return nil, false
	}
	s := d.accessories[idx].ServiceByIID(iid)
	return s, s != nil
}

// StructuralHash computes a stable digest over each accessory's AID followed
// by the ordered (kind, short type, iid) entries of its services and
// characteristics, used to
// detect a structural change across restarts (spec.md §4.2).
func (d *Database) StructuralHash() [32]byte {
	h := sha256.New()
	for _, a := range d.accessories {
		var aidBuf [8]byte
		binary.LittleEndian.PutUint64(aidBuf[:], a.AID)
		h.Write(aidBuf[:])
		for _, s := range a.Services {
			writeHashEntry(h, 'S', s.ShortTypeHex(), s.IID)
			for _, c := range s.Characteristics {
				writeHashEntry(h, 'C', c.ShortTypeHex(), c.IID)
			}
		}
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func writeHashEntry(h interface{ Write([]byte) (int, error) }, kind byte, typeHex string, iid uint16) {
	h.Write([]byte{kind})
	h.Write([]byte(typeHex))
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], iid)
	h.Write(b[:])
}
