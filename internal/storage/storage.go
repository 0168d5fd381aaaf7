// Package storage implements the persisted-format helpers spec.md §6
// specifies (gsn, iid_next, iid_map, pairing_<id>, pairing_list, and the
// accessory's own long-term keys), against the platform.Storage byte-blob
// interface.
package storage

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/srg/hapd/internal/model"
	"github.com/srg/hapd/internal/platform"
)

// Storage is re-exported for callers that only need the byte-blob contract
// without importing internal/platform directly.
type Storage = platform.Storage

const (
	keyAccessoryLTPK = "accessory_ltpk"
	keyAccessoryLTSK = "accessory_ltsk"
	keyPairingPrefix = "pairing_"
	keyPairingList   = "pairing_list"
	keyPairingAdmins = "pairing_admins"
	keyConfigNumber  = "config_number"
	keySetupID       = "setup_id"
	keyGSN           = "gsn"
	keyIIDMap        = "iid_map"
	keyIIDNext       = "iid_next"
	keyDBHash        = "db_hash"
)

// LoadLongTermKeypair returns the accessory's persisted Ed25519 keys, if
// both halves are present.
func LoadLongTermKeypair(s Storage) (ltpk ed25519.PublicKey, ltsk ed25519.PrivateKey, ok bool, err error) {
	pkBytes, havePK, err := s.Get(keyAccessoryLTPK)
	if err != nil || !havePK {
		return nil, nil, false, err
	}
	skBytes, haveSK, err := s.Get(keyAccessoryLTSK)
	if err != nil || !haveSK {
		return nil, nil, false, err
	}
	return ed25519.PublicKey(pkBytes), ed25519.PrivateKey(skBytes), true, nil
}

// SaveLongTermKeypair persists the accessory's Ed25519 keys on first use.
func SaveLongTermKeypair(s Storage, ltpk ed25519.PublicKey, ltsk ed25519.PrivateKey) error {
	if err := s.Set(keyAccessoryLTPK, ltpk); err != nil {
		return err
	}
	return s.Set(keyAccessoryLTSK, ltsk)
}

// PairingRecord is the on-disk shape of a single controller pairing.
type PairingRecord struct {
	LTPK  ed25519.PublicKey
	Admin bool
}

// LoadPairing reads the 32-byte LTPK for id from `pairing_<id>` (bit-exact
// per spec.md §6) and the admin flag from the separate `pairing_admins`
// aggregate (an addition resolving the spec's silence on where the admin
// bit itself is persisted; see DESIGN.md).
func LoadPairing(s Storage, id string) (PairingRecord, bool, error) {
	raw, ok, err := s.Get(keyPairingPrefix + id)
	if err != nil || !ok {
		return PairingRecord{}, false, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return PairingRecord{}, false, fmt.Errorf("storage: pairing_%s has invalid length %d", id, len(raw))
	}
	admins, err := loadAdminSet(s)
	if err != nil {
		return PairingRecord{}, false, err
	}
	return PairingRecord{LTPK: ed25519.PublicKey(raw), Admin: admins[id]}, true, nil
}

// SavePairing persists id's LTPK (32 raw bytes) and updates the admin set.
func SavePairing(s Storage, id string, rec PairingRecord) error {
	if len(rec.LTPK) != ed25519.PublicKeySize {
		return errors.New("storage: LTPK must be 32 bytes")
	}
	if err := s.Set(keyPairingPrefix+id, rec.LTPK); err != nil {
		return err
	}
	admins, err := loadAdminSet(s)
	if err != nil {
		return err
	}
	if rec.Admin {
		admins[id] = true
	} else {
		delete(admins, id)
	}
	return saveAdminSet(s, admins)
}

// DeletePairing removes id's LTPK and admin entry.
func DeletePairing(s Storage, id string) error {
	if err := s.Remove(keyPairingPrefix + id); err != nil {
		return err
	}
	admins, err := loadAdminSet(s)
	if err != nil {
		return err
	}
	delete(admins, id)
	return saveAdminSet(s, admins)
}

func loadAdminSet(s Storage) (map[string]bool, error) {
	raw, ok, err := s.Get(keyPairingAdmins)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]bool{}, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func saveAdminSet(s Storage, admins map[string]bool) error {
	ids := make([]string, 0, len(admins))
	for id := range admins {
		ids = append(ids, id)
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.Set(keyPairingAdmins, raw)
}

// LoadPairingList reads the `pairing_list` UTF-8 JSON array of controller
// ID strings, returning an empty slice if absent.
func LoadPairingList(s Storage) ([]string, error) {
	raw, ok, err := s.Get(keyPairingList)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SavePairingList persists ids as the `pairing_list` JSON array.
func SavePairingList(s Storage, ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.Set(keyPairingList, raw)
}

// LoadGSN returns the persisted Global State Number, defaulting to 1 on a
// factory-reset accessory (spec.md §9 Open Questions).
func LoadGSN(s Storage) (uint16, error) {
	raw, ok, err := s.Get(keyGSN)
	if err != nil {
		return 0, err
	}
	if !ok || len(raw) != 2 {
		return 1, nil
	}
	return binary.LittleEndian.Uint16(raw), nil
}

// SaveGSN persists the Global State Number, 2 bytes little-endian.
func SaveGSN(s Storage, gsn uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], gsn)
	return s.Set(keyGSN, buf[:])
}

// LoadIIDNext returns the persisted IID allocation cursor, 0 if absent
// (model.NewIIDManager treats 0 as "start at 1").
func LoadIIDNext(s Storage) (uint16, error) {
	raw, ok, err := s.Get(keyIIDNext)
	if err != nil || !ok || len(raw) != 2 {
		return 0, err
	}
	return binary.LittleEndian.Uint16(raw), nil
}

// SaveIIDNext persists the IID allocation cursor, 2 bytes little-endian.
func SaveIIDNext(s Storage, next uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], next)
	return s.Set(keyIIDNext, buf[:])
}

// LoadIIDMap parses the newline-separated `<key>=<decimal iid>\n` format.
func LoadIIDMap(s Storage) (map[string]uint16, error) {
	raw, ok, err := s.Get(keyIIDMap)
	if err != nil || !ok {
		return map[string]uint16{}, err
	}
	out := map[string]uint16{}
	for _, line := range strings.Split(string(raw), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		n, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil {
			continue
		}
		out[parts[0]] = uint16(n)
	}
	return out, nil
}

// SaveIIDMap persists mgr's key->IID assignments in insertion order.
func SaveIIDMap(s Storage, mgr *model.IIDManager) error {
	var b strings.Builder
	for _, e := range mgr.Snapshot() {
		b.WriteString(e.Key)
		b.WriteByte('=')
		b.WriteString(strconv.FormatUint(uint64(e.IID), 10))
		b.WriteByte('\n')
	}
	return s.Set(keyIIDMap, []byte(b.String()))
}

// LoadDBHash returns the persisted structural-hash hex string, if any.
func LoadDBHash(s Storage) (string, bool, error) {
	raw, ok, err := s.Get(keyDBHash)
	if err != nil || !ok {
		return "", false, err
	}
	return string(raw), true, nil
}

// SaveDBHash persists the structural-hash hex string.
func SaveDBHash(s Storage, hexHash string) error {
	return s.Set(keyDBHash, []byte(hexHash))
}

// LoadConfigNumber returns the persisted ASCII configuration number,
// defaulting to 1.
func LoadConfigNumber(s Storage) (int, error) {
	raw, ok, err := s.Get(keyConfigNumber)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 1, nil
	}
	return n, nil
}

// SaveConfigNumber persists the ASCII configuration number.
func SaveConfigNumber(s Storage, n int) error {
	return s.Set(keyConfigNumber, []byte(strconv.Itoa(n)))
}

// LoadSetupID returns the persisted 4-ASCII-char setup ID, generating and
// persisting a fresh random one on first use.
func LoadSetupID(s Storage, randomFn func(n int) ([]byte, error)) (string, error) {
	raw, ok, err := s.Get(keySetupID)
	if err != nil {
		return "", err
	}
	if ok && len(raw) == 4 {
		return string(raw), nil
	}
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	rnd, err := randomFn(4)
	if err != nil {
		return "", err
	}
	id := make([]byte, 4)
	for i, b := range rnd {
		id[i] = alphabet[int(b)%len(alphabet)]
	}
	if err := s.Set(keySetupID, id); err != nil {
		return "", err
	}
	return string(id), nil
}
