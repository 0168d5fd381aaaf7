// Package hostio implements platform.System, platform.Storage, and
// platform.Network against the local OS: a file-per-key directory for
// persistence, the real monotonic clock and CSPRNG, and net.Listen for the
// IP transport. No third-party key/value store or mDNS library appears
// anywhere in the retrieved corpus, so this package stays on the standard
// library; see DESIGN.md for that justification.
package hostio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStorage persists platform.Storage keys as one file per key under dir.
type FileStorage struct {
	dir string
}

// NewFileStorage ensures dir exists and returns a Storage backed by it.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("hostio: create storage dir: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

// keyPath maps a storage key to a filesystem path, escaping the path
// separator so keys like "pairing_<id>" can't traverse out of dir.
func (s *FileStorage) keyPath(key string) string {
	safe := strings.ReplaceAll(key, string(filepath.Separator), "_")
	return filepath.Join(s.dir, safe+".bin")
}

func (s *FileStorage) Set(key string, value []byte) error {
	tmp := s.keyPath(key) + ".tmp"
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return fmt.Errorf("hostio: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, s.keyPath(key)); err != nil {
		return fmt.Errorf("hostio: commit %s: %w", key, err)
	}
	return nil
}

func (s *FileStorage) Get(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("hostio: read %s: %w", key, err)
	}
	return data, true, nil
}

func (s *FileStorage) Remove(key string) error {
	if err := os.Remove(s.keyPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("hostio: remove %s: %w", key, err)
	}
	return nil
}

func (s *FileStorage) Has(key string) (bool, error) {
	_, err := os.Stat(s.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("hostio: stat %s: %w", key, err)
	}
	return true, nil
}
