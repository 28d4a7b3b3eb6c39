package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileAccountStore is an AccountStore persisted as a JSON array, so an
// authorization survives restarts the way a browser wallet remembers a site.
type FileAccountStore struct {
	mu   sync.Mutex
	path string
	mem  *MemoryAccountStore
}

// OpenFileAccountStore loads path, creating nothing until the first change.
func OpenFileAccountStore(path string) (*FileAccountStore, error) {
	s := &FileAccountStore{path: path, mem: NewMemoryAccountStore()}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read account store: %w", err)
	}

	var addrs []string
	if err := json.Unmarshal(data, &addrs); err != nil {
		return nil, fmt.Errorf("decode account store %s: %w", path, err)
	}
	if _, err := s.mem.Authorize(addrs...); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileAccountStore) Authorize(addresses ...string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed, err := s.mem.Authorize(addresses...)
	if err != nil || !changed {
		return changed, err
	}
	return true, s.saveLocked()
}

func (s *FileAccountStore) Revoke(address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed, err := s.mem.Revoke(address)
	if err != nil || !removed {
		return removed, err
	}
	return true, s.saveLocked()
}

func (s *FileAccountStore) List() ([]string, error) {
	return s.mem.List()
}

// saveLocked writes through a temp file so a crash never leaves a torn file.
func (s *FileAccountStore) saveLocked() error {
	addrs, err := s.mem.List()
	if err != nil {
		return err
	}
	if addrs == nil {
		addrs = []string{}
	}
	data, err := json.MarshalIndent(addrs, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create account store dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".accounts-*")
	if err != nil {
		return fmt.Errorf("write account store: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write account store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write account store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write account store: %w", err)
	}
	return nil
}
