package storage

import (
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/olehkaliuzhnyi/sword-dapp/pkg/models"
)

// MemoryAccountStore is an in-memory AccountStore. Addresses compare
// case-insensitively.
type MemoryAccountStore struct {
	mu    sync.RWMutex
	addrs []string
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{}
}

func (s *MemoryAccountStore) Authorize(addresses ...string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for _, a := range addresses {
		if s.indexLocked(a) >= 0 {
			continue
		}
		s.addrs = append(s.addrs, a)
		changed = true
	}
	return changed, nil
}

func (s *MemoryAccountStore) Revoke(address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(address)
	if i < 0 {
		return false, nil
	}
	s.addrs = slices.Delete(s.addrs, i, i+1)
	return true, nil
}

func (s *MemoryAccountStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.addrs), nil
}

func (s *MemoryAccountStore) indexLocked(address string) int {
	return slices.IndexFunc(s.addrs, func(a string) bool {
		return strings.EqualFold(a, address)
	})
}

// MemoryTxStore is an in-memory TxStore.
type MemoryTxStore struct {
	mu  sync.RWMutex
	txs map[string]*models.PendingTransaction
}

func NewMemoryTxStore() *MemoryTxStore {
	return &MemoryTxStore{txs: make(map[string]*models.PendingTransaction)}
}

func (s *MemoryTxStore) Get(id string) (*models.PendingTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (s *MemoryTxStore) Put(tx *models.PendingTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tx
	s.txs[tx.ID] = &cp
	return nil
}

func (s *MemoryTxStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.txs, id)
	return nil
}

func (s *MemoryTxStore) List() ([]*models.PendingTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*models.PendingTransaction, 0, len(s.txs))
	for _, tx := range s.txs {
		cp := *tx
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
