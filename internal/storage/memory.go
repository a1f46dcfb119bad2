package storage

import (
	"sync"
	"time"

	"github.com/sdrshn-nmbr/tierledger/internal/transaction"
	"github.com/sdrshn-nmbr/tierledger/internal/types"
)

type MemoryStorage struct {
	data map[string]types.Entry
	now  func() time.Time
	mu   sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: make(map[string]types.Entry),
		now:  time.Now,
	}
}

func (m *MemoryStorage) Get(key types.Key) (types.Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.data[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}

	return cloneValue(entry.Value), nil
}

func (m *MemoryStorage) Put(key types.Key, value types.Value) error {
	txn := transaction.NewTransaction()
	txn.Put(key, value)
	return m.ExecuteTransaction(txn)
}

func (m *MemoryStorage) Delete(key types.Key) error {
	txn := transaction.NewTransaction()
	txn.Delete(key)
	return m.ExecuteTransaction(txn)
}

// ExecuteTransaction validates every operation before applying any of them.
func (m *MemoryStorage) ExecuteTransaction(t *transaction.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, overlay, err := stage(t, func(key string) bool {
		_, ok := m.data[key]
		return ok
	})
	if err != nil {
		t.Status = transaction.Aborted
		return err
	}

	now := m.now()
	for _, key := range order {
		value := overlay[key]
		if value == nil {
			delete(m.data, key)
			continue
		}
		m.data[key] = types.Entry{
			Key:       types.Key(key),
			Value:     cloneValue(value),
			Timestamp: now,
		}
	}
	t.Status = transaction.Committed

	return nil
}

func (m *MemoryStorage) Scan(req ScanRequest) (ScanResult, error) {
	if err := req.Validate(); err != nil {
		return ScanResult{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}
	page, next := pageKeys(keys, req)

	entries := make([]ScanEntry, 0, len(page))
	for _, key := range page {
		entry := ScanEntry{Key: types.Key(key)}
		if req.IncludeValues {
			value := m.data[key].Value
			if uint32(len(value)) > req.MaxValueBytes {
				return ScanResult{}, ErrValueTooLarge
			}
			entry.Value = cloneValue(value)
		}
		entries = append(entries, entry)
	}

	return ScanResult{Entries: entries, NextCursor: next}, nil
}

func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryStorage) Close() error {
	return nil
}

func cloneValue(value types.Value) types.Value {
	if value == nil {
		return nil
	}
	out := make(types.Value, len(value))
	copy(out, value)
	return out
}
