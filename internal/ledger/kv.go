package ledger

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/sdrshn-nmbr/tierledger/internal/db"
	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
	"github.com/sdrshn-nmbr/tierledger/internal/storage"
	"github.com/sdrshn-nmbr/tierledger/internal/transaction"
	"github.com/sdrshn-nmbr/tierledger/internal/types"
)

const maxRecordBytes uint32 = 8 << 20

// KVStore keeps customers, settings and the notification log in one db.DB.
// Record writes are serialized per mobile here, so every Service sharing the
// store sees them atomically.
type KVStore struct {
	db    *db.DB
	locks *keyLocks
	// replace is held exclusively while SaveAll swaps the collection.
	replace sync.RWMutex
}

func NewKVStore(database *db.DB) *KVStore {
	return &KVStore{db: database, locks: newKeyLocks()}
}

func (s *KVStore) LoadAll(ctx context.Context) ([]loyalty.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var customers []loyalty.Customer
	err := s.db.ScanAll(CustomerPrefix(), maxRecordBytes, func(entry storage.ScanEntry) error {
		customer, err := DecodeCustomer(entry.Value)
		if err != nil {
			return err
		}
		customers = append(customers, customer)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return customers, nil
}

// SaveAll replaces the collection in one transaction, deleting customers
// that are not in the new set.
func (s *KVStore) SaveAll(ctx context.Context, customers []loyalty.Customer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.replace.Lock()
	defer s.replace.Unlock()

	keep := make(map[string]struct{}, len(customers))
	txn := transaction.NewTransaction()
	for _, customer := range customers {
		encoded, err := EncodeCustomer(customer)
		if err != nil {
			return err
		}
		key := CustomerKey(customer.Mobile)
		keep[key] = struct{}{}
		txn.Put(types.Key(key), types.Value(encoded))
	}

	stale, err := s.keys(CustomerPrefix())
	if err != nil {
		return err
	}
	for _, key := range stale {
		if _, ok := keep[key]; !ok {
			txn.Delete(types.Key(key))
		}
	}
	return s.db.ExecuteTransaction(txn)
}

func (s *KVStore) Get(ctx context.Context, mobile string) (loyalty.Customer, error) {
	if err := ctx.Err(); err != nil {
		return loyalty.Customer{}, err
	}

	data, err := s.db.Get([]byte(CustomerKey(mobile)))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return loyalty.Customer{}, ErrCustomerNotFound
		}
		return loyalty.Customer{}, err
	}
	return DecodeCustomer(data)
}

func (s *KVStore) Upsert(ctx context.Context, customers ...loyalty.Customer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keys := make([]string, len(customers))
	for i, customer := range customers {
		keys[i] = CustomerKey(customer.Mobile)
	}
	s.replace.RLock()
	defer s.replace.RUnlock()
	unlock := s.locks.LockAll(keys)
	defer unlock()

	txn := transaction.NewTransaction()
	for _, customer := range customers {
		encoded, err := EncodeCustomer(customer)
		if err != nil {
			return err
		}
		txn.Put(types.Key(CustomerKey(customer.Mobile)), types.Value(encoded))
	}
	return s.db.ExecuteTransaction(txn)
}

func (s *KVStore) Update(ctx context.Context, mobile string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.replace.RLock()
	defer s.replace.RUnlock()
	unlock := s.locks.Lock(CustomerKey(mobile))
	defer unlock()

	var existing *loyalty.Customer
	current, err := s.Get(ctx, mobile)
	switch {
	case err == nil:
		existing = &current
	case !errors.Is(err, ErrCustomerNotFound):
		return err
	}

	customer, notification, err := fn(existing)
	if err != nil {
		return err
	}
	return s.commit(customer, notification)
}

func (s *KVStore) commit(customer loyalty.Customer, notification loyalty.Notification) error {
	encodedCustomer, err := EncodeCustomer(customer)
	if err != nil {
		return err
	}
	encodedNotification, err := EncodeNotification(notification)
	if err != nil {
		return err
	}

	txn := transaction.NewTransaction()
	txn.Put(types.Key(CustomerKey(customer.Mobile)), types.Value(encodedCustomer))
	txn.Put(types.Key(NotificationKey(notification.Timestamp, notification.ID)), types.Value(encodedNotification))
	return s.db.ExecuteTransaction(txn)
}

func (s *KVStore) Load(ctx context.Context) (loyalty.TierConfig, error) {
	if err := ctx.Err(); err != nil {
		return loyalty.TierConfig{}, err
	}

	data, err := s.db.Get([]byte(SettingsKey()))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return loyalty.DefaultTierConfig(), nil
		}
		return loyalty.TierConfig{}, err
	}
	return DecodeConfig(data)
}

func (s *KVStore) Save(ctx context.Context, cfg loyalty.TierConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded, err := EncodeConfig(cfg)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(SettingsKey()), encoded)
}

func (s *KVStore) Append(ctx context.Context, notification loyalty.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded, err := EncodeNotification(notification)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(NotificationKey(notification.Timestamp, notification.ID)), encoded)
}

func (s *KVStore) List(ctx context.Context, limit int) ([]loyalty.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var notifications []loyalty.Notification
	err := s.db.ScanAll(NotificationPrefix(), maxRecordBytes, func(entry storage.ScanEntry) error {
		notification, err := DecodeNotification(entry.Value)
		if err != nil {
			return err
		}
		notifications = append(notifications, notification)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Reverse(notifications)
	if limit > 0 && len(notifications) > limit {
		notifications = notifications[:limit]
	}
	return notifications, nil
}

func (s *KVStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keys, err := s.keys(NotificationPrefix())
	if err != nil {
		return err
	}
	txn := transaction.NewTransaction()
	for _, key := range keys {
		txn.Delete(types.Key(key))
	}
	return s.db.ExecuteTransaction(txn)
}

func (s *KVStore) keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.ScanAll(prefix, maxRecordBytes, func(entry storage.ScanEntry) error {
		keys = append(keys, string(entry.Key))
		return nil
	})
	return keys, err
}
