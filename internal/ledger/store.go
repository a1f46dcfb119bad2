package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

// CustomerStore persists the whole customer collection.
type CustomerStore interface {
	LoadAll(ctx context.Context) ([]loyalty.Customer, error)
	SaveAll(ctx context.Context, customers []loyalty.Customer) error
}

// UpdateFunc derives the customer to store, and its log entry, from the
// stored customer. existing is nil for an unknown mobile. An error leaves the
// store unchanged.
type UpdateFunc func(existing *loyalty.Customer) (loyalty.Customer, loyalty.Notification, error)

// CustomerRecords is implemented by stores that can read and write a single
// customer. Update reads the customer, calls fn and writes the customer with
// its log entry as one unit; no other Update or Upsert of that mobile through
// the same store may interleave.
type CustomerRecords interface {
	Get(ctx context.Context, mobile string) (loyalty.Customer, error)
	Upsert(ctx context.Context, customers ...loyalty.Customer) error
	Update(ctx context.Context, mobile string, fn UpdateFunc) error
}

// ConfigStore returns loyalty.DefaultTierConfig when nothing was saved.
type ConfigStore interface {
	Load(ctx context.Context) (loyalty.TierConfig, error)
	Save(ctx context.Context, cfg loyalty.TierConfig) error
}

// NotificationLog lists entries newest first.
type NotificationLog interface {
	Append(ctx context.Context, notification loyalty.Notification) error
	List(ctx context.Context, limit int) ([]loyalty.Notification, error)
	Clear(ctx context.Context) error
}

// recordsFor returns store itself when it supports record access, otherwise a
// wrapper that replaces the whole collection on every write.
func recordsFor(store CustomerStore, log NotificationLog) CustomerRecords {
	if records, ok := store.(CustomerRecords); ok {
		return records
	}
	return &collectionRecords{store: store, log: log}
}

type collectionRecords struct {
	store CustomerStore
	log   NotificationLog
	mu    sync.Mutex
}

func (c *collectionRecords) Get(ctx context.Context, mobile string) (loyalty.Customer, error) {
	customers, err := c.store.LoadAll(ctx)
	if err != nil {
		return loyalty.Customer{}, err
	}
	for _, customer := range customers {
		if customer.Mobile == mobile {
			return customer, nil
		}
	}
	return loyalty.Customer{}, ErrCustomerNotFound
}

func (c *collectionRecords) Upsert(ctx context.Context, updates ...loyalty.Customer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	customers, err := c.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	return c.store.SaveAll(ctx, mergeCustomers(customers, updates))
}

// Update is serialized only among writers sharing this wrapper, and a failed
// log append leaves the customer saved.
func (c *collectionRecords) Update(ctx context.Context, mobile string, fn UpdateFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	customers, err := c.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	var existing *loyalty.Customer
	for _, customer := range customers {
		if customer.Mobile == mobile {
			found := customer.Clone()
			existing = &found
			break
		}
	}

	customer, notification, err := fn(existing)
	if err != nil {
		return err
	}
	if err := c.store.SaveAll(ctx, mergeCustomers(customers, []loyalty.Customer{customer})); err != nil {
		return err
	}
	return c.log.Append(ctx, notification)
}

func mergeCustomers(existing []loyalty.Customer, updates []loyalty.Customer) []loyalty.Customer {
	byMobile := make(map[string]int, len(existing))
	merged := make([]loyalty.Customer, len(existing))
	copy(merged, existing)
	for i, customer := range merged {
		byMobile[customer.Mobile] = i
	}
	for _, customer := range updates {
		if i, ok := byMobile[customer.Mobile]; ok {
			merged[i] = customer
			continue
		}
		byMobile[customer.Mobile] = len(merged)
		merged = append(merged, customer)
	}
	return merged
}

func sortByMobile(customers []loyalty.Customer) {
	sort.Slice(customers, func(i, j int) bool {
		return customers[i].Mobile < customers[j].Mobile
	})
}
