package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

const defaultCacheSize = 1024

// NotificationSink accepts a settlement notice for delivery. Delivery is
// best-effort; errors are logged and never undo a settlement.
type NotificationSink interface {
	Notify(ctx context.Context, notification loyalty.Notification) error
}

// Observer receives settlement outcomes, typically for metrics.
type Observer interface {
	SettlementCommitted(result loyalty.SettlementResult)
	SettlementRejected(code string)
}

type Service struct {
	customers CustomerStore
	records   CustomerRecords
	settings  ConfigStore
	notices   NotificationLog
	sink      NotificationSink
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	cache    *lru.Cache[string, loyalty.Customer]
	loads    singleflight.Group
	locks    *keyLocks
	configMu sync.Mutex
	// resetMu is held exclusively by Reset and shared by customer writes.
	resetMu sync.RWMutex
}

type ServiceOptions struct {
	Customers     CustomerStore
	Config        ConfigStore
	Notifications NotificationLog
	Sink          NotificationSink
	Observer      Observer
	Logger        *slog.Logger
	// CacheSize bounds the read cache used by Lookup, VerifyPin and Preview;
	// negative disables it. Settlements always read the store. Disable it
	// when other processes write the same store.
	CacheSize int
	Now       func() time.Time
}

func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Customers == nil || opts.Config == nil || opts.Notifications == nil {
		return nil, ErrStoreRequired
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Service{
		customers: opts.Customers,
		records:   recordsFor(opts.Customers, opts.Notifications),
		settings:  opts.Config,
		notices:   opts.Notifications,
		sink:      opts.Sink,
		observer:  opts.Observer,
		logger:    logger,
		now:       nowFn,
		newID:     uuid.NewString,
		locks:     newKeyLocks(),
	}

	size := opts.CacheSize
	if size == 0 {
		size = defaultCacheSize
	}
	if size > 0 {
		cache, err := lru.New[string, loyalty.Customer](size)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

// NewKVService wires every store to one KVStore.
func NewKVService(store *KVStore, opts ServiceOptions) (*Service, error) {
	opts.Customers = store
	opts.Config = store
	opts.Notifications = store
	return NewService(opts)
}

// CustomerStatus is a customer with its tier assessment at the time of the
// call.
type CustomerStatus struct {
	Customer   loyalty.Customer       `json:"customer"`
	Assessment loyalty.TierAssessment `json:"assessment"`
}

type Verification struct {
	Mobile     string                  `json:"mobile"`
	New        bool                    `json:"new"`
	Name       string                  `json:"name,omitempty"`
	Points     int64                   `json:"points"`
	Assessment *loyalty.TierAssessment `json:"assessment,omitempty"`
}

// Preview is the bill a settlement would produce. Problem is the user-facing
// reason the settlement would be rejected, if any.
type Preview struct {
	NewCustomer bool                   `json:"newCustomer"`
	Assessment  loyalty.TierAssessment `json:"assessment"`
	Summary     loyalty.BillSummary    `json:"summary"`
	Problem     string                 `json:"problem,omitempty"`
}

// Settle runs one settlement for req.Mobile. The customer is read, settled
// and written back with its log entry in one store Update, before the notice
// is handed to the sink.
func (s *Service) Settle(ctx context.Context, req loyalty.SettleRequest) (loyalty.SettlementResult, error) {
	if err := ctx.Err(); err != nil {
		return loyalty.SettlementResult{}, err
	}
	req.Mobile = strings.TrimSpace(req.Mobile)

	result, err := s.settle(ctx, req)
	if err != nil {
		code := Code(err)
		if s.observer != nil {
			s.observer.SettlementRejected(code)
		}
		s.logger.Info("settlement rejected", "mobile", req.Mobile, "code", code)
		return loyalty.SettlementResult{}, err
	}

	if s.observer != nil {
		s.observer.SettlementCommitted(result)
	}
	s.logger.Info("settlement committed",
		"mobile", result.Customer.Mobile,
		"new_customer", result.NewCustomer,
		"payable", result.Summary.Payable,
		"points_earned", result.Summary.PointsEarned,
		"tier", result.After.EffectiveTier.String(),
	)

	if s.sink != nil {
		if err := s.sink.Notify(ctx, result.Notification); err != nil {
			s.logger.Warn("notification not delivered", "id", result.Notification.ID, "error", err)
		}
	}
	return result, nil
}

func (s *Service) settle(ctx context.Context, req loyalty.SettleRequest) (loyalty.SettlementResult, error) {
	if req.Mobile == "" {
		return loyalty.SettlementResult{}, fmt.Errorf("%w: mobile is required", loyalty.ErrInvalidInput)
	}

	s.resetMu.RLock()
	defer s.resetMu.RUnlock()
	unlock := s.locks.Lock(req.Mobile)
	defer unlock()

	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return loyalty.SettlementResult{}, err
	}

	var result loyalty.SettlementResult
	err = s.records.Update(ctx, req.Mobile, func(existing *loyalty.Customer) (loyalty.Customer, loyalty.Notification, error) {
		settled, err := loyalty.Settle(req, existing, cfg, s.now())
		if err != nil {
			return loyalty.Customer{}, loyalty.Notification{}, err
		}
		settled.Notification.ID = s.newID()
		result = settled
		return settled.Customer, settled.Notification, nil
	})
	if err != nil {
		s.forget(req.Mobile)
		return loyalty.SettlementResult{}, err
	}
	s.remember(result.Customer)
	return result, nil
}

// Preview computes the bill for req without changing any state.
func (s *Service) Preview(ctx context.Context, req loyalty.SettleRequest) (Preview, error) {
	if err := ctx.Err(); err != nil {
		return Preview{}, err
	}
	req.Mobile = strings.TrimSpace(req.Mobile)
	if req.Mobile == "" {
		return Preview{}, fmt.Errorf("%w: mobile is required", loyalty.ErrInvalidInput)
	}

	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return Preview{}, err
	}
	existing, err := s.find(ctx, req.Mobile)
	if err != nil {
		return Preview{}, err
	}
	if err := loyalty.VerifyPin(existing, req.PIN); err != nil {
		return Preview{}, err
	}

	now := s.now()
	current := loyalty.Customer{Mobile: req.Mobile}
	if existing != nil {
		current = *existing
	}
	assessment := loyalty.Assess(current, cfg, now)
	preview := Preview{
		NewCustomer: existing == nil,
		Assessment:  assessment,
		Summary:     loyalty.ComputeBill(req.BillInput, assessment, cfg),
	}
	if _, err := loyalty.Settle(req, existing, cfg, now); err != nil {
		preview.Problem = loyalty.UserMessage(err)
	}
	return preview, nil
}

// VerifyPin checks pin for mobile. An unknown mobile with a well-formed pin
// verifies as a new customer.
func (s *Service) VerifyPin(ctx context.Context, mobile string, pin string) (Verification, error) {
	if err := ctx.Err(); err != nil {
		return Verification{}, err
	}
	mobile = strings.TrimSpace(mobile)
	if mobile == "" {
		return Verification{}, fmt.Errorf("%w: mobile is required", loyalty.ErrInvalidInput)
	}

	existing, err := s.find(ctx, mobile)
	if err != nil {
		return Verification{}, err
	}
	if err := loyalty.VerifyPin(existing, pin); err != nil {
		return Verification{}, err
	}
	if existing == nil {
		return Verification{Mobile: mobile, New: true}, nil
	}

	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return Verification{}, err
	}
	assessment := loyalty.Assess(*existing, cfg, s.now())
	return Verification{
		Mobile:     mobile,
		Name:       existing.Name,
		Points:     existing.Points,
		Assessment: &assessment,
	}, nil
}

func (s *Service) Lookup(ctx context.Context, mobile string) (CustomerStatus, error) {
	if err := ctx.Err(); err != nil {
		return CustomerStatus{}, err
	}

	existing, err := s.find(ctx, strings.TrimSpace(mobile))
	if err != nil {
		return CustomerStatus{}, err
	}
	if existing == nil {
		return CustomerStatus{}, ErrCustomerNotFound
	}
	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return CustomerStatus{}, err
	}
	return CustomerStatus{
		Customer:   *existing,
		Assessment: loyalty.Assess(*existing, cfg, s.now()),
	}, nil
}

// List returns every customer ordered by mobile.
func (s *Service) List(ctx context.Context) ([]CustomerStatus, error) {
	customers, cfg, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]CustomerStatus, 0, len(customers))
	for _, customer := range customers {
		out = append(out, CustomerStatus{
			Customer:   customer,
			Assessment: loyalty.Assess(customer, cfg, now),
		})
	}
	return out, nil
}

func (s *Service) Overview(ctx context.Context) (loyalty.Overview, error) {
	if err := ctx.Err(); err != nil {
		return loyalty.Overview{}, err
	}
	customers, err := s.customers.LoadAll(ctx)
	if err != nil {
		return loyalty.Overview{}, err
	}
	return loyalty.Summarize(customers), nil
}

func (s *Service) Analytics(ctx context.Context) (loyalty.Analytics, error) {
	customers, cfg, err := s.snapshot(ctx)
	if err != nil {
		return loyalty.Analytics{}, err
	}
	return loyalty.Analyze(customers, cfg, s.now()), nil
}

// ExportCSV writes one row per customer, ordered by mobile.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	customers, _, err := s.snapshot(ctx)
	if err != nil {
		return 0, err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(loyalty.ExportHeader); err != nil {
		return 0, err
	}
	if err := writer.WriteAll(loyalty.ExportRows(customers)); err != nil {
		return 0, err
	}
	return len(customers), nil
}

func (s *Service) Config(ctx context.Context) (loyalty.TierConfig, error) {
	if err := ctx.Err(); err != nil {
		return loyalty.TierConfig{}, err
	}
	return s.settings.Load(ctx)
}

func (s *Service) SaveConfig(ctx context.Context, cfg loyalty.TierConfig) (loyalty.TierConfig, error) {
	if err := ctx.Err(); err != nil {
		return loyalty.TierConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return loyalty.TierConfig{}, err
	}

	s.configMu.Lock()
	defer s.configMu.Unlock()
	if err := s.settings.Save(ctx, cfg); err != nil {
		return loyalty.TierConfig{}, err
	}
	s.logger.Info("tier config saved")
	return cfg, nil
}

// Notifications returns up to limit log entries, newest first. A limit of
// zero returns all of them.
func (s *Service) Notifications(ctx context.Context, limit int) ([]loyalty.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", loyalty.ErrInvalidInput)
	}
	return s.notices.List(ctx, limit)
}

// Import inserts or replaces customers by mobile.
func (s *Service) Import(ctx context.Context, customers []loyalty.Customer) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for i, customer := range customers {
		if err := validateCustomer(customer); err != nil {
			return 0, fmt.Errorf("customer %d: %w", i, err)
		}
	}
	if len(customers) == 0 {
		return 0, nil
	}

	mobiles := make([]string, len(customers))
	for i, customer := range customers {
		mobiles[i] = customer.Mobile
	}
	s.resetMu.RLock()
	defer s.resetMu.RUnlock()
	unlock := s.locks.LockAll(mobiles)
	defer unlock()

	if err := s.records.Upsert(ctx, customers...); err != nil {
		return 0, err
	}
	for _, mobile := range mobiles {
		s.forget(mobile)
	}
	s.logger.Info("customers imported", "count", len(customers))
	return len(customers), nil
}

// Seed imports the sample customers with recent visits relative to now.
func (s *Service) Seed(ctx context.Context) (int, error) {
	return s.Import(ctx, SampleCustomers(s.now()))
}

// Reset removes every customer and notification and restores the default
// tier config.
func (s *Service) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	if err := s.customers.SaveAll(ctx, nil); err != nil {
		return err
	}
	if err := s.notices.Clear(ctx); err != nil {
		return err
	}
	s.configMu.Lock()
	err := s.settings.Save(ctx, loyalty.DefaultTierConfig())
	s.configMu.Unlock()
	if err != nil {
		return err
	}
	s.purge()
	s.logger.Warn("loyalty program reset")
	return nil
}

// find returns nil without error for an unknown mobile. Readers share loads
// through singleflight; only settlements populate the cache, under the
// mobile's lock.
func (s *Service) find(ctx context.Context, mobile string) (*loyalty.Customer, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(mobile); ok {
			customer := cached.Clone()
			return &customer, nil
		}
	}

	value, err, _ := s.loads.Do(mobile, func() (any, error) {
		return s.records.Get(ctx, mobile)
	})
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			return nil, nil
		}
		return nil, err
	}
	customer := value.(loyalty.Customer).Clone()
	return &customer, nil
}

func (s *Service) snapshot(ctx context.Context) ([]loyalty.Customer, loyalty.TierConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, loyalty.TierConfig{}, err
	}
	customers, err := s.customers.LoadAll(ctx)
	if err != nil {
		return nil, loyalty.TierConfig{}, err
	}
	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return nil, loyalty.TierConfig{}, err
	}
	sortByMobile(customers)
	return customers, cfg, nil
}

func (s *Service) remember(customer loyalty.Customer) {
	if s.cache != nil {
		s.cache.Add(customer.Mobile, customer.Clone())
	}
}

func (s *Service) forget(mobile string) {
	if s.cache != nil {
		s.cache.Remove(mobile)
	}
}

func (s *Service) purge() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

func validateCustomer(customer loyalty.Customer) error {
	switch {
	case strings.TrimSpace(customer.Mobile) == "":
		return fmt.Errorf("%w: mobile is required", ErrInvalidCustomer)
	case loyalty.VerifyPin(nil, customer.PIN) != nil:
		return fmt.Errorf("%w: pin must be 4 digits", ErrInvalidCustomer)
	case customer.Points < 0 || customer.TotalSpent < 0:
		return fmt.Errorf("%w: points and total spent must not be negative", ErrInvalidCustomer)
	}
	return nil
}
