package ledger

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sdrshn-nmbr/tierledger/internal/db"
	wal "github.com/sdrshn-nmbr/tierledger/internal/log"
	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
	"github.com/sdrshn-nmbr/tierledger/internal/storage"
)

var fixedNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu   sync.Mutex
	sent []loyalty.Notification
}

func (r *recordingSink) Notify(ctx context.Context, n loyalty.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

type recordingObserver struct {
	mu        sync.Mutex
	committed int
	rejected  []string
}

func (r *recordingObserver) SettlementCommitted(loyalty.SettlementResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed++
}

func (r *recordingObserver) SettlementRejected(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, code)
}

func newTestService(t *testing.T, opts ServiceOptions) (*Service, *KVStore) {
	t.Helper()
	database, err := db.Open(db.Options{Storage: storage.NewMemoryStorage()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	store := NewKVStore(database)
	service, err := NewKVService(store, opts)
	require.NoError(t, err)
	return service, store
}

func settleRequest(mobile, pin string, bill, cash float64) loyalty.SettleRequest {
	return loyalty.SettleRequest{
		Mobile:    mobile,
		PIN:       pin,
		BillInput: loyalty.BillInput{GrossBill: bill, CashTendered: cash},
	}
}

func TestSettleCreatesThenUpdatesCustomer(t *testing.T) {
	sink := &recordingSink{}
	observer := &recordingObserver{}
	service, store := newTestService(t, ServiceOptions{Sink: sink, Observer: observer})
	ctx := context.Background()

	first, err := service.Settle(ctx, settleRequest("9000000001", "1234", 900, 1000))
	require.NoError(t, err)
	require.True(t, first.NewCustomer)
	require.Equal(t, int64(100), first.Customer.Points)
	require.NotEmpty(t, first.Notification.ID)

	second, err := service.Settle(ctx, settleRequest("9000000001", "1234", 500, 500))
	require.NoError(t, err)
	require.False(t, second.NewCustomer)
	require.Equal(t, 1400.0, second.Customer.TotalSpent)
	require.Len(t, second.Customer.History, 2)

	stored, err := store.Get(ctx, "9000000001")
	require.NoError(t, err)
	require.Equal(t, second.Customer.Points, stored.Points)
	require.Len(t, stored.History, 2)

	log, err := service.Notifications(ctx, 0)
	require.NoError(t, err)
	require.Len(t, log, 2)
	require.Equal(t, second.Notification.ID, log[0].ID, "newest first")

	require.Len(t, sink.sent, 2)
	require.Equal(t, 2, observer.committed)
}

func TestSettleRejectionLeavesStateUnchanged(t *testing.T) {
	observer := &recordingObserver{}
	service, store := newTestService(t, ServiceOptions{Observer: observer})
	ctx := context.Background()

	_, err := service.Settle(ctx, settleRequest("9000000002", "4321", 300, 300))
	require.NoError(t, err)
	before, err := store.Get(ctx, "9000000002")
	require.NoError(t, err)

	_, err = service.Settle(ctx, settleRequest("9000000002", "0000", 300, 300))
	require.ErrorIs(t, err, loyalty.ErrAuthenticationFailed)

	over := settleRequest("9000000002", "4321", 300, 300)
	over.ApplyBenefits = true
	over.PointsToRedeem = 5
	_, err = service.Settle(ctx, over)
	require.ErrorIs(t, err, loyalty.ErrOverRedemption)

	_, err = service.Settle(ctx, settleRequest("9000000002", "4321", 300, 100))
	require.ErrorIs(t, err, loyalty.ErrInsufficientPayment)

	after, err := store.Get(ctx, "9000000002")
	require.NoError(t, err)
	require.Equal(t, before, after)

	log, err := service.Notifications(ctx, 0)
	require.NoError(t, err)
	require.Len(t, log, 1)
	require.Equal(t, []string{CodeAuthenticationFailed, CodeOverRedemption, CodeInsufficientPayment}, observer.rejected)
}

func TestSettleSerializesSameMobile(t *testing.T) {
	service, store := newTestService(t, ServiceOptions{})
	ctx := context.Background()

	_, err := service.Settle(ctx, settleRequest("9000000003", "1111", 100, 100))
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Settle(ctx, settleRequest("9000000003", "1111", 100, 110))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := store.Get(ctx, "9000000003")
	require.NoError(t, err)
	require.Len(t, stored.History, workers+1)
	require.Equal(t, float64(100*(workers+1)), stored.TotalSpent)
	require.Equal(t, int64(10*workers), stored.Points)
}

func TestPreviewAndVerifyPin(t *testing.T) {
	service, _ := newTestService(t, ServiceOptions{})
	ctx := context.Background()

	verification, err := service.VerifyPin(ctx, "9000000004", "2468")
	require.NoError(t, err)
	require.True(t, verification.New)

	_, err = service.VerifyPin(ctx, "9000000004", "24")
	require.ErrorIs(t, err, loyalty.ErrInvalidPin)

	_, err = service.Settle(ctx, settleRequest("9000000004", "2468", 6000, 6000))
	require.NoError(t, err)

	verification, err = service.VerifyPin(ctx, "9000000004", "2468")
	require.NoError(t, err)
	require.False(t, verification.New)
	require.NotNil(t, verification.Assessment)
	require.Equal(t, loyalty.TierBronze, verification.Assessment.EffectiveTier)

	_, err = service.VerifyPin(ctx, "9000000004", "1357")
	require.ErrorIs(t, err, loyalty.ErrAuthenticationFailed)

	req := settleRequest("9000000004", "2468", 1000, 900)
	req.ApplyBenefits = true
	preview, err := service.Preview(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 950.0, preview.Summary.Payable)
	require.Equal(t, "Cash Given cannot be less than Total Payable", preview.Problem)

	status, err := service.Lookup(ctx, "9000000004")
	require.NoError(t, err)
	require.Len(t, status.Customer.History, 1, "preview must not settle")
}

func TestLookupUnknownCustomer(t *testing.T) {
	service, _ := newTestService(t, ServiceOptions{})
	_, err := service.Lookup(context.Background(), "0000000000")
	require.ErrorIs(t, err, ErrCustomerNotFound)
	require.Equal(t, CodeCustomerNotFound, Code(err))
}

func TestSeedAnalyticsAndExport(t *testing.T) {
	service, _ := newTestService(t, ServiceOptions{})
	ctx := context.Background()

	n, err := service.Seed(ctx)
	require.NoError(t, err)
	require.Equal(t, 11, n)

	kabir, err := service.Lookup(ctx, "7890123456")
	require.NoError(t, err)
	require.Equal(t, loyalty.TierPlatinum, kabir.Assessment.EffectiveTier)

	meera, err := service.Lookup(ctx, "9008007001")
	require.NoError(t, err)
	require.Equal(t, loyalty.JustExpired, meera.Assessment.PointsTierStatus.State)
	require.Equal(t, loyalty.TierNone, meera.Assessment.EffectiveTier)

	overview, err := service.Overview(ctx)
	require.NoError(t, err)
	require.Equal(t, 11, overview.TotalCustomers)
	require.Equal(t, 152600.0, overview.TotalRevenue)

	analytics, err := service.Analytics(ctx)
	require.NoError(t, err)
	require.Equal(t, 22, analytics.TotalTransactions)
	require.Equal(t, 1, analytics.NewCustomers30Days)
	require.Len(t, analytics.TopCustomers, 5)
	require.Equal(t, "7890123456", analytics.TopCustomers[0].Mobile)

	var buf bytes.Buffer
	rows, err := service.ExportCSV(ctx, &buf)
	require.NoError(t, err)
	require.Equal(t, 11, rows)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 12)
	require.Equal(t, "Name,Mobile,TotalSpent,Points", lines[0])
	require.Equal(t, "Sneha Verma,7001002003,4500,85", lines[1])
}

func TestSaveConfigAndReset(t *testing.T) {
	service, _ := newTestService(t, ServiceOptions{})
	ctx := context.Background()

	cfg := loyalty.DefaultTierConfig()
	cfg.Discounts.Bronze = 7
	saved, err := service.SaveConfig(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 7.0, saved.Discounts.Bronze)

	bad := cfg
	bad.Discounts.Gold = 101
	_, err = service.SaveConfig(ctx, bad)
	require.ErrorIs(t, err, loyalty.ErrInvalidConfig)

	_, err = service.Seed(ctx)
	require.NoError(t, err)
	_, err = service.Settle(ctx, settleRequest("9000000005", "1212", 100, 100))
	require.NoError(t, err)

	require.NoError(t, service.Reset(ctx))

	customers, err := service.List(ctx)
	require.NoError(t, err)
	require.Empty(t, customers)
	log, err := service.Notifications(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, log)
	current, err := service.Config(ctx)
	require.NoError(t, err)
	require.Equal(t, loyalty.DefaultTierConfig(), current)

	_, err = service.Lookup(ctx, "9000000005")
	require.ErrorIs(t, err, ErrCustomerNotFound, "reset must drop cached customers")
}

func TestImportRejectsInvalidCustomers(t *testing.T) {
	service, _ := newTestService(t, ServiceOptions{})
	_, err := service.Import(context.Background(), []loyalty.Customer{{Mobile: "1", PIN: "abc"}})
	require.ErrorIs(t, err, ErrInvalidCustomer)
	require.Equal(t, CodeInvalidInput, Code(err))
}

type collectionStore struct {
	mu        sync.Mutex
	customers []loyalty.Customer
	saves     int
}

func (c *collectionStore) LoadAll(ctx context.Context) ([]loyalty.Customer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]loyalty.Customer, len(c.customers))
	for i, customer := range c.customers {
		out[i] = customer.Clone()
	}
	return out, nil
}

func (c *collectionStore) SaveAll(ctx context.Context, customers []loyalty.Customer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.customers = customers
	c.saves++
	return nil
}

func TestServiceOverWholeCollectionStore(t *testing.T) {
	database, err := db.Open(db.Options{Storage: storage.NewMemoryStorage()})
	require.NoError(t, err)
	defer database.Close()
	kv := NewKVStore(database)

	customers := &collectionStore{}
	service, err := NewService(ServiceOptions{
		Customers:     customers,
		Config:        kv,
		Notifications: kv,
		CacheSize:     -1,
		Now:           func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = service.Settle(ctx, settleRequest("9000000006", "5555", 200, 250))
	require.NoError(t, err)
	_, err = service.Settle(ctx, settleRequest("9000000007", "6666", 200, 200))
	require.NoError(t, err)
	_, err = service.Settle(ctx, settleRequest("9000000006", "5555", 100, 100))
	require.NoError(t, err)

	all, err := customers.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, 3, customers.saves)

	status, err := service.Lookup(ctx, "9000000006")
	require.NoError(t, err)
	require.Equal(t, int64(50), status.Customer.Points)
	require.Equal(t, 300.0, status.Customer.TotalSpent)
}

func TestSettlementSurvivesRestart(t *testing.T) {
	walPath := filepath.Join(t.TempDir(), "wal.log")
	open := func() (*db.DB, *Service) {
		log, err := wal.NewWAL(walPath)
		require.NoError(t, err)
		database, err := db.Open(db.Options{Storage: storage.NewMemoryStorage(), WAL: log})
		require.NoError(t, err)
		service, err := NewKVService(NewKVStore(database), ServiceOptions{
			Now: func() time.Time { return fixedNow },
		})
		require.NoError(t, err)
		return database, service
	}

	database, service := open()
	_, err := service.Settle(context.Background(), settleRequest("9000000008", "8080", 700, 800))
	require.NoError(t, err)
	require.NoError(t, database.Close())

	database, service = open()
	defer database.Close()
	status, err := service.Lookup(context.Background(), "9000000008")
	require.NoError(t, err)
	require.Equal(t, int64(100), status.Customer.Points)

	log, err := service.Notifications(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, log, 1)
}

func TestServicesSharingStoreDoNotDoubleRedeem(t *testing.T) {
	first, store := newTestService(t, ServiceOptions{})
	second, err := NewKVService(store, ServiceOptions{Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	ctx := context.Background()

	cfg := loyalty.DefaultTierConfig()
	cfg.Discounts = loyalty.TierTable[float64]{}
	_, err = first.SaveConfig(ctx, cfg)
	require.NoError(t, err)

	_, err = first.Settle(ctx, settleRequest("9000000010", "2468", 100, 200))
	require.NoError(t, err)

	redeem := settleRequest("9000000010", "2468", 200, 100)
	redeem.ApplyBenefits = true
	redeem.PointsToRedeem = 100
	result, err := second.Settle(ctx, redeem)
	require.NoError(t, err)
	require.Equal(t, int64(0), result.Customer.Points)

	_, err = first.Settle(ctx, redeem)
	require.ErrorIs(t, err, loyalty.ErrOverRedemption)

	stored, err := store.Get(ctx, "9000000010")
	require.NoError(t, err)
	require.Equal(t, int64(0), stored.Points)
	require.Len(t, stored.History, 2)
}

func TestServicesSharingStoreSerializeSettlements(t *testing.T) {
	first, store := newTestService(t, ServiceOptions{})
	second, err := NewKVService(store, ServiceOptions{Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	services := []*Service{first, second}
	ctx := context.Background()

	const visits = 16
	var wg sync.WaitGroup
	errs := make(chan error, visits)
	for i := 0; i < visits; i++ {
		wg.Add(1)
		go func(service *Service) {
			defer wg.Done()
			_, err := service.Settle(ctx, settleRequest("9000000012", "9753", 100, 110))
			errs <- err
		}(services[i%2])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := store.Get(ctx, "9000000012")
	require.NoError(t, err)
	require.Len(t, stored.History, visits)
	require.Equal(t, int64(10*visits), stored.Points)
}

// gatedClock parks the first call made after arm until release is closed.
type gatedClock struct {
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedClock() *gatedClock {
	return &gatedClock{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedClock) now() time.Time {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return fixedNow
}

// startParkedSettlement begins a settlement and returns once it is inside the
// store update.
func startParkedSettlement(t *testing.T, service *Service, clock *gatedClock, req loyalty.SettleRequest) <-chan error {
	t.Helper()
	clock.armed.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := service.Settle(context.Background(), req)
		done <- err
	}()
	<-clock.entered
	return done
}

func requireBlocked(t *testing.T, done <-chan error, what string) {
	t.Helper()
	select {
	case err := <-done:
		require.Failf(t, "finished during settlement", "%s returned %v", what, err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestImportWaitsForInFlightSettlement(t *testing.T) {
	clock := newGatedClock()
	service, store := newTestService(t, ServiceOptions{Now: clock.now})
	ctx := context.Background()

	_, err := service.Settle(ctx, settleRequest("9000000011", "1357", 100, 150))
	require.NoError(t, err)

	settled := startParkedSettlement(t, service, clock, settleRequest("9000000011", "1357", 100, 100))

	imported := loyalty.Customer{Mobile: "9000000011", Name: "Imported", PIN: "1357", Points: 7, TotalSpent: 70}
	importDone := make(chan error, 1)
	go func() {
		_, err := service.Import(ctx, []loyalty.Customer{imported})
		importDone <- err
	}()
	requireBlocked(t, importDone, "import")

	close(clock.release)
	require.NoError(t, <-settled)
	require.NoError(t, <-importDone)

	stored, err := store.Get(ctx, "9000000011")
	require.NoError(t, err)
	require.Equal(t, "Imported", stored.Name)
	require.Equal(t, int64(7), stored.Points)

	status, err := service.Lookup(ctx, "9000000011")
	require.NoError(t, err)
	require.Equal(t, int64(7), status.Customer.Points, "import must evict the settled copy")
}

func TestResetWaitsForInFlightSettlement(t *testing.T) {
	clock := newGatedClock()
	service, _ := newTestService(t, ServiceOptions{Now: clock.now})
	ctx := context.Background()

	_, err := service.Settle(ctx, settleRequest("9000000013", "8642", 100, 150))
	require.NoError(t, err)

	settled := startParkedSettlement(t, service, clock, settleRequest("9000000013", "8642", 100, 100))

	resetDone := make(chan error, 1)
	go func() {
		resetDone <- service.Reset(ctx)
	}()
	requireBlocked(t, resetDone, "reset")

	close(clock.release)
	require.NoError(t, <-settled)
	require.NoError(t, <-resetDone)

	_, err = service.Lookup(ctx, "9000000013")
	require.ErrorIs(t, err, ErrCustomerNotFound)
	log, err := service.Notifications(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, log)
}
