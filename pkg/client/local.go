package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/sdrshn-nmbr/tierledger/internal/db"
	"github.com/sdrshn-nmbr/tierledger/internal/ledger"
	wal "github.com/sdrshn-nmbr/tierledger/internal/log"
	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
	"github.com/sdrshn-nmbr/tierledger/internal/storage"
	"github.com/sdrshn-nmbr/tierledger/internal/store/postgres"
)

type StorageType string

const (
	StorageMemory   StorageType = "memory"
	StorageDisk     StorageType = "disk"
	StoragePostgres StorageType = "postgres"
)

type LocalOptions struct {
	StorageType StorageType
	DataPath    string
	WALPath     string
	// RestorePath seeds memory storage from a snapshot file.
	RestorePath string
	PostgresURL string
	Pool        postgres.PoolOptions

	Compaction db.CompactionOptions
	CacheSize  int
	Sink       ledger.NotificationSink
	Observer   ledger.Observer
	Logger     *slog.Logger
	Now        func() time.Time
}

// LocalClient runs the ledger in-process. It is also the backend the server
// binary wraps.
type LocalClient struct {
	service *ledger.Service
	db      *db.DB
	pg      *postgres.Store
}

func OpenLocal(ctx context.Context, opts LocalOptions) (*LocalClient, error) {
	serviceOpts := ledger.ServiceOptions{
		Sink:      opts.Sink,
		Observer:  opts.Observer,
		Logger:    opts.Logger,
		CacheSize: opts.CacheSize,
		Now:       opts.Now,
	}

	if opts.StorageType == StoragePostgres {
		if opts.PostgresURL == "" {
			return nil, ErrInvalidArgument
		}
		pool := opts.Pool
		if pool == (postgres.PoolOptions{}) {
			pool = postgres.DefaultPoolOptions()
		}
		pg, err := postgres.Open(ctx, opts.PostgresURL, pool)
		if err != nil {
			return nil, err
		}
		serviceOpts.Customers = pg
		serviceOpts.Config = pg
		serviceOpts.Notifications = pg
		// Other processes may write the same database.
		serviceOpts.CacheSize = -1
		service, err := ledger.NewService(serviceOpts)
		if err != nil {
			pg.Close()
			return nil, err
		}
		return &LocalClient{service: service, pg: pg}, nil
	}

	store, err := buildStorage(opts)
	if err != nil {
		return nil, err
	}

	var walLog *wal.WAL
	if opts.WALPath != "" {
		walLog, err = wal.NewWAL(opts.WALPath)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	database, err := db.Open(db.Options{
		Storage:    store,
		WAL:        walLog,
		Compaction: opts.Compaction,
		Logger:     opts.Logger,
	})
	if err != nil {
		_ = store.Close()
		if walLog != nil {
			_ = walLog.Close()
		}
		return nil, err
	}

	service, err := ledger.NewKVService(ledger.NewKVStore(database), serviceOpts)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	return &LocalClient{service: service, db: database}, nil
}

// Service exposes the underlying ledger for in-process wiring.
func (c *LocalClient) Service() *ledger.Service {
	return c.service
}

// Ping checks the backing store. Embedded storage is always reachable.
func (c *LocalClient) Ping(ctx context.Context) error {
	if c.pg != nil {
		return c.pg.Ping(ctx)
	}
	return ctx.Err()
}

func (c *LocalClient) Settle(ctx context.Context, req loyalty.SettleRequest) (loyalty.SettlementResult, error) {
	result, err := c.service.Settle(ctx, req)
	if err != nil {
		return loyalty.SettlementResult{}, err
	}
	result.Customer = withoutPin(result.Customer)
	return result, nil
}

func (c *LocalClient) Preview(ctx context.Context, req loyalty.SettleRequest) (ledger.Preview, error) {
	return c.service.Preview(ctx, req)
}

func (c *LocalClient) VerifyPin(ctx context.Context, mobile string, pin string) (ledger.Verification, error) {
	return c.service.VerifyPin(ctx, mobile, pin)
}

func (c *LocalClient) Lookup(ctx context.Context, mobile string) (ledger.CustomerStatus, error) {
	status, err := c.service.Lookup(ctx, mobile)
	if err != nil {
		return ledger.CustomerStatus{}, err
	}
	status.Customer = withoutPin(status.Customer)
	return status, nil
}

func (c *LocalClient) ListCustomers(ctx context.Context) ([]ledger.CustomerStatus, error) {
	statuses, err := c.service.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range statuses {
		statuses[i].Customer = withoutPin(statuses[i].Customer)
	}
	return statuses, nil
}

func (c *LocalClient) Overview(ctx context.Context) (loyalty.Overview, error) {
	return c.service.Overview(ctx)
}

func (c *LocalClient) Analytics(ctx context.Context) (loyalty.Analytics, error) {
	return c.service.Analytics(ctx)
}

func (c *LocalClient) ExportCSV(ctx context.Context, w io.Writer) error {
	if w == nil {
		return ErrInvalidArgument
	}
	_, err := c.service.ExportCSV(ctx, w)
	return err
}

func (c *LocalClient) Config(ctx context.Context) (loyalty.TierConfig, error) {
	return c.service.Config(ctx)
}

func (c *LocalClient) SaveConfig(ctx context.Context, cfg loyalty.TierConfig) (loyalty.TierConfig, error) {
	return c.service.SaveConfig(ctx, cfg)
}

func (c *LocalClient) Notifications(ctx context.Context, limit int) ([]loyalty.Notification, error) {
	if limit < 0 {
		return nil, ErrInvalidArgument
	}
	return c.service.Notifications(ctx, limit)
}

func (c *LocalClient) Import(ctx context.Context, customers []loyalty.Customer) (int, error) {
	return c.service.Import(ctx, customers)
}

func (c *LocalClient) Seed(ctx context.Context) (int, error) {
	return c.service.Seed(ctx)
}

func (c *LocalClient) Reset(ctx context.Context) error {
	return c.service.Reset(ctx)
}

func (c *LocalClient) Compact(ctx context.Context) (storage.CompactStats, error) {
	if err := ctx.Err(); err != nil {
		return storage.CompactStats{}, err
	}
	if c.db == nil {
		return storage.CompactStats{}, ErrUnsupported
	}
	stats, err := c.db.Compact(ctx)
	if err != nil {
		return storage.CompactStats{}, mapStorageError(err)
	}
	return stats, nil
}

func (c *LocalClient) Snapshot(ctx context.Context, opts db.SnapshotOptions) (db.SnapshotStats, error) {
	if err := ctx.Err(); err != nil {
		return db.SnapshotStats{}, err
	}
	if c.db == nil {
		return db.SnapshotStats{}, ErrUnsupported
	}
	stats, err := c.db.Snapshot(opts)
	if err != nil {
		return db.SnapshotStats{}, mapStorageError(err)
	}
	return stats, nil
}

func (c *LocalClient) Backup(ctx context.Context, opts db.BackupOptions) (db.BackupStats, error) {
	if err := ctx.Err(); err != nil {
		return db.BackupStats{}, err
	}
	if c.db == nil {
		return db.BackupStats{}, ErrUnsupported
	}
	if len(opts.CountPrefixes) == 0 {
		opts.CountPrefixes = []string{ledger.CustomerPrefix(), ledger.NotificationPrefix()}
	}
	stats, err := c.db.Backup(opts)
	if err != nil {
		return db.BackupStats{}, mapStorageError(err)
	}
	return stats, nil
}

func (c *LocalClient) Close() error {
	if c.pg != nil {
		c.pg.Close()
		return nil
	}
	return c.db.Close()
}

func buildStorage(opts LocalOptions) (storage.Storage, error) {
	switch opts.StorageType {
	case StorageMemory, "":
		if opts.RestorePath != "" {
			return storage.LoadMemorySnapshot(opts.RestorePath)
		}
		return storage.NewMemoryStorage(), nil
	case StorageDisk:
		if opts.DataPath == "" {
			return nil, ErrInvalidArgument
		}
		return storage.NewDiskStorage(opts.DataPath)
	default:
		return nil, ErrInvalidArgument
	}
}

func mapStorageError(err error) error {
	switch {
	case errors.Is(err, db.ErrCompactionUnsupported),
		errors.Is(err, storage.ErrSnapshotUnsupported):
		return errors.Join(ErrUnsupported, err)
	case errors.Is(err, storage.ErrInvalidPath):
		return errors.Join(ErrInvalidArgument, err)
	default:
		return err
	}
}
