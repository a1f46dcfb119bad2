package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	wal "github.com/sdrshn-nmbr/tierledger/internal/log"
	"github.com/sdrshn-nmbr/tierledger/internal/maintenance"
	"github.com/sdrshn-nmbr/tierledger/internal/storage"
	"github.com/sdrshn-nmbr/tierledger/internal/transaction"
	"github.com/sdrshn-nmbr/tierledger/internal/types"
)

type Options struct {
	Storage    storage.Storage
	WAL        *wal.WAL
	Compaction CompactionOptions
	Logger     *slog.Logger
}

type DB struct {
	storage   storage.Storage
	wal       *wal.WAL
	scheduler *maintenance.CompactionScheduler
	cancel    context.CancelFunc
	writeMu   sync.Mutex
}

func Open(opts Options) (*DB, error) {
	if opts.Storage == nil {
		return nil, ErrStorageRequired
	}

	if opts.WAL != nil {
		if err := opts.WAL.Recover(opts.Storage); err != nil {
			return nil, errors.Join(ErrRecoveryFailed, err)
		}
	}

	scheduler, cancel, err := startCompactionScheduler(opts.Storage, opts.Compaction, opts.Logger)
	if err != nil {
		return nil, err
	}

	return &DB{
		storage:   opts.Storage,
		wal:       opts.WAL,
		scheduler: scheduler,
		cancel:    cancel,
	}, nil
}

func (d *DB) Get(key []byte) ([]byte, error) {
	return d.storage.Get(types.Key(key))
}

func (d *DB) Put(key []byte, value []byte) error {
	txn := transaction.NewTransaction()
	txn.Put(types.Key(key), types.Value(value))
	return d.ExecuteTransaction(txn)
}

func (d *DB) Delete(key []byte) error {
	txn := transaction.NewTransaction()
	txn.Delete(types.Key(key))
	return d.ExecuteTransaction(txn)
}

func (d *DB) Transaction(fn func(*transaction.Transaction)) (transaction.TransactionStatus, error) {
	txn := transaction.NewTransaction()
	fn(txn)
	err := d.ExecuteTransaction(txn)
	return txn.Status, err
}

// ExecuteTransaction logs t, applies it and marks the outcome. Writers are
// serialized so the log order matches the apply order.
func (d *DB) ExecuteTransaction(txn *transaction.Transaction) error {
	if txn == nil {
		return ErrInvalidTxn
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if d.wal != nil {
		if err := d.wal.LogBegin(txn); err != nil {
			return errors.Join(ErrWALWrite, fmt.Errorf("begin %s: %w", txn.ID, err))
		}
	}

	if err := d.storage.ExecuteTransaction(txn); err != nil {
		if d.wal != nil {
			if abortErr := d.wal.LogAbort(txn.ID); abortErr != nil {
				return errors.Join(err, ErrWALWrite, abortErr)
			}
		}
		return err
	}

	if d.wal != nil {
		if err := d.wal.LogCommit(txn.ID); err != nil {
			return errors.Join(ErrWALWrite, fmt.Errorf("commit %s: %w", txn.ID, err))
		}
	}

	return nil
}

func (d *DB) Scan(req storage.ScanRequest) (storage.ScanResult, error) {
	return d.storage.Scan(req)
}

// ScanAll pages through every key under prefix.
func (d *DB) ScanAll(prefix string, maxValueBytes uint32, fn func(storage.ScanEntry) error) error {
	cursor := types.Key("")
	for {
		result, err := d.storage.Scan(storage.ScanRequest{
			Cursor:        cursor,
			Prefix:        types.Key(prefix),
			Limit:         scanPageSize,
			IncludeValues: true,
			MaxValueBytes: maxValueBytes,
		})
		if err != nil {
			return err
		}
		for _, entry := range result.Entries {
			if err := fn(entry); err != nil {
				return err
			}
		}
		if result.NextCursor == "" {
			return nil
		}
		cursor = result.NextCursor
	}
}

// Count returns the number of keys under prefix.
func (d *DB) Count(prefix string) (int, error) {
	n := 0
	cursor := types.Key("")
	for {
		result, err := d.storage.Scan(storage.ScanRequest{
			Cursor: cursor,
			Prefix: types.Key(prefix),
			Limit:  scanPageSize,
		})
		if err != nil {
			return 0, err
		}
		n += len(result.Entries)
		if result.NextCursor == "" {
			return n, nil
		}
		cursor = result.NextCursor
	}
}

func (d *DB) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	d.scheduler.Stop()

	var errs []error
	if d.wal != nil {
		if err := d.wal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("wal: %w", err))
		}
	}
	if err := d.storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrCloseFailed}, errs...)...)
}

const scanPageSize uint32 = 256
