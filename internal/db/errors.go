package db

import "errors"

var (
	ErrStorageRequired = errors.New("db: storage is required")
	ErrInvalidTxn      = errors.New("db: nil transaction")
	// ErrRecoveryFailed means the WAL could not be replayed on open.
	ErrRecoveryFailed = errors.New("db: wal replay failed")
	// ErrWALWrite wraps a failed begin, commit or abort record.
	ErrWALWrite              = errors.New("db: wal write failed")
	ErrCloseFailed           = errors.New("db: close failed")
	ErrCompactionUnsupported = errors.New("db: storage does not support compaction")
)
