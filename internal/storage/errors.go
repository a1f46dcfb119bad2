package storage

import "errors"

var (
	ErrKeyNotFound         = errors.New("key not found")
	ErrCorruptData         = errors.New("corrupt data")
	ErrClosed              = errors.New("storage closed")
	ErrInvalidScanLimit    = errors.New("scan limit must be greater than zero")
	ErrInvalidValueLimit   = errors.New("max value bytes must be greater than zero")
	ErrValueTooLarge       = errors.New("value exceeds max value bytes")
	ErrInvalidPath         = errors.New("invalid path")
	ErrSnapshotUnsupported = errors.New("snapshot unsupported by storage")
	ErrInvalidCompactLimit = errors.New("invalid compaction limit")
)
