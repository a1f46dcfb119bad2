package storage

import (
	"context"
	"os"

	"golang.org/x/exp/mmap"
)

// RateLimiter throttles compaction writes. *rate.Limiter satisfies it.
type RateLimiter interface {
	WaitN(ctx context.Context, n int) error
}

type CompactOptions struct {
	TempPath    string
	Context     context.Context
	RateLimiter RateLimiter
	// MinDeadRecords skips compaction while fewer stale records exist.
	MinDeadRecords int
}

type CompactStats struct {
	EntriesWritten uint32
	BytesBefore    uint64
	BytesAfter     uint64
	Skipped        bool
}

type Compacter interface {
	Compact(opts CompactOptions) (CompactStats, error)
}

// Compact rewrites the file keeping only the latest record of each live key.
func (d *DiskStorage) Compact(opts CompactOptions) (CompactStats, error) {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.MinDeadRecords < 0 {
		return CompactStats{}, ErrInvalidCompactLimit
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return CompactStats{}, ErrClosed
	}

	stats := CompactStats{BytesBefore: uint64(d.size)}
	if d.dead == 0 || d.dead < opts.MinDeadRecords {
		stats.Skipped = true
		stats.BytesAfter = stats.BytesBefore
		return stats, nil
	}

	body, entries, err := d.liveRecords()
	if err != nil {
		return CompactStats{}, err
	}
	if opts.RateLimiter != nil {
		if err := waitChunks(ctx, opts.RateLimiter, len(body)); err != nil {
			return CompactStats{}, err
		}
	}

	path := d.file.Name()
	written, err := writeFileAtomic(path, opts.TempPath, body)
	if err != nil {
		return CompactStats{}, err
	}

	if err := d.mmap.Close(); err != nil {
		return CompactStats{}, err
	}
	if err := d.file.Close(); err != nil {
		return CompactStats{}, err
	}
	file, err := os.OpenFile(path, os.O_RDWR, 0666)
	if err != nil {
		d.file = nil
		return CompactStats{}, err
	}
	reader, err := mmap.Open(path)
	if err != nil {
		file.Close()
		d.file = nil
		return CompactStats{}, err
	}

	d.file = file
	d.mmap = reader
	d.size = int64(written)
	d.dead = 0
	d.index = make(map[string]diskLocation, entries)
	if err := d.rebuildIndex(); err != nil {
		return CompactStats{}, err
	}

	stats.EntriesWritten = entries
	stats.BytesAfter = written
	return stats, nil
}

// DeadRecords reports how many superseded records a compaction would drop.
func (d *DiskStorage) DeadRecords() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dead
}

// waitChunks charges n bytes against limiter in pieces no larger than its burst.
func waitChunks(ctx context.Context, limiter RateLimiter, n int) error {
	const chunk = 64 << 10
	for n > 0 {
		step := n
		if step > chunk {
			step = chunk
		}
		if err := limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
