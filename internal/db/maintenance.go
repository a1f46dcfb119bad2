package db

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sdrshn-nmbr/tierledger/internal/maintenance"
	"github.com/sdrshn-nmbr/tierledger/internal/storage"
)

type CompactionOptions struct {
	Interval                time.Duration
	MinDeadRecords          int
	RateLimitBytesPerSecond int
	TempPath                string
}

type SnapshotOptions struct {
	Path       string
	IncludeWAL bool
}

type SnapshotStats struct {
	Entries  uint32
	Bytes    uint64
	Path     string
	WALPath  string
	WALBytes uint64
	Duration time.Duration
}

type BackupOptions struct {
	Directory     string
	IncludeWAL    bool
	CountPrefixes []string
}

type BackupStats struct {
	Snapshot     SnapshotStats
	ManifestPath string
	KeyCounts    map[string]int
	Duration     time.Duration
}

const (
	backupSnapshotName = "storage.snapshot"
	backupManifestName = "manifest.json"
)

type BackupManifest struct {
	CreatedAt time.Time      `json:"created_at"`
	Snapshot  SnapshotStats  `json:"snapshot"`
	KeyCounts map[string]int `json:"key_counts,omitempty"`
}

func startCompactionScheduler(
	store storage.Storage,
	opts CompactionOptions,
	logger *slog.Logger,
) (*maintenance.CompactionScheduler, context.CancelFunc, error) {
	if opts.Interval <= 0 {
		return nil, nil, nil
	}
	compacter, ok := store.(storage.Compacter)
	if !ok {
		return nil, nil, ErrCompactionUnsupported
	}
	if opts.MinDeadRecords < 0 || opts.RateLimitBytesPerSecond < 0 {
		return nil, nil, storage.ErrInvalidCompactLimit
	}

	scheduler := maintenance.NewCompactionScheduler(maintenance.CompactionConfig{
		Compacter:               compacter,
		Interval:                opts.Interval,
		MinDeadRecords:          opts.MinDeadRecords,
		RateLimitBytesPerSecond: opts.RateLimitBytesPerSecond,
		TempPath:                opts.TempPath,
		Logger:                  logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	scheduler.Start(ctx)
	return scheduler, cancel, nil
}

// Compact runs one compaction pass immediately.
func (d *DB) Compact(ctx context.Context) (storage.CompactStats, error) {
	compacter, ok := d.storage.(storage.Compacter)
	if !ok {
		return storage.CompactStats{}, ErrCompactionUnsupported
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return compacter.Compact(storage.CompactOptions{Context: ctx})
}

func (d *DB) Snapshot(opts SnapshotOptions) (SnapshotStats, error) {
	start := time.Now()
	if opts.Path == "" {
		return SnapshotStats{}, storage.ErrInvalidPath
	}

	snapshotter, ok := d.storage.(storage.Snapshotter)
	if !ok {
		return SnapshotStats{}, storage.ErrSnapshotUnsupported
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	stats, err := snapshotter.Snapshot(storage.SnapshotOptions{Path: opts.Path})
	if err != nil {
		return SnapshotStats{}, err
	}

	result := SnapshotStats{
		Entries:  stats.Entries,
		Bytes:    stats.Bytes,
		Path:     stats.Path,
		Duration: time.Since(start),
	}

	if opts.IncludeWAL && d.wal != nil {
		walPath := walSnapshotPath(stats.Path)
		walBytes, err := d.wal.CopyTo(walPath)
		if err != nil {
			return result, err
		}
		result.WALPath = walPath
		result.WALBytes = walBytes
	}

	return result, nil
}

// Backup snapshots into an existing directory and writes manifest.json next
// to it. Each of opts.CountPrefixes is recorded with its key count so a
// restore can be sanity-checked without decoding records.
func (d *DB) Backup(opts BackupOptions) (BackupStats, error) {
	start := time.Now()
	if opts.Directory == "" {
		return BackupStats{}, storage.ErrInvalidPath
	}
	info, err := os.Stat(opts.Directory)
	if err != nil {
		return BackupStats{}, err
	}
	if !info.IsDir() {
		return BackupStats{}, storage.ErrInvalidPath
	}

	counts := make(map[string]int, len(opts.CountPrefixes))
	for _, prefix := range opts.CountPrefixes {
		n, err := d.Count(prefix)
		if err != nil {
			return BackupStats{}, err
		}
		counts[prefix] = n
	}

	snapshotStats, err := d.Snapshot(SnapshotOptions{
		Path:       filepath.Join(opts.Directory, backupSnapshotName),
		IncludeWAL: opts.IncludeWAL,
	})
	if err != nil {
		return BackupStats{}, err
	}

	manifestPath := filepath.Join(opts.Directory, backupManifestName)
	manifest := BackupManifest{
		CreatedAt: start.UTC(),
		Snapshot:  snapshotStats,
		KeyCounts: counts,
	}
	if err := writeManifest(manifestPath, manifest); err != nil {
		return BackupStats{}, err
	}

	return BackupStats{
		Snapshot:     snapshotStats,
		ManifestPath: manifestPath,
		KeyCounts:    counts,
		Duration:     time.Since(start),
	}, nil
}

// ReadBackupManifest loads the manifest written by Backup.
func ReadBackupManifest(directory string) (BackupManifest, error) {
	data, err := os.ReadFile(filepath.Join(directory, backupManifestName))
	if err != nil {
		return BackupManifest{}, err
	}
	var manifest BackupManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return BackupManifest{}, errors.Join(storage.ErrCorruptData, err)
	}
	return manifest, nil
}

func writeManifest(path string, manifest BackupManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return nil
}

func walSnapshotPath(snapshotPath string) string {
	return snapshotPath + ".wal"
}
