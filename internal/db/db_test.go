package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	wal "github.com/sdrshn-nmbr/tierledger/internal/log"
	"github.com/sdrshn-nmbr/tierledger/internal/storage"
	"github.com/sdrshn-nmbr/tierledger/internal/transaction"
	"github.com/sdrshn-nmbr/tierledger/internal/types"
)

func TestOpenRequiresStorage(t *testing.T) {
	if _, err := Open(Options{}); !errors.Is(err, ErrStorageRequired) {
		t.Fatalf("Expected ErrStorageRequired, got %v", err)
	}
}

func TestDBRecoversFromWAL(t *testing.T) {
	walPath := filepath.Join(t.TempDir(), "wal.log")

	log, err := wal.NewWAL(walPath)
	if err != nil {
		t.Fatalf("NewWAL failed: %v", err)
	}
	database, err := Open(Options{Storage: storage.NewMemoryStorage(), WAL: log})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	status, err := database.Transaction(func(txn *transaction.Transaction) {
		txn.Put(types.Key("cust/9876543210"), []byte("aarav"))
		txn.Put(types.Key("settings"), []byte("defaults"))
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}
	if status != transaction.Committed {
		t.Fatalf("Expected committed, got %s", status)
	}
	if err := database.Delete([]byte("missing")); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Fatalf("Expected ErrKeyNotFound, got %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopenedLog, err := wal.NewWAL(walPath)
	if err != nil {
		t.Fatalf("NewWAL failed: %v", err)
	}
	reopened, err := Open(Options{Storage: storage.NewMemoryStorage(), WAL: reopenedLog})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reopened.Close()

	value, err := reopened.Get([]byte("cust/9876543210"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(value) != "aarav" {
		t.Fatalf("Expected aarav, got %s", string(value))
	}
}

func TestDBScanAllPages(t *testing.T) {
	database, err := Open(Options{Storage: storage.NewMemoryStorage()})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	total := int(scanPageSize) + 10
	txn := transaction.NewTransaction()
	for i := 0; i < total; i++ {
		txn.Put(types.Key(fmt.Sprintf("cust/%010d", i)), []byte("x"))
	}
	txn.Put(types.Key("settings"), []byte("y"))
	if err := database.ExecuteTransaction(txn); err != nil {
		t.Fatalf("ExecuteTransaction failed: %v", err)
	}

	seen := 0
	err = database.ScanAll("cust/", 16, func(entry storage.ScanEntry) error {
		seen++
		return nil
	})
	if err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}
	if seen != total {
		t.Fatalf("Expected %d entries, got %d", total, seen)
	}
}

func TestDBSnapshotIncludesWAL(t *testing.T) {
	dir := t.TempDir()
	log, err := wal.NewWAL(filepath.Join(dir, "wal.log"))
	if err != nil {
		t.Fatalf("NewWAL failed: %v", err)
	}
	database, err := Open(Options{Storage: storage.NewMemoryStorage(), WAL: log})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	if err := database.Put([]byte("settings"), []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	stats, err := database.Snapshot(SnapshotOptions{
		Path:       filepath.Join(dir, "snapshot.bin"),
		IncludeWAL: true,
	})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if stats.Entries != 1 {
		t.Fatalf("Expected 1 entry, got %d", stats.Entries)
	}
	if stats.WALPath == "" || stats.WALBytes == 0 {
		t.Fatalf("Expected WAL copy, got %+v", stats)
	}

	backup, err := database.Backup(BackupOptions{
		Directory:     dir,
		CountPrefixes: []string{"settings", "cust/"},
	})
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	if backup.ManifestPath != filepath.Join(dir, "manifest.json") {
		t.Fatalf("Unexpected manifest path %s", backup.ManifestPath)
	}

	manifest, err := ReadBackupManifest(dir)
	if err != nil {
		t.Fatalf("ReadBackupManifest failed: %v", err)
	}
	if manifest.KeyCounts["settings"] != 1 || manifest.KeyCounts["cust/"] != 0 {
		t.Fatalf("Unexpected key counts %v", manifest.KeyCounts)
	}
	if manifest.Snapshot.Entries != 1 {
		t.Fatalf("Expected 1 snapshot entry, got %d", manifest.Snapshot.Entries)
	}
}

func TestDBCompactRequiresCompacter(t *testing.T) {
	database, err := Open(Options{Storage: storage.NewMemoryStorage()})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	if _, err := database.Compact(context.Background()); !errors.Is(err, ErrCompactionUnsupported) {
		t.Fatalf("Expected ErrCompactionUnsupported, got %v", err)
	}
}

func TestDBRejectsWritesWhenWALFails(t *testing.T) {
	log, err := wal.NewWAL(filepath.Join(t.TempDir(), "wal.log"))
	if err != nil {
		t.Fatalf("NewWAL failed: %v", err)
	}
	store := storage.NewMemoryStorage()
	database, err := Open(Options{Storage: store, WAL: log})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	if err := log.Close(); err != nil {
		t.Fatalf("WAL close failed: %v", err)
	}
	err = database.Put([]byte("cust/9000000001"), []byte("{}"))
	if !errors.Is(err, ErrWALWrite) || !errors.Is(err, wal.ErrClosed) {
		t.Fatalf("Expected ErrWALWrite wrapping wal.ErrClosed, got %v", err)
	}
	if _, err := store.Get(types.Key("cust/9000000001")); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Fatalf("Expected unlogged write to be skipped, got %v", err)
	}
}
