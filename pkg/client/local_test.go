package client

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sdrshn-nmbr/tierledger/internal/db"
	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

func settleRequest(mobile, pin string, bill, cash float64) loyalty.SettleRequest {
	return loyalty.SettleRequest{
		Mobile:    mobile,
		PIN:       pin,
		BillInput: loyalty.BillInput{GrossBill: bill, CashTendered: cash},
	}
}

func TestLocalClientSettleHidesPin(t *testing.T) {
	local, err := OpenLocal(context.Background(), LocalOptions{StorageType: StorageMemory})
	if err != nil {
		t.Fatalf("OpenLocal failed: %v", err)
	}
	defer local.Close()

	ctx := context.Background()
	result, err := local.Settle(ctx, settleRequest("9000000010", "2468", 900, 1000))
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if result.Customer.PIN != "" {
		t.Fatalf("Expected PIN to be stripped, got %q", result.Customer.PIN)
	}
	if result.Customer.Points != 100 {
		t.Fatalf("Expected 100 points, got %d", result.Customer.Points)
	}

	status, err := local.Lookup(ctx, "9000000010")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if status.Customer.PIN != "" {
		t.Fatalf("Expected PIN to be stripped on lookup")
	}

	// The stored customer keeps its PIN.
	if _, err := local.VerifyPin(ctx, "9000000010", "2468"); err != nil {
		t.Fatalf("VerifyPin failed: %v", err)
	}
	if _, err := local.VerifyPin(ctx, "9000000010", "1111"); !errors.Is(err, loyalty.ErrAuthenticationFailed) {
		t.Fatalf("Expected authentication failure, got %v", err)
	}
}

func TestLocalClientCompactUnsupportedInMemory(t *testing.T) {
	local, err := OpenLocal(context.Background(), LocalOptions{StorageType: StorageMemory})
	if err != nil {
		t.Fatalf("OpenLocal failed: %v", err)
	}
	defer local.Close()

	if _, err := local.Compact(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Expected ErrUnsupported for memory compaction, got %v", err)
	}
}

func TestLocalClientDiskRestartAndBackup(t *testing.T) {
	dir := t.TempDir()
	opts := LocalOptions{
		StorageType: StorageDisk,
		DataPath:    filepath.Join(dir, "ledger.db"),
		WALPath:     filepath.Join(dir, "ledger.wal"),
	}
	ctx := context.Background()

	local, err := OpenLocal(ctx, opts)
	if err != nil {
		t.Fatalf("OpenLocal failed: %v", err)
	}
	if _, err := local.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if _, err := local.Settle(ctx, settleRequest("9876543210", "9876", 1000, 1000)); err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if _, err := local.Compact(ctx); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	backupDir := filepath.Join(dir, "backup")
	if err := os.Mkdir(backupDir, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	stats, err := local.Backup(ctx, db.BackupOptions{Directory: backupDir, IncludeWAL: true})
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	if stats.Snapshot.Entries == 0 {
		t.Fatalf("Expected snapshot entries")
	}
	manifest, err := db.ReadBackupManifest(backupDir)
	if err != nil {
		t.Fatalf("ReadBackupManifest failed: %v", err)
	}
	if manifest.KeyCounts["cust/"] != 11 || manifest.KeyCounts["sms/"] != 1 {
		t.Fatalf("Unexpected key counts %v", manifest.KeyCounts)
	}
	if err := local.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenLocal(ctx, opts)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()

	status, err := reopened.Lookup(ctx, "9876543210")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if status.Customer.TotalSpent != 9500 {
		t.Fatalf("Expected total 9500, got %v", status.Customer.TotalSpent)
	}
	if len(status.Customer.History) != 4 {
		t.Fatalf("Expected 4 transactions, got %d", len(status.Customer.History))
	}
}

func TestLocalClientExportCSV(t *testing.T) {
	local, err := OpenLocal(context.Background(), LocalOptions{StorageType: StorageMemory})
	if err != nil {
		t.Fatalf("OpenLocal failed: %v", err)
	}
	defer local.Close()

	ctx := context.Background()
	if _, err := local.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	var buf bytes.Buffer
	if err := local.ExportCSV(ctx, &buf); err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Sneha Verma,7001002003,4500,85") {
		t.Fatalf("Unexpected export: %s", buf.String())
	}
	if err := local.ExportCSV(ctx, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestOpenLocalRejectsMissingPaths(t *testing.T) {
	ctx := context.Background()
	if _, err := OpenLocal(ctx, LocalOptions{StorageType: StorageDisk}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Expected ErrInvalidArgument for disk without path, got %v", err)
	}
	if _, err := OpenLocal(ctx, LocalOptions{StorageType: StoragePostgres}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Expected ErrInvalidArgument for postgres without url, got %v", err)
	}
	if _, err := OpenLocal(ctx, LocalOptions{StorageType: "tape"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Expected ErrInvalidArgument for unknown storage, got %v", err)
	}
}
