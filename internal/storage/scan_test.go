package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/sdrshn-nmbr/tierledger/internal/types"
)

func ledgerKeys() map[string]string {
	return map[string]string{
		"cust/7001002003":                          "sneha",
		"cust/9876543210":                          "aarav",
		"settings":                                 "{}",
		"sms/0000000000000000001/a":                "first",
		"sms/0000000000000000002/b":                "second",
		"cust/9876543210-archived-placeholder-key": "x",
	}
}

// scanStores runs fn against a memory and a disk store holding ledgerKeys.
func scanStores(t *testing.T, fn func(t *testing.T, store Storage)) {
	t.Helper()
	disk, err := NewDiskStorage(filepath.Join(t.TempDir(), "tierledger.db"))
	if err != nil {
		t.Fatalf("NewDiskStorage failed: %v", err)
	}
	defer disk.Close()

	for name, store := range map[string]Storage{"memory": NewMemoryStorage(), "disk": disk} {
		for key, value := range ledgerKeys() {
			if err := store.Put(types.Key(key), []byte(value)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
		}
		t.Run(name, func(t *testing.T) { fn(t, store) })
	}
}

func TestScanPagesThroughPrefixInKeyOrder(t *testing.T) {
	scanStores(t, func(t *testing.T, store Storage) {
		var keys []types.Key
		var cursor types.Key
		for {
			result, err := store.Scan(ScanRequest{
				Cursor:        cursor,
				Prefix:        types.Key("cust/"),
				Limit:         1,
				IncludeValues: true,
				MaxValueBytes: 64,
			})
			if err != nil {
				t.Fatalf("Scan failed: %v", err)
			}
			for _, entry := range result.Entries {
				keys = append(keys, entry.Key)
				if len(entry.Value) == 0 {
					t.Fatalf("Expected value for %s", entry.Key)
				}
			}
			if result.NextCursor == "" {
				break
			}
			cursor = result.NextCursor
		}

		want := []types.Key{"cust/7001002003", "cust/9876543210", "cust/9876543210-archived-placeholder-key"}
		if len(keys) != len(want) {
			t.Fatalf("Expected %d keys, got %v", len(want), keys)
		}
		for i := range want {
			if keys[i] != want[i] {
				t.Fatalf("Expected %s at %d, got %s", want[i], i, keys[i])
			}
		}
	})
}

func TestScanWithoutValues(t *testing.T) {
	scanStores(t, func(t *testing.T, store Storage) {
		result, err := store.Scan(ScanRequest{Prefix: types.Key("sms/"), Limit: 10})
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if len(result.Entries) != 2 {
			t.Fatalf("Expected 2 notifications, got %d", len(result.Entries))
		}
		if result.Entries[0].Value != nil {
			t.Fatalf("Expected keys only")
		}
		if result.NextCursor != "" {
			t.Fatalf("Expected no cursor on the last page")
		}
	})
}

func TestScanRejectsOversizedValues(t *testing.T) {
	scanStores(t, func(t *testing.T, store Storage) {
		_, err := store.Scan(ScanRequest{
			Prefix:        types.Key("sms/"),
			Limit:         1,
			IncludeValues: true,
			MaxValueBytes: 1,
		})
		if !errors.Is(err, ErrValueTooLarge) {
			t.Fatalf("Expected ErrValueTooLarge, got %v", err)
		}
	})
}

func TestScanRequestValidate(t *testing.T) {
	if err := (ScanRequest{}).Validate(); !errors.Is(err, ErrInvalidScanLimit) {
		t.Fatalf("Expected ErrInvalidScanLimit, got %v", err)
	}
	if err := (ScanRequest{Limit: 1, IncludeValues: true}).Validate(); !errors.Is(err, ErrInvalidValueLimit) {
		t.Fatalf("Expected ErrInvalidValueLimit, got %v", err)
	}
}
