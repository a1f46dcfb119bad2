package log

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sdrshn-nmbr/tierledger/internal/storage"
	"github.com/sdrshn-nmbr/tierledger/internal/transaction"
	"github.com/sdrshn-nmbr/tierledger/internal/types"
)

func TestWALRecoverSkipsAbortedTransactions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := NewWAL(path)
	if err != nil {
		t.Fatalf("NewWAL failed: %v", err)
	}
	defer w.Close()

	txn := transaction.NewTransaction()
	txn.Put(types.Key("cust/9876543210"), []byte(`{"points":125}`))
	txn.Put(types.Key("settings"), []byte(`{}`))

	if err := w.LogBegin(txn); err != nil {
		t.Fatalf("LogBegin failed: %v", err)
	}
	if err := w.LogCommit(txn.ID); err != nil {
		t.Fatalf("LogCommit failed: %v", err)
	}

	aborted := transaction.NewTransaction()
	aborted.Put(types.Key("cust/9123456789"), []byte(`{"points":340}`))
	if err := w.LogBegin(aborted); err != nil {
		t.Fatalf("LogBegin failed: %v", err)
	}
	if err := w.LogAbort(aborted.ID); err != nil {
		t.Fatalf("LogAbort failed: %v", err)
	}

	unterminated := transaction.NewTransaction()
	unterminated.Put(types.Key("cust/8887776665"), []byte(`{"points":50}`))
	if err := w.LogBegin(unterminated); err != nil {
		t.Fatalf("LogBegin failed: %v", err)
	}

	recovered := storage.NewMemoryStorage()
	if err := w.Recover(recovered); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	value, err := recovered.Get(types.Key("cust/9876543210"))
	if err != nil {
		t.Fatalf("Expected committed customer after recovery, got %v", err)
	}
	if string(value) != `{"points":125}` {
		t.Fatalf("Unexpected value %s", string(value))
	}

	for _, key := range []string{"cust/9123456789", "cust/8887776665"} {
		_, err = recovered.Get(types.Key(key))
		if !errors.Is(err, storage.ErrKeyNotFound) {
			t.Fatalf("Expected ErrKeyNotFound for %s, got %v", key, err)
		}
	}
}

func TestWALRecoverReplaysDeletes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := NewWAL(path)
	if err != nil {
		t.Fatalf("NewWAL failed: %v", err)
	}
	defer w.Close()

	put := transaction.NewTransaction()
	put.Put(types.Key("sms/1"), []byte("hello"))
	del := transaction.NewTransaction()
	del.Delete(types.Key("sms/1"))

	for _, txn := range []*transaction.Transaction{put, del} {
		if err := w.LogBegin(txn); err != nil {
			t.Fatalf("LogBegin failed: %v", err)
		}
		if err := w.LogCommit(txn.ID); err != nil {
			t.Fatalf("LogCommit failed: %v", err)
		}
	}

	recovered := storage.NewMemoryStorage()
	if err := w.Recover(recovered); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if _, err := recovered.Get(types.Key("sms/1")); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Fatalf("Expected deleted key to stay deleted, got %v", err)
	}
}

func TestWALRecoverToleratesTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := NewWAL(path)
	if err != nil {
		t.Fatalf("NewWAL failed: %v", err)
	}

	txn := transaction.NewTransaction()
	txn.Put(types.Key("settings"), []byte("v1"))
	if err := w.LogBegin(txn); err != nil {
		t.Fatalf("LogBegin failed: %v", err)
	}
	if err := w.LogCommit(txn.ID); err != nil {
		t.Fatalf("LogCommit failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := file.Write([]byte{recordBegin, 0x24}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	file.Close()

	reopened, err := NewWAL(path)
	if err != nil {
		t.Fatalf("NewWAL failed: %v", err)
	}
	defer reopened.Close()

	recovered := storage.NewMemoryStorage()
	if err := reopened.Recover(recovered); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	value, err := recovered.Get(types.Key("settings"))
	if err != nil || string(value) != "v1" {
		t.Fatalf("Expected v1, got %q (%v)", string(value), err)
	}
}

func TestWALCopyTo(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWAL(filepath.Join(dir, "wal.log"))
	if err != nil {
		t.Fatalf("NewWAL failed: %v", err)
	}
	defer w.Close()

	txn := transaction.NewTransaction()
	txn.Put(types.Key("cust/1"), []byte("x"))
	if err := w.LogBegin(txn); err != nil {
		t.Fatalf("LogBegin failed: %v", err)
	}

	target := filepath.Join(dir, "copy.wal")
	n, err := w.CopyTo(target)
	if err != nil {
		t.Fatalf("CopyTo failed: %v", err)
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if uint64(info.Size()) != n || n == 0 {
		t.Fatalf("Expected %d bytes, got %d", n, info.Size())
	}
}
