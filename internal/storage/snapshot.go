package storage

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"sort"

	"github.com/sdrshn-nmbr/tierledger/internal/transaction"
	"github.com/sdrshn-nmbr/tierledger/internal/types"
)

const (
	memorySnapshotMagic   = "TLMS"
	memorySnapshotVersion = uint8(1)
)

type SnapshotOptions struct {
	Path     string
	TempPath string
}

type SnapshotStats struct {
	Entries uint32
	Bytes   uint64
	Path    string
}

type Snapshotter interface {
	Snapshot(opts SnapshotOptions) (SnapshotStats, error)
}

// Snapshot writes every live entry as [magic][version][count u32]{record}.
func (m *MemoryStorage) Snapshot(opts SnapshotOptions) (SnapshotStats, error) {
	if opts.Path == "" {
		return SnapshotStats{}, ErrInvalidPath
	}

	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var body bytes.Buffer
	for _, key := range keys {
		writeRecord(&body, key, m.data[key].Value)
	}
	m.mu.RUnlock()

	var header bytes.Buffer
	header.WriteString(memorySnapshotMagic)
	header.WriteByte(memorySnapshotVersion)
	header.Write(uint32ToBytes(uint32(len(keys))))

	written, err := writeFileAtomic(opts.Path, opts.TempPath, header.Bytes(), body.Bytes())
	if err != nil {
		return SnapshotStats{}, err
	}
	return SnapshotStats{
		Entries: uint32(len(keys)),
		Bytes:   written,
		Path:    opts.Path,
	}, nil
}

// LoadMemorySnapshot restores a MemoryStorage written by Snapshot.
func LoadMemorySnapshot(path string) (*MemoryStorage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	reader := bufio.NewReader(file)

	header := make([]byte, len(memorySnapshotMagic)+1+4)
	if _, err := io.ReadFull(reader, header); err != nil {
		return nil, ErrCorruptData
	}
	if string(header[:4]) != memorySnapshotMagic || header[4] != memorySnapshotVersion {
		return nil, ErrCorruptData
	}
	count := binary.LittleEndian.Uint32(header[5:9])

	txn := transaction.NewTransaction()
	for i := uint32(0); i < count; i++ {
		key, err := readSized(reader)
		if err != nil {
			return nil, err
		}
		value, err := readSized(reader)
		if err != nil {
			return nil, err
		}
		txn.Put(types.Key(key), types.Value(value))
	}

	store := NewMemoryStorage()
	if err := store.ExecuteTransaction(txn); err != nil {
		return nil, err
	}
	return store, nil
}

// Snapshot writes the live records to a fresh file that NewDiskStorage can open.
func (d *DiskStorage) Snapshot(opts SnapshotOptions) (SnapshotStats, error) {
	if opts.Path == "" {
		return SnapshotStats{}, ErrInvalidPath
	}

	d.mu.RLock()
	body, entries, err := d.liveRecords()
	d.mu.RUnlock()
	if err != nil {
		return SnapshotStats{}, err
	}

	written, err := writeFileAtomic(opts.Path, opts.TempPath, nil, body)
	if err != nil {
		return SnapshotStats{}, err
	}
	return SnapshotStats{
		Entries: entries,
		Bytes:   written,
		Path:    opts.Path,
	}, nil
}

func (d *DiskStorage) liveRecords() ([]byte, uint32, error) {
	if d.file == nil {
		return nil, 0, ErrClosed
	}

	keys := make([]string, 0, len(d.index))
	for key := range d.index {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var body bytes.Buffer
	for _, key := range keys {
		value, err := d.readValue(d.index[key])
		if err != nil {
			return nil, 0, err
		}
		writeRecord(&body, key, value)
	}
	return body.Bytes(), uint32(len(keys)), nil
}

func readSized(r io.Reader) ([]byte, error) {
	lenBytes := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBytes); err != nil {
		return nil, ErrCorruptData
	}
	n := binary.LittleEndian.Uint32(lenBytes)
	if n == tombstoneLen {
		return nil, ErrCorruptData
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, ErrCorruptData
	}
	return data, nil
}

func writeFileAtomic(path string, tempPath string, chunks ...[]byte) (uint64, error) {
	if tempPath == "" {
		tempPath = path + ".tmp"
	}
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return 0, err
	}

	var written uint64
	for _, chunk := range chunks {
		n, err := file.Write(chunk)
		written += uint64(n)
		if err != nil {
			file.Close()
			_ = os.Remove(tempPath)
			return 0, err
		}
	}
	if err := file.Sync(); err != nil {
		file.Close()
		_ = os.Remove(tempPath)
		return 0, err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tempPath)
		return 0, err
	}
	return written, os.Rename(tempPath, path)
}
