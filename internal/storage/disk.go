package storage

import (
	"bytes"
	"encoding/binary"
	"os"
	"sync"

	"github.com/sdrshn-nmbr/tierledger/internal/transaction"
	"github.com/sdrshn-nmbr/tierledger/internal/types"
	"golang.org/x/exp/mmap"
)

// tombstoneLen in the value length slot marks a deleted key.
const tombstoneLen uint32 = 0xFFFFFFFF

type diskLocation struct {
	offset int64
	length uint32
}

// DiskStorage is an append-only record file read through a memory map.
// Record format: [key length u32][key][value length u32][value].
type DiskStorage struct {
	file  *os.File
	mmap  *mmap.ReaderAt
	size  int64
	index map[string]diskLocation
	dead  int
	mu    sync.RWMutex
}

func NewDiskStorage(filename string) (*DiskStorage, error) {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	mmapFile, err := mmap.Open(filename)
	if err != nil {
		file.Close()
		return nil, err
	}

	d := &DiskStorage{
		file:  file,
		mmap:  mmapFile,
		size:  info.Size(),
		index: make(map[string]diskLocation),
	}
	if err := d.rebuildIndex(); err != nil {
		d.mmap.Close()
		file.Close()
		return nil, err
	}
	return d, nil
}

func (d *DiskStorage) Get(key types.Key) (types.Value, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.file == nil {
		return nil, ErrClosed
	}

	loc, ok := d.index[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return d.readValue(loc)
}

func (d *DiskStorage) Put(key types.Key, value types.Value) error {
	txn := transaction.NewTransaction()
	txn.Put(key, value)
	return d.ExecuteTransaction(txn)
}

func (d *DiskStorage) Delete(key types.Key) error {
	txn := transaction.NewTransaction()
	txn.Delete(key)
	return d.ExecuteTransaction(txn)
}

// ExecuteTransaction appends every record of t in one write and syncs once.
func (d *DiskStorage) ExecuteTransaction(t *transaction.Transaction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return ErrClosed
	}

	order, overlay, err := stage(t, func(key string) bool {
		_, ok := d.index[key]
		return ok
	})
	if err != nil {
		t.Status = transaction.Aborted
		return err
	}
	if len(order) == 0 {
		t.Status = transaction.Committed
		return nil
	}

	var buf bytes.Buffer
	locations := make(map[string]diskLocation, len(order))
	for _, key := range order {
		value := overlay[key]
		valueOffset := d.size + int64(buf.Len()) + 4 + int64(len(key)) + 4
		writeRecord(&buf, key, value)
		if value != nil {
			locations[key] = diskLocation{offset: valueOffset, length: uint32(len(value))}
		}
	}

	if _, err := d.file.WriteAt(buf.Bytes(), d.size); err != nil {
		t.Status = transaction.Aborted
		return err
	}
	if err := d.file.Sync(); err != nil {
		t.Status = transaction.Aborted
		return err
	}
	if err := d.remapFile(); err != nil {
		t.Status = transaction.Aborted
		return err
	}

	for _, key := range order {
		if _, existed := d.index[key]; existed {
			d.dead++
		}
		if loc, ok := locations[key]; ok {
			d.index[key] = loc
		} else {
			delete(d.index, key)
			d.dead++
		}
	}
	t.Status = transaction.Committed
	return nil
}

func (d *DiskStorage) Scan(req ScanRequest) (ScanResult, error) {
	if err := req.Validate(); err != nil {
		return ScanResult{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.file == nil {
		return ScanResult{}, ErrClosed
	}

	keys := make([]string, 0, len(d.index))
	for key := range d.index {
		keys = append(keys, key)
	}
	page, next := pageKeys(keys, req)

	entries := make([]ScanEntry, 0, len(page))
	for _, key := range page {
		entry := ScanEntry{Key: types.Key(key)}
		if req.IncludeValues {
			loc := d.index[key]
			if loc.length > req.MaxValueBytes {
				return ScanResult{}, ErrValueTooLarge
			}
			value, err := d.readValue(loc)
			if err != nil {
				return ScanResult{}, err
			}
			entry.Value = value
		}
		entries = append(entries, entry)
	}
	return ScanResult{Entries: entries, NextCursor: next}, nil
}

func (d *DiskStorage) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}

	if err := d.mmap.Close(); err != nil {
		return err
	}
	err := d.file.Close()
	d.file = nil
	return err
}

func (d *DiskStorage) rebuildIndex() error {
	var offset int64
	for offset < d.size {
		key, valueLen, next, err := d.readHeaderAt(offset)
		if err != nil {
			return err
		}
		if _, existed := d.index[key]; existed {
			d.dead++
		}
		if valueLen == tombstoneLen {
			delete(d.index, key)
			d.dead++
			offset = next
			continue
		}
		d.index[key] = diskLocation{offset: next, length: valueLen}
		offset = next + int64(valueLen)
	}
	if offset != d.size {
		return ErrCorruptData
	}
	return nil
}

// readHeaderAt returns the key and value length of the record at offset plus
// the offset where its value begins.
func (d *DiskStorage) readHeaderAt(offset int64) (string, uint32, int64, error) {
	lenBytes := make([]byte, 4)
	if _, err := d.mmap.ReadAt(lenBytes, offset); err != nil {
		return "", 0, 0, ErrCorruptData
	}
	keyLen := binary.LittleEndian.Uint32(lenBytes)
	offset += 4

	if offset+int64(keyLen)+4 > d.size {
		return "", 0, 0, ErrCorruptData
	}
	key := make([]byte, keyLen)
	if _, err := d.mmap.ReadAt(key, offset); err != nil {
		return "", 0, 0, ErrCorruptData
	}
	offset += int64(keyLen)

	if _, err := d.mmap.ReadAt(lenBytes, offset); err != nil {
		return "", 0, 0, ErrCorruptData
	}
	valueLen := binary.LittleEndian.Uint32(lenBytes)
	offset += 4

	if valueLen != tombstoneLen && offset+int64(valueLen) > d.size {
		return "", 0, 0, ErrCorruptData
	}
	return string(key), valueLen, offset, nil
}

func (d *DiskStorage) readValue(loc diskLocation) (types.Value, error) {
	value := make([]byte, loc.length)
	if loc.length == 0 {
		return value, nil
	}
	if _, err := d.mmap.ReadAt(value, loc.offset); err != nil {
		return nil, err
	}
	return value, nil
}

func (d *DiskStorage) remapFile() error {
	if err := d.mmap.Close(); err != nil {
		return err
	}

	mmapFile, err := mmap.Open(d.file.Name())
	if err != nil {
		return err
	}
	d.mmap = mmapFile

	info, err := d.file.Stat()
	if err != nil {
		return err
	}
	d.size = info.Size()

	return nil
}

func writeRecord(buf *bytes.Buffer, key string, value types.Value) {
	buf.Write(uint32ToBytes(uint32(len(key))))
	buf.WriteString(key)
	if value == nil {
		buf.Write(uint32ToBytes(tombstoneLen))
		return
	}
	buf.Write(uint32ToBytes(uint32(len(value))))
	buf.Write(value)
}

func uint32ToBytes(u uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, u)
	return b
}
