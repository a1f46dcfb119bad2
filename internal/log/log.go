package log

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/sdrshn-nmbr/tierledger/internal/transaction"
	"github.com/sdrshn-nmbr/tierledger/internal/types"
)

const (
	recordBegin  uint8 = 1
	recordCommit uint8 = 2
	recordAbort  uint8 = 3
)

var (
	ErrClosed        = errors.New("wal closed")
	ErrCorruptRecord = errors.New("corrupt wal record")
)

// Applier receives committed transactions during recovery.
type Applier interface {
	ExecuteTransaction(t *transaction.Transaction) error
}

type WAL struct {
	file *os.File
	mu   sync.Mutex
}

func NewWAL(filename string) (*WAL, error) {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}

	return &WAL{file: file}, nil
}

// LogBegin writes the full operation set of t under its ID.
// Format: [kind u8][id len u16][id][op count u32]{[op u8][key len u32][key][value len u32][value]}
func (w *WAL) LogBegin(t *transaction.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ErrClosed
	}

	buf := bufio.NewWriter(w.file)
	if err := writeHeader(buf, recordBegin, t.ID); err != nil {
		return err
	}

	ops := make([]transaction.Operation, 0, len(t.Operations))
	for _, op := range t.Operations {
		// Only Put and Delete change data
		if op.Type == types.Put || op.Type == types.Delete {
			ops = append(ops, op)
		}
	}

	if err := binary.Write(buf, binary.LittleEndian, uint32(len(ops))); err != nil {
		return err
	}
	for _, op := range ops {
		if err := buf.WriteByte(uint8(op.Type)); err != nil {
			return err
		}
		if err := writeBytes(buf, []byte(op.Key)); err != nil {
			return err
		}
		if err := writeBytes(buf, op.Value); err != nil {
			return err
		}
	}

	if err := buf.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

func (w *WAL) LogCommit(id string) error {
	return w.logMarker(recordCommit, id)
}

func (w *WAL) LogAbort(id string) error {
	return w.logMarker(recordAbort, id)
}

func (w *WAL) logMarker(kind uint8, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ErrClosed
	}

	buf := bufio.NewWriter(w.file)
	if err := writeHeader(buf, kind, id); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Recover replays every committed transaction in log order. Aborted and
// unterminated transactions are skipped. A torn tail record ends replay.
func (w *WAL) Recover(target Applier) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ErrClosed
	}

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader := bufio.NewReader(w.file)

	pending := make(map[string]*transaction.Transaction)
	for {
		kind, id, err := readHeader(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return err
		}

		switch kind {
		case recordBegin:
			txn, err := readOperations(reader, id)
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					return w.seekEnd()
				}
				return err
			}
			pending[id] = txn
		case recordCommit:
			txn, ok := pending[id]
			if !ok {
				continue
			}
			delete(pending, id)
			if err := target.ExecuteTransaction(txn); err != nil {
				return err
			}
		case recordAbort:
			delete(pending, id)
		default:
			return ErrCorruptRecord
		}
	}

	return w.seekEnd()
}

// CopyTo writes a byte copy of the log to path and returns its size.
func (w *WAL) CopyTo(path string) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return 0, ErrClosed
	}

	if err := w.file.Sync(); err != nil {
		return 0, err
	}
	src, err := os.Open(w.file.Name())
	if err != nil {
		return 0, err
	}
	defer src.Close()

	tempPath := path + ".tmp"
	dst, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(dst, src)
	if err != nil {
		dst.Close()
		_ = os.Remove(tempPath)
		return 0, err
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		_ = os.Remove(tempPath)
		return 0, err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tempPath)
		return 0, err
	}
	if err := os.Rename(tempPath, path); err != nil {
		return 0, err
	}
	return uint64(written), nil
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *WAL) seekEnd() error {
	_, err := w.file.Seek(0, io.SeekEnd)
	return err
}

func writeHeader(buf *bufio.Writer, kind uint8, id string) error {
	if len(id) > 0xFFFF {
		return ErrCorruptRecord
	}
	if err := buf.WriteByte(kind); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(id))); err != nil {
		return err
	}
	_, err := buf.WriteString(id)
	return err
}

func readHeader(r *bufio.Reader) (uint8, string, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return 0, "", err
	}
	var idLen uint16
	if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
		return 0, "", unexpected(err)
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(r, id); err != nil {
		return 0, "", unexpected(err)
	}
	return kind, string(id), nil
}

func readOperations(r *bufio.Reader, id string) (*transaction.Transaction, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, unexpected(err)
	}

	txn := &transaction.Transaction{
		ID:         id,
		Operations: make([]transaction.Operation, 0, count),
		Status:     transaction.Pending,
	}
	for i := uint32(0); i < count; i++ {
		opType, err := r.ReadByte()
		if err != nil {
			return nil, unexpected(err)
		}
		key, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		value, err := readBytes(r)
		if err != nil {
			return nil, err
		}

		switch types.OperationType(opType) {
		case types.Put:
			txn.Put(types.Key(key), types.Value(value))
		case types.Delete:
			txn.Delete(types.Key(key))
		default:
			return nil, ErrCorruptRecord
		}
	}
	return txn, nil
}

func writeBytes(buf *bufio.Writer, data []byte) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err := buf.Write(data)
	return err
}

func readBytes(r *bufio.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, unexpected(err)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, unexpected(err)
	}
	return data, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
