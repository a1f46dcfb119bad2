package storage

import (
	"github.com/sdrshn-nmbr/tierledger/internal/transaction"
	"github.com/sdrshn-nmbr/tierledger/internal/types"
)

// Storage is the key-value contract every engine implements.
type Storage interface {
	Get(key types.Key) (types.Value, error)
	Put(key types.Key, value types.Value) error
	Delete(key types.Key) error
	ExecuteTransaction(t *transaction.Transaction) error
	Scan(req ScanRequest) (ScanResult, error)
	Close() error
}

// stage validates t against lookup and returns the final value of every
// touched key in commit order. A nil value marks a deletion.
func stage(t *transaction.Transaction, exists func(key string) bool) ([]string, map[string]types.Value, error) {
	order := make([]string, 0, len(t.Operations))
	overlay := make(map[string]types.Value, len(t.Operations))

	for _, op := range t.Operations {
		key := string(op.Key)
		switch op.Type {
		case types.Put:
			if _, seen := overlay[key]; !seen {
				order = append(order, key)
			}
			value := op.Value
			if value == nil {
				value = types.Value{}
			}
			overlay[key] = value
		case types.Delete:
			current, seen := overlay[key]
			if seen && current == nil {
				return nil, nil, ErrKeyNotFound
			}
			if !seen && !exists(key) {
				return nil, nil, ErrKeyNotFound
			}
			if !seen {
				order = append(order, key)
			}
			overlay[key] = nil
		case types.Get:
		default:
			return nil, nil, types.ErrUnknownOperation
		}
	}
	return order, overlay, nil
}
