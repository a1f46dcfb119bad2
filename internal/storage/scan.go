package storage

import (
	"math"
	"slices"
	"strings"

	"github.com/sdrshn-nmbr/tierledger/internal/types"
)

// ScanRequest pages through keys in ascending order. Cursor is the last key
// of the previous page; an empty NextCursor ends the scan.
type ScanRequest struct {
	Cursor        types.Key
	Prefix        types.Key
	Limit         uint32
	IncludeValues bool
	MaxValueBytes uint32
}

type ScanEntry struct {
	Key   types.Key
	Value types.Value
}

type ScanResult struct {
	Entries    []ScanEntry
	NextCursor types.Key
}

func (r ScanRequest) Validate() error {
	if r.Limit == 0 || uint64(r.Limit) > math.MaxInt {
		return ErrInvalidScanLimit
	}
	if r.IncludeValues && (r.MaxValueBytes == 0 || uint64(r.MaxValueBytes) > math.MaxInt) {
		return ErrInvalidValueLimit
	}
	return nil
}

// pageKeys sorts keys in place and returns the page req selects along with
// the cursor for the next page. Values are read only for the returned keys.
func pageKeys(keys []string, req ScanRequest) ([]string, types.Key) {
	prefix := string(req.Prefix)
	if prefix != "" {
		keys = slices.DeleteFunc(keys, func(key string) bool {
			return !strings.HasPrefix(key, prefix)
		})
	}
	slices.Sort(keys)

	start := 0
	if cursor := string(req.Cursor); cursor != "" {
		start, _ = slices.BinarySearch(keys, cursor)
		if start < len(keys) && keys[start] == cursor {
			start++
		}
	}
	if start >= len(keys) {
		return nil, ""
	}

	end := min(start+int(req.Limit), len(keys))
	page := keys[start:end]
	if end == len(keys) {
		return page, ""
	}
	return page, types.Key(page[len(page)-1])
}
