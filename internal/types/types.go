package types

import (
	"errors"
	"strings"
	"time"
)

type Key string
type Value []byte

type Entry struct {
	Key       Key
	Value     Value
	Timestamp time.Time
}

type OperationType int

const (
	Get OperationType = iota
	Put
	Delete
)

var ErrUnknownOperation = errors.New("unknown operation type")

func (o OperationType) String() string {
	switch o {
	case Get:
		return "get"
	case Put:
		return "put"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

func ParseOperationType(raw string) (OperationType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "get":
		return Get, nil
	case "put":
		return Put, nil
	case "delete", "del":
		return Delete, nil
	default:
		return Get, ErrUnknownOperation
	}
}
