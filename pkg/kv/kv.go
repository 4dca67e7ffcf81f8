// Package kv provides the durable key-value document storage used to persist tracker state.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no document is stored under a key.
var ErrNotFound = errors.New("document not found")

// Storage is a durable key-value store holding one JSON document per key.
// Put must replace the previous value atomically so a failed write leaves
// the last good document in place.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}
