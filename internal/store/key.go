package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrConflict is returned by Commit when another transaction modified a group
// this transaction read from.
var ErrConflict = errors.New("store: concurrent modification of entity group")

// ErrNotFound is returned when a key has no record.
var ErrNotFound = errors.New("store: record not found")

// Key addresses one record.
type Key struct {
	Group string
	Kind  string
	ID    string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Group, k.Kind, k.ID)
}

// Less orders keys by group then kind then ID.
func (k Key) Less(o Key) bool {
	if k.Group != o.Group {
		return k.Group < o.Group
	}
	if k.Kind != o.Kind {
		return k.Kind < o.Kind
	}
	return k.ID < o.ID
}

// Item is a stored record.
type Item struct {
	Key  Key
	Data []byte
}

// Mutation is one buffered write. Data is nil for deletes.
type Mutation struct {
	Key    Key
	Data   []byte
	Delete bool
}

// Backend is the physical storage contract a Store runs on.
type Backend interface {
	// Version returns the current version of group, zero if never written.
	Version(ctx context.Context, group string) (int64, error)

	// Get returns the record at key or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// List returns up to limit records of kind in group with ID > afterID,
	// ordered by ID. limit <= 0 means no limit.
	List(ctx context.Context, group, kind, afterID string, limit int) ([]Item, error)

	// Scan returns up to limit records of kind across all groups ordered by
	// (group, ID), starting after the key after.
	Scan(ctx context.Context, kind string, after Key, limit int) ([]Item, error)

	// Commit validates reads (group → version observed) and applies writes
	// atomically, or returns ErrConflict.
	Commit(ctx context.Context, reads map[string]int64, writes []Mutation) error

	Close() error
}
