package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
)

// Store runs transactions against a Backend.
type Store struct {
	backend Backend
	log     *logrus.Entry
}

// New wraps backend. A nil log uses the standard logger.
func New(backend Backend, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{backend: backend, log: log.WithField("component", "store")}
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// RunInTx runs fn in a new transaction and commits it if fn returns nil.
// A commit that loses a race returns an error wrapping ErrConflict. The
// transaction is not retried.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx := newTx(s.backend)
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.commit(ctx); err != nil {
		if errors.Is(err, ErrConflict) {
			s.log.WithField("groups", len(tx.reads)).Debug("transaction lost commit race")
		}
		return err
	}
	return nil
}

// View runs fn in a transaction that is discarded instead of committed.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	return fn(newTx(s.backend))
}

// Scan walks records of kind across every group. It is not transactional.
func (s *Store) Scan(ctx context.Context, kind string, after Key, limit int) ([]Item, error) {
	items, err := s.backend.Scan(ctx, kind, after, limit)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", kind, err)
	}
	return items, nil
}

// Tx is a buffered optimistic transaction. It is not safe for concurrent use.
type Tx struct {
	backend Backend
	reads   map[string]int64
	writes  map[Key]Mutation
}

func newTx(backend Backend) *Tx {
	return &Tx{
		backend: backend,
		reads:   make(map[string]int64),
		writes:  make(map[Key]Mutation),
	}
}

// observe records the version of group on first touch. The version is read
// before any data so that a concurrent commit between the two reads shows up
// as a conflict rather than as a stale read.
func (tx *Tx) observe(ctx context.Context, group string) error {
	if _, ok := tx.reads[group]; ok {
		return nil
	}
	v, err := tx.backend.Version(ctx, group)
	if err != nil {
		return fmt.Errorf("read version of %s: %w", group, err)
	}
	tx.reads[group] = v
	return nil
}

// Get decodes the record at key into out. Buffered writes of this transaction
// are visible.
func (tx *Tx) Get(ctx context.Context, key Key, out any) error {
	if m, ok := tx.writes[key]; ok {
		if m.Delete {
			return fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		return json.Unmarshal(m.Data, out)
	}
	if err := tx.observe(ctx, key.Group); err != nil {
		return err
	}
	data, err := tx.backend.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Put buffers a write of v at key.
func (tx *Tx) Put(key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	tx.writes[key] = Mutation{Key: key, Data: data}
	return nil
}

// Delete buffers removal of key.
func (tx *Tx) Delete(key Key) {
	tx.writes[key] = Mutation{Key: key, Delete: true}
}

// Observe adds group to the read set without reading a record, so that a
// commit fails if group changes before this transaction commits.
func (tx *Tx) Observe(ctx context.Context, group string) error {
	return tx.observe(ctx, group)
}

// List is an ancestor query: records of kind in group with ID > afterID,
// ordered by ID, at most limit (limit <= 0 means all). Buffered writes of
// this transaction are visible.
func (tx *Tx) List(ctx context.Context, group, kind, afterID string, limit int) ([]Item, error) {
	if err := tx.observe(ctx, group); err != nil {
		return nil, err
	}
	var pending []Mutation
	for k, m := range tx.writes {
		if k.Group == group && k.Kind == kind && k.ID > afterID {
			pending = append(pending, m)
		}
	}
	backendLimit := limit
	if len(pending) > 0 {
		backendLimit = 0
	}
	items, err := tx.backend.List(ctx, group, kind, afterID, backendLimit)
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", group, kind, err)
	}
	if len(pending) == 0 {
		return items, nil
	}

	merged := make(map[string]Item, len(items)+len(pending))
	for _, it := range items {
		merged[it.Key.ID] = it
	}
	for _, m := range pending {
		if m.Delete {
			delete(merged, m.Key.ID)
			continue
		}
		merged[m.Key.ID] = Item{Key: m.Key, Data: m.Data}
	}
	out := make([]Item, 0, len(merged))
	for _, it := range merged {
		out = append(out, it)
	}
	slices.SortFunc(out, func(a, b Item) int {
		switch {
		case a.Key.ID < b.Key.ID:
			return -1
		case a.Key.ID > b.Key.ID:
			return 1
		}
		return 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Dirty reports whether the transaction has buffered writes.
func (tx *Tx) Dirty() bool {
	return len(tx.writes) > 0
}

func (tx *Tx) commit(ctx context.Context) error {
	if len(tx.writes) == 0 {
		return nil
	}
	writes := make([]Mutation, 0, len(tx.writes))
	for _, m := range tx.writes {
		writes = append(writes, m)
	}
	slices.SortFunc(writes, func(a, b Mutation) int {
		if a.Key.Less(b.Key) {
			return -1
		}
		if b.Key.Less(a.Key) {
			return 1
		}
		return 0
	})
	if err := tx.backend.Commit(ctx, tx.reads, writes); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetAs decodes the record at key as a T.
func GetAs[T any](ctx context.Context, tx *Tx, key Key) (T, error) {
	var v T
	err := tx.Get(ctx, key, &v)
	return v, err
}

// ListAs runs List and decodes every record as a T.
func ListAs[T any](ctx context.Context, tx *Tx, group, kind, afterID string, limit int) ([]T, error) {
	items, err := tx.List(ctx, group, kind, afterID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		var v T
		if err := json.Unmarshal(it.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", it.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}
