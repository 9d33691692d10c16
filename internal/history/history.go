// Package history is the append-only audit trail of resource revisions.
//
// Every committed revision writes one HistoryEntry and a snapshot of the
// resulting resource into the resource's entity group. Entry IDs are the
// zero-padded revision number, and a revision can only be written by a
// transaction that read the previous one, so ID order is commit order.
package history

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/store"
)

// Store kinds written by the log.
const (
	EntryKind    = "HistoryEntry"
	RevisionKind = "Revision"
)

const defaultPageSize = 50

// Log reads and writes history entries.
type Log struct {
	store    *store.Store
	pageSize int
}

// Option configures a Log.
type Option func(*Log)

// WithPageSize sets how many entries ListFor reads per store round trip.
func WithPageSize(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// New returns a Log reading from st.
func New(st *store.Store, opts ...Option) *Log {
	l := &Log{store: st, pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append writes the entry for the revision snapshot within tx. It fails only
// when the transaction does.
func (l *Log) Append(tx *store.Tx, snapshot *model.Resource, client string, superuser bool, cmd model.CommandType, now time.Time) (model.HistoryEntry, error) {
	entry := model.HistoryEntry{
		ID:         model.HistoryID(snapshot.Revision),
		Resource:   snapshot.Ref(),
		Name:       snapshot.Name,
		Client:     client,
		Superuser:  superuser,
		Command:    cmd,
		CommitTime: now,
		Revision:   snapshot.Revision,
	}
	group := snapshot.Ref().Group()
	if err := tx.Put(store.Key{Group: group, Kind: EntryKind, ID: entry.ID}, entry); err != nil {
		return model.HistoryEntry{}, fmt.Errorf("append history entry: %w", err)
	}
	if err := tx.Put(store.Key{Group: group, Kind: RevisionKind, ID: entry.ID}, snapshot); err != nil {
		return model.HistoryEntry{}, fmt.Errorf("append revision snapshot: %w", err)
	}
	return entry, nil
}

// ListFor returns the entries of a resource in commit order. The sequence is
// lazy: each page is read in its own read-only transaction when the consumer
// reaches it. Entries are immutable, so the sequence can be iterated again.
func (l *Log) ListFor(ctx context.Context, ref model.ResourceRef) iter.Seq2[model.HistoryEntry, error] {
	return func(yield func(model.HistoryEntry, error) bool) {
		after := ""
		for {
			var page []model.HistoryEntry
			err := l.store.View(ctx, func(tx *store.Tx) error {
				var err error
				page, err = store.ListAs[model.HistoryEntry](ctx, tx, ref.Group(), EntryKind, after, l.pageSize)
				return err
			})
			if err != nil {
				yield(model.HistoryEntry{}, fmt.Errorf("list history of %s: %w", ref, err))
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < l.pageSize {
				return
			}
			after = page[len(page)-1].ID
		}
	}
}

// Revision loads the snapshot of one revision within tx.
func Revision(ctx context.Context, tx *store.Tx, ref model.RevisionRef) (*model.Resource, error) {
	key := store.Key{Group: ref.Resource.Group(), Kind: RevisionKind, ID: model.HistoryID(ref.Revision)}
	var res model.Resource
	if err := tx.Get(ctx, key, &res); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, model.NotFound("revision %s", ref)
		}
		return nil, err
	}
	return &res, nil
}

// AsOf reconstructs the resource as it stood at instant at: the snapshot of
// the last revision committed at or before at.
func (l *Log) AsOf(ctx context.Context, ref model.ResourceRef, at time.Time) (*model.Resource, error) {
	var last *model.HistoryEntry
	for e, err := range l.ListFor(ctx, ref) {
		if err != nil {
			return nil, err
		}
		if e.CommitTime.After(at) {
			break
		}
		e := e
		last = &e
	}
	if last == nil {
		return nil, model.NotFound("%s did not exist at %s", ref, at.Format(time.RFC3339))
	}
	var res *model.Resource
	err := l.store.View(ctx, func(tx *store.Tx) error {
		var err error
		res, err = Revision(ctx, tx, last.RevisionRef())
		return err
	})
	return res, err
}
