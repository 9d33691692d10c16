// Package index implements the foreign key index: a time-windowed map from
// (resource type, external name) to the resource that owns the name.
//
// Each name has its own entity group holding one entry per resource that
// ever owned it. Entries are never removed; deletion closes the entry's
// window so point-in-time lookups keep resolving.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/store"
)

// Kind is the store kind of index entries.
const Kind = "ForeignKeyIndex"

// Entry records that RepoID owned Name during Window.
type Entry struct {
	Type   model.ResourceType `json:"type"`
	Name   string             `json:"name"`
	RepoID string             `json:"repo_id"`
	Window model.Window       `json:"window"`
}

// Ref returns the resource the entry points at.
func (e Entry) Ref() model.ResourceRef {
	return model.ResourceRef{Type: e.Type, RepoID: e.RepoID}
}

// Group returns the entity group of the index entries for a name.
func Group(t model.ResourceType, name string) string {
	return fmt.Sprintf("fki/%s/%s", t, name)
}

// entryID orders entries of a name by creation time. The fixed-width layout
// keeps lexical order equal to chronological order.
func entryID(createdAt time.Time, repoID string) string {
	return createdAt.UTC().Format("20060102T150405.000000000Z") + "/" + repoID
}

// Entries returns every entry ever recorded for name, oldest first.
func Entries(ctx context.Context, tx *store.Tx, t model.ResourceType, name string) ([]Entry, error) {
	entries, err := store.ListAs[Entry](ctx, tx, Group(t, name), Kind, "", 0)
	if err != nil {
		return nil, fmt.Errorf("list index entries for %s %q: %w", t, name, err)
	}
	return entries, nil
}

// Lookup returns the resource whose window contains asOf. Passing the
// current instant gives the active resource; passing a past instant gives
// the resource that was active then.
func Lookup(ctx context.Context, tx *store.Tx, t model.ResourceType, name string, asOf time.Time) (model.ResourceRef, bool, error) {
	entries, err := Entries(ctx, tx, t, name)
	if err != nil {
		return model.ResourceRef{}, false, err
	}
	var found *Entry
	for i := range entries {
		if !entries[i].Window.Contains(asOf) {
			continue
		}
		if found != nil {
			return model.ResourceRef{}, false, model.Integrity(
				"index windows for %s %q overlap at %s (%s, %s)",
				t, name, asOf.Format(time.RFC3339Nano), found.RepoID, entries[i].RepoID)
		}
		found = &entries[i]
	}
	if found == nil {
		return model.ResourceRef{}, false, nil
	}
	return found.Ref(), true, nil
}

// RecordCreation opens a window for ref starting at createdAt. It fails with
// a conflict if another entry for the name is still open or its window
// reaches past createdAt.
func RecordCreation(ctx context.Context, tx *store.Tx, t model.ResourceType, name string, ref model.ResourceRef, createdAt time.Time) error {
	entries, err := Entries(ctx, tx, t, name)
	if err != nil {
		return err
	}
	w := model.Window{Start: createdAt, End: model.EndOfTime}
	for _, e := range entries {
		if e.Window.Open() {
			return model.Conflict("%s %q already exists", t, name)
		}
		if e.Window.Overlaps(w) {
			return model.Conflict("%s %q was active until %s", t, name, e.Window.End.Format(time.RFC3339Nano))
		}
	}
	entry := Entry{Type: t, Name: name, RepoID: ref.RepoID, Window: w}
	key := store.Key{Group: Group(t, name), Kind: Kind, ID: entryID(createdAt, ref.RepoID)}
	if err := tx.Put(key, entry); err != nil {
		return fmt.Errorf("write index entry: %w", err)
	}
	return nil
}

// RecordDeletion closes the open window for name at deletedAt. It is a no-op
// when no window is open.
func RecordDeletion(ctx context.Context, tx *store.Tx, t model.ResourceType, name string, deletedAt time.Time) error {
	entries, err := Entries(ctx, tx, t, name)
	if err != nil {
		return err
	}
	var open []Entry
	for _, e := range entries {
		if e.Window.Open() {
			open = append(open, e)
		}
	}
	switch len(open) {
	case 0:
		return nil
	case 1:
	default:
		return model.Integrity("%d open index windows for %s %q", len(open), t, name)
	}

	e := open[0]
	if deletedAt.Before(e.Window.Start) {
		return model.Parameter("deletion time %s precedes creation of %s %q",
			deletedAt.Format(time.RFC3339Nano), t, name)
	}
	e.Window.End = deletedAt
	key := store.Key{Group: Group(t, name), Kind: Kind, ID: entryID(e.Window.Start, e.RepoID)}
	if err := tx.Put(key, e); err != nil {
		return fmt.Errorf("write index entry: %w", err)
	}
	return nil
}
