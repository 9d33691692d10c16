package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/store"
)

var t0 = time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)

func ref(id string) model.ResourceRef {
	return model.ResourceRef{Type: model.Domain, RepoID: id}
}

func inTx(t *testing.T, s *store.Store, fn func(tx *store.Tx) error) error {
	t.Helper()
	return s.RunInTx(context.Background(), fn)
}

func lookup(t *testing.T, s *store.Store, name string, at time.Time) (model.ResourceRef, bool) {
	t.Helper()
	var got model.ResourceRef
	var ok bool
	require.NoError(t, s.View(context.Background(), func(tx *store.Tx) error {
		var err error
		got, ok, err = Lookup(context.Background(), tx, model.Domain, name, at)
		return err
	}))
	return got, ok
}

func TestLookup_ActiveAndPointInTime(t *testing.T) {
	s := store.New(store.NewMemory(), nil)
	ctx := context.Background()

	require.NoError(t, inTx(t, s, func(tx *store.Tx) error {
		return RecordCreation(ctx, tx, model.Domain, "example.tld", ref("r1"), t0)
	}))

	_, ok := lookup(t, s, "example.tld", t0.Add(-time.Second))
	assert.False(t, ok, "not yet created")

	got, ok := lookup(t, s, "example.tld", t0)
	require.True(t, ok)
	assert.Equal(t, "r1", got.RepoID)

	deletedAt := t0.Add(48 * time.Hour)
	require.NoError(t, inTx(t, s, func(tx *store.Tx) error {
		return RecordDeletion(ctx, tx, model.Domain, "example.tld", deletedAt)
	}))

	_, ok = lookup(t, s, "example.tld", deletedAt)
	assert.False(t, ok, "closed at the deletion instant")
	_, ok = lookup(t, s, "example.tld", deletedAt.Add(time.Hour))
	assert.False(t, ok)

	got, ok = lookup(t, s, "example.tld", deletedAt.Add(-time.Nanosecond))
	require.True(t, ok, "still visible strictly before deletion")
	assert.Equal(t, "r1", got.RepoID)
}

func TestRecordCreation_CollisionIsConflict(t *testing.T) {
	s := store.New(store.NewMemory(), nil)
	ctx := context.Background()

	require.NoError(t, inTx(t, s, func(tx *store.Tx) error {
		return RecordCreation(ctx, tx, model.Domain, "example.tld", ref("r1"), t0)
	}))
	err := inTx(t, s, func(tx *store.Tx) error {
		return RecordCreation(ctx, tx, model.Domain, "example.tld", ref("r2"), t0.Add(time.Hour))
	})
	require.Error(t, err)
	assert.True(t, model.IsConflict(err))
}

func TestRecordCreation_AfterDeletionReusesName(t *testing.T) {
	s := store.New(store.NewMemory(), nil)
	ctx := context.Background()
	deletedAt := t0.Add(time.Hour)
	recreatedAt := t0.Add(2 * time.Hour)

	require.NoError(t, inTx(t, s, func(tx *store.Tx) error {
		if err := RecordCreation(ctx, tx, model.Domain, "example.tld", ref("r1"), t0); err != nil {
			return err
		}
		return RecordDeletion(ctx, tx, model.Domain, "example.tld", deletedAt)
	}))
	require.NoError(t, inTx(t, s, func(tx *store.Tx) error {
		return RecordCreation(ctx, tx, model.Domain, "example.tld", ref("r2"), recreatedAt)
	}))

	got, ok := lookup(t, s, "example.tld", t0.Add(30*time.Minute))
	require.True(t, ok)
	assert.Equal(t, "r1", got.RepoID)

	_, ok = lookup(t, s, "example.tld", deletedAt.Add(30*time.Minute))
	assert.False(t, ok)

	got, ok = lookup(t, s, "example.tld", recreatedAt)
	require.True(t, ok)
	assert.Equal(t, "r2", got.RepoID)
}

func TestRecordCreation_BeforeClosedWindowEndsIsConflict(t *testing.T) {
	s := store.New(store.NewMemory(), nil)
	ctx := context.Background()

	require.NoError(t, inTx(t, s, func(tx *store.Tx) error {
		if err := RecordCreation(ctx, tx, model.Domain, "example.tld", ref("r1"), t0); err != nil {
			return err
		}
		return RecordDeletion(ctx, tx, model.Domain, "example.tld", t0.Add(time.Hour))
	}))
	err := inTx(t, s, func(tx *store.Tx) error {
		return RecordCreation(ctx, tx, model.Domain, "example.tld", ref("r2"), t0.Add(30*time.Minute))
	})
	assert.True(t, model.IsConflict(err))
}

func TestRecordDeletion_Idempotent(t *testing.T) {
	s := store.New(store.NewMemory(), nil)
	ctx := context.Background()
	deletedAt := t0.Add(time.Hour)

	require.NoError(t, inTx(t, s, func(tx *store.Tx) error {
		return RecordCreation(ctx, tx, model.Domain, "example.tld", ref("r1"), t0)
	}))
	for i := 0; i < 2; i++ {
		require.NoError(t, inTx(t, s, func(tx *store.Tx) error {
			return RecordDeletion(ctx, tx, model.Domain, "example.tld", deletedAt.Add(time.Duration(i)*time.Hour))
		}))
	}

	var entries []Entry
	require.NoError(t, s.View(ctx, func(tx *store.Tx) error {
		var err error
		entries, err = Entries(ctx, tx, model.Domain, "example.tld")
		return err
	}))
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Window.End.Equal(deletedAt), "second deletion must not move the window")

	// Never-created names are a no-op too.
	assert.NoError(t, inTx(t, s, func(tx *store.Tx) error {
		return RecordDeletion(ctx, tx, model.Domain, "absent.tld", deletedAt)
	}))
}

func TestLookup_OverlappingWindowsAreIntegrityFault(t *testing.T) {
	s := store.New(store.NewMemory(), nil)
	ctx := context.Background()

	// Bypass RecordCreation to plant corrupt data.
	require.NoError(t, inTx(t, s, func(tx *store.Tx) error {
		group := Group(model.Domain, "example.tld")
		for _, id := range []string{"r1", "r2"} {
			e := Entry{Type: model.Domain, Name: "example.tld", RepoID: id,
				Window: model.Window{Start: t0, End: model.EndOfTime}}
			if err := tx.Put(store.Key{Group: group, Kind: Kind, ID: entryID(t0, id)}, e); err != nil {
				return err
			}
		}
		return nil
	}))

	err := s.View(ctx, func(tx *store.Tx) error {
		_, _, err := Lookup(ctx, tx, model.Domain, "example.tld", t0)
		return err
	})
	assert.True(t, model.IsIntegrity(err))
}

func TestConcurrentCreations_ExactlyOneWins(t *testing.T) {
	s := store.New(store.NewMemory(), nil)
	ctx := context.Background()

	err := s.RunInTx(ctx, func(first *store.Tx) error {
		require.NoError(t, RecordCreation(ctx, first, model.Domain, "race.tld", ref("r1"), t0))
		// A second creation commits while the first is still open.
		require.NoError(t, s.RunInTx(ctx, func(second *store.Tx) error {
			return RecordCreation(ctx, second, model.Domain, "race.tld", ref("r2"), t0)
		}))
		return nil
	})
	require.ErrorIs(t, err, store.ErrConflict)

	got, ok := lookup(t, s, "race.tld", t0)
	require.True(t, ok)
	assert.Equal(t, "r2", got.RepoID)
}
