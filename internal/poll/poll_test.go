package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/store"
)

var (
	t0     = time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC)
	target = model.ResourceRef{Type: model.Domain, RepoID: "D1"}
)

func enqueue(t *testing.T, s *store.Store, q *Queue, client string, at time.Time) model.EntityRef {
	t.Helper()
	var ref model.EntityRef
	require.NoError(t, s.RunInTx(context.Background(), func(tx *store.Tx) error {
		var err error
		ref, err = q.Enqueue(tx, model.PollMessage{
			Client: client, Type: model.PollTransferApproved, Target: target, EventTime: at,
		})
		return err
	}))
	return ref
}

func TestDeliverable_RespectsEventTimeAndCancellation(t *testing.T) {
	s := store.New(store.NewMemory(), nil)
	q := NewQueue(model.NewSequenceGenerator("poll"))
	ctx := context.Background()

	enqueue(t, s, q, "a", t0)
	later := enqueue(t, s, q, "b", t0.Add(time.Hour))
	cancelled := enqueue(t, s, q, "a", t0)
	require.NoError(t, s.RunInTx(ctx, func(tx *store.Tx) error {
		return q.Cancel(ctx, tx, cancelled, t0)
	}))

	got, err := Deliverable(ctx, s, t0, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Client)

	got, err = Deliverable(ctx, s, t0.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, later.ID, got[1].ID)
}

func TestEnqueue_RequiresClient(t *testing.T) {
	s := store.New(store.NewMemory(), nil)
	q := NewQueue(model.NewSequenceGenerator("poll"))
	err := s.RunInTx(context.Background(), func(tx *store.Tx) error {
		_, err := q.Enqueue(tx, model.PollMessage{})
		return err
	})
	assert.True(t, model.IsKind(err, model.KindParameter))

	err = s.RunInTx(context.Background(), func(tx *store.Tx) error {
		_, err := q.Enqueue(tx, model.PollMessage{Client: "a"})
		return err
	})
	assert.True(t, model.IsKind(err, model.KindParameter), "target required")
}

func TestEnqueue_StoresInTargetGroup(t *testing.T) {
	s := store.New(store.NewMemory(), nil)
	q := NewQueue(model.NewSequenceGenerator("poll"))
	ref := enqueue(t, s, q, "a", t0)
	assert.Equal(t, target.Group(), ref.Group)
}

func TestMarkDelivered_DoesNotConflictWithOwningFlow(t *testing.T) {
	s := store.New(store.NewMemory(), nil)
	q := NewQueue(model.NewSequenceGenerator("poll"))
	ctx := context.Background()
	ref := enqueue(t, s, q, "a", t0.Add(time.Hour))
	enqueue(t, s, q, "a", t0)

	// A flow holding the message's group commits around a delivery to the
	// same registrar.
	require.NoError(t, s.RunInTx(ctx, func(tx *store.Tx) error {
		if err := q.Cancel(ctx, tx, ref, t0); err != nil {
			return err
		}
		return s.RunInTx(ctx, func(rtx *store.Tx) error {
			return q.MarkDelivered(rtx, "a", "poll-0002", t0)
		})
	}))

	got, err := Messages(ctx, s, "a", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotNil(t, got[0].CancelledAt)
	require.NotNil(t, got[1].DeliveredAt)
	assert.Equal(t, t0, *got[1].DeliveredAt)

	deliverable, err := Deliverable(ctx, s, t0.Add(2*time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, deliverable)
}

func TestMessages_FiltersByClient(t *testing.T) {
	s := store.New(store.NewMemory(), nil)
	q := NewQueue(model.NewSequenceGenerator("poll"))
	ctx := context.Background()
	enqueue(t, s, q, "a", t0)
	enqueue(t, s, q, "b", t0)
	enqueue(t, s, q, "a", t0.Add(time.Hour))

	got, err := Messages(ctx, s, "a", 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "poll-0001", got[0].ID)
	assert.Equal(t, "poll-0003", got[1].ID)
}

type recorder struct {
	mu   sync.Mutex
	seen []string
	fail map[string]bool
}

func (r *recorder) Publish(_ context.Context, msg model.PollMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[msg.ID] {
		return errors.New("broker down")
	}
	r.seen = append(r.seen, msg.ID)
	return nil
}

func TestRelay_PublishesOnceAndMarksDelivered(t *testing.T) {
	s := store.New(store.NewMemory(), nil)
	q := NewQueue(model.NewSequenceGenerator("poll"))
	ctx := context.Background()
	enqueue(t, s, q, "a", t0)
	enqueue(t, s, q, "b", t0)
	enqueue(t, s, q, "a", t0.Add(48*time.Hour))

	rec := &recorder{}
	relay := NewRelay(s, q, rec, nil)

	n, err := relay.RunOnce(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = relay.RunOnce(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "already delivered")

	n, err = relay.RunOnce(ctx, t0.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, []string{"poll-0001", "poll-0002", "poll-0003"}, rec.seen)
}

func TestRelay_FailedPublishStaysQueuedAndHoldsLaterMessages(t *testing.T) {
	s := store.New(store.NewMemory(), nil)
	q := NewQueue(model.NewSequenceGenerator("poll"))
	ctx := context.Background()
	first := enqueue(t, s, q, "a", t0)
	enqueue(t, s, q, "a", t0)

	rec := &recorder{fail: map[string]bool{first.ID: true}}
	n, err := NewRelay(s, q, rec, nil).RunOnce(ctx, t0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, rec.seen)

	rec.fail = nil
	n, err = NewRelay(s, q, rec, nil).RunOnce(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"poll-0001", "poll-0002"}, rec.seen)
}

func TestRedate(t *testing.T) {
	s := store.New(store.NewMemory(), nil)
	q := NewQueue(model.NewSequenceGenerator("poll"))
	ctx := context.Background()
	orig := enqueue(t, s, q, "a", t0.Add(120*time.Hour))

	require.NoError(t, s.RunInTx(ctx, func(tx *store.Tx) error {
		_, err := q.Redate(ctx, tx, orig, t0)
		return err
	}))

	got, err := Deliverable(ctx, s, t0, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "poll-0002", got[0].ID)
}

func TestNewKafkaPublisher_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "registry-poll")
	assert.Error(t, err)
}
