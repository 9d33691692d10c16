// Package poll is the registrar notification outbox.
//
// Flows enqueue messages inside their transaction. A message lives in the
// entity group of the resource it is about, which the enqueueing flow already
// holds, so queue writes never widen a flow's read set to anything shared
// between resources. Delivery is recorded apart from the message as a receipt
// in the registrar's own group, written blind, so the Relay never contends
// with flows. A Relay publishes deliverable messages outside any flow
// transaction.
package poll

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/store"
)

// Kind is the store kind of poll messages.
const Kind = string(model.KindPollMessage)

// ReceiptKind is the store kind of delivery receipts.
const ReceiptKind = "PollReceipt"

// Group is the entity group holding a registrar's delivery receipts.
func Group(client string) string {
	return "poll/" + client
}

// Receipt records that message ID was handed to its registrar.
type Receipt struct {
	ID          string    `json:"id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// Queue writes and reads poll messages.
type Queue struct {
	ids model.IDGenerator
}

// NewQueue returns a Queue that names messages with ids.
func NewQueue(ids model.IDGenerator) *Queue {
	return &Queue{ids: ids}
}

func key(ref model.EntityRef) store.Key {
	return store.Key{Group: ref.Group, Kind: Kind, ID: ref.ID}
}

func receiptKey(client, id string) store.Key {
	return store.Key{Group: Group(client), Kind: ReceiptKind, ID: id}
}

// Enqueue records msg for msg.Client in the group of msg.Target. The message
// becomes deliverable at msg.EventTime.
func (q *Queue) Enqueue(tx *store.Tx, msg model.PollMessage) (model.EntityRef, error) {
	if msg.Client == "" {
		return model.EntityRef{}, model.Parameter("poll message without client")
	}
	if msg.Target.IsZero() {
		return model.EntityRef{}, model.Parameter("poll message without target")
	}
	msg.ID = q.ids.NewID()
	msg.DeliveredAt = nil
	ref := model.EntityRef{Kind: model.KindPollMessage, Group: msg.Target.Group(), ID: msg.ID}
	if err := tx.Put(key(ref), msg); err != nil {
		return model.EntityRef{}, fmt.Errorf("enqueue poll message: %w", err)
	}
	return ref, nil
}

// Find loads the message ref points at.
func (q *Queue) Find(ctx context.Context, tx *store.Tx, ref model.EntityRef) (*model.PollMessage, bool, error) {
	var msg model.PollMessage
	if err := tx.Get(ctx, key(ref), &msg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &msg, true, nil
}

// Cancel withdraws a message. Cancelling twice keeps the first instant.
func (q *Queue) Cancel(ctx context.Context, tx *store.Tx, ref model.EntityRef, at time.Time) error {
	msg, ok, err := q.Find(ctx, tx, ref)
	if err != nil {
		return err
	}
	if !ok {
		return model.Integrity("referenced poll message %s is missing", ref)
	}
	if msg.CancelledAt != nil {
		return nil
	}
	msg.CancelledAt = &at
	return tx.Put(key(ref), msg)
}

// Redate cancels the message at ref and enqueues a copy for eventTime.
func (q *Queue) Redate(ctx context.Context, tx *store.Tx, ref model.EntityRef, eventTime time.Time) (model.EntityRef, error) {
	msg, ok, err := q.Find(ctx, tx, ref)
	if err != nil {
		return model.EntityRef{}, err
	}
	if !ok {
		return model.EntityRef{}, model.Integrity("referenced poll message %s is missing", ref)
	}
	if err := q.Cancel(ctx, tx, ref, eventTime); err != nil {
		return model.EntityRef{}, err
	}
	next := *msg
	next.CancelledAt = nil
	next.EventTime = eventTime
	return q.Enqueue(tx, next)
}

// MarkDelivered records delivery of message id to client. The write is
// blind: it reads nothing, so it cannot conflict with the flow that owns
// the message.
func (q *Queue) MarkDelivered(tx *store.Tx, client, id string, at time.Time) error {
	if err := tx.Put(receiptKey(client, id), Receipt{ID: id, DeliveredAt: at}); err != nil {
		return fmt.Errorf("record delivery of %s: %w", id, err)
	}
	return nil
}

// Messages returns every message queued for client in ID order, with
// DeliveredAt filled from the client's receipts. The message scan is not
// transactional.
func Messages(ctx context.Context, st *store.Store, client string, pageSize int) ([]model.PollMessage, error) {
	var receipts map[string]time.Time
	err := st.View(ctx, func(tx *store.Tx) error {
		rs, err := store.ListAs[Receipt](ctx, tx, Group(client), ReceiptKind, "", 0)
		if err != nil {
			return fmt.Errorf("list receipts for %s: %w", client, err)
		}
		receipts = make(map[string]time.Time, len(rs))
		for _, r := range rs {
			receipts[r.ID] = r.DeliveredAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return collect(ctx, st, pageSize, receipts, func(m *model.PollMessage) bool {
		return m.Client == client
	})
}

// Deliverable scans every queued message for ones that should be handed out
// at now, in ID order. The scan is not transactional.
func Deliverable(ctx context.Context, st *store.Store, now time.Time, pageSize int) ([]model.PollMessage, error) {
	receipts := make(map[string]time.Time)
	err := scan(ctx, st, ReceiptKind, pageSize, func(it store.Item) error {
		var r Receipt
		if err := decode(it.Data, &r); err != nil {
			return err
		}
		receipts[r.ID] = r.DeliveredAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return collect(ctx, st, pageSize, receipts, func(m *model.PollMessage) bool {
		return m.Deliverable(now)
	})
}

func collect(ctx context.Context, st *store.Store, pageSize int, receipts map[string]time.Time, keep func(*model.PollMessage) bool) ([]model.PollMessage, error) {
	var out []model.PollMessage
	err := scan(ctx, st, Kind, pageSize, func(it store.Item) error {
		var msg model.PollMessage
		if err := decode(it.Data, &msg); err != nil {
			return err
		}
		if at, ok := receipts[msg.ID]; ok {
			msg.DeliveredAt = &at
		}
		if keep(&msg) {
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b model.PollMessage) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func scan(ctx context.Context, st *store.Store, kind string, pageSize int, fn func(store.Item) error) error {
	if pageSize <= 0 {
		pageSize = 100
	}
	after := store.Key{}
	for {
		items, err := st.Scan(ctx, kind, after, pageSize)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := fn(it); err != nil {
				return fmt.Errorf("decode %s: %w", it.Key, err)
			}
		}
		if len(items) < pageSize {
			return nil
		}
		after = items[len(items)-1].Key
	}
}
