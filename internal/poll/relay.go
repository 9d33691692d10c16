package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/store"
)

func decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Publisher hands a message to a registrar-facing transport.
type Publisher interface {
	Publish(ctx context.Context, msg model.PollMessage) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, msg model.PollMessage) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, msg model.PollMessage) error {
	return f(ctx, msg)
}

// Relay moves deliverable messages from the outbox to a Publisher. Messages
// of one registrar are published in ID order; registrars are relayed in
// parallel.
type Relay struct {
	store       *store.Store
	queue       *Queue
	publisher   Publisher
	log         *logrus.Entry
	concurrency int
}

// NewRelay returns a Relay. A nil log uses the standard logger.
func NewRelay(st *store.Store, q *Queue, p Publisher, log *logrus.Entry) *Relay {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Relay{store: st, queue: q, publisher: p, log: log.WithField("component", "poll-relay"), concurrency: 8}
}

// RunOnce publishes every message deliverable at now and marks each one
// delivered in its own transaction. It returns how many were delivered. A
// message whose publish fails stays queued, and later messages of the same
// registrar wait for the next run.
func (r *Relay) RunOnce(ctx context.Context, now time.Time) (int, error) {
	msgs, err := Deliverable(ctx, r.store, now, 0)
	if err != nil {
		return 0, fmt.Errorf("find deliverable messages: %w", err)
	}

	byClient := make(map[string][]model.PollMessage)
	var clients []string
	for _, m := range msgs {
		if _, ok := byClient[m.Client]; !ok {
			clients = append(clients, m.Client)
		}
		byClient[m.Client] = append(byClient[m.Client], m)
	}

	delivered := make([]int, len(clients))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, client := range clients {
		g.Go(func() error {
			n, err := r.relayClient(gctx, byClient[client], now)
			delivered[i] = n
			return err
		})
	}
	err = g.Wait()

	total := 0
	for _, n := range delivered {
		total += n
	}
	return total, err
}

func (r *Relay) relayClient(ctx context.Context, msgs []model.PollMessage, now time.Time) (int, error) {
	n := 0
	for _, m := range msgs {
		if err := r.publisher.Publish(ctx, m); err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{"client": m.Client, "message": m.ID}).Warn("publish failed")
			return n, nil
		}
		err := r.store.RunInTx(ctx, func(tx *store.Tx) error {
			return r.queue.MarkDelivered(tx, m.Client, m.ID, now)
		})
		if err != nil {
			return n, fmt.Errorf("mark %s delivered: %w", m.ID, err)
		}
		r.log.WithFields(logrus.Fields{"client": m.Client, "message": m.ID, "type": m.Type}).Debug("poll message delivered")
		n++
	}
	return n, nil
}
