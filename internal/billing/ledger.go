// Package billing is the registry's view of the billing ledger: it records
// one-time charges, recurring charges and cancellations against resources,
// voids them, and derives their effective status at a read instant. It does
// not compute prices; costs arrive precomputed from TLD configuration.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/store"
)

// Ledger writes billing events into the entity group of the resource they
// bill for, so they commit atomically with the resource revision.
type Ledger struct {
	ids model.IDGenerator
}

// NewLedger returns a Ledger that names events with ids.
func NewLedger(ids model.IDGenerator) *Ledger {
	return &Ledger{ids: ids}
}

func key(ref model.EntityRef) store.Key {
	return store.Key{Group: ref.Group, Kind: string(ref.Kind), ID: ref.ID}
}

func (l *Ledger) create(tx *store.Tx, ev model.BillingEvent) (model.EntityRef, error) {
	ev.ID = l.ids.NewID()
	ref := model.EntityRef{Kind: ev.Kind, Group: ev.Target.Group(), ID: ev.ID}
	if err := tx.Put(key(ref), ev); err != nil {
		return model.EntityRef{}, fmt.Errorf("write %s: %w", ref, err)
	}
	return ref, nil
}

// CreateCharge records a one-time charge.
func (l *Ledger) CreateCharge(tx *store.Tx, res *model.Resource, client string, reason model.BillingReason, cost model.Money, years int, eventTime, billingTime time.Time) (model.EntityRef, error) {
	return l.create(tx, model.BillingEvent{
		Kind:        model.KindOneTime,
		Reason:      reason,
		Client:      client,
		Target:      res.Ref(),
		TargetName:  res.Name,
		EventTime:   eventTime,
		BillingTime: billingTime,
		Cost:        cost,
		PeriodYears: years,
	})
}

// CreateRecurring records an open-ended recurring charge starting at
// eventTime.
func (l *Ledger) CreateRecurring(tx *store.Tx, res *model.Resource, client string, reason model.BillingReason, eventTime time.Time) (model.EntityRef, error) {
	return l.create(tx, model.BillingEvent{
		Kind:          model.KindRecurring,
		Reason:        reason,
		Client:        client,
		Target:        res.Ref(),
		TargetName:    res.Name,
		EventTime:     eventTime,
		RecurrenceEnd: model.EndOfTime,
	})
}

// CreateCancellation records that cancels stops billing from eventTime on.
func (l *Ledger) CreateCancellation(tx *store.Tx, res *model.Resource, client string, reason model.BillingReason, eventTime time.Time, cancels model.EntityRef) (model.EntityRef, error) {
	return l.create(tx, model.BillingEvent{
		Kind:       model.KindCancellation,
		Reason:     reason,
		Client:     client,
		Target:     res.Ref(),
		TargetName: res.Name,
		EventTime:  eventTime,
		Cancels:    &cancels,
	})
}

// Find loads the event ref points at.
func (l *Ledger) Find(ctx context.Context, tx *store.Tx, ref model.EntityRef) (*model.BillingEvent, bool, error) {
	if !ref.Kind.IsBilling() {
		return nil, false, model.Parameter("%s is not a billing event", ref)
	}
	var ev model.BillingEvent
	if err := tx.Get(ctx, key(ref), &ev); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &ev, true, nil
}

func (l *Ledger) mustFind(ctx context.Context, tx *store.Tx, ref model.EntityRef) (*model.BillingEvent, error) {
	ev, ok, err := l.Find(ctx, tx, ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.Integrity("referenced billing event %s is missing", ref)
	}
	return ev, nil
}

// Void marks the event voided at at. Voiding twice keeps the first instant.
func (l *Ledger) Void(ctx context.Context, tx *store.Tx, ref model.EntityRef, at time.Time) error {
	ev, err := l.mustFind(ctx, tx, ref)
	if err != nil {
		return err
	}
	if ev.VoidedAt != nil {
		return nil
	}
	ev.VoidedAt = &at
	return tx.Put(key(ref), ev)
}

// EndRecurring closes a recurring charge at at.
func (l *Ledger) EndRecurring(ctx context.Context, tx *store.Tx, ref model.EntityRef, at time.Time) error {
	ev, err := l.mustFind(ctx, tx, ref)
	if err != nil {
		return err
	}
	if ev.Kind != model.KindRecurring {
		return model.Parameter("%s is not a recurring charge", ref)
	}
	if !ev.RecurrenceEnd.After(at) {
		return nil
	}
	ev.RecurrenceEnd = at
	return tx.Put(key(ref), ev)
}

// Redate voids the event at ref and records a copy effective at eventTime,
// returning the copy's reference. A billing time moves by the same amount.
func (l *Ledger) Redate(ctx context.Context, tx *store.Tx, ref model.EntityRef, eventTime time.Time) (model.EntityRef, error) {
	ev, err := l.mustFind(ctx, tx, ref)
	if err != nil {
		return model.EntityRef{}, err
	}
	if err := l.Void(ctx, tx, ref, eventTime); err != nil {
		return model.EntityRef{}, err
	}
	next := *ev
	next.VoidedAt = nil
	if !ev.BillingTime.IsZero() {
		next.BillingTime = ev.BillingTime.Add(eventTime.Sub(ev.EventTime))
	}
	next.EventTime = eventTime
	return l.create(tx, next)
}

// List returns every billing event recorded against target, grouped by kind
// and ordered by ID within each kind.
func (l *Ledger) List(ctx context.Context, tx *store.Tx, target model.ResourceRef) ([]model.BillingEvent, error) {
	var out []model.BillingEvent
	for _, kind := range []model.EntityKind{model.KindOneTime, model.KindRecurring, model.KindCancellation} {
		evs, err := store.ListAs[model.BillingEvent](ctx, tx, target.Group(), string(kind), "", 0)
		if err != nil {
			return nil, fmt.Errorf("list %s events: %w", kind, err)
		}
		out = append(out, evs...)
	}
	return out, nil
}
