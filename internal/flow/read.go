package flow

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/icewiki/nomulus/internal/billing"
	"github.com/icewiki/nomulus/internal/index"
	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/poll"
	"github.com/icewiki/nomulus/internal/store"
	"github.com/icewiki/nomulus/internal/transfer"
)

// Reads never write. Every resource they return is projected to the read
// instant, so an overdue transfer shows as approved even before a flow
// materialises it.

// LookupActive returns the resource active under name at now, or a
// not-found error.
func (e *Engine) LookupActive(ctx context.Context, t model.ResourceType, name string, now time.Time) (*model.Resource, error) {
	name, err := model.CanonicalizeName(t, name)
	if err != nil {
		return nil, err
	}
	var res *model.Resource
	err = e.store.View(ctx, func(tx *store.Tx) error {
		ref, ok, err := index.Lookup(ctx, tx, t, name, now)
		if err != nil {
			return err
		}
		if !ok {
			return model.NotFound("%s %q does not exist", t, name)
		}
		res, err = loadResource(ctx, tx, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	return transfer.Project(res, now), nil
}

// Load returns the resource that was active under name at asOf, as it stood
// then. For asOf in the past this is rebuilt from history.
func (e *Engine) Load(ctx context.Context, t model.ResourceType, name string, asOf time.Time) (*model.Resource, error) {
	name, err := model.CanonicalizeName(t, name)
	if err != nil {
		return nil, err
	}
	var ref model.ResourceRef
	err = e.store.View(ctx, func(tx *store.Tx) error {
		var ok bool
		ref, ok, err = index.Lookup(ctx, tx, t, name, asOf)
		if err != nil {
			return err
		}
		if !ok {
			return model.NotFound("%s %q did not exist at %s", t, name, asOf.Format(time.RFC3339))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.LoadAsOf(ctx, ref, asOf)
}

// LoadAsOf rebuilds the resource ref as it stood at asOf.
func (e *Engine) LoadAsOf(ctx context.Context, ref model.ResourceRef, asOf time.Time) (*model.Resource, error) {
	res, err := e.history.AsOf(ctx, ref, asOf)
	if err != nil {
		return nil, err
	}
	return transfer.Project(res, asOf), nil
}

// History lists the history entries of ref in commit order.
func (e *Engine) History(ctx context.Context, ref model.ResourceRef) iter.Seq2[model.HistoryEntry, error] {
	return e.history.ListFor(ctx, ref)
}

// TransferQuery returns the transfer data of the active resource under name
// with its status evaluated at now.
func (e *Engine) TransferQuery(ctx context.Context, t model.ResourceType, name string, now time.Time) (model.TransferData, error) {
	if !t.Transferable() {
		return model.TransferData{}, model.Parameter("%s objects cannot be transferred", t)
	}
	res, err := e.LookupActive(ctx, t, name, now)
	if err != nil {
		return model.TransferData{}, err
	}
	td := res.Transfer.Clone()
	td.Status = td.EffectiveStatus(now)
	if td.Status == model.TransferNotPending && td.GainingClient == "" {
		return model.TransferData{}, model.InvalidState("%s %q has no transfer data", t, res.Name)
	}
	return td, nil
}

// Charges returns the billing events of ref with their status at now.
func (e *Engine) Charges(ctx context.Context, ref model.ResourceRef, now time.Time) ([]billing.Charge, error) {
	var charges []billing.Charge
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var res model.Resource
		if err := tx.Get(ctx, resourceKey(ref), &res); err != nil {
			return err
		}
		events, err := e.ledger.List(ctx, tx, ref)
		if err != nil {
			return err
		}
		charges = billing.Effective(events, res.Transfer, now)
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, model.NotFound("resource %s does not exist", ref)
		}
		return nil, err
	}
	return charges, nil
}

const scanPageSize = 200

// Messages returns the poll messages of client deliverable at now.
func (e *Engine) Messages(ctx context.Context, client string, now time.Time) ([]model.PollMessage, error) {
	msgs, err := poll.Messages(ctx, e.store, client, scanPageSize)
	if err != nil {
		return nil, err
	}
	var out []model.PollMessage
	for _, m := range msgs {
		if m.Deliverable(now) {
			out = append(out, m)
		}
	}
	return out, nil
}
