package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/store"
)

var t0 = time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)

var usd = model.Money{Currency: "USD", Amount: 800}

func domain() *model.Resource {
	return &model.Resource{RepoID: "d1", Type: model.Domain, Name: "example.tld"}
}

func setup(t *testing.T) (*store.Store, *Ledger) {
	t.Helper()
	return store.New(store.NewMemory(), nil), NewLedger(model.NewSequenceGenerator("bill"))
}

func TestCreateFindVoid(t *testing.T) {
	s, l := setup(t)
	ctx := context.Background()
	var ref model.EntityRef

	require.NoError(t, s.RunInTx(ctx, func(tx *store.Tx) error {
		var err error
		ref, err = l.CreateCharge(tx, domain(), "a", model.ReasonCreate, usd, 1, t0, t0.Add(120*time.Hour))
		return err
	}))
	assert.Equal(t, model.KindOneTime, ref.Kind)
	assert.Equal(t, "bill-0001", ref.ID)

	require.NoError(t, s.RunInTx(ctx, func(tx *store.Tx) error {
		ev, ok, err := l.Find(ctx, tx, ref)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, model.ReasonCreate, ev.Reason)
		assert.Nil(t, ev.VoidedAt)

		require.NoError(t, l.Void(ctx, tx, ref, t0.Add(time.Hour)))
		return l.Void(ctx, tx, ref, t0.Add(2*time.Hour))
	}))

	require.NoError(t, s.View(ctx, func(tx *store.Tx) error {
		ev, _, err := l.Find(ctx, tx, ref)
		require.NoError(t, err)
		require.NotNil(t, ev.VoidedAt)
		assert.True(t, ev.VoidedAt.Equal(t0.Add(time.Hour)), "first void wins")
		return nil
	}))
}

func TestVoid_MissingIsIntegrityFault(t *testing.T) {
	s, l := setup(t)
	ctx := context.Background()
	err := s.RunInTx(ctx, func(tx *store.Tx) error {
		return l.Void(ctx, tx, model.EntityRef{Kind: model.KindOneTime, Group: "resource/domain/x", ID: "nope"}, t0)
	})
	assert.True(t, model.IsIntegrity(err))
}

func TestRedate(t *testing.T) {
	s, l := setup(t)
	ctx := context.Background()
	require.NoError(t, s.RunInTx(ctx, func(tx *store.Tx) error {
		orig, err := l.CreateCharge(tx, domain(), "b", model.ReasonTransfer, usd, 1, t0.Add(120*time.Hour), t0.Add(240*time.Hour))
		require.NoError(t, err)

		next, err := l.Redate(ctx, tx, orig, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.NotEqual(t, orig.ID, next.ID)

		old, _, err := l.Find(ctx, tx, orig)
		require.NoError(t, err)
		assert.NotNil(t, old.VoidedAt)

		ev, _, err := l.Find(ctx, tx, next)
		require.NoError(t, err)
		assert.Nil(t, ev.VoidedAt)
		assert.True(t, ev.EventTime.Equal(t0.Add(time.Hour)))
		assert.True(t, ev.BillingTime.Equal(t0.Add(121*time.Hour)), "billing time keeps its grace offset")
		assert.Equal(t, model.ReasonTransfer, ev.Reason)
		return nil
	}))
}

func TestEffective_LazyImplicitApproval(t *testing.T) {
	s, l := setup(t)
	ctx := context.Background()
	deadline := t0.Add(120 * time.Hour)
	var events []model.BillingEvent
	var td model.TransferData

	require.NoError(t, s.RunInTx(ctx, func(tx *store.Tx) error {
		losing, err := l.CreateRecurring(tx, domain(), "a", model.ReasonAutoRenew, t0.AddDate(1, 0, 0))
		require.NoError(t, err)
		charge, err := l.CreateCharge(tx, domain(), "b", model.ReasonTransfer, usd, 1, deadline, deadline)
		require.NoError(t, err)
		endLosing, err := l.CreateCancellation(tx, domain(), "a", model.ReasonAutoRenew, deadline, losing)
		require.NoError(t, err)
		undo, err := l.CreateCancellation(tx, domain(), "b", model.ReasonTransfer, deadline, charge)
		require.NoError(t, err)

		td = model.TransferData{
			Status:            model.TransferPending,
			PendingExpiration: deadline,
			ServerApprove: model.ServerApproveEntities{
				Accept: []model.EntityRef{charge, endLosing},
				Reject: []model.EntityRef{undo},
			},
		}
		events, err = l.List(ctx, tx, domain().Ref())
		return err
	}))

	byReason := func(charges []Charge, kind model.EntityKind, client string) model.ChargeStatus {
		for _, c := range charges {
			if c.Kind == kind && c.Client == client {
				return c.Status
			}
		}
		t.Fatalf("no %s for %s", kind, client)
		return ""
	}

	before := Effective(events, td, t0.Add(time.Hour))
	assert.Equal(t, model.ChargePending, byReason(before, model.KindOneTime, "b"))
	assert.Equal(t, model.ChargeActive, byReason(before, model.KindRecurring, "a"))

	after := Effective(events, td, deadline.Add(time.Minute))
	assert.Equal(t, model.ChargeActive, byReason(after, model.KindOneTime, "b"))
	assert.Equal(t, model.ChargeVoided, byReason(after, model.KindCancellation, "b"), "rejection-path charge voided")
	assert.Equal(t, model.ChargeEnded, byReason(after, model.KindRecurring, "a"), "losing autorenew ended")
}

func TestEffective_ActiveCancellationCancelsCharge(t *testing.T) {
	ref := model.EntityRef{Kind: model.KindOneTime, Group: domain().Ref().Group(), ID: "c1"}
	events := []model.BillingEvent{
		{ID: "c1", Kind: model.KindOneTime, Target: domain().Ref(), EventTime: t0},
		{ID: "x1", Kind: model.KindCancellation, Target: domain().Ref(), EventTime: t0.Add(time.Hour), Cancels: &ref},
	}
	assert.Equal(t, model.ChargeActive, Effective(events, model.TransferData{}, t0)[0].Status)
	assert.Equal(t, model.ChargeCancelled, Effective(events, model.TransferData{}, t0.Add(time.Hour))[0].Status)
}
