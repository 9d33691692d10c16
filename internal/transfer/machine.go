package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/icewiki/nomulus/internal/billing"
	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/poll"
	"github.com/icewiki/nomulus/internal/store"
)

// Outcome is how a pending transfer is resolved.
type Outcome string

const (
	Approve         Outcome = "APPROVE"
	Reject          Outcome = "REJECT"
	Cancel          Outcome = "CANCEL"
	ImplicitApprove Outcome = "IMPLICIT_APPROVE"

	// ServerCancel resolves a transfer because the resource is being deleted.
	ServerCancel Outcome = "SERVER_CANCEL"
)

// Terms are the precomputed parameters of a transfer request.
type Terms struct {
	AutomaticApprovalPeriod time.Duration
	TransferGracePeriod     time.Duration
	Cost                    model.Money
	PeriodYears             int
}

// Machine runs transfer operations against the billing ledger and the poll
// queue.
type Machine struct {
	ledger *billing.Ledger
	queue  *poll.Queue
}

// NewMachine returns a Machine.
func NewMachine(ledger *billing.Ledger, queue *poll.Queue) *Machine {
	return &Machine{ledger: ledger, queue: queue}
}

// Request starts a transfer of res to requester. res is the successor
// revision under construction; the returned clone carries PENDING transfer
// data referencing the entities created for both outcomes.
func (m *Machine) Request(ctx context.Context, tx *store.Tx, res *model.Resource, requester string, now time.Time, terms Terms) (*model.Resource, error) {
	if res.Transfer.Pending(now) {
		return nil, model.Conflict("%s %q already has a pending transfer", res.Type, res.Name)
	}
	if !res.Type.Transferable() {
		return nil, model.Parameter("%s objects cannot be transferred", res.Type)
	}
	if terms.AutomaticApprovalPeriod <= 0 {
		return nil, model.Parameter("automatic approval period must be positive")
	}

	next := res.Clone()
	deadline := now.Add(terms.AutomaticApprovalPeriod)
	losing := res.SponsorClient
	td := model.TransferData{
		Status:            model.TransferPending,
		GainingClient:     requester,
		LosingClient:      losing,
		RequestTime:       now,
		PendingExpiration: deadline,
	}

	if res.Type == model.Domain {
		if err := m.requestDomainBilling(tx, next, &td, deadline, terms); err != nil {
			return nil, err
		}
	}

	for _, client := range []string{requester, losing} {
		ref, err := m.queue.Enqueue(tx, model.PollMessage{
			Client:     client,
			Type:       model.PollTransferApproved,
			Target:     res.Ref(),
			TargetName: res.Name,
			EventTime:  deadline,
			Payload:    map[string]string{"gaining": requester, "losing": losing},
		})
		if err != nil {
			return nil, err
		}
		td.ServerApprove.Accept = append(td.ServerApprove.Accept, ref)
	}
	if _, err := m.queue.Enqueue(tx, model.PollMessage{
		Client:     losing,
		Type:       model.PollTransferRequested,
		Target:     res.Ref(),
		TargetName: res.Name,
		EventTime:  now,
		Payload: map[string]string{
			"gaining":  requester,
			"deadline": deadline.Format(time.RFC3339),
		},
	}); err != nil {
		return nil, err
	}

	next.Transfer = td
	next.AddStatus(model.StatusPendingTransfer)
	return next, nil
}

func (m *Machine) requestDomainBilling(tx *store.Tx, res *model.Resource, td *model.TransferData, deadline time.Time, terms Terms) error {
	if res.Domain == nil {
		return model.Integrity("domain %q has no domain payload", res.Name)
	}
	years := terms.PeriodYears
	if years <= 0 {
		years = 1
	}
	gaining := td.GainingClient
	td.TransferredExpiration = res.Domain.RegistrationExpiration.AddDate(years, 0, 0)

	charge, err := m.ledger.CreateCharge(tx, res, gaining, model.ReasonTransfer, terms.Cost, years,
		deadline, deadline.Add(terms.TransferGracePeriod))
	if err != nil {
		return err
	}
	recurring, err := m.ledger.CreateRecurring(tx, res, gaining, model.ReasonAutoRenew, td.TransferredExpiration)
	if err != nil {
		return err
	}
	td.ServerApprove.Accept = append(td.ServerApprove.Accept, charge, recurring)
	td.ServerApprove.TransferCharge = &charge
	td.GainingRecurring = &recurring

	if losing := res.Domain.AutorenewRecurring; losing != nil {
		end, err := m.ledger.CreateCancellation(tx, res, td.LosingClient, model.ReasonAutoRenew, deadline, *losing)
		if err != nil {
			return err
		}
		td.ServerApprove.Accept = append(td.ServerApprove.Accept, end)
	}

	undo, err := m.ledger.CreateCancellation(tx, res, gaining, model.ReasonTransfer, deadline, charge)
	if err != nil {
		return err
	}
	td.ServerApprove.Reject = append(td.ServerApprove.Reject, undo)
	return nil
}

// Resolve ends the pending transfer on res with outcome. res is the
// successor revision under construction.
func (m *Machine) Resolve(ctx context.Context, tx *store.Tx, res *model.Resource, outcome Outcome, now time.Time) (*model.Resource, error) {
	td := res.Transfer
	if td.Status != model.TransferPending {
		return nil, model.InvalidState("%s %q has no pending transfer", res.Type, res.Name)
	}
	expired := model.IsBeforeOrAt(td.PendingExpiration, now)
	switch outcome {
	case ImplicitApprove:
		if !expired {
			return nil, model.InvalidState("transfer of %q is not due until %s", res.Name, td.PendingExpiration.Format(time.RFC3339))
		}
	case Approve, Reject, Cancel:
		if expired {
			return nil, model.InvalidState("transfer of %q was already approved automatically", res.Name)
		}
	case ServerCancel:
	default:
		return nil, model.Parameter("unknown transfer outcome %q", outcome)
	}

	next := res.Clone()
	switch outcome {
	case ImplicitApprove:
		if err := m.voidAll(ctx, tx, td.ServerApprove.Reject, td.PendingExpiration); err != nil {
			return nil, err
		}
		approve(next, model.TransferServerApproved, td.PendingExpiration)
	case Approve:
		if err := m.voidAll(ctx, tx, td.ServerApprove.Reject, now); err != nil {
			return nil, err
		}
		if err := m.redateAccept(ctx, tx, next, now); err != nil {
			return nil, err
		}
		approve(next, model.TransferClientApproved, now)
	default:
		if err := m.unwind(ctx, tx, next, outcome, now); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// approve hands res to the gaining client as of at.
func approve(res *model.Resource, status model.TransferStatus, at time.Time) {
	td := &res.Transfer
	td.Status = status
	res.SponsorClient = td.GainingClient
	res.LastTransferTime = at
	res.RemoveStatus(model.StatusPendingTransfer)
	if res.Domain != nil {
		if !td.TransferredExpiration.IsZero() {
			res.Domain.RegistrationExpiration = td.TransferredExpiration
		}
		if td.GainingRecurring != nil {
			ref := *td.GainingRecurring
			res.Domain.AutorenewRecurring = &ref
		}
	}
}

// redateAccept moves the accept-side charges and notifications from the
// deadline to now, so an early approval bills and notifies immediately. The
// gaining autorenew keeps its date.
func (m *Machine) redateAccept(ctx context.Context, tx *store.Tx, res *model.Resource, now time.Time) error {
	sae := &res.Transfer.ServerApprove
	for i, ref := range sae.Accept {
		var next model.EntityRef
		var err error
		switch ref.Kind {
		case model.KindRecurring:
			continue
		case model.KindPollMessage:
			next, err = m.queue.Redate(ctx, tx, ref, now)
		default:
			next, err = m.ledger.Redate(ctx, tx, ref, now)
		}
		if err != nil {
			return err
		}
		if sae.TransferCharge != nil && *sae.TransferCharge == ref {
			moved := next
			sae.TransferCharge = &moved
		}
		sae.Accept[i] = next
	}
	return nil
}

// unwind handles rejection and both cancellations: the TRANSFER charge is
// voided, the rest of the accept side is withdrawn and both parties are told.
// One-time charges for other reasons are left alone.
func (m *Machine) unwind(ctx context.Context, tx *store.Tx, res *model.Resource, outcome Outcome, now time.Time) error {
	td := &res.Transfer
	charge, err := m.FindTransferCharge(ctx, tx, td.ServerApprove)
	if err != nil {
		return err
	}
	if charge != nil {
		if err := m.ledger.Void(ctx, tx, *charge, now); err != nil {
			return err
		}
	}
	for _, ref := range td.ServerApprove.Accept {
		switch ref.Kind {
		case model.KindPollMessage:
			if err := m.queue.Cancel(ctx, tx, ref, now); err != nil {
				return err
			}
		case model.KindRecurring, model.KindCancellation:
			if err := m.ledger.Void(ctx, tx, ref, now); err != nil {
				return err
			}
		}
	}

	var msgType model.PollMessageType
	recipients := []string{td.GainingClient, td.LosingClient}
	switch outcome {
	case Reject:
		td.Status = model.TransferClientRejected
		msgType = model.PollTransferRejected
	case Cancel:
		td.Status = model.TransferClientCancelled
		msgType = model.PollTransferCancelled
	case ServerCancel:
		td.Status = model.TransferServerCancelled
		msgType = model.PollTransferCancelled
		recipients = []string{td.GainingClient}
	}
	for _, client := range recipients {
		if _, err := m.queue.Enqueue(tx, model.PollMessage{
			Client:     client,
			Type:       msgType,
			Target:     res.Ref(),
			TargetName: res.Name,
			EventTime:  now,
			Payload:    map[string]string{"gaining": td.GainingClient, "losing": td.LosingClient},
		}); err != nil {
			return err
		}
	}
	res.RemoveStatus(model.StatusPendingTransfer)
	return nil
}

func (m *Machine) voidAll(ctx context.Context, tx *store.Tx, refs []model.EntityRef, at time.Time) error {
	for _, ref := range refs {
		var err error
		if ref.Kind == model.KindPollMessage {
			err = m.queue.Cancel(ctx, tx, ref, at)
		} else {
			err = m.ledger.Void(ctx, tx, ref, at)
		}
		if err != nil {
			return fmt.Errorf("void %s: %w", ref, err)
		}
	}
	return nil
}

// FindTransferCharge locates the one-time TRANSFER charge among entities. An
// explicit TransferCharge reference wins. Otherwise every one-time charge is
// loaded and matched on reason: none means a free transfer, more than one is
// an integrity fault.
func (m *Machine) FindTransferCharge(ctx context.Context, tx *store.Tx, entities model.ServerApproveEntities) (*model.EntityRef, error) {
	if entities.TransferCharge != nil {
		ref := *entities.TransferCharge
		return &ref, nil
	}
	var found []model.EntityRef
	for _, ref := range entities.All() {
		if ref.Kind != model.KindOneTime {
			continue
		}
		ev, ok, err := m.ledger.Find(ctx, tx, ref)
		if err != nil {
			return nil, err
		}
		if ok && ev.Reason == model.ReasonTransfer {
			found = append(found, ref)
		}
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return &found[0], nil
	}
	return nil, model.Integrity("%d one-time TRANSFER charges among server-approve entities", len(found))
}

// Project returns res as it stands at now, applying an automatic approval
// whose deadline has passed. It writes nothing; when no approval is due the
// argument itself is returned.
func Project(res *model.Resource, now time.Time) *model.Resource {
	if res == nil || res.Transfer.Status != model.TransferPending ||
		res.Transfer.EffectiveStatus(now) != model.TransferServerApproved {
		return res
	}
	c := res.Clone()
	approve(c, model.TransferServerApproved, c.Transfer.PendingExpiration)
	c.LastEppUpdateTime = c.Transfer.PendingExpiration
	c.LastEppUpdateClient = c.Transfer.GainingClient
	return c
}

// NeedsMaterialize reports whether stored carries a transfer that is approved
// by time but not yet by data.
func NeedsMaterialize(stored *model.Resource, now time.Time) bool {
	return stored.Transfer.Status == model.TransferPending &&
		stored.Transfer.EffectiveStatus(now) == model.TransferServerApproved
}

// Materialize persists an automatic approval: it returns the next revision
// of stored with the approval applied and the rejection-side entities voided.
// The caller writes the revision and its history entry.
func (m *Machine) Materialize(ctx context.Context, tx *store.Tx, stored *model.Resource, now time.Time) (*model.Resource, error) {
	td := stored.Transfer
	next := stored.Successor(td.GainingClient, td.PendingExpiration)
	next, err := m.Resolve(ctx, tx, next, ImplicitApprove, now)
	if err != nil {
		return nil, err
	}
	return next, nil
}
