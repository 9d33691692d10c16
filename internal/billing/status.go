package billing

import (
	"time"

	"github.com/icewiki/nomulus/internal/model"
)

// Charge is a billing event paired with its effective status.
type Charge struct {
	model.BillingEvent
	Status model.ChargeStatus `json:"status"`
}

// Ref returns the reference of the charge.
func (c Charge) Ref() model.EntityRef {
	return model.EntityRef{Kind: c.Kind, Group: c.Target.Group(), ID: c.ID}
}

// Effective derives the status of each event at now without writing
// anything. td is the transfer data of the resource as stored; an unresolved
// transfer whose deadline has passed is evaluated as approved, so the losing
// side of its speculative entities reads as voided before any flow
// materialises the approval.
func Effective(events []model.BillingEvent, td model.TransferData, now time.Time) []Charge {
	charges := make([]Charge, len(events))
	for i, ev := range events {
		charges[i] = Charge{BillingEvent: ev, Status: baseStatus(ev, td, now)}
	}

	for i := range charges {
		c := &charges[i]
		if c.Status != model.ChargeActive || c.Kind == model.KindCancellation {
			continue
		}
		for _, other := range charges {
			if other.Kind != model.KindCancellation || other.Status != model.ChargeActive {
				continue
			}
			if other.Cancels == nil || *other.Cancels != c.Ref() || other.EventTime.After(now) {
				continue
			}
			if c.Kind == model.KindRecurring {
				c.Status = model.ChargeEnded
			} else {
				c.Status = model.ChargeCancelled
			}
			break
		}
	}
	return charges
}

func baseStatus(ev model.BillingEvent, td model.TransferData, now time.Time) model.ChargeStatus {
	if ev.Voided(now) {
		return model.ChargeVoided
	}
	ref := model.EntityRef{Kind: ev.Kind, Group: ev.Target.Group(), ID: ev.ID}
	if td.Status == model.TransferPending && td.ServerApprove.Contains(ref) {
		switch td.EffectiveStatus(now) {
		case model.TransferPending:
			return model.ChargePending
		case model.TransferServerApproved:
			for _, r := range td.ServerApprove.Reject {
				if r == ref {
					return model.ChargeVoided
				}
			}
		}
	}
	if ev.Kind == model.KindRecurring && !ev.RecurrenceEnd.IsZero() && model.IsBeforeOrAt(ev.RecurrenceEnd, now) {
		return model.ChargeEnded
	}
	return model.ChargeActive
}
