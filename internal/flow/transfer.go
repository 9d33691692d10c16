package flow

import (
	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/transfer"
)

type transferRequestFlow struct{ e *Engine }

// authorize reports a pending transfer before checking auth info, so every
// requester sees the same outcome while one is in flight.
func (transferRequestFlow) authorize(fc *flowContext) error {
	res := fc.existing
	if res.Transfer.Pending(fc.now) {
		return model.Conflict("%s %q already has a pending transfer", res.Type, res.Name)
	}
	if fc.cmd.Superuser {
		return nil
	}
	want := fc.existing.AuthInfo()
	if want == "" || fc.cmd.Payload.AuthInfo != want {
		return model.Unauthorized("auth info for %s %q does not match", fc.existing.Type, fc.existing.Name)
	}
	return nil
}

func (transferRequestFlow) validate(fc *flowContext) error {
	res := fc.existing
	if res.SponsorClient == fc.cmd.Client {
		return model.InvalidState("client %q already sponsors %s %q", fc.cmd.Client, res.Type, res.Name)
	}
	for _, s := range []model.Status{
		model.StatusClientTransferProhibited,
		model.StatusServerTransferProhibited,
		model.StatusPendingDelete,
	} {
		if res.HasStatus(s) {
			return model.InvalidState("%s %q has status %s", res.Type, res.Name, s)
		}
	}
	if y := fc.cmd.Payload.PeriodYears; y < 0 || y > maxRegistrationYears {
		return model.Parameter("transfer period %d is outside 1..%d years", y, maxRegistrationYears)
	}
	return nil
}

func (transferRequestFlow) mutate(fc *flowContext) (*model.Resource, error) {
	return fc.existing.Successor(fc.cmd.Client, fc.now), nil
}

func (f transferRequestFlow) related(fc *flowContext, next *model.Resource) (*model.Resource, error) {
	return f.e.transfer.Request(fc.ctx, fc.tx, next, fc.cmd.Client, fc.now, f.terms(fc))
}

func (f transferRequestFlow) terms(fc *flowContext) transfer.Terms {
	if fc.existing.Type != model.Domain {
		return transfer.Terms{AutomaticApprovalPeriod: f.e.contactTransferPeriod}
	}
	t := fc.tld
	y := years(fc.cmd.Payload.PeriodYears)
	return transfer.Terms{
		AutomaticApprovalPeriod: t.AutomaticTransferLength,
		TransferGracePeriod:     t.TransferGracePeriod,
		Cost:                    t.Money(t.TransferCost * int64(y)),
		PeriodYears:             y,
	}
}

type transferResolveFlow struct {
	e       *Engine
	outcome transfer.Outcome
}

func (f transferResolveFlow) authorize(fc *flowContext) error {
	if f.outcome != transfer.Cancel {
		return authorizeSponsor(fc)
	}
	td := fc.existing.Transfer
	if fc.cmd.Superuser || !td.Pending(fc.now) || td.GainingClient == fc.cmd.Client {
		return nil
	}
	return model.Unauthorized("client %q did not request the transfer of %q", fc.cmd.Client, fc.existing.Name)
}

func (transferResolveFlow) validate(fc *flowContext) error {
	res := fc.existing
	if !res.Transfer.Pending(fc.now) {
		return model.InvalidState("%s %q has no pending transfer", res.Type, res.Name)
	}
	return nil
}

func (transferResolveFlow) mutate(fc *flowContext) (*model.Resource, error) {
	return fc.existing.Successor(fc.cmd.Client, fc.now), nil
}

func (f transferResolveFlow) related(fc *flowContext, next *model.Resource) (*model.Resource, error) {
	return f.e.transfer.Resolve(fc.ctx, fc.tx, next, f.outcome, fc.now)
}
