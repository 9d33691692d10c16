package flow

import (
	"github.com/icewiki/nomulus/internal/index"
	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/transfer"
)

type deleteFlow struct{ e *Engine }

func (deleteFlow) authorize(fc *flowContext) error { return authorizeSponsor(fc) }

func (deleteFlow) validate(fc *flowContext) error {
	res := fc.existing
	if res.HasStatus(model.StatusPendingDelete) {
		return model.InvalidState("%s %q is already pending delete", res.Type, res.Name)
	}
	if !fc.cmd.Superuser {
		for _, s := range []model.Status{model.StatusClientDeleteProhibited, model.StatusServerDeleteProhibited} {
			if res.HasStatus(s) {
				return model.InvalidState("%s %q has status %s", res.Type, res.Name, s)
			}
		}
	}

	return requireUnlinked(fc, res)
}

func (deleteFlow) mutate(fc *flowContext) (*model.Resource, error) {
	next := fc.existing.Successor(fc.cmd.Client, fc.now)
	next.DeletionTime = fc.now
	return next, nil
}

func (f deleteFlow) related(fc *flowContext, next *model.Resource) (*model.Resource, error) {
	if err := index.RecordDeletion(fc.ctx, fc.tx, next.Type, next.Name, fc.now); err != nil {
		return nil, err
	}
	if next.Transfer.Pending(fc.now) {
		resolved, err := f.e.transfer.Resolve(fc.ctx, fc.tx, next, transfer.ServerCancel, fc.now)
		if err != nil {
			return nil, err
		}
		next = resolved
	}
	if next.Domain != nil && next.Domain.AutorenewRecurring != nil {
		if err := f.e.ledger.EndRecurring(fc.ctx, fc.tx, *next.Domain.AutorenewRecurring, fc.now); err != nil {
			return nil, err
		}
	}
	if next.Type == model.Domain && next.SponsorClient != fc.cmd.Client {
		if _, err := f.e.queue.Enqueue(fc.tx, model.PollMessage{
			Client:     next.SponsorClient,
			Type:       model.PollDomainDeleted,
			Target:     next.Ref(),
			TargetName: next.Name,
			EventTime:  fc.now,
			Payload:    map[string]string{"deleted_by": fc.cmd.Client},
		}); err != nil {
			return nil, err
		}
	}
	return next, nil
}
