package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/icewiki/nomulus/internal/billing"
	"github.com/icewiki/nomulus/internal/history"
	"github.com/icewiki/nomulus/internal/index"
	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/poll"
	"github.com/icewiki/nomulus/internal/store"
	"github.com/icewiki/nomulus/internal/tld"
	"github.com/icewiki/nomulus/internal/transfer"
)

// ResourceKind is the store kind of current resource revisions.
const ResourceKind = "Resource"

// DefaultContactTransferPeriod is the automatic approval period of contact
// transfers, which have no TLD to take it from.
const DefaultContactTransferPeriod = 5 * 24 * time.Hour

// TLDs resolves the policy a domain is registered under.
type TLDs interface {
	ForDomain(domain string) (tld.TLD, error)
}

// Engine executes commands against the store.
type Engine struct {
	store    *store.Store
	tlds     TLDs
	history  *history.Log
	ledger   *billing.Ledger
	queue    *poll.Queue
	transfer *transfer.Machine
	ids      model.IDGenerator
	log      *logrus.Entry
	metrics  *Metrics
	tracer   trace.Tracer

	contactTransferPeriod time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator sets the generator for resource, billing and poll IDs.
func WithIDGenerator(ids model.IDGenerator) Option {
	return func(e *Engine) { e.ids = ids }
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics records flow metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithContactTransferPeriod sets the automatic approval period of contact
// transfers.
func WithContactTransferPeriod(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.contactTransferPeriod = d
		}
	}
}

// WithHistoryPageSize sets the page size of history listings.
func WithHistoryPageSize(n int) Option {
	return func(e *Engine) { e.history = history.New(e.store, history.WithPageSize(n)) }
}

// New returns an Engine on st. tlds supplies domain policy.
func New(st *store.Store, tlds TLDs, opts ...Option) *Engine {
	e := &Engine{
		store:                 st,
		tlds:                  tlds,
		history:               history.New(st),
		ids:                   model.UUIDv7Generator{},
		tracer:                otel.Tracer("github.com/icewiki/nomulus/internal/flow"),
		contactTransferPeriod: DefaultContactTransferPeriod,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logrus.NewEntry(logrus.StandardLogger())
	}
	e.log = e.log.WithField("component", "flow")
	e.ledger = billing.NewLedger(e.ids)
	e.queue = poll.NewQueue(e.ids)
	e.transfer = transfer.NewMachine(e.ledger, e.queue)
	return e
}

// Queue returns the poll queue flows write to.
func (e *Engine) Queue() *poll.Queue {
	return e.queue
}

// flowContext is the state of one invocation.
type flowContext struct {
	ctx   context.Context
	tx    *store.Tx
	cmd   Command
	now   time.Time
	stage Stage

	// existing is the current revision evaluated at now; nil for creates.
	existing *model.Resource

	// tld is the policy of the domain being acted on.
	tld tld.TLD

	// superordinate is the parent domain of a subordinate host being created.
	superordinate string
}

// variant supplies the command-specific hooks of a flow.
type variant interface {
	authorize(fc *flowContext) error
	validate(fc *flowContext) error

	// mutate derives the successor revision. It writes nothing.
	mutate(fc *flowContext) (*model.Resource, error)

	// related applies index, transfer, billing and poll effects and may
	// return an adjusted successor.
	related(fc *flowContext, next *model.Resource) (*model.Resource, error)
}

func (e *Engine) variantFor(cmd Command) (variant, error) {
	switch cmd.Type {
	case model.CommandCreate:
		return createFlow{e}, nil
	case model.CommandUpdate:
		return updateFlow{e}, nil
	case model.CommandDelete:
		return deleteFlow{e}, nil
	case model.CommandTransferRequest:
		if !cmd.ResourceType.Transferable() {
			return nil, model.Parameter("%s objects cannot be transferred", cmd.ResourceType)
		}
		return transferRequestFlow{e}, nil
	}
	if outcome, ok := outcomeFor(cmd.Type); ok {
		if !cmd.ResourceType.Transferable() {
			return nil, model.Parameter("%s objects cannot be transferred", cmd.ResourceType)
		}
		return transferResolveFlow{e, outcome}, nil
	}
	return nil, model.Parameter("unsupported command %q", cmd.Type)
}

// Execute runs cmd as of now. It returns the committed revision, or an error
// whose model.ErrorKind classifies the failure. Failed invocations leave the
// store untouched. Lost commit races surface as KindConflict and are not
// retried.
func (e *Engine) Execute(ctx context.Context, cmd Command, now time.Time) (Result, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "flow.Execute", trace.WithAttributes(
		attribute.String("registry.command", string(cmd.Type)),
		attribute.String("registry.resource_type", string(cmd.ResourceType)),
		attribute.String("registry.name", cmd.Name),
		attribute.String("registry.client", cmd.Client),
	))
	defer span.End()

	res, err := e.execute(ctx, cmd, now)
	e.metrics.observe(cmd, res, err, time.Since(start))

	fields := logrus.Fields{
		"command":       cmd.Type,
		"resource_type": cmd.ResourceType,
		"name":          cmd.Name,
		"client":        cmd.Client,
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		fields["stage"] = res.FailedAt
		if model.IsClientError(err) {
			e.log.WithFields(fields).WithError(err).Info("flow rejected")
		} else {
			e.log.WithFields(fields).WithError(err).Error("flow failed")
		}
		return res, err
	}
	fields["revision"] = res.Revision.Revision
	e.log.WithFields(fields).Debug("flow committed")
	span.SetAttributes(attribute.Int64("registry.revision", res.Revision.Revision))
	return res, nil
}

func (e *Engine) execute(ctx context.Context, cmd Command, now time.Time) (Result, error) {
	failed := func(stage Stage, err error) (Result, error) {
		return Result{Stage: StageFailed, FailedAt: stage}, err
	}

	v, err := e.variantFor(cmd)
	if err != nil {
		return failed(StageLoaded, err)
	}
	if cmd.Client == "" {
		return failed(StageLoaded, model.Parameter("command has no acting client"))
	}
	name, err := model.CanonicalizeName(cmd.ResourceType, cmd.Name)
	if err != nil {
		return failed(StageLoaded, err)
	}
	cmd.Name = name

	fc := &flowContext{ctx: ctx, cmd: cmd, now: now}
	var next *model.Resource
	err = e.store.RunInTx(ctx, func(tx *store.Tx) error {
		fc.tx = tx

		fc.stage = StageLoaded
		if err := e.load(fc); err != nil {
			return err
		}

		fc.stage = StageAuthorized
		if err := v.authorize(fc); err != nil {
			return err
		}

		fc.stage = StageValidated
		if err := v.validate(fc); err != nil {
			return err
		}

		fc.stage = StageMutated
		n, err := v.mutate(fc)
		if err != nil {
			return err
		}
		if n, err = v.related(fc, n); err != nil {
			return err
		}
		if err := syncLinks(fc, fc.existing, n); err != nil {
			return err
		}
		if err := e.persist(fc, n, cmd.Client, cmd.Superuser, cmd.Type, now); err != nil {
			return err
		}
		next = n

		fc.stage = StageCommitted
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			err = model.WrapConflict(fmt.Sprintf("%s %q was modified concurrently", cmd.ResourceType, cmd.Name), err)
		}
		return failed(fc.stage, err)
	}
	return Result{Stage: StageCommitted, Revision: next.RevisionRef(), Resource: next}, nil
}

// load resolves the target through the index at now and evaluates it at now,
// materialising an overdue transfer approval.
func (e *Engine) load(fc *flowContext) error {
	cmd := fc.cmd
	ref, ok, err := index.Lookup(fc.ctx, fc.tx, cmd.ResourceType, cmd.Name, fc.now)
	if err != nil {
		return err
	}

	if cmd.Type == model.CommandCreate {
		if ok {
			return model.Conflict("%s %q already exists", cmd.ResourceType, cmd.Name)
		}
		if cmd.ResourceType == model.Domain {
			t, err := e.tlds.ForDomain(cmd.Name)
			if err != nil {
				return err
			}
			fc.tld = t
		}
		return nil
	}

	if !ok {
		return model.NotFound("%s %q does not exist", cmd.ResourceType, cmd.Name)
	}
	stored, err := loadResource(fc.ctx, fc.tx, ref)
	if err != nil {
		return err
	}
	if !stored.IsActive(fc.now) {
		return model.Integrity("index maps %s %q to %s, which is not active at %s",
			cmd.ResourceType, cmd.Name, ref, fc.now.Format(time.RFC3339))
	}

	if transfer.NeedsMaterialize(stored, fc.now) {
		approved, err := e.transfer.Materialize(fc.ctx, fc.tx, stored, fc.now)
		if err != nil {
			return fmt.Errorf("materialize automatic transfer approval: %w", err)
		}
		td := stored.Transfer
		if err := e.persist(fc, approved, td.GainingClient, false, model.CommandServerTransferApprove, td.PendingExpiration); err != nil {
			return err
		}
		stored = approved
	}
	fc.existing = stored

	if stored.Type == model.Domain {
		t, err := e.tlds.ForDomain(stored.Name)
		if err != nil {
			return err
		}
		fc.tld = t
	}
	return nil
}

// persist writes a revision as the current one and appends its history
// entry, committed at at.
func (e *Engine) persist(fc *flowContext, res *model.Resource, client string, superuser bool, cmd model.CommandType, at time.Time) error {
	if err := fc.tx.Put(resourceKey(res.Ref()), res); err != nil {
		return fmt.Errorf("write resource: %w", err)
	}
	if _, err := e.history.Append(fc.tx, res, client, superuser, cmd, at); err != nil {
		return err
	}
	return nil
}

func resourceKey(ref model.ResourceRef) store.Key {
	return store.Key{Group: ref.Group(), Kind: ResourceKind, ID: ref.RepoID}
}

func loadResource(ctx context.Context, tx *store.Tx, ref model.ResourceRef) (*model.Resource, error) {
	var res model.Resource
	if err := tx.Get(ctx, resourceKey(ref), &res); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, model.Integrity("index references missing resource %s", ref)
		}
		return nil, err
	}
	return &res, nil
}

// authorizeSponsor admits the sponsoring client and superusers.
func authorizeSponsor(fc *flowContext) error {
	if fc.cmd.Superuser || fc.existing.SponsorClient == fc.cmd.Client {
		return nil
	}
	return model.Unauthorized("client %q does not sponsor %s %q", fc.cmd.Client, fc.existing.Type, fc.existing.Name)
}
