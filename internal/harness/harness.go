package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/icewiki/nomulus/internal/flow"
	"github.com/icewiki/nomulus/internal/model"
	"github.com/icewiki/nomulus/internal/testutil"
	"github.com/icewiki/nomulus/internal/tld"
)

// Harness holds the state of one scenario run.
type Harness struct {
	engine *flow.Engine
	clock  *testutil.Clock
}

// Run executes a scenario against a fresh in-memory store and returns the
// result. Errors are returned only when the scenario cannot be set up;
// failed expectations and assertions are recorded in the result.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	tlds, err := scenarioTLDs(s)
	if err != nil {
		return nil, err
	}
	start := s.Start
	if start.IsZero() {
		start = testutil.Epoch
	}
	log, _ := testutil.NewLogger()
	opts := []flow.Option{
		flow.WithIDGenerator(model.NewSequenceGenerator("id")),
		flow.WithLogger(log),
	}
	if s.ContactTransferPeriod > 0 {
		opts = append(opts, flow.WithContactTransferPeriod(s.ContactTransferPeriod))
	}
	h := &Harness{
		engine: flow.New(testutil.NewMemoryStore(), tlds, opts...),
		clock:  testutil.NewClock(start),
	}

	result := NewResult()
	for i, step := range s.Steps {
		h.executeStep(ctx, i, step, result)
	}
	for i, a := range s.Assertions {
		if err := h.evaluate(ctx, a); err != nil {
			result.AddError("assertions[%d] %s: %v", i, a.Type, err)
		}
	}
	return result, nil
}

func scenarioTLDs(s *Scenario) (*tld.Registry, error) {
	if s.TLDs == "" {
		return tld.NewRegistry(testutil.DefaultTLD())
	}
	r, err := tld.Parse(s.TLDs)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return r, nil
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) {
	now := h.clock.Advance(step.Advance)
	cmd := flow.Command{
		Type:         step.Command,
		ResourceType: step.Type,
		Name:         step.Name,
		Client:       step.Client,
		Superuser:    step.Superuser,
		Payload:      step.Payload,
	}
	res, err := h.engine.Execute(ctx, cmd, now)

	ev := TraceEvent{
		Seq:          i + 1,
		Offset:       h.clock.Elapsed(),
		Command:      step.Command,
		ResourceType: step.Type,
		Name:         step.Name,
		Client:       step.Client,
		Stage:        res.Stage,
		FailedAt:     res.FailedAt,
		Revision:     res.Revision.Revision,
	}
	if err != nil {
		ev.Kind = "INTERNAL"
		if kind, ok := model.KindOf(err); ok {
			ev.Kind = kind
		}
	}
	result.Trace = append(result.Trace, ev)

	want := step.Expect
	if want == "" {
		want = ExpectOK
	}
	got := ExpectOK
	if err != nil {
		got = string(ev.Kind)
	}
	if got != want {
		detail := ""
		if err != nil {
			detail = ": " + err.Error()
		}
		result.AddError("steps[%d] %s %s %q: expected %s, got %s%s", i, step.Command, step.Type, step.Name, want, got, detail)
	}
}

// errAssertion reports an expectation mismatch.
type errAssertion struct {
	Expected string
	Actual   string
}

func (e *errAssertion) Error() string {
	return fmt.Sprintf("expected %s, actual %s", e.Expected, e.Actual)
}

var errNoMatch = errors.New("no matching record")
