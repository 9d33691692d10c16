package harness

import (
	"fmt"
	"strings"
	"time"

	"github.com/icewiki/nomulus/internal/flow"
	"github.com/icewiki/nomulus/internal/model"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq          int
	Offset       time.Duration
	Command      model.CommandType
	ResourceType model.ResourceType
	Name         string
	Client       string
	Stage        flow.Stage
	FailedAt     flow.Stage
	Kind         model.ErrorKind
	Revision     int64
}

func (e TraceEvent) String() string {
	head := fmt.Sprintf("%03d T+%s %s %s %q by %s: ", e.Seq, e.Offset, e.Command, e.ResourceType, e.Name, e.Client)
	if e.Stage == flow.StageCommitted {
		return head + fmt.Sprintf("COMMITTED r%d", e.Revision)
	}
	return head + fmt.Sprintf("FAILED at %s (%s)", e.FailedAt, e.Kind)
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step met its expectation and every assertion
	// held.
	Pass   bool
	Trace  []TraceEvent
	Errors []string
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{Pass: true}
}

// AddError records a failure.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// TraceText renders the trace one event per line.
func (r *Result) TraceText() string {
	var b strings.Builder
	for _, e := range r.Trace {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}
