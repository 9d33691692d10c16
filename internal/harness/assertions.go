package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/icewiki/nomulus/internal/model"
)

// instant resolves the read instant of a; reads default to the final clock.
func (h *Harness) instant(a Assertion) time.Time {
	if a.At == 0 {
		return h.clock.Now()
	}
	return h.clock.Now().Add(a.At - h.clock.Elapsed())
}

// evaluate checks a against the engine's read operations. Reads as of a past
// instant go through history, so they see the resource as it stood then.
func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	at := h.instant(a)
	switch a.Type {
	case AssertAbsent:
		_, err := h.engine.LookupActive(ctx, a.Resource, a.Name, at)
		if model.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		return &errAssertion{Expected: "no active " + string(a.Resource), Actual: "found"}

	case AssertSponsor:
		res, err := h.engine.Load(ctx, a.Resource, a.Name, at)
		if err != nil {
			return err
		}
		return compare(a.Expect, res.SponsorClient)

	case AssertTransferStatus:
		res, err := h.engine.Load(ctx, a.Resource, a.Name, at)
		if err != nil {
			return err
		}
		return compare(a.Expect, string(res.Transfer.EffectiveStatus(at)))

	case AssertStatuses:
		res, err := h.engine.Load(ctx, a.Resource, a.Name, at)
		if err != nil {
			return err
		}
		got := make([]string, len(res.Statuses))
		for i, s := range res.Statuses {
			got[i] = string(s)
		}
		return compareList(a.Values, got)

	case AssertHistory:
		res, err := h.engine.Load(ctx, a.Resource, a.Name, at)
		if err != nil {
			return err
		}
		var got []string
		for e, err := range h.engine.History(ctx, res.Ref()) {
			if err != nil {
				return err
			}
			got = append(got, string(e.Command))
		}
		return compareList(a.Values, got)

	case AssertCharge:
		res, err := h.engine.Load(ctx, a.Resource, a.Name, at)
		if err != nil {
			return err
		}
		charges, err := h.engine.Charges(ctx, res.Ref(), at)
		if err != nil {
			return err
		}
		var statuses []string
		for _, c := range charges {
			if c.Kind != a.Kind || (a.Reason != "" && c.Reason != a.Reason) || (a.Client != "" && c.Client != a.Client) {
				continue
			}
			statuses = append(statuses, string(c.Status))
		}
		switch len(statuses) {
		case 0:
			return fmt.Errorf("%s %s for %q: %w", a.Kind, a.Reason, a.Client, errNoMatch)
		case 1:
			return compare(a.Expect, statuses[0])
		}
		// Redated events leave a voided original behind; any match will do.
		if slices.Contains(statuses, a.Expect) {
			return nil
		}
		return compare(a.Expect, strings.Join(statuses, ","))

	case AssertPoll:
		msgs, err := h.engine.Messages(ctx, a.Client, at)
		if err != nil {
			return err
		}
		got := make([]string, len(msgs))
		for i, m := range msgs {
			got[i] = string(m.Type)
		}
		slices.Sort(got)
		want := slices.Clone(a.Values)
		slices.Sort(want)
		return compareList(want, got)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func compare(want, got string) error {
	if want != got {
		return &errAssertion{Expected: want, Actual: got}
	}
	return nil
}

func compareList(want, got []string) error {
	if !slices.Equal(want, got) {
		return &errAssertion{Expected: fmt.Sprintf("%v", want), Actual: fmt.Sprintf("%v", got)}
	}
	return nil
}
