package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/engine"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s -> %s\n", ev.Seq, ev.User, ev.Action, ev.Target, ev.Outcome)
		}
	}

	return buf.String()
}

// matchesEvent reports whether ev has the assertion's action and, where
// set, its user, contact and outcome.
func matchesEvent(ev TraceEvent, a Assertion) bool {
	return ev.Action == a.Action &&
		(a.User == "" || ev.User == a.User) &&
		(a.Contact == "" || ev.Target == a.Contact) &&
		(a.Outcome == "" || ev.Outcome == a.Outcome)
}

// assertTraceContains checks that some event matches the assertion.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	if slices.ContainsFunc(trace, func(ev TraceEvent) bool { return matchesEvent(ev, a) }) {
		return nil
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeEvent(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if _, seen := positions[ev.Action]; !seen {
			positions[ev.Action] = i + 1 // 1-indexed for readability
		}
	}

	for _, action := range a.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", a.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Actions); i++ {
		prev, curr := a.Actions[i-1], a.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks that exactly Count events match the assertion.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matchesEvent(ev, a) {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describeEvent(a)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertView checks a user's final view of a contact, or of themself.
func assertView(actx *AssertionContext, a Assertion) error {
	actual, err := actx.Lookup(a.User, a.Contact)
	if err != nil {
		return err
	}
	if err := matchFields(actual, a.Expect); err != nil {
		target := "self"
		if a.Contact != "" {
			target = a.Contact
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s's view of %s: %s", a.User, target, formatFields(a.Expect)),
			Actual:   err.Error(),
		}
	}
	return nil
}

func describeEvent(a Assertion) string {
	var b strings.Builder
	b.WriteString("action " + a.Action)
	if a.User != "" {
		b.WriteString(" by " + a.User)
	}
	if a.Contact != "" {
		b.WriteString(" on " + a.Contact)
	}
	if a.Outcome != "" {
		b.WriteString(" with outcome " + a.Outcome)
	}
	return b.String()
}

// contactFields flattens r as evaluated at now.
func contactFields(r contact.Record, now time.Time) map[string]any {
	s := r.Status(now)
	return map[string]any{
		"exists":         true,
		"name":           r.Name,
		"roles":          r.Roles.String(),
		"state":          string(s.State),
		"schedule":       string(s.Schedule),
		"time_remaining": s.TimeRemaining.String(),
		"time_overdue":   s.TimeOverdue.String(),
		"incoming_ping":  r.IncomingPing.Active,
		"outgoing_ping":  r.OutgoingPing.Active,
		"manual_alert":   r.ManualAlert.Active,
		"non_responsive": s.Overdue(),
		"pending":        r.Pending,
	}
}

// selfFields flattens the owner's part of v.
func selfFields(v engine.View) map[string]any {
	return map[string]any{
		"state":          string(v.SelfStatus.State),
		"schedule":       string(v.SelfStatus.Schedule),
		"time_remaining": v.SelfStatus.TimeRemaining.String(),
		"time_overdue":   v.SelfStatus.TimeOverdue.String(),
		"manual_alert":   v.Self.ManualAlert.Active,
		"pending_pings":  v.PendingPings,
		"responders":     len(v.Responders),
		"dependents":     len(v.Dependents),
		"alerting":       len(v.Alerting),
	}
}

// matchFields checks expected against actual (subset semantics). Values
// compare by their printed form, so YAML scalars match typed fields.
func matchFields(actual, expected map[string]any) error {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var mismatches []string
	for _, k := range keys {
		got, ok := actual[k]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: no such field", k))
			continue
		}
		if fmt.Sprint(got) != fmt.Sprint(expected[k]) {
			mismatches = append(mismatches, fmt.Sprintf("%s = %v, want %v", k, got, expected[k]))
		}
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%s", strings.Join(mismatches, "; "))
	}
	return nil
}

func formatFields(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, " ")
}

// AssertionContext provides the final views for contact and self
// assertions.
type AssertionContext struct {
	// Lookup returns user's view of contactID as a field map, or the
	// user's own status when contactID is empty.
	Lookup func(user, contactID string) (map[string]any, error)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertContact, AssertSelf:
			if actx == nil || actx.Lookup == nil {
				err = fmt.Errorf("assertion[%d]: %s requires view context", i, assertion.Type)
			} else {
				err = assertView(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
