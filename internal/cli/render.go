package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/engine"
	"github.com/tojkuv/LifeSignal-sub007/internal/reconcile"
)

// contactReport is one contact as printed by the CLI.
type contactReport struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Roles         string `json:"roles"`
	State         string `json:"state"`
	Deadline      string `json:"deadline,omitempty"`
	TimeRemaining string `json:"time_remaining,omitempty"`
	TimeOverdue   string `json:"time_overdue,omitempty"`
	IncomingPing  bool   `json:"incoming_ping"`
	OutgoingPing  bool   `json:"outgoing_ping"`
	ManualAlert   bool   `json:"manual_alert"`
	NonResponsive bool   `json:"non_responsive"`
	Pending       bool   `json:"pending,omitempty"`
	Demo          bool   `json:"demo,omitempty"`
}

// selfReport is the owner's own schedule and alert.
type selfReport struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Interval      string `json:"check_in_interval,omitempty"`
	State         string `json:"state"`
	Deadline      string `json:"deadline,omitempty"`
	TimeRemaining string `json:"time_remaining,omitempty"`
	TimeOverdue   string `json:"time_overdue,omitempty"`
	ManualAlert   bool   `json:"manual_alert"`
}

// viewReport is the printable form of an engine view.
type viewReport struct {
	Owner        string          `json:"owner"`
	Version      int64           `json:"version"`
	At           time.Time       `json:"at"`
	Self         selfReport      `json:"self"`
	Responders   []contactReport `json:"responders"`
	Dependents   []contactReport `json:"dependents"`
	PendingPings int             `json:"pending_pings"`
	Alerting     []string        `json:"alerting,omitempty"`

	// full selects the contact tables in text output; status prints only
	// the summary.
	full bool
}

func newViewReport(v engine.View, full bool) viewReport {
	s := v.SelfStatus
	r := viewReport{
		Owner:   v.Owner,
		Version: v.Version,
		At:      v.At,
		Self: selfReport{
			ID:            v.Self.ID,
			Name:          v.Self.Name,
			Interval:      formatDuration(v.Self.CheckInInterval),
			State:         string(s.State),
			Deadline:      formatTime(s.Deadline),
			TimeRemaining: formatDuration(s.TimeRemaining),
			TimeOverdue:   formatDuration(s.TimeOverdue),
			ManualAlert:   v.Self.ManualAlert.Active,
		},
		Responders:   contactReports(v.Responders),
		Dependents:   contactReports(v.Dependents),
		PendingPings: v.PendingPings,
		full:         full,
	}
	for _, c := range v.Alerting {
		r.Alerting = append(r.Alerting, c.ID)
	}
	return r
}

func contactReports(cs []engine.ContactView) []contactReport {
	out := make([]contactReport, 0, len(cs))
	for _, c := range cs {
		out = append(out, newContactReport(c.Record, c.Status))
	}
	return out
}

func newContactReport(r contact.Record, s contact.Status) contactReport {
	return contactReport{
		ID:            r.ID,
		Name:          r.Name,
		Roles:         r.Roles.String(),
		State:         string(s.State),
		Deadline:      formatTime(s.Deadline),
		TimeRemaining: formatDuration(s.TimeRemaining),
		TimeOverdue:   formatDuration(s.TimeOverdue),
		IncomingPing:  r.IncomingPing.Active,
		OutgoingPing:  r.OutgoingPing.Active,
		ManualAlert:   r.ManualAlert.Active,
		NonResponsive: s.Overdue(),
		Pending:       r.Pending,
		Demo:          reconcile.IsDemo(r),
	}
}

// Text renders the summary and, for full reports, the contact tables.
func (r viewReport) Text() string {
	var b strings.Builder
	name := r.Self.Name
	if name == "" {
		name = r.Owner
	}
	fmt.Fprintf(&b, "%s: %s", name, r.Self.State)
	switch {
	case r.Self.TimeRemaining != "":
		fmt.Fprintf(&b, " (%s left)", r.Self.TimeRemaining)
	case r.Self.TimeOverdue != "":
		fmt.Fprintf(&b, " (%s overdue)", r.Self.TimeOverdue)
	}
	if r.Self.ManualAlert {
		b.WriteString(", alert active")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "pending pings: %d\n", r.PendingPings)
	if len(r.Alerting) > 0 {
		fmt.Fprintf(&b, "alerting: %s\n", strings.Join(r.Alerting, ", "))
	}
	if !r.full {
		return b.String()
	}

	writeTable(&b, "Responders", r.Responders)
	writeTable(&b, "Dependents", r.Dependents)
	return b.String()
}

func writeTable(b *strings.Builder, title string, cs []contactReport) {
	fmt.Fprintf(b, "\n%s (%d)\n", title, len(cs))
	if len(cs) == 0 {
		return
	}
	tw := tabwriter.NewWriter(b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tDUE\tFLAGS")
	for _, c := range cs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.State, due(c), flags(c))
	}
	_ = tw.Flush()
}

func due(c contactReport) string {
	switch {
	case c.TimeRemaining != "":
		return "in " + c.TimeRemaining
	case c.TimeOverdue != "":
		return c.TimeOverdue + " ago"
	default:
		return "-"
	}
}

func flags(c contactReport) string {
	var fs []string
	if c.IncomingPing {
		fs = append(fs, "pinged-you")
	}
	if c.OutgoingPing {
		fs = append(fs, "ping-sent")
	}
	if c.ManualAlert {
		fs = append(fs, "ALERT")
	}
	if c.Pending {
		fs = append(fs, "pending")
	}
	if c.Demo {
		fs = append(fs, "demo")
	}
	if len(fs) == 0 {
		return "-"
	}
	return strings.Join(fs, ",")
}

// recordResult is printed by commands that return one record.
type recordResult struct {
	Action  string        `json:"action"`
	Contact contactReport `json:"contact"`
}

func (r recordResult) Text() string {
	return fmt.Sprintf("%s %s (%s), roles: %s\n", r.Action, r.Contact.ID, r.Contact.Name, r.Contact.Roles)
}

// actionResult is printed by commands with no payload beyond success.
type actionResult struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

func (r actionResult) Text() string {
	if r.Target == "" {
		return r.Action + "\n"
	}
	return r.Action + " " + r.Target + "\n"
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return d.Round(time.Second).String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
