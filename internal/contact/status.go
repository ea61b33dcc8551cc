package contact

import "time"

// State is the display state of a check-in schedule.
type State string

const (
	// StatePending means the party has never checked in.
	StatePending State = "pending"
	// StateOnSchedule means the next check-in is not yet due.
	StateOnSchedule State = "on_schedule"
	// StateOverdue means the check-in deadline has passed.
	StateOverdue State = "overdue"
	// StateAlerting means a manual alert is active. It takes display
	// priority over the schedule state.
	StateAlerting State = "alerting"
)

// Status is the result of evaluating a schedule at a point in time.
type Status struct {
	// State is the display state (alerting overrides the schedule).
	State State
	// Schedule is the underlying schedule state, never StateAlerting.
	Schedule State
	// Deadline is LastCheckIn + interval; zero while pending.
	Deadline time.Time
	// TimeRemaining is positive only when on schedule.
	TimeRemaining time.Duration
	// TimeOverdue is non-negative and set only when overdue.
	TimeOverdue time.Duration
}

// Overdue reports whether the schedule (ignoring alerts) is overdue.
func (s Status) Overdue() bool {
	return s.Schedule == StateOverdue
}

// Evaluate computes the schedule state at now. It is a pure function of its
// arguments: the same inputs always produce the same Status.
//
// A party is on schedule strictly before its deadline and overdue from the
// deadline onward.
func Evaluate(lastCheckIn time.Time, interval time.Duration, manualAlert bool, now time.Time) Status {
	var s Status
	if lastCheckIn.IsZero() {
		s.Schedule = StatePending
	} else {
		s.Deadline = lastCheckIn.Add(interval)
		if now.Before(s.Deadline) {
			s.Schedule = StateOnSchedule
			s.TimeRemaining = s.Deadline.Sub(now)
		} else {
			s.Schedule = StateOverdue
			s.TimeOverdue = now.Sub(s.Deadline)
		}
	}

	s.State = s.Schedule
	if manualAlert {
		s.State = StateAlerting
	}
	return s
}
