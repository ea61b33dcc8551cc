package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tojkuv/LifeSignal-sub007/internal/clock"
	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/engine"
	"github.com/tojkuv/LifeSignal-sub007/internal/mocks"
	"github.com/tojkuv/LifeSignal-sub007/internal/remote"
	"github.com/tojkuv/LifeSignal-sub007/internal/store"
)

// errInjected is the cause of failures configured by fail steps.
var errInjected = errors.New("injected failure")

// Harness runs one scenario: a manual clock, a shared in-memory contact
// service behind a fault injector, and one engine with its own in-memory
// store per user.
type Harness struct {
	clock   *clock.Manual
	remote  *mocks.Remote
	engines map[string]*engine.Engine
	stores  []*store.Store
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against fresh backends. Execution flow:
//  1. Sign in every user: refresh, publish the profile, refresh again
//  2. Execute steps in order, tracing each and checking its expectations
//  3. Evaluate assertions against the trace and final views
//
// A step that fails unexpectedly or an assertion that does not hold is
// recorded in Result.Errors. Run returns an error only when the scenario
// cannot be set up.
func Run(scenario *Scenario) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	ctx := context.Background()
	h, err := newHarness(ctx, scenario)
	if err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	for i, step := range scenario.Steps {
		h.executeStep(ctx, i, step, result)
	}

	actx := &AssertionContext{Lookup: h.fields}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func newHarness(ctx context.Context, s *Scenario) (*Harness, error) {
	start := s.Start
	if start.IsZero() {
		start = DefaultStart
	}
	h := &Harness{
		clock:   clock.NewManual(start),
		engines: make(map[string]*engine.Engine, len(s.Users)),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	svc, _ := remote.NewMemory(remote.WithClock(h.clock), remote.WithLogger(h.logger))
	h.remote = mocks.NewRemote(svc)

	for _, u := range s.Users {
		if err := h.signIn(ctx, u); err != nil {
			h.close()
			return nil, fmt.Errorf("sign in %s: %w", u.ID, err)
		}
	}
	return h, nil
}

// signIn starts an engine for u, registers u's profile and refreshes.
func (h *Harness) signIn(ctx context.Context, u User) error {
	st, err := store.OpenMemory()
	if err != nil {
		return fmt.Errorf("failed to create in-memory store: %w", err)
	}
	h.stores = append(h.stores, st)

	opts := []engine.Option{
		engine.WithClock(h.clock),
		engine.WithLogger(h.logger),
		engine.WithIntentLog(st),
		engine.WithIDGenerator(engine.NewFixedGenerator(u.ID)),
	}
	if u.SeedDemo {
		opts = append(opts, engine.WithSeeder(engine.DemoSeeder{}))
	}
	e := engine.New(u.ID, h.remote, st, opts...)
	if err := e.Start(ctx); err != nil {
		return err
	}
	h.engines[u.ID] = e

	// The first refresh runs against an empty snapshot, so demo seeding
	// happens before the profile write bumps the version.
	if err := e.Refresh(ctx); err != nil {
		return err
	}

	name := u.Name
	if name == "" {
		name = u.ID
	}
	interval := u.CheckInInterval
	if _, err := e.UpdateProfile(ctx, contact.ProfileUpdate{Name: &name, CheckInInterval: &interval}); err != nil {
		return err
	}
	return e.Refresh(ctx)
}

func (h *Harness) close() {
	for _, e := range h.engines {
		e.Stop()
	}
	for _, st := range h.stores {
		if err := st.Close(); err != nil {
			h.logger.Error("error closing store", "error", err)
		}
	}
}

// executeStep runs one step and records its trace event and any
// unmet expectation.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) {
	switch step.Action {
	case ActionAdvance:
		h.clock.Advance(step.Duration)
		result.AddTrace("", step.Action, step.Duration.String(), OutcomeOK)
		return
	case ActionFail:
		op := mocks.Op(step.Op)
		err := contact.NewTransient(step.Op, errInjected)
		target := step.Op
		switch {
		case step.Owner != "":
			h.remote.FailFor(op, step.Owner, err)
			target += "/" + step.Owner
		case step.Once:
			h.remote.FailOnce(op, err)
		default:
			h.remote.Fail(op, err)
		}
		result.AddTrace("", step.Action, target, OutcomeOK)
		return
	case ActionRestore:
		h.remote.Reset()
		result.AddTrace("", step.Action, "", OutcomeOK)
		return
	case ActionExpect:
		h.checkExpect(i, step, result)
		return
	}

	err := h.perform(ctx, h.engines[step.User], step)
	ev := result.AddTrace(step.User, step.Action, step.Contact, outcomeOf(err))

	switch {
	case step.ExpectError != "" && ev.Outcome != step.ExpectError:
		result.AddError(fmt.Sprintf("steps[%d] %s %s: expected error %s, got %s",
			i, step.User, step.Action, step.ExpectError, ev.Outcome))
	case step.ExpectError == "" && err != nil:
		result.AddError(fmt.Sprintf("steps[%d] %s %s: unexpected error: %v", i, step.User, step.Action, err))
	}

	if len(step.Expect) > 0 {
		h.checkExpect(i, step, result)
	}

	h.logger.Info("step completed", "step", i, "user", step.User, "action", step.Action, "outcome", ev.Outcome)
}

func (h *Harness) perform(ctx context.Context, e *engine.Engine, step Step) error {
	switch step.Action {
	case ActionAddContact:
		var roles contact.Roles
		if step.Roles != nil {
			roles = *step.Roles
		}
		_, err := e.AddContact(ctx, step.Contact, roles)
		return err
	case ActionRemoveContact:
		return e.RemoveContact(ctx, step.Contact)
	case ActionUpdateRoles:
		_, err := e.UpdateContact(ctx, step.Contact, engine.ContactUpdate{Roles: step.Roles})
		return err
	case ActionRefresh:
		return e.Refresh(ctx)
	case ActionCheckIn:
		return e.CheckIn(ctx)
	case ActionSendPing:
		return e.SendPing(ctx, step.Contact)
	case ActionClearPing:
		return e.ClearPing(ctx, step.Contact)
	case ActionActivateAlert:
		return e.ActivateAlert(ctx)
	case ActionDeactivateAlert:
		return e.DeactivateAlert(ctx)
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

func (h *Harness) checkExpect(i int, step Step, result *Result) {
	actual, err := h.fields(step.User, step.Contact)
	if err == nil {
		err = matchFields(actual, step.Expect)
	}
	if err != nil {
		what := "self"
		if step.Contact != "" {
			what = step.Contact
		}
		result.AddError(fmt.Sprintf("steps[%d] %s expect %s: %v", i, step.User, what, err))
	}
}

// fields returns user's current view of contactID, or of the user's own
// status when contactID is empty, as a flat field map.
func (h *Harness) fields(user, contactID string) (map[string]any, error) {
	e, ok := h.engines[user]
	if !ok {
		return nil, fmt.Errorf("unknown user %q", user)
	}
	snap := e.Snapshot()
	now := h.clock.Now()
	if contactID == "" {
		return selfFields(e.View()), nil
	}
	r, ok := snap.Get(contactID)
	if !ok {
		return map[string]any{"exists": false}, nil
	}
	return contactFields(r, now), nil
}

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if code := contact.CodeOf(err); code != "" {
		return string(code)
	}
	return OutcomeError
}
