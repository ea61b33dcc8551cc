package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
	"github.com/tojkuv/LifeSignal-sub007/internal/mocks"
)

// DefaultStart is the manual clock's start when a scenario sets none.
var DefaultStart = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

// Scenario describes a multi-user run against one shared contact service.
// Users sign in before the first step; steps run in order on a manual
// clock; assertions check the trace and each user's final view.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the manual clock's initial time. Zero means DefaultStart.
	Start time.Time `yaml:"start,omitempty"`

	// Users are registered and signed in, in order, before the steps run.
	Users []User `yaml:"users"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and views.
	// Supported types: trace_contains, trace_order, trace_count, contact, self
	Assertions []Assertion `yaml:"assertions"`
}

// User is one signed-in party.
type User struct {
	ID              string        `yaml:"id"`
	Name            string        `yaml:"name"`
	CheckInInterval time.Duration `yaml:"check_in_interval"`

	// SeedDemo enables demo contacts on the user's first refresh.
	SeedDemo bool `yaml:"seed_demo,omitempty"`
}

// Step is one action by one user, or a clock or fault change.
type Step struct {
	// User performs the action. Not used by advance, fail and restore.
	User string `yaml:"user,omitempty"`

	// Action is one of the Action* constants.
	Action string `yaml:"action"`

	// Contact is the counterpart id for contact actions.
	Contact string `yaml:"contact,omitempty"`

	// Roles for add_contact and update_roles.
	Roles *contact.Roles `yaml:"roles,omitempty"`

	// Duration for advance.
	Duration time.Duration `yaml:"duration,omitempty"`

	// Op, Owner and Once configure fail: calls of Op (optionally only on
	// records owned by Owner) fail with a transient network error, every
	// time or only the next time.
	Op    string `yaml:"op,omitempty"`
	Owner string `yaml:"owner,omitempty"`
	Once  bool   `yaml:"once,omitempty"`

	// ExpectError is the error code the step must fail with. Empty means
	// the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Expect is checked against the user's view right after the step:
	// the contact's fields when Contact is set, the user's own otherwise.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Step actions.
const (
	ActionAddContact      = "add_contact"
	ActionRemoveContact   = "remove_contact"
	ActionUpdateRoles     = "update_roles"
	ActionRefresh         = "refresh"
	ActionCheckIn         = "check_in"
	ActionSendPing        = "send_ping"
	ActionClearPing       = "clear_ping"
	ActionActivateAlert   = "activate_alert"
	ActionDeactivateAlert = "deactivate_alert"
	ActionAdvance         = "advance"
	ActionFail            = "fail"
	ActionRestore         = "restore"
	ActionExpect          = "expect"
)

var (
	userActions = []string{
		ActionAddContact, ActionRemoveContact, ActionUpdateRoles, ActionRefresh,
		ActionCheckIn, ActionSendPing, ActionClearPing, ActionActivateAlert,
		ActionDeactivateAlert, ActionExpect,
	}
	contactActions = []string{
		ActionAddContact, ActionRemoveContact, ActionUpdateRoles, ActionSendPing, ActionClearPing,
	}
	failOps = []mocks.Op{
		mocks.OpFetchAll, mocks.OpGet, mocks.OpCreate, mocks.OpUpdate,
		mocks.OpRemove, mocks.OpGetProfile, mocks.OpPutProfile,
	}
)

// Assertion validates the trace or a user's final view.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event matches Action and, when set, User,
	//   Contact and Outcome
	// - "trace_order": Actions first appear in this order
	// - "trace_count": Action appears exactly Count times
	// - "contact": User's view of Contact matches Expect
	// - "self": User's own status matches Expect
	Type string `yaml:"type"`

	Action  string `yaml:"action,omitempty"`
	User    string `yaml:"user,omitempty"`
	Contact string `yaml:"contact,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected action order (used by trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Expect contains expected field values (used by contact and self).
	// Subset match: only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertContact       = "contact"
	AssertSelf          = "self"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Users) == 0 {
		return fmt.Errorf("users list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	users := make(map[string]bool, len(s.Users))
	for i, u := range s.Users {
		if u.ID == "" {
			return fmt.Errorf("users[%d]: id is required", i)
		}
		if users[u.ID] {
			return fmt.Errorf("users[%d]: duplicate id %q", i, u.ID)
		}
		if u.CheckInInterval <= 0 {
			return fmt.Errorf("users[%d]: check_in_interval must be positive", i)
		}
		users[u.ID] = true
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i], users); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], users); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, st *Step, users map[string]bool) error {
	switch {
	case st.Action == "":
		return fmt.Errorf("steps[%d]: action is required", index)
	case slices.Contains(userActions, st.Action):
		if !users[st.User] {
			return fmt.Errorf("steps[%d]: unknown user %q", index, st.User)
		}
		if slices.Contains(contactActions, st.Action) && st.Contact == "" {
			return fmt.Errorf("steps[%d]: contact is required for %s", index, st.Action)
		}
		if st.Action == ActionUpdateRoles && st.Roles == nil {
			return fmt.Errorf("steps[%d]: roles is required for update_roles", index)
		}
	case st.Action == ActionAdvance:
		if st.Duration <= 0 {
			return fmt.Errorf("steps[%d]: duration must be positive for advance", index)
		}
	case st.Action == ActionFail:
		if !slices.Contains(failOps, mocks.Op(st.Op)) {
			return fmt.Errorf("steps[%d]: unknown op %q for fail", index, st.Op)
		}
	case st.Action == ActionRestore:
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, st.Action)
	}
	if st.Action == ActionExpect && len(st.Expect) == 0 {
		return fmt.Errorf("steps[%d]: expect is required for expect", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, users map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertContact, AssertSelf:
		if !users[a.User] {
			return fmt.Errorf("assertions[%d]: unknown user %q", index, a.User)
		}
		if a.Type == AssertContact && a.Contact == "" {
			return fmt.Errorf("assertions[%d]: contact is required for contact", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
