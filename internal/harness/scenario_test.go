package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tojkuv/LifeSignal-sub007/internal/contact"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: add
description: "Alice adds Bob"
start: 2026-03-01T08:00:00Z
users:
  - { id: alice, name: Alice, check_in_interval: 12h }
  - { id: bob, check_in_interval: 24h, seed_demo: true }
steps:
  - user: alice
    action: add_contact
    contact: bob
    roles: { responder: true, dependent: true }
  - { action: advance, duration: 90m }
  - { action: fail, op: update, owner: bob }
assertions:
  - { type: trace_count, action: add_contact, count: 1 }
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "add", s.Name)
	assert.True(t, s.Start.Equal(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)), "start = %v", s.Start)
	require.Len(t, s.Users, 2)
	assert.Equal(t, 12*time.Hour, s.Users[0].CheckInInterval)
	assert.True(t, s.Users[1].SeedDemo)
	require.Len(t, s.Steps, 3)
	assert.Equal(t, &contact.Roles{Responder: true, Dependent: true}, s.Steps[0].Roles)
	assert.Equal(t, 90*time.Minute, s.Steps[1].Duration)
	assert.Equal(t, "bob", s.Steps[2].Owner)
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "misspelled key"
users: [{ id: alice, check_in_interval: 1h }]
steps: [{ user: alice, action: refresh }]
assertion: []
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestValidateScenario(t *testing.T) {
	valid := func() *Scenario {
		return &Scenario{
			Name:        "ok",
			Description: "valid",
			Users:       []User{{ID: "alice", CheckInInterval: time.Hour}, {ID: "bob", CheckInInterval: time.Hour}},
			Steps:       []Step{{User: "alice", Action: ActionRefresh}},
		}
	}
	require.NoError(t, validateScenario(valid()))

	tests := []struct {
		name   string
		mutate func(*Scenario)
		want   string
	}{
		{"no name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"no users", func(s *Scenario) { s.Users = nil }, "users list"},
		{"no steps", func(s *Scenario) { s.Steps = nil }, "steps list"},
		{"duplicate user", func(s *Scenario) { s.Users[1].ID = "alice" }, "duplicate id"},
		{"no interval", func(s *Scenario) { s.Users[0].CheckInInterval = 0 }, "check_in_interval"},
		{"unknown user", func(s *Scenario) { s.Steps[0].User = "carol" }, `unknown user "carol"`},
		{"unknown action", func(s *Scenario) { s.Steps[0].Action = "wave" }, `unknown action "wave"`},
		{"ping without contact", func(s *Scenario) { s.Steps[0].Action = ActionSendPing }, "contact is required"},
		{"roles without roles", func(s *Scenario) {
			s.Steps[0] = Step{User: "alice", Action: ActionUpdateRoles, Contact: "bob"}
		}, "roles is required"},
		{"advance without duration", func(s *Scenario) { s.Steps[0] = Step{Action: ActionAdvance} }, "duration"},
		{"fail unknown op", func(s *Scenario) { s.Steps[0] = Step{Action: ActionFail, Op: "subscribe"} }, "unknown op"},
		{"empty expect", func(s *Scenario) { s.Steps[0] = Step{User: "alice", Action: ActionExpect} }, "expect is required"},
		{"assertion without type", func(s *Scenario) { s.Assertions = []Assertion{{}} }, "type is required"},
		{"contact assertion without contact", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertContact, User: "alice", Expect: map[string]any{"exists": true}}}
		}, "contact is required"},
		{"self assertion unknown user", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertSelf, User: "zed", Expect: map[string]any{"state": "pending"}}}
		}, `unknown user "zed"`},
		{"unknown assertion", func(s *Scenario) { s.Assertions = []Assertion{{Type: "final_state"}} }, "unknown assertion type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := validateScenario(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
