package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with args and returns stdout and
// stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// initDemo writes a config for alice using the in-memory backend and
// store with demo data enabled, and returns its path.
func initDemo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	_, _, err := runCLI(t, "init", "--config", path, "--owner", "alice", "--store", "memory", "--demo")
	require.NoError(t, err)
	return path
}

type viewResponse struct {
	Status string `json:"status"`
	Data   struct {
		Owner        string          `json:"owner"`
		Responders   []contactReport `json:"responders"`
		Dependents   []contactReport `json:"dependents"`
		PendingPings int             `json:"pending_pings"`
		Alerting     []string        `json:"alerting"`
	} `json:"data"`
}

func TestInit_WritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, _, err := runCLI(t, "init", "--config", path, "--owner", "alice", "--store", "memory")
	require.NoError(t, err)
	assert.Contains(t, out, "Config written to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "owner: alice")
	assert.Contains(t, string(data), "driver: memory")
}

func TestInit_RefusesOverwrite(t *testing.T) {
	path := initDemo(t)

	out, _, err := runCLI(t, "init", "--config", path, "--owner", "bob")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
	assert.Contains(t, out, "already exists")
}

func TestInit_RejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, _, err := runCLI(t, "init", "--config", path, "--owner", "alice", "--backend", "dynamo")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.NoFileExists(t, path, "an invalid init leaves no config behind")

	_, _, err = runCLI(t, "init", "--config", path, "--owner", "alice", "--backend", "redis")
	require.NoError(t, err, "a corrected init is not blocked by the failed one")
}

func TestContacts_DemoData(t *testing.T) {
	path := initDemo(t)

	out, _, err := runCLI(t, "contacts", "--config", path, "--format", "json")
	require.NoError(t, err)

	var resp viewResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "alice", resp.Data.Owner)
	assert.Len(t, resp.Data.Responders, 3)
	assert.Len(t, resp.Data.Dependents, 2)
	assert.Equal(t, []string{"demo-2"}, resp.Data.Alerting)
	for _, c := range resp.Data.Responders {
		assert.True(t, c.Demo, c.ID)
	}
}

func TestContacts_TextTables(t *testing.T) {
	path := initDemo(t)

	out, _, err := runCLI(t, "contacts", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Responders (3)")
	assert.Contains(t, out, "Dependents (2)")
	assert.Contains(t, out, "ID  ")
	assert.Contains(t, out, "demo")
}

func TestStatus_Summary(t *testing.T) {
	path := initDemo(t)

	out, _, err := runCLI(t, "status", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "alice: pending")
	assert.Contains(t, out, "pending pings: 0")
	assert.Contains(t, out, "alerting: demo-2")
	assert.NotContains(t, out, "Responders")
}

func TestStatus_OwnerOverride(t *testing.T) {
	path := initDemo(t)

	out, _, err := runCLI(t, "status", "--config", path, "--owner", "carol", "--format", "json")
	require.NoError(t, err)

	var resp viewResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "carol", resp.Data.Owner)
}

func TestStatus_MissingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	out, _, err := runCLI(t, "status", "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
	assert.Contains(t, out, "lifesignal init")
}

func TestStatus_SignedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_, _, err := runCLI(t, "init", "--config", path, "--store", "memory")
	require.NoError(t, err)

	out, _, err := runCLI(t, "status", "--config", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHENTICATED", resp.Error.Code)
}

func TestRegister_PublishesProfile(t *testing.T) {
	path := initDemo(t)

	out, _, err := runCLI(t, "register", "--config", path, "--name", "Alice", "--interval", "12h", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   profileResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "alice", resp.Data.ID)
	assert.Equal(t, "Alice", resp.Data.Name)
	assert.Equal(t, "12h0m0s", resp.Data.Interval)
}

func TestAdd_UnknownUser(t *testing.T) {
	path := initDemo(t)

	out, _, err := runCLI(t, "add", "bob", "--responder", "--config", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "add failed")
}

func TestRemove_DemoContact(t *testing.T) {
	path := initDemo(t)

	out, _, err := runCLI(t, "remove", "demo-1", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "demo-1")
}

func TestAlert_ArgumentValidation(t *testing.T) {
	path := initDemo(t)

	_, _, err := runCLI(t, "alert", "maybe", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid argument "maybe"`)

	_, _, err = runCLI(t, "alert", "--config", path)
	require.Error(t, err)
}

func TestScenario_RunsSuite(t *testing.T) {
	out, _, err := runCLI(t, "scenario", filepath.Join("..", "harness", "testdata", "scenarios"))
	require.NoError(t, err)
	assert.Contains(t, out, "Scenarios: 3 passed, 0 failed, 3 total")
	assert.Contains(t, out, "All scenarios passed")
}

func TestScenario_JSONWithTraces(t *testing.T) {
	scenario := filepath.Join("..", "harness", "testdata", "scenarios", "ping_round_trip.yaml")

	out, _, err := runCLI(t, "scenario", scenario, "--format", "json", "--verbose")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Total  int                        `json:"total"`
			Passed int                        `json:"passed"`
			Traces map[string]json.RawMessage `json:"traces"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Contains(t, resp.Data.Traces, "ping_round_trip")
}

func TestScenario_Failures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0o644))

	out, _, err := runCLI(t, "scenario", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ ")
	assert.Contains(t, out, "1 failed")

	_, _, err = runCLI(t, "scenario", filepath.Join(dir, "nothing-here"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
