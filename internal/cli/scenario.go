package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tojkuv/LifeSignal-sub007/internal/harness"
)

// scenarioReport is the printed form of a suite run.
type scenarioReport struct {
	*harness.SuiteResult
	Traces map[string][]harness.TraceEvent `json:"traces,omitempty"`
}

func (r scenarioReport) Text() string {
	var b strings.Builder
	for _, f := range r.Failures {
		name := f.Scenario
		if name == "" {
			name = f.ScenarioPath
		}
		fmt.Fprintf(&b, "✗ %s\n", name)
		for _, e := range f.Errors {
			fmt.Fprintf(&b, "  %s\n", strings.TrimRight(e, "\n"))
		}
	}
	fmt.Fprintf(&b, "Scenarios: %d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
	if r.Pass() {
		b.WriteString("✓ All scenarios passed\n")
	}
	return b.String()
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scenario <file-or-dir>",
		Short: "Run multi-user scenarios against an in-memory backend",
		Long: `Run scenario files: several users sharing one in-memory contact service
on a manual clock, with injected failures and assertions on the trace and
on each user's final view. A directory runs every .yaml and .yml file in it.

No config is needed. With --verbose each scenario's trace is printed to
stderr.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (no scenario files, etc.)

Examples:
  lifesignal scenario ./scenarios
  lifesignal scenario ./scenarios/ping.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, rootOpts, args[0])
		},
	}
}

func runScenarios(cmd *cobra.Command, opts *RootOptions, path string) error {
	f := newFormatter(cmd, opts)

	paths, err := harness.FindScenarios(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeScenario, "failed to find scenarios", err)
	}
	f.VerboseLog("running %d scenario(s)", len(paths))

	suite := harness.RunSuite(paths)
	report := scenarioReport{SuiteResult: suite}

	if opts.Verbose {
		report.Traces = make(map[string][]harness.TraceEvent, len(suite.Results))
		for name, res := range suite.Results {
			report.Traces[name] = res.Trace
			if opts.Format != "json" {
				data, err := harness.MarshalTrace(name, res.Trace)
				if err == nil {
					fmt.Fprint(f.GetErrWriter(), string(data))
				}
			}
		}
	}

	if err := f.Success(report); err != nil {
		return err
	}
	if !suite.Pass() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", suite.Failed))
	}
	return nil
}
