package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarioGoldens runs every scenario under testdata/scenarios and
// compares its trace with testdata/golden/<name>.golden.
//
// To regenerate golden files after an intended change:
//
//	go test ./internal/harness -run TestScenarioGoldens -update
func TestScenarioGoldens(t *testing.T) {
	paths, err := FindScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestMarshalTrace(t *testing.T) {
	data, err := MarshalTrace("tiny", []TraceEvent{
		{Seq: 1, Action: "advance", Target: "1s", Outcome: OutcomeOK},
	})
	require.NoError(t, err)

	want := `{
  "scenario_name": "tiny",
  "trace": [
    {
      "seq": 1,
      "action": "advance",
      "target": "1s",
      "outcome": "ok"
    }
  ]
}
`
	assert.Equal(t, want, string(data))
}

func TestRun_IsDeterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "ping_round_trip.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario.Name, first.Trace)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, second.Trace)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
