package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yml", "a.yaml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	paths, err := FindScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.yml")}, paths)

	single := filepath.Join(dir, "notes.txt")
	paths, err = FindScenarios(single)
	require.NoError(t, err)
	assert.Equal(t, []string{single}, paths)
}

func TestFindScenarios_NotFound(t *testing.T) {
	var nf *ScenarioNotFoundError

	_, err := FindScenarios(filepath.Join(t.TempDir(), "missing"))
	require.ErrorAs(t, err, &nf)

	_, err = FindScenarios(t.TempDir())
	require.ErrorAs(t, err, &nf)
	assert.Contains(t, err.Error(), "no scenario files found")
}

func TestRunSuite(t *testing.T) {
	paths, err := FindScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("name: broken\n"), 0o644))

	result := RunSuite(append(paths, broken))
	assert.Equal(t, len(paths)+1, result.Total)
	assert.Equal(t, len(paths), result.Passed)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.Pass())
	require.Len(t, result.Failures, 1)
	assert.Equal(t, broken, result.Failures[0].ScenarioPath)
	assert.Contains(t, result.Failures[0].Errors[0], "failed to load scenario")
	assert.Contains(t, result.Results, "ping_round_trip")
}
