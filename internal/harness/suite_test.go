package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "failure.yaml"),
		filepath.Join("testdata", "scenarios", "fanout.yaml"),
		filepath.Join("testdata", "scenarios", "fanout_cue.yaml"),
		filepath.Join("testdata", "scenarios", "switch.yaml"),
	}, files)

	files, err = FindScenarios("testdata/scenarios", "fan*")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = FindScenarios("testdata/nowhere", "")
	assert.Error(t, err)

	_, err = FindScenarios("testdata/scenarios", "[")
	assert.Error(t, err)
}

func TestRunSuite(t *testing.T) {
	suite, err := RunSuite(t.Context(), "testdata/scenarios", SuiteOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4, suite.Total)
	assert.Equal(t, 4, suite.Passed, "outcomes: %+v", suite.Scenarios)
	assert.Equal(t, 0, suite.Failed)
	for _, o := range suite.Scenarios {
		assert.Equal(t, GoldenMissing, o.Golden, o.Name)
	}
}

// copyScenario copies the fanout scenario and its workflow into a temp dir.
func copyScenario(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "workflows"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scenarios"), 0755))

	wf, err := os.ReadFile("testdata/workflows/fanout.yaml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workflows", "fanout.yaml"), wf, 0644))

	sc, err := os.ReadFile("testdata/scenarios/fanout.yaml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scenarios", "fanout.yaml"), sc, 0644))
	return filepath.Join(dir, "scenarios")
}

func TestRunSuite_UpdateThenCompare(t *testing.T) {
	dir := copyScenario(t)

	suite, err := RunSuite(t.Context(), dir, SuiteOptions{Update: true})
	require.NoError(t, err)
	require.Len(t, suite.Scenarios, 1)
	assert.Equal(t, GoldenUpdated, suite.Scenarios[0].Golden)
	assert.FileExists(t, filepath.Join(dir, "golden", "fanout.golden"))

	suite, err = RunSuite(t.Context(), dir, SuiteOptions{})
	require.NoError(t, err)
	assert.Equal(t, GoldenMatch, suite.Scenarios[0].Golden)
	assert.Equal(t, 1, suite.Passed)

	// The golden directory itself is not scanned for scenarios.
	files, err := FindScenarios(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestRunSuite_GoldenMismatch(t *testing.T) {
	dir := copyScenario(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "fanout.golden"), []byte("stale"), 0644))

	suite, err := RunSuite(t.Context(), dir, SuiteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, suite.Failed)
	assert.Contains(t, suite.Scenarios[0].Errors[0], "does not match golden file")
}

func TestRunSuite_LoadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: [unclosed"), 0644))

	suite, err := RunSuite(t.Context(), dir, SuiteOptions{})
	require.NoError(t, err)
	require.Len(t, suite.Scenarios, 1)
	assert.False(t, suite.Scenarios[0].Pass)
	assert.Equal(t, "bad.yaml", suite.Scenarios[0].Name)
	assert.Contains(t, suite.Scenarios[0].Errors[0], "failed to load scenario")
}
