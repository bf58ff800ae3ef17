package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Fanout(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/fanout.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestSnapshot_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/fanout.yaml")
	require.NoError(t, err)

	var first []byte
	for i := 0; i < 3; i++ {
		result, err := Run(t.Context(), s)
		require.NoError(t, err)
		snap, err := Snapshot(s.Name, result)
		require.NoError(t, err)
		if first == nil {
			first = snap
			continue
		}
		assert.Equal(t, string(first), string(snap), "run %d", i)
	}
}

func TestSnapshot_ErrorKindAndFloats(t *testing.T) {
	result := NewResult("run-x")
	result.ErrorKind = "NodeError"
	result.Results = []NodeResult{{Node: "f", Value: 1.5}}
	result.AddCompletionTrace("f", nil, "boom", 1)

	snap, err := Snapshot("floaty", result)
	require.NoError(t, err)
	assert.Contains(t, string(snap), `"error_kind":"NodeError"`)
	assert.Contains(t, string(snap), `"value":"1.5"`)
	assert.Contains(t, string(snap), `"error":"boom"`)
	assert.NotContains(t, string(snap), `"result"`)
}

func TestGoldenPath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "fanout.golden"),
		GoldenPath(filepath.Join("scenarios", "fanout.yaml")))
}

func TestUpdateAndCompareGolden(t *testing.T) {
	dir := t.TempDir()
	scenarioFile := filepath.Join(dir, "fanout.yaml")

	s, err := LoadScenario("testdata/scenarios/fanout.yaml")
	require.NoError(t, err)
	result, err := Run(t.Context(), s)
	require.NoError(t, err)

	_, err = CompareGolden(scenarioFile, s.Name, result)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, UpdateGolden(scenarioFile, s.Name, result))
	ok, err := CompareGolden(scenarioFile, s.Name, result)
	require.NoError(t, err)
	assert.True(t, ok)

	result.Results[0].Value = "changed"
	ok, err = CompareGolden(scenarioFile, s.Name, result)
	require.NoError(t, err)
	assert.False(t, ok)
}
