package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/thinkerbot/tap-sub003/internal/audit"
	"github.com/thinkerbot/tap-sub003/internal/ir"
)

// Snapshot renders the deterministic parts of a result: canonical JSON of
// the trace and results, followed by the audit dump.
//
// Values without a canonical form (floats) are written in their printed
// form so a snapshot can always be taken.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, event := range result.Trace {
		m := map[string]any{
			"type": event.Type,
			"node": event.Node,
			"seq":  event.Seq,
		}
		if event.Args != nil {
			m["args"] = canonicalValue(event.Args)
		}
		if event.Type == EventCompletion && event.Error == "" {
			m["result"] = canonicalValue(event.Result)
		}
		if event.Error != "" {
			m["error"] = event.Error
		}
		trace[i] = m
	}

	results := make([]any, len(result.Results))
	for i, r := range result.Results {
		results[i] = map[string]any{"node": r.Node, "value": canonicalValue(r.Value)}
	}

	snapshot := map[string]any{
		"scenario_name": scenarioName,
		"run_id":        result.RunID,
		"trace":         trace,
		"results":       results,
	}
	if result.ErrorKind != "" {
		snapshot["error_kind"] = result.ErrorKind
	}

	data, err := ir.MarshalCanonical(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(data)
	buf.WriteString("\n\n")
	buf.WriteString(result.Dump)
	return buf.Bytes(), nil
}

// canonicalValue returns v when it has a canonical form and its printed
// form otherwise.
func canonicalValue(v any) any {
	if _, err := ir.FromGo(v); err != nil {
		return audit.FormatValue(v)
	}
	return v
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

// GoldenPath returns the golden file of a scenario file outside tests:
// golden/<base name>.golden next to the scenario.
func GoldenPath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// UpdateGolden writes the snapshot of result as the golden file of
// scenarioFile.
func UpdateGolden(scenarioFile, scenarioName string, result *Result) error {
	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}
	path := GoldenPath(scenarioFile)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// CompareGolden reports whether the snapshot of result matches the golden
// file of scenarioFile. A missing golden file is reported by ok=false and
// an os.ErrNotExist error.
func CompareGolden(scenarioFile, scenarioName string, result *Result) (ok bool, err error) {
	golden, err := os.ReadFile(GoldenPath(scenarioFile))
	if err != nil {
		return false, err
	}
	current, err := Snapshot(scenarioName, result)
	if err != nil {
		return false, err
	}
	return bytes.Equal(golden, current), nil
}
