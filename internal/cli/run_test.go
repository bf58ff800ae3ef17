package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkerbot/tap-sub003/internal/engine"
	"github.com/thinkerbot/tap-sub003/internal/ir"
	"github.com/thinkerbot/tap-sub003/internal/store"
)

// executeRun runs the run command with a fixed run id.
func executeRun(t *testing.T, ctx context.Context, format string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	opts := &RunOptions{
		RootOptions:    &RootOptions{Format: format},
		RunIDGenerator: engine.NewFixedGenerator("run-cli"),
	}
	cmd := newRunCommand(opts)
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestRun_DumpGolden(t *testing.T) {
	stdout, _, err := executeRun(t, t.Context(), "text", "--dump", "testdata/fanout.yaml")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "run_fanout_dump", []byte(stdout))
}

func TestRun_JSON(t *testing.T) {
	stdout, _, err := executeRun(t, t.Context(), "json", "testdata/fanout.yaml")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		RunID  string    `json:"run_id"`
		Data   RunOutput `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-cli", resp.RunID)
	assert.Equal(t, ir.RunCompleted, resp.Data.Status)
	assert.Equal(t, "fanout", resp.Data.Workflow)
	assert.Equal(t, int64(5), resp.Data.Steps)
	assert.Empty(t, resp.Data.Dump)
	require.Len(t, resp.Data.Results, 1)
	assert.Equal(t, "all", resp.Data.Results[0].Node)
	assert.Equal(t, []any{"HELLO", "BIG", "WORLD"}, resp.Data.Results[0].Value)
}

func TestRun_RecordsToDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tap.db")

	_, _, err := executeRun(t, t.Context(), "text", "--db", dbPath, "testdata/fanout.yaml")
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.ReadRun(t.Context(), "run-cli")
	require.NoError(t, err)
	assert.Equal(t, ir.RunCompleted, run.Record.Status)
	assert.Equal(t, "fanout", run.Record.WorkflowName)
	assert.Equal(t, int64(5), run.Record.Steps)
	assert.Equal(t, []any{[]any{"HELLO", "BIG", "WORLD"}}, run.Values("all"))
}

func TestRun_Failure(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tap.db")

	stdout, stderr, err := executeRun(t, t.Context(), "text", "--db", dbPath, "testdata/failing.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "run failed")
	assert.Contains(t, err.Error(), "nope")
	assert.Contains(t, stdout, "run run-cli failed (1 steps, 1 queued)")
	assert.Equal(t, 1, strings.Count("\n"+stderr, "\nerror: "), "the failure is reported once")
	assert.True(t, IsReported(err))

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	rec, err := st.ReadRunRecord(t.Context(), "run-cli")
	require.NoError(t, err)
	assert.Equal(t, ir.RunFailed, rec.Status)
	assert.Contains(t, rec.Error, "nope")
}

func TestRun_FailureJSON(t *testing.T) {
	stdout, _, err := executeRun(t, t.Context(), "json", "testdata/failing.yaml")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRunFailed, resp.Error.Code)
	assert.Equal(t, map[string]any{"kind": "NodeError"}, resp.Error.Details)
}

func TestRun_MaxSteps(t *testing.T) {
	_, _, err := executeRun(t, t.Context(), "text", "--max-steps", "3", "testdata/countdown.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded")

	stdout, _, err := executeRun(t, t.Context(), "text", "testdata/countdown.yaml")
	require.NoError(t, err)
	assert.Contains(t, stdout, "run run-cli completed (11 steps)")
	assert.Contains(t, stdout, "tick: 0\n")
}

func TestRun_CancelledMarksStopped(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tap.db")
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	stdout, _, err := executeRun(t, ctx, "text", "--db", dbPath, "testdata/fanout.yaml")
	require.NoError(t, err)
	assert.Contains(t, stdout, "run run-cli stopped (0 steps, 1 queued)")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	rec, err := st.ReadRunRecord(context.Background(), "run-cli")
	require.NoError(t, err)
	assert.Equal(t, ir.RunStopped, rec.Status)
}

func TestRun_MetricsFile(t *testing.T) {
	metricsPath := filepath.Join(t.TempDir(), "tap.prom")

	_, _, err := executeRun(t, t.Context(), "text", "--metrics-file", metricsPath, "testdata/fanout.yaml")
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `tap_invocations_total{node="up",status="success"} 3`)
	assert.Contains(t, text, `tap_runs_total{status="completed"} 1`)
	assert.Contains(t, text, `tap_aggregated_total{node="all"} 1`)
}

func TestRun_LoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		code    int
		wantErr string
	}{
		{"missing file", "testdata/nope.yaml", ExitCommandError, "workflow not found"},
		{"directory", "testdata", ExitCommandError, "workflow is a directory"},
		{"malformed", "testdata/malformed.yaml", ExitCommandError, "failed to load"},
		{"invalid", "testdata/invalid.yaml", ExitFailure, "failed to build workflow"},
		{"unknown process", "testdata/unknown_process.yaml", ExitFailure, "teleport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeRun(t, t.Context(), "text", tt.path)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_MissingArg(t *testing.T) {
	_, _, err := executeRun(t, t.Context(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
