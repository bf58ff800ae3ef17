package harness

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkerbot/tap-sub003/internal/engine"
	"github.com/thinkerbot/tap-sub003/internal/ir"
	"github.com/thinkerbot/tap-sub003/internal/store"
	"github.com/thinkerbot/tap-sub003/internal/testutil"
)

func sampleResult() *Result {
	r := NewResult("run-1")
	r.AddInvocationTrace("split", []any{"a b"}, 1)
	r.AddCompletionTrace("split", []any{"a", "b"}, "", 1)
	r.AddInvocationTrace("up", []any{"a"}, 2)
	r.AddCompletionTrace("up", "A", "", 2)
	r.AddInvocationTrace("up", []any{"b"}, 3)
	r.AddCompletionTrace("up", "B", "", 3)
	r.Results = []NodeResult{{Node: "up", Value: "A"}, {Node: "up", Value: "B"}}
	return r
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleResult().Trace

	assert.NoError(t, assertTraceContains(trace, Assertion{Node: "up", Args: []any{"b"}}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Node: "up"}))

	err := assertTraceContains(trace, Assertion{Node: "up", Args: []any{"c"}})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Equal(t, "not found in trace", ae.Actual)
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleResult().Trace

	assert.NoError(t, assertTraceOrder(trace, Assertion{Nodes: []string{"split", "up"}}))

	err := assertTraceOrder(trace, Assertion{Nodes: []string{"up", "split"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "up (pos 2) should be before split (pos 1)")

	err = assertTraceOrder(trace, Assertion{Nodes: []string{"split", "down"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing node: down")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleResult().Trace

	assert.NoError(t, assertTraceCount(trace, Assertion{Node: "up", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Node: "down", Count: 0}))

	err := assertTraceCount(trace, Assertion{Node: "split", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 invocations")
}

func TestAssertResults(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertResults(r, Assertion{Node: "up", Values: []any{"A", "B"}}))
	assert.NoError(t, assertResults(r, Assertion{Node: "split"}))

	err := assertResults(r, Assertion{Node: "up", Values: []any{"B", "A"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: up results [B A]")
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual([]any{int64(1), "x"}, []any{1, "x"}))
	assert.True(t, valuesEqual(map[string]any{"a": int64(1)}, map[string]any{"a": 1}))
	assert.True(t, valuesEqual(1.5, 1.5))
	assert.False(t, valuesEqual([]any{1}, []any{2}))
	assert.False(t, valuesEqual("1", 1))
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "2 invocations of up",
		Actual:   "1 invocations",
		Trace:    sampleResult().Trace,
	}
	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "Assertion failed: trace_count\n"))
	assert.Contains(t, msg, "  Expected: 2 invocations of up\n")
	assert.Contains(t, msg, "\nFull trace:\n")
	assert.Contains(t, msg, "  [1] split [a b]\n")
	assert.Contains(t, msg, "  [3] up [b]\n")
	assert.NotContains(t, msg, "[4]")
}

func TestAssertTrail(t *testing.T) {
	app := testutil.NewApp("run-trail")
	up := app.NewNode("up", engine.Unary(func(_ *engine.Invocation, arg any) (any, error) {
		return strings.ToUpper(arg.(string)), nil
	}))
	require.NoError(t, app.Enq(up, "a"))
	require.NoError(t, app.Run(t.Context()))

	assert.NoError(t, assertTrail(app, Assertion{Node: "up", Keys: []any{"0", "up"}}))

	err := assertTrail(app, Assertion{Node: "up", Keys: []any{"1", "up"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trail [0 up]")

	err = assertTrail(app, Assertion{Node: "up", Index: 1, Keys: []any{"0"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 results")

	err = assertTrail(app, Assertion{Node: "ghost", Keys: []any{"0"}})
	assert.EqualError(t, err, `trail assertion: unknown node "ghost"`)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.BeginRun(ctx, ir.RunRecord{ID: "r1", WorkflowName: "wf", WorkflowHash: "h1"}))
	require.NoError(t, st.FinishRun(ctx, "r1", ir.RunCompleted, "", 4))
	require.NoError(t, st.BeginRun(ctx, ir.RunRecord{ID: "r2", WorkflowName: "wf", WorkflowHash: "h1"}))
	return st
}

func TestAssertFinalState(t *testing.T) {
	st := openStore(t)
	ctx := t.Context()

	tests := []struct {
		name    string
		a       Assertion
		wantErr string
	}{
		{
			name: "match",
			a: Assertion{Table: "runs", Where: map[string]any{"id": "r1"},
				Expect: map[string]any{"status": "completed", "steps": 4, "workflow_name": "wf"}},
		},
		{
			name: "value mismatch",
			a: Assertion{Table: "runs", Where: map[string]any{"id": "r2"},
				Expect: map[string]any{"status": "completed"}},
			wantErr: `field "status" = running`,
		},
		{
			name: "row not found",
			a: Assertion{Table: "runs", Where: map[string]any{"id": "r9"},
				Expect: map[string]any{"status": "completed"}},
			wantErr: "row not found",
		},
		{
			name: "ambiguous",
			a: Assertion{Table: "runs", Where: map[string]any{"workflow_name": "wf"},
				Expect: map[string]any{"workflow_hash": "h1"}},
			wantErr: "multiple rows matched",
		},
		{
			name: "unknown column",
			a: Assertion{Table: "runs", Where: map[string]any{"id": "r1"},
				Expect: map[string]any{"colour": "red"}},
			wantErr: `field "colour" not present`,
		},
		{
			name: "bad table",
			a: Assertion{Table: "runs; DROP TABLE runs", Expect: map[string]any{"id": "r1"}},
			wantErr: "invalid table name",
		},
		{
			name: "bad column",
			a: Assertion{Table: "runs", Where: map[string]any{"id = id OR 1": 1},
				Expect: map[string]any{"id": "r1"}},
			wantErr: "invalid column name",
		},
		{
			name: "missing table",
			a: Assertion{Table: "nope", Expect: map[string]any{"id": "r1"}},
			wantErr: "query error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(ctx, st, tt.a)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual("x", []byte("x")))
	assert.True(t, stateValuesEqual(4, int64(4)))
	assert.True(t, stateValuesEqual(true, int64(1)))
	assert.True(t, stateValuesEqual(nil, nil))
	assert.False(t, stateValuesEqual(nil, "x"))
	assert.False(t, stateValuesEqual("4", int64(4)))
}

func TestEvaluateAssertions(t *testing.T) {
	r := sampleResult()
	assertions := []Assertion{
		{Type: AssertTraceCount, Node: "up", Count: 2},
		{Type: AssertTraceCount, Node: "up", Count: 3},
		{Type: AssertTrail, Node: "up", Keys: []any{"0"}},
		{Type: AssertFinalState, Table: "runs", Expect: map[string]any{"id": "r1"}},
		{Type: "bogus"},
	}

	errs := EvaluateAssertions(r, assertions, nil)
	require.Len(t, errs, 4)
	assert.Contains(t, errs[0], "2 invocations")
	assert.Equal(t, "assertion[2]: trail requires an app", errs[1])
	assert.Equal(t, "assertion[3]: final_state requires database context", errs[2])
	assert.Equal(t, `assertion[4]: unknown assertion type "bogus"`, errs[3])
}
