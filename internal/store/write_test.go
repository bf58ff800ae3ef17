package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkerbot/tap-sub003/internal/audit"
	"github.com/thinkerbot/tap-sub003/internal/ir"
)

// writeTestAudit stores a minimal audit and returns its id.
func writeTestAudit(t *testing.T, s *Store, runID string, ordinal int64, key string, value any, sources ...string) string {
	t.Helper()
	valueJSON, text := marshalValue(value)
	id, err := ir.AuditID(runID, ordinal, ir.KeyRef+":"+key, valueJSON, sources)
	require.NoError(t, err)
	require.NoError(t, s.WriteAudit(t.Context(), ir.AuditRecord{
		ID:        id,
		RunID:     runID,
		Ordinal:   ordinal,
		KeyKind:   ir.KeyRef,
		Key:       key,
		ValueJSON: valueJSON,
		ValueText: text,
		Sources:   sources,
	}))
	return id
}

func TestBeginRun_AssignsSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.BeginRun(ctx, ir.RunRecord{ID: "run-a", WorkflowName: "one"}))
	require.NoError(t, s.BeginRun(ctx, ir.RunRecord{ID: "run-b", WorkflowName: "two"}))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-a", runs[0].ID)
	assert.Equal(t, int64(1), runs[0].Seq)
	assert.Equal(t, "run-b", runs[1].ID)
	assert.Equal(t, int64(2), runs[1].Seq)
	assert.Equal(t, ir.RunRunning, runs[1].Status)
}

func TestBeginRun_ResumeKeepsSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.BeginRun(ctx, ir.RunRecord{ID: "run-a"}))
	require.NoError(t, s.FinishRun(ctx, "run-a", ir.RunStopped, "", 3))
	require.NoError(t, s.BeginRun(ctx, ir.RunRecord{ID: "run-b"}))
	require.NoError(t, s.BeginRun(ctx, ir.RunRecord{ID: "run-a"}))

	rec, err := s.ReadRunRecord(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Seq)
	assert.Equal(t, ir.RunRunning, rec.Status)
	assert.Equal(t, int64(3), rec.Steps, "steps survive a resume")
}

func TestFinishRun(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.BeginRun(ctx, ir.RunRecord{ID: "run-a", WorkflowHash: "abc"}))
	require.NoError(t, s.FinishRun(ctx, "run-a", ir.RunFailed, "boom", 7))

	rec, err := s.ReadRunRecord(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, ir.RunFailed, rec.Status)
	assert.Equal(t, "boom", rec.Error)
	assert.Equal(t, int64(7), rec.Steps)
	assert.Equal(t, "abc", rec.WorkflowHash)
}

func TestFinishRun_Unknown(t *testing.T) {
	s := createTestStore(t)
	err := s.FinishRun(t.Context(), "nope", ir.RunCompleted, "", 0)
	assert.True(t, IsRunNotFound(err))
}

func TestWriteAudit_Idempotent(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.BeginRun(t.Context(), ir.RunRecord{ID: "run-a"}))

	root := writeTestAudit(t, s, "run-a", 1, "a", "x")
	id1 := writeTestAudit(t, s, "run-a", 2, "b", "y", root)
	id2 := writeTestAudit(t, s, "run-a", 2, "b", "y", root)
	assert.Equal(t, id1, id2)

	records, err := s.ReadAudits(t.Context(), "run-a")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{root}, records[1].Sources)
	assert.Empty(t, records[0].Sources)
	assert.NotNil(t, records[0].Sources, "empty, not nil")
}

func TestWriteAudit_RequiresRun(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteAudit(t.Context(), ir.AuditRecord{
		ID: "x", RunID: "missing", Ordinal: 1, KeyKind: ir.KeyNone, ValueText: "",
	})
	assert.Error(t, err, "foreign key on runs")
}

func TestWriteAudit_RequiresSources(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.BeginRun(t.Context(), ir.RunRecord{ID: "run-a"}))

	err := s.WriteAudit(t.Context(), ir.AuditRecord{
		ID: "x", RunID: "run-a", Ordinal: 1, KeyKind: ir.KeyNone, Sources: []string{"ghost"},
	})
	assert.Error(t, err, "foreign key on audit_sources")

	records, err := s.ReadAudits(t.Context(), "run-a")
	require.NoError(t, err)
	assert.Empty(t, records, "the failed write is rolled back")
}

func TestWriteAggregate(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.BeginRun(ctx, ir.RunRecord{ID: "run-a"}))
	a := writeTestAudit(t, s, "run-a", 1, "a", 1)
	b := writeTestAudit(t, s, "run-a", 2, "b", 2)

	require.NoError(t, s.WriteAggregate(ctx, ir.AggregateRecord{RunID: "run-a", Node: "b", AuditID: b, Position: 2}))
	require.NoError(t, s.WriteAggregate(ctx, ir.AggregateRecord{RunID: "run-a", Node: "a", AuditID: a, Position: 1}))
	require.NoError(t, s.WriteAggregate(ctx, ir.AggregateRecord{RunID: "run-a", Node: "a", AuditID: a, Position: 1}))

	aggs, err := s.Aggregates(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Equal(t, "a", aggs[0].Node)
	assert.Equal(t, "b", aggs[1].Node)
}

func TestMarshalKey(t *testing.T) {
	tests := []struct {
		key  audit.Key
		kind string
		text string
	}{
		{audit.Ref{Name: "node"}, ir.KeyRef, "node"},
		{audit.Index(3), ir.KeyIndex, "3"},
		{nil, ir.KeyNone, ""},
	}
	for _, tt := range tests {
		kind, text := marshalKey(tt.key)
		assert.Equal(t, tt.kind, kind)
		assert.Equal(t, tt.text, text)

		back, err := unmarshalKey(kind, text)
		require.NoError(t, err)
		assert.Equal(t, tt.key, back)
	}

	_, err := unmarshalKey(ir.KeyIndex, "x")
	assert.Error(t, err)
	_, err = unmarshalKey("weird", "")
	assert.Error(t, err)
}

func TestMarshalValue(t *testing.T) {
	valueJSON, text := marshalValue([]any{"a", 1, nil})
	assert.Equal(t, `["a",1,null]`, valueJSON)
	assert.NotEmpty(t, text)

	valueJSON, text = marshalValue(1.5)
	assert.Empty(t, valueJSON, "floats have no canonical form")
	assert.Equal(t, audit.FormatValue(1.5), text)

	back, err := unmarshalValue(nullString(""), text)
	require.NoError(t, err)
	assert.Equal(t, text, back)

	back, err = unmarshalValue(nullString(`{"b":[1,true]}`), "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": []any{int64(1), true}}, back)
}
