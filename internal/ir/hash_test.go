package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditIDDeterminism(t *testing.T) {
	id1, err := AuditID("run-1", 3, "t0", `"x"`, []string{"src-a"})
	require.NoError(t, err)
	id2, err := AuditID("run-1", 3, "t0", `"x"`, []string{"src-a"})
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "AuditID must be deterministic")
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func auditID(t *testing.T, runID string, ordinal int64, key, value string, sources []string) string {
	t.Helper()
	id, err := AuditID(runID, ordinal, key, value, sources)
	require.NoError(t, err)
	return id
}

func TestAuditIDChangesWithInput(t *testing.T) {
	base := auditID(t, "run-1", 1, "t0", `"x"`, []string{"a"})

	assert.NotEqual(t, base, auditID(t, "run-2", 1, "t0", `"x"`, []string{"a"}), "run")
	assert.NotEqual(t, base, auditID(t, "run-1", 2, "t0", `"x"`, []string{"a"}), "ordinal")
	assert.NotEqual(t, base, auditID(t, "run-1", 1, "t1", `"x"`, []string{"a"}), "key")
	assert.NotEqual(t, base, auditID(t, "run-1", 1, "t0", `"y"`, []string{"a"}), "value")
	assert.NotEqual(t, base, auditID(t, "run-1", 1, "t0", `"x"`, []string{"b"}), "sources")
	assert.NotEqual(t, base, auditID(t, "run-1", 1, "t0", `"x"`, nil), "no sources")
}

func TestAuditIDSourceOrderMatters(t *testing.T) {
	ab := auditID(t, "run-1", 1, "m", "[]", []string{"a", "b"})
	ba := auditID(t, "run-1", 1, "m", "[]", []string{"b", "a"})
	assert.NotEqual(t, ab, ba)
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte("same")
	assert.NotEqual(t,
		hashWithDomain(DomainWorkflow, data),
		hashWithDomain(DomainAudit, data))
}

func TestWorkflowHashStableAcrossSpellings(t *testing.T) {
	zero, one := 0, 1
	implicit := &Workflow{
		Name: "w",
		Nodes: []NodeSpec{
			{Process: "identity", Params: Object{"a": Int(1), "b": Int(2)}},
			{Process: "identity"},
		},
		Joins: []JoinSpec{{Type: "sequence", Inputs: []int{0}, Outputs: []int{1}}},
	}
	explicit := &Workflow{
		Name: "w",
		Nodes: []NodeSpec{
			{Index: &zero, Name: "identity0", Process: "identity", Params: Object{"b": Int(2), "a": Int(1)}},
			{Index: &one, Name: "identity1", Process: "identity", Params: Object{}},
		},
		Joins: []JoinSpec{{Type: "sequence", Inputs: []int{0}, Outputs: []int{1}}},
	}

	h1, err := WorkflowHash(implicit)
	require.NoError(t, err)
	h2, err := WorkflowHash(explicit)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// Join type aliases hash as their canonical type.
	aliased := *explicit
	aliased.Joins = []JoinSpec{{Type: "sequence", Inputs: []int{0}, Outputs: []int{1}}}
	h3, err := WorkflowHash(&aliased)
	require.NoError(t, err)
	assert.Equal(t, h1, h3)
}

func TestWorkflowHashChanges(t *testing.T) {
	w := &Workflow{Name: "w", Nodes: []NodeSpec{{Process: "identity"}}}
	h1, err := WorkflowHash(w)
	require.NoError(t, err)

	w.Nodes[0].Inputs = Array{String("x")}
	h2, err := WorkflowHash(w)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	splat := false
	w.Nodes = append(w.Nodes, NodeSpec{Process: "identity"})
	w.Joins = []JoinSpec{{Type: "collect", Inputs: []int{0}, Outputs: []int{1}, Options: JoinOptions{Splat: &splat}}}
	h3, err := WorkflowHash(w)
	require.NoError(t, err)

	w.Joins[0].Options.Splat = nil
	h4, err := WorkflowHash(w)
	require.NoError(t, err)
	assert.NotEqual(t, h3, h4, "explicit splat=false differs from unset")
}

func TestWorkflowHashUnknownJoinType(t *testing.T) {
	w := &Workflow{
		Nodes: []NodeSpec{{Process: "a"}, {Process: "b"}},
		Joins: []JoinSpec{{Type: "teleport", Inputs: []int{0}, Outputs: []int{1}}},
	}
	_, err := WorkflowHash(w)
	assert.Error(t, err)
}
