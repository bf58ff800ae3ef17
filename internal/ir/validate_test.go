package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkflow() *Workflow {
	return &Workflow{
		Name: "valid",
		Nodes: []NodeSpec{
			{Name: "src", Process: "identity", Inputs: Array{String("x")}},
			{Name: "a", Process: "upcase"},
			{Name: "b", Process: "identity"},
			{Name: "out", Process: "collect"},
		},
		Joins: []JoinSpec{
			{Type: JoinFork, Inputs: []int{0}, Outputs: []int{1, 2}},
			{Type: JoinSyncMerge, Inputs: []int{1, 2}, Outputs: []int{3}},
		},
	}
}

func fields(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Field
	}
	return out
}

func TestValidateAcceptsValidWorkflow(t *testing.T) {
	w := validWorkflow()
	assert.Empty(t, w.Validate())
	assert.NoError(t, w.Err())
}

func TestValidateEmpty(t *testing.T) {
	w := &Workflow{}
	assert.Equal(t, []string{"nodes"}, fields(w.Validate()))
}

func TestValidateNodes(t *testing.T) {
	w := &Workflow{
		MaxSteps: -1,
		Nodes: []NodeSpec{
			{Name: "a", Process: "identity"},
			{Name: "a", Process: "identity"},
			{Index: intp(0), Process: ""},
			{Process: "x", Batch: -2},
		},
	}

	errs := w.Validate()
	assert.ElementsMatch(t, []string{
		"max_steps",
		"nodes[1].name",
		"nodes[2].index",
		"nodes[2].process",
		"nodes[3].batch",
	}, fields(errs))
}

func TestValidateJoinCardinality(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		inputs  []int
		outputs []int
		fields  []string
	}{
		{"sequence ok", "sequence", []int{0}, []int{1}, nil},
		{"sequence two inputs", "sequence", []int{0, 1}, []int{2}, []string{"joins[0].inputs"}},
		{"sequence two outputs", "sequence", []int{0}, []int{1, 2}, []string{"joins[0].outputs"}},
		{"fork many outputs", "fork", []int{0}, []int{1, 2}, nil},
		{"fork two inputs", "fork", []int{0, 1}, []int{2}, []string{"joins[0].inputs"}},
		{"merge two outputs", "merge", []int{0, 1}, []int{1, 2}, []string{"joins[0].outputs"}},
		{"sync merge no inputs", "sync_merge", nil, []int{2}, []string{"joins[0].inputs"}},
		{"gate many to many", "collect", []int{0, 1}, []int{1, 2}, nil},
		{"unknown type", "teleport", []int{0}, []int{1}, []string{"joins[0].type"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &Workflow{
				Nodes: []NodeSpec{{Process: "a"}, {Process: "b"}, {Process: "c"}},
				Joins: []JoinSpec{{Type: tt.typ, Inputs: tt.inputs, Outputs: tt.outputs}},
			}
			got := fields(w.Validate())
			if tt.fields == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestValidateJoinReferences(t *testing.T) {
	w := &Workflow{
		Nodes: []NodeSpec{{Process: "a"}, {Process: "b"}},
		Joins: []JoinSpec{
			{Name: "j", Type: "merge", Inputs: []int{0, 0, 5}, Outputs: []int{9}, Options: JoinOptions{Limit: -1}},
			{Name: "j", Type: "sequence", Inputs: []int{0}, Outputs: []int{1}},
		},
	}

	assert.ElementsMatch(t, []string{
		"joins[0].inputs[1]",
		"joins[0].inputs[2]",
		"joins[0].outputs[0]",
		"joins[0].options.limit",
		"joins[1].name",
	}, fields(w.Validate()))
}

func TestValidateSelector(t *testing.T) {
	nodes := []NodeSpec{{Process: "a"}, {Process: "b"}, {Process: "c"}}

	tests := []struct {
		name   string
		join   JoinSpec
		fields []string
	}{
		{
			"switch without selector",
			JoinSpec{Type: "switch", Inputs: []int{0}, Outputs: []int{1, 2}},
			[]string{"joins[0].select"},
		},
		{
			"selector on fork",
			JoinSpec{Type: "fork", Inputs: []int{0}, Outputs: []int{1, 2}, Select: &SelectorSpec{Type: "index"}},
			[]string{"joins[0].select"},
		},
		{
			"bad selector type",
			JoinSpec{Type: "switch", Inputs: []int{0}, Outputs: []int{1, 2}, Select: &SelectorSpec{Type: "random"}},
			[]string{"joins[0].select.type"},
		},
		{
			"match without values",
			JoinSpec{Type: "switch", Inputs: []int{0}, Outputs: []int{1, 2}, Select: &SelectorSpec{Type: "match"}},
			[]string{"joins[0].select.values"},
		},
		{
			"valid match",
			JoinSpec{Type: "switch", Inputs: []int{0}, Outputs: []int{1, 2}, Select: &SelectorSpec{
				Type: "match", Values: Array{String("a"), String("b")},
			}},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &Workflow{Nodes: nodes, Joins: []JoinSpec{tt.join}}
			got := fields(w.Validate())
			if tt.fields == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	w := &Workflow{Nodes: []NodeSpec{{Name: "a"}}}
	err := w.Err()
	require.Error(t, err)
	assert.Equal(t, "nodes[0].process: process is required", err.Error())

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 1)
}
