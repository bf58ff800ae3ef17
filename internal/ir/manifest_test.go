package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestOf(t *testing.T) {
	w := validWorkflow()
	m := ManifestOf(w)

	ops := make([]string, 0, m.Len())
	for _, a := range m.Actions() {
		ops = append(ops, a.Op())
	}
	assert.Equal(t, []string{
		"add_node", "add_node", "add_node", "add_node",
		"add_join", "add_join",
		"enqueue",
	}, ops)

	enq, ok := m.Actions()[6].(Enqueue)
	require.True(t, ok)
	assert.Equal(t, 0, enq.Index)
	assert.Equal(t, Array{String("x")}, enq.Args)
}

func TestManifestActionsIsCopy(t *testing.T) {
	m := &Manifest{}
	m.Append(Enqueue{Index: 1})

	acts := m.Actions()
	acts[0] = Enqueue{Index: 99}
	assert.Equal(t, Enqueue{Index: 1}, m.Actions()[0])
}

func TestManifestMarshalJSON(t *testing.T) {
	m := &Manifest{}
	m.Append(
		AddNode{Node: NodeSpec{Name: "a", Process: "identity"}, Pos: 0},
		AddJoin{Join: JoinSpec{Type: JoinSequence, Inputs: []int{0}, Outputs: []int{0}}},
		Enqueue{Index: 0},
	)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"op": "add_node", "index": 0, "node": {"name": "a", "process": "identity"}},
		{"op": "add_join", "join": {"type": "sequence", "inputs": [0], "outputs": [0], "options": {}}},
		{"op": "enqueue", "index": 0, "args": []}
	]`, string(data))
}
