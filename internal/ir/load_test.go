package ir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWorkflowYAML(t *testing.T) {
	w, err := LoadWorkflow(filepath.Join("testdata", "fanout.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "fanout", w.Name)
	assert.Equal(t, 100, w.MaxSteps)
	require.Len(t, w.Nodes, 3)
	assert.Equal(t, "split", w.Nodes[0].Process)
	assert.Equal(t, Object{"sep": String(" ")}, w.Nodes[0].Params)
	assert.Equal(t, Array{String("hello big world")}, w.Nodes[0].Inputs)

	require.Len(t, w.Joins, 2)
	assert.True(t, w.Joins[0].Options.Iterate)
	assert.Nil(t, w.Joins[0].Options.Splat)
	assert.Equal(t, "collect", w.Joins[1].Type)
	assert.Empty(t, w.Validate())
}

func TestLoadWorkflowJSONMatchesYAML(t *testing.T) {
	fromYAML, err := LoadWorkflow(filepath.Join("testdata", "fanout.yaml"))
	require.NoError(t, err)
	fromJSON, err := LoadWorkflow(filepath.Join("testdata", "fanout.json"))
	require.NoError(t, err)

	// "collect" and "gate" are the same join, so the documents hash equal.
	h1, err := WorkflowHash(fromYAML)
	require.NoError(t, err)
	h2, err := WorkflowHash(fromJSON)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestDecodeWorkflowRejectsUnknownFields(t *testing.T) {
	doc := `
name: typo
nodes:
  - process: identity
joins:
  - type: sequence
    inputs: [0]
    outputs: [0]
    options:
      iterrate: true
`
	_, err := ParseWorkflow([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iterrate")
}

func TestDecodeWorkflowSplatTriState(t *testing.T) {
	doc := `
nodes:
  - process: a
  - process: b
joins:
  - type: sync_merge
    inputs: [0]
    outputs: [1]
    options:
      splat: false
`
	w, err := ParseWorkflow([]byte(doc))
	require.NoError(t, err)
	require.NotNil(t, w.Joins[0].Options.Splat)
	assert.False(t, *w.Joins[0].Options.Splat)
}

func TestDecodeWorkflowExplicitIndex(t *testing.T) {
	doc := `
nodes:
  - index: 5
    process: a
`
	w, err := ParseWorkflow([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 5, w.Nodes[0].IndexOf(0))
}

func TestDecodeWorkflowErrors(t *testing.T) {
	_, err := ParseWorkflow(nil)
	assert.EqualError(t, err, "empty workflow document")

	_, err = DecodeWorkflow(strings.NewReader("nodes: [{process: a, params: {ratio: 0.5}}]"))
	assert.Error(t, err)

	_, err = LoadWorkflow(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
