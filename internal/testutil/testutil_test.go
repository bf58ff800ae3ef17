package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkerbot/tap-sub003/internal/engine"
)

func TestNewApp_FixedRunID(t *testing.T) {
	app := NewApp("run-x")
	assert.Equal(t, "run-x", app.RunID())
	assert.Equal(t, engine.StateReady, app.State())

	assert.Equal(t, DefaultRunID, NewApp("").RunID())
}

func TestCallLog_RecordsInOrder(t *testing.T) {
	log := NewCallLog()
	app := NewApp("")
	a := app.NewNode("a", Suffix(log))
	b := app.NewNode("b", Collect(log))
	_, err := app.NewSequence("", a, b, engine.JoinConfig{})
	require.NoError(t, err)

	require.NoError(t, app.Enq(a, "x"))
	require.NoError(t, app.Run(t.Context()))

	assert.Equal(t, []string{"a", "b"}, log.Names())
	calls := log.Calls()
	assert.Equal(t, []any{"x"}, calls[0].Args)
	assert.Equal(t, []any{"x.a"}, calls[1].Args)
	assert.Less(t, calls[0].Seq, calls[1].Seq)
	assert.Equal(t, []any{[]any{"x.a"}}, app.Aggregator().Values(b))

	log.Reset()
	assert.Empty(t, log.Names())
}

func TestFail(t *testing.T) {
	log := NewCallLog()
	app := NewApp("")
	n := app.NewNode("boom", Fail(log, "nope"))
	require.NoError(t, app.Enq(n, 1, 2))

	err := app.Run(t.Context())
	require.Error(t, err)
	assert.True(t, engine.IsNodeError(err))
	assert.Contains(t, err.Error(), "nope")
	assert.Equal(t, []any{1, 2}, log.Calls()[0].Args)
}
