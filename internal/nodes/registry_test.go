package nodes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkerbot/tap-sub003/internal/engine"
	"github.com/thinkerbot/tap-sub003/internal/ir"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register("noop", "does nothing", func(ir.Object) (engine.Process, error) {
		return engine.Nullary(func(*engine.Invocation) (any, error) { return nil, nil }), nil
	})

	e, ok := r.Get("noop")
	require.True(t, ok)
	assert.Equal(t, "noop", e.Name)
	assert.Equal(t, "does nothing", e.Description)

	proc, err := r.New("noop", nil)
	require.NoError(t, err)
	assert.Equal(t, engine.Arity{N: 0}, proc.Arity())
}

func TestRegistryIgnoresNilFactory(t *testing.T) {
	r := NewRegistry()
	r.Register("nil", "", nil)
	_, ok := r.Get("nil")
	assert.False(t, ok)
}

func TestRegistryUnknownProcess(t *testing.T) {
	_, err := NewRegistry().New("missing", nil)
	var unknown *UnknownProcessError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.Name)
	assert.EqualError(t, err, `unknown process "missing"`)
}

func TestRegistryFactoryErrorIsWrapped(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("bad params")
	r.Register("broken", "", func(ir.Object) (engine.Process, error) { return nil, boom })

	_, err := r.New("broken", nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `process "broken"`)
}

func TestDefaultNames(t *testing.T) {
	names := Default().Names()
	assert.IsIncreasing(t, names)
	for _, want := range []string{"identity", "upcase", "split", "collect", "countdown", "sleep", "fail"} {
		assert.Contains(t, names, want)
	}
}
