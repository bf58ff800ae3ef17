package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CycleDetector Unit Tests
// =============================================================================

func TestCycleDetector_New(t *testing.T) {
	cd := NewCycleDetector()
	require.NotNil(t, cd)
	assert.Equal(t, 0, cd.Size())
}

func TestCycleDetector_EnterLeave(t *testing.T) {
	cd := NewCycleDetector()

	require.NoError(t, cd.Enter("run-1", "a"))
	require.NoError(t, cd.Enter("run-1", "b"))
	assert.Equal(t, []string{"a", "b"}, cd.Path("run-1"))

	cd.Leave("run-1", "b")
	assert.Equal(t, []string{"a"}, cd.Path("run-1"))

	cd.Leave("run-1", "a")
	assert.Empty(t, cd.Path("run-1"))
	assert.Equal(t, 0, cd.Size(), "empty paths are dropped")
}

func TestCycleDetector_RevisitIsCycle(t *testing.T) {
	cd := NewCycleDetector()

	require.NoError(t, cd.Enter("run-1", "a"))
	require.NoError(t, cd.Enter("run-1", "b"))

	err := cd.Enter("run-1", "a")
	require.Error(t, err)
	assert.True(t, IsDependencyCycleError(err))
	assert.Equal(t, "dependency cycle: a -> b -> a", err.Error())

	// The failed Enter leaves the path untouched.
	assert.Equal(t, []string{"a", "b"}, cd.Path("run-1"))
}

func TestCycleDetector_TraceStartsAtRevisitedTask(t *testing.T) {
	cd := NewCycleDetector()

	for _, name := range []string{"root", "a", "b", "c"} {
		require.NoError(t, cd.Enter("run-1", name))
	}

	err := cd.Enter("run-1", "b")
	var cycle *DependencyCycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"b", "c", "b"}, cycle.Trace)
}

func TestCycleDetector_SelfDependency(t *testing.T) {
	cd := NewCycleDetector()

	require.NoError(t, cd.Enter("run-1", "a"))
	err := cd.Enter("run-1", "a")
	assert.EqualError(t, err, "dependency cycle: a -> a")
}

func TestCycleDetector_RunsAreIsolated(t *testing.T) {
	cd := NewCycleDetector()

	require.NoError(t, cd.Enter("run-1", "a"))
	assert.NoError(t, cd.Enter("run-2", "a"), "same task in another run is not a cycle")
	assert.Equal(t, 2, cd.Size())

	cd.Clear("run-1")
	assert.Equal(t, 1, cd.Size())
	assert.Empty(t, cd.Path("run-1"))
}

func TestCycleDetector_LeaveOutOfOrderIsNoop(t *testing.T) {
	cd := NewCycleDetector()

	require.NoError(t, cd.Enter("run-1", "a"))
	require.NoError(t, cd.Enter("run-1", "b"))

	cd.Leave("run-1", "a")
	assert.Equal(t, []string{"a", "b"}, cd.Path("run-1"))
}
