package task

import (
	"errors"
	"strings"
	"sync"
)

// DependencyCycleError reports a task that depends on itself, directly or
// through other tasks.
type DependencyCycleError struct {
	// Trace lists the tasks on the cycle, starting and ending with the task
	// that was revisited.
	Trace []string
}

func (e *DependencyCycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Trace, " -> ")
}

// Kind names the error class for logs and the CLI.
func (e *DependencyCycleError) Kind() string { return "DependencyCycleError" }

// IsDependencyCycleError reports whether err is a DependencyCycleError.
func IsDependencyCycleError(err error) bool {
	var e *DependencyCycleError
	return errors.As(err, &e)
}

// CycleDetector tracks the tasks currently being resolved, per run.
//
// A task is entered before its dependencies are resolved and left once it
// has run. Entering a task that is still on the resolution path means the
// dependency graph loops back on itself:
//
//	a depends on b, b depends on a
//	Enter(a) -> Enter(b) -> Enter(a)   <- cycle: a -> b -> a
//
// Thread-safe: Can be called concurrently.
type CycleDetector struct {
	mu    sync.Mutex
	paths map[string][]string // map[run_id]resolution path
}

// NewCycleDetector creates a new cycle detector.
func NewCycleDetector() *CycleDetector {
	return &CycleDetector{
		paths: make(map[string][]string),
	}
}

// Enter pushes name onto the resolution path of runID. It returns a
// DependencyCycleError, and leaves the path unchanged, when name is already
// being resolved.
func (c *CycleDetector) Enter(runID, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.paths[runID]
	for i, p := range path {
		if p == name {
			trace := make([]string, 0, len(path)-i+1)
			trace = append(trace, path[i:]...)
			trace = append(trace, name)
			return &DependencyCycleError{Trace: trace}
		}
	}
	c.paths[runID] = append(path, name)
	return nil
}

// Leave pops name from the resolution path of runID. Leaving a task that is
// not on top of the path is a no-op.
func (c *CycleDetector) Leave(runID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.paths[runID]
	if n := len(path); n > 0 && path[n-1] == name {
		path = path[:n-1]
	}
	if len(path) == 0 {
		delete(c.paths, runID)
		return
	}
	c.paths[runID] = path
}

// Path returns a copy of the current resolution path of runID.
func (c *CycleDetector) Path(runID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.paths[runID]))
	copy(out, c.paths[runID])
	return out
}

// Clear drops the resolution path of runID.
func (c *CycleDetector) Clear(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.paths, runID)
}

// Size returns the number of runs with an active resolution path.
func (c *CycleDetector) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.paths)
}
