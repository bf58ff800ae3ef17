package engine

import (
	"errors"
	"fmt"
	"sync"
)

// QuotaEnforcer counts node invocations for a run and enforces a maximum.
//
// Graphs that feed back into themselves (a Gate re-enqueueing work, a
// Switch routing to an upstream node) can loop forever. The quota turns
// such a runaway into a StepsExceededError instead of a hang.
//
// A limit of zero or less disables enforcement.
type QuotaEnforcer struct {
	mu       sync.Mutex
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step counter and validates it against the limit.
// Returns StepsExceededError once the limit is passed.
func (q *QuotaEnforcer) Check(runID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.current++
	if q.maxSteps > 0 && q.current > q.maxSteps {
		return &StepsExceededError{
			RunID: runID,
			Steps: q.current,
			Limit: q.maxSteps,
		}
	}
	return nil
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when a run exceeds the max steps quota.
type StepsExceededError struct {
	RunID string // The run that exceeded the quota
	Steps int    // Number of steps taken
	Limit int    // Maximum allowed steps
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("run %s exceeded max steps quota: %d steps > %d limit",
		e.RunID, e.Steps, e.Limit)
}

// Kind returns the error kind used in logs and metrics labels.
func (e *StepsExceededError) Kind() string {
	return "StepsExceededError"
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
