package engine

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrTerminated is returned by CheckTerminate once Terminate has been
// requested. A process that receives it should return it unchanged; Run
// treats it as a clean, cooperative exit rather than a failure.
var ErrTerminated = errors.New("terminated")

// NodeError wraps an error returned (or panic raised) by a node process.
//
// NodeError carries enough context to find the failing invocation in the
// logs and the audit store.
type NodeError struct {
	// Node is the name of the failing node.
	Node string

	// Seq is the logical clock stamp of the invocation.
	Seq int64

	// Err is the underlying error. For a recovered panic it describes the
	// panic value.
	Err error

	// Stack holds the goroutine stack when the process panicked.
	Stack []byte
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (seq=%d): %v", e.Node, e.Seq, e.Err)
}

// Unwrap returns the underlying process error.
func (e *NodeError) Unwrap() error { return e.Err }

// Kind returns the error kind used in logs and metrics labels.
func (e *NodeError) Kind() string { return "NodeError" }

// ArityError reports a call whose argument count does not match the
// declared arity of the node process.
type ArityError struct {
	Node     string
	Given    int
	Expected Arity
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("wrong number of arguments for %s (given %d, expected %s)",
		e.Node, e.Given, e.Expected)
}

func (e *ArityError) Kind() string { return "ArityError" }

// SwitchError reports a Switch selector that chose an index with no
// corresponding output.
type SwitchError struct {
	Join  string
	Index int
}

func (e *SwitchError) Error() string {
	return "no switch target at index: " + strconv.Itoa(e.Index)
}

func (e *SwitchError) Kind() string { return "SwitchError" }

// SynchronizeError reports a SyncMerge input that delivered a second result
// before the barrier released. It indicates a malformed graph.
type SynchronizeError struct {
	Join   string
	Source string
}

func (e *SynchronizeError) Error() string {
	return "already got a result for: " + e.Source
}

func (e *SynchronizeError) Kind() string { return "SynchronizeError" }

// WiringError reports a join constructed with nodes that violate its
// cardinality or ownership rules.
type WiringError struct {
	Join     string
	JoinKind JoinKind
	Message  string
}

func (e *WiringError) Error() string {
	if e.Join == "" {
		return fmt.Sprintf("invalid %s join: %s", e.JoinKind, e.Message)
	}
	return fmt.Sprintf("invalid %s join %q: %s", e.JoinKind, e.Join, e.Message)
}

func (e *WiringError) Kind() string { return "WiringError" }

// IsNodeError returns true if err is or wraps a NodeError.
func IsNodeError(err error) bool {
	var ne *NodeError
	return errors.As(err, &ne)
}

// IsArityError returns true if err is or wraps an ArityError.
func IsArityError(err error) bool {
	var ae *ArityError
	return errors.As(err, &ae)
}

// IsSwitchError returns true if err is or wraps a SwitchError.
func IsSwitchError(err error) bool {
	var se *SwitchError
	return errors.As(err, &se)
}

// IsSynchronizeError returns true if err is or wraps a SynchronizeError.
func IsSynchronizeError(err error) bool {
	var se *SynchronizeError
	return errors.As(err, &se)
}

// IsWiringError returns true if err is or wraps a WiringError.
func IsWiringError(err error) bool {
	var we *WiringError
	return errors.As(err, &we)
}

// IsTerminated returns true if err is or wraps ErrTerminated.
func IsTerminated(err error) bool {
	return errors.Is(err, ErrTerminated)
}

// ErrorKind names the category of err for logs and metrics labels:
// the Kind of the outermost typed engine error, "Terminated", or "Error"
// for anything else. A nil error has kind "".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrTerminated) {
		return "Terminated"
	}
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return "Error"
}
