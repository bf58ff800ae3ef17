package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"

	"github.com/thinkerbot/tap-sub003/internal/audit"
)

// Arity is the number of positional arguments a process accepts: exactly N,
// or at least N when Variadic is set.
type Arity struct {
	N        int
	Variadic bool
}

// Accepts reports whether n arguments satisfy the arity.
func (a Arity) Accepts(n int) bool {
	if a.Variadic {
		return n >= a.N
	}
	return n == a.N
}

// String renders the arity as "2" or "1+".
func (a Arity) String() string {
	if a.Variadic {
		return strconv.Itoa(a.N) + "+"
	}
	return strconv.Itoa(a.N)
}

// Process is the unit of work wrapped by a Node.
//
// Processes are built with one of the variant constructors (Nullary, Unary,
// Binary, Fixed, Variadic), each with an explicit signature. The App checks
// the argument count against Arity before calling Call.
type Process interface {
	Arity() Arity
	Call(inv *Invocation, args []any) (any, error)
}

type nullary func(*Invocation) (any, error)

func (f nullary) Arity() Arity { return Arity{N: 0} }
func (f nullary) Call(inv *Invocation, _ []any) (any, error) {
	return f(inv)
}

type unary func(*Invocation, any) (any, error)

func (f unary) Arity() Arity { return Arity{N: 1} }
func (f unary) Call(inv *Invocation, args []any) (any, error) {
	return f(inv, args[0])
}

type binary func(*Invocation, any, any) (any, error)

func (f binary) Arity() Arity { return Arity{N: 2} }
func (f binary) Call(inv *Invocation, args []any) (any, error) {
	return f(inv, args[0], args[1])
}

type listProcess struct {
	arity Arity
	fn    func(*Invocation, []any) (any, error)
}

func (p listProcess) Arity() Arity { return p.arity }
func (p listProcess) Call(inv *Invocation, args []any) (any, error) {
	return p.fn(inv, args)
}

// Nullary wraps a process that takes no arguments.
func Nullary(fn func(inv *Invocation) (any, error)) Process { return nullary(fn) }

// Unary wraps a process that takes exactly one argument.
func Unary(fn func(inv *Invocation, arg any) (any, error)) Process { return unary(fn) }

// Binary wraps a process that takes exactly two arguments.
func Binary(fn func(inv *Invocation, a, b any) (any, error)) Process { return binary(fn) }

// Fixed wraps a process that takes exactly n arguments.
func Fixed(n int, fn func(inv *Invocation, args []any) (any, error)) Process {
	return listProcess{arity: Arity{N: n}, fn: fn}
}

// Variadic wraps a process that takes minArgs or more arguments.
func Variadic(minArgs int, fn func(inv *Invocation, args []any) (any, error)) Process {
	return listProcess{arity: Arity{N: minArgs, Variadic: true}, fn: fn}
}

// Invocation is the context handed to a process for a single call.
type Invocation struct {
	ctx    context.Context
	app    *App
	node   *Node
	inputs []*audit.Audit
	seq    int64
}

// Context returns the context of the Run (or Execute) driving this call.
func (inv *Invocation) Context() context.Context { return inv.ctx }

// App returns the scheduler executing the call.
func (inv *Invocation) App() *App { return inv.app }

// Node returns the node being invoked.
func (inv *Invocation) Node() *Node { return inv.node }

// Inputs returns the audits of the call arguments.
func (inv *Invocation) Inputs() []*audit.Audit {
	out := make([]*audit.Audit, len(inv.inputs))
	copy(out, inv.inputs)
	return out
}

// Seq returns the logical clock stamp of the call.
func (inv *Invocation) Seq() int64 { return inv.seq }

// RunID returns the id of the App's run.
func (inv *Invocation) RunID() string { return inv.app.runID }

// CheckTerminate returns ErrTerminated if Terminate has been requested.
// Long-running processes call it at points where they can safely stop and
// return the error unchanged.
func (inv *Invocation) CheckTerminate() error {
	return inv.app.CheckTerminate()
}

// Enq queues a call on the invoking App. Processes use it to re-enqueue
// themselves or feed other nodes.
func (inv *Invocation) Enq(node *Node, args ...any) error {
	return inv.app.Enq(node, args...)
}

// callProcess runs proc. A returned error is wrapped in a NodeError, and a
// panic is converted into one with the stack attached. ErrTerminated passes
// through unwrapped.
func callProcess(proc Process, inv *Invocation, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &NodeError{
				Node:  inv.node.name,
				Seq:   inv.seq,
				Err:   fmt.Errorf("panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	result, err = proc.Call(inv, args)
	if err != nil && !errors.Is(err, ErrTerminated) {
		return nil, &NodeError{Node: inv.node.name, Seq: inv.seq, Err: err}
	}
	return result, err
}
