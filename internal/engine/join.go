package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/thinkerbot/tap-sub003/internal/audit"
)

// JoinKind tags the contract a join implements.
type JoinKind int

const (
	// KindSequence connects one input to one output.
	KindSequence JoinKind = iota + 1
	// KindFork dispatches one input to every output.
	KindFork
	// KindMerge dispatches every input to one output, per arrival.
	KindMerge
	// KindSyncMerge waits for one result from every input, then fires once.
	KindSyncMerge
	// KindSwitch routes each arrival to the output chosen by a selector.
	KindSwitch
	// KindGate buffers arrivals until the queue reaches its flush entry.
	KindGate
)

var joinKindNames = map[JoinKind]string{
	KindSequence:  "sequence",
	KindFork:      "fork",
	KindMerge:     "merge",
	KindSyncMerge: "sync_merge",
	KindSwitch:    "switch",
	KindGate:      "gate",
}

func (k JoinKind) String() string {
	if s, ok := joinKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("JoinKind(%d)", int(k))
}

// ParseJoinKind resolves a join type name. "collect" is accepted as an
// alias of "gate" and "syncmerge"/"sync-merge" as aliases of "sync_merge".
func ParseJoinKind(s string) (JoinKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequence":
		return KindSequence, nil
	case "fork":
		return KindFork, nil
	case "merge":
		return KindMerge, nil
	case "sync_merge", "syncmerge", "sync-merge":
		return KindSyncMerge, nil
	case "switch":
		return KindSwitch, nil
	case "gate", "collect":
		return KindGate, nil
	}
	return 0, fmt.Errorf("unknown join type %q", s)
}

// JoinConfig holds the modifiers recognised by every join.
type JoinConfig struct {
	// Stack invokes outputs inline, on the current call stack, instead of
	// queueing them.
	Stack bool

	// Iterate dispatches once per element when a result is a sequence.
	Iterate bool

	// Splat spreads a sequence result into positional arguments.
	Splat bool

	// Enq forces queued dispatch even when Stack is set.
	Enq bool

	// Unbatched binds the join to the declaring node only, not its batch
	// siblings.
	Unbatched bool

	// Limit makes a Gate flush as soon as its buffer holds Limit results.
	// Zero means no limit. Other joins ignore it.
	Limit int
}

// Inline reports whether outputs are invoked immediately.
func (c JoinConfig) Inline() bool {
	return c.Stack && !c.Enq
}

// Join is a dataflow connector between nodes.
//
// Receive is called by the App once per completed invocation of an input
// node, always from the run loop.
type Join interface {
	Name() string
	Kind() JoinKind
	Config() JoinConfig
	Inputs() []*Node
	Outputs() []*Node
	Receive(ctx context.Context, src *Node, result *audit.Audit) error
}

// joinBase carries the state and dispatch logic every join shares.
type joinBase struct {
	app     *App
	name    string
	kind    JoinKind
	config  JoinConfig
	inputs  []*Node
	outputs []*Node
}

func (j *joinBase) Name() string       { return j.name }
func (j *joinBase) Kind() JoinKind     { return j.kind }
func (j *joinBase) Config() JoinConfig { return j.config }

func (j *joinBase) Inputs() []*Node {
	out := make([]*Node, len(j.inputs))
	copy(out, j.inputs)
	return out
}

func (j *joinBase) Outputs() []*Node {
	out := make([]*Node, len(j.outputs))
	copy(out, j.outputs)
	return out
}

// shape applies the argument-shaping modifiers to a result and returns one
// argument list per dispatch:
//   - Iterate yields one dispatch per element of a sequence result.
//   - Splat spreads a sequence into positional arguments.
//   - Otherwise the result is passed as a single argument.
func (j *joinBase) shape(result *audit.Audit) [][]*audit.Audit {
	var items []*audit.Audit
	if j.config.Iterate {
		items = audit.Splat(result)
	} else {
		items = []*audit.Audit{result}
	}

	calls := make([][]*audit.Audit, 0, len(items))
	for _, it := range items {
		if j.config.Splat {
			calls = append(calls, audit.Splat(it))
		} else {
			calls = append(calls, []*audit.Audit{it})
		}
	}
	return calls
}

// dispatch shapes result and hands every argument list to out.
func (j *joinBase) dispatch(ctx context.Context, out *Node, result *audit.Audit) error {
	for _, args := range j.shape(result) {
		if err := j.handoff(ctx, out, args); err != nil {
			return err
		}
	}
	return nil
}

// release hands a set of collected results (from a barrier) to out. Splat
// passes the members as positional arguments; otherwise a single composite
// audit keyed by the join is passed.
func (j *joinBase) release(ctx context.Context, out *Node, members []*audit.Audit) error {
	if j.config.Splat {
		return j.handoff(ctx, out, members)
	}
	return j.handoff(ctx, out, []*audit.Audit{j.composite(members)})
}

// composite builds the audit of a combined result: keyed by the join, with
// the member values as its value and the members as its sources.
func (j *joinBase) composite(members []*audit.Audit) *audit.Audit {
	return audit.New(audit.Ref{Name: j.name}, audit.Values(members), members...)
}

// handoff invokes out inline in stack mode and queues it otherwise.
func (j *joinBase) handoff(ctx context.Context, out *Node, args []*audit.Audit) error {
	if j.config.Inline() {
		_, err := j.app.call(ctx, out, args)
		return err
	}
	j.app.enqueue(EntryCall{Node: out, Args: args})
	return nil
}

// inputIndex finds the input slot for src: an exact match, or otherwise
// the input src is a batch sibling of.
func (j *joinBase) inputIndex(src *Node) int {
	for i, in := range j.inputs {
		if in == src {
			return i
		}
	}
	for i, in := range j.inputs {
		if in.inBatchWith(src) {
			return i
		}
	}
	return -1
}
