package engine

import (
	"context"
	"sync"

	"github.com/thinkerbot/tap-sub003/internal/audit"
)

// SyncMerge is a barrier: it holds one result per input and fires its
// output once every input has delivered.
//
// INVARIANTS:
//   - A slot holds at most one result. A second arrival from the same input
//     before release is a SynchronizeError.
//   - On release the slots are cleared before the output is dispatched, so
//     an inline output that feeds back into the join starts a new round.
//
// Members are released in input order regardless of arrival order. With
// Splat the members become positional arguments of the output, with Iterate
// each member is dispatched on its own, and otherwise the output receives
// one composite audit keyed by the join.
type SyncMerge struct {
	joinBase

	mu     sync.Mutex
	slots  []*audit.Audit
	filled int
}

// NewSyncMerge wires every node in inputs to output behind a barrier.
func (a *App) NewSyncMerge(name string, inputs []*Node, output *Node, cfg JoinConfig) (*SyncMerge, error) {
	j := &SyncMerge{}
	if err := a.initJoin(&j.joinBase, j, name, KindSyncMerge, cfg, inputs, []*Node{output}); err != nil {
		return nil, err
	}
	j.slots = make([]*audit.Audit, len(j.inputs))
	return j, nil
}

// Receive stores result in the slot of src and releases the barrier once
// every slot is filled.
func (j *SyncMerge) Receive(ctx context.Context, src *Node, result *audit.Audit) error {
	idx := j.inputIndex(src)
	if idx < 0 {
		return &WiringError{Join: j.name, JoinKind: j.kind, Message: "received result from non-input node " + src.name}
	}

	j.mu.Lock()
	if j.slots[idx] != nil {
		j.mu.Unlock()
		return &SynchronizeError{Join: j.name, Source: src.name}
	}
	j.slots[idx] = result
	j.filled++
	if j.filled < len(j.slots) {
		j.mu.Unlock()
		return nil
	}
	members := j.slots
	j.slots = make([]*audit.Audit, len(j.inputs))
	j.filled = 0
	j.mu.Unlock()

	if j.config.Iterate {
		for _, m := range members {
			if err := j.handoff(ctx, j.outputs[0], []*audit.Audit{m}); err != nil {
				return err
			}
		}
		return nil
	}
	return j.release(ctx, j.outputs[0], members)
}

// Waiting returns the inputs that have not delivered in the current round.
func (j *SyncMerge) Waiting() []*Node {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []*Node
	for i, s := range j.slots {
		if s == nil {
			out = append(out, j.inputs[i])
		}
	}
	return out
}
