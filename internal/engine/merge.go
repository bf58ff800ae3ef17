package engine

import (
	"context"

	"github.com/thinkerbot/tap-sub003/internal/audit"
)

// Merge dispatches the results of several inputs to one output, once per
// arrival. There is no coordination between inputs; see SyncMerge for a
// barrier.
type Merge struct {
	joinBase
}

// NewMerge wires every node in inputs to output.
func (a *App) NewMerge(name string, inputs []*Node, output *Node, cfg JoinConfig) (*Merge, error) {
	j := &Merge{}
	if err := a.initJoin(&j.joinBase, j, name, KindMerge, cfg, inputs, []*Node{output}); err != nil {
		return nil, err
	}
	return j, nil
}

// Receive dispatches result to the output.
func (j *Merge) Receive(ctx context.Context, _ *Node, result *audit.Audit) error {
	return j.dispatch(ctx, j.outputs[0], result)
}
