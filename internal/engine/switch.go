package engine

import (
	"context"

	"github.com/thinkerbot/tap-sub003/internal/audit"
)

// Selector chooses the output a Switch routes a result to. It returns the
// output index and true, or false to decline routing.
//
// Selectors are built from one of the variants below, each with a fixed
// signature.
type Selector interface {
	Select(result *audit.Audit) (int, bool)
}

// SelectValue selects on the result value alone.
type SelectValue func(value any) (int, bool)

// Select implements Selector.
func (f SelectValue) Select(result *audit.Audit) (int, bool) { return f(result.Value()) }

// SelectAudit selects on the full result audit, including its provenance.
type SelectAudit func(result *audit.Audit) (int, bool)

// Select implements Selector.
func (f SelectAudit) Select(result *audit.Audit) (int, bool) { return f(result) }

// Switch routes each result of its inputs to the one output chosen by its
// selector.
//
// An index outside the outputs is a SwitchError. A declined selection
// routes nowhere: the result lands in the aggregator under the source node.
type Switch struct {
	joinBase
	selector Selector
}

// NewSwitch wires inputs to outputs through sel.
func (a *App) NewSwitch(name string, inputs, outputs []*Node, sel Selector, cfg JoinConfig) (*Switch, error) {
	if sel == nil {
		return nil, &WiringError{Join: name, JoinKind: KindSwitch, Message: "selector is required"}
	}
	j := &Switch{selector: sel}
	if err := a.initJoin(&j.joinBase, j, name, KindSwitch, cfg, inputs, outputs); err != nil {
		return nil, err
	}
	return j, nil
}

// Receive routes result to the selected output.
func (j *Switch) Receive(ctx context.Context, src *Node, result *audit.Audit) error {
	idx, ok := j.selector.Select(result)
	if !ok {
		j.app.aggregate(ctx, src, result)
		return nil
	}
	if idx < 0 || idx >= len(j.outputs) {
		return &SwitchError{Join: j.name, Index: idx}
	}
	return j.dispatch(ctx, j.outputs[idx], result)
}
