package ir

import (
	"fmt"
	"strings"
)

// ValidationError represents a validation error with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is the error form of a non-empty Validate result.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// cardinality bounds the number of inputs and outputs of a join type.
// A max of 0 means unbounded.
type cardinality struct {
	minIn, maxIn, minOut, maxOut int
}

var joinCardinality = map[string]cardinality{
	JoinSequence:  {1, 1, 1, 1},
	JoinFork:      {1, 1, 1, 0},
	JoinMerge:     {1, 0, 1, 1},
	JoinSyncMerge: {1, 0, 1, 1},
	JoinSwitch:    {1, 0, 1, 0},
	JoinGate:      {1, 0, 1, 0},
}

// NodeName returns the effective name of the node at position pos.
func (w *Workflow) NodeName(pos int) string {
	n := w.Nodes[pos]
	if n.Name != "" {
		return n.Name
	}
	return fmt.Sprintf("%s%d", n.Process, n.IndexOf(pos))
}

// Validate checks the workflow against the structural rules the builder
// relies on. Returns all errors (not fail-fast) for better developer
// experience. Process names are not checked here; they depend on the
// registry in use.
func (w *Workflow) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if len(w.Nodes) == 0 {
		add("nodes", "at least one node is required")
	}
	if w.MaxSteps < 0 {
		add("max_steps", "must not be negative, got %d", w.MaxSteps)
	}

	indices := make(map[int]bool, len(w.Nodes))
	names := make(map[string]int, len(w.Nodes))
	for pos, n := range w.Nodes {
		field := fmt.Sprintf("nodes[%d]", pos)
		idx := n.IndexOf(pos)
		if idx < 0 {
			add(field+".index", "must not be negative, got %d", idx)
		}
		if indices[idx] {
			add(field+".index", "duplicate node index %d", idx)
		}
		indices[idx] = true

		if n.Process == "" {
			add(field+".process", "process is required")
		}
		if n.Batch < 0 {
			add(field+".batch", "must not be negative, got %d", n.Batch)
		}

		name := w.NodeName(pos)
		if prev, ok := names[name]; ok {
			add(field+".name", "duplicate node name %q (also nodes[%d])", name, prev)
		} else {
			names[name] = pos
		}
	}

	joinNames := make(map[string]bool, len(w.Joins))
	for i, j := range w.Joins {
		field := fmt.Sprintf("joins[%d]", i)

		if j.Name != "" {
			if joinNames[j.Name] {
				add(field+".name", "duplicate join name %q", j.Name)
			}
			joinNames[j.Name] = true
		}

		typ := CanonicalJoinType(j.Type)
		if typ == "" {
			add(field+".type", "unknown join type %q", j.Type)
		} else {
			c := joinCardinality[typ]
			checkCount(&errs, field+".inputs", typ, len(j.Inputs), c.minIn, c.maxIn)
			checkCount(&errs, field+".outputs", typ, len(j.Outputs), c.minOut, c.maxOut)
		}

		seen := make(map[int]bool, len(j.Inputs))
		for k, idx := range j.Inputs {
			if !indices[idx] {
				add(fmt.Sprintf("%s.inputs[%d]", field, k), "unknown node index %d", idx)
			}
			if seen[idx] {
				add(fmt.Sprintf("%s.inputs[%d]", field, k), "duplicate input %d", idx)
			}
			seen[idx] = true
		}
		for k, idx := range j.Outputs {
			if !indices[idx] {
				add(fmt.Sprintf("%s.outputs[%d]", field, k), "unknown node index %d", idx)
			}
		}

		if j.Options.Limit < 0 {
			add(field+".options.limit", "must not be negative, got %d", j.Options.Limit)
		}

		switch {
		case typ == JoinSwitch && j.Select == nil:
			add(field+".select", "a switch join requires a selector")
		case typ != JoinSwitch && j.Select != nil:
			add(field+".select", "only switch joins take a selector")
		case j.Select != nil:
			if !ValidSelectorTypes[j.Select.Type] {
				add(field+".select.type", "invalid selector type %q, must be one of: index, modulo, match", j.Select.Type)
			}
			if j.Select.Type == SelectMatch && len(j.Select.Values) == 0 {
				add(field+".select.values", "a match selector requires values")
			}
		}
	}

	return errs
}

func checkCount(errs *[]ValidationError, field, typ string, n, lo, hi int) {
	switch {
	case n < lo:
		*errs = append(*errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s join requires at least %d, got %d", typ, lo, n),
		})
	case hi > 0 && n > hi:
		*errs = append(*errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s join accepts at most %d, got %d", typ, hi, n),
		})
	}
}

// Err returns the validation result as an error, or nil when valid.
func (w *Workflow) Err() error {
	if errs := w.Validate(); len(errs) > 0 {
		return ValidationErrors(errs)
	}
	return nil
}
