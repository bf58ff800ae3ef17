package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/thinkerbot/tap-sub003/internal/ir"
)

// Known fields per struct. Anything else is reported, mirroring the
// KnownFields decoding of YAML workflows.
var (
	workflowFields = fieldSet("name", "description", "max_steps", "nodes", "joins")
	nodeFields     = fieldSet("index", "name", "process", "params", "inputs", "batch")
	joinFields     = fieldSet("name", "type", "inputs", "outputs", "options", "select")
	optionFields   = fieldSet("stack", "iterate", "splat", "enq", "unbatched", "limit")
	selectFields   = fieldSet("type", "field", "values")
)

func fieldSet(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Load reads the workflow at path: CUE documents (".cue") are compiled,
// anything else is decoded as YAML or JSON.
func Load(path string) (*ir.Workflow, error) {
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		return LoadFile(path)
	}
	return ir.LoadWorkflow(path)
}

// LoadFile compiles the CUE workflow document at path. The workflow is
// read from a top-level "workflow" field when present, and from the file
// root otherwise.
func LoadFile(path string) (*ir.Workflow, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return CompileSource(path, src)
}

// CompileSource compiles CUE source text into a workflow. filename is used
// for error positions only.
func CompileSource(filename string, src []byte) (*ir.Workflow, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if wf := v.LookupPath(cue.ParsePath("workflow")); wf.Exists() {
		v = wf
	}
	return CompileWorkflow(v)
}

// CompileWorkflow parses a CUE value into a Workflow.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value must be concrete. Float values are rejected anywhere in the
// document; the workflow value model has integers only. Structural rules
// (join cardinality, index references) are left to Workflow.Validate.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`workflow: { nodes: [...], joins: [...] }`)
//	w, err := CompileWorkflow(v.LookupPath(cue.ParsePath("workflow")))
func CompileWorkflow(v cue.Value) (*ir.Workflow, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	if err := checkFields(v, "workflow", workflowFields); err != nil {
		return nil, err
	}

	w := &ir.Workflow{}
	var err error

	// Name defaults to the struct label, e.g. `workflow: fanout: {...}`.
	if w.Name, err = optString(v, "name", "name"); err != nil {
		return nil, err
	}
	if w.Name == "" {
		if sels := v.Path().Selectors(); len(sels) > 0 {
			w.Name = labelOf(sels[len(sels)-1])
		}
	}
	if w.Description, err = optString(v, "description", "description"); err != nil {
		return nil, err
	}
	if w.MaxSteps, err = optInt(v, "max_steps", "max_steps"); err != nil {
		return nil, err
	}

	nodesVal := v.LookupPath(cue.ParsePath("nodes"))
	if !nodesVal.Exists() {
		return nil, &CompileError{
			Field:   "nodes",
			Message: "nodes are required",
			Pos:     v.Pos(),
		}
	}
	if err := eachElem(nodesVal, "nodes", func(i int, elem cue.Value) error {
		n, err := compileNode(elem, fmt.Sprintf("nodes[%d]", i))
		if err != nil {
			return err
		}
		w.Nodes = append(w.Nodes, n)
		return nil
	}); err != nil {
		return nil, err
	}

	if joinsVal := v.LookupPath(cue.ParsePath("joins")); joinsVal.Exists() {
		if err := eachElem(joinsVal, "joins", func(i int, elem cue.Value) error {
			j, err := compileJoin(elem, fmt.Sprintf("joins[%d]", i))
			if err != nil {
				return err
			}
			w.Joins = append(w.Joins, j)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	return w, nil
}

func compileNode(v cue.Value, field string) (ir.NodeSpec, error) {
	var n ir.NodeSpec
	if err := checkFields(v, field, nodeFields); err != nil {
		return n, err
	}

	var err error
	if n.Process, err = optString(v, "process", field+".process"); err != nil {
		return n, err
	}
	if n.Process == "" {
		return n, &CompileError{
			Field:   field + ".process",
			Message: "process is required",
			Pos:     v.Pos(),
		}
	}
	if n.Name, err = optString(v, "name", field+".name"); err != nil {
		return n, err
	}
	if n.Batch, err = optInt(v, "batch", field+".batch"); err != nil {
		return n, err
	}
	if idx := v.LookupPath(cue.ParsePath("index")); idx.Exists() {
		i, err := intOf(idx, field+".index")
		if err != nil {
			return n, err
		}
		n.Index = &i
	}

	if p := v.LookupPath(cue.ParsePath("params")); p.Exists() {
		val, err := toValue(p, field+".params")
		if err != nil {
			return n, err
		}
		obj, ok := val.(ir.Object)
		if !ok {
			return n, &CompileError{
				Field:   field + ".params",
				Message: "params must be a struct",
				Pos:     p.Pos(),
			}
		}
		n.Params = obj
	}

	if in := v.LookupPath(cue.ParsePath("inputs")); in.Exists() {
		val, err := toValue(in, field+".inputs")
		if err != nil {
			return n, err
		}
		arr, ok := val.(ir.Array)
		if !ok {
			return n, &CompileError{
				Field:   field + ".inputs",
				Message: "inputs must be a list",
				Pos:     in.Pos(),
			}
		}
		n.Inputs = arr
	}

	return n, nil
}

func compileJoin(v cue.Value, field string) (ir.JoinSpec, error) {
	var j ir.JoinSpec
	if err := checkFields(v, field, joinFields); err != nil {
		return j, err
	}

	var err error
	if j.Type, err = optString(v, "type", field+".type"); err != nil {
		return j, err
	}
	if j.Type == "" {
		return j, &CompileError{
			Field:   field + ".type",
			Message: "join type is required",
			Pos:     v.Pos(),
		}
	}
	if j.Name, err = optString(v, "name", field+".name"); err != nil {
		return j, err
	}
	if j.Inputs, err = intList(v, "inputs", field+".inputs"); err != nil {
		return j, err
	}
	if j.Outputs, err = intList(v, "outputs", field+".outputs"); err != nil {
		return j, err
	}

	if o := v.LookupPath(cue.ParsePath("options")); o.Exists() {
		if j.Options, err = compileOptions(o, field+".options"); err != nil {
			return j, err
		}
	}

	if s := v.LookupPath(cue.ParsePath("select")); s.Exists() {
		sel, err := compileSelector(s, field+".select")
		if err != nil {
			return j, err
		}
		j.Select = sel
	}

	return j, nil
}

func compileOptions(v cue.Value, field string) (ir.JoinOptions, error) {
	var o ir.JoinOptions
	if err := checkFields(v, field, optionFields); err != nil {
		return o, err
	}

	flags := []struct {
		name string
		dst  *bool
	}{
		{"stack", &o.Stack},
		{"iterate", &o.Iterate},
		{"enq", &o.Enq},
		{"unbatched", &o.Unbatched},
	}
	for _, f := range flags {
		b, _, err := optBool(v, f.name, field+"."+f.name)
		if err != nil {
			return o, err
		}
		*f.dst = b
	}

	splat, set, err := optBool(v, "splat", field+".splat")
	if err != nil {
		return o, err
	}
	if set {
		o.Splat = &splat
	}

	if o.Limit, err = optInt(v, "limit", field+".limit"); err != nil {
		return o, err
	}
	return o, nil
}

func compileSelector(v cue.Value, field string) (*ir.SelectorSpec, error) {
	if err := checkFields(v, field, selectFields); err != nil {
		return nil, err
	}

	s := &ir.SelectorSpec{}
	var err error
	if s.Type, err = optString(v, "type", field+".type"); err != nil {
		return nil, err
	}
	if s.Field, err = optString(v, "field", field+".field"); err != nil {
		return nil, err
	}
	if vals := v.LookupPath(cue.ParsePath("values")); vals.Exists() {
		val, err := toValue(vals, field+".values")
		if err != nil {
			return nil, err
		}
		arr, ok := val.(ir.Array)
		if !ok {
			return nil, &CompileError{
				Field:   field + ".values",
				Message: "values must be a list",
				Pos:     vals.Pos(),
			}
		}
		s.Values = arr
	}
	return s, nil
}

// toValue converts a concrete CUE value into the workflow value model.
func toValue(v cue.Value, field string) (ir.Value, error) {
	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(i), nil
	case cue.FloatKind:
		return nil, &CompileError{
			Field:   field,
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.ListKind:
		arr := ir.Array{}
		err := eachElem(v, field, func(i int, elem cue.Value) error {
			ev, err := toValue(elem, fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return err
			}
			arr = append(arr, ev)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return arr, nil
	case cue.StructKind:
		obj := ir.Object{}
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			key := labelOf(iter.Selector())
			fv, err := toValue(iter.Value(), field+"."+key)
			if err != nil {
				return nil, err
			}
			obj[key] = fv
		}
		return obj, nil
	}
	return nil, &CompileError{
		Field:   field,
		Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
		Pos:     v.Pos(),
	}
}

// checkFields reports the first regular field of v not in known.
func checkFields(v cue.Value, field string, known map[string]bool) error {
	if v.Kind() != cue.StructKind {
		return &CompileError{
			Field:   field,
			Message: fmt.Sprintf("expected a struct, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		key := labelOf(iter.Selector())
		if !known[key] {
			return &CompileError{
				Field:   field + "." + key,
				Message: "unknown field",
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return nil
}

func eachElem(v cue.Value, field string, fn func(int, cue.Value) error) error {
	iter, err := v.List()
	if err != nil {
		return &CompileError{
			Field:   field,
			Message: "expected a list",
			Pos:     v.Pos(),
		}
	}
	for i := 0; iter.Next(); i++ {
		if err := fn(i, iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func optString(v cue.Value, path, field string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: "must be a string", Pos: sv.Pos()}
	}
	return s, nil
}

func optInt(v cue.Value, path, field string) (int, error) {
	iv := v.LookupPath(cue.ParsePath(path))
	if !iv.Exists() {
		return 0, nil
	}
	return intOf(iv, field)
}

func intOf(v cue.Value, field string) (int, error) {
	if v.Kind() == cue.FloatKind {
		return 0, &CompileError{Field: field, Message: "float values are forbidden - use int instead", Pos: v.Pos()}
	}
	i, err := v.Int64()
	if err != nil {
		return 0, &CompileError{Field: field, Message: "must be an integer", Pos: v.Pos()}
	}
	return int(i), nil
}

func optBool(v cue.Value, path, field string) (value, set bool, err error) {
	bv := v.LookupPath(cue.ParsePath(path))
	if !bv.Exists() {
		return false, false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, false, &CompileError{Field: field, Message: "must be a bool", Pos: bv.Pos()}
	}
	return b, true, nil
}

func intList(v cue.Value, path, field string) ([]int, error) {
	lv := v.LookupPath(cue.ParsePath(path))
	if !lv.Exists() {
		return nil, nil
	}
	var out []int
	err := eachElem(lv, field, func(i int, elem cue.Value) error {
		n, err := intOf(elem, fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return err
		}
		out = append(out, n)
		return nil
	})
	return out, err
}

// labelOf returns the unquoted label of a field selector.
func labelOf(sel cue.Selector) string {
	s := sel.String()
	if strings.HasPrefix(s, `"`) {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	}
	return s
}
