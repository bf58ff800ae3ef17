package nodes

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/thinkerbot/tap-sub003/internal/audit"
	"github.com/thinkerbot/tap-sub003/internal/engine"
	"github.com/thinkerbot/tap-sub003/internal/ir"
)

// Default returns a registry holding every builtin process.
func Default() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

// RegisterBuiltins adds the builtin processes to r.
func RegisterBuiltins(r *Registry) {
	r.Register("identity", "return the argument unchanged", identity)
	r.Register("const", "return params.value, ignoring arguments", constant)
	r.Register("upcase", "upper-case a string (params.lang: BCP 47 tag)", caser(cases.Upper))
	r.Register("downcase", "lower-case a string (params.lang: BCP 47 tag)", caser(cases.Lower))
	r.Register("format", "fmt.Sprintf(params.template, args...)", format)
	r.Register("concat", "join arguments with params.sep", concat)
	r.Register("split", "split a string on params.sep (default: whitespace)", split)
	r.Register("sum", "add integer arguments", sum)
	r.Register("length", "length of a string or sequence", length)
	r.Register("range", "the sequence 0..n-1 for the argument, or params.n", rangeOf)
	r.Register("collect", "return the arguments as a sequence", collect)
	r.Register("flatten", "flatten one level of nested sequences", flatten)
	r.Register("countdown", "re-enqueue itself with n-1 until n is 0", countdown)
	r.Register("sleep", "wait params.ms milliseconds, honouring terminate", sleep)
	r.Register("fail", "return an error with params.message", fail)
}

func identity(ir.Object) (engine.Process, error) {
	return engine.Unary(func(_ *engine.Invocation, arg any) (any, error) {
		return arg, nil
	}), nil
}

func constant(params ir.Object) (engine.Process, error) {
	v, ok := params["value"]
	if !ok {
		return nil, errors.New("params.value is required")
	}
	value := ir.ToGo(v)
	return engine.Variadic(0, func(*engine.Invocation, []any) (any, error) {
		return value, nil
	}), nil
}

func caser(mk func(language.Tag, ...cases.Option) cases.Caser) Factory {
	return func(params ir.Object) (engine.Process, error) {
		tag, err := language.Parse(params.String("lang", "und"))
		if err != nil {
			return nil, fmt.Errorf("params.lang: %w", err)
		}
		return engine.Unary(func(_ *engine.Invocation, arg any) (any, error) {
			s, ok := arg.(string)
			if !ok {
				return nil, fmt.Errorf("expected a string, got %T", arg)
			}
			// Casers carry state and are not shared between calls.
			return mk(tag).String(s), nil
		}), nil
	}
}

func format(params ir.Object) (engine.Process, error) {
	tmpl := params.String("template", "%v")
	return engine.Variadic(0, func(_ *engine.Invocation, args []any) (any, error) {
		return fmt.Sprintf(tmpl, args...), nil
	}), nil
}

func concat(params ir.Object) (engine.Process, error) {
	sep := params.String("sep", "")
	return engine.Variadic(0, func(_ *engine.Invocation, args []any) (any, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a)
		}
		return strings.Join(parts, sep), nil
	}), nil
}

func split(params ir.Object) (engine.Process, error) {
	sep := params.String("sep", "")
	return engine.Unary(func(_ *engine.Invocation, arg any) (any, error) {
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", arg)
		}
		var parts []string
		if sep == "" {
			parts = strings.Fields(s)
		} else {
			parts = strings.Split(s, sep)
		}
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	}), nil
}

func sum(ir.Object) (engine.Process, error) {
	return engine.Variadic(0, func(_ *engine.Invocation, args []any) (any, error) {
		var total int64
		for i, a := range args {
			n, ok := toInt(a)
			if !ok {
				return nil, fmt.Errorf("argument %d: expected an integer, got %T", i, a)
			}
			total += n
		}
		return total, nil
	}), nil
}

func length(ir.Object) (engine.Process, error) {
	return engine.Unary(func(_ *engine.Invocation, arg any) (any, error) {
		if s, ok := arg.(string); ok {
			return int64(len([]rune(s))), nil
		}
		if audit.IsSequence(arg) {
			return int64(len(audit.Elements(arg))), nil
		}
		return nil, fmt.Errorf("expected a string or sequence, got %T", arg)
	}), nil
}

func rangeOf(params ir.Object) (engine.Process, error) {
	def, hasDef := params["n"]
	return engine.Variadic(0, func(_ *engine.Invocation, args []any) (any, error) {
		var n int64
		switch {
		case len(args) > 0:
			v, ok := toInt(args[0])
			if !ok {
				return nil, fmt.Errorf("expected an integer, got %T", args[0])
			}
			n = v
		case hasDef:
			v, ok := toInt(ir.ToGo(def))
			if !ok {
				return nil, errors.New("params.n must be an integer")
			}
			n = v
		default:
			return nil, errors.New("no count given")
		}
		out := make([]any, 0, max(n, 0))
		for i := int64(0); i < n; i++ {
			out = append(out, i)
		}
		return out, nil
	}), nil
}

func collect(ir.Object) (engine.Process, error) {
	return engine.Variadic(0, func(_ *engine.Invocation, args []any) (any, error) {
		out := make([]any, len(args))
		copy(out, args)
		return out, nil
	}), nil
}

func flatten(ir.Object) (engine.Process, error) {
	return engine.Unary(func(_ *engine.Invocation, arg any) (any, error) {
		if !audit.IsSequence(arg) {
			return []any{arg}, nil
		}
		var out []any
		for _, e := range audit.Elements(arg) {
			if audit.IsSequence(e) {
				out = append(out, audit.Elements(e)...)
				continue
			}
			out = append(out, e)
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	}), nil
}

func countdown(ir.Object) (engine.Process, error) {
	return engine.Unary(func(inv *engine.Invocation, arg any) (any, error) {
		n, ok := toInt(arg)
		if !ok {
			return nil, fmt.Errorf("expected an integer, got %T", arg)
		}
		if n > 0 {
			if err := inv.Enq(inv.Node(), n-1); err != nil {
				return nil, err
			}
		}
		return n, nil
	}), nil
}

// sleepSlice bounds how long a sleeping process goes without checking for
// termination.
const sleepSlice = 10 * time.Millisecond

func sleep(params ir.Object) (engine.Process, error) {
	d := time.Duration(params.Int("ms", 0)) * time.Millisecond
	if d < 0 {
		return nil, fmt.Errorf("params.ms must not be negative, got %d", params.Int("ms", 0))
	}
	return engine.Unary(func(inv *engine.Invocation, arg any) (any, error) {
		deadline := time.Now().Add(d)
		for {
			if err := inv.CheckTerminate(); err != nil {
				return nil, err
			}
			left := time.Until(deadline)
			if left <= 0 {
				return arg, nil
			}
			select {
			case <-inv.Context().Done():
				return nil, inv.Context().Err()
			case <-time.After(min(left, sleepSlice)):
			}
		}
	}), nil
}

func fail(params ir.Object) (engine.Process, error) {
	msg := params.String("message", "failed")
	return engine.Variadic(0, func(*engine.Invocation, []any) (any, error) {
		return nil, errors.New(msg)
	}), nil
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}
