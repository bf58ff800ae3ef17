package builder

import (
	"bytes"
	"fmt"

	"github.com/thinkerbot/tap-sub003/internal/engine"
	"github.com/thinkerbot/tap-sub003/internal/ir"
)

// Selector builds the switch selector described by sel for a switch with
// n outputs.
func Selector(sel *ir.SelectorSpec, n int) (engine.Selector, error) {
	if sel == nil {
		return nil, fmt.Errorf("a switch join requires a selector")
	}

	switch sel.Type {
	case ir.SelectIndex:
		field := sel.Field
		return engine.SelectValue(func(v any) (int, bool) {
			i, ok := asInt(lookup(v, field))
			return int(i), ok
		}), nil

	case ir.SelectModulo:
		if n == 0 {
			return nil, fmt.Errorf("modulo selector needs at least one output")
		}
		field := sel.Field
		return engine.SelectValue(func(v any) (int, bool) {
			i, ok := asInt(lookup(v, field))
			if !ok {
				return 0, false
			}
			m := int(i % int64(n))
			if m < 0 {
				m += n
			}
			return m, true
		}), nil

	case ir.SelectMatch:
		keys := make([][]byte, len(sel.Values))
		for i, v := range sel.Values {
			b, err := ir.MarshalCanonical(v)
			if err != nil {
				return nil, fmt.Errorf("select.values[%d]: %w", i, err)
			}
			keys[i] = b
		}
		field := sel.Field
		return engine.SelectValue(func(v any) (int, bool) {
			b, err := ir.MarshalCanonical(lookup(v, field))
			if err != nil {
				return 0, false
			}
			for i, k := range keys {
				if bytes.Equal(b, k) {
					return i, true
				}
			}
			return 0, false
		}), nil
	}
	return nil, fmt.Errorf("unknown selector type %q", sel.Type)
}

// lookup returns v, or the field of an object value when field is set.
func lookup(v any, field string) any {
	if field == "" {
		return v
	}
	if m, ok := v.(map[string]any); ok {
		return m[field]
	}
	return nil
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	}
	return 0, false
}
