package store

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/thinkerbot/tap-sub003/internal/audit"
	"github.com/thinkerbot/tap-sub003/internal/ir"
)

// marshalKey splits an audit key into its stored kind and text.
func marshalKey(k audit.Key) (kind, text string) {
	switch k := k.(type) {
	case audit.Ref:
		return ir.KeyRef, k.Name
	case audit.Index:
		return ir.KeyIndex, strconv.Itoa(int(k))
	}
	return ir.KeyNone, ""
}

// unmarshalKey is the inverse of marshalKey.
func unmarshalKey(kind, text string) (audit.Key, error) {
	switch kind {
	case ir.KeyRef:
		return audit.Ref{Name: text}, nil
	case ir.KeyIndex:
		i, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("unmarshal key: bad index %q: %w", text, err)
		}
		return audit.Index(i), nil
	case ir.KeyNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unmarshal key: unknown kind %q", kind)
}

// marshalValue renders an audit value for storage. Values that have a
// canonical JSON form (RFC 8785) are stored as such; others, such as
// floats or Go structs a process returned, keep only their display text.
func marshalValue(v any) (valueJSON string, text string) {
	text = audit.FormatValue(v)
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", text
	}
	return string(data), text
}

// unmarshalValue restores a stored value. Values stored without JSON come
// back as their display text.
func unmarshalValue(valueJSON sql.NullString, text string) (any, error) {
	if !valueJSON.Valid || valueJSON.String == "" {
		return text, nil
	}
	v, err := ir.UnmarshalValue([]byte(valueJSON.String))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return ir.ToGo(v), nil
}

// nullString maps "" to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
