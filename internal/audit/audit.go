package audit

import (
	"reflect"
	"strconv"
)

// Key identifies where an audited value originated.
//
// Key is a sealed sum type: only Ref and Index implement it. A nil Key is
// permitted for anonymous values and renders as an empty string.
type Key interface {
	String() string
	isKey()
}

// Ref names the node or join that produced a value.
type Ref struct {
	Name string
}

func (r Ref) String() string { return r.Name }
func (Ref) isKey()           {}

// Index is the position of a value within a sequence or argument list.
type Index int

func (i Index) String() string { return strconv.Itoa(int(i)) }
func (Index) isKey()           {}

// Audit is an immutable provenance record: a value, the key it was produced
// under, and the audits it was derived from.
//
// INVARIANTS:
//   - Fields never change after New returns.
//   - Every source was constructed before the audit itself, so the sources
//     relation is acyclic.
type Audit struct {
	key     Key
	value   any
	sources []*Audit
}

// New creates an audit. Nil sources are dropped; the sources slice is
// copied so later mutation by the caller cannot affect the record.
func New(key Key, value any, sources ...*Audit) *Audit {
	var srcs []*Audit
	for _, s := range sources {
		if s != nil {
			srcs = append(srcs, s)
		}
	}
	return &Audit{key: key, value: value, sources: srcs}
}

// Key returns the originating key, which may be nil.
func (a *Audit) Key() Key {
	return a.key
}

// KeyString returns the key rendered as a string ("" for a nil key).
func (a *Audit) KeyString() string {
	if a.key == nil {
		return ""
	}
	return a.key.String()
}

// Value returns the audited payload.
func (a *Audit) Value() any {
	return a.value
}

// Sources returns a copy of the parent audits in order.
func (a *Audit) Sources() []*Audit {
	if len(a.sources) == 0 {
		return nil
	}
	out := make([]*Audit, len(a.sources))
	copy(out, a.sources)
	return out
}

// NumSources returns the number of parent audits.
func (a *Audit) NumSources() int {
	return len(a.sources)
}

// IsRoot reports whether the audit has no sources.
func (a *Audit) IsRoot() bool {
	return len(a.sources) == 0
}

// String renders the audit the way Dump renders a single line.
func (a *Audit) String() string {
	return "o-[" + a.KeyString() + "] " + FormatValue(a.value)
}

// Splat expands an audit whose value is a sequence into one child audit per
// element, keyed by element index and sourced from a. Non-sequence values
// are returned unchanged as a one-element slice.
func Splat(a *Audit) []*Audit {
	if !IsSequence(a.value) {
		return []*Audit{a}
	}
	elems := Elements(a.value)
	out := make([]*Audit, len(elems))
	for i, e := range elems {
		out[i] = New(Index(i), e, a)
	}
	return out
}

// Values unwraps the payloads of a list of audits.
func Values(audits []*Audit) []any {
	out := make([]any, len(audits))
	for i, a := range audits {
		out[i] = a.value
	}
	return out
}

// IsSequence reports whether v is a slice or array other than a string or
// byte slice.
func IsSequence(v any) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case []any:
		return true
	case []byte:
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// Elements returns the elements of a sequence value as []any. It returns
// nil for values that are not sequences.
func Elements(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	if !IsSequence(v) {
		return nil
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
