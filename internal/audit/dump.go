package audit

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Lane glyphs. Each lane occupies a two-character cell.
const (
	cellEmpty   = "  "
	cellLane    = "| "
	cellBranch  = "|-"
	cellClose   = "`-"
	cellConnect = "--"
)

// Dump writes the DAG reachable from audits to w as an ASCII tree.
//
// Audits are listed once each in first-visit order (sources before the
// audit, sources in order, the given audits in order). Every line has the
// form
//
//	<lanes>o-[key] value
//
// An audit whose descendants are not printed directly beneath it keeps a
// lane open in its column. A spacer line showing the open lanes precedes
// each audit that does not simply continue the line above; on the audit's
// own line, source lanes draw "|-" (lane stays open) or "`-" (last child,
// lane closes) and "-" connectors run to the audit's column.
//
// A sequence a -> b -> c therefore renders without glyphs, and a merge of
// a and b into c renders as:
//
//	o-[a] "a"
//	|
//	| o-[b] "b"
//	| |
//	`-`-o-[c] "c"
func Dump(w io.Writer, audits ...*Audit) error {
	d := newDumper(audits)
	return d.write(w)
}

// DumpString returns the Dump rendering of audits.
func DumpString(audits ...*Audit) string {
	var buf bytes.Buffer
	_ = Dump(&buf, audits...)
	return buf.String()
}

type dumper struct {
	order     []*Audit
	sources   map[*Audit][]*Audit // unique sources, in order
	children  map[*Audit]int      // number of children within the dump
	remaining map[*Audit]int      // children not yet printed
	column    map[*Audit]int
	lanes     []*Audit // open lane per column slot, nil when free
}

func newDumper(audits []*Audit) *dumper {
	d := &dumper{
		sources:   make(map[*Audit][]*Audit),
		children:  make(map[*Audit]int),
		remaining: make(map[*Audit]int),
		column:    make(map[*Audit]int),
	}

	seen := make(map[*Audit]bool)
	var visit func(a *Audit)
	visit = func(a *Audit) {
		if seen[a] {
			return
		}
		for _, s := range a.sources {
			visit(s)
		}
		seen[a] = true
		d.order = append(d.order, a)
	}
	for _, a := range audits {
		if a != nil {
			visit(a)
		}
	}

	for _, a := range d.order {
		var uniq []*Audit
		dup := make(map[*Audit]bool, len(a.sources))
		for _, s := range a.sources {
			if dup[s] {
				continue
			}
			dup[s] = true
			uniq = append(uniq, s)
			d.children[s]++
		}
		d.sources[a] = uniq
	}
	for a, n := range d.children {
		d.remaining[a] = n
	}
	return d
}

// continues reports whether order[i+1] is the only child of order[i] and
// has order[i] as its only source, so it can be printed directly beneath.
func (d *dumper) continues(i int) bool {
	if i+1 >= len(d.order) {
		return false
	}
	parent, next := d.order[i], d.order[i+1]
	srcs := d.sources[next]
	return len(srcs) == 1 && srcs[0] == parent && d.children[parent] == 1
}

func (d *dumper) write(w io.Writer) error {
	for i, a := range d.order {
		var line strings.Builder

		if i > 0 && d.continues(i-1) {
			parent := d.sources[a][0]
			col := d.column[parent]
			d.remaining[parent]--
			for j := 0; j < col; j++ {
				line.WriteString(d.passCell(j))
			}
			d.column[a] = col
		} else {
			if len(d.lanes) > 0 {
				if _, err := io.WriteString(w, d.spacer()+"\n"); err != nil {
					return err
				}
			}
			col := len(d.lanes)
			line.WriteString(d.leader(a, col))
			d.column[a] = col
		}

		line.WriteString(a.String())
		line.WriteByte('\n')
		if _, err := io.WriteString(w, line.String()); err != nil {
			return err
		}

		if d.remaining[a] > 0 && !d.continues(i) {
			d.open(a, d.column[a])
		}
		d.trim()
	}
	return nil
}

// leader draws the cells left of col for an audit that does not continue
// the previous line, consuming one child from each source lane.
func (d *dumper) leader(a *Audit, col int) string {
	isSource := make(map[*Audit]bool, len(d.sources[a]))
	for _, s := range d.sources[a] {
		isSource[s] = true
	}

	var b strings.Builder
	connecting := false
	for j := 0; j < col; j++ {
		lane := d.lanes[j]
		switch {
		case lane != nil && isSource[lane]:
			connecting = true
			d.remaining[lane]--
			if d.remaining[lane] == 0 {
				b.WriteString(cellClose)
				d.lanes[j] = nil
			} else {
				b.WriteString(cellBranch)
			}
		case connecting:
			b.WriteString(cellConnect)
		default:
			b.WriteString(d.passCell(j))
		}
	}
	return b.String()
}

func (d *dumper) passCell(j int) string {
	if j < len(d.lanes) && d.lanes[j] != nil {
		return cellLane
	}
	return cellEmpty
}

func (d *dumper) spacer() string {
	var b strings.Builder
	for j := range d.lanes {
		b.WriteString(d.passCell(j))
	}
	return strings.TrimRight(b.String(), " ")
}

func (d *dumper) open(a *Audit, col int) {
	for len(d.lanes) <= col {
		d.lanes = append(d.lanes, nil)
	}
	d.lanes[col] = a
}

func (d *dumper) trim() {
	n := len(d.lanes)
	for n > 0 && d.lanes[n-1] == nil {
		n--
	}
	d.lanes = d.lanes[:n]
}

// FormatValue renders a value for Dump. Strings are quoted, nil is "nil",
// sequences render element-wise as [a, b].
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(val)
	case []byte:
		return strconv.Quote(string(val))
	case error:
		return strconv.Quote(val.Error())
	case *Audit:
		return val.String()
	}
	if IsSequence(v) {
		elems := Elements(v)
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = FormatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprint(v)
}
