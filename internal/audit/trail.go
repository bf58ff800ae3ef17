package audit

// Trail is the ancestry of an audit, oldest first. The last entry is always
// the audit the trail was built for.
type Trail []TrailEntry

// TrailEntry is either a single audit or a merge group holding the trail of
// each source of the audit that follows it.
type TrailEntry struct {
	Audit *Audit
	Merge []Trail
}

// IsMerge reports whether the entry is a merge group.
func (e TrailEntry) IsMerge() bool {
	return e.Merge != nil
}

// Last returns the audit the trail ends in, or nil for an empty trail.
func (t Trail) Last() *Audit {
	if len(t) == 0 {
		return nil
	}
	return t[len(t)-1].Audit
}

// Trail returns the ancestry of a. See TrailOf.
func (a *Audit) Trail() Trail {
	return TrailOf(a)
}

// TrailOf reconstructs the ancestry of a.
//
// For a single-parent chain the result is [root, ..., a]. Where an audit
// has several sources, the trail of each source is computed and grouped
// in a merge entry immediately before the merging audit:
//
//	h.sources = [c, d, g]  =>  [[[a b c] [a b d] [f g]] h]
//
// Single-parent chains are walked iteratively so long sequences do not
// recurse.
func TrailOf(a *Audit) Trail {
	var chain []*Audit
	cur := a
	for len(cur.sources) == 1 {
		chain = append(chain, cur)
		cur = cur.sources[0]
	}

	var t Trail
	if len(cur.sources) == 0 {
		t = Trail{{Audit: cur}}
	} else {
		group := make([]Trail, len(cur.sources))
		for i, s := range cur.sources {
			group[i] = TrailOf(s)
		}
		t = Trail{{Merge: group}, {Audit: cur}}
	}

	for i := len(chain) - 1; i >= 0; i-- {
		t = append(t, TrailEntry{Audit: chain[i]})
	}
	return t
}

// MapTrail applies fn to every audit in t, preserving the nesting. Merge
// groups become []any holding one []any per source trail.
func MapTrail(t Trail, fn func(*Audit) any) []any {
	out := make([]any, len(t))
	for i, e := range t {
		if e.IsMerge() {
			group := make([]any, len(e.Merge))
			for j, sub := range e.Merge {
				group[j] = MapTrail(sub, fn)
			}
			out[i] = group
			continue
		}
		out[i] = fn(e.Audit)
	}
	return out
}

// TrailKeys is MapTrail extracting key strings.
func TrailKeys(a *Audit) []any {
	return MapTrail(TrailOf(a), func(x *Audit) any { return x.KeyString() })
}

// TrailValues is MapTrail extracting values.
func TrailValues(a *Audit) []any {
	return MapTrail(TrailOf(a), func(x *Audit) any { return x.value })
}
