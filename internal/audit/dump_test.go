package audit

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
)

func assertDumpGolden(t *testing.T, name string, audits ...*Audit) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(DumpString(audits...)))
}

func TestDump_Sequence(t *testing.T) {
	a := New(ref("a"), "a")
	b := New(ref("b"), "b", a)
	c := New(ref("c"), "c", b)

	assertDumpGolden(t, "dump_sequence", c)

	out := DumpString(c)
	assert.NotContains(t, out, "|")
	assert.NotContains(t, out, "`")
}

func TestDump_Fork(t *testing.T) {
	a := New(ref("a"), "a")
	b := New(ref("b"), "b", a)
	c := New(ref("c"), "c", b)
	d := New(ref("d"), "d", b)

	assertDumpGolden(t, "dump_fork", c, d)
}

func TestDump_Merge(t *testing.T) {
	a := New(ref("a"), "a")
	b := New(ref("b"), "b")
	c := New(ref("c"), "c", a, b)

	assertDumpGolden(t, "dump_merge", c)
}

func TestDump_ForkAndMerge(t *testing.T) {
	a := New(ref("a"), "a")
	b := New(ref("b"), "b", a)
	c := New(ref("c"), "c", b)
	d := New(ref("d"), "d", b)
	e := New(ref("e"), "e", c, d)

	assertDumpGolden(t, "dump_fork_and_merge", e)
}

func TestDump_MergeThenFork(t *testing.T) {
	a := New(ref("a"), "a")
	b := New(ref("b"), "b")
	c := New(ref("c"), "c", a, b)
	d := New(ref("d"), "d", c)
	e := New(ref("e"), "e", d)
	f := New(ref("f"), "f", d)

	assertDumpGolden(t, "dump_merge_then_fork", e, f)
}

func TestDump_Splat(t *testing.T) {
	a := New(ref("a"), []any{1, 2})

	assertDumpGolden(t, "dump_splat", Splat(a)...)
}

func TestDump_SharedAncestorsPrintedOnce(t *testing.T) {
	a := New(ref("a"), "a")
	b := New(ref("b"), "b", a)
	c := New(ref("c"), "c", a)

	out := DumpString(b, c, b)

	assert.Equal(t, 1, strings.Count(out, "o-[a]"))
	assert.Equal(t, 1, strings.Count(out, "o-[b]"))
}

func TestDump_Deterministic(t *testing.T) {
	a := New(ref("a"), "a")
	b := New(ref("b"), "b", a)
	c := New(ref("c"), "c", b)
	d := New(ref("d"), "d", b)
	e := New(ref("e"), "e", c, d)

	first := DumpString(e)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DumpString(e))
	}
}

func TestDump_Empty(t *testing.T) {
	assert.Equal(t, "", DumpString())
}
