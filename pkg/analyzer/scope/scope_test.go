package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnterCopiesCachedAndHot(t *testing.T) {
	tr := NewTracker(20)
	tr.AddCached("pairs")

	fn := tr.Enter("OnTick", 2, KindFunction, true, nil)
	tr.AddCached("math.floor")
	loop := tr.Enter("<while>", 3, KindLoop, false, nil)

	s := tr.Get(loop)
	assert.True(t, s.Hot, "hot flag is inherited")
	assert.True(t, s.HasCached("pairs"))
	assert.True(t, s.HasCached("math.floor"))

	tr.Exit(loop, 5)
	tr.AddCached("ipairs")
	assert.False(t, tr.Get(loop).HasCached("ipairs"), "cached set is copied, not shared")

	tr.Exit(fn, 6)
	assert.Equal(t, tr.Global(), tr.Current())
	assert.False(t, tr.Get(tr.Global()).HasCached("math.floor"))
	assert.Equal(t, 6, tr.Get(fn).EndLine)
}

func TestExitOutOfOrderPanics(t *testing.T) {
	tr := NewTracker(10)
	outer := tr.Enter("f", 1, KindFunction, false, nil)
	tr.Enter("<while>", 2, KindLoop, false, nil)

	assert.Panics(t, func() { tr.Exit(outer, 3) })
	assert.Panics(t, func() { NewTracker(1).Exit(0, 1) })
}

func TestResolve(t *testing.T) {
	tr := NewTracker(10)
	tr.AddLocal("config")
	fn := tr.Enter("f", 1, KindFunction, false, nil)
	tr.AddLocal("x")
	tr.AddCached("string.format")

	assert.True(t, tr.Resolve("config"))
	assert.True(t, tr.Resolve("x"))
	assert.True(t, tr.Resolve("string.format"))
	assert.False(t, tr.Resolve("y"))

	assert.True(t, tr.IsLocal("x"))
	assert.False(t, tr.IsLocal("string.format"), "aliases are not locals")

	tr.Exit(fn, 4)
	assert.False(t, tr.Resolve("x"))
}

func TestScopeMonotonicity(t *testing.T) {
	tr := NewTracker(10)
	fn := tr.Enter("f", 1, KindFunction, false, nil)

	var seen []string
	for _, name := range []string{"a", "b", "c"} {
		tr.AddLocal(name)
		seen = append(seen, name)
		assert.Subset(t, tr.Get(fn).Locals(), seen)
	}
	tr.Exit(fn, 9)
	assert.ElementsMatch(t, seen, tr.Get(fn).Locals())
}

func TestFunctionAndLoop(t *testing.T) {
	tr := NewTracker(30)
	assert.Equal(t, tr.Global(), tr.Function(tr.Current()))
	assert.Equal(t, None, tr.Loop(tr.Current()))

	fn := tr.Enter("f", 1, KindFunction, false, nil)
	outer := tr.Enter("<fornum>", 2, KindLoop, false, nil)
	blk := tr.Enter("<do>", 3, KindBlock, false, nil)

	assert.Equal(t, fn, tr.Function(blk))
	assert.Equal(t, outer, tr.Loop(blk))

	inner := tr.Enter("<anonymous>", 4, KindFunction, false, nil)
	assert.Equal(t, None, tr.Loop(inner), "loops do not cross function boundaries")

	chain := tr.Chain(inner)
	require.Len(t, chain, 5)
	assert.Equal(t, tr.Global(), chain[len(chain)-1])
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "function", KindFunction.String())
	assert.Equal(t, "loop", KindLoop.String())
	assert.Equal(t, "invalid", Kind(99).String())
}
