package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		call string
		want []string
	}{
		{`table.insert(t, v)`, []string{"t", "v"}},
		{`table.insert(t, f(a, b))`, []string{"t", "f(a, b)"}},
		{`table.insert(t, {x = 1, y = 2})`, []string{"t", "{x = 1, y = 2}"}},
		{`table.insert(t, "a, b)")`, []string{"t", `"a, b)"`}},
		{`table.insert(t, 'it\'s, ok')`, []string{"t", `'it\'s, ok'`}},
		{`table.insert(t, m[i, j])`, []string{"t", "m[i, j]"}},
		{"table.insert(t, -- first, second\n  v)", []string{"t", "-- first, second\n  v"}},
		{`table.insert(t, v`, nil},
		{`noparens`, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitArgs(tt.call), tt.call)
	}
}

func TestBalanced(t *testing.T) {
	assert.True(t, balanced(`veh:foo(a, {b})`))
	assert.True(t, balanced(`print(")") -- (`))
	assert.False(t, balanced(`veh:foo(a,`))
	assert.False(t, balanced(`x = "open`))
}

func TestSplitComment(t *testing.T) {
	code, comment := splitComment(`x:foo("--") -- note`)
	assert.Equal(t, `x:foo("--") `, code)
	assert.Equal(t, "-- note", comment)

	code, comment = splitComment("x = 1")
	assert.Equal(t, "x = 1", code)
	assert.Empty(t, comment)
}

func TestHasControlFlow(t *testing.T) {
	assert.True(t, hasControlFlow("if x then"))
	assert.True(t, hasControlFlow("  end)"))
	assert.True(t, hasControlFlow("return print(x)"))
	assert.False(t, hasControlFlow(`print("if then end")`))
	assert.False(t, hasControlFlow("veh:doThing() -- end"))
	assert.False(t, hasControlFlow("vendor.render()"))
}

func TestContinuesExpression(t *testing.T) {
	for _, line := range []string{"local x = a and", "x = y or", "print(", "f(a,", "local t = {", "x ="} {
		assert.True(t, continuesExpression(line), line)
	}
	for _, line := range []string{"print(x)", "end", "local x = 1 -- and"} {
		assert.False(t, continuesExpression(line), line)
	}
}

func TestContainsWord(t *testing.T) {
	assert.True(t, containsWord("s .. x", "s"))
	assert.True(t, containsWord("f(s)", "s"))
	assert.False(t, containsWord("sum .. x", "s"))
	assert.False(t, containsWord("_s_parts", "s"))
}
