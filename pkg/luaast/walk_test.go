package luaast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func name(id string) *Name { return &Name{ID: id} }

func dotted(parts ...string) Node {
	var n Node = name(parts[0])
	for _, p := range parts[1:] {
		n = &Index{Value: n, Key: name(p)}
	}
	return n
}

func TestDottedName(t *testing.T) {
	assert.Equal(t, "x", DottedName(name("x")))
	assert.Equal(t, "math.floor", DottedName(dotted("math", "floor")))
	assert.Equal(t, "a.b.c", DottedName(dotted("a", "b", "c")))
	assert.Empty(t, DottedName(&Index{Value: name("t"), Key: name("k"), Bracket: true}))
	assert.Empty(t, DottedName(&Call{Func: name("f")}))
	assert.Empty(t, DottedName(nil))
}

func TestRender(t *testing.T) {
	tests := []struct {
		node Node
		want string
	}{
		{&Call{Func: dotted("table", "insert"), Args: []Node{name("t"), &Number{Raw: "1"}}}, "table.insert(t, 1)"},
		{&Invoke{Source: name("veh"), Method: name("foo"), Args: []Node{&String{Value: "x"}}}, `veh:foo("x")`},
		{&String{Value: `say "hi"`}, `'say "hi"'`},
		{&BinOp{Op: "and", Left: name("a"), Right: &Nil{}}, "(a and nil)"},
		{&BinOp{Op: "..", Left: name("s"), Right: name("x")}, "s .. x"},
		{&UnOp{Op: "not", Operand: &True{}}, "not true"},
		{&UnOp{Op: "#", Operand: name("t")}, "#t"},
		{&Index{Value: name("t"), Key: &Number{Raw: "1"}, Bracket: true}, "t[1]"},
		{&Paren{Expr: &Vararg{}}, "(...)"},
		{&Table{}, "{...}"},
		{&AnonFunction{}, "function"},
		{&Unknown{Kind: "binary_expression"}, "<binary_expression>"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Render(tt.node))
	}
}

func tree() (*Chunk, *Call, *Block) {
	call := &Call{Func: name("PlayerPedId")}
	inner := &Block{Stmts: []Node{&LocalAssign{Targets: []*Name{name("ped")}, Values: []Node{call}}}}
	loop := &While{Test: &True{}, Body: inner}
	fn := &Function{Name: name("tick"), Params: []*Name{name("a")}, Body: &Block{Stmts: []Node{loop}}}
	return &Chunk{Body: &Block{Stmts: []Node{fn}}}, call, inner
}

func TestPath(t *testing.T) {
	chunk, call, inner := tree()
	path := Path(chunk, call)
	require.Len(t, path, 8)
	assert.Same(t, chunk, path[0])
	assert.IsType(t, &While{}, path[4])
	assert.Same(t, inner, path[5])
	assert.Same(t, call, path[7])

	assert.Nil(t, Path(chunk, &Call{Func: name("PlayerPedId")}), "nodes are matched by identity")
	assert.Nil(t, Path(chunk, nil))
	assert.Equal(t, []Node{call}, Path(call, call))
}

func TestFunctionBody(t *testing.T) {
	body := &Block{}
	assert.Same(t, body, FunctionBody(&Function{Body: body}))
	assert.Same(t, body, FunctionBody(&LocalFunction{Body: body}))
	assert.Same(t, body, FunctionBody(&Method{Body: body}))
	assert.Same(t, body, FunctionBody(&AnonFunction{Body: body}))
	assert.Nil(t, FunctionBody(&Do{Body: body}))
	assert.Nil(t, FunctionBody(nil))
}

func TestInspectSkipsChildren(t *testing.T) {
	chunk, _, _ := tree()
	var kinds []string
	Inspect(chunk, func(n Node) bool {
		switch n.(type) {
		case *Function:
			kinds = append(kinds, "function")
		case *While:
			kinds = append(kinds, "while")
			return false
		case *Call:
			kinds = append(kinds, "call")
		}
		return true
	})
	assert.Equal(t, []string{"function", "while"}, kinds)

	all := Nodes(chunk)
	assert.Len(t, all, 13)
}

func TestIsStatement(t *testing.T) {
	assert.True(t, IsStatement(&Return{}))
	assert.True(t, IsStatement(&LocalAssign{}))
	assert.False(t, IsStatement(&Call{}))
	assert.False(t, IsStatement(&Name{}))
	assert.Nil(t, Statements(nil))
}
