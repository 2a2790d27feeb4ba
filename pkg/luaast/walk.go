package luaast

import (
	"strings"
)

// Children returns the direct child nodes of n in source order. Nil children
// are omitted.
func Children(n Node) []Node {
	var out []Node
	add := func(c Node) {
		if !isNil(c) {
			out = append(out, c)
		}
	}
	addNames := func(names []*Name) {
		for _, nm := range names {
			add(nm)
		}
	}
	addAll := func(nodes []Node) {
		for _, c := range nodes {
			add(c)
		}
	}

	switch v := n.(type) {
	case *Chunk:
		add(v.Body)
	case *Block:
		addAll(v.Stmts)
	case *LocalAssign:
		addNames(v.Targets)
		addAll(v.Values)
	case *Assign:
		addAll(v.Targets)
		addAll(v.Values)
	case *Function:
		add(v.Name)
		addNames(v.Params)
		add(v.Body)
	case *LocalFunction:
		add(v.Name)
		addNames(v.Params)
		add(v.Body)
	case *Method:
		add(v.Source)
		add(v.Name)
		addNames(v.Params)
		add(v.Body)
	case *AnonFunction:
		addNames(v.Params)
		add(v.Body)
	case *If:
		add(v.Test)
		add(v.Body)
		for _, e := range v.ElseIfs {
			add(e)
		}
		add(v.Else)
	case *ElseIf:
		add(v.Test)
		add(v.Body)
	case *While:
		add(v.Test)
		add(v.Body)
	case *Repeat:
		add(v.Body)
		add(v.Test)
	case *ForNum:
		add(v.Var)
		add(v.Start)
		add(v.Stop)
		add(v.Step)
		add(v.Body)
	case *ForIn:
		addNames(v.Targets)
		addAll(v.Iter)
		add(v.Body)
	case *Do:
		add(v.Body)
	case *Return:
		addAll(v.Values)
	case *Call:
		add(v.Func)
		addAll(v.Args)
	case *Invoke:
		add(v.Source)
		add(v.Method)
		addAll(v.Args)
	case *Index:
		add(v.Value)
		add(v.Key)
	case *Table:
		for _, f := range v.Fields {
			add(f)
		}
	case *Field:
		add(v.Key)
		add(v.Value)
	case *BinOp:
		add(v.Left)
		add(v.Right)
	case *UnOp:
		add(v.Operand)
	case *Paren:
		add(v.Expr)
	case *Unknown:
		addAll(v.Kids)
	}
	return out
}

// isNil reports whether n is nil or a typed nil pointer.
func isNil(n Node) bool {
	if n == nil {
		return true
	}
	switch v := n.(type) {
	case *Block:
		return v == nil
	case *Name:
		return v == nil
	case *ElseIf:
		return v == nil
	case *Field:
		return v == nil
	}
	return false
}

// Inspect traverses the tree depth-first in source order, calling fn for each
// node. If fn returns false the children of that node are skipped.
func Inspect(n Node, fn func(Node) bool) {
	if isNil(n) {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range Children(n) {
		Inspect(c, fn)
	}
}

// Nodes returns every node of the tree in depth-first order.
func Nodes(root Node) []Node {
	var out []Node
	Inspect(root, func(n Node) bool {
		out = append(out, n)
		return true
	})
	return out
}

// Statements returns the statements of b, or nil when b is nil.
func Statements(b *Block) []Node {
	if b == nil {
		return nil
	}
	return b.Stmts
}

// IsStatement reports whether n is a statement kind. Calls count as
// statements when they appear directly in a block.
func IsStatement(n Node) bool {
	switch n.(type) {
	case *LocalAssign, *Assign, *Function, *LocalFunction, *Method, *If,
		*While, *Repeat, *ForNum, *ForIn, *Do, *Return, *Break, *Goto,
		*Label, *Semicolon:
		return true
	}
	return false
}

// Render produces a normalized textual form of an expression. It is used for
// messages and for comparing expressions, not for rewriting source.
func Render(n Node) string {
	switch v := n.(type) {
	case nil:
		return ""
	case *Name:
		if v == nil {
			return ""
		}
		return v.ID
	case *Number:
		return v.Raw
	case *String:
		if strings.Contains(v.Value, `"`) && !strings.Contains(v.Value, "'") {
			return "'" + v.Value + "'"
		}
		return `"` + v.Value + `"`
	case *True:
		return "true"
	case *False:
		return "false"
	case *Nil:
		return "nil"
	case *Vararg:
		return "..."
	case *Index:
		if v.Bracket {
			return Render(v.Value) + "[" + Render(v.Key) + "]"
		}
		return Render(v.Value) + "." + Render(v.Key)
	case *Call:
		return Render(v.Func) + "(" + renderList(v.Args) + ")"
	case *Invoke:
		return Render(v.Source) + ":" + Render(v.Method) + "(" + renderList(v.Args) + ")"
	case *UnOp:
		switch v.Op {
		case "not":
			return "not " + Render(v.Operand)
		default:
			return v.Op + Render(v.Operand)
		}
	case *BinOp:
		switch v.Op {
		case "and", "or":
			return "(" + Render(v.Left) + " " + v.Op + " " + Render(v.Right) + ")"
		default:
			return Render(v.Left) + " " + v.Op + " " + Render(v.Right)
		}
	case *Paren:
		return "(" + Render(v.Expr) + ")"
	case *Table:
		return "{...}"
	case *AnonFunction:
		return "function"
	case *Unknown:
		return "<" + v.Kind + ">"
	}
	return "<expr>"
}

func renderList(nodes []Node) string {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		parts = append(parts, Render(n))
	}
	return strings.Join(parts, ", ")
}

// DottedName returns "a.b.c" for a chain of dot-indexed names, or "" when n
// is anything else.
func DottedName(n Node) string {
	switch v := n.(type) {
	case *Name:
		if v == nil {
			return ""
		}
		return v.ID
	case *Index:
		if v.Bracket {
			return ""
		}
		base := DottedName(v.Value)
		key, ok := v.Key.(*Name)
		if base == "" || !ok {
			return ""
		}
		return base + "." + key.ID
	}
	return ""
}

// Path returns the nodes from root down to target, both included, or nil
// when target is not in the tree.
func Path(root, target Node) []Node {
	if isNil(root) || isNil(target) {
		return nil
	}
	if root == target {
		return []Node{root}
	}
	for _, c := range Children(root) {
		if p := Path(c, target); p != nil {
			return append([]Node{root}, p...)
		}
	}
	return nil
}

// FunctionBody returns the body of a function node, or nil for other nodes.
func FunctionBody(n Node) *Block {
	switch v := n.(type) {
	case *Function:
		return v.Body
	case *LocalFunction:
		return v.Body
	case *Method:
		return v.Body
	case *AnonFunction:
		return v.Body
	}
	return nil
}
