package parser

import (
	"slices"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/luafix/pkg/luaast"
)

// builder converts a tree-sitter Lua tree into luaast nodes.
//
// The grammar keeps statements flat inside the construct that owns them and
// marks block boundaries with keyword tokens (if_then, while_do, for_end).
// Prefix expressions such as a.b[c] and comma separated lists come through as
// plain token runs, and binary operators nest left to right with no
// precedence. Tokens also carry the whitespace in front of them. The builder
// regroups all of that.
type builder struct {
	src   []byte
	lines []int
	// stubs maps keyword offsets rewritten before parsing to the rewrite.
	stubs map[int]stubKind
	// attribs maps the offset of a local name to its masked attribute.
	attribs map[int]string
}

func newBuilder(src []byte) *builder {
	lines := []int{0}
	for i, c := range src {
		if c == '\n' {
			lines = append(lines, i+1)
		}
	}
	return &builder{
		src:     src,
		lines:   lines,
		stubs:   make(map[int]stubKind),
		attribs: make(map[int]string),
	}
}

// lineAt returns the 1-based line holding byte offset off.
func (b *builder) lineAt(off int) int {
	return sort.Search(len(b.lines), func(i int) bool { return b.lines[i] > off })
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', '\v':
		return true
	}
	return false
}

// start returns the offset of the first significant byte of n.
func (b *builder) start(n *sitter.Node) int {
	s, e := int(n.StartByte()), int(n.EndByte())
	for s < e && s < len(b.src) && isSpace(b.src[s]) {
		s++
	}
	return s
}

func (b *builder) spanOf(start, end int) luaast.Span {
	if end < start {
		end = start
	}
	last := max(end-1, start)
	return luaast.Span{Start: start, End: end, Line: b.lineAt(start), EndLine: b.lineAt(last)}
}

func (b *builder) text(n *sitter.Node) string {
	s, e := b.start(n), int(n.EndByte())
	if e > len(b.src) || s > e {
		return ""
	}
	return string(b.src[s:e])
}

func at[T luaast.Node](b *builder, n *sitter.Node, node T) T {
	return over(b, n, n, node)
}

// over positions node from the first significant byte of first to the end
// of last.
func over[T luaast.Node](b *builder, first, last *sitter.Node, node T) T {
	node.SetPos(b.spanOf(b.start(first), int(last.EndByte())))
	return node
}

func join[T luaast.Node](b *builder, first, last luaast.Node, node T) T {
	node.SetPos(b.spanOf(first.Pos().Start, last.Pos().End))
	return node
}

func (b *builder) name(n *sitter.Node) *luaast.Name {
	return at(b, n, &luaast.Name{ID: b.text(n)})
}

// kids returns every child of n except comments.
func kids(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.ChildCount())
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "comment", "shebang":
			continue
		}
		out = append(out, c)
	}
	return out
}

func indexOf(nodes []*sitter.Node, types ...string) int {
	return slices.IndexFunc(nodes, func(n *sitter.Node) bool {
		return slices.Contains(types, n.Type())
	})
}

// section is a keyword token and the nodes up to the next keyword.
type section struct {
	kw    *sitter.Node
	nodes []*sitter.Node
}

func sections(nodes []*sitter.Node, keywords ...string) []section {
	var out []section
	for _, n := range nodes {
		if slices.Contains(keywords, n.Type()) {
			out = append(out, section{kw: n})
			continue
		}
		if len(out) > 0 {
			out[len(out)-1].nodes = append(out[len(out)-1].nodes, n)
		}
	}
	return out
}

// closing returns the index of the token closing nodes[from].
func closing(nodes []*sitter.Node, from int, open, shut string) int {
	depth := 0
	for i := from; i < len(nodes); i++ {
		switch nodes[i].Type() {
		case open:
			depth++
		case shut:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitCommas splits a token run at top-level commas.
func splitCommas(nodes []*sitter.Node) [][]*sitter.Node {
	var parts [][]*sitter.Node
	var cur []*sitter.Node
	depth := 0
	for _, n := range nodes {
		switch n.Type() {
		case "[", "left_paren":
			depth++
		case "]", "right_paren":
			depth--
		case ",":
			if depth == 0 {
				parts = append(parts, cur)
				cur = nil
				continue
			}
		case ";":
			if depth == 0 {
				continue
			}
		}
		cur = append(cur, n)
	}
	if len(cur) > 0 {
		parts = append(parts, cur)
	}
	return parts
}

func (b *builder) chunk(root *sitter.Node) *luaast.Chunk {
	span := b.spanOf(0, int(root.EndByte()))
	body := &luaast.Block{Stmts: b.statements(kids(root))}
	body.SetPos(span)
	c := &luaast.Chunk{Body: body}
	c.SetPos(span)
	return c
}

func (b *builder) statements(nodes []*sitter.Node) []luaast.Node {
	var out []luaast.Node
	for _, n := range nodes {
		if n.Type() == ";" {
			out = append(out, at(b, n, &luaast.Semicolon{}))
			continue
		}
		if !n.IsNamed() {
			continue
		}
		out = append(out, b.stmt(n))
	}
	return out
}

// block wraps the statements in nodes. An empty block sits at anchor.
func (b *builder) block(nodes []*sitter.Node, anchor int) *luaast.Block {
	blk := &luaast.Block{Stmts: b.statements(nodes)}
	if len(blk.Stmts) == 0 {
		blk.SetPos(b.spanOf(anchor, anchor))
		return blk
	}
	return join(b, blk.Stmts[0], blk.Stmts[len(blk.Stmts)-1], blk)
}

func isStatement(t string) bool {
	switch t {
	case "variable_declaration", "function_statement", "function_call",
		"if_statement", "while_statement", "repeat_statement", "for_statement",
		"do_statement", "return_statement", "module_return_statement",
		"break_statement":
		return true
	}
	return false
}

func (b *builder) stmt(n *sitter.Node) luaast.Node {
	switch n.Type() {
	case "variable_declaration":
		return b.declaration(n)
	case "function_statement":
		return b.functionStmt(n)
	case "function_call":
		return b.call(n)
	case "if_statement":
		return b.ifStmt(n)
	case "while_statement":
		secs := sections(kids(n), "while_start", "while_do", "while_end")
		if len(secs) < 2 {
			return b.unknown(n)
		}
		return at(b, n, &luaast.While{
			Test: b.seq(secs[0].nodes),
			Body: b.block(secs[1].nodes, int(secs[1].kw.EndByte())),
		})
	case "repeat_statement":
		secs := sections(kids(n), "repeat_start", "repeat_until")
		if len(secs) < 2 {
			return b.unknown(n)
		}
		return at(b, n, &luaast.Repeat{
			Body: b.block(secs[0].nodes, int(secs[0].kw.EndByte())),
			Test: b.seq(secs[1].nodes),
		})
	case "for_statement":
		return b.forStmt(n)
	case "do_statement":
		if b.stubs[b.start(n)] == stubBare {
			return at(b, n, &luaast.Return{})
		}
		secs := sections(kids(n), "do_start", "do_end")
		if len(secs) == 0 {
			return b.unknown(n)
		}
		return at(b, n, &luaast.Do{Body: b.block(secs[0].nodes, int(secs[0].kw.EndByte()))})
	case "return_statement", "module_return_statement":
		ks := kids(n)
		return at(b, n, &luaast.Return{Values: b.exprList(ks[indexOf(ks, "return")+1:])})
	case "break_statement":
		return at(b, n, &luaast.Break{})
	}
	return b.unknown(n)
}

// declaration converts both `local a = x` and plain `a.b = x` assignments,
// which the grammar shares one node for.
func (b *builder) declaration(n *sitter.Node) luaast.Node {
	ks := kids(n)
	lhs, values := ks, []*sitter.Node(nil)
	if eq := indexOf(ks, "="); eq >= 0 {
		lhs, values = ks[:eq], ks[eq+1:]
	}

	start := b.start(n)
	switch b.stubs[start] {
	case stubValues:
		return at(b, n, &luaast.Return{Values: b.exprList(values)})
	case stubBreak:
		brk := &luaast.Break{}
		brk.SetPos(b.spanOf(start, start+len("break")))
		return brk
	}

	local := indexOf(lhs, "local") >= 0
	var targets []*sitter.Node
	for _, c := range lhs {
		if c.Type() == "variable_declarator" {
			targets = append(targets, c)
		}
	}

	if local {
		la := &luaast.LocalAssign{Values: b.exprList(values)}
		for _, t := range targets {
			tk := kids(t)
			if len(tk) == 0 {
				continue
			}
			la.Targets = append(la.Targets, b.name(tk[0]))
			la.Attribs = append(la.Attribs, b.attribs[b.start(tk[0])])
		}
		return at(b, n, la)
	}

	a := &luaast.Assign{Values: b.exprList(values)}
	for _, t := range targets {
		if e := b.seq(kids(t)); e != nil {
			a.Targets = append(a.Targets, e)
		}
	}
	return at(b, n, a)
}

// funcParts reads the parameters and body shared by function statements and
// function expressions.
func (b *builder) funcParts(ks []*sitter.Node) ([]*luaast.Name, bool, *luaast.Block) {
	var params []*luaast.Name
	vararg := false
	var body *luaast.Block
	for _, k := range ks {
		switch k.Type() {
		case "parameter_list":
			for _, p := range kids(k) {
				switch p.Type() {
				case "identifier":
					params = append(params, b.name(p))
				case "ellipsis":
					vararg = true
				}
			}
		case "function_body":
			body = b.block(kids(k), b.start(k))
		case "function_end":
			if body == nil {
				body = b.block(nil, b.start(k))
			}
		}
	}
	if body == nil {
		body = &luaast.Block{}
	}
	return params, vararg, body
}

func (b *builder) functionStmt(n *sitter.Node) luaast.Node {
	ks := kids(n)
	params, vararg, body := b.funcParts(ks)
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return b.unknown(n)
	}

	if indexOf(ks, "local") >= 0 {
		return at(b, n, &luaast.LocalFunction{Name: b.name(nameNode), Params: params, Vararg: vararg, Body: body})
	}

	parts := kids(nameNode)
	if len(parts) == 0 {
		parts = []*sitter.Node{nameNode}
	}
	if c := indexOf(parts, "table_colon"); c > 0 && c+1 < len(parts) {
		return at(b, n, &luaast.Method{
			Source: b.seq(parts[:c]),
			Name:   b.name(parts[c+1]),
			Params: params,
			Vararg: vararg,
			Body:   body,
		})
	}
	return at(b, n, &luaast.Function{Name: b.seq(parts), Params: params, Vararg: vararg, Body: body})
}

func (b *builder) ifStmt(n *sitter.Node) luaast.Node {
	s := &luaast.If{}
	var test luaast.Node
	var elseif *sitter.Node
	for _, sec := range sections(kids(n), "if_start", "if_then", "if_elseif", "if_else", "if_end") {
		switch sec.kw.Type() {
		case "if_start":
			test = b.seq(sec.nodes)
		case "if_elseif":
			test = b.seq(sec.nodes)
			elseif = sec.kw
		case "if_then":
			body := b.block(sec.nodes, int(sec.kw.EndByte()))
			if elseif == nil {
				s.Test, s.Body = test, body
				continue
			}
			arm := &luaast.ElseIf{Test: test, Body: body}
			end := int(sec.kw.EndByte())
			if len(body.Stmts) > 0 {
				end = body.Pos().End
			}
			arm.SetPos(b.spanOf(b.start(elseif), end))
			s.ElseIfs = append(s.ElseIfs, arm)
		case "if_else":
			s.Else = b.block(sec.nodes, int(sec.kw.EndByte()))
		}
	}
	if s.Body == nil {
		s.Body = &luaast.Block{}
	}
	return at(b, n, s)
}

func (b *builder) forStmt(n *sitter.Node) luaast.Node {
	secs := sections(kids(n), "for_start", "for_do", "for_end")
	if len(secs) < 2 || len(secs[0].nodes) == 0 {
		return b.unknown(n)
	}
	body := b.block(secs[1].nodes, int(secs[1].kw.EndByte()))
	clause := secs[0].nodes[0]
	ck := kids(clause)

	if clause.Type() == "for_numeric" {
		eq := indexOf(ck, "=")
		if eq < 1 {
			return b.unknown(n)
		}
		f := &luaast.ForNum{Var: b.name(ck[0]), Body: body}
		bounds := b.exprList(ck[eq+1:])
		if len(bounds) > 0 {
			f.Start = bounds[0]
		}
		if len(bounds) > 1 {
			f.Stop = bounds[1]
		}
		if len(bounds) > 2 {
			f.Step = bounds[2]
		}
		return at(b, n, f)
	}

	f := &luaast.ForIn{Body: body}
	for _, c := range ck {
		if c.Type() != "identifier_list" {
			continue
		}
		for _, id := range kids(c) {
			if id.Type() == "identifier" {
				f.Targets = append(f.Targets, b.name(id))
			}
		}
	}
	if in := indexOf(ck, "for_in"); in >= 0 {
		f.Iter = b.exprList(ck[in+1:])
	}
	return at(b, n, f)
}

// exprList converts a comma separated token run.
func (b *builder) exprList(nodes []*sitter.Node) []luaast.Node {
	var out []luaast.Node
	for _, part := range splitCommas(nodes) {
		if e := b.seq(part); e != nil {
			out = append(out, e)
		}
	}
	return out
}

// seq converts a token run holding one expression.
func (b *builder) seq(nodes []*sitter.Node) luaast.Node {
	switch len(nodes) {
	case 0:
		return nil
	case 1:
		return b.expr(nodes[0])
	}
	return b.prefix(nodes)
}

// prefix folds a run such as `t [ 1 ] . name` into nested Index nodes.
func (b *builder) prefix(nodes []*sitter.Node) luaast.Node {
	var cur luaast.Node
	i := 1
	if nodes[0].Type() == "left_paren" {
		j := closing(nodes, 0, "left_paren", "right_paren")
		if j < 0 {
			return b.run(nil, nodes)
		}
		cur = over(b, nodes[0], nodes[j], &luaast.Paren{Expr: b.seq(nodes[1:j])})
		i = j + 1
	} else {
		cur = b.expr(nodes[0])
	}

	for i < len(nodes) {
		switch nodes[i].Type() {
		case ".", "table_dot":
			if i+1 >= len(nodes) || nodes[i+1].Type() != "identifier" {
				return b.run(cur, nodes[i:])
			}
			key := nodes[i+1]
			cur = over(b, nodes[0], key, &luaast.Index{Value: cur, Key: b.name(key)})
			i += 2
		case "[":
			j := closing(nodes, i, "[", "]")
			if j < 0 {
				return b.run(cur, nodes[i:])
			}
			cur = over(b, nodes[0], nodes[j], &luaast.Index{Value: cur, Key: b.seq(nodes[i+1 : j]), Bracket: true})
			i = j + 1
		default:
			return b.run(cur, nodes[i:])
		}
	}
	return cur
}

// run keeps a token run the builder cannot fold so that traversal still
// reaches the expressions inside it.
func (b *builder) run(head luaast.Node, rest []*sitter.Node) luaast.Node {
	u := &luaast.Unknown{Kind: "expression"}
	if head != nil {
		u.Kids = append(u.Kids, head)
	}
	for _, n := range rest {
		if n.IsNamed() {
			u.Kids = append(u.Kids, b.expr(n))
		}
	}
	start := b.start(rest[0])
	if head != nil {
		start = head.Pos().Start
	}
	u.SetPos(b.spanOf(start, int(rest[len(rest)-1].EndByte())))
	return u
}

func (b *builder) expr(n *sitter.Node) luaast.Node {
	switch n.Type() {
	case "identifier":
		return b.name(n)
	case "nil":
		return at(b, n, &luaast.Nil{})
	case "boolean":
		if b.text(n) == "true" {
			return at(b, n, &luaast.True{})
		}
		return at(b, n, &luaast.False{})
	case "number":
		return at(b, n, &luaast.Number{Raw: b.text(n)})
	case "string", "string_argument":
		return at(b, n, &luaast.String{Value: b.stringValue(n)})
	case "ellipsis":
		return at(b, n, &luaast.Vararg{})
	case "function":
		params, vararg, body := b.funcParts(kids(n))
		return at(b, n, &luaast.AnonFunction{Params: params, Vararg: vararg, Body: body})
	case "tableconstructor", "table_argument":
		return b.table(n)
	case "binary_operation":
		return b.binary(n)
	case "unary_operation":
		ks := kids(n)
		if len(ks) < 2 {
			return b.unknown(n)
		}
		return at(b, n, &luaast.UnOp{Op: ks[0].Type(), Operand: b.seq(ks[1:])})
	case "function_call":
		return b.call(n)
	}
	return b.unknown(n)
}

func (b *builder) call(n *sitter.Node) luaast.Node {
	ks := kids(n)
	cut := indexOf(ks, "self_call_colon", "function_call_paren", "function_arguments", "string_argument", "table_argument")
	if cut <= 0 {
		return b.unknown(n)
	}
	callee := b.seq(ks[:cut])

	var method *sitter.Node
	var args []luaast.Node
	for _, k := range ks[cut:] {
		switch k.Type() {
		case "identifier":
			if method == nil {
				method = k
			}
		case "function_arguments":
			args = b.exprList(kids(k))
		case "string_argument", "table_argument":
			args = []luaast.Node{b.expr(k)}
		}
	}

	if method != nil {
		return at(b, n, &luaast.Invoke{Source: callee, Method: b.name(method), Args: args})
	}
	return at(b, n, &luaast.Call{Func: callee, Args: args})
}

func (b *builder) table(n *sitter.Node) luaast.Node {
	t := &luaast.Table{}
	list := kids(n)
	if i := indexOf(list, "fieldlist"); i >= 0 {
		list = kids(list[i])
	}
	for _, f := range list {
		if f.Type() != "field" {
			continue
		}
		fk := kids(f)
		field := &luaast.Field{}
		eq := indexOf(fk, "=")
		if eq < 0 {
			field.Value = b.seq(fk)
			t.Fields = append(t.Fields, at(b, f, field))
			continue
		}
		key := fk[:eq]
		switch {
		case len(key) > 0 && key[0].Type() == "field_left_bracket":
			field.Bracket = true
			end := indexOf(key, "field_right_bracket")
			if end < 0 {
				end = len(key)
			}
			field.Key = b.seq(key[1:end])
		default:
			field.Key = b.seq(key)
		}
		field.Value = b.seq(fk[eq+1:])
		t.Fields = append(t.Fields, at(b, f, field))
	}
	return at(b, n, t)
}

// binaryPrec returns the binding power of a binary operator, lowest first.
func binaryPrec(op string) (int, bool) {
	switch op {
	case "or":
		return 1, true
	case "and":
		return 2, true
	case "<", ">", "<=", ">=", "~=", "==":
		return 3, true
	case "|":
		return 4, true
	case "~":
		return 5, true
	case "&":
		return 6, true
	case "<<", ">>":
		return 7, true
	case "..":
		return 9, true
	case "+", "-":
		return 10, true
	case "*", "/", "//", "%":
		return 11, true
	case "^":
		return 14, true
	}
	return 0, false
}

const unaryPrec = 12

// Concatenation and exponentiation associate to the right.
func rightAssoc(op string) bool { return op == ".." || op == "^" }

// binary flattens the operator chain the grammar produced and rebuilds it
// with Lua's precedence.
func (b *builder) binary(n *sitter.Node) luaast.Node {
	var operands []luaast.Node
	var ops []string
	if !b.flatten(n, &operands, &ops) {
		return b.unknown(n)
	}
	c := &climber{b: b, operands: operands, ops: ops}
	return c.climb(1)
}

func (b *builder) flatten(n *sitter.Node, operands *[]luaast.Node, ops *[]string) bool {
	ks := kids(n)
	k := slices.IndexFunc(ks, func(c *sitter.Node) bool {
		_, ok := binaryPrec(c.Type())
		return ok && !c.IsNamed()
	})
	if k <= 0 || k == len(ks)-1 {
		return false
	}
	side := func(part []*sitter.Node) bool {
		if len(part) == 1 && part[0].Type() == "binary_operation" {
			return b.flatten(part[0], operands, ops)
		}
		e := b.seq(part)
		if e == nil {
			return false
		}
		*operands = append(*operands, e)
		return true
	}
	if !side(ks[:k]) {
		return false
	}
	*ops = append(*ops, ks[k].Type())
	return side(ks[k+1:])
}

// climber is a precedence-climbing parser over a flat operand/operator list.
type climber struct {
	b        *builder
	operands []luaast.Node
	ops      []string
	next     int // index of the next operand; ops[next-1] sits before it
}

func (c *climber) climb(minPrec int) luaast.Node {
	lhs := c.operand()
	for c.next-1 < len(c.ops) {
		op := c.ops[c.next-1]
		prec, _ := binaryPrec(op)
		if prec < minPrec {
			break
		}
		nextMin := prec + 1
		if rightAssoc(op) {
			nextMin = prec
		}
		rhs := c.climb(nextMin)
		lhs = join(c.b, lhs, rhs, &luaast.BinOp{Op: op, Left: lhs, Right: rhs})
	}
	return lhs
}

// operand takes the next operand. A unary operator binds looser than `^`,
// so `-x ^ 2` is rebuilt as -(x ^ 2).
func (c *climber) operand() luaast.Node {
	x := c.operands[c.next]
	c.next++
	u, ok := x.(*luaast.UnOp)
	if !ok || c.next-1 >= len(c.ops) {
		return x
	}
	if prec, _ := binaryPrec(c.ops[c.next-1]); prec <= unaryPrec {
		return x
	}
	c.next--
	c.operands[c.next] = u.Operand
	u.Operand = c.climb(unaryPrec + 1)
	u.SetPos(c.b.spanOf(u.Pos().Start, u.Operand.Pos().End))
	return u
}

func (b *builder) stringValue(n *sitter.Node) string {
	content := n.ChildByFieldName("content")
	if content == nil {
		return unquote(b.text(n))
	}
	v := string(b.src[content.StartByte():content.EndByte()])
	if open := n.ChildByFieldName("start"); open != nil && strings.HasPrefix(b.text(open), "[") {
		v = strings.TrimPrefix(strings.TrimPrefix(v, "\r"), "\n")
	}
	return v
}

// unquote strips Lua string delimiters: quotes or long brackets.
func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "[") {
		level := 1
		for level < len(s) && s[level] == '=' {
			level++
		}
		if level < len(s) && s[level] == '[' {
			closing := "]" + strings.Repeat("=", level-1) + "]"
			inner := s[level+1:]
			inner = strings.TrimSuffix(inner, closing)
			return strings.TrimPrefix(inner, "\n")
		}
	}
	return s
}

func (b *builder) unknown(n *sitter.Node) luaast.Node {
	u := &luaast.Unknown{Kind: n.Type()}
	for _, c := range kids(n) {
		if !c.IsNamed() {
			continue
		}
		if isStatement(c.Type()) {
			u.Kids = append(u.Kids, b.stmt(c))
			continue
		}
		u.Kids = append(u.Kids, b.expr(c))
	}
	return at(b, n, u)
}
