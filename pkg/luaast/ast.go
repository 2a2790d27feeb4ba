// Package luaast defines the Lua syntax tree consumed by the analyzer and
// transformer.
//
// Nodes form a closed sum type: every concrete node implements Node, and
// generic traversal goes through Children, which switches over the node kinds.
// Positions are byte offsets into the original source so that edits computed
// against a tree can be applied to the raw file bytes.
package luaast

// Span locates a node in the source. Start and End are byte offsets (End is
// exclusive); Line and EndLine are 1-based.
type Span struct {
	Start   int `json:"start"`
	End     int `json:"end"`
	Line    int `json:"line"`
	EndLine int `json:"end_line"`
}

// Text returns the source bytes covered by the span as a string.
func (s Span) Text(src []byte) string {
	if s.Start < 0 || s.End > len(src) || s.Start > s.End {
		return ""
	}
	return string(src[s.Start:s.End])
}

// Node is implemented by every syntax tree node.
type Node interface {
	Pos() Span
	SetPos(Span)
	node()
}

type base struct {
	Span Span
}

func (b *base) Pos() Span { return b.Span }

// SetPos assigns the node position. Tree builders use it.
func (b *base) SetPos(s Span) { b.Span = s }

func (b *base) node() {}

// ----------------------------------------------------------------------------
// Blocks and statements
// ----------------------------------------------------------------------------

// Chunk is the root of a parsed file.
type Chunk struct {
	base
	Body *Block
}

// Block is a sequence of statements.
type Block struct {
	base
	Stmts []Node
}

// LocalAssign is `local a, b <const> = x, y`. Values may be empty.
type LocalAssign struct {
	base
	Targets []*Name
	Attribs []string
	Values  []Node
}

// Assign is `a, b.c = x, y`.
type Assign struct {
	base
	Targets []Node
	Values  []Node
}

// Function is a named global or dotted declaration: `function a.b() end`.
type Function struct {
	base
	Name   Node
	Params []*Name
	Vararg bool
	Body   *Block
}

// LocalFunction is `local function f() end`.
type LocalFunction struct {
	base
	Name   *Name
	Params []*Name
	Vararg bool
	Body   *Block
}

// Method is `function obj:m() end`.
type Method struct {
	base
	Source Node
	Name   *Name
	Params []*Name
	Vararg bool
	Body   *Block
}

// If is an if statement with its elseif chain and optional else block.
type If struct {
	base
	Test    Node
	Body    *Block
	ElseIfs []*ElseIf
	Else    *Block
}

// ElseIf is one `elseif cond then` arm of an If.
type ElseIf struct {
	base
	Test Node
	Body *Block
}

// While is `while cond do ... end`.
type While struct {
	base
	Test Node
	Body *Block
}

// Repeat is `repeat ... until cond`.
type Repeat struct {
	base
	Body *Block
	Test Node
}

// ForNum is `for i = a, b, c do ... end`. Step may be nil.
type ForNum struct {
	base
	Var   *Name
	Start Node
	Stop  Node
	Step  Node
	Body  *Block
}

// ForIn is `for k, v in iter do ... end`.
type ForIn struct {
	base
	Targets []*Name
	Iter    []Node
	Body    *Block
}

// Do is `do ... end`.
type Do struct {
	base
	Body *Block
}

// Return is `return a, b`.
type Return struct {
	base
	Values []Node
}

// Break is `break`.
type Break struct{ base }

// Goto is `goto label`.
type Goto struct {
	base
	Label string
}

// Label is `::label::`.
type Label struct {
	base
	Name string
}

// Semicolon is an empty statement.
type Semicolon struct{ base }

// ----------------------------------------------------------------------------
// Expressions
// ----------------------------------------------------------------------------

// Call is `f(args)` or `a.b(args)`.
type Call struct {
	base
	Func Node
	Args []Node
}

// Invoke is a method call `obj:m(args)`.
type Invoke struct {
	base
	Source Node
	Method *Name
	Args   []Node
}

// Index is `a.b` (Bracket false) or `a[b]` (Bracket true). For dot access Key
// is a *Name.
type Index struct {
	base
	Value   Node
	Key     Node
	Bracket bool
}

// Name is an identifier reference.
type Name struct {
	base
	ID string
}

// String is a string literal. Value holds the unquoted content.
type String struct {
	base
	Value string
}

// Number is a numeric literal with its raw text.
type Number struct {
	base
	Raw string
}

// Nil is the nil literal.
type Nil struct{ base }

// True is the true literal.
type True struct{ base }

// False is the false literal.
type False struct{ base }

// Vararg is `...`.
type Vararg struct{ base }

// AnonFunction is a function expression.
type AnonFunction struct {
	base
	Params []*Name
	Vararg bool
	Body   *Block
}

// Table is a table constructor.
type Table struct {
	base
	Fields []*Field
}

// Field is one table constructor entry. Key is nil for positional fields.
type Field struct {
	base
	Key     Node
	Value   Node
	Bracket bool
}

// BinOp is a binary operation, including `..` concatenation and the logical
// `and`/`or` operators.
type BinOp struct {
	base
	Op    string
	Left  Node
	Right Node
}

// UnOp is a unary operation: `-`, `not`, `#` or `~`.
type UnOp struct {
	base
	Op      string
	Operand Node
}

// Paren is a parenthesized expression.
type Paren struct {
	base
	Expr Node
}

// Unknown wraps grammar nodes without a dedicated kind so that default
// recursion still reaches anything nested inside them.
type Unknown struct {
	base
	Kind string
	Kids []Node
}
