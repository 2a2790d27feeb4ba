package analyzer

import (
	"strings"

	"github.com/panbanda/luafix/pkg/analyzer/catalog"
	"github.com/panbanda/luafix/pkg/analyzer/scope"
	"github.com/panbanda/luafix/pkg/luaast"
	"github.com/panbanda/luafix/pkg/source"
)

// anonymousName is the scope name of function expressions that are not
// registered as a named callback.
const anonymousName = "<anonymous>"

// branchElse is the branch index of an else block.
const branchElse = -1

type valueKind uint8

const (
	valueOther valueKind = iota
	valueCall
	valueIndex
	valueConcat
	valueLiteral
)

func (k valueKind) String() string {
	switch k {
	case valueCall:
		return "call"
	case valueIndex:
		return "index"
	case valueConcat:
		return "concat"
	case valueLiteral:
		return "literal"
	default:
		return "other"
	}
}

// callFact is a captured call site.
type callFact struct {
	name      string
	module    string
	fn        string
	args      []luaast.Node
	line      int
	node      luaast.Node
	scope     scope.ID
	loopDepth int
	// chain is the *luaast.If whose branch contains the call, or nil.
	chain     luaast.Node
	branch    int
	statement bool
	operator  string
	prefix    bool
	// shadowed is set when the callee resolved to a local or cached alias
	// at the call site.
	shadowed bool
}

func (c callFact) inLoop() bool { return c.loopDepth > 0 }

type assignFact struct {
	target    string
	kind      valueKind
	repr      string
	line      int
	scope     scope.ID
	loopDepth int
	isLocal   bool
}

type concatFact struct {
	target    string
	left      string
	right     string
	line      int
	scope     scope.ID
	loop      scope.ID
	loopDepth int
}

type globalWrite struct {
	name string
	line int
}

type nilKey struct {
	scope scope.ID
	name  string
}

type nilSource struct {
	name    string
	call    string
	fn      string
	line    int
	scope   scope.ID
	isLocal bool
}

type nilAccess struct {
	name    string
	call    string
	access  string
	line    int
	source  *nilSource
	safe    bool
	node    luaast.Node
	scopeID scope.ID
}

type callbackName struct {
	name string
	hot  bool
}

// fileContext is the per-file analysis state. A fresh value is built for
// every file.
type fileContext struct {
	path           string
	src            []byte
	lines          *source.Lines
	cat            *catalog.Catalog
	cacheThreshold int
	experimental   bool

	tracker      *scope.Tracker
	calls        []callFact
	assigns      []assignFact
	concats      []concatFact
	globalWrites []globalWrite
	nilSources   map[nilKey]*nilSource
	nilAccesses  []nilAccess

	loopDepth int
	chain     luaast.Node
	branch    int

	statements map[luaast.Node]bool
	operators  map[luaast.Node]string
	prefixes   map[luaast.Node]bool
	callbacks  map[luaast.Node]callbackName
}

func newFileContext(a *Analyzer, path string, src []byte, lines *source.Lines) *fileContext {
	return &fileContext{
		path:           path,
		src:            src,
		lines:          lines,
		cat:            a.catalog,
		cacheThreshold: a.cacheThreshold,
		experimental:   a.experimental,
		tracker:        scope.NewTracker(lines.Count()),
		nilSources:     make(map[nilKey]*nilSource),
		statements:     make(map[luaast.Node]bool),
		operators:      make(map[luaast.Node]string),
		prefixes:       make(map[luaast.Node]bool),
		callbacks:      make(map[luaast.Node]callbackName),
	}
}

func (c *fileContext) visit(n luaast.Node) {
	switch v := n.(type) {
	case nil:
	case *luaast.Chunk:
		c.visitBlock(v.Body)
	case *luaast.Block:
		c.visitBlock(v)
	case *luaast.LocalAssign:
		c.visitLocalAssign(v)
	case *luaast.Assign:
		c.visitAssign(v)
	case *luaast.Function:
		name := luaast.Render(v.Name)
		c.visitFunction(v, name, c.isHot(name), v.Params, v.Body, false)
	case *luaast.LocalFunction:
		c.tracker.AddLocal(v.Name.ID)
		c.visitFunction(v, v.Name.ID, c.isHot(v.Name.ID), v.Params, v.Body, false)
	case *luaast.Method:
		c.visit(v.Source)
		name := luaast.Render(v.Source) + ":" + v.Name.ID
		c.visitFunction(v, name, c.isHot(v.Name.ID), v.Params, v.Body, true)
	case *luaast.AnonFunction:
		cb, ok := c.callbacks[v]
		if !ok {
			cb = callbackName{name: anonymousName}
		}
		c.visitFunction(v, cb.name, cb.hot, v.Params, v.Body, false)
	case *luaast.If:
		c.visitIf(v)
	case *luaast.While:
		c.visit(v.Test)
		c.visitLoop(v, "<while>", nil, v.Body, nil)
	case *luaast.Repeat:
		c.visitLoop(v, "<repeat>", nil, v.Body, v.Test)
	case *luaast.ForNum:
		c.visit(v.Start)
		c.visit(v.Stop)
		c.visit(v.Step)
		c.visitLoop(v, "<fornum>", []*luaast.Name{v.Var}, v.Body, nil)
	case *luaast.ForIn:
		for _, it := range v.Iter {
			c.visit(it)
		}
		c.visitLoop(v, "<forin>", v.Targets, v.Body, nil)
	case *luaast.Call:
		c.visitCall(v)
	case *luaast.Invoke:
		c.visitInvoke(v)
	case *luaast.Index:
		c.visitIndex(v)
	case *luaast.BinOp:
		c.operators[v.Left] = v.Op
		c.operators[v.Right] = v.Op
		c.visit(v.Left)
		c.visit(v.Right)
	case *luaast.UnOp:
		c.operators[v.Operand] = v.Op
		c.visit(v.Operand)
	default:
		for _, child := range luaast.Children(n) {
			c.visit(child)
		}
	}
}

func (c *fileContext) visitBlock(b *luaast.Block) {
	if b == nil {
		return
	}
	for _, stmt := range b.Stmts {
		switch stmt.(type) {
		case *luaast.Call, *luaast.Invoke:
			c.statements[stmt] = true
		}
		c.visit(stmt)
	}
}

// isHot reports whether a function name is a hot callback. Dotted names
// match on their last segment.
func (c *fileContext) isHot(name string) bool {
	if c.cat.HotCallbacks[name] {
		return true
	}
	if i := strings.LastIndexAny(name, ".:"); i >= 0 {
		return c.cat.HotCallbacks[name[i+1:]]
	}
	return false
}

func (c *fileContext) visitFunction(n luaast.Node, name string, hot bool, params []*luaast.Name, body *luaast.Block, method bool) {
	savedDepth, savedChain, savedBranch := c.loopDepth, c.chain, c.branch
	c.loopDepth, c.chain, c.branch = 0, nil, 0

	pos := n.Pos()
	id := c.tracker.Enter(name, pos.Line, scope.KindFunction, hot, n)
	if method {
		c.tracker.AddLocal("self")
	}
	for _, p := range params {
		c.tracker.AddLocal(p.ID)
	}
	c.visitBlock(body)
	c.tracker.Exit(id, pos.EndLine)

	c.loopDepth, c.chain, c.branch = savedDepth, savedChain, savedBranch
}

// visitLoop opens a loop scope. The test of a repeat loop is evaluated
// inside the body scope, so it is visited there.
func (c *fileContext) visitLoop(n luaast.Node, name string, targets []*luaast.Name, body *luaast.Block, test luaast.Node) {
	pos := n.Pos()
	id := c.tracker.Enter(name, pos.Line, scope.KindLoop, false, n)
	c.loopDepth++
	for _, t := range targets {
		if t != nil {
			c.tracker.AddLocal(t.ID)
		}
	}
	c.visitBlock(body)
	c.visit(test)
	c.loopDepth--
	c.tracker.Exit(id, pos.EndLine)
}

// visitIf records the branch of every call inside the chain. The main
// condition always runs, so it keeps the enclosing branch context; elseif
// conditions belong to their own branch.
func (c *fileContext) visitIf(v *luaast.If) {
	c.visit(v.Test)

	savedChain, savedBranch := c.chain, c.branch
	c.chain = v
	c.branch = 0
	c.visitBlock(v.Body)
	for i, e := range v.ElseIfs {
		c.branch = i + 1
		c.visit(e.Test)
		c.visitBlock(e.Body)
	}
	if v.Else != nil {
		c.branch = branchElse
		c.visitBlock(v.Else)
	}
	c.chain, c.branch = savedChain, savedBranch
}

func (c *fileContext) visitLocalAssign(v *luaast.LocalAssign) {
	line := v.Pos().Line
	for i, t := range v.Targets {
		c.tracker.AddLocal(t.ID)
		if i >= len(v.Values) {
			continue
		}
		value := v.Values[i]
		switch val := value.(type) {
		case *luaast.Name:
			if c.cat.CacheableGlobals[val.ID] {
				c.tracker.AddCached(val.ID)
			}
		case *luaast.Index:
			if module, fn := splitModuleFunc(luaast.DottedName(val)); module != "" && c.cat.IsCacheableModuleFunc(module, fn) {
				c.tracker.AddCached(module + "." + fn)
			}
		}
		c.recordAssignment(t.ID, value, line, true)
	}
	for _, value := range v.Values {
		c.visit(value)
	}
}

func (c *fileContext) visitAssign(v *luaast.Assign) {
	line := v.Pos().Line
	for i, t := range v.Targets {
		name, ok := t.(*luaast.Name)
		if !ok {
			c.visit(t)
			continue
		}
		isLocal := c.tracker.IsLocal(name.ID)
		if !isLocal {
			c.globalWrites = append(c.globalWrites, globalWrite{name: name.ID, line: line})
		}
		if i < len(v.Values) {
			c.recordAssignment(name.ID, v.Values[i], line, isLocal)
		}
	}
	for _, value := range v.Values {
		c.visit(value)
	}
}

func (c *fileContext) recordAssignment(target string, value luaast.Node, line int, isLocal bool) {
	kind := classify(value)
	c.assigns = append(c.assigns, assignFact{
		target:    target,
		kind:      kind,
		repr:      luaast.Render(value),
		line:      line,
		scope:     c.tracker.Current(),
		loopDepth: c.loopDepth,
		isLocal:   isLocal,
	})

	if bin, ok := value.(*luaast.BinOp); ok && bin.Op == ".." {
		left := ""
		if n, ok := bin.Left.(*luaast.Name); ok {
			left = n.ID
		}
		loop := scope.None
		if c.loopDepth > 0 {
			loop = c.tracker.Loop(c.tracker.Current())
		}
		c.concats = append(c.concats, concatFact{
			target:    target,
			left:      left,
			right:     luaast.Render(bin.Right),
			line:      line,
			scope:     c.tracker.Current(),
			loop:      loop,
			loopDepth: c.loopDepth,
		})
	}

	c.trackNilSource(target, value, line, isLocal)
}

func classify(n luaast.Node) valueKind {
	switch v := n.(type) {
	case *luaast.Call, *luaast.Invoke:
		return valueCall
	case *luaast.Index:
		return valueIndex
	case *luaast.BinOp:
		if v.Op == ".." {
			return valueConcat
		}
	case *luaast.String, *luaast.Number, *luaast.True, *luaast.False, *luaast.Nil:
		return valueLiteral
	}
	return valueOther
}

// callName returns the module, function and full name of a bare or
// module.func callee. Deeper or computed callees yield empty names.
func callName(fn luaast.Node) (module, name, full string) {
	switch v := fn.(type) {
	case *luaast.Name:
		return "", v.ID, v.ID
	case *luaast.Index:
		if v.Bracket {
			return "", "", ""
		}
		mod, ok := v.Value.(*luaast.Name)
		key, ok2 := v.Key.(*luaast.Name)
		if !ok || !ok2 {
			return "", "", ""
		}
		return mod.ID, key.ID, mod.ID + "." + key.ID
	}
	return "", "", ""
}

func splitModuleFunc(dotted string) (module, fn string) {
	module, fn, ok := strings.Cut(dotted, ".")
	if !ok || strings.Contains(fn, ".") {
		return "", ""
	}
	return module, fn
}

func rootName(full string) string {
	if i := strings.IndexAny(full, ".:"); i >= 0 {
		return full[:i]
	}
	return full
}

func (c *fileContext) visitCall(v *luaast.Call) {
	module, fn, full := callName(v.Func)
	if full != "" {
		c.recordCall(v, module, fn, full, v.Args)
		c.nameCallbacks(fn, v.Args)
	}
	c.prefixes[v.Func] = true
	c.visit(v.Func)
	for _, arg := range v.Args {
		c.visit(arg)
	}
}

func (c *fileContext) visitInvoke(v *luaast.Invoke) {
	src := luaast.Render(v.Source)
	full := src + ":" + v.Method.ID
	c.recordCall(v, src, v.Method.ID, full, v.Args)
	if name, ok := v.Source.(*luaast.Name); ok {
		c.checkNilAccess(name.ID, full, v.Pos().Line, "method", v)
	}
	c.prefixes[v.Source] = true
	c.visit(v.Source)
	for _, arg := range v.Args {
		c.visit(arg)
	}
}

func (c *fileContext) visitIndex(v *luaast.Index) {
	if name, ok := v.Value.(*luaast.Name); ok {
		c.checkNilAccess(name.ID, luaast.Render(v), v.Pos().Line, "index", v)
	}
	c.prefixes[v.Value] = true
	c.visit(v.Value)
	if v.Bracket {
		c.visit(v.Key)
	}
}

func (c *fileContext) recordCall(n luaast.Node, module, fn, full string, args []luaast.Node) {
	shadowed := c.tracker.Resolve(full) || c.tracker.IsLocal(rootName(full))
	c.calls = append(c.calls, callFact{
		name:      full,
		module:    module,
		fn:        fn,
		args:      args,
		line:      n.Pos().Line,
		node:      n,
		scope:     c.tracker.Current(),
		loopDepth: c.loopDepth,
		chain:     c.chain,
		branch:    c.branch,
		statement: c.statements[n],
		operator:  c.operators[n],
		prefix:    c.prefixes[n],
		shadowed:  shadowed,
	})
}

// nameCallbacks names function expressions registered as event handlers
// after their event, so hot events open hot scopes.
func (c *fileContext) nameCallbacks(fn string, args []luaast.Node) {
	if !c.cat.RegistrationFuncs[fn] || len(args) < 2 {
		return
	}
	event, ok := args[0].(*luaast.String)
	if !ok {
		return
	}
	for _, arg := range args[1:] {
		if anon, ok := arg.(*luaast.AnonFunction); ok {
			c.callbacks[anon] = callbackName{name: event.Value, hot: c.cat.HotCallbacks[event.Value]}
		}
	}
}
