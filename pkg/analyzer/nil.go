package analyzer

import (
	"strings"

	"github.com/panbanda/luafix/pkg/luaast"
)

// nilReturning returns the catalog key of a call or index expression that
// may yield a nil sentinel, or "".
func (c *fileContext) nilReturning(value luaast.Node) string {
	var key string
	switch v := value.(type) {
	case *luaast.Call:
		_, _, key = callName(v.Func)
	case *luaast.Invoke:
		key = ":" + v.Method.ID
	case *luaast.Index:
		key = luaast.DottedName(v)
	}
	if key == "" {
		return ""
	}
	if _, ok := c.cat.NilReason(key); ok {
		return key
	}
	return ""
}

// trackNilSource records target as nilly when value is a catalogued
// nil-returning expression, and clears it otherwise.
func (c *fileContext) trackNilSource(target string, value luaast.Node, line int, isLocal bool) {
	key := nilKey{scope: c.tracker.Current(), name: target}
	fn := c.nilReturning(value)
	if fn == "" {
		delete(c.nilSources, key)
		return
	}
	c.nilSources[key] = &nilSource{
		name:    target,
		call:    luaast.Render(value),
		fn:      fn,
		line:    line,
		scope:   key.scope,
		isLocal: isLocal,
	}
}

func (c *fileContext) findNilSource(name string) *nilSource {
	for _, id := range c.tracker.Chain(c.tracker.Current()) {
		if src, ok := c.nilSources[nilKey{scope: id, name: name}]; ok {
			return src
		}
	}
	return nil
}

func (c *fileContext) checkNilAccess(name, call string, line int, access string, n luaast.Node) {
	src := c.findNilSource(name)
	if src == nil {
		return
	}
	if c.hasNilGuard(name, src.line, line) {
		return
	}
	c.nilAccesses = append(c.nilAccesses, nilAccess{
		name:    name,
		call:    call,
		access:  access,
		line:    line,
		source:  src,
		safe:    c.isSafeNilFix(src, line),
		node:    n,
		scopeID: c.tracker.Current(),
	})
}

func guardPatterns(name string) []string {
	return []string{
		"if " + name + " then",
		"if " + name + " and",
		"if not " + name + " then",
		"if " + name + " ~= nil",
		"if " + name + " == nil then return",
		name + " and " + name + ":",
		name + " and " + name + ".",
	}
}

// hasNilGuard scans the lines from the assignment up to, but excluding, the
// access for a textual truthiness check of name.
func (c *fileContext) hasNilGuard(name string, assignLine, accessLine int) bool {
	if assignLine >= accessLine {
		return false
	}
	patterns := guardPatterns(name)
	for n := assignLine; n < accessLine; n++ {
		if !c.lines.Valid(n) {
			continue
		}
		text := c.lines.Text(n)
		for _, p := range patterns {
			if strings.Contains(text, p) {
				return true
			}
		}
	}
	return false
}

var controlFlowPrefixes = []string{"if ", "if(", "for ", "while ", "repeat", "function ", "function("}

// isSafeNilFix reports whether wrapping the access line in a guard cannot
// change program structure: the access directly follows the assignment of a
// local in the same scope and is a plain statement.
func (c *fileContext) isSafeNilFix(src *nilSource, accessLine int) bool {
	if accessLine != src.line+1 || !src.isLocal {
		return false
	}
	if c.tracker.Current() != src.scope {
		return false
	}
	if !c.lines.Valid(src.line) || !c.lines.Valid(accessLine) {
		return false
	}
	text := strings.TrimSpace(c.lines.Text(accessLine))
	if strings.HasPrefix(text, "local ") {
		return false
	}
	for _, kw := range controlFlowPrefixes {
		if strings.HasPrefix(text, kw) {
			return false
		}
	}
	return true
}
