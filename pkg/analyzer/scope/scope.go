// Package scope tracks Lua lexical scopes during a single syntax tree walk.
//
// Scopes live in an arena owned by a Tracker and are addressed by ID. Each
// scope links to its parent by ID, so the tree mirrors syntax nesting and
// always terminates at the file scope.
package scope

import (
	"fmt"

	"github.com/panbanda/luafix/pkg/luaast"
)

// Kind enumerates scope categories.
type Kind uint8

const (
	KindGlobal   Kind = iota // file-level scope
	KindFunction             // function body
	KindLoop                 // loop body
	KindBlock                // other block
)

func (k Kind) String() string {
	switch k {
	case KindGlobal:
		return "global"
	case KindFunction:
		return "function"
	case KindLoop:
		return "loop"
	case KindBlock:
		return "block"
	default:
		return "invalid"
	}
}

// ID addresses a scope in the tracker arena.
type ID int32

// None is the parent of the global scope.
const None ID = -1

// GlobalName is the display name of the file scope.
const GlobalName = "<global>"

// Scope is one lexical region.
type Scope struct {
	Name      string
	Kind      Kind
	StartLine int
	EndLine   int
	Parent    ID
	Hot       bool
	// Node is the function or loop node that opened the scope.
	Node luaast.Node

	locals map[string]struct{}
	cached map[string]struct{}
}

// HasLocal reports whether name is declared directly in this scope.
func (s *Scope) HasLocal(name string) bool {
	_, ok := s.locals[name]
	return ok
}

// HasCached reports whether name is a cached global alias visible in this
// scope. The set includes aliases inherited when the scope was entered.
func (s *Scope) HasCached(name string) bool {
	_, ok := s.cached[name]
	return ok
}

// Locals returns the declared local names.
func (s *Scope) Locals() []string { return keys(s.locals) }

// Cached returns the cached global aliases.
func (s *Scope) Cached() []string { return keys(s.cached) }

// Tracker owns the scope arena and the stack of open scopes.
type Tracker struct {
	scopes  []Scope
	current ID
}

// NewTracker creates a tracker with an open global scope spanning lines
// 1 through lastLine.
func NewTracker(lastLine int) *Tracker {
	t := &Tracker{current: 0}
	t.scopes = append(t.scopes, Scope{
		Name:      GlobalName,
		Kind:      KindGlobal,
		StartLine: 1,
		EndLine:   lastLine,
		Parent:    None,
		locals:    make(map[string]struct{}),
		cached:    make(map[string]struct{}),
	})
	return t
}

// Enter opens a child of the current scope and makes it current. The child
// starts with a copy of the parent's cached aliases and inherits its hot flag.
func (t *Tracker) Enter(name string, line int, kind Kind, hot bool, node luaast.Node) ID {
	parent := &t.scopes[t.current]
	cached := make(map[string]struct{}, len(parent.cached))
	for k := range parent.cached {
		cached[k] = struct{}{}
	}
	t.scopes = append(t.scopes, Scope{
		Name:      name,
		Kind:      kind,
		StartLine: line,
		EndLine:   -1,
		Parent:    t.current,
		Hot:       hot || parent.Hot,
		Node:      node,
		locals:    make(map[string]struct{}),
		cached:    cached,
	})
	t.current = ID(len(t.scopes) - 1)
	return t.current
}

// Exit closes scope id, which must be the current scope. Exiting out of
// order is a programming error and panics.
func (t *Tracker) Exit(id ID, endLine int) {
	if id != t.current || id == 0 {
		panic(fmt.Sprintf("scope: exit of %d while %d is current", id, t.current))
	}
	s := &t.scopes[id]
	s.EndLine = endLine
	t.current = s.Parent
}

// Current returns the innermost open scope.
func (t *Tracker) Current() ID { return t.current }

// Global returns the file scope.
func (t *Tracker) Global() ID { return 0 }

// Get returns the scope for id.
func (t *Tracker) Get(id ID) *Scope { return &t.scopes[id] }

// Len returns the number of scopes created so far.
func (t *Tracker) Len() int { return len(t.scopes) }

// AddLocal declares name in the current scope.
func (t *Tracker) AddLocal(name string) {
	t.scopes[t.current].locals[name] = struct{}{}
}

// AddLocalTo declares name in scope id.
func (t *Tracker) AddLocalTo(id ID, name string) {
	t.scopes[id].locals[name] = struct{}{}
}

// AddCached records name as a cached global alias in the current scope.
func (t *Tracker) AddCached(name string) {
	t.scopes[t.current].cached[name] = struct{}{}
}

// Resolve reports whether name is a local or cached alias anywhere from the
// current scope up to the global scope.
func (t *Tracker) Resolve(name string) bool {
	for id := t.current; id != None; id = t.scopes[id].Parent {
		s := &t.scopes[id]
		if s.HasLocal(name) || s.HasCached(name) {
			return true
		}
	}
	return false
}

// IsLocal reports whether name is declared as a local in the current scope
// chain. Cached aliases are not considered.
func (t *Tracker) IsLocal(name string) bool {
	for id := t.current; id != None; id = t.scopes[id].Parent {
		if t.scopes[id].HasLocal(name) {
			return true
		}
	}
	return false
}

// Chain returns the IDs from id up to the global scope.
func (t *Tracker) Chain(id ID) []ID {
	var out []ID
	for ; id != None; id = t.scopes[id].Parent {
		out = append(out, id)
	}
	return out
}

// Function returns the nearest function scope enclosing id, or the global
// scope.
func (t *Tracker) Function(id ID) ID {
	for ; id != None; id = t.scopes[id].Parent {
		if t.scopes[id].Kind == KindFunction {
			return id
		}
	}
	return 0
}

// Loop returns the innermost loop scope enclosing id, stopping at the
// nearest function boundary. It returns None when there is none.
func (t *Tracker) Loop(id ID) ID {
	for ; id != None; id = t.scopes[id].Parent {
		switch t.scopes[id].Kind {
		case KindLoop:
			return id
		case KindFunction:
			return None
		}
	}
	return None
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
