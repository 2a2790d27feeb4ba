package parser

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
)

// stubKind is a same-width rewrite of a return or break keyword.
type stubKind int

const (
	stubValues stubKind = iota + 1 // `return x` read as `_ =   x`
	stubBare                       // `return` read as `do end`
	stubBreak                      // `break` read as `_=nil`
)

var stubText = map[stubKind]string{
	stubValues: "_ =   ",
	stubBare:   "do end",
	stubBreak:  "_=nil",
}

const maxRepairs = 64

var (
	localList = regexp.MustCompile(`\blocal[ \t]+(?:[A-Za-z_]\w*[ \t]*(?:<[ \t]*\w+[ \t]*>)?[ \t]*,[ \t]*)*[A-Za-z_]\w*[ \t]*(?:<[ \t]*\w+[ \t]*>)?`)
	attrib    = regexp.MustCompile(`([A-Za-z_]\w*)[ \t]*(<[ \t]*(\w+)[ \t]*>)`)
	longOpen  = regexp.MustCompile(`^\[=*\[`)
)

// maskAttribs blanks Lua 5.4 local attributes (`local x <const> = 1`),
// which the grammar does not know, and remembers them by name offset.
func (b *builder) maskAttribs(input []byte) {
	for _, m := range localList.FindAllIndex(input, -1) {
		for _, a := range attrib.FindAllSubmatchIndex(input[m[0]:m[1]], -1) {
			name := m[0] + a[2]
			b.attribs[name] = string(input[m[0]+a[6] : m[0]+a[7]])
			for i := m[0] + a[4]; i < m[0]+a[5]; i++ {
				input[i] = ' '
			}
		}
	}
}

// parse parses input, rewriting return and break keywords that have more
// statements behind them in the same block. Lua 5.4 accepts such a break
// and rejects such a return, and the grammar rejects both, yet the code
// behind them is exactly what unreachable-code detection reports. Rewrites
// keep the byte length, so every offset still matches the original source.
func (b *builder) parse(ctx context.Context, p *sitter.Parser, input []byte) (*sitter.Tree, error) {
	for attempt := 0; ; attempt++ {
		tree, err := p.ParseCtx(ctx, nil, input)
		if err != nil {
			return nil, err
		}
		root := tree.RootNode()
		if !root.HasError() {
			return tree, nil
		}
		pos, kind, ok := b.nextStub(root, input)
		tree.Close()
		if !ok || attempt >= maxRepairs {
			return nil, ErrParse
		}
		b.stubs[pos] = kind
		copy(input[pos:], stubText[kind])
	}
}

// nextStub picks the rewrite for the first error in the tree: the nearest
// return or break at or before it. A return already read as `_ =` falls back
// to `do end` for the valueless form.
func (b *builder) nextStub(root *sitter.Node, input []byte) (int, stubKind, bool) {
	var bad *sitter.Node
	keywords := make(map[int]stubKind)
	for pos, kind := range b.stubs {
		keywords[pos] = kind
	}
	Walk(root, nil, func(n *sitter.Node, _ []byte) bool {
		if bad == nil && (n.IsMissing() || n.Type() == "ERROR") {
			bad = n
		}
		switch n.Type() {
		case "return":
			keywords[int(n.EndByte())-len("return")] = 0
		case "break", "break_statement":
			keywords[int(n.EndByte())-len("break")] = stubBreak
		}
		return true
	})
	if bad == nil {
		return 0, 0, false
	}

	errAt, errEnd := int(bad.StartByte()), int(bad.EndByte())
	best, after := -1, -1
	for pos := range keywords {
		switch {
		case pos <= errAt && pos > best:
			best = pos
		case pos > errAt && pos < errEnd && (after < 0 || pos < after):
			after = pos
		}
	}
	if best < 0 {
		best = after
	}
	if best < 0 {
		return 0, 0, false
	}

	prev, stubbed := b.stubs[best]
	switch {
	case !stubbed && keywords[best] == stubBreak:
		return best, stubBreak, true
	case !stubbed && endsStatement(nextWord(input, best+len("return"))):
		return best, stubBare, true
	case !stubbed:
		return best, stubValues, true
	case prev == stubValues:
		return best, stubBare, true
	}
	return 0, 0, false
}

// endsStatement reports whether word cannot begin an expression, meaning a
// return in front of it carries no values.
func endsStatement(word string) bool {
	switch word {
	case "", ";", "::", "local", "if", "while", "for", "repeat", "do", "return",
		"break", "goto", "end", "else", "elseif", "until":
		return true
	}
	return false
}

// nextWord returns the word or punctuation starting at the first significant
// byte at or after from, skipping comments.
func nextWord(src []byte, from int) string {
	i := from
	for i < len(src) {
		switch {
		case isSpace(src[i]):
			i++
		case bytes.HasPrefix(src[i:], []byte("--")):
			i += 2
			if m := longOpen.Find(src[i:]); m != nil {
				end := bytes.Index(src[i+len(m):], []byte("]"+strings.Repeat("=", len(m)-2)+"]"))
				if end < 0 {
					return ""
				}
				i += len(m) + end + len(m)
				continue
			}
			for i < len(src) && src[i] != '\n' {
				i++
			}
		default:
			j := i
			for j < len(src) && (src[j] == '_' || unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j]))) {
				j++
			}
			if j == i {
				if bytes.HasPrefix(src[i:], []byte("::")) {
					return "::"
				}
				j = i + 1
			}
			return string(src[i:j])
		}
	}
	return ""
}
