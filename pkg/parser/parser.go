package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/lua"

	"github.com/panbanda/luafix/pkg/luaast"
)

// ErrParse is returned when the source cannot be parsed into a complete tree.
var ErrParse = errors.New("parse error")

// utf8BOM is blanked before parsing so that byte offsets stay aligned with
// the file contents.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parser wraps tree-sitter configured for Lua.
type Parser struct {
	parser *sitter.Parser
}

// ParseResult contains the parsed tree and the exact bytes it was built from.
type ParseResult struct {
	Tree   *sitter.Tree
	Chunk  *luaast.Chunk
	Source []byte
	Path   string
}

// New creates a new parser instance.
func New() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(lua.GetLanguage())
	return &Parser{parser: p}
}

// ParseFile reads a Lua file byte for byte and parses it.
func (p *Parser) ParseFile(ctx context.Context, path string) (*ParseResult, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return p.Parse(ctx, source, path)
}

// Parse parses source. The returned result keeps the original bytes; any
// byte-order mark is only masked in the copy handed to tree-sitter.
func (p *Parser) Parse(ctx context.Context, source []byte, path string) (*ParseResult, error) {
	input := make([]byte, len(source))
	copy(input, source)
	if bytes.HasPrefix(input, utf8BOM) {
		copy(input, "   ")
	}

	b := newBuilder(source)
	b.maskAttribs(input)
	tree, err := b.parse(ctx, p.parser, input)
	switch {
	case errors.Is(err, ErrParse):
		return nil, fmt.Errorf("%s: %w", path, ErrParse)
	case err != nil && ctx.Err() != nil:
		return nil, fmt.Errorf("failed to parse %s: %w", path, ctx.Err())
	case err != nil:
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &ParseResult{
		Tree:   tree,
		Chunk:  b.chunk(tree.RootNode()),
		Source: source,
		Path:   path,
	}, nil
}

// Close releases parser resources.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

// Close releases the tree-sitter tree backing the result.
func (r *ParseResult) Close() {
	if r != nil && r.Tree != nil {
		r.Tree.Close()
	}
}

// IsLuaFile reports whether path names a Lua script.
func IsLuaFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".lua")
}

// NodeVisitor is called for each raw tree-sitter node during traversal.
type NodeVisitor func(node *sitter.Node, source []byte) bool

// Walk traverses the raw tree-sitter tree depth-first.
func Walk(node *sitter.Node, source []byte, visitor NodeVisitor) {
	if node == nil {
		return
	}
	if !visitor(node, source) {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		Walk(node.Child(i), source, visitor)
	}
}

// GetNodeText extracts the source text for a node.
func GetNodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if start > uint32(len(source)) || end > uint32(len(source)) || start > end {
		return ""
	}
	return string(source[start:end])
}
