package mcpserver

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.md
var promptFiles embed.FS

// promptArg is a prompt argument declared in frontmatter. The body refers to
// it as {{name}}.
type promptArg struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
	Default     string `yaml:"default"`
}

// promptFile is one embedded prompt: YAML frontmatter followed by the body.
type promptFile struct {
	Name        string      `yaml:"-"`
	Description string      `yaml:"description"`
	Arguments   []promptArg `yaml:"arguments"`
	Body        string      `yaml:"-"`
}

var frontmatterFence = []byte("---\n")

// parsePrompt splits a prompt file. Content without a frontmatter block is
// all body.
func parsePrompt(name string, content []byte) (*promptFile, error) {
	p := &promptFile{Name: name, Body: string(content)}
	if !bytes.HasPrefix(content, frontmatterFence) {
		return p, nil
	}
	rest := content[len(frontmatterFence):]
	head, body, found := bytes.Cut(rest, append([]byte("\n"), frontmatterFence...))
	if !found {
		return p, nil
	}
	if err := yaml.Unmarshal(head, p); err != nil {
		return nil, fmt.Errorf("prompt %s: %w", name, err)
	}
	p.Body = strings.TrimLeft(string(body), "\n")
	return p, nil
}

func loadPrompts() ([]*promptFile, error) {
	entries, err := promptFiles.ReadDir("prompts")
	if err != nil {
		return nil, err
	}
	var prompts []*promptFile
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".md" {
			continue
		}
		content, err := promptFiles.ReadFile(path.Join("prompts", entry.Name()))
		if err != nil {
			return nil, err
		}
		p, err := parsePrompt(strings.TrimSuffix(entry.Name(), ".md"), content)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}

func (s *Server) registerPrompts() error {
	prompts, err := loadPrompts()
	if err != nil {
		return err
	}
	for _, p := range prompts {
		s.server.AddPrompt(p.definition(), p.handle)
	}
	return nil
}

func (p *promptFile) definition() *mcp.Prompt {
	def := &mcp.Prompt{Name: p.Name, Description: p.Description}
	for _, a := range p.Arguments {
		def.Arguments = append(def.Arguments, &mcp.PromptArgument{
			Name:        a.Name,
			Description: a.Description,
			Required:    a.Required,
		})
	}
	return def
}

// render substitutes the declared arguments into the body.
func (p *promptFile) render(args map[string]string) (string, error) {
	pairs := make([]string, 0, 2*len(p.Arguments))
	for _, a := range p.Arguments {
		v, ok := args[a.Name]
		if !ok || v == "" {
			if a.Required {
				return "", fmt.Errorf("prompt %s: missing argument %q", p.Name, a.Name)
			}
			v = a.Default
		}
		pairs = append(pairs, "{{"+a.Name+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(p.Body), nil
}

func (p *promptFile) handle(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	var args map[string]string
	if req != nil && req.Params != nil {
		args = req.Params.Arguments
	}
	text, err := p.render(args)
	if err != nil {
		return nil, err
	}
	return &mcp.GetPromptResult{
		Description: p.Description,
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: text}},
		},
	}, nil
}
