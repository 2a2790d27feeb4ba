// Package mcpserver exposes the analyzer and transformer as MCP tools and
// ships a few workflow prompts built on them.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/luafix/internal/service/analysis"
)

const serverName = "luafix"

// Server serves the luafix tools and prompts.
type Server struct {
	server *mcp.Server
	svc    *analysis.Service
}

// NewServer creates a server backed by svc. A nil svc analyzes with the
// default configuration.
func NewServer(version string, svc *analysis.Service) *Server {
	if version == "" {
		version = "dev"
	}
	if svc == nil {
		svc = analysis.New()
	}
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil),
		svc:    svc,
	}
	s.registerTools()
	if err := s.registerPrompts(); err != nil {
		svc.Logger().Warn("prompts unavailable", "error", err)
	}
	return s
}

// Run serves over stdin and stdout until ctx is done or the client leaves.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{Name: "analyze_lua", Description: describeAnalyze()}, s.handleAnalyze)
	mcp.AddTool(s.server, &mcp.Tool{Name: "fix_lua", Description: describeFix()}, s.handleFix)
	mcp.AddTool(s.server, &mcp.Tool{Name: "list_patterns", Description: describePatterns()}, s.handleListPatterns)
}
