// Package mcp serves the tool registry over the Model Context Protocol so
// other agents can query the corpus.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/guard"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/observe"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/resultcache"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/runtime"
)

// ServerConfig names the server to clients.
type ServerConfig struct {
	Name    string
	Version string
}

// Server exposes every tool the guard allows.
type Server struct {
	mcpServer *mcpserver.MCPServer
	registry  *runtime.ToolRegistry
	cache     *resultcache.Cache
	observe   *observe.Observer
}

func NewServer(cfg ServerConfig, reg *runtime.ToolRegistry, cache *resultcache.Cache, g *guard.Guard, o *observe.Observer) (*Server, error) {
	if cfg.Name == "" {
		cfg.Name = "lifeos"
	}
	s := &Server{
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version, mcpserver.WithToolCapabilities(false)),
		registry:  reg,
		cache:     cache,
		observe:   o,
	}

	for _, t := range reg.List() {
		if v := g.CheckTool(t.Name()); v != nil {
			o.Log().Debug().Str("tool", t.Name()).Str("violation", v.Rule).Msg("tool not exposed")
			continue
		}
		schema, err := json.Marshal(t.Parameters())
		if err != nil {
			return nil, fmt.Errorf("marshal schema for %s: %w", t.Name(), err)
		}
		s.mcpServer.AddTool(mcplib.NewToolWithRawSchema(t.Name(), t.Description(), schema), s.handler(t.Name()))
	}
	return s, nil
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ServeStdio blocks serving requests on stdin and stdout.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcpServer)
}

// handler runs a tool and folds list results through the result cache, so
// clients can hand resultIds to analyze.
func (s *Server) handler(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcplib.NewToolResultErrorFromErr("invalid arguments", err), nil
		}

		result, err := s.registry.Execute(ctx, name, args)
		if err != nil {
			s.observe.Log().Warn().Str("tool", name).Err(err).Msg("mcp tool call failed")
			s.observe.Metrics().RecordToolCall(ctx, name, true)
			var nf *runtime.ToolNotFoundError
			if errors.As(err, &nf) {
				return mcplib.NewToolResultError(nf.Error()), nil
			}
			return mcplib.NewToolResultError(err.Error()), nil
		}

		content, _, err := runtime.Fold(s.cache, result)
		if err != nil {
			s.observe.Metrics().RecordToolCall(ctx, name, true)
			return mcplib.NewToolResultErrorFromErr("failed to encode result", err), nil
		}
		s.observe.Metrics().RecordToolCall(ctx, name, false)
		return mcplib.NewToolResultText(content), nil
	}
}
