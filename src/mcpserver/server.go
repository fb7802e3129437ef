// Package mcpserver exposes the Gemini service as Model Context Protocol
// tools. Every tool answers with a JSON document; failures come back as
// isError results prefixed with the error kind so clients can branch on it.
package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Protocol-Lattice/gemini-mcp/src/gemini"
)

const instructions = `Tools for the Google Gemini API. Use gemini_generateContent for one-shot
prompts, gemini_startChat and gemini_sendMessage for multi-turn conversations,
and gemini_functionCall when the model should pick a function to call. Results
are JSON; failures start with the error kind (ConfigurationError,
NotFoundError, SafetyError, TransportError, UnexpectedResponseShapeError,
InvalidArgument).`

type Options struct {
	Name    string
	Version string
	Logger  *slog.Logger
}

// Server binds the Gemini service to an MCP server.
type Server struct {
	svc    *gemini.Service
	logger *slog.Logger
	mcp    *server.MCPServer
	names  []string
}

func New(svc *gemini.Service, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "gemini-mcp"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		svc:    svc,
		logger: logger,
		mcp: server.NewMCPServer(opts.Name, opts.Version,
			server.WithToolCapabilities(false),
			server.WithInstructions(instructions),
			server.WithRecovery(),
			server.WithLogging(),
		),
	}
	for _, t := range s.tools() {
		s.mcp.AddTool(t.tool, s.wrap(t.tool.Name, t.handler))
		s.names = append(s.names, t.tool.Name)
	}
	return s
}

// ToolNames lists the registered tools in registration order.
func (s *Server) ToolNames() []string { return append([]string(nil), s.names...) }

// ServeStdio speaks MCP over in and out until ctx is cancelled or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("serving MCP over stdio", "tools", len(s.names))
	return stdio.Listen(ctx, in, out)
}

type toolFunc func(ctx context.Context, req mcp.CallToolRequest) (any, error)

type toolDef struct {
	tool    mcp.Tool
	handler toolFunc
}

// wrap renders results and errors and logs every call.
func (s *Server) wrap(name string, fn toolFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		v, err := fn(ctx, req)
		if err != nil {
			s.logger.Warn("tool call failed", "tool", name, "kind", errorKind(err), "error", err, "elapsed", time.Since(start))
			return errorResult(err), nil
		}
		s.logger.Debug("tool call completed", "tool", name, "elapsed", time.Since(start))
		return jsonResult(v)
	}
}

func bind[T any](req mcp.CallToolRequest) (T, error) {
	var args T
	if err := req.BindArguments(&args); err != nil {
		return args, badArgs("invalid arguments: %v", err)
	}
	return args, nil
}
