// Package server runs the MCP server that exposes the vector store tools,
// over either stdio or HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quarrydev/quarry/internal/tool"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Config selects the server identity, listen address, and tool surface.
type Config struct {
	Name    string
	Version string
	Host    string
	Port    int

	// EnabledTools restricts the registered tools; nil enables all.
	EnabledTools []string
}

// Server wraps the MCP SDK server with quarry's tool surface and HTTP
// endpoints.
type Server struct {
	mcpServer *mcp.Server
	cfg       Config
	logger    *slog.Logger
}

// New builds the server and registers the enabled tools. An unknown tool
// name in the config fails here, before any transport starts.
func New(cfg Config, kit *tool.Kit, logger *slog.Logger) (*Server, error) {
	if cfg.Name == "" || cfg.Version == "" {
		return nil, fmt.Errorf("server name and version are required")
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	enabled := cfg.EnabledTools
	if enabled == nil {
		enabled = tool.Names()
	}
	reg := kit.Registry()
	for _, name := range enabled {
		t, err := reg.Build(name, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("enabling tool: %w", err)
		}
		if err := t.AddTo(mcpServer); err != nil {
			return nil, fmt.Errorf("registering tool %s: %w", name, err)
		}
		logger.Debug("registered tool", "tool", name)
	}

	return &Server{mcpServer: mcpServer, cfg: cfg, logger: logger}, nil
}

// RunStdio serves the MCP protocol over stdin/stdout until the context is
// cancelled.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("mcp server ready", "name", s.cfg.Name, "version", s.cfg.Version, "transport", "stdio")
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the MCP protocol over streaming HTTP, plus a /health
// endpoint, until the context is cancelled.
func (s *Server) RunHTTP(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown", "error", err)
		}
	}()

	s.logger.Info("mcp server ready", "name", s.cfg.Name, "version", s.cfg.Version, "transport", "http", "addr", addr)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the HTTP surface: the MCP streaming handler at / and the
// health check at /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil))
	return mux
}
