package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/quarrydev/quarry/internal/server"
	"github.com/quarrydev/quarry/internal/tool"
)

// runServe starts the MCP server, over HTTP by default or stdio with
// --stdio.
func runServe(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var (
		host       string
		port       int
		stdio      bool
		configPath string
	)
	fs.StringVar(&host, "host", "", "listen host (default from config)")
	fs.IntVar(&port, "port", 0, "listen port (default from config)")
	fs.BoolVar(&stdio, "stdio", false, "serve over stdin/stdout instead of HTTP")
	fs.StringVar(&configPath, "config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return err
	}
	if host == "" {
		host = cfg.Server.Host
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	be, err := connectBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	srv, err := server.New(server.Config{
		Name:         "quarry",
		Version:      AppVersion,
		Host:         host,
		Port:         port,
		EnabledTools: cfg.EnabledTools,
	}, tool.NewKit(be, logger), logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if stdio {
		return srv.RunStdio(ctx)
	}
	return srv.RunHTTP(ctx)
}
