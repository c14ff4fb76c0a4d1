// Package cmd provides the quarry CLI commands.
//
// Commands:
//   - ingest: parse sources and store them in the vector store
//   - crawl: walk a website and store its pages
//   - serve: run the MCP server over HTTP or stdio
//
// All long-running commands shut down gracefully on SIGINT/SIGTERM via
// context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/quarrydev/quarry/internal/log"
)

// Execute is the entry point for the quarry CLI.
func Execute() error {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "ingest":
		return runIngest(os.Args[2:], logger)
	case "crawl":
		return runCrawl(os.Args[2:], logger)
	case "serve":
		return runServe(os.Args[2:], logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Quarry - content ingestion and retrieval for vector stores")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  quarry ingest [flags] [sources...]  Parse sources and store them")
	fmt.Println("  quarry crawl [flags] <url>...       Crawl websites and store their pages")
	fmt.Println("  quarry serve [flags]                Start the MCP server")
	fmt.Println("  quarry --version                    Show version information")
	fmt.Println("  quarry --help                       Show this help")
	fmt.Println()
	fmt.Println("Run a command with -h for its flags.")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Gemini API key for the default embedder")
	fmt.Println("  DATABASE_URL       Postgres URL, overrides vector store settings")
	fmt.Println("  VECTOR_DB_HOST     Vector store host (default: localhost)")
	fmt.Println("  VECTOR_DB_PORT     Vector store port (default: 5432)")
	fmt.Println("  DEBUG              Enable debug logging")
	fmt.Println()
	fmt.Println("Learn more: https://github.com/quarrydev/quarry")
}
