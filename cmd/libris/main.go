// Package main is the libris CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/libris/internal/config"
	"github.com/hyperjump/libris/internal/inbox"
	"github.com/hyperjump/libris/internal/ratelimit"
	"github.com/hyperjump/libris/internal/server"
	"github.com/hyperjump/libris/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/libris/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// When neither exists, environment overrides and defaults are applied so subcommands
// work without a config file.
// Returns the config and the path that was actually loaded ("" for defaults only).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg, err := config.Default()
			if err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "list":
		runList()
	case "search":
		runSearch()
	case "slug":
		runSlug()
	case "segment":
		runSegment()
	case "reindex":
		runReindex()
	case "delete":
		runDelete()
	case "version", "--version", "-v":
		fmt.Printf("libris version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and builds the logger shared by every subcommand.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return cfg, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (ingestion stages, inbox events, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var importer *inbox.Importer
	if cfg.Inbox.Directory != "" {
		importer = inbox.NewImporter(cfg.Inbox.Directory, cfg.Inbox.Owner, cfg.Inbox.Author,
			components.Coordinator, inbox.WithLogger(logger))
		if err := importer.Start(ctx); err != nil {
			logger.Fatal("Failed to start inbox", zap.Error(err))
		}
	}

	limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)
	defer limiter.Stop()

	srv := server.NewServer(server.Deps{
		Ingester: components.Coordinator,
		Library:  components.Library,
		Store:    components.Storage,
		Blobs:    components.Blobs,
		Index:    components.Index,
		Limiter:  limiter,
	}, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if importer != nil {
		importer.Stop()
	}
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func printUsage() {
	fmt.Println(`libris - Book upload and PDF ingestion service

Usage:
  libris server [flags]               Start the HTTP server
  libris ingest [flags] <file.pdf>    Ingest a PDF as a book
  libris list [flags]                 List books, newest first
  libris search [flags] <query>       Search book segments
  libris slug <title>                 Print the slug for a title
  libris segment [flags] <file.pdf>   Extract and print segments without storing them
  libris reindex [flags]              Rebuild the search index from stored segments
  libris delete [flags] <slug>        Delete a book, its segments and files
  libris version                      Show version
  libris help                         Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/libris/config.yaml,
                     or ./config.yaml when present)
  --debug            Enable debug logging

Ingest Flags:
  --title string     Book title (default: file name without extension)
  --author string    Book author (required)
  --persona string   Persona the book is attached to
  --owner string     Owner id (default: "cli")
  --cover string     Cover image file (png, jpeg or webp)
  --output string    Output format: text or json

Search Flags:
  --server string    Server URL; empty searches the local index directly
  --owner string     Owner id sent to the server (default: "cli")
  --book string      Restrict to one book slug
  --limit int        Number of results (default: 10)
  --fuzzy            Enable typo tolerance
  --output string    Output format: text, compact, or json

Segment Flags:
  --size int         Words per segment (default: 500)
  --overlap int      Words shared by consecutive segments (default: 50)

Examples:
  libris server
  libris ingest --author "Robert Kiyosaki" ~/books/rich-dad-poor-dad.pdf
  libris list --output compact
  libris search --book rich-dad-poor-dad cashflow
  libris slug "Rich Dad Poor Dad"
  libris segment --size 200 --overlap 20 book.pdf
  libris delete rich-dad-poor-dad`)
}
