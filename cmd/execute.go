// Package cmd contains the command dispatcher and the implementations
// of the serve, ingest and migrate subcommands. main.go stays a
// minimal entry point.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/reelchat/reelchat/internal/config"
	"github.com/reelchat/reelchat/internal/log"
)

// Version information, injected at build time via ldflags.
var (
	AppVersion = "0.0.1"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the entry point for the reelchat binary. It routes the
// first argument to a subcommand; with no argument it starts the HTTP
// server.
func Execute() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			return executeServe()
		case "ingest":
			return executeIngest(os.Args[2:])
		case "migrate":
			return executeMigrate()
		case "version", "--version", "-v":
			return printVersionInfo()
		case "help", "--help", "-h":
			printHelp()
			return nil
		default:
			printHelp()
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}
	return executeServe()
}

// loadConfig loads and validates the configuration and installs the
// configured logger as the process default.
func loadConfig() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	slog.SetDefault(logger)

	return cfg, logger, nil
}

// checkRequiredEnv verifies GEMINI_API_KEY is set and prints setup
// instructions when it is not.
func checkRequiredEnv() error {
	if err := config.RequireAPIKey(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable not set")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "reelchat needs a Gemini API key for embeddings and generation.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "To set your API key:")
		fmt.Fprintln(os.Stderr, "  export GEMINI_API_KEY=your-api-key")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Get your API key at: https://ai.google.dev/")
		return err
	}
	return nil
}

func printVersionInfo() error {
	fmt.Printf("reelchat v%s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
	return nil
}

func printHelp() {
	fmt.Println("reelchat - movie catalog question answering service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  reelchat                 Start the HTTP server (default)")
	fmt.Println("  reelchat serve           Start the HTTP server")
	fmt.Println("  reelchat ingest <file>   Embed and index a JSON movie list")
	fmt.Println("  reelchat migrate         Apply database migrations and exit")
	fmt.Println("  reelchat version         Show version information")
	fmt.Println("  reelchat help            Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY           Required: Gemini API key (serve, ingest)")
	fmt.Println("  DATABASE_URL             Optional: postgres:// connection URL")
	fmt.Println("  REELCHAT_*               Optional: config overrides (see config.yaml)")
}
