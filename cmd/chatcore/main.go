// Package main provides the CLI entry point for the chat orchestration
// core: a streaming SSE chat service fronting the LLM↔tool loop, plus
// database migration and audit-log tailing utilities.
//
// # Basic Usage
//
// Start the server:
//
//	chatcore serve --config chatcore.yaml
//
// Apply the Postgres schema:
//
//	chatcore migrate --config chatcore.yaml
//
// Tail the audit log:
//
//	chatcore audit-tail --config chatcore.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chatcore",
		Short: "Chat orchestration core for the vacation price-tracking assistant",
		Long: `chatcore drives the LLM-tool loop behind the vacation price-tracking
assistant: conversation persistence, validated/sanitized tool dispatch,
and an SSE-streamed chat endpoint.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	root.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildAuditTailCmd(),
		buildTokenCmd(),
	)
	return root
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("CHATCORE_CONFIG"); env != "" {
		return env
	}
	return "chatcore.yaml"
}
