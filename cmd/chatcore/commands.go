package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/chatcore/internal/audit"
	"github.com/haasonsaas/chatcore/internal/authctx"
	"github.com/haasonsaas/chatcore/internal/config"
	"github.com/haasonsaas/chatcore/internal/convo"
	"github.com/haasonsaas/chatcore/internal/httpapi"
	"github.com/haasonsaas/chatcore/internal/llm"
	"github.com/haasonsaas/chatcore/internal/llm/anthropic"
	"github.com/haasonsaas/chatcore/internal/llm/openai"
	"github.com/haasonsaas/chatcore/internal/observability"
	"github.com/haasonsaas/chatcore/internal/orchestrator"
	"github.com/haasonsaas/chatcore/internal/ratelimit"
	"github.com/haasonsaas/chatcore/internal/refresh"
	"github.com/haasonsaas/chatcore/internal/tools"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat orchestration HTTP/SSE server",
		Long: `Start the chat orchestration server.

The server will:
1. Load configuration from the specified file
2. Open the conversation store (memory, sqlite, or postgres)
3. Build the LLM provider with retry/backoff
4. Mount the bearer-gated chat/elicit/conversation HTTP routes
5. Start the price-refresh cron trigger, if enabled

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  chatcore serve --config chatcore.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := observability.NewLogger(observability.LogConfig{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		AddSource:      cfg.Logging.AddSource,
		RedactPatterns: cfg.Logging.RedactPatterns,
	})
	metrics := observability.NewMetrics()

	store, closeStore, err := openStore(cfg.Database, cfg.Orchestrator.MaxContextTokens)
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	defer closeStore()

	provider, err := buildProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	auditLogger, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		return fmt.Errorf("build audit logger: %w", err)
	}

	registry := tools.NewRegistry()
	// Concrete tool handlers (create_trip, list_trips, flight/hotel search,
	// …) are external collaborators and are registered here by the
	// embedding deployment, not by this core.
	router := tools.NewRouter(registry, auditLogger)

	orch := orchestrator.NewOrchestrator(store, registry, router, provider, log, cfg.Orchestrator.ToOrchestrator())
	orch.SetMetrics(metrics)

	authSvc := authctx.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	chatCfg, toolCfg := cfg.RateLimit.ToRatelimitConfigs()
	throttle := ratelimit.NewUserThrottle(chatCfg, toolCfg)

	server := httpapi.NewServer(orch, store, authSvc, throttle, log, metrics)
	if err := server.Start(httpapi.Config{Host: cfg.Server.Host, Port: cfg.Server.Port}); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	var scheduler *refresh.Scheduler
	if cfg.Refresh.Enabled {
		scheduler, err = refresh.NewScheduler(router, cfg.Refresh.Cron, log)
		if err != nil {
			return fmt.Errorf("build refresh scheduler: %w", err)
		}
		go scheduler.Run(ctx)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("chatcore server started", "addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), "llm_provider", cfg.LLM.Provider)
	<-ctx.Done()
	slog.Info("shutdown signal received, draining in-flight requests")

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	auditLogger.Close()
	slog.Info("chatcore server stopped gracefully")
	return nil
}

// openStore builds the Store the server's database driver names, and a
// closer for it (memory stores have nothing to close). maxContextTokens is
// forwarded to the store's MessagesForContext budget.
func openStore(dbCfg config.DatabaseConfig, maxContextTokens int) (convo.Store, func(), error) {
	noop := func() {}
	switch dbCfg.Driver {
	case "postgres":
		store, err := convo.NewPostgresStore(dbCfg.URL, maxContextTokens)
		if err != nil {
			return nil, noop, err
		}
		if err := store.Migrate(); err != nil {
			return nil, noop, fmt.Errorf("migrate postgres schema: %w", err)
		}
		return store, func() { store.Close() }, nil
	case "sqlite":
		store, err := convo.NewSQLiteStore(dbCfg.URL, maxContextTokens)
		if err != nil {
			return nil, noop, err
		}
		if err := store.Migrate(); err != nil {
			return nil, noop, fmt.Errorf("migrate sqlite schema: %w", err)
		}
		return store, func() { store.Close() }, nil
	default:
		return convo.NewMemoryStore(maxContextTokens), noop, nil
	}
}

func buildProvider(llmCfg config.LLMConfig) (llm.Provider, error) {
	var base llm.Provider
	switch llmCfg.Provider {
	case "openai":
		p, err := openai.New(openai.Config{APIKey: llmCfg.APIKey, DefaultModel: llmCfg.Model})
		if err != nil {
			return nil, err
		}
		base = p
	default:
		p, err := anthropic.New(anthropic.Config{APIKey: llmCfg.APIKey, DefaultModel: llmCfg.Model})
		if err != nil {
			return nil, err
		}
		base = p
	}
	return llm.NewRetryingProvider(base, llmCfg.ToRetryConfig()), nil
}

func buildMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the conversations/messages schema to the configured database",
		Long: `Apply the conversations/messages schema.

Only meaningful for the postgres and sqlite drivers; the memory driver has
no schema to migrate. Idempotent: safe to run against an already-migrated
database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath(configPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			switch cfg.Database.Driver {
			case "postgres":
				store, err := convo.NewPostgresStore(cfg.Database.URL, 0)
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.Migrate(); err != nil {
					return err
				}
			case "sqlite":
				store, err := convo.NewSQLiteStore(cfg.Database.URL, 0)
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.Migrate(); err != nil {
					return err
				}
			default:
				slog.Info("memory driver has no schema to migrate")
				return nil
			}
			slog.Info("migration applied", "driver", cfg.Database.Driver)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildAuditTailCmd() *cobra.Command {
	var (
		configPath string
		follow     bool
	)

	cmd := &cobra.Command{
		Use:   "audit-tail",
		Short: "Tail the audit log sink named by the configuration's audit.output",
		Long: `Tail the audit log.

Only file-backed sinks ("file:/path/to/log") can be tailed after the fact;
stdout/stderr sinks are already visible in the server's own output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath(configPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			path, ok := auditFilePath(cfg.Audit.Output)
			if !ok {
				return fmt.Errorf("audit-tail: audit.output %q is not a file: sink", cfg.Audit.Output)
			}
			return tailFile(cmd.Context(), path, follow, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep reading as new entries are appended")
	return cmd
}

func auditFilePath(output string) (string, bool) {
	const prefix = "file:"
	if len(output) <= len(prefix) || output[:len(prefix)] != prefix {
		return "", false
	}
	return output[len(prefix):], true
}

// tailFile prints path's existing contents, then, if follow is set, polls
// for appended lines until ctx is cancelled.
func tailFile(ctx context.Context, path string, follow bool, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		fmt.Fprintln(out, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if !follow {
		return nil
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				fmt.Fprintln(out, scanner.Text())
			}
		}
	}
}

func buildTokenCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		email      string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a local development bearer token for a user id",
		Long: `Issue a bearer token signed with auth.jwt_secret.

Intended for local development only; production deployments are expected
to front this core with a real identity provider and treat it as a
relying party that only verifies tokens, never issues them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath(configPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			svc := authctx.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
			token, err := svc.Issue(userID, email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&userID, "user", "", "User id to embed in the token's subject claim")
	cmd.Flags().StringVar(&email, "email", "", "Email to embed in the token's claims")
	cmd.MarkFlagRequired("user")
	return cmd
}
