package cli

import (
	"context"
	"fmt"
	"time"

	"resumatch/internal/analyzer"
	"resumatch/internal/client"
	"resumatch/internal/config"
	"resumatch/internal/errors"
	"resumatch/internal/observability"
	"resumatch/internal/relay"
	"resumatch/internal/session"

	"github.com/spf13/cobra"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Serve analysis progress streams over HTTP",
	Long: `Start a local HTTP server that accepts analysis uploads and re-serves
their progress as server-sent events.

Available endpoints:
- POST /analyze: multipart upload (resume, job_description), answered with an event stream
- GET /health: Health check endpoint
- GET /stats: Relay statistics and rate limiting info
- GET /metrics: Prometheus metrics, when observability is enabled

Modes:
- remote: forward uploads to the backend with the signed-in session
- local: analyze in process with Gemini`,
	Args: cobra.NoArgs,
	RunE: runRelay,
}

func init() {
	relayCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	relayCmd.Flags().String("host", "", "Host to bind to (default from config)")
	relayCmd.Flags().String("mode", "", "Relay mode: remote or local (default from config)")
	_ = relayCmd.RegisterFlagCompletionFunc("mode", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{relay.ModeRemote, relay.ModeLocal}, cobra.ShellCompDirectiveNoFileComp
	})
}

// applyRelayFlags overrides relay settings with flags given on the command line
func applyRelayFlags(cmd *cobra.Command, cfg *config.RelayConfig) {
	override := func(name string, dst *string) {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetString(name)
		}
	}
	override("port", &cfg.Port)
	override("host", &cfg.Host)
	override("mode", &cfg.Mode)
}

func runRelay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx).With("component", "relay")

	relayCfg := cfg.Relay
	applyRelayFlags(cmd, &relayCfg)

	obs, err := observability.NewObservabilityManager(observability.GetObservabilityConfig(cfg, Version), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Observability shutdown failed", "error", err)
		}
	}()

	serverCfg := relay.ServerConfig{
		Version:           Version,
		Relay:             relayCfg,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		Observability:     obs,
	}

	switch relayCfg.Mode {
	case relay.ModeLocal:
		svc, err := analyzer.NewService(ctx, cfg, logger, analyzer.WithObservability(obs))
		if err != nil {
			return fmt.Errorf("failed to create analyzer: %w", err)
		}
		defer func() {
			if err := svc.Close(); err != nil {
				logger.Warn("Failed to close analyzer", "error", err)
			}
		}()
		serverCfg.Local = svc
	default:
		acc, err := relaySession(ctx, cfg, logger)
		if err != nil {
			return err
		}
		c, err := client.New(cfg.API, acc, logger,
			client.WithStreamConfig(cfg.Stream),
			client.WithObservability(obs))
		if err != nil {
			return err
		}
		serverCfg.Remote = c
		serverCfg.Session = acc
	}

	srv, err := relay.NewServer(serverCfg, logger)
	if err != nil {
		return err
	}

	if vault := getVaultFromContext(ctx); vault != nil && cfg.Vault.Secrets.RelayAPIKeys != "" && cfg.Vault.PollInterval > 0 {
		if _, err := srv.WatchAPIKeys(ctx, vault, cfg.Vault.Secrets.RelayAPIKeys, cfg.Vault.PollInterval); err != nil {
			logger.Warn("Relay API keys will not follow Vault", "error", err)
		}
	}
	return srv.Run(ctx)
}

// relaySession returns the token store used by a remote relay. A file store is
// mirrored into memory and followed, so signing in or out in another terminal
// takes effect without a restart.
func relaySession(ctx context.Context, cfg *config.Config, logger *errors.Logger) (session.Accessor, error) {
	acc, err := newSession(ctx)
	if err != nil {
		return nil, err
	}
	store, ok := acc.(*session.FileStore)
	if !ok {
		return acc, nil
	}

	cache := session.NewMemoryStore("")
	if _, err := relay.WatchSession(ctx, store, cache, cfg.Session.WatchDebounce, logger); err != nil {
		logger.Warn("Session file cannot be watched, using it directly", "path", store.Path(), "error", err)
		return store, nil
	}
	logger.Debug("Following session file", "path", store.Path())
	return cache, nil
}
