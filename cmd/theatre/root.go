// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/theatre/internal/config"
	"github.com/holomush/theatre/internal/logging"
	"github.com/holomush/theatre/internal/observability"
)

// NewRootCmd creates the root command for the theatre CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "theatre",
		Short: "Theatre - shared character inserts for a chat scene",
		Long: `Theatre keeps a stage of character portraits in sync across every
peer in a scene. A relay fans scene events out over websockets; peers
apply them, animate the dock and resynchronize when they fall behind.`,
		SilenceUsage: true,
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewRelayCmd())
	cmd.AddCommand(NewPeerCmd())
	cmd.AddCommand(NewReplayCmd())
	cmd.AddCommand(NewValidateActorsCmd())
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}

// loadConfig merges the config file with the command's flags and sets up
// logging for service.
func loadConfig(cmd *cobra.Command, service string) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err //nolint:wrapcheck // config errors are coded
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := setupLogging(service, cfg); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return cfg, nil
}

// setupLogging configures the default slog logger.
func setupLogging(service string, cfg *config.Config) error {
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("invalid log format %q: must be 'json' or 'text'", cfg.LogFormat)
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return err //nolint:wrapcheck // already names the level
	}
	logging.SetDefault(logging.Options{
		Service: service,
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		PeerID:  cfg.PeerID,
	})
	return nil
}

// startObservability starts the metrics/health server when addr is set. The
// returned server is nil when observability is disabled.
func startObservability(ctx context.Context, cancel context.CancelFunc, addr, role string, ready observability.ReadinessChecker) (*observability.Server, error) {
	if addr == "" {
		return nil, nil
	}
	srv := observability.NewServer(addr, ready)
	errCh, err := srv.Start()
	if err != nil {
		return nil, fmt.Errorf("failed to start observability server: %w", err)
	}
	srv.Metrics().Info.WithLabelValues(role, version).Set(1)
	go monitorServerErrors(ctx, cancel, errCh, "observability")
	slog.Info("observability server started", "addr", srv.Addr())
	return srv, nil
}

// stopObservability shuts srv down, if it was started.
func stopObservability(srv *observability.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		slog.Warn("failed to stop observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a background server fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
