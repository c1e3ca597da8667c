// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/theatre/internal/transport/ws"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// NewRelayCmd creates the relay subcommand.
func NewRelayCmd() *cobra.Command {
	var constraint string

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the websocket relay that fans envelopes out to peers",
		Long: `Run the websocket relay. Every envelope a peer sends is delivered to
every other connected peer. Peers must send a hello with a protocol
version accepted by --accept before anything is relayed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, "relay")
			if err != nil {
				return err
			}
			return runRelay(cmd.Context(), cmd, cfg.ListenAddr, cfg.MetricsAddr, constraint)
		},
	}

	cmd.Flags().StringVar(&constraint, "accept", ws.DefaultConstraint, "semver constraint on peer protocol versions")

	return cmd
}

func runRelay(ctx context.Context, cmd *cobra.Command, listenAddr, metricsAddr, constraint string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	relay, err := ws.NewServer(constraint)
	if err != nil {
		return fmt.Errorf("invalid --accept: %w", err)
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
	}
	httpSrv := &http.Server{Handler: relay, ReadHeaderTimeout: readHeaderTimeout}

	obs, err := startObservability(ctx, cancel, metricsAddr, "relay", func() bool { return true })
	if err != nil {
		_ = listener.Close()
		return err
	}
	defer stopObservability(obs)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	cmd.Printf("Relay listening on %s\n", listener.Addr())
	slog.Info("relay ready", "addr", listener.Addr().String(), "accept", constraint)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case runErr = <-errChan:
		runErr = fmt.Errorf("relay server error: %w", runErr)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("relay shutdown incomplete", "error", err)
	}
	relay.Close()

	slog.Info("relay stopped")
	return runErr
}
