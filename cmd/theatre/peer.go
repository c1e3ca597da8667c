// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/holomush/theatre/internal/access"
	"github.com/holomush/theatre/internal/actor"
	"github.com/holomush/theatre/internal/config"
	"github.com/holomush/theatre/internal/core"
	"github.com/holomush/theatre/internal/journal"
	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/internal/transport/ws"
	"github.com/holomush/theatre/internal/xdg"
)

// frameInterval is how often --frames writes the current stage to disk.
const frameInterval = time.Second

// NewPeerCmd creates the peer subcommand.
func NewPeerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peer",
		Short: "Join a scene through a relay",
		Long: `Join a scene as --user-id through the relay at --relay. On every
(re)connect the peer asks the scene for its current stage. With --frames
the stage is rendered to PNG files once a second.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, "peer")
			if err != nil {
				return err
			}
			if cfg.PeerID == "" {
				cfg.PeerID = protocol.NewID().String()
				slog.SetDefault(slog.Default().With("peer_id", cfg.PeerID))
			}
			return runPeer(cmd.Context(), cmd, cfg)
		},
	}
}

// loadCast loads the actor catalog and grants GM rights to the configured
// users, plus the local user when --gm is set.
func loadCast(cfg *config.Config) (*actor.Catalog, *access.Static, error) {
	if cfg.Actors == "" {
		return nil, nil, fmt.Errorf("an actor catalog is required (--actors or %s)", xdg.ActorsFile())
	}
	cat, err := actor.LoadCatalog(cfg.Actors)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // catalog errors are coded
	}
	gms := cfg.GMs
	if cfg.GM && cfg.UserID != "" {
		gms = append(gms, cfg.UserID)
	}
	oracle, err := access.FromCatalog(cat.All(), gms...)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // access errors are coded
	}
	return cat, oracle, nil
}

// autoJournal makes the peer journal into the XDG state directory.
const autoJournal = "auto"

func openJournal(path, peerID string) (journal.Journal, error) {
	switch path {
	case "":
		return nil, nil
	case autoJournal:
		path = filepath.Join(xdg.JournalDir(), peerID+".jsonl.zst")
	}
	f, err := journal.Create(path)
	if err != nil {
		return nil, err //nolint:wrapcheck // journal errors are coded
	}
	slog.Info("journaling envelopes", "path", f.Path())
	return f, nil
}

func runPeer(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Relay == "" {
		return errors.New("--relay is required")
	}
	if cfg.UserID == "" {
		return errors.New("--user-id is required")
	}
	cat, oracle, err := loadCast(cfg)
	if err != nil {
		return err
	}
	jr, err := openJournal(cfg.Journal, cfg.PeerID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The engine does not exist yet when the client is created, so the
	// connect hook waits for it.
	engineReady := make(chan *core.Engine, 1)
	var eng *core.Engine
	client := ws.Connect(ctx, cfg.Relay, cfg.PeerID, ws.WithOnConnect(func() {
		var e *core.Engine
		select {
		case e = <-engineReady:
			engineReady <- e
		case <-ctx.Done():
			return
		}
		go func() {
			if err := e.RequestResync(ctx, protocol.ResyncAny); err != nil {
				slog.Warn("resync request failed", "error", err)
			}
		}()
	}))

	eng, err = core.New(ctx, core.Options{
		Config:  cfg,
		Actors:  cat,
		Access:  oracle,
		Channel: client,
		Journal: jr,
	})
	if err != nil {
		_ = client.Close()
		if jr != nil {
			_ = jr.Close()
		}
		return err //nolint:wrapcheck // engine errors are coded
	}
	defer func() { _ = eng.Close() }()
	engineReady <- eng

	obs, err := startObservability(ctx, cancel, cfg.MetricsAddr, "peer", eng.Ready)
	if err != nil {
		return err
	}
	defer stopObservability(obs)
	if obs != nil {
		obs.AttachStage(eng)
	}

	if cfg.Frames != "" {
		var dumped prometheus.Counter
		if obs != nil {
			dumped = obs.Metrics().FramesDumped
		}
		go dumpFrames(ctx, eng, cfg.Frames, dumped)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	runErr := make(chan error, 1)
	go func() { runErr <- eng.Run(ctx) }()

	cmd.Printf("Peer %s joined %s as %s\n", cfg.PeerID, cfg.Relay, cfg.UserID)
	slog.Info("peer ready", "peer_id", cfg.PeerID, "user_id", cfg.UserID, "relay", cfg.Relay, "gm", cfg.GM)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-runErr:
		if err != nil {
			return fmt.Errorf("peer stopped: %w", err)
		}
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}
	cancel()
	slog.Info("peer stopped")
	return nil
}

// dumpFrames writes the last painted frame to dir every frameInterval.
func dumpFrames(ctx context.Context, eng *core.Engine, dir string, dumped prometheus.Counter) {
	if err := xdg.EnsureDir(dir); err != nil {
		slog.Error("frame directory unavailable", "dir", dir, "error", err)
		return
	}
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		path := filepath.Join(dir, fmt.Sprintf("frame-%06d.png", n))
		if err := writeFrame(eng, path); err != nil {
			slog.Warn("frame dump failed", "path", path, "error", err)
			continue
		}
		if dumped != nil {
			dumped.Inc()
		}
	}
}

func writeFrame(eng *core.Engine, path string) (err error) {
	f, err := os.Create(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return eng.WriteFrame(f)
}
