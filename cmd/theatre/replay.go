// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/theatre/internal/config"
	"github.com/holomush/theatre/internal/core"
	"github.com/holomush/theatre/internal/journal"
	"github.com/holomush/theatre/internal/loader"
	"github.com/holomush/theatre/internal/loop/looptest"
	"github.com/holomush/theatre/internal/notify"
	"github.com/holomush/theatre/internal/transport"
)

const (
	replayPeerID = "replay"
	// replaySettle lets exits, resync applies and tweens finish after the
	// last entry.
	replaySettle = 10 * time.Second
)

// NewReplayCmd creates the replay subcommand.
func NewReplayCmd() *cobra.Command {
	var framePath string

	cmd := &cobra.Command{
		Use:   "replay <journal>",
		Short: "Rebuild a stage from a journal and print its snapshot",
		Long: `Feed every envelope of a journal, sent and received, through a fresh
stage on a simulated clock and print the resulting resync snapshot as
JSON. Useful to see what a peer's stage looked like after a session.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, "replay")
			if err != nil {
				return err
			}
			return runReplay(cmd, cfg, args[0], framePath)
		},
	}

	cmd.Flags().StringVar(&framePath, "frame", "", "also write the final frame as PNG to this path")

	return cmd
}

func runReplay(cmd *cobra.Command, cfg *config.Config, path, framePath string) error {
	ctx := context.Background()

	replayCfg := *cfg
	replayCfg.PeerID = replayPeerID
	if replayCfg.UserID == "" {
		replayCfg.UserID = replayPeerID
	}
	cat, oracle, err := loadCast(&replayCfg)
	if err != nil {
		return err
	}

	hub := transport.NewHub()
	ep, err := hub.Join(replayPeerID)
	if err != nil {
		return err //nolint:wrapcheck // hub errors are coded
	}
	clock := looptest.NewManual()
	notices := &notify.Recorder{}
	eng, err := core.New(ctx, core.Options{
		Config:   &replayCfg,
		Actors:   cat,
		Access:   oracle,
		Channel:  ep,
		Loader:   loader.NewPlaceholder(clock),
		Notifier: notices,
		Sched:    clock,
	})
	if err != nil {
		return err //nolint:wrapcheck // engine errors are coded
	}
	defer func() { _ = eng.Close() }()

	var (
		last    time.Time
		entries int
	)
	err = journal.ReadFile(path, func(e journal.Entry) error {
		if !last.IsZero() && e.At.After(last) {
			clock.Advance(e.At.Sub(last))
		}
		last = e.At
		entries++
		if derr := eng.Bus().Dispatch(ctx, e.Envelope); derr != nil {
			slog.Debug("journal entry skipped", "id", e.Envelope.ID, "error", derr)
		}
		clock.Drain()
		return nil
	})
	if err != nil {
		return err //nolint:wrapcheck // journal errors are coded
	}
	clock.Advance(replaySettle)

	snap, err := eng.Snapshot(ctx)
	if err != nil {
		return err //nolint:wrapcheck // engine errors are coded
	}
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	slog.Info("journal replayed", "path", path, "entries", entries,
		"inserts", len(snap.InsertData), "notices", len(notices.Notices()))

	if framePath != "" {
		if err := writeFrame(eng, framePath); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
	return nil
}
