// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package stage

import (
	"context"
	"log/slog"
	"slices"

	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/internal/scene"
	"github.com/holomush/theatre/pkg/errutil"
)

// Snapshot returns the full resync state of the stage. Exiting inserts are
// left out.
func (s *Stage) Snapshot() protocol.ResyncPayload {
	active := s.active()
	entries := make([]protocol.InsertData, len(active))
	for i, ins := range active {
		entries[i] = ins.Snapshot(i)
	}
	return protocol.ResyncPayload{InsertData: entries, Narrator: s.narrator}
}

// Clear destroys every insert immediately, without exit animations.
func (s *Stage) Clear() {
	for _, ins := range slices.Clone(s.inserts) {
		s.destroy(ins)
	}
	s.reorder.Cancel()
	s.speaking = ""
	s.regime = RegimeEmpty
}

// Prestage stages the actors of a snapshot so their textures load before
// the inserts are injected.
func (s *Stage) Prestage(ctx context.Context, entries []protocol.InsertData) {
	for _, e := range entries {
		if _, err := s.stageActor(ctx, scene.Stage{InsertID: e.InsertID}, Remote); err != nil {
			slog.DebugContext(ctx, "snapshot actor not staged", "img_id", e.InsertID)
		}
	}
}

// InjectAll injects snapshot entries in sort order, each at the right end
// of the dock.
func (s *Stage) InjectAll(ctx context.Context, entries []protocol.InsertData) {
	for _, e := range sorted(entries) {
		ev := scene.EnterScene{InsertID: e.InsertID, Emotions: e.Emotions}
		if err := s.Apply(ctx, ev, Remote); err != nil {
			errutil.LogError(slog.Default(), "snapshot inject failed", err)
		}
	}
}

// Settle snaps every snapshot entry to its exact position, mirror state
// and text style.
func (s *Stage) Settle(ctx context.Context, entries []protocol.InsertData) {
	for _, e := range sorted(entries) {
		ins, ok := s.Insert(e.InsertID)
		if !ok {
			continue
		}
		s.moveTo(ins, e.Position, false)
		if e.Emotions != ins.Emotion {
			ev := scene.Emote{InsertID: ins.ImgID, Emotions: e.Emotions}
			if err := s.Apply(ctx, ev, Remote); err != nil {
				errutil.LogError(slog.Default(), "snapshot emote failed", err)
			}
		}
	}
	s.reflow()
}

func sorted(entries []protocol.InsertData) []protocol.InsertData {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b protocol.InsertData) int {
		return a.SortIndex - b.SortIndex
	})
	return out
}
