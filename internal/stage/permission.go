// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package stage

import (
	"context"
	"log/slog"

	"github.com/holomush/theatre/internal/notify"
	"github.com/holomush/theatre/internal/scene"
)

// permit checks whether the local user may perform an event.
type permit struct {
	s   *Stage
	ctx context.Context
}

var _ scene.Visitor = (*permit)(nil)

func (p *permit) owner(subtype scene.Subtype, imgID string) error {
	imgID = canonical(imgID)
	if p.s.owns(imgID) {
		return nil
	}
	return p.deny(subtype, imgID)
}

func (p *permit) deny(subtype scene.Subtype, imgID string) error {
	slog.InfoContext(p.ctx, "permission denied",
		"subtype", string(subtype), "img_id", imgID, "user_id", p.s.userID)
	p.s.notify(p.ctx, notify.LevelWarn, notify.PermissionDenied, p.s.displayName(imgID))
	return ErrPermissionDenied(string(subtype), imgID)
}

func (p *permit) VisitEnterScene(ev scene.EnterScene) error {
	return p.owner(ev.Subtype(), ev.InsertID)
}

func (p *permit) VisitExitScene(ev scene.ExitScene) error {
	return p.owner(ev.Subtype(), ev.InsertID)
}

func (p *permit) VisitPositionUpdate(ev scene.PositionUpdate) error {
	return p.owner(ev.Subtype(), ev.InsertID)
}

// VisitPush requires the moved insert and the insert currently holding the
// target edge.
func (p *permit) VisitPush(ev scene.Push) error {
	if err := p.owner(ev.Subtype(), ev.InsertID); err != nil {
		return err
	}
	active := p.s.active()
	if len(active) == 0 {
		return nil
	}
	edge := active[len(active)-1]
	if ev.ToFront {
		edge = active[0]
	}
	if edge.ImgID == canonical(ev.InsertID) {
		return nil
	}
	return p.owner(ev.Subtype(), edge.ImgID)
}

func (p *permit) VisitSwap(ev scene.Swap) error {
	if p.s.owns(canonical(ev.InsertID1)) || p.s.owns(canonical(ev.InsertID2)) {
		return nil
	}
	return p.deny(ev.Subtype(), canonical(ev.InsertID1))
}

// VisitMove requires the destination insert.
func (p *permit) VisitMove(ev scene.Move) error {
	return p.owner(ev.Subtype(), ev.InsertID2)
}

func (p *permit) VisitEmote(ev scene.Emote) error {
	return p.owner(ev.Subtype(), ev.InsertID)
}

func (p *permit) VisitAddTexture(ev scene.AddTexture) error {
	return p.owner(ev.Subtype(), ev.InsertID)
}

func (p *permit) VisitAddAllTextures(ev scene.AddAllTextures) error {
	return p.owner(ev.Subtype(), ev.InsertID)
}

func (p *permit) VisitStage(ev scene.Stage) error {
	return p.owner(ev.Subtype(), ev.InsertID)
}

func (p *permit) VisitNarrator(ev scene.Narrator) error {
	if p.s.access.IsGM(p.s.userID) {
		return nil
	}
	slog.InfoContext(p.ctx, "narrator toggle denied", "user_id", p.s.userID)
	p.s.notify(p.ctx, notify.LevelWarn, notify.NotGM)
	return ErrNotGM(string(ev.Subtype()))
}

func (p *permit) VisitDecayText(ev scene.DecayText) error {
	return p.owner(ev.Subtype(), ev.InsertID)
}

func (p *permit) VisitRenderInsert(scene.RenderInsert) error {
	return nil
}
