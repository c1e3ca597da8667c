// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package stage

import (
	"context"

	"github.com/holomush/theatre/internal/scene"
)

// applier mutates the stage for one event and records what to publish.
// A nil out means the event changed nothing.
type applier struct {
	s      *Stage
	ctx    context.Context
	origin Origin
	out    scene.Event
}

var _ scene.Visitor = (*applier)(nil)

func (a *applier) set(out scene.Event, err error) error {
	if err != nil {
		return err
	}
	a.out = out
	return nil
}

func (a *applier) VisitEnterScene(ev scene.EnterScene) error {
	return a.set(a.s.inject(a.ctx, ev, a.origin))
}

func (a *applier) VisitExitScene(ev scene.ExitScene) error {
	return a.set(a.s.remove(a.ctx, ev))
}

func (a *applier) VisitPositionUpdate(ev scene.PositionUpdate) error {
	return a.set(a.s.setPosition(a.ctx, ev))
}

func (a *applier) VisitPush(ev scene.Push) error {
	return a.set(a.s.push(a.ctx, ev))
}

func (a *applier) VisitSwap(ev scene.Swap) error {
	return a.set(a.s.swap(a.ctx, ev))
}

func (a *applier) VisitMove(ev scene.Move) error {
	return a.set(a.s.move(a.ctx, ev))
}

func (a *applier) VisitEmote(ev scene.Emote) error {
	return a.set(a.s.emote(a.ctx, ev))
}

func (a *applier) VisitAddTexture(ev scene.AddTexture) error {
	return a.set(a.s.addTexture(a.ctx, ev))
}

func (a *applier) VisitAddAllTextures(ev scene.AddAllTextures) error {
	return a.set(a.s.addAllTextures(a.ctx, ev))
}

func (a *applier) VisitStage(ev scene.Stage) error {
	return a.set(a.s.stageActor(a.ctx, ev, a.origin))
}

func (a *applier) VisitNarrator(ev scene.Narrator) error {
	return a.set(a.s.setNarrator(a.ctx, ev))
}

func (a *applier) VisitDecayText(ev scene.DecayText) error {
	return a.set(a.s.decayText(a.ctx, ev))
}

func (a *applier) VisitRenderInsert(ev scene.RenderInsert) error {
	return a.set(a.s.renderInsert(a.ctx, ev))
}
