// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package stage

import (
	"context"
	"log/slog"
	"strings"

	"github.com/holomush/theatre/internal/actor"
	"github.com/holomush/theatre/internal/insert"
	"github.com/holomush/theatre/internal/loader"
	"github.com/holomush/theatre/internal/notify"
	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/internal/scene"
	"github.com/holomush/theatre/pkg/errutil"
)

func scaleFor(mirror bool) float64 {
	if mirror {
		return -1
	}
	return 1
}

// SetPosition moves a portrait relative to its dock slot, keeping its
// mirror state.
func (s *Stage) SetPosition(ctx context.Context, imgID string, x, y float64) error {
	ins, ok := s.Insert(imgID)
	if !ok {
		return ErrInsertNotFound(imgID)
	}
	pos := ins.Goal
	pos.X, pos.Y = x, y
	return s.Apply(ctx, scene.PositionUpdate{InsertID: ins.ImgID, Position: pos}, Local)
}

// Mirror flips a portrait horizontally.
func (s *Stage) Mirror(ctx context.Context, imgID string) error {
	ins, ok := s.Insert(imgID)
	if !ok {
		return ErrInsertNotFound(imgID)
	}
	pos := ins.Goal
	pos.Mirror = !pos.Mirror
	return s.Apply(ctx, scene.PositionUpdate{InsertID: ins.ImgID, Position: pos}, Local)
}

// Reset clears a portrait's offset and mirror state.
func (s *Stage) Reset(ctx context.Context, imgID string) error {
	return s.Apply(ctx, scene.PositionUpdate{InsertID: canonical(imgID)}, Local)
}

// Emote changes the emote or text style of an insert. Empty fields keep
// their current value.
func (s *Stage) Emote(ctx context.Context, imgID string, emotion protocol.Emotions) error {
	return s.Apply(ctx, scene.Emote{InsertID: canonical(imgID), Emotions: emotion}, Local)
}

// AddTexture replaces the image of one emote.
func (s *Stage) AddTexture(ctx context.Context, imgID, emote, src, resName string) error {
	return s.Apply(ctx, scene.AddTexture{
		InsertID: canonical(imgID),
		Emote:    emote,
		ImgSrc:   src,
		ResName:  resName,
	}, Local)
}

// AddAllTextures replaces several emote images at once. Each resource
// name has the form "<theatre id>:<emote>".
func (s *Stage) AddAllTextures(ctx context.Context, imgID, emote string, refs []scene.TextureRef) error {
	return s.Apply(ctx, scene.AddAllTextures{InsertID: canonical(imgID), Emote: emote, ImgSrcs: refs}, Local)
}

// RenderInsert forces a repaint.
func (s *Stage) RenderInsert(ctx context.Context, imgID string) error {
	return s.Apply(ctx, scene.RenderInsert{InsertID: canonical(imgID)}, Local)
}

// setPosition is a no-op when the insert already rests at, or is already
// animating toward, the requested position.
func (s *Stage) setPosition(_ context.Context, ev scene.PositionUpdate) (scene.Event, error) {
	ins, ok := s.Insert(ev.InsertID)
	if !ok {
		return nil, ErrInsertNotFound(ev.InsertID)
	}
	if ins.Goal == ev.Position {
		return nil, nil
	}
	s.moveTo(ins, ev.Position, true)
	return scene.PositionUpdate{InsertID: ins.ImgID, Position: ev.Position}, nil
}

func (s *Stage) moveTo(ins *insert.Insert, pos protocol.Position, animate bool) {
	prev := ins.Goal
	ins.Goal = pos
	p := ins.Portrait
	p.Mirror = pos.Mirror

	if !animate {
		s.render.Remove(ins, insert.SlotPortraitMove)
		s.render.Remove(ins, insert.SlotPortraitFlip)
		p.X, p.Y = pos.X, pos.Y
		p.ScaleX = scaleFor(pos.Mirror)
		return
	}
	if prev.X != pos.X || prev.Y != pos.Y {
		fromX, fromY := p.X, p.Y
		s.render.Add(ins, insert.SlotPortraitMove, insert.NewTween(s.sched.Now(), MoveDuration, func(t float64) {
			p.X = fromX + (pos.X-fromX)*t
			p.Y = fromY + (pos.Y-fromY)*t
		}))
	}
	if prev.Mirror != pos.Mirror {
		s.render.Add(ins, insert.SlotPortraitFlip, insert.NewTween(s.sched.Now(), FlipDuration,
			insert.Lerp(&p.ScaleX, p.ScaleX, scaleFor(pos.Mirror))))
	}
}

func emoteName(e string) string {
	if e == "" {
		return actor.DefaultEmote
	}
	return e
}

func (s *Stage) emote(ctx context.Context, ev scene.Emote) (scene.Event, error) {
	ins, ok := s.Insert(ev.InsertID)
	if !ok {
		return nil, ErrInsertNotFound(ev.InsertID)
	}
	next := ev.Emotions.Merge(ins.Emotion)
	next.Emote = emoteName(next.Emote)
	if next == ins.Emotion {
		return nil, nil
	}
	changed := next.Emote != emoteName(ins.Emotion.Emote)
	ins.Emotion = next
	if changed {
		s.loadTexture(ctx, ins)
	}
	return scene.Emote{InsertID: ins.ImgID, Emotions: next}, nil
}

func (s *Stage) override(imgID, emote string, res loader.Resource) {
	m, ok := s.overrides[imgID]
	if !ok {
		m = make(map[string]loader.Resource)
		s.overrides[imgID] = m
	}
	m[emoteName(emote)] = res
}

func (s *Stage) addTexture(ctx context.Context, ev scene.AddTexture) (scene.Event, error) {
	imgID := canonical(ev.InsertID)
	res := loader.Resource{Name: ev.ResName, Path: ev.ImgSrc}
	s.override(imgID, ev.Emote, res)
	s.loadOverrides(ctx, imgID, []loader.Resource{res})
	return scene.AddTexture{InsertID: imgID, Emote: ev.Emote, ImgSrc: ev.ImgSrc, ResName: ev.ResName}, nil
}

func (s *Stage) addAllTextures(ctx context.Context, ev scene.AddAllTextures) (scene.Event, error) {
	imgID := canonical(ev.InsertID)
	resources := make([]loader.Resource, 0, len(ev.ImgSrcs))
	for _, ref := range ev.ImgSrcs {
		res := loader.Resource{Name: ref.ResName, Path: ref.ImgPath}
		emote, ok := strings.CutPrefix(ref.ResName, imgID+":")
		if !ok {
			emote = ev.Emote
		}
		s.override(imgID, emote, res)
		resources = append(resources, res)
	}
	if len(resources) == 0 {
		return nil, nil
	}
	s.loadOverrides(ctx, imgID, resources)
	return scene.AddAllTextures{InsertID: imgID, Emote: ev.Emote, ImgSrcs: ev.ImgSrcs}, nil
}

// loadOverrides loads replacement textures and re-renders the insert if
// one of them belongs to its current emote.
func (s *Stage) loadOverrides(ctx context.Context, imgID string, resources []loader.Resource) {
	s.gate.AddSprites(resources, func(err error) {
		ins, ok := s.Insert(imgID)
		if err != nil {
			errutil.LogError(slog.Default(), "texture replacement failed", err)
			name := imgID
			if ok {
				name = ins.Name
			}
			s.notify(ctx, notify.LevelError, notify.LoadFailed, name)
			return
		}
		if ok {
			s.applyTexture(ins, s.resourceFor(imgID, ins.Emotion.Emote).Name)
		}
	})
}

func (s *Stage) renderInsert(_ context.Context, ev scene.RenderInsert) (scene.Event, error) {
	ins, ok := s.Insert(ev.InsertID)
	if !ok {
		return nil, ErrInsertNotFound(ev.InsertID)
	}
	s.render.RenderNow()
	return scene.RenderInsert{InsertID: ins.ImgID}, nil
}
