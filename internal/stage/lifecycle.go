// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package stage

import (
	"context"
	"log/slog"
	"slices"

	"github.com/holomush/theatre/internal/actor"
	"github.com/holomush/theatre/internal/insert"
	"github.com/holomush/theatre/internal/loader"
	"github.com/holomush/theatre/internal/notify"
	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/internal/scene"
	"github.com/holomush/theatre/pkg/errutil"
)

// Inject puts an actor on stage as the local user.
func (s *Stage) Inject(ctx context.Context, actorID string, side insert.Side, emotion protocol.Emotions) error {
	return s.Apply(ctx, scene.EnterScene{
		InsertID: canonical(actorID),
		Emotions: emotion,
		IsLeft:   side == insert.SideLeft,
	}, Local)
}

// Remove takes an insert off stage as the local user.
func (s *Stage) Remove(ctx context.Context, imgID string) error {
	return s.Apply(ctx, scene.ExitScene{InsertID: canonical(imgID)}, Local)
}

// StageActor adds an actor to the roster and pre-warms its textures.
func (s *Stage) StageActor(ctx context.Context, actorID string) error {
	return s.Apply(ctx, scene.Stage{InsertID: canonical(actorID)}, Local)
}

// Unstage drops an actor from the roster and removes its insert.
func (s *Stage) Unstage(ctx context.Context, imgID string) error {
	imgID = canonical(imgID)
	if _, ok := s.Insert(imgID); ok {
		if err := s.Remove(ctx, imgID); err != nil {
			return err
		}
	}
	delete(s.roster, imgID)
	delete(s.overrides, imgID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == imgID })
	return nil
}

// Staged returns the roster in staging order.
func (s *Stage) Staged() []StagedActor {
	out := make([]StagedActor, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.roster[id])
	}
	return out
}

// Activate toggles the identity the local user speaks as. Activating an
// actor that is not on stage injects it first.
func (s *Stage) Activate(ctx context.Context, imgID string) error {
	imgID = canonical(imgID)
	if s.speaking == imgID {
		s.retireSpeaker()
		s.speaking = ""
		return nil
	}
	if !s.owns(imgID) {
		slog.InfoContext(ctx, "activate denied", "img_id", imgID, "user_id", s.userID)
		s.notify(ctx, notify.LevelWarn, notify.PermissionDenied, s.displayName(imgID))
		return ErrPermissionDenied("activate", imgID)
	}
	if _, ok := s.Insert(imgID); !ok {
		if err := s.Apply(ctx, scene.EnterScene{InsertID: imgID, Emotions: s.defaults[s.userID]}, Local); err != nil {
			return err
		}
	}
	ins, ok := s.Insert(imgID)
	if !ok {
		return ErrInsertNotFound(imgID)
	}

	s.retireSpeaker()
	s.speaking = imgID
	ins.RenderOrder = len(s.inserts)
	label := ins.Label
	s.render.Add(ins, insert.SlotPulse, insert.NewTween(s.sched.Now(), PulseDuration, func(p float64) {
		label.Alpha = 1 - 0.4*p
	}, insert.Repeat()))
	return nil
}

func (s *Stage) retireSpeaker() {
	prev, ok := s.Insert(s.speaking)
	if !ok {
		return
	}
	s.render.Remove(prev, insert.SlotPulse)
	prev.RenderOrder = prev.Order
	if prev.Label != nil {
		prev.Label.Alpha = 1
	}
}

func (s *Stage) inject(ctx context.Context, ev scene.EnterScene, origin Origin) (scene.Event, error) {
	info, err := s.actors.Lookup(ev.InsertID)
	if err != nil {
		errutil.LogError(slog.Default(), "inject aborted", err)
		if origin == Local {
			s.notify(ctx, notify.LevelError, notify.ActorNotFound, ev.InsertID)
		}
		return nil, err
	}
	imgID := info.ImgID()
	if _, ok := s.Insert(imgID); ok {
		slog.DebugContext(ctx, "insert already on stage", "img_id", imgID, "origin", origin.String())
		return nil, nil
	}
	s.register(info)

	emotion := ev.Emotions
	if origin == Local {
		emotion = emotion.Merge(s.defaults[s.userID])
	}
	emotion = emotion.Merge(info.Settings.Style.Emotions())
	if emotion.Emote == "" {
		emotion.Emote = actor.DefaultEmote
	}

	ins := insert.New(imgID, info.Name, emotion)
	ins.OptAlign = info.OptAlign
	ins.PlayerOwned = s.access.IsPlayerOwned(imgID)
	if info.Settings.Scale > 0 {
		ins.Portrait.Scale = info.Settings.Scale
	}
	ins.Portrait.OffsetX, ins.Portrait.OffsetY = info.Settings.OffsetX, info.Settings.OffsetY
	ins.Goal.Mirror = info.Settings.Mirror
	ins.Portrait.Mirror = info.Settings.Mirror
	ins.Portrait.ScaleX = scaleFor(info.Settings.Mirror)

	// a left entry onto an empty stage docks right
	side := insert.SideRight
	if ev.IsLeft && len(s.active()) > 0 {
		side = insert.SideLeft
	}
	if side == insert.SideLeft {
		s.inserts = slices.Insert(s.inserts, 0, ins)
	} else {
		s.inserts = append(s.inserts, ins)
	}
	s.place(ins)

	portrait := ins.Portrait
	portrait.Lift = EnterLift
	portrait.Alpha = 0
	s.render.Add(ins, insert.SlotEnter, insert.NewTween(s.sched.Now(), EnterDuration, func(p float64) {
		portrait.Lift = EnterLift * (1 - p)
		portrait.Alpha = p
	}))
	s.loadTexture(ctx, ins)
	s.reorder.Trigger()

	slog.DebugContext(ctx, "insert injected",
		"img_id", imgID, "side", side.String(), "origin", origin.String())
	return scene.EnterScene{InsertID: imgID, Emotions: emotion, IsLeft: side == insert.SideLeft}, nil
}

func (s *Stage) remove(ctx context.Context, ev scene.ExitScene) (scene.Event, error) {
	ins, ok := s.Insert(ev.InsertID)
	if !ok {
		slog.DebugContext(ctx, "remove of absent insert ignored", "img_id", ev.InsertID)
		return nil, nil
	}
	ins.Deleting = true
	ins.CancelDecay()
	if s.speaking == ins.ImgID {
		s.retireSpeaker()
		s.speaking = ""
	}
	s.render.Remove(ins, insert.SlotPortraitMove)
	s.render.Remove(ins, insert.SlotTyping)

	dir := -1.0
	if ins.ExitOrientation == insert.OrientRight {
		dir = 1
	}
	portrait := ins.Portrait
	fromX, fromAlpha := portrait.X, portrait.Alpha
	s.render.Add(ins, insert.SlotExit, insert.NewTween(s.sched.Now(), ExitDuration, func(p float64) {
		portrait.X = fromX + dir*ExitDistance*p
		portrait.Alpha = fromAlpha * (1 - p)
	}))

	s.sched.AfterFunc(RemoveSettleDelay, func() {
		s.destroy(ins)
		s.reorder.Trigger()
	})
	return scene.ExitScene{InsertID: ins.ImgID}, nil
}

// destroy drops ins from the stage without animation.
func (s *Stage) destroy(ins *insert.Insert) {
	idx := slices.Index(s.inserts, ins)
	if idx < 0 {
		return
	}
	s.inserts = slices.Delete(s.inserts, idx, idx+1)
	ins.Deleting = true
	ins.CancelDecay()
	s.render.Clear(ins, false)
	ins.Detach()
	if s.speaking == ins.ImgID {
		if _, ok := s.Insert(ins.ImgID); !ok {
			s.speaking = ""
		}
	}
	activeInserts.Set(float64(len(s.active())))
}

func (s *Stage) present(ins *insert.Insert) bool {
	return slices.Contains(s.inserts, ins) && ins.HasNode()
}

// register adds info to the roster unless it is already staged.
func (s *Stage) register(info actor.Info) *StagedActor {
	imgID := info.ImgID()
	if st, ok := s.roster[imgID]; ok {
		st.Info = info
		return st
	}
	st := &StagedActor{ImgID: imgID, Info: info}
	s.roster[imgID] = st
	s.order = append(s.order, imgID)
	return st
}

func (s *Stage) stageActor(ctx context.Context, ev scene.Stage, origin Origin) (scene.Event, error) {
	info, err := s.actors.Lookup(ev.InsertID)
	if err != nil {
		errutil.LogError(slog.Default(), "stage aborted", err)
		if origin == Local {
			s.notify(ctx, notify.LevelError, notify.ActorNotFound, ev.InsertID)
		}
		return nil, err
	}
	st := s.register(info)

	emotes := append([]string{actor.DefaultEmote}, info.EmoteNames()...)
	if style := info.Settings.Style.Emote; style != "" && !slices.Contains(emotes, style) {
		emotes = append(emotes, style)
	}
	resources := make([]loader.Resource, 0, len(emotes))
	for _, emote := range emotes {
		resources = append(resources, s.resourceFor(st.ImgID, emote))
	}
	s.gate.AddSprites(resources, func(err error) {
		if err != nil {
			errutil.LogError(slog.Default(), "pre-warm failed", err)
			return
		}
		st.Prewarmed = true
	})
	return scene.Stage{InsertID: st.ImgID}, nil
}

// resourceFor returns the texture resource of an emote, honouring textures
// added at runtime.
func (s *Stage) resourceFor(imgID, emote string) loader.Resource {
	if emote == "" {
		emote = actor.DefaultEmote
	}
	if res, ok := s.overrides[imgID][emote]; ok {
		return res
	}
	st, ok := s.roster[imgID]
	if !ok {
		return loader.Resource{}
	}
	return loader.Resource{Name: st.Info.ResourceName(emote), Path: st.Info.EmotePath(emote)}
}

// loadTexture loads the texture of ins's current emote and applies it if
// the emote has not changed meanwhile. A failure removes the insert from
// the stage, even one already showing an older texture.
func (s *Stage) loadTexture(ctx context.Context, ins *insert.Insert) {
	res := s.resourceFor(ins.ImgID, ins.Emotion.Emote)
	s.gate.AddSprites([]loader.Resource{res}, func(err error) {
		if err != nil {
			s.loadFailed(ctx, ins, err)
			return
		}
		s.applyTexture(ins, res.Name)
	})
}

func (s *Stage) applyTexture(ins *insert.Insert, name string) {
	if !s.present(ins) {
		return
	}
	if s.resourceFor(ins.ImgID, ins.Emotion.Emote).Name != name {
		return
	}
	tex, ok := s.gate.Loader().Texture(name)
	if !ok {
		return
	}
	ins.Portrait.Texture = tex
	ins.Portrait.TextureKey = name
	ins.Loaded = true
	s.render.RenderNow()
}

func (s *Stage) loadFailed(ctx context.Context, ins *insert.Insert, err error) {
	errutil.LogError(slog.Default(), "texture load failed", err)
	s.notify(ctx, notify.LevelError, notify.LoadFailed, ins.Name)
	if !s.present(ins) {
		return
	}
	s.destroy(ins)
	s.reorder.Trigger()
}
