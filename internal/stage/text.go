// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package stage

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/holomush/theatre/internal/config"
	"github.com/holomush/theatre/internal/insert"
	"github.com/holomush/theatre/internal/notify"
	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/internal/scene"
)

// Speak shows a line in an insert's text box and schedules it to fade.
// Every peer receives the line through chat, so it is not published.
func (s *Stage) Speak(ctx context.Context, imgID, text string) error {
	ins, ok := s.Insert(imgID)
	if !ok {
		return ErrInsertNotFound(imgID)
	}
	box := ins.TextBox
	box.Text = text
	box.Alpha = 0
	s.render.Remove(ins, insert.SlotTextDecay)
	s.render.Add(ins, insert.SlotTextFlyin,
		insert.NewTween(s.sched.Now(), FlyinDuration, insert.Lerp(&box.Alpha, 0, 1)))

	delay := config.DefaultTextDecayMin
	if s.settings != nil {
		delay = s.settings.DecayFor(utf8.RuneCountInString(text))
	}
	ins.SetDecayTimer(s.sched.AfterFunc(delay, func() {
		ins.ClearDecayTimer()
		s.fadeText(ins)
	}))
	slog.DebugContext(ctx, "line shown", "img_id", ins.ImgID, "decay", delay.String())
	return nil
}

// DecayText fades an insert's line now, for every peer.
func (s *Stage) DecayText(ctx context.Context, imgID string) error {
	return s.Apply(ctx, scene.DecayText{InsertID: canonical(imgID)}, Local)
}

func (s *Stage) decayText(_ context.Context, ev scene.DecayText) (scene.Event, error) {
	ins, ok := s.Insert(ev.InsertID)
	if !ok {
		return nil, ErrInsertNotFound(ev.InsertID)
	}
	ins.CancelDecay()
	if ins.TextBox.Text == "" {
		return nil, nil
	}
	s.fadeText(ins)
	return scene.DecayText{InsertID: ins.ImgID}, nil
}

func (s *Stage) fadeText(ins *insert.Insert) {
	if !s.present(ins) || ins.TextBox.Text == "" {
		return
	}
	box := ins.TextBox
	s.render.Remove(ins, insert.SlotTextFlyin)
	s.render.Add(ins, insert.SlotTextDecay, insert.NewTween(s.sched.Now(), FadeDuration,
		insert.Lerp(&box.Alpha, box.Alpha, 0),
		insert.OnComplete(func() {
			box.Text = ""
			box.Alpha = 1
		})))
}

// NoteTyping shows the typing indicator on the insert a user types as and
// remembers the user's emote defaults. The indicator hides once the user
// has been quiet for TypingTimeout.
func (s *Stage) NoteTyping(ctx context.Context, userID string, p protocol.TypingPayload) {
	s.defaults[userID] = p.Emotions
	imgID := ""
	if p.InsertID != "" {
		imgID = canonical(p.InsertID)
	}

	st, ok := s.typing[userID]
	if ok {
		st.timer.Stop()
		prev := st.imgID
		st.imgID = imgID
		if prev != imgID {
			s.hideTyping(prev)
		}
	} else {
		st = &typingState{imgID: imgID}
		s.typing[userID] = st
	}
	st.timer = s.sched.AfterFunc(TypingTimeout, func() {
		s.stopTyping(userID, st)
	})

	ins, ok := s.Insert(imgID)
	if !ok {
		return
	}
	ins.Typing.Visible = true
	ins.Typing.Alpha = 1
	if _, running := ins.Tween(insert.SlotTyping); running {
		return
	}
	ind := ins.Typing
	s.render.Add(ins, insert.SlotTyping, insert.NewTween(s.sched.Now(), TypingBobDuration,
		insert.Lerp(&ind.Bob, 0, -4), insert.Repeat()))
	slog.DebugContext(ctx, "typing", "user_id", userID, "img_id", imgID)
}

// Typing returns the insert userID is typing as, if any.
func (s *Stage) Typing(userID string) (string, bool) {
	st, ok := s.typing[userID]
	if !ok {
		return "", false
	}
	return st.imgID, true
}

func (s *Stage) stopTyping(userID string, st *typingState) {
	if s.typing[userID] != st {
		return
	}
	delete(s.typing, userID)
	s.hideTyping(st.imgID)
}

func (s *Stage) hideTyping(imgID string) {
	for _, other := range s.typing {
		if other.imgID == imgID {
			return
		}
	}
	ins, ok := s.Insert(imgID)
	if !ok {
		return
	}
	s.render.Remove(ins, insert.SlotTyping)
	ins.Typing.Visible = false
	ins.Typing.Bob = 0
}

// SetNarrator shows or hides the narrator bar for every peer.
func (s *Stage) SetNarrator(ctx context.Context, active bool) error {
	return s.Apply(ctx, scene.Narrator{Active: active}, Local)
}

func (s *Stage) setNarrator(ctx context.Context, ev scene.Narrator) (scene.Event, error) {
	if s.narrator == ev.Active {
		return nil, nil
	}
	s.narrator = ev.Active
	if s.onNarrator != nil {
		s.onNarrator(ev.Active)
	}
	key := notify.NarratorOff
	if ev.Active {
		key = notify.NarratorOn
	}
	s.notify(ctx, notify.LevelInfo, key)
	s.render.RenderNow()
	return scene.Narrator{Active: ev.Active}, nil
}
