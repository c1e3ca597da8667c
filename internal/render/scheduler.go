// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package render drives insert animations. A frame loop runs only while at
// least one tween is registered.
package render

import (
	"context"
	"log/slog"
	"time"

	"github.com/holomush/theatre/internal/insert"
	"github.com/holomush/theatre/internal/loop"
	"github.com/holomush/theatre/internal/notify"
)

// FrameInterval is the time between two frames.
const FrameInterval = time.Second / 60

// Source lists the inserts to render and removes broken ones.
type Source interface {
	// ActiveInserts returns the stage's inserts in dock order.
	ActiveInserts() []*insert.Insert
	// Eject destroys an insert whose render node has gone missing.
	Eject(ins *insert.Insert)
}

// Painter draws a frame.
type Painter interface {
	Paint(inserts []*insert.Insert)
}

// Scheduler counts outstanding tweens and runs the frame loop while the
// count is positive. All methods must be called on the event loop.
type Scheduler struct {
	sched    loop.Scheduler
	notifier notify.Notifier
	source   Source
	painter  Painter

	count  int
	frame  loop.Timer
	frames uint64
}

// NewScheduler creates an idle scheduler.
func NewScheduler(sched loop.Scheduler, notifier notify.Notifier) *Scheduler {
	return &Scheduler{sched: sched, notifier: notifier}
}

// Bind sets the insert source. Must be called before the first tween.
func (s *Scheduler) Bind(src Source) {
	s.source = src
}

// SetPainter attaches a painter that draws each frame.
func (s *Scheduler) SetPainter(p Painter) {
	s.painter = p
}

// Add registers tw in slot. A tween already running in that slot is killed
// and its registration released before tw is counted.
func (s *Scheduler) Add(ins *insert.Insert, slot insert.Slot, tw *insert.Tween) {
	if old := ins.PutTween(slot, tw); old != nil {
		old.Kill()
		s.release(ins, slot)
	}
	s.count++
	accumulator.Set(float64(s.count))
	if s.count > 0 && s.frame == nil {
		s.schedule()
	}
}

// Remove kills and releases the tween in slot. It reports whether one was
// registered.
func (s *Scheduler) Remove(ins *insert.Insert, slot insert.Slot) bool {
	tw, ok := ins.DropTween(slot)
	if !ok {
		return false
	}
	tw.Kill()
	s.release(ins, slot)
	return true
}

// Clear removes every tween on ins. Persistent slots survive when
// keepPersistent is set.
func (s *Scheduler) Clear(ins *insert.Insert, keepPersistent bool) {
	for _, slot := range ins.Slots() {
		if keepPersistent && slot.Persistent() {
			continue
		}
		s.Remove(ins, slot)
	}
}

// Count returns the accumulator value.
func (s *Scheduler) Count() int {
	return s.count
}

// Running reports whether a frame is scheduled.
func (s *Scheduler) Running() bool {
	return s.frame != nil
}

// Frames returns the number of frames rendered.
func (s *Scheduler) Frames() uint64 {
	return s.frames
}

// RenderNow paints immediately without stepping tweens.
func (s *Scheduler) RenderNow() {
	s.paint(s.live())
}

func (s *Scheduler) release(ins *insert.Insert, slot insert.Slot) {
	s.count--
	accumulator.Set(float64(s.count))
	if s.count < 0 {
		slog.Error("render accumulator negative",
			"count", s.count, "img_id", ins.ImgID, "slot", slot.String())
		if s.notifier != nil {
			s.notifier.Notify(context.Background(), notify.LevelError, notify.AccumulatorNegative, s.count)
		}
	}
	if s.count <= 0 && s.frame != nil {
		s.frame.Stop()
		s.frame = nil
	}
}

func (s *Scheduler) schedule() {
	s.frame = s.sched.AfterFunc(FrameInterval, s.tick)
}

func (s *Scheduler) tick() {
	s.frame = nil
	now := s.sched.Now()

	inserts := s.live()
	for _, ins := range inserts {
		for _, slot := range ins.Slots() {
			tw, ok := ins.Tween(slot)
			if !ok {
				continue
			}
			if !tw.Step(now) {
				continue
			}
			// a completion callback may register a new tween in the same slot
			if cur, _ := ins.Tween(slot); cur == tw {
				ins.DropTween(slot)
				s.release(ins, slot)
			}
			tw.Finish()
		}
	}

	s.paint(inserts)
	if s.count > 0 && s.frame == nil {
		s.schedule()
	}
}

// live hot-ejects inserts whose render node is gone and returns the rest.
func (s *Scheduler) live() []*insert.Insert {
	if s.source == nil {
		return nil
	}
	all := s.source.ActiveInserts()
	out := make([]*insert.Insert, 0, len(all))
	for _, ins := range all {
		if ins.HasNode() {
			out = append(out, ins)
			continue
		}
		slog.Warn("insert lost its render node, ejecting", "img_id", ins.ImgID)
		hotEjects.Inc()
		for _, slot := range ins.Slots() {
			s.Remove(ins, slot)
		}
		if s.notifier != nil {
			s.notifier.Notify(context.Background(), notify.LevelWarn, notify.HotEject, ins.Name)
		}
		s.source.Eject(ins)
	}
	return out
}

func (s *Scheduler) paint(inserts []*insert.Insert) {
	s.frames++
	framesRendered.Inc()
	if s.painter != nil {
		s.painter.Paint(inserts)
	}
}
