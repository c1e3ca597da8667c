// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package insert

import (
	"math"
	"time"
)

// Tween is a time-bounded animation of one or more node properties.
type Tween struct {
	start    time.Time
	duration time.Duration
	repeat   bool
	apply    func(progress float64)
	done     func()
	killed   bool
}

// TweenOption configures a Tween.
type TweenOption func(*Tween)

// Repeat makes the tween run back and forth until killed.
func Repeat() TweenOption {
	return func(t *Tween) { t.repeat = true }
}

// OnComplete runs fn once the tween reaches its end. It does not run when
// the tween is killed.
func OnComplete(fn func()) TweenOption {
	return func(t *Tween) { t.done = fn }
}

// NewTween creates a tween that calls apply with eased progress in [0,1].
func NewTween(start time.Time, duration time.Duration, apply func(progress float64), opts ...TweenOption) *Tween {
	t := &Tween{
		start:    start,
		duration: duration,
		apply:    apply,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Lerp returns a progress callback that moves *field from `from` to `to`.
func Lerp(field *float64, from, to float64) func(float64) {
	return func(p float64) {
		*field = from + (to-from)*p
	}
}

// Step advances the tween to now and reports whether it finished.
func (t *Tween) Step(now time.Time) bool {
	if t.killed {
		return true
	}
	if t.duration <= 0 {
		t.apply(1)
		return !t.repeat
	}
	elapsed := now.Sub(t.start)
	if elapsed < 0 {
		elapsed = 0
	}
	raw := float64(elapsed) / float64(t.duration)
	if t.repeat {
		// yoyo: 0→1→0→1…
		cycle := math.Mod(raw, 2)
		if cycle > 1 {
			cycle = 2 - cycle
		}
		t.apply(easeInOut(cycle))
		return false
	}
	if raw >= 1 {
		t.apply(1)
		return true
	}
	t.apply(easeOut(raw))
	return false
}

// Finish runs the completion callback.
func (t *Tween) Finish() {
	if t.done != nil && !t.killed {
		t.done()
	}
}

// Kill stops the tween where it is. The completion callback never runs.
func (t *Tween) Kill() {
	t.killed = true
}

// Killed reports whether Kill was called.
func (t *Tween) Killed() bool {
	return t.killed
}

// Repeating reports whether the tween loops until killed.
func (t *Tween) Repeating() bool {
	return t.repeat
}

func easeOut(p float64) float64 {
	return 1 - (1-p)*(1-p)
}

func easeInOut(p float64) float64 {
	return (1 - math.Cos(p*math.Pi)) / 2
}
