// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package loop

import "time"

// Debouncer coalesces bursts of triggers into one call of fn. It must only
// be used from the loop goroutine.
type Debouncer struct {
	sched Scheduler
	delay time.Duration
	fn    func()
	timer Timer
}

// NewDebouncer creates a debouncer that calls fn once delay has passed
// without another Trigger.
func NewDebouncer(sched Scheduler, delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{sched: sched, delay: delay, fn: fn}
}

// Trigger cancels any pending call and schedules a new one.
func (d *Debouncer) Trigger() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.sched.AfterFunc(d.delay, func() {
		d.timer = nil
		d.fn()
	})
}

// Cancel drops a pending call.
func (d *Debouncer) Cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	return d.timer != nil
}
