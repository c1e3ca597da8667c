// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package loader

import (
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/theatre/internal/loop"
)

// BusyRetryDelay is how long the gate waits before re-checking a busy loader.
const BusyRetryDelay = 200 * time.Millisecond

type request struct {
	resources []Resource
	done      func(err error)
}

// Gate queues sprite requests and hands them to the loader one at a time.
// All methods must be called on the event loop.
type Gate struct {
	sched  loop.Scheduler
	loader Loader

	queue    []request
	retry    loop.Timer
	inflight bool
}

// NewGate creates a gate in front of l.
func NewGate(sched loop.Scheduler, l Loader) *Gate {
	return &Gate{sched: sched, loader: l}
}

// AddSprites registers resources that are not yet known and loads them.
// done runs once the request has been served, with the load error if any.
// Resources already registered are skipped; a request whose resources are
// all known completes without touching the loader.
func (g *Gate) AddSprites(resources []Resource, done func(err error)) {
	for _, res := range resources {
		if res.Name == "" || res.Path == "" {
			err := oops.Code(CodeInvalidSprite).
				With("name", res.Name).
				With("path", res.Path).
				Errorf("sprite needs a name and a path")
			if done != nil {
				done(err)
			}
			return
		}
	}
	g.queue = append(g.queue, request{resources: resources, done: done})
	queueDepth.Set(float64(len(g.queue)))
	g.pump()
}

// Pending returns the number of queued requests, including the one in flight.
func (g *Gate) Pending() int {
	n := len(g.queue)
	if g.inflight {
		n++
	}
	return n
}

// Loader returns the loader behind the gate.
func (g *Gate) Loader() Loader {
	return g.loader
}

func (g *Gate) pump() {
	for len(g.queue) > 0 {
		// a done callback may have re-entered the gate
		if g.inflight || g.retry != nil {
			return
		}
		if g.loader.Busy() {
			busyRetries.Inc()
			g.retry = g.sched.AfterFunc(BusyRetryDelay, func() {
				g.retry = nil
				g.pump()
			})
			return
		}

		req := g.queue[0]
		g.queue = g.queue[1:]
		queueDepth.Set(float64(len(g.queue)))

		added, err := g.register(req.resources)
		if err != nil {
			g.finish(req, err)
			continue
		}
		if added == 0 {
			g.finish(req, nil)
			continue
		}

		g.inflight = true
		if err := g.loader.Load(func(loadErr error) {
			g.inflight = false
			g.finish(req, loadErr)
			g.pump()
		}); err != nil {
			g.inflight = false
			g.finish(req, err)
			continue
		}
		return
	}
}

func (g *Gate) register(resources []Resource) (int, error) {
	added := 0
	for _, res := range resources {
		if g.loader.Has(res.Name) {
			continue
		}
		if err := g.loader.Add(res); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

func (g *Gate) finish(req request, err error) {
	if err != nil {
		loadsTotal.WithLabelValues(resultError).Inc()
		slog.Warn("sprite load failed", "resources", len(req.resources), "error", err)
	} else {
		loadsTotal.WithLabelValues(resultOK).Inc()
	}
	if req.done != nil {
		req.done(err)
	}
}
