// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package core wires one theatre peer together: event loop, stage, render
// scheduler, loader gate, scene event bus and resync coordinator.
package core

import (
	"context"
	"image"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/samber/oops"

	"github.com/holomush/theatre/internal/access"
	"github.com/holomush/theatre/internal/actor"
	"github.com/holomush/theatre/internal/bus"
	"github.com/holomush/theatre/internal/config"
	"github.com/holomush/theatre/internal/journal"
	"github.com/holomush/theatre/internal/loader"
	"github.com/holomush/theatre/internal/loop"
	"github.com/holomush/theatre/internal/notify"
	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/internal/render"
	"github.com/holomush/theatre/internal/resync"
	"github.com/holomush/theatre/internal/stage"
	"github.com/holomush/theatre/internal/transport"
	"github.com/holomush/theatre/pkg/errutil"
)

// CodeInvalidOptions marks an engine that cannot be built.
const CodeInvalidOptions = "INVALID_ENGINE_OPTIONS"

// Options configure an Engine. Actors, Access and Channel are required.
type Options struct {
	Config  *config.Config
	Actors  actor.Provider
	Access  access.Oracle
	Channel transport.Channel
	// Loader defaults to a texture loader over Config.Assets, or to
	// placeholder swatches when no assets are configured.
	Loader loader.Loader
	// Notifier defaults to localized notices written to the log.
	Notifier notify.Notifier
	Journal  journal.Journal
	// Sched defaults to an event loop driven by Run. Tests pass a manual
	// scheduler and drive it themselves.
	Sched loop.Scheduler
}

// Engine is one running peer.
type Engine struct {
	cfg     *config.Config
	peerID  string
	loop    *loop.Loop
	sched   loop.Scheduler
	channel transport.Channel
	journal journal.Journal

	render *render.Scheduler
	comp   *render.Compositor
	gate   *loader.Gate
	stage  *stage.Stage
	bus    *bus.Bus
	resync *resync.Coordinator

	ready     atomic.Bool
	closeOnce sync.Once
}

// New builds an engine. ctx bounds background asset fetches.
func New(ctx context.Context, opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	switch {
	case opts.Actors == nil:
		return nil, oops.Code(CodeInvalidOptions).Errorf("actor provider is required")
	case opts.Access == nil:
		return nil, oops.Code(CodeInvalidOptions).Errorf("access oracle is required")
	case opts.Channel == nil:
		return nil, oops.Code(CodeInvalidOptions).Errorf("broadcast channel is required")
	case cfg.UserID == "":
		return nil, oops.Code(CodeInvalidOptions).Errorf("user id is required")
	}

	e := &Engine{
		cfg:     cfg,
		peerID:  cfg.PeerID,
		sched:   opts.Sched,
		channel: opts.Channel,
		journal: opts.Journal,
	}
	if e.peerID == "" {
		e.peerID = protocol.NewID().String()
	}
	if e.sched == nil {
		e.loop = loop.New()
		e.sched = e.loop
	}

	notifier := opts.Notifier
	if notifier == nil {
		cat, err := notify.LoadCatalog()
		if err != nil {
			return nil, err //nolint:wrapcheck // catalog errors are already scoped
		}
		notifier = notify.NewLocalized(cat, cfg.Locale, nil)
	}

	ld := opts.Loader
	if ld == nil {
		var err error
		if ld, err = defaultLoader(ctx, e.sched, cfg.Assets); err != nil {
			return nil, err
		}
	}

	e.render = render.NewScheduler(e.sched, notifier)
	e.comp = render.NewCompositor(render.Layout{
		Width:  cfg.Width,
		Height: cfg.Height,
	}, cfg)
	e.render.SetPainter(e.comp)
	e.gate = loader.NewGate(e.sched, ld)

	e.bus = bus.New(bus.Config{
		PeerID:  e.peerID,
		Channel: opts.Channel,
		Sched:   e.sched,
		Journal: opts.Journal,
	})
	e.stage = stage.New(stage.Deps{
		Sched:    e.sched,
		Render:   e.render,
		Gate:     e.gate,
		Actors:   opts.Actors,
		Access:   opts.Access,
		Settings: cfg,
		Notifier: notifier,
		UserID:   cfg.UserID,
	})
	e.stage.SetPublisher(e.bus)
	e.stage.OnNarrator(e.comp.SetNarrator)

	e.resync = resync.New(resync.Deps{
		PeerID:    e.peerID,
		UserID:    cfg.UserID,
		Sched:     e.sched,
		Stage:     e.stage,
		Publisher: e.bus,
		Access:    opts.Access,
		Notifier:  notifier,
	})
	e.bus.Bind(e.stage, e.resync)

	slog.Info("engine ready", "peer_id", e.peerID, "user_id", cfg.UserID)
	return e, nil
}

func defaultLoader(ctx context.Context, sched loop.Scheduler, assets string) (loader.Loader, error) {
	switch {
	case assets == "":
		return loader.NewPlaceholder(sched), nil
	case strings.HasPrefix(assets, "http://"), strings.HasPrefix(assets, "https://"):
		f, err := loader.NewHTTPFetcher(assets)
		if err != nil {
			return nil, err //nolint:wrapcheck // fetcher errors are coded
		}
		return loader.NewTextureLoader(ctx, sched, f), nil
	default:
		return loader.NewTextureLoader(ctx, sched, loader.FSFetcher{FS: os.DirFS(assets)}), nil
	}
}

// PeerID returns the sender id of this peer.
func (e *Engine) PeerID() string { return e.peerID }

// Ready reports whether Run is processing envelopes.
func (e *Engine) Ready() bool { return e.ready.Load() }

// Stage returns the stage. It may only be used on the event loop.
func (e *Engine) Stage() *stage.Stage { return e.stage }

// Bus returns the scene event bus.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// Resync returns the resync coordinator. It may only be used on the event
// loop.
func (e *Engine) Resync() *resync.Coordinator { return e.resync }

// Render returns the render scheduler. It may only be used on the event
// loop.
func (e *Engine) Render() *render.Scheduler { return e.render }

// Run drives the event loop, when the engine owns one, and dispatches
// received envelopes until ctx is cancelled or the channel closes.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if e.loop != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.loop.Run(ctx)
		}()
	}

	e.ready.Store(true)
	err := e.bus.Run(ctx)
	e.ready.Store(false)
	cancel()
	wg.Wait()
	return err //nolint:wrapcheck // bus errors are coded
}

// Post queues fn on the event loop. Safe from any goroutine.
func (e *Engine) Post(fn func()) {
	e.sched.Post(fn)
}

// Do runs fn on the event loop and returns its error. With a manual
// scheduler fn runs on the calling goroutine.
func (e *Engine) Do(ctx context.Context, fn func(st *stage.Stage) error) error {
	if e.loop == nil {
		return fn(e.stage)
	}
	var err error
	if doErr := e.loop.Do(ctx, func() { err = fn(e.stage) }); doErr != nil {
		return doErr //nolint:wrapcheck // already wrapped by the loop
	}
	return err
}

// RequestResync asks the other peers for their stage.
func (e *Engine) RequestResync(ctx context.Context, kind protocol.ResyncKind) error {
	return e.Do(ctx, func(*stage.Stage) error {
		return e.resync.Request(ctx, kind)
	})
}

// PushPlayers sends this stage to every player. GM only.
func (e *Engine) PushPlayers(ctx context.Context) error {
	return e.Do(ctx, func(*stage.Stage) error {
		return e.resync.PushPlayers(ctx)
	})
}

// Typing shows the local typing indicator on the insert the user speaks as
// and tells the other peers.
func (e *Engine) Typing(ctx context.Context, emotion protocol.Emotions) error {
	var p protocol.TypingPayload
	err := e.Do(ctx, func(st *stage.Stage) error {
		p = protocol.TypingPayload{InsertID: st.Speaking(), Emotions: emotion}
		st.NoteTyping(ctx, st.UserID(), p)
		return nil
	})
	if err != nil {
		return err
	}
	return e.bus.PublishTyping(ctx, p)
}

// Snapshot returns the current resync state of the stage.
func (e *Engine) Snapshot(ctx context.Context) (protocol.ResyncPayload, error) {
	var snap protocol.ResyncPayload
	err := e.Do(ctx, func(st *stage.Stage) error {
		snap = st.Snapshot()
		return nil
	})
	return snap, err
}

// Frame returns a copy of the last painted frame.
func (e *Engine) Frame() *image.RGBA {
	return e.comp.Snapshot()
}

// WriteFrame encodes the last painted frame as PNG.
func (e *Engine) WriteFrame(w io.Writer) error {
	return e.comp.WritePNG(w)
}

// Close leaves the broadcast channel and closes the journal.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if cerr := e.channel.Close(); cerr != nil {
			errutil.LogError(slog.Default(), "closing channel failed", cerr)
			err = cerr
		}
		if e.journal != nil {
			if jerr := e.journal.Close(); jerr != nil {
				err = jerr
			}
		}
	})
	return err
}
