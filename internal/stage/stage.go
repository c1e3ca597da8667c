// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package stage owns the inserts on one peer's stage and every operation
// that mutates them. Local operations are permission checked and published
// as scene events; remote ones are applied as received.
package stage

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/holomush/theatre/internal/access"
	"github.com/holomush/theatre/internal/actor"
	"github.com/holomush/theatre/internal/config"
	"github.com/holomush/theatre/internal/insert"
	"github.com/holomush/theatre/internal/loader"
	"github.com/holomush/theatre/internal/loop"
	"github.com/holomush/theatre/internal/notify"
	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/internal/render"
	"github.com/holomush/theatre/internal/scene"
	"github.com/holomush/theatre/pkg/errutil"
)

// Timing of stage operations.
const (
	RemoveSettleDelay = 1000 * time.Millisecond
	ReorderDebounce   = 250 * time.Millisecond
	TypingTimeout     = 6 * time.Second

	EnterDuration     = 400 * time.Millisecond
	ExitDuration      = 400 * time.Millisecond
	SlideDuration     = 250 * time.Millisecond
	MoveDuration      = 300 * time.Millisecond
	FlipDuration      = 250 * time.Millisecond
	PulseDuration     = 800 * time.Millisecond
	TypingBobDuration = 600 * time.Millisecond
	FlyinDuration     = 300 * time.Millisecond
	FadeDuration      = time.Second
)

// Pixel distances of the enter and exit animations.
const (
	EnterLift    = 120.0
	ExitDistance = 240.0
)

// Origin tells Apply where an event came from.
type Origin uint8

// Event origins.
const (
	// Local events are permission checked and published.
	Local Origin = iota
	// Remote events were published by another peer and are applied as is.
	Remote
)

func (o Origin) String() string {
	if o == Remote {
		return "remote"
	}
	return "local"
}

// Publisher sends locally applied scene events to the other peers.
type Publisher interface {
	PublishScene(ctx context.Context, ev scene.Event) error
}

// Deps are the collaborators a Stage needs.
type Deps struct {
	Sched    loop.Scheduler
	Render   *render.Scheduler
	Gate     *loader.Gate
	Actors   actor.Provider
	Access   access.Oracle
	Settings config.Settings
	Notifier notify.Notifier
	// UserID is the user this peer acts for.
	UserID string
}

// StagedActor is a roster entry. An actor can be staged without being on
// stage.
type StagedActor struct {
	ImgID     string
	Info      actor.Info
	Prewarmed bool
}

type typingState struct {
	imgID string
	timer loop.Timer
}

// Stage is the set of inserts one peer shows. All methods must be called on
// the event loop.
type Stage struct {
	sched     loop.Scheduler
	render    *render.Scheduler
	gate      *loader.Gate
	actors    actor.Provider
	access    access.Oracle
	settings  config.Settings
	notifier  notify.Notifier
	userID    string
	publisher Publisher

	inserts []*insert.Insert
	roster  map[string]*StagedActor
	order   []string

	overrides map[string]map[string]loader.Resource
	typing    map[string]*typingState
	defaults  map[string]protocol.Emotions

	speaking   string
	narrator   bool
	onNarrator func(active bool)

	reorder *loop.Debouncer
	regime  Regime
	reflows int
}

var _ render.Source = (*Stage)(nil)

// New creates an empty stage and binds it as the render scheduler's source.
func New(d Deps) *Stage {
	s := &Stage{
		sched:     d.Sched,
		render:    d.Render,
		gate:      d.Gate,
		actors:    d.Actors,
		access:    d.Access,
		settings:  d.Settings,
		notifier:  d.Notifier,
		userID:    d.UserID,
		roster:    make(map[string]*StagedActor),
		overrides: make(map[string]map[string]loader.Resource),
		typing:    make(map[string]*typingState),
		defaults:  make(map[string]protocol.Emotions),
	}
	s.reorder = loop.NewDebouncer(d.Sched, ReorderDebounce, s.reflow)
	d.Render.Bind(s)
	return s
}

// SetPublisher attaches the publisher used for local events.
func (s *Stage) SetPublisher(p Publisher) {
	s.publisher = p
}

// OnNarrator registers a callback run whenever the narrator bar toggles.
func (s *Stage) OnNarrator(fn func(active bool)) {
	s.onNarrator = fn
}

// UserID returns the user this stage acts for.
func (s *Stage) UserID() string {
	return s.userID
}

// Apply performs ev. Local events are permission checked first and, once
// applied, published. Events that change nothing are not published.
func (s *Stage) Apply(ctx context.Context, ev scene.Event, origin Origin) error {
	subtype := string(ev.Subtype())
	if origin == Local {
		if err := ev.Accept(&permit{s: s, ctx: ctx}); err != nil {
			operations.WithLabelValues(subtype, resultDenied).Inc()
			return err
		}
	}

	a := &applier{s: s, ctx: ctx, origin: origin}
	if err := ev.Accept(a); err != nil {
		operations.WithLabelValues(subtype, resultError).Inc()
		return err
	}
	if a.out == nil {
		operations.WithLabelValues(subtype, resultNoop).Inc()
		return nil
	}
	operations.WithLabelValues(subtype, resultApplied).Inc()
	activeInserts.Set(float64(len(s.active())))

	if origin == Local && s.publisher != nil {
		if err := s.publisher.PublishScene(ctx, a.out); err != nil {
			errutil.LogError(slog.Default(), "publish scene event failed", err)
		}
	}
	return nil
}

// ActiveInserts implements render.Source. Inserts that are exiting are
// included until they are destroyed.
func (s *Stage) ActiveInserts() []*insert.Insert {
	return slices.Clone(s.inserts)
}

// Eject implements render.Source.
func (s *Stage) Eject(ins *insert.Insert) {
	slog.Warn("ejecting insert without render node", "img_id", ins.ImgID)
	s.destroy(ins)
	s.reorder.Trigger()
}

// Insert returns the non-deleting insert for an actor or theatre id.
func (s *Stage) Insert(id string) (*insert.Insert, bool) {
	imgID := canonical(id)
	for _, ins := range s.inserts {
		if ins.ImgID == imgID && !ins.Deleting {
			return ins, true
		}
	}
	return nil, false
}

// IDs returns the ids of the non-deleting inserts in dock order.
func (s *Stage) IDs() []string {
	active := s.active()
	ids := make([]string, len(active))
	for i, ins := range active {
		ids[i] = ins.ImgID
	}
	return ids
}

// Speaking returns the id the local user currently speaks as.
func (s *Stage) Speaking() string {
	return s.speaking
}

// Narrator reports whether the narrator bar is shown.
func (s *Stage) Narrator() bool {
	return s.narrator
}

// Defaults returns the emote defaults last announced by userID.
func (s *Stage) Defaults(userID string) protocol.Emotions {
	return s.defaults[userID]
}

// Regime returns the dock layout chosen by the last reflow.
func (s *Stage) Regime() Regime {
	return s.regime
}

// Reflows returns how many times the dock has been laid out.
func (s *Stage) Reflows() int {
	return s.reflows
}

// ReorderPending reports whether a debounced reflow is scheduled.
func (s *Stage) ReorderPending() bool {
	return s.reorder.Pending()
}

func (s *Stage) active() []*insert.Insert {
	out := make([]*insert.Insert, 0, len(s.inserts))
	for _, ins := range s.inserts {
		if !ins.Deleting {
			out = append(out, ins)
		}
	}
	return out
}

// canonical maps a plain actor id or a theatre id to the theatre id.
func canonical(id string) string {
	return insert.IDFor(insert.ActorIDOf(id))
}

func (s *Stage) owns(imgID string) bool {
	return s.access.IsActorOwner(s.userID, imgID)
}

func (s *Stage) displayName(imgID string) string {
	if ins, ok := s.Insert(imgID); ok {
		return ins.Name
	}
	if info, err := s.actors.Lookup(imgID); err == nil {
		return info.Name
	}
	return imgID
}

func (s *Stage) notify(ctx context.Context, level notify.Level, key notify.Key, args ...any) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, level, key, args...)
	}
}
