// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package resync restores a peer's stage from another peer's full
// snapshot. The first answer addressed to a pending request wins; a GM can
// also push its stage to every player.
package resync

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/theatre/internal/access"
	"github.com/holomush/theatre/internal/loop"
	"github.com/holomush/theatre/internal/notify"
	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/internal/scene"
	"github.com/holomush/theatre/internal/stage"
	"github.com/holomush/theatre/pkg/errutil"
)

// Resync timing.
const (
	RequestTimeout    = 5 * time.Second
	ResyncSettleDelay = 1500 * time.Millisecond
	ResyncApplyDelay  = 1000 * time.Millisecond
)

// CodeInvalidKind marks a request kind a peer may not send.
const CodeInvalidKind = "INVALID_RESYNC_KIND"

// Stage is the part of the stage a resync reads and rebuilds.
type Stage interface {
	Snapshot() protocol.ResyncPayload
	Clear()
	Prestage(ctx context.Context, entries []protocol.InsertData)
	InjectAll(ctx context.Context, entries []protocol.InsertData)
	Settle(ctx context.Context, entries []protocol.InsertData)
	Apply(ctx context.Context, ev scene.Event, origin stage.Origin) error
}

// Publisher broadcasts resync messages.
type Publisher interface {
	Publish(ctx context.Context, typ protocol.MessageType, subtype string, data any) error
}

// Deps are the collaborators of a Coordinator.
type Deps struct {
	// PeerID is the sender id responses must be addressed to.
	PeerID    string
	UserID    string
	Sched     loop.Scheduler
	Stage     Stage
	Publisher Publisher
	Access    access.Oracle
	Notifier  notify.Notifier
}

// Coordinator runs the resync protocol for one peer. All methods must be
// called on the event loop.
type Coordinator struct {
	peerID   string
	userID   string
	sched    loop.Scheduler
	stage    Stage
	pub      Publisher
	access   access.Oracle
	notifier notify.Notifier

	pending     loop.Timer
	pendingKind protocol.ResyncKind
	run         *applyRun
}

type applyRun struct {
	timer loop.Timer
}

// New creates an idle coordinator.
func New(d Deps) *Coordinator {
	return &Coordinator{
		peerID:   d.PeerID,
		userID:   d.UserID,
		sched:    d.Sched,
		stage:    d.Stage,
		pub:      d.Publisher,
		access:   d.Access,
		notifier: d.Notifier,
	}
}

// Awaiting reports whether a request is waiting for its answer.
func (c *Coordinator) Awaiting() bool { return c.pending != nil }

// Applying reports whether a snapshot is being applied.
func (c *Coordinator) Applying() bool { return c.run != nil }

// Request asks the other peers for their stage. Only the any and gm kinds
// can be requested; a newer request replaces a pending one.
func (c *Coordinator) Request(ctx context.Context, kind protocol.ResyncKind) error {
	if kind != protocol.ResyncAny && kind != protocol.ResyncGM {
		return oops.Code(CodeInvalidKind).With("kind", string(kind)).Errorf("cannot request a %q resync", kind)
	}
	c.Cancel()
	if err := c.pub.Publish(ctx, protocol.TypeReqResync, string(kind), protocol.ReqResyncPayload{}); err != nil {
		return err //nolint:wrapcheck // publisher errors are coded
	}
	requests.WithLabelValues(string(kind)).Inc()

	var timer loop.Timer
	timer = c.sched.AfterFunc(RequestTimeout, func() {
		if c.pending != timer {
			return
		}
		c.pending = nil
		outcomes.WithLabelValues("timeout").Inc()
		slog.InfoContext(ctx, "resync request timed out", "kind", string(kind))
		c.notify(ctx, notify.LevelWarn, notify.ResyncTimeout)
	})
	c.pending = timer
	c.pendingKind = kind
	slog.DebugContext(ctx, "resync requested", "kind", string(kind), "peer_id", c.peerID)
	return nil
}

// Cancel drops the pending request, if any. Answers arriving afterwards are
// ignored.
func (c *Coordinator) Cancel() {
	if c.pending == nil {
		return
	}
	c.pending.Stop()
	c.pending = nil
}

// PushPlayers sends this stage to every player peer. Only a GM may push.
func (c *Coordinator) PushPlayers(ctx context.Context) error {
	if !c.isGM() {
		c.notify(ctx, notify.LevelWarn, notify.NotGM)
		return stage.ErrNotGM("resync players")
	}
	snap := c.stage.Snapshot()
	narrator := snap.Narrator
	payload := protocol.ReqResyncPayload{InsertData: snap.InsertData, Narrator: &narrator}
	if err := c.pub.Publish(ctx, protocol.TypeReqResync, string(protocol.ResyncPlayers), payload); err != nil {
		return err //nolint:wrapcheck // publisher errors are coded
	}
	requests.WithLabelValues(string(protocol.ResyncPlayers)).Inc()
	return nil
}

// HandleRequest answers or applies a request from another peer.
func (c *Coordinator) HandleRequest(ctx context.Context, senderID string, kind protocol.ResyncKind, p protocol.ReqResyncPayload) {
	switch kind {
	case protocol.ResyncAny:
		if c.Awaiting() {
			slog.DebugContext(ctx, "resync request ignored while awaiting our own", "sender_id", senderID)
			return
		}
		c.respond(ctx, senderID)
	case protocol.ResyncGM:
		if !c.isGM() {
			return
		}
		c.respond(ctx, senderID)
	case protocol.ResyncPlayers:
		if c.isGM() {
			return
		}
		narrator := false
		if p.Narrator != nil {
			narrator = *p.Narrator
		}
		outcomes.WithLabelValues("pushed").Inc()
		c.apply(ctx, senderID, protocol.ResyncPayload{TargetID: c.peerID, InsertData: p.InsertData, Narrator: narrator})
	default:
		slog.WarnContext(ctx, "unknown resync request kind", "kind", string(kind), "sender_id", senderID)
	}
}

func (c *Coordinator) respond(ctx context.Context, senderID string) {
	snap := c.stage.Snapshot()
	snap.TargetID = senderID
	kind := protocol.ResyncPlayer
	if c.isGM() {
		kind = protocol.ResyncGM
	}
	if err := c.pub.Publish(ctx, protocol.TypeResyncEvent, string(kind), snap); err != nil {
		errutil.LogErrorContext(ctx, slog.Default(), "resync response failed", err)
		return
	}
	responses.WithLabelValues(string(kind)).Inc()
	slog.DebugContext(ctx, "resync response sent", "target_id", senderID, "inserts", len(snap.InsertData))
}

// HandleResponse applies the first answer addressed to this peer while a
// request is pending.
func (c *Coordinator) HandleResponse(ctx context.Context, senderID string, kind protocol.ResyncKind, p protocol.ResyncPayload) {
	if p.TargetID != c.peerID {
		return
	}
	if !c.Awaiting() {
		outcomes.WithLabelValues("late").Inc()
		slog.DebugContext(ctx, "late resync answer ignored", "sender_id", senderID, "kind", string(kind))
		return
	}
	slog.DebugContext(ctx, "resync answered",
		"sender_id", senderID, "kind", string(kind), "requested", string(c.pendingKind))
	c.Cancel()
	outcomes.WithLabelValues("answered").Inc()
	c.apply(ctx, senderID, p)
}

// apply rebuilds the stage from p in three steps. A newer snapshot
// abandons a run still in progress.
func (c *Coordinator) apply(ctx context.Context, senderID string, p protocol.ResyncPayload) {
	if c.run != nil {
		c.run.timer.Stop()
	}
	run := &applyRun{}
	c.run = run

	c.stage.Clear()
	slog.InfoContext(ctx, "applying resync", "sender_id", senderID, "inserts", len(p.InsertData))

	run.timer = c.sched.AfterFunc(ResyncSettleDelay, func() {
		if c.run != run {
			return
		}
		c.stage.Prestage(ctx, p.InsertData)
		c.stage.InjectAll(ctx, p.InsertData)

		run.timer = c.sched.AfterFunc(ResyncApplyDelay, func() {
			if c.run != run {
				return
			}
			c.run = nil
			c.stage.Settle(ctx, p.InsertData)
			if err := c.stage.Apply(ctx, scene.Narrator{Active: p.Narrator}, stage.Remote); err != nil {
				errutil.LogError(slog.Default(), "resync narrator failed", err)
			}
			applied.Inc()
			c.notify(ctx, notify.LevelInfo, notify.ResyncApplied, senderID)
		})
	})
}

func (c *Coordinator) isGM() bool {
	return c.access != nil && c.access.IsGM(c.userID)
}

func (c *Coordinator) notify(ctx context.Context, level notify.Level, key notify.Key, args ...any) {
	if c.notifier != nil {
		c.notifier.Notify(ctx, level, key, args...)
	}
}
