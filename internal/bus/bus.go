// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package bus publishes this peer's envelopes and dispatches the envelopes
// of other peers onto the event loop.
package bus

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/theatre/internal/journal"
	"github.com/holomush/theatre/internal/loop"
	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/internal/scene"
	"github.com/holomush/theatre/internal/stage"
	"github.com/holomush/theatre/internal/transport"
	"github.com/holomush/theatre/pkg/errutil"
)

var tracer = otel.Tracer("theatre/bus")

// Stage receives remote scene and typing events.
type Stage interface {
	Apply(ctx context.Context, ev scene.Event, origin stage.Origin) error
	NoteTyping(ctx context.Context, userID string, p protocol.TypingPayload)
}

// Resync receives resync requests and responses.
type Resync interface {
	HandleRequest(ctx context.Context, senderID string, kind protocol.ResyncKind, p protocol.ReqResyncPayload)
	HandleResponse(ctx context.Context, senderID string, kind protocol.ResyncKind, p protocol.ResyncPayload)
}

// Config configures a Bus.
type Config struct {
	PeerID  string
	Channel transport.Channel
	Sched   loop.Scheduler
	// Journal is optional.
	Journal journal.Journal
}

// Bus is the scene event bus of one peer.
type Bus struct {
	peerID  string
	ch      transport.Channel
	sched   loop.Scheduler
	journal journal.Journal

	stage  Stage
	resync Resync
}

var _ stage.Publisher = (*Bus)(nil)

// New creates a bus. Bind must be called before envelopes are dispatched.
func New(cfg Config) *Bus {
	return &Bus{
		peerID:  cfg.PeerID,
		ch:      cfg.Channel,
		sched:   cfg.Sched,
		journal: cfg.Journal,
	}
}

// Bind sets the receivers of dispatched envelopes.
func (b *Bus) Bind(st Stage, rs Resync) {
	b.stage = st
	b.resync = rs
}

// PeerID returns the sender id stamped on published envelopes.
func (b *Bus) PeerID() string { return b.peerID }

// PublishScene broadcasts a locally applied scene event.
func (b *Bus) PublishScene(ctx context.Context, ev scene.Event) error {
	env, err := scene.Encode(b.peerID, ev)
	if err != nil {
		return err
	}
	return b.send(ctx, env)
}

// PublishTyping tells the other peers this user is typing.
func (b *Bus) PublishTyping(ctx context.Context, p protocol.TypingPayload) error {
	return b.Publish(ctx, protocol.TypeTypingEvent, "", p)
}

// Publish broadcasts an arbitrary message.
func (b *Bus) Publish(ctx context.Context, typ protocol.MessageType, subtype string, data any) error {
	env, err := protocol.NewEnvelope(b.peerID, typ, subtype, data)
	if err != nil {
		return err
	}
	return b.send(ctx, env)
}

func (b *Bus) send(ctx context.Context, env protocol.Envelope) error {
	env.ID = protocol.NewID().String()
	b.record(journal.Sent, env)
	if err := b.ch.Publish(ctx, env); err != nil {
		return err //nolint:wrapcheck // transport errors are coded
	}
	published.WithLabelValues(string(env.Type), env.Subtype).Inc()
	return nil
}

func (b *Bus) record(dir journal.Direction, env protocol.Envelope) {
	if b.journal == nil {
		return
	}
	if err := b.journal.Record(journal.Entry{At: b.sched.Now(), Direction: dir, Envelope: env}); err != nil {
		errutil.LogError(slog.Default(), "journal write failed", err)
	}
}

// Run posts every received envelope onto the event loop until ctx is
// cancelled or the channel closes.
func (b *Bus) Run(ctx context.Context) error {
	msgs := b.ch.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-msgs:
			if !ok {
				slog.InfoContext(ctx, "broadcast channel closed", "peer_id", b.peerID)
				return nil
			}
			b.sched.Post(func() {
				_ = b.Dispatch(ctx, env)
			})
		}
	}
}

// Dispatch routes one envelope. It must run on the event loop. Failures are
// logged and returned; the caller is free to ignore them.
func (b *Bus) Dispatch(ctx context.Context, env protocol.Envelope) (err error) {
	if env.SenderID == b.peerID {
		return nil
	}
	ctx, span := tracer.Start(ctx, "bus.dispatch",
		trace.WithAttributes(
			attribute.String("envelope.type", string(env.Type)),
			attribute.String("envelope.subtype", env.Subtype),
			attribute.String("envelope.sender", env.SenderID),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	b.record(journal.Received, env)
	received.WithLabelValues(string(env.Type), env.Subtype).Inc()

	switch env.Type {
	case protocol.TypeSceneEvent:
		err = b.dispatchScene(ctx, env)
	case protocol.TypeTypingEvent:
		var p protocol.TypingPayload
		if err = env.DecodeData(&p); err == nil {
			b.stage.NoteTyping(ctx, env.SenderID, p)
		}
	case protocol.TypeReqResync:
		var p protocol.ReqResyncPayload
		if len(env.Data) > 0 {
			err = env.DecodeData(&p)
		}
		if err == nil {
			b.resync.HandleRequest(ctx, env.SenderID, protocol.ResyncKind(env.Subtype), p)
		}
	case protocol.TypeResyncEvent:
		var p protocol.ResyncPayload
		if err = env.DecodeData(&p); err == nil {
			b.resync.HandleResponse(ctx, env.SenderID, protocol.ResyncKind(env.Subtype), p)
		}
	default:
		err = protocol.ErrUnknownType(env.Type)
	}
	if err != nil {
		dispatchFailures.WithLabelValues(string(env.Type)).Inc()
		errutil.LogErrorContext(ctx, slog.Default(), "envelope not dispatched", err)
	}
	return err
}

func (b *Bus) dispatchScene(ctx context.Context, env protocol.Envelope) error {
	ev, err := scene.Decode(env)
	if err != nil {
		return err
	}
	return b.stage.Apply(ctx, ev, stage.Remote)
}
