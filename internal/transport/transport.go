// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package transport carries envelopes between theatre peers.
package transport

import (
	"context"

	"github.com/samber/oops"

	"github.com/holomush/theatre/internal/protocol"
)

// CodeClosed is the error code returned when publishing on a closed channel.
const CodeClosed = "CHANNEL_CLOSED"

// Channel is a broadcast channel shared by every peer in a scene. Envelopes
// published by a peer are delivered to every other peer, never echoed back.
type Channel interface {
	// Publish sends env to the other peers.
	Publish(ctx context.Context, env protocol.Envelope) error
	// Messages returns the envelopes received from other peers. The channel
	// is closed once the Channel is closed.
	Messages() <-chan protocol.Envelope
	// Close leaves the scene.
	Close() error
}

// ErrClosed reports a publish on a channel that has been closed.
func ErrClosed(peerID string) error {
	return oops.Code(CodeClosed).With("peer_id", peerID).Errorf("channel closed")
}
