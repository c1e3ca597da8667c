// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/theatre/internal/protocol"
)

// DefaultBuffer is the per-peer delivery buffer of a Hub.
const DefaultBuffer = 256

// Hub is an in-process broadcast channel. Each peer joins with its own
// endpoint; the relay server also uses a Hub to fan out between sockets.
type Hub struct {
	mu     sync.RWMutex
	peers  map[string]*Endpoint
	buffer int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		peers:  make(map[string]*Endpoint),
		buffer: DefaultBuffer,
	}
}

// Join adds a peer. Joining twice with the same id is an error.
func (h *Hub) Join(peerID string) (*Endpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.peers[peerID]; ok {
		return nil, oops.Code("PEER_EXISTS").With("peer_id", peerID).Errorf("peer already joined")
	}
	ep := &Endpoint{
		hub: h,
		id:  peerID,
		ch:  make(chan protocol.Envelope, h.buffer),
	}
	h.peers[peerID] = ep
	connectedPeers.Inc()
	return ep, nil
}

// Peers returns the number of joined peers.
func (h *Hub) Peers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func (h *Hub) leave(ep *Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.peers[ep.id] != ep {
		return
	}
	delete(h.peers, ep.id)
	close(ep.ch)
	connectedPeers.Dec()
}

func (h *Hub) broadcast(from string, env protocol.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ep := range h.peers {
		if id == from {
			continue
		}
		select {
		case ep.ch <- env:
			deliveredTotal.Inc()
		default:
			droppedTotal.Inc()
			slog.Warn("envelope dropped: peer buffer full",
				"peer_id", id,
				"sender_id", env.SenderID,
				"type", string(env.Type),
				"subtype", env.Subtype,
			)
		}
	}
}

// Endpoint is one peer's view of a Hub.
type Endpoint struct {
	hub    *Hub
	id     string
	ch     chan protocol.Envelope
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

var _ Channel = (*Endpoint)(nil)

// ID returns the peer id the endpoint joined with.
func (e *Endpoint) ID() string { return e.id }

// Publish delivers env to every other peer without blocking.
func (e *Endpoint) Publish(ctx context.Context, env protocol.Envelope) error {
	if err := ctx.Err(); err != nil {
		return oops.Wrapf(err, "publish")
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed(e.id)
	}
	e.hub.broadcast(e.id, env)
	return nil
}

// Messages returns the envelopes sent by other peers.
func (e *Endpoint) Messages() <-chan protocol.Envelope { return e.ch }

// Close leaves the hub and closes Messages.
func (e *Endpoint) Close() error {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		e.hub.leave(e)
	})
	return nil
}
