// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gorilla/websocket"
	"github.com/samber/oops"

	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/internal/transport"
)

// Server is the broadcast relay. It holds no scene state; it only forwards
// each peer's envelopes to every other connected peer.
type Server struct {
	hub        *transport.Hub
	constraint *semver.Constraints
	upgrader   websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]string
	wg     sync.WaitGroup
	closed bool
}

// NewServer creates a relay accepting clients whose protocol version
// satisfies constraint.
func NewServer(constraint string) (*Server, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, oops.Code(CodeIncompatible).With("constraint", constraint).Wrapf(err, "parse version constraint")
	}
	return &Server{
		hub:        transport.NewHub(),
		constraint: c,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]string),
	}, nil
}

// Peers returns the number of connected peers.
func (s *Server) Peers() int { return s.hub.Peers() }

// ServeHTTP upgrades the request and relays until the peer disconnects.
func (s *Server) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	if !s.track(conn) {
		closeWith(conn, websocket.CloseGoingAway, "relay shutting down")
		_ = conn.Close()
		return
	}
	defer s.untrack(conn)

	ep, ok := s.handshake(conn)
	if !ok {
		return
	}
	defer func() { _ = ep.Close() }()

	s.mu.Lock()
	s.conns[conn] = ep.ID()
	s.mu.Unlock()

	relayConnections.Inc()
	defer relayConnections.Dec()
	slog.Info("peer connected", "peer_id", ep.ID(), "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.write(ctx, cancel, conn, ep)
	}()

	s.read(ctx, conn, ep)
	cancel()
	_ = conn.Close()
	<-writerDone
	slog.Info("peer disconnected", "peer_id", ep.ID())
}

// Close disconnects every peer and waits for their handlers to return.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		closeWith(c, websocket.CloseGoingAway, "relay shutting down")
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Drop disconnects a peer. The peer is free to reconnect.
func (s *Server) Drop(peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c, id := range s.conns {
		if id == peerID {
			_ = c.Close()
			return true
		}
	}
	return false
}

func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = ""
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
	s.wg.Done()
}

func (s *Server) handshake(conn *websocket.Conn) (*transport.Endpoint, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		rejected("read")
		return nil, false
	}

	var hello Hello
	if err := json.Unmarshal(msg, &hello); err != nil || hello.Type != msgHello || hello.PeerID == "" {
		rejected("malformed")
		closeWith(conn, websocket.ClosePolicyViolation, "expected hello")
		return nil, false
	}
	if err := checkVersion(s.constraint, hello.ProtocolVersion); err != nil {
		rejected("version")
		slog.Warn("peer rejected", "peer_id", hello.PeerID, "version", hello.ProtocolVersion)
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol version")
		return nil, false
	}

	ep, err := s.hub.Join(hello.PeerID)
	if err != nil {
		rejected("duplicate")
		closeWith(conn, websocket.CloseTryAgainLater, "peer already connected")
		return nil, false
	}
	welcome := Welcome{Type: msgWelcome, ProtocolVersion: ProtocolVersion, Peers: s.hub.Peers()}
	if err := writeJSON(conn, welcome); err != nil {
		_ = ep.Close()
		return nil, false
	}
	return ep, true
}

func (s *Server) read(ctx context.Context, conn *websocket.Conn, ep *transport.Endpoint) {
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(WriteTimeout))
	})
	for {
		_ = conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Unmarshal(msg)
		if err != nil {
			relayedTotal.WithLabelValues("invalid").Inc()
			slog.Debug("invalid envelope", "peer_id", ep.ID(), "error", err)
			continue
		}
		if env.SenderID != ep.ID() {
			relayedTotal.WithLabelValues("spoofed").Inc()
			slog.Warn("envelope sender mismatch", "peer_id", ep.ID(), "sender_id", env.SenderID)
			continue
		}
		if err := ep.Publish(ctx, env); err != nil {
			return
		}
		relayedTotal.WithLabelValues("ok").Inc()
	}
}

func (s *Server) write(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, ep *transport.Endpoint) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ep.Messages():
			if !ok {
				return
			}
			b, err := protocol.Marshal(env)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				cancel()
				_ = conn.Close()
				return
			}
		}
	}
}
