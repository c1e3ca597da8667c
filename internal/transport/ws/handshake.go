// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package ws carries theatre envelopes over websockets: a relay server that
// fans every envelope out to the other connected peers, and a reconnecting
// client that implements transport.Channel.
package ws

import (
	"encoding/json"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gorilla/websocket"
	"github.com/samber/oops"
)

// ProtocolVersion is the wire version spoken by this build.
const ProtocolVersion = "1.0.0"

// DefaultConstraint accepts every peer speaking the same major version.
const DefaultConstraint = "^1.0.0"

// Connection timing.
const (
	HandshakeTimeout = 5 * time.Second
	WriteTimeout     = 5 * time.Second
	ReadTimeout      = 60 * time.Second
	PingInterval     = 25 * time.Second
)

const (
	msgHello   = "hello"
	msgWelcome = "welcome"
)

// Error codes.
const (
	CodeHandshake    = "HANDSHAKE_FAILED"
	CodeIncompatible = "INCOMPATIBLE_VERSION"
	CodeNotConnected = "NOT_CONNECTED"
)

// Hello is the first message a client sends.
type Hello struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocolVersion"`
	PeerID          string `json:"peerId"`
}

// Welcome is the relay's answer to an accepted Hello.
type Welcome struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocolVersion"`
	Peers           int    `json:"peers"`
}

// checkVersion reports whether v satisfies c.
func checkVersion(c *semver.Constraints, v string) error {
	ver, err := semver.NewVersion(v)
	if err != nil {
		return oops.Code(CodeIncompatible).With("version", v).Wrapf(err, "parse protocol version")
	}
	if !c.Check(ver) {
		return oops.Code(CodeIncompatible).
			With("version", v).
			With("constraint", c.String()).
			Errorf("protocol version %s not supported", v)
	}
	return nil
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return oops.Wrapf(err, "marshal message")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return oops.Wrapf(err, "write message")
	}
	return nil
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}
