// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gorilla/websocket"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/internal/transport"
	"github.com/holomush/theatre/pkg/errutil"
)

// Reconnect backoff defaults.
const (
	DefaultBaseDelay = 200 * time.Millisecond
	DefaultMaxDelay  = 5 * time.Second
)

// Client is a peer's connection to the relay. It reconnects with
// exponential backoff until closed or until the relay refuses its protocol
// version.
type Client struct {
	url       string
	peerID    string
	version   string
	baseDelay time.Duration
	maxDelay  time.Duration
	onConnect func()

	in     chan protocol.Envelope
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	conn     *websocket.Conn
	sessions int
	writeMu  sync.Mutex
}

var _ transport.Channel = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBackoff sets the reconnect delays.
func WithBackoff(base, limit time.Duration) ClientOption {
	return func(c *Client) {
		c.baseDelay = base
		c.maxDelay = limit
	}
}

// WithOnConnect registers fn to run after every successful handshake,
// including reconnects. fn runs on the client's goroutine.
func WithOnConnect(fn func()) ClientOption {
	return func(c *Client) {
		c.onConnect = fn
	}
}

// WithVersion overrides the protocol version announced in the handshake.
func WithVersion(v string) ClientOption {
	return func(c *Client) {
		c.version = v
	}
}

// Connect starts a client for url in the background. Messages stays open
// across reconnects and closes once the client gives up or is closed.
func Connect(ctx context.Context, url, peerID string, opts ...ClientOption) *Client {
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		url:       url,
		peerID:    peerID,
		version:   ProtocolVersion,
		baseDelay: DefaultBaseDelay,
		maxDelay:  DefaultMaxDelay,
		in:        make(chan protocol.Envelope, transport.DefaultBuffer),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.run(ctx)
	return c
}

// Messages returns envelopes relayed from other peers.
func (c *Client) Messages() <-chan protocol.Envelope { return c.in }

// Connected reports whether a relay session is live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Publish writes env to the relay. It fails while disconnected.
func (c *Client) Publish(ctx context.Context, env protocol.Envelope) error {
	if err := ctx.Err(); err != nil {
		return oops.Wrapf(err, "publish")
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return oops.Code(CodeNotConnected).With("peer_id", c.peerID).Errorf("not connected to relay")
	}
	b, err := protocol.Marshal(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return oops.Code(CodeNotConnected).With("peer_id", c.peerID).Wrapf(err, "write envelope")
	}
	return nil
}

// Close stops the client and waits for its goroutines to exit.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.cancel()
		<-c.done
	})
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer close(c.in)

	for {
		conn, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				msg := "relay connection abandoned"
				if errutil.HasCode(err, CodeIncompatible) {
					msg = "relay speaks an incompatible protocol version"
				}
				errutil.LogError(slog.Default(), msg, err)
			}
			return
		}
		c.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("relay connection lost, reconnecting", "peer_id", c.peerID)
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	backoff := retry.WithCappedDuration(c.maxDelay, retry.NewExponential(c.baseDelay))

	var conn *websocket.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		cn, retryable, err := c.dial(ctx)
		if err != nil {
			if retryable {
				slog.Debug("relay dial failed", "url", c.url, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		conn = cn
		return nil
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // dial errors are already coded
	}
	return conn, nil
}

// dial connects and performs the handshake. Refusals of the protocol
// version are not retryable.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, bool, error) {
	d := websocket.Dialer{HandshakeTimeout: HandshakeTimeout}
	conn, resp, err := d.DialContext(ctx, c.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, true, oops.Code(CodeHandshake).With("url", c.url).Wrapf(err, "dial relay")
	}

	hello := Hello{Type: msgHello, ProtocolVersion: c.version, PeerID: c.peerID}
	if err := writeJSON(conn, hello); err != nil {
		_ = conn.Close()
		return nil, true, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		permanent := websocket.IsCloseError(err, websocket.ClosePolicyViolation)
		return nil, !permanent, oops.Code(CodeHandshake).With("url", c.url).Wrapf(err, "read welcome")
	}

	var welcome Welcome
	if err := json.Unmarshal(msg, &welcome); err != nil || welcome.Type != msgWelcome {
		_ = conn.Close()
		return nil, false, oops.Code(CodeHandshake).With("url", c.url).Errorf("expected welcome")
	}
	constraint, err := semver.NewConstraint(DefaultConstraint)
	if err != nil {
		_ = conn.Close()
		return nil, false, oops.Wrapf(err, "parse version constraint")
	}
	if err := checkVersion(constraint, welcome.ProtocolVersion); err != nil {
		_ = conn.Close()
		return nil, false, err
	}
	slog.Info("connected to relay", "url", c.url, "peer_id", c.peerID, "peers", welcome.Peers)
	return conn, true, nil
}

// serve reads envelopes until the connection breaks or ctx ends.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.sessions++
	if c.sessions > 1 {
		clientReconnects.Inc()
	}
	c.mu.Unlock()

	stop := make(chan struct{})
	pinger := make(chan struct{})
	go func() {
		defer close(pinger)
		c.keepalive(ctx, conn, stop)
	}()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		close(stop)
		<-pinger
		_ = conn.Close()
	}()

	if c.onConnect != nil {
		c.onConnect()
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(ReadTimeout))
	})
	for {
		_ = conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Unmarshal(msg)
		if err != nil {
			slog.Debug("invalid envelope from relay", "error", err)
			continue
		}
		select {
		case c.in <- env:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(WriteTimeout)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
