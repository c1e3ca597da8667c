// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package ws_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/internal/transport/ws"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startRelay(t *testing.T) (*ws.Server, string) {
	t.Helper()
	relay, err := ws.NewServer(ws.DefaultConstraint)
	require.NoError(t, err)
	ts := httptest.NewServer(relay)
	t.Cleanup(ts.Close)
	t.Cleanup(relay.Close)
	return relay, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func connect(t *testing.T, url, peerID string, opts ...ws.ClientOption) *ws.Client {
	t.Helper()
	opts = append([]ws.ClientOption{ws.WithBackoff(10*time.Millisecond, 50*time.Millisecond)}, opts...)
	c := ws.Connect(context.Background(), url, peerID, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitConnected(t *testing.T, relay *ws.Server, peers int, clients ...*ws.Client) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, c := range clients {
			if !c.Connected() {
				return false
			}
		}
		return relay.Peers() == peers
	}, 2*time.Second, 5*time.Millisecond)
}

func sceneEnvelope(sender string) protocol.Envelope {
	env, _ := protocol.NewEnvelope(sender, protocol.TypeSceneEvent, "narrator", map[string]bool{"active": true})
	return env
}

func receive(t *testing.T, c *ws.Client) protocol.Envelope {
	t.Helper()
	select {
	case env, ok := <-c.Messages():
		require.True(t, ok, "messages closed")
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for envelope")
		return protocol.Envelope{}
	}
}

func TestRelay_FansOutToOtherPeers(t *testing.T) {
	relay, url := startRelay(t)
	a := connect(t, url, "peer-a")
	b := connect(t, url, "peer-b")
	c := connect(t, url, "peer-c")
	waitConnected(t, relay, 3, a, b, c)

	require.NoError(t, a.Publish(context.Background(), sceneEnvelope("peer-a")))

	for _, peer := range []*ws.Client{b, c} {
		env := receive(t, peer)
		assert.Equal(t, "peer-a", env.SenderID)
		assert.Equal(t, protocol.TypeSceneEvent, env.Type)
		assert.Equal(t, "narrator", env.Subtype)
	}
	assert.Empty(t, a.Messages())
}

func TestRelay_DropsSpoofedSender(t *testing.T) {
	relay, url := startRelay(t)
	a := connect(t, url, "peer-a")
	b := connect(t, url, "peer-b")
	waitConnected(t, relay, 2, a, b)

	require.NoError(t, a.Publish(context.Background(), sceneEnvelope("peer-b")))
	require.NoError(t, a.Publish(context.Background(), sceneEnvelope("peer-a")))

	assert.Equal(t, "peer-a", receive(t, b).SenderID)
}

func TestClient_RefusedVersionGivesUp(t *testing.T) {
	relay, url := startRelay(t)
	c := connect(t, url, "peer-old", ws.WithVersion("2.1.0"))

	select {
	case _, ok := <-c.Messages():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("client kept retrying a refused version")
	}
	assert.Zero(t, relay.Peers())
}

func TestRelay_RejectsMalformedHello(t *testing.T) {
	_, url := startRelay(t)

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"act"}`)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestRelay_WelcomeReportsVersion(t *testing.T) {
	relay, url := startRelay(t)

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ws.Hello{Type: "hello", ProtocolVersion: "1.4.2", PeerID: "raw"}))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var welcome ws.Welcome
	require.NoError(t, json.Unmarshal(msg, &welcome))
	assert.Equal(t, "welcome", welcome.Type)
	assert.Equal(t, ws.ProtocolVersion, welcome.ProtocolVersion)
	assert.Equal(t, 1, welcome.Peers)
	assert.Equal(t, 1, relay.Peers())
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	relay, url := startRelay(t)
	var connects atomic.Int32
	a := connect(t, url, "peer-a", ws.WithOnConnect(func() { connects.Add(1) }))
	b := connect(t, url, "peer-b")
	waitConnected(t, relay, 2, a, b)

	require.True(t, relay.Drop("peer-a"))
	require.Eventually(t, func() bool { return connects.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	waitConnected(t, relay, 2, a, b)

	require.NoError(t, b.Publish(context.Background(), sceneEnvelope("peer-b")))
	assert.Equal(t, "peer-b", receive(t, a).SenderID)
}

func TestClient_PublishWhileDisconnectedFails(t *testing.T) {
	c := ws.Connect(context.Background(), "ws://127.0.0.1:1/none", "peer-a",
		ws.WithBackoff(time.Hour, time.Hour))
	defer c.Close()

	err := c.Publish(context.Background(), sceneEnvelope("peer-a"))
	require.Error(t, err)
	assert.False(t, c.Connected())
}

func TestNewServer_BadConstraint(t *testing.T) {
	_, err := ws.NewServer("not a constraint")
	require.Error(t, err)
}
