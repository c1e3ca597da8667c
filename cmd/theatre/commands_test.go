// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/theatre/internal/journal"
	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/internal/scene"
)

func TestValidateActors(t *testing.T) {
	dir := isolate(t)
	path := writeCatalog(t, dir)

	output, err := execute(t, "validate-actors", path)
	require.NoError(t, err)
	assert.Contains(t, output, "2 actors valid")
	assert.Contains(t, output, "alice (Alice): 1 emotes")
}

func TestValidateActors_UsesActorsFlag(t *testing.T) {
	dir := isolate(t)
	path := writeCatalog(t, dir)

	output, err := execute(t, "validate-actors", "--actors", path)
	require.NoError(t, err)
	assert.Contains(t, output, path)
}

func TestValidateActors_RejectsBadCatalog(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("actors:\n  - id: \"has space\"\n    name: X\n    src: x.png\n"), 0o600))

	_, err := execute(t, "validate-actors", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestSchema(t *testing.T) {
	isolate(t)
	output, err := execute(t, "schema")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &doc))
	assert.NotEmpty(t, doc["$id"])
}

func TestPeer_RequiresRelayAndCatalog(t *testing.T) {
	dir := isolate(t)

	_, err := execute(t, "peer", "--user-id", "alice", "--log-format", "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--relay")

	_, err = execute(t, "peer", "--relay", "ws://127.0.0.1:1", "--log-format", "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--user-id")

	_, err = execute(t, "peer", "--relay", "ws://127.0.0.1:1", "--user-id", "alice",
		"--actors", filepath.Join(dir, "nope.yaml"), "--log-format", "text")
	require.Error(t, err)
}

func TestRelay_StopsWithContext(t *testing.T) {
	isolate(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runRelay(ctx, &cobra.Command{}, "127.0.0.1:0", "", "^1.0.0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRelay_RejectsBadConstraint(t *testing.T) {
	err := runRelay(context.Background(), &cobra.Command{}, "127.0.0.1:0", "", "not a constraint")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--accept")
}

func writeJournal(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "session.jsonl.zst")
	j, err := journal.Create(path)
	require.NoError(t, err)

	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	record := func(at time.Duration, dir journal.Direction, sender string, ev scene.Event) {
		env, err := scene.Encode(sender, ev)
		require.NoError(t, err)
		env.ID = protocol.NewID().String()
		require.NoError(t, j.Record(journal.Entry{At: start.Add(at), Direction: dir, Envelope: env}))
	}
	record(0, journal.Received, "peer-a", scene.EnterScene{InsertID: "theatre-alice"})
	record(time.Second, journal.Sent, "peer-gm", scene.EnterScene{InsertID: "theatre-goblin"})
	record(2*time.Second, journal.Received, "peer-a", scene.Emote{
		InsertID: "theatre-alice",
		Emotions: protocol.Emotions{Emote: "happy"},
	})
	record(3*time.Second, journal.Sent, "peer-gm", scene.ExitScene{InsertID: "theatre-goblin"})
	require.NoError(t, j.Close())
	return path
}

func TestReplay_RebuildsStage(t *testing.T) {
	dir := isolate(t)
	catalog := writeCatalog(t, dir)
	path := writeJournal(t, dir)
	frame := filepath.Join(dir, "final.png")

	output, err := execute(t, "replay", path, "--actors", catalog, "--log-format", "text", "--frame", frame)
	require.NoError(t, err)

	var snap protocol.ResyncPayload
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(output)), &snap))
	require.Len(t, snap.InsertData, 1)
	assert.Equal(t, "theatre-alice", snap.InsertData[0].InsertID)
	assert.Equal(t, "happy", snap.InsertData[0].Emotions.Emote)

	f, err := os.Open(frame)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	_, err = png.Decode(f)
	assert.NoError(t, err)
}

func TestReplay_MissingJournal(t *testing.T) {
	dir := isolate(t)
	catalog := writeCatalog(t, dir)

	_, err := execute(t, "replay", filepath.Join(dir, "missing.jsonl.zst"), "--actors", catalog, "--log-format", "text")
	require.Error(t, err)
}

func TestOpenJournal(t *testing.T) {
	dir := isolate(t)

	j, err := openJournal("", "peer-a")
	require.NoError(t, err)
	assert.Nil(t, j)

	j, err = openJournal(autoJournal, "peer-a")
	require.NoError(t, err)
	f, ok := j.(*journal.File)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "state", "theatre", "journal", "peer-a.jsonl.zst"), f.Path())
	require.NoError(t, j.Close())
}
