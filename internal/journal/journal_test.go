// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package journal_test

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/theatre/internal/journal"
	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/pkg/errutil"
)

func entry(t *testing.T, dir journal.Direction, subtype string) journal.Entry {
	t.Helper()
	env, err := protocol.NewEnvelope("peer-a", protocol.TypeSceneEvent, subtype, map[string]string{"insertid": "theatre-alice"})
	require.NoError(t, err)
	env.ID = "01J00000000000000000000000"
	return journal.Entry{
		At:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Direction: dir,
		Envelope:  env,
	}
}

func TestMemory_KeepsOrder(t *testing.T) {
	m := journal.NewMemory()
	require.NoError(t, m.Record(entry(t, journal.Sent, "enterscene")))
	require.NoError(t, m.Record(entry(t, journal.Received, "emote")))

	got := m.Entries()
	require.Len(t, got, 2)
	assert.Equal(t, journal.Sent, got[0].Direction)
	assert.Equal(t, "emote", got[1].Envelope.Subtype)

	got[0].Direction = journal.Received
	assert.Equal(t, journal.Sent, m.Entries()[0].Direction, "Entries must return a copy")
}

func TestFile_WriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions", "peer-a.jsonl.zst")
	f, err := journal.Create(path)
	require.NoError(t, err)
	assert.Equal(t, path, f.Path())

	want := []journal.Entry{
		entry(t, journal.Sent, "enterscene"),
		entry(t, journal.Received, "positionupdate"),
		entry(t, journal.Received, "exitscene"),
	}
	for _, e := range want {
		require.NoError(t, f.Record(e))
	}
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	var got []journal.Entry
	require.NoError(t, journal.ReadFile(path, func(e journal.Entry) error {
		got = append(got, e)
		return nil
	}))
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Direction, got[i].Direction)
		assert.Equal(t, want[i].Envelope.Subtype, got[i].Envelope.Subtype)
		assert.JSONEq(t, string(want[i].Envelope.Data), string(got[i].Envelope.Data))
		assert.True(t, want[i].At.Equal(got[i].At))
	}
}

func TestFile_RecordAfterClose(t *testing.T) {
	f, err := journal.Create(filepath.Join(t.TempDir(), "j.zst"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = f.Record(entry(t, journal.Sent, "narrator"))
	errutil.AssertErrorCode(t, err, journal.CodeClosed)
}

func TestRead_StopsOnCallbackError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.zst")
	f, err := journal.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Record(entry(t, journal.Sent, "a")))
	require.NoError(t, f.Record(entry(t, journal.Sent, "b")))
	require.NoError(t, f.Close())

	stop := errors.New("stop")
	calls := 0
	err = journal.ReadFile(path, func(journal.Entry) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestRead_RejectsGarbage(t *testing.T) {
	err := journal.Read(bytes.NewReader([]byte("plain text, not zstd")), func(journal.Entry) error { return nil })
	require.Error(t, err)
}

func TestReadFile_Missing(t *testing.T) {
	err := journal.ReadFile(filepath.Join(t.TempDir(), "missing.zst"), func(journal.Entry) error { return nil })
	errutil.AssertErrorCode(t, err, journal.CodeReadFailed)
}
