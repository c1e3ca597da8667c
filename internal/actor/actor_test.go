// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package actor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/theatre/internal/protocol"
	"github.com/holomush/theatre/pkg/errutil"
)

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog("testdata/actors.yaml")
	require.NoError(t, err)

	alice, err := c.Lookup("alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", alice.Name)
	assert.Equal(t, "theatre-alice", alice.ImgID())
	assert.Equal(t, 1.2, alice.Settings.Scale)
	assert.Equal(t, protocol.Emotions{Emote: "happy", TextSize: 28, TextColor: "#ffeecc"}, alice.Settings.Style.Emotions())
	assert.True(t, alice.PlayerOwned)
	assert.Equal(t, []string{"happy", "sad"}, alice.EmoteNames())

	king, err := c.Lookup("theatre-goblin-king")
	require.NoError(t, err)
	assert.Equal(t, 1.0, king.Settings.Scale, "scale defaults to 1")
	assert.False(t, king.PlayerOwned)

	assert.Len(t, c.All(), 2)
}

func TestCatalog_LookupMissing(t *testing.T) {
	c, err := NewCatalog()
	require.NoError(t, err)

	_, err = c.Lookup("nobody")
	errutil.AssertErrorCode(t, err, CodeActorNotFound)
	errutil.AssertErrorContext(t, err, "actor_id", "nobody")
}

func TestInfo_EmotePath(t *testing.T) {
	a := Info{ID: "a", Src: "a.png", Emotes: map[string]string{"angry": "a-angry.png"}}

	assert.Equal(t, "a-angry.png", a.EmotePath("angry"))
	assert.Equal(t, "a.png", a.EmotePath("bored"))
	assert.Equal(t, "theatre-a:angry", a.ResourceName("angry"))
	assert.Equal(t, "theatre-a:default", a.ResourceName(""))
}

func TestCatalog_PutRejectsBadActors(t *testing.T) {
	tests := []struct {
		name  string
		actor Info
	}{
		{"empty id", Info{Name: "x", Src: "x.png"}},
		{"id with space", Info{ID: "a b", Name: "x", Src: "x.png"}},
		{"missing src", Info{ID: "a", Name: "x"}},
		{"missing name", Info{ID: "a", Src: "x.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.actor)
			errutil.AssertErrorCode(t, err, CodeInvalidCatalog)
		})
	}
}

func TestValidateSchema(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			name: "minimal",
			yaml: "actors:\n  - id: a\n    name: A\n    src: a.png\n",
		},
		{
			name:    "missing src",
			yaml:    "actors:\n  - id: a\n    name: A\n",
			wantErr: true,
		},
		{
			name:    "unknown field",
			yaml:    "actors:\n  - id: a\n    name: A\n    src: a.png\n    colour: red\n",
			wantErr: true,
		},
		{
			name:    "bad optalign",
			yaml:    "actors:\n  - id: a\n    name: A\n    src: a.png\n    optalign: up\n",
			wantErr: true,
		},
		{
			name:    "scale out of range",
			yaml:    "actors:\n  - id: a\n    name: A\n    src: a.png\n    settings:\n      scale: 9\n",
			wantErr: true,
		},
		{
			name:    "empty",
			yaml:    "",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchema([]byte(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseCatalog_SchemaFailureIsCoded(t *testing.T) {
	_, err := ParseCatalog([]byte("actors:\n  - id: a\n"))
	errutil.AssertErrorCode(t, err, CodeInvalidCatalog)
}

func TestGenerateSchema(t *testing.T) {
	raw, err := GenerateSchema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, SchemaID, doc["$id"])
	assert.Equal(t, "Theatre Actor Catalog", doc["title"])
}
