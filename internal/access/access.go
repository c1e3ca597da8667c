// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package access answers the ownership questions the stage asks before a
// local operation is allowed.
package access

import (
	"log/slog"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/holomush/theatre/internal/actor"
)

// CodeInvalidPattern is returned for grant patterns that do not compile.
const CodeInvalidPattern = "INVALID_GRANT_PATTERN"

// Oracle decides who may act on which insert.
type Oracle interface {
	// IsActorOwner reports whether userID owns the actor behind imgID.
	IsActorOwner(userID, imgID string) bool
	// IsPlayerOwned reports whether any player owns the actor behind imgID.
	IsPlayerOwned(imgID string) bool
	// IsGM reports whether userID is a game master.
	IsGM(userID string) bool
}

type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Static is an Oracle built from fixed grants.
//
// Thread-safety: all maps are protected by mu.
type Static struct {
	mu          sync.RWMutex
	gms         map[string]bool
	grants      map[string][]compiledGrant // userID → imgID patterns
	playerOwned map[string]bool            // imgID → owned by a player
}

var _ Oracle = (*Static)(nil)

// NewStatic creates an oracle with no grants.
func NewStatic() *Static {
	return &Static{
		gms:         make(map[string]bool),
		grants:      make(map[string][]compiledGrant),
		playerOwned: make(map[string]bool),
	}
}

// FromCatalog grants every actor's owners and marks player-owned actors.
func FromCatalog(actors []actor.Info, gms ...string) (*Static, error) {
	s := NewStatic()
	for _, gm := range gms {
		s.SetGM(gm, true)
	}
	for _, a := range actors {
		for _, owner := range a.Owners {
			if err := s.Grant(owner, glob.QuoteMeta(a.ImgID())); err != nil {
				return nil, err
			}
		}
		if a.PlayerOwned {
			s.SetPlayerOwned(a.ImgID(), true)
		}
	}
	return s, nil
}

// Grant lets userID own every imgID matching pattern.
func (s *Static) Grant(userID, pattern string) error {
	g, err := glob.Compile(pattern)
	if err != nil {
		return oops.In("access").
			Code(CodeInvalidPattern).
			With("user_id", userID).
			With("pattern", pattern).
			Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[userID] = append(s.grants[userID], compiledGrant{pattern: pattern, glob: g})
	return nil
}

// SetGM marks or unmarks a game master.
func (s *Static) SetGM(userID string, gm bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gm {
		s.gms[userID] = true
		return
	}
	delete(s.gms, userID)
}

// SetPlayerOwned marks whether a player owns imgID.
func (s *Static) SetPlayerOwned(imgID string, owned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owned {
		s.playerOwned[imgID] = true
		return
	}
	delete(s.playerOwned, imgID)
}

// IsActorOwner implements Oracle. Game masters own every actor.
func (s *Static) IsActorOwner(userID, imgID string) bool {
	if userID == "" || imgID == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.gms[userID] {
		return true
	}
	for _, g := range s.grants[userID] {
		if g.glob.Match(imgID) {
			slog.Debug("ownership granted", "user_id", userID, "img_id", imgID, "pattern", g.pattern)
			return true
		}
	}
	return false
}

// IsPlayerOwned implements Oracle.
func (s *Static) IsPlayerOwned(imgID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerOwned[imgID]
}

// IsGM implements Oracle.
func (s *Static) IsGM(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gms[userID]
}
