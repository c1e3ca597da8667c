// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package actor resolves external actor ids into the data an insert needs.
package actor

import (
	"os"
	"regexp"
	"sort"
	"sync"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/holomush/theatre/internal/insert"
	"github.com/holomush/theatre/internal/protocol"
)

// CodeActorNotFound is returned when no actor matches a lookup.
const CodeActorNotFound = "ACTOR_NOT_FOUND"

// CodeInvalidCatalog is returned for catalogs that fail validation.
const CodeInvalidCatalog = "INVALID_CATALOG"

// DefaultEmote is the emote used when none is requested.
const DefaultEmote = "default"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Settings are per-actor display tweaks.
type Settings struct {
	Scale   float64 `yaml:"scale,omitempty" json:"scale,omitempty" jsonschema:"minimum=0.1,maximum=4"`
	OffsetX float64 `yaml:"offset_x,omitempty" json:"offset_x,omitempty"`
	OffsetY float64 `yaml:"offset_y,omitempty" json:"offset_y,omitempty"`
	Mirror  bool    `yaml:"mirror,omitempty" json:"mirror,omitempty"`
	Style   Style   `yaml:"style,omitempty" json:"style,omitempty"`
}

// Style holds the emote and text style defaults applied on inject.
type Style struct {
	Emote        string `yaml:"emote,omitempty" json:"emote,omitempty"`
	TextFlyin    string `yaml:"textflyin,omitempty" json:"textflyin,omitempty"`
	TextStanding string `yaml:"textstanding,omitempty" json:"textstanding,omitempty"`
	TextFont     string `yaml:"textfont,omitempty" json:"textfont,omitempty"`
	TextSize     int    `yaml:"textsize,omitempty" json:"textsize,omitempty" jsonschema:"minimum=0,maximum=200"`
	TextColor    string `yaml:"textcolor,omitempty" json:"textcolor,omitempty"`
}

// Emotions converts the style to wire form.
func (s Style) Emotions() protocol.Emotions {
	return protocol.Emotions{
		Emote:        s.Emote,
		TextFlyin:    s.TextFlyin,
		TextStanding: s.TextStanding,
		TextFont:     s.TextFont,
		TextSize:     s.TextSize,
		TextColor:    s.TextColor,
	}
}

// Info is everything the stage needs about one actor.
type Info struct {
	ID          string            `yaml:"id" json:"id" jsonschema:"minLength=1,maxLength=64"`
	Name        string            `yaml:"name" json:"name" jsonschema:"minLength=1"`
	Src         string            `yaml:"src" json:"src" jsonschema:"minLength=1"`
	OptAlign    string            `yaml:"optalign,omitempty" json:"optalign,omitempty" jsonschema:"enum=left,enum=right,enum=center"`
	Emotes      map[string]string `yaml:"emotes,omitempty" json:"emotes,omitempty"`
	Settings    Settings          `yaml:"settings,omitempty" json:"settings,omitempty"`
	Owners      []string          `yaml:"owners,omitempty" json:"owners,omitempty"`
	PlayerOwned bool              `yaml:"player_owned,omitempty" json:"player_owned,omitempty"`
}

// ImgID returns the theatre id of the actor.
func (i Info) ImgID() string {
	return insert.IDFor(i.ID)
}

// EmotePath returns the image path for an emote, falling back to Src.
func (i Info) EmotePath(emote string) string {
	if p, ok := i.Emotes[emote]; ok && p != "" {
		return p
	}
	return i.Src
}

// ResourceName is the loader key of an emote image.
func (i Info) ResourceName(emote string) string {
	if emote == "" {
		emote = DefaultEmote
	}
	return i.ImgID() + ":" + emote
}

// EmoteNames returns every emote with a dedicated image, sorted.
func (i Info) EmoteNames() []string {
	names := make([]string, 0, len(i.Emotes))
	for name := range i.Emotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Provider resolves actors by id.
type Provider interface {
	Lookup(actorID string) (Info, error)
}

// CatalogFile is the on-disk actor catalog.
type CatalogFile struct {
	Actors []Info `yaml:"actors" json:"actors"`
}

// Catalog is an in-memory Provider.
type Catalog struct {
	mu     sync.RWMutex
	actors map[string]Info
}

var _ Provider = (*Catalog)(nil)

// NewCatalog builds a catalog from actors.
func NewCatalog(actors ...Info) (*Catalog, error) {
	c := &Catalog{actors: make(map[string]Info, len(actors))}
	for _, a := range actors {
		if err := c.Put(a); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ParseCatalog validates and parses catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, oops.Code(CodeInvalidCatalog).Wrap(err)
	}
	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, oops.Code(CodeInvalidCatalog).Wrapf(err, "invalid YAML")
	}
	return NewCatalog(file.Actors...)
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, oops.Code(CodeInvalidCatalog).With("path", path).Wrapf(err, "read catalog")
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return c, nil
}

// Put adds or replaces an actor.
func (c *Catalog) Put(a Info) error {
	if !idPattern.MatchString(a.ID) {
		return oops.Code(CodeInvalidCatalog).With("id", a.ID).Errorf("invalid actor id")
	}
	if a.Name == "" || a.Src == "" {
		return oops.Code(CodeInvalidCatalog).With("id", a.ID).Errorf("actor needs a name and a src")
	}
	if a.Settings.Scale == 0 {
		a.Settings.Scale = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actors[a.ID] = a
	return nil
}

// Lookup implements Provider. Both plain actor ids and theatre ids resolve.
func (c *Catalog) Lookup(actorID string) (Info, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if a, ok := c.actors[actorID]; ok {
		return a, nil
	}
	if a, ok := c.actors[insert.ActorIDOf(actorID)]; ok {
		return a, nil
	}
	return Info{}, oops.Code(CodeActorNotFound).With("actor_id", actorID).Errorf("actor not found")
}

// All returns every actor sorted by id.
func (c *Catalog) All() []Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Info, 0, len(c.actors))
	for _, a := range c.actors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
