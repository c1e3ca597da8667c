// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package insert defines the on-stage entity of a speaking character.
package insert

import (
	"image"
	"sort"

	"github.com/holomush/theatre/internal/loop"
	"github.com/holomush/theatre/internal/protocol"
)

// IDPrefix prefixes every theatre id derived from an actor id.
const IDPrefix = "theatre-"

// IDFor derives the stable theatre id of an actor.
func IDFor(actorID string) string {
	return IDPrefix + actorID
}

// ActorIDOf strips the theatre prefix from an insert id.
func ActorIDOf(imgID string) string {
	if len(imgID) > len(IDPrefix) && imgID[:len(IDPrefix)] == IDPrefix {
		return imgID[len(IDPrefix):]
	}
	return imgID
}

// Side is the dock edge an insert enters from.
type Side uint8

// Dock sides.
const (
	SideLeft Side = iota
	SideRight
)

func (s Side) String() string {
	if s == SideLeft {
		return "left"
	}
	return "right"
}

// Orientation is the direction a label aligns to or an insert exits toward.
type Orientation string

// Orientations. Only labels may be centered.
const (
	OrientLeft   Orientation = "left"
	OrientRight  Orientation = "right"
	OrientCenter Orientation = "center"
)

// LabelAlign returns the actor's own label alignment if it names one, and
// the dock slot's otherwise.
func LabelAlign(optAlign string, slot Orientation) Orientation {
	switch o := Orientation(optAlign); o {
	case OrientLeft, OrientRight, OrientCenter:
		return o
	}
	return slot
}

// Portrait is the renderable character image.
type Portrait struct {
	Texture    image.Image
	TextureKey string
	// DockX is the slot position assigned by the dock layout.
	DockX float64
	// X and Y are the user offset relative to the dock slot.
	X, Y float64
	// Scale and OffsetX/OffsetY are the actor's fixed display tweaks.
	Scale            float64
	OffsetX, OffsetY float64
	Mirror           bool
	// ScaleX animates between 1 and -1 while mirroring.
	ScaleX float64
	Alpha  float64
	// Lift is the vertical enter/exit offset, 0 when fully on stage.
	Lift float64
}

// Label is the name plate under a portrait.
type Label struct {
	Text  string
	Align Orientation
	Alpha float64
}

// TypingIndicator is shown while the owning user types.
type TypingIndicator struct {
	Visible bool
	Alpha   float64
	Bob     float64
}

// TextBox holds the line the character is speaking.
type TextBox struct {
	Text  string
	Alpha float64
}

// Insert is a character's on-stage visual and state entity.
type Insert struct {
	ImgID    string
	ActorID  string
	Name     string
	OptAlign string
	// PlayerOwned marks inserts whose actor belongs to a player.
	PlayerOwned bool
	Emotion     protocol.Emotions
	// Goal is the position the portrait rests at once tweens finish.
	Goal protocol.Position

	Portrait *Portrait
	Label    *Label
	Typing   *TypingIndicator
	TextBox  *TextBox

	Order           int
	RenderOrder     int
	ExitOrientation Orientation
	NameOrientation Orientation

	// Deleting is set as soon as removal starts so a second removal is a no-op.
	Deleting bool
	// Loaded is set once the portrait texture has been applied.
	Loaded bool

	decay  loop.Timer
	tweens map[Slot]*Tween
}

// New creates an insert with fresh render nodes.
func New(imgID, name string, emotion protocol.Emotions) *Insert {
	return &Insert{
		ImgID:   imgID,
		ActorID: ActorIDOf(imgID),
		Name:    name,
		Emotion: emotion,
		Portrait: &Portrait{
			ScaleX: 1,
			Scale:  1,
			Alpha:  1,
		},
		Label:           &Label{Text: name, Align: OrientLeft, Alpha: 1},
		Typing:          &TypingIndicator{},
		TextBox:         &TextBox{Alpha: 1},
		ExitOrientation: OrientLeft,
		NameOrientation: OrientLeft,
		tweens:          make(map[Slot]*Tween),
	}
}

// Position returns the resting user offset and mirror state.
func (i *Insert) Position() protocol.Position {
	return i.Goal
}

// Snapshot returns the resync entry for this insert.
func (i *Insert) Snapshot(sortIndex int) protocol.InsertData {
	return protocol.InsertData{
		InsertID:  i.ImgID,
		Position:  i.Position(),
		Emotions:  i.Emotion,
		SortIndex: sortIndex,
	}
}

// HasNode reports whether the portrait render node is still attached.
func (i *Insert) HasNode() bool {
	return i.Portrait != nil
}

// Detach drops all render nodes.
func (i *Insert) Detach() {
	i.Portrait = nil
	i.Label = nil
	i.Typing = nil
	i.TextBox = nil
}

// SetDecayTimer replaces the pending text decay timer.
func (i *Insert) SetDecayTimer(t loop.Timer) {
	i.CancelDecay()
	i.decay = t
}

// CancelDecay stops a pending text decay.
func (i *Insert) CancelDecay() {
	if i.decay != nil {
		i.decay.Stop()
		i.decay = nil
	}
}

// ClearDecayTimer forgets the decay timer after it fired.
func (i *Insert) ClearDecayTimer() {
	i.decay = nil
}

// Tween returns the tween running in slot.
func (i *Insert) Tween(slot Slot) (*Tween, bool) {
	t, ok := i.tweens[slot]
	return t, ok
}

// PutTween stores t in slot and returns the tween it replaced.
func (i *Insert) PutTween(slot Slot, t *Tween) *Tween {
	old := i.tweens[slot]
	i.tweens[slot] = t
	return old
}

// DropTween removes the tween in slot.
func (i *Insert) DropTween(slot Slot) (*Tween, bool) {
	t, ok := i.tweens[slot]
	if ok {
		delete(i.tweens, slot)
	}
	return t, ok
}

// Slots returns the occupied slots in ascending order.
func (i *Insert) Slots() []Slot {
	slots := make([]Slot, 0, len(i.tweens))
	for s := range i.tweens {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(a, b int) bool { return slots[a] < slots[b] })
	return slots
}
