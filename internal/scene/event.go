// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package scene defines the replicated state-changing operations exchanged
// between peers as scene events.
package scene

import "github.com/holomush/theatre/internal/protocol"

// Subtype identifies a scene event on the wire.
type Subtype string

// Scene event subtypes.
const (
	SubtypeEnterScene     Subtype = "enterscene"
	SubtypeExitScene      Subtype = "exitscene"
	SubtypePositionUpdate Subtype = "positionupdate"
	SubtypePush           Subtype = "push"
	SubtypeSwap           Subtype = "swap"
	SubtypeMove           Subtype = "move"
	SubtypeEmote          Subtype = "emote"
	SubtypeAddTexture     Subtype = "addtexture"
	SubtypeAddAllTextures Subtype = "addalltextures"
	SubtypeStage          Subtype = "stage"
	SubtypeNarrator       Subtype = "narrator"
	SubtypeDecayText      Subtype = "decaytext"
	SubtypeRenderInsert   Subtype = "renderinsert"
)

// Subtypes returns every known subtype.
func Subtypes() []Subtype {
	return []Subtype{
		SubtypeEnterScene, SubtypeExitScene, SubtypePositionUpdate, SubtypePush,
		SubtypeSwap, SubtypeMove, SubtypeEmote, SubtypeAddTexture,
		SubtypeAddAllTextures, SubtypeStage, SubtypeNarrator, SubtypeDecayText,
		SubtypeRenderInsert,
	}
}

// Event is a scene event. The set of implementations is closed; every
// implementation dispatches to exactly one Visitor method.
type Event interface {
	Subtype() Subtype
	Accept(v Visitor) error
}

// Visitor handles every scene event. Adding an event type adds a method
// here, so every handler must be updated before the tree compiles again.
type Visitor interface {
	VisitEnterScene(EnterScene) error
	VisitExitScene(ExitScene) error
	VisitPositionUpdate(PositionUpdate) error
	VisitPush(Push) error
	VisitSwap(Swap) error
	VisitMove(Move) error
	VisitEmote(Emote) error
	VisitAddTexture(AddTexture) error
	VisitAddAllTextures(AddAllTextures) error
	VisitStage(Stage) error
	VisitNarrator(Narrator) error
	VisitDecayText(DecayText) error
	VisitRenderInsert(RenderInsert) error
}

// EnterScene injects an insert.
type EnterScene struct {
	InsertID string            `json:"insertid"`
	Emotions protocol.Emotions `json:"emotions"`
	IsLeft   bool              `json:"isleft"`
}

// ExitScene removes an insert.
type ExitScene struct {
	InsertID string `json:"insertid"`
}

// PositionUpdate moves or mirrors a portrait.
type PositionUpdate struct {
	InsertID string            `json:"insertid"`
	Position protocol.Position `json:"position"`
}

// Push moves an insert to one edge of the dock.
type Push struct {
	InsertID string `json:"insertid"`
	ToFront  bool   `json:"tofront"`
}

// Swap exchanges the dock slots of two inserts.
type Swap struct {
	InsertID1 string `json:"insertid1"`
	InsertID2 string `json:"insertid2"`
}

// Move places the first insert next to the second.
type Move struct {
	InsertID1 string `json:"insertid1"`
	InsertID2 string `json:"insertid2"`
}

// Emote applies an emote and text style.
type Emote struct {
	InsertID string            `json:"insertid"`
	Emotions protocol.Emotions `json:"emotions"`
}

// TextureRef names one image resource.
type TextureRef struct {
	ImgPath string `json:"imgpath"`
	ResName string `json:"resname"`
}

// AddTexture hot-swaps the texture of one emote.
type AddTexture struct {
	InsertID string `json:"insertid"`
	Emote    string `json:"emote"`
	ImgSrc   string `json:"imgsrc"`
	ResName  string `json:"resname"`
}

// AddAllTextures hot-swaps several textures at once.
type AddAllTextures struct {
	InsertID string       `json:"insertid"`
	Emote    string       `json:"emote"`
	ImgSrcs  []TextureRef `json:"imgsrcs"`
}

// Stage pre-warms the asset cache for an actor.
type Stage struct {
	InsertID string `json:"insertid"`
}

// Narrator toggles the narrator bar.
type Narrator struct {
	Active bool `json:"active"`
}

// DecayText fades and clears an insert's text box.
type DecayText struct {
	InsertID string `json:"insertid"`
}

// RenderInsert forces an immediate re-render.
type RenderInsert struct {
	InsertID string `json:"insertid"`
}

func (EnterScene) Subtype() Subtype     { return SubtypeEnterScene }
func (ExitScene) Subtype() Subtype      { return SubtypeExitScene }
func (PositionUpdate) Subtype() Subtype { return SubtypePositionUpdate }
func (Push) Subtype() Subtype           { return SubtypePush }
func (Swap) Subtype() Subtype           { return SubtypeSwap }
func (Move) Subtype() Subtype           { return SubtypeMove }
func (Emote) Subtype() Subtype          { return SubtypeEmote }
func (AddTexture) Subtype() Subtype     { return SubtypeAddTexture }
func (AddAllTextures) Subtype() Subtype { return SubtypeAddAllTextures }
func (Stage) Subtype() Subtype          { return SubtypeStage }
func (Narrator) Subtype() Subtype       { return SubtypeNarrator }
func (DecayText) Subtype() Subtype      { return SubtypeDecayText }
func (RenderInsert) Subtype() Subtype   { return SubtypeRenderInsert }

func (e EnterScene) Accept(v Visitor) error     { return v.VisitEnterScene(e) }
func (e ExitScene) Accept(v Visitor) error      { return v.VisitExitScene(e) }
func (e PositionUpdate) Accept(v Visitor) error { return v.VisitPositionUpdate(e) }
func (e Push) Accept(v Visitor) error           { return v.VisitPush(e) }
func (e Swap) Accept(v Visitor) error           { return v.VisitSwap(e) }
func (e Move) Accept(v Visitor) error           { return v.VisitMove(e) }
func (e Emote) Accept(v Visitor) error          { return v.VisitEmote(e) }
func (e AddTexture) Accept(v Visitor) error     { return v.VisitAddTexture(e) }
func (e AddAllTextures) Accept(v Visitor) error { return v.VisitAddAllTextures(e) }
func (e Stage) Accept(v Visitor) error          { return v.VisitStage(e) }
func (e Narrator) Accept(v Visitor) error       { return v.VisitNarrator(e) }
func (e DecayText) Accept(v Visitor) error      { return v.VisitDecayText(e) }
func (e RenderInsert) Accept(v Visitor) error   { return v.VisitRenderInsert(e) }

// TargetID returns the insert an event addresses, or "" for stage-wide
// events.
func TargetID(ev Event) string {
	switch e := ev.(type) {
	case EnterScene:
		return e.InsertID
	case ExitScene:
		return e.InsertID
	case PositionUpdate:
		return e.InsertID
	case Push:
		return e.InsertID
	case Swap:
		return e.InsertID1
	case Move:
		return e.InsertID1
	case Emote:
		return e.InsertID
	case AddTexture:
		return e.InsertID
	case AddAllTextures:
		return e.InsertID
	case Stage:
		return e.InsertID
	case DecayText:
		return e.InsertID
	case RenderInsert:
		return e.InsertID
	default:
		return ""
	}
}
