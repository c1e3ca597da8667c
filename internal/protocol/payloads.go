// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol

// Emotions carries the emote and text style of an insert.
type Emotions struct {
	Emote        string `json:"emote"`
	TextFlyin    string `json:"textflyin"`
	TextStanding string `json:"textstanding"`
	TextFont     string `json:"textfont"`
	TextSize     int    `json:"textsize"`
	TextColor    string `json:"textcolor"`
}

// Merge returns e with every empty field taken from fallback.
func (e Emotions) Merge(fallback Emotions) Emotions {
	if e.Emote == "" {
		e.Emote = fallback.Emote
	}
	if e.TextFlyin == "" {
		e.TextFlyin = fallback.TextFlyin
	}
	if e.TextStanding == "" {
		e.TextStanding = fallback.TextStanding
	}
	if e.TextFont == "" {
		e.TextFont = fallback.TextFont
	}
	if e.TextSize == 0 {
		e.TextSize = fallback.TextSize
	}
	if e.TextColor == "" {
		e.TextColor = fallback.TextColor
	}
	return e
}

// Position is a portrait offset relative to its dock slot.
type Position struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Mirror bool    `json:"mirror"`
}

// InsertData is one self-sufficient entry of a resync snapshot.
type InsertData struct {
	InsertID  string   `json:"insertid"`
	Position  Position `json:"position"`
	Emotions  Emotions `json:"emotions"`
	SortIndex int      `json:"sortIndex"`
}

// ResyncKind is the subtype of reqresync and resyncevent messages.
type ResyncKind string

// Resync request and response kinds.
const (
	ResyncAny     ResyncKind = "any"
	ResyncGM      ResyncKind = "gm"
	ResyncPlayers ResyncKind = "players"
	ResyncPlayer  ResyncKind = "player"
)

// ResyncPayload is the data of a resyncevent message.
type ResyncPayload struct {
	TargetID   string       `json:"targetid"`
	InsertData []InsertData `json:"insertdata"`
	Narrator   bool         `json:"narrator"`
}

// ReqResyncPayload is the data of a reqresync message. Only the players
// push carries a snapshot.
type ReqResyncPayload struct {
	InsertData []InsertData `json:"insertdata,omitempty"`
	Narrator   *bool        `json:"narrator,omitempty"`
}

// TypingPayload is the data of a typingevent message.
type TypingPayload struct {
	InsertID string   `json:"insertid"`
	Emotions Emotions `json:"emotions"`
}
