// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package protocol defines the wire format shared by every theatre peer.
package protocol

import (
	"encoding/json"

	"github.com/samber/oops"
)

// MessageType identifies the kind of broadcast message.
type MessageType string

// Message types carried on the broadcast channel.
const (
	TypeSceneEvent  MessageType = "sceneevent"
	TypeTypingEvent MessageType = "typingevent"
	TypeResyncEvent MessageType = "resyncevent"
	TypeReqResync   MessageType = "reqresync"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case TypeSceneEvent, TypeTypingEvent, TypeResyncEvent, TypeReqResync:
		return true
	default:
		return false
	}
}

// Error codes for envelope handling.
const (
	CodeInvalidEnvelope = "INVALID_ENVELOPE"
	CodeUnknownType     = "UNKNOWN_MESSAGE_TYPE"
)

// Envelope is the outer frame of every broadcast message.
type Envelope struct {
	ID       string          `json:"id,omitempty"`
	SenderID string          `json:"senderId"`
	Type     MessageType     `json:"type"`
	Subtype  string          `json:"subtype,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope.
func NewEnvelope(sender string, typ MessageType, subtype string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, oops.Code(CodeInvalidEnvelope).
			With("type", string(typ)).
			With("subtype", subtype).
			Wrapf(err, "marshal %s payload", typ)
	}
	return Envelope{
		SenderID: sender,
		Type:     typ,
		Subtype:  subtype,
		Data:     raw,
	}, nil
}

// DecodeData unmarshals the envelope payload into v.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return oops.Code(CodeInvalidEnvelope).
			With("type", string(e.Type)).
			With("subtype", e.Subtype).
			Errorf("envelope has no data")
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return oops.Code(CodeInvalidEnvelope).
			With("type", string(e.Type)).
			With("subtype", e.Subtype).
			Wrapf(err, "decode %s payload", e.Type)
	}
	return nil
}

// Marshal encodes the envelope as JSON.
func Marshal(e Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, oops.Code(CodeInvalidEnvelope).Wrapf(err, "marshal envelope")
	}
	return b, nil
}

// Unmarshal decodes and checks an envelope.
func Unmarshal(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, oops.Code(CodeInvalidEnvelope).Wrapf(err, "decode envelope")
	}
	if e.SenderID == "" {
		return Envelope{}, oops.Code(CodeInvalidEnvelope).Errorf("envelope missing senderId")
	}
	if !e.Type.Valid() {
		return Envelope{}, ErrUnknownType(e.Type)
	}
	return e, nil
}

// ErrUnknownType reports a message type this peer does not handle.
func ErrUnknownType(t MessageType) error {
	return oops.Code(CodeUnknownType).
		With("type", string(t)).
		Errorf("unknown message type %q", t)
}
