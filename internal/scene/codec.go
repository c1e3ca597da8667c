// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package scene

import (
	"github.com/samber/oops"

	"github.com/holomush/theatre/internal/protocol"
)

// CodeUnknownSubtype marks a scene event this peer cannot handle.
const CodeUnknownSubtype = "UNKNOWN_SUBTYPE"

// Encode wraps a scene event in a sceneevent envelope.
func Encode(sender string, ev Event) (protocol.Envelope, error) {
	return protocol.NewEnvelope(sender, protocol.TypeSceneEvent, string(ev.Subtype()), ev)
}

// Decode extracts the scene event carried by env.
func Decode(env protocol.Envelope) (Event, error) {
	if env.Type != protocol.TypeSceneEvent {
		return nil, oops.Code(protocol.CodeInvalidEnvelope).
			With("type", string(env.Type)).
			Errorf("not a scene event")
	}

	switch Subtype(env.Subtype) {
	case SubtypeEnterScene:
		return decodeAs[EnterScene](env)
	case SubtypeExitScene:
		return decodeAs[ExitScene](env)
	case SubtypePositionUpdate:
		return decodeAs[PositionUpdate](env)
	case SubtypePush:
		return decodeAs[Push](env)
	case SubtypeSwap:
		return decodeAs[Swap](env)
	case SubtypeMove:
		return decodeAs[Move](env)
	case SubtypeEmote:
		return decodeAs[Emote](env)
	case SubtypeAddTexture:
		return decodeAs[AddTexture](env)
	case SubtypeAddAllTextures:
		return decodeAs[AddAllTextures](env)
	case SubtypeStage:
		return decodeAs[Stage](env)
	case SubtypeNarrator:
		return decodeAs[Narrator](env)
	case SubtypeDecayText:
		return decodeAs[DecayText](env)
	case SubtypeRenderInsert:
		return decodeAs[RenderInsert](env)
	default:
		return nil, oops.Code(CodeUnknownSubtype).
			With("subtype", env.Subtype).
			With("sender_id", env.SenderID).
			Errorf("unhandled scene event subtype %q", env.Subtype)
	}
}

func decodeAs[T Event](env protocol.Envelope) (Event, error) {
	var ev T
	if err := env.DecodeData(&ev); err != nil {
		return nil, err
	}
	return ev, nil
}
