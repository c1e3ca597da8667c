// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package insert

// Slot names one animation an insert can run. An insert holds at most one
// tween per slot.
type Slot uint8

// Animation slots.
const (
	SlotEnter Slot = iota
	SlotExit
	SlotDockSlide
	SlotPortraitMove
	SlotPortraitFlip
	SlotPulse
	SlotTyping
	SlotTextFlyin
	SlotTextDecay
	SlotLabelFade
)

func (s Slot) String() string {
	switch s {
	case SlotEnter:
		return "enter"
	case SlotExit:
		return "exit"
	case SlotDockSlide:
		return "dock_slide"
	case SlotPortraitMove:
		return "portrait_move"
	case SlotPortraitFlip:
		return "portrait_flip"
	case SlotPulse:
		return "pulse"
	case SlotTyping:
		return "typing"
	case SlotTextFlyin:
		return "text_flyin"
	case SlotTextDecay:
		return "text_decay"
	case SlotLabelFade:
		return "label_fade"
	default:
		return "unknown"
	}
}

// Persistent reports whether the slot survives a texture swap. Speaking and
// typing animations keep running while the portrait texture changes.
func (s Slot) Persistent() bool {
	return s == SlotPulse || s == SlotTyping
}
