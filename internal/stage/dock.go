// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package stage

import (
	"context"
	"log/slog"
	"slices"

	"github.com/holomush/theatre/internal/config"
	"github.com/holomush/theatre/internal/insert"
	"github.com/holomush/theatre/internal/scene"
)

// Regime is the dock layout chosen from the number of inserts.
type Regime uint8

// Dock regimes.
const (
	RegimeEmpty Regime = iota
	RegimeSingle
	RegimeDual
	RegimeBar
)

func (r Regime) String() string {
	switch r {
	case RegimeSingle:
		return "single"
	case RegimeDual:
		return "dual"
	case RegimeBar:
		return "bar"
	default:
		return "empty"
	}
}

// Dock slot centres as a fraction of the stage width.
const (
	singleX    = 0.75
	dualLeftX  = 0.2
	dualRightX = 0.8
)

type dockSlot struct {
	x    float64
	name insert.Orientation
	exit insert.Orientation
}

func regimeFor(n int, mode config.DisplayMode) Regime {
	switch {
	case n == 0:
		return RegimeEmpty
	case mode == config.DisplayBar || n > 2:
		return RegimeBar
	case n == 1:
		return RegimeSingle
	default:
		return RegimeDual
	}
}

// slotFor places the i-th of n inserts. In the dual regime the two inserts
// face each other.
func slotFor(r Regime, i, n int) dockSlot {
	switch r {
	case RegimeSingle:
		return dockSlot{x: singleX, name: insert.OrientRight, exit: insert.OrientRight}
	case RegimeDual:
		if i == 0 {
			return dockSlot{x: dualLeftX, name: insert.OrientLeft, exit: insert.OrientLeft}
		}
		return dockSlot{x: dualRightX, name: insert.OrientRight, exit: insert.OrientRight}
	default:
		exit := insert.OrientLeft
		if i >= n/2 {
			exit = insert.OrientRight
		}
		return dockSlot{x: (float64(i) + 0.5) / float64(n), name: insert.OrientLeft, exit: exit}
	}
}

func (s *Stage) mode() config.DisplayMode {
	if s.settings == nil {
		return config.DisplayDock
	}
	return s.settings.Mode()
}

// place puts a freshly injected insert straight into its slot of the
// current list; the others follow on the next reflow.
func (s *Stage) place(ins *insert.Insert) {
	active := s.active()
	i := slices.Index(active, ins)
	sl := slotFor(regimeFor(len(active), s.mode()), i, len(active))
	ins.Order = i
	ins.RenderOrder = i
	ins.NameOrientation, ins.ExitOrientation = sl.name, sl.exit
	ins.Label.Align = insert.LabelAlign(ins.OptAlign, sl.name)
	ins.Portrait.DockX = sl.x
}

// reflow lays out every non-deleting insert and slides it to its slot.
func (s *Stage) reflow() {
	s.reorder.Cancel()
	active := s.active()
	s.regime = regimeFor(len(active), s.mode())
	for i, ins := range active {
		if !ins.HasNode() {
			continue
		}
		sl := slotFor(s.regime, i, len(active))
		ins.Order = i
		ins.RenderOrder = i
		if ins.ImgID == s.speaking {
			ins.RenderOrder = len(active)
		}
		ins.NameOrientation, ins.ExitOrientation = sl.name, sl.exit
		ins.Label.Align = insert.LabelAlign(ins.OptAlign, sl.name)
		s.slide(ins, sl.x)
	}
	s.reflows++
	reflowsTotal.Inc()
	slog.Debug("dock reflowed", "regime", s.regime.String(), "inserts", len(active))
}

func (s *Stage) slide(ins *insert.Insert, x float64) {
	if _, running := ins.Tween(insert.SlotDockSlide); !running && ins.Portrait.DockX == x {
		return
	}
	s.render.Add(ins, insert.SlotDockSlide,
		insert.NewTween(s.sched.Now(), SlideDuration, insert.Lerp(&ins.Portrait.DockX, ins.Portrait.DockX, x)))
}

// Push moves an insert to the front or back of the dock as the local user.
func (s *Stage) Push(ctx context.Context, imgID string, toFront bool) error {
	return s.Apply(ctx, scene.Push{InsertID: canonical(imgID), ToFront: toFront}, Local)
}

// Swap exchanges two inserts as the local user.
func (s *Stage) Swap(ctx context.Context, a, b string) error {
	return s.Apply(ctx, scene.Swap{InsertID1: canonical(a), InsertID2: canonical(b)}, Local)
}

// Move places a next to b as the local user.
func (s *Stage) Move(ctx context.Context, a, b string) error {
	return s.Apply(ctx, scene.Move{InsertID1: canonical(a), InsertID2: canonical(b)}, Local)
}

func (s *Stage) push(_ context.Context, ev scene.Push) (scene.Event, error) {
	ins, ok := s.Insert(ev.InsertID)
	if !ok {
		return nil, ErrInsertNotFound(ev.InsertID)
	}
	active := s.active()
	edge := active[len(active)-1]
	if ev.ToFront {
		edge = active[0]
	}
	if edge == ins {
		return nil, nil
	}

	idx := slices.Index(s.inserts, ins)
	s.inserts = slices.Delete(s.inserts, idx, idx+1)
	if ev.ToFront {
		s.inserts = slices.Insert(s.inserts, 0, ins)
	} else {
		s.inserts = append(s.inserts, ins)
	}
	s.reflow()
	return scene.Push{InsertID: ins.ImgID, ToFront: ev.ToFront}, nil
}

func (s *Stage) swap(_ context.Context, ev scene.Swap) (scene.Event, error) {
	a, b, err := s.pair(ev.InsertID1, ev.InsertID2)
	if err != nil || a == b {
		return nil, err
	}
	i, j := slices.Index(s.inserts, a), slices.Index(s.inserts, b)
	s.inserts[i], s.inserts[j] = b, a
	s.reflow()
	return scene.Swap{InsertID1: a.ImgID, InsertID2: b.ImgID}, nil
}

// move takes a out of the list and reinserts it at b's old index, which
// lands it directly after b when moving right and before b when moving
// left.
func (s *Stage) move(_ context.Context, ev scene.Move) (scene.Event, error) {
	a, b, err := s.pair(ev.InsertID1, ev.InsertID2)
	if err != nil || a == b {
		return nil, err
	}
	i, j := slices.Index(s.inserts, a), slices.Index(s.inserts, b)
	s.inserts = slices.Delete(s.inserts, i, i+1)
	s.inserts = slices.Insert(s.inserts, j, a)
	s.reflow()
	return scene.Move{InsertID1: a.ImgID, InsertID2: b.ImgID}, nil
}

func (s *Stage) pair(id1, id2 string) (*insert.Insert, *insert.Insert, error) {
	a, ok := s.Insert(id1)
	if !ok {
		return nil, nil, ErrInsertNotFound(id1)
	}
	b, ok := s.Insert(id2)
	if !ok {
		return nil, nil, ErrInsertNotFound(id2)
	}
	return a, b, nil
}
