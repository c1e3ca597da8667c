// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package render

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"

	"github.com/samber/oops"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"

	"github.com/holomush/theatre/internal/config"
	"github.com/holomush/theatre/internal/insert"
)

// Layout is the geometry of the stage canvas.
type Layout struct {
	Width  int
	Height int
	// PortraitHeight is the on-screen height of an unscaled portrait in pixels.
	PortraitHeight int
}

// DefaultLayout is used when no layout is configured.
var DefaultLayout = Layout{Width: 960, Height: 400, PortraitHeight: 280}

var (
	backdrop    = color.RGBA{R: 0x18, G: 0x18, B: 0x20, A: 0xff}
	narratorBar = color.RGBA{R: 0x00, G: 0x00, B: 0x00, A: 0xc0}
	labelBg     = color.RGBA{R: 0x20, G: 0x20, B: 0x30, A: 0xd0}
	playerBg    = color.RGBA{R: 0x20, G: 0x40, B: 0x60, A: 0xd0}
)

// Compositor paints inserts onto an RGBA canvas. Paint runs on the event
// loop; Snapshot and WritePNG may be called from any goroutine.
type Compositor struct {
	layout   Layout
	settings config.Settings
	narrator bool

	mu     sync.RWMutex
	canvas *image.RGBA
}

var _ Painter = (*Compositor)(nil)

// NewCompositor creates a compositor with the given layout. The narrator
// bar height is read from settings on every paint; nil settings use the
// default height.
func NewCompositor(layout Layout, settings config.Settings) *Compositor {
	if layout.Width <= 0 || layout.Height <= 0 {
		layout = DefaultLayout
	}
	if layout.PortraitHeight <= 0 {
		layout.PortraitHeight = layout.Height * 7 / 10
	}
	return &Compositor{
		layout:   layout,
		settings: settings,
		canvas: image.NewRGBA(image.Rect(0, 0, layout.Width, layout.Height)),
	}
}

// SetNarrator shows or hides the narrator bar on the next paint.
func (c *Compositor) SetNarrator(active bool) {
	c.narrator = active
}

// Paint implements Painter.
func (c *Compositor) Paint(inserts []*insert.Insert) {
	dst := image.NewRGBA(image.Rect(0, 0, c.layout.Width, c.layout.Height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: backdrop}, image.Point{}, draw.Src)

	ordered := make([]*insert.Insert, len(inserts))
	copy(ordered, inserts)
	// back to front by render order
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].RenderOrder < ordered[j-1].RenderOrder; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	for _, ins := range ordered {
		c.drawPortrait(dst, ins)
	}
	for _, ins := range ordered {
		c.drawLabel(dst, ins)
		c.drawText(dst, ins)
	}
	if h := c.narratorHeight(); c.narrator && h > 0 {
		bar := image.Rect(0, 0, c.layout.Width, h)
		draw.Draw(dst, bar, &image.Uniform{C: narratorBar}, image.Point{}, draw.Over)
	}

	c.mu.Lock()
	c.canvas = dst
	c.mu.Unlock()
}

// Snapshot returns the last painted frame.
func (c *Compositor) Snapshot() *image.RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.canvas
}

// WritePNG encodes the last painted frame.
func (c *Compositor) WritePNG(w io.Writer) error {
	if err := png.Encode(w, c.Snapshot()); err != nil {
		return oops.In("render").Wrapf(err, "encode frame")
	}
	return nil
}

func (c *Compositor) narratorHeight() int {
	if c.settings == nil {
		return config.DefaultNarratorHeight
	}
	return c.settings.NarratorBarHeight()
}

// anchor returns the bottom-center pixel of the portrait.
func (c *Compositor) anchor(p *insert.Portrait) (float64, float64) {
	x := p.DockX*float64(c.layout.Width) + p.X + p.OffsetX
	y := float64(c.layout.Height) + p.Y + p.OffsetY + p.Lift
	return x, y
}

// height returns the on-screen portrait height after the actor's scale.
func (c *Compositor) height(p *insert.Portrait) float64 {
	h := float64(c.layout.PortraitHeight)
	if p.Scale > 0 {
		h *= p.Scale
	}
	return h
}

func (c *Compositor) drawPortrait(dst *image.RGBA, ins *insert.Insert) {
	p := ins.Portrait
	if p == nil || p.Texture == nil || p.Alpha <= 0 {
		return
	}
	src := p.Texture
	b := src.Bounds()
	if b.Dy() == 0 || b.Dx() == 0 {
		return
	}
	h := c.height(p)
	scale := h / float64(b.Dy())
	sx := scale * p.ScaleX
	cx, bottom := c.anchor(p)
	top := bottom - h
	half := float64(b.Dx()) / 2

	s2d := f64.Aff3{
		sx, 0, cx - sx*(half+float64(b.Min.X)),
		0, scale, top - scale*float64(b.Min.Y),
	}
	opts := &draw.Options{}
	if p.Alpha < 1 {
		opts.SrcMask = &image.Uniform{C: color.Alpha{A: uint8(p.Alpha * 0xff)}}
	}
	draw.BiLinear.Transform(dst, s2d, src, b, draw.Over, opts)
}

func (c *Compositor) drawLabel(dst *image.RGBA, ins *insert.Insert) {
	l := ins.Label
	if l == nil || l.Text == "" || l.Alpha <= 0 || ins.Portrait == nil {
		return
	}
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: image.White, Face: face}
	width := d.MeasureString(l.Text).Ceil()

	cx, bottom := c.anchor(ins.Portrait)
	half := c.height(ins.Portrait) / 4
	var x int
	switch l.Align {
	case insert.OrientRight:
		x = int(cx+half) - width
	case insert.OrientCenter:
		x = int(cx) - width/2
	default:
		x = int(cx - half)
	}
	y := int(bottom) - 6

	bg := labelBg
	if ins.PlayerOwned {
		bg = playerBg
	}
	box := image.Rect(x-3, y-face.Ascent-2, x+width+3, y+face.Descent+2)
	draw.Draw(dst, box, &image.Uniform{C: bg}, image.Point{}, draw.Over)
	d.Dot = fixed.P(x, y)
	d.DrawString(l.Text)

	if ins.Typing != nil && ins.Typing.Visible {
		d.Dot = fixed.P(x+width+6, y-int(ins.Typing.Bob*4))
		d.DrawString("...")
	}
}

func (c *Compositor) drawText(dst *image.RGBA, ins *insert.Insert) {
	tb := ins.TextBox
	if tb == nil || tb.Text == "" || tb.Alpha <= 0 || ins.Portrait == nil {
		return
	}
	cx, bottom := c.anchor(ins.Portrait)
	top := bottom - c.height(ins.Portrait)
	d := &font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{C: color.Alpha{A: uint8(tb.Alpha * 0xff)}},
		Face: basicfont.Face7x13,
	}
	width := d.MeasureString(tb.Text).Ceil()
	d.Dot = fixed.P(int(cx)-width/2, int(top)+14)
	d.DrawString(tb.Text)
}
