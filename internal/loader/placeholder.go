// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package loader

import (
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"

	"github.com/samber/oops"

	"github.com/holomush/theatre/internal/loop"
)

// PlaceholderSize is the edge length of placeholder textures.
const PlaceholderSize = 64

// Placeholder is a loader that never touches the network. Every resource
// becomes a solid swatch whose color is derived from its name. Used by
// headless replays and tests.
type Placeholder struct {
	sched    loop.Scheduler
	known    map[string]Resource
	textures map[string]image.Image
	pending  []Resource
	fail     map[string]bool
	busy     bool
	adds     int
}

var _ Loader = (*Placeholder)(nil)

// NewPlaceholder creates a placeholder loader.
func NewPlaceholder(sched loop.Scheduler) *Placeholder {
	return &Placeholder{
		sched:    sched,
		known:    make(map[string]Resource),
		textures: make(map[string]image.Image),
		fail:     make(map[string]bool),
	}
}

// FailOn makes loads of the named resource fail.
func (p *Placeholder) FailOn(name string) {
	p.fail[name] = true
}

// SetBusy forces the busy flag.
func (p *Placeholder) SetBusy(busy bool) {
	p.busy = busy
}

// Adds returns how many resources were registered.
func (p *Placeholder) Adds() int {
	return p.adds
}

// Busy implements Loader.
func (p *Placeholder) Busy() bool {
	return p.busy
}

// Has implements Loader.
func (p *Placeholder) Has(name string) bool {
	_, ok := p.known[name]
	return ok
}

// Add implements Loader.
func (p *Placeholder) Add(res Resource) error {
	if p.busy {
		return oops.Code(CodeLoaderBusy).With("resource", res.Name).Errorf("loader is busy")
	}
	if _, ok := p.known[res.Name]; ok {
		return nil
	}
	p.known[res.Name] = res
	p.pending = append(p.pending, res)
	p.adds++
	return nil
}

// Load implements Loader. Completion is posted to the scheduler.
func (p *Placeholder) Load(done func(err error)) error {
	if p.busy {
		return oops.Code(CodeLoaderBusy).Errorf("loader is busy")
	}
	batch := p.pending
	p.pending = nil
	p.busy = true

	p.sched.Post(func() {
		var firstErr error
		for _, res := range batch {
			if p.fail[res.Name] {
				delete(p.known, res.Name)
				if firstErr == nil {
					firstErr = oops.Code(CodeLoadFailed).With("resource", res.Name).Errorf("placeholder load failed")
				}
				continue
			}
			p.textures[res.Name] = swatch(res.Name)
		}
		p.busy = false
		if done != nil {
			done(firstErr)
		}
	})
	return nil
}

// Texture implements Loader.
func (p *Placeholder) Texture(name string) (image.Image, bool) {
	img, ok := p.textures[name]
	return img, ok
}

func swatch(name string) image.Image {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	sum := h.Sum32()
	c := color.RGBA{R: uint8(sum >> 16), G: uint8(sum >> 8), B: uint8(sum), A: 0xff}

	img := image.NewRGBA(image.Rect(0, 0, PlaceholderSize, PlaceholderSize))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}
