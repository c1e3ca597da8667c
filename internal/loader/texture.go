// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package loader

import (
	"context"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"log/slog"

	"github.com/samber/oops"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/holomush/theatre/internal/loop"
)

// Decode reads one image in any registered format.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", oops.Code(CodeDecodeFailed).Wrap(err)
	}
	return img, format, nil
}

// TextureLoader fetches and decodes images off the loop and stores the
// results on it. All methods must be called on the event loop.
type TextureLoader struct {
	ctx   context.Context
	sched loop.Scheduler
	fetch Fetcher

	known    map[string]Resource
	textures map[string]image.Image
	pending  []Resource
	busy     bool
}

var _ Loader = (*TextureLoader)(nil)

// NewTextureLoader creates a loader that fetches through f. ctx bounds
// every fetch.
func NewTextureLoader(ctx context.Context, sched loop.Scheduler, f Fetcher) *TextureLoader {
	return &TextureLoader{
		ctx:      ctx,
		sched:    sched,
		fetch:    f,
		known:    make(map[string]Resource),
		textures: make(map[string]image.Image),
	}
}

// Busy implements Loader.
func (l *TextureLoader) Busy() bool {
	return l.busy
}

// Has implements Loader.
func (l *TextureLoader) Has(name string) bool {
	_, ok := l.known[name]
	return ok
}

// Add implements Loader.
func (l *TextureLoader) Add(res Resource) error {
	if l.busy {
		return oops.Code(CodeLoaderBusy).With("resource", res.Name).Errorf("loader is busy")
	}
	if _, ok := l.known[res.Name]; ok {
		return nil
	}
	l.known[res.Name] = res
	l.pending = append(l.pending, res)
	return nil
}

// Load implements Loader.
func (l *TextureLoader) Load(done func(err error)) error {
	if l.busy {
		return oops.Code(CodeLoaderBusy).Errorf("loader is busy")
	}
	batch := l.pending
	l.pending = nil
	l.busy = true

	go func() {
		type result struct {
			res Resource
			img image.Image
			err error
		}
		results := make([]result, 0, len(batch))
		for _, res := range batch {
			img, err := l.fetchOne(res)
			results = append(results, result{res: res, img: img, err: err})
		}

		l.sched.Post(func() {
			var firstErr error
			for _, r := range results {
				if r.err != nil {
					// forget it so a later request can try again
					delete(l.known, r.res.Name)
					if firstErr == nil {
						firstErr = r.err
					}
					continue
				}
				l.textures[r.res.Name] = r.img
			}
			l.busy = false
			if done != nil {
				done(firstErr)
			}
		})
	}()
	return nil
}

// Texture implements Loader.
func (l *TextureLoader) Texture(name string) (image.Image, bool) {
	img, ok := l.textures[name]
	return img, ok
}

func (l *TextureLoader) fetchOne(res Resource) (image.Image, error) {
	rc, err := l.fetch.Fetch(l.ctx, res.Path)
	if err != nil {
		return nil, oops.Code(CodeLoadFailed).With("resource", res.Name).Wrap(err)
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			slog.Debug("closing texture source", "resource", res.Name, "error", cerr)
		}
	}()

	img, format, err := Decode(rc)
	if err != nil {
		return nil, oops.Code(CodeLoadFailed).With("resource", res.Name).With("path", res.Path).Wrap(err)
	}
	slog.Debug("texture decoded", "resource", res.Name, "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return img, nil
}
