// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package loader serializes texture requests against the one shared
// resource loader that backs every insert.
package loader

import (
	"image"
)

// Error codes returned by this package.
const (
	CodeLoadFailed    = "LOAD_FAILED"
	CodeFetchFailed   = "FETCH_FAILED"
	CodeDecodeFailed  = "DECODE_FAILED"
	CodeLoaderBusy    = "LOADER_BUSY"
	CodeInvalidSprite = "INVALID_SPRITE"
)

// Resource is a named image source.
type Resource struct {
	Name string
	Path string
}

// Loader is the shared mutable loader. Only one load may be in flight; the
// resource set must not change while Busy reports true.
type Loader interface {
	// Busy reports whether a load is in flight.
	Busy() bool
	// Has reports whether name is registered, loaded or pending.
	Has(name string) bool
	// Add registers a resource for the next Load.
	Add(res Resource) error
	// Load fetches every pending resource and calls done on the event loop.
	Load(done func(err error)) error
	// Texture returns a loaded image.
	Texture(name string) (image.Image, bool)
}
