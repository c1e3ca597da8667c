// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package stage

import (
	"github.com/samber/oops"
)

// Error codes for stage operations.
const (
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInsertNotFound   = "INSERT_NOT_FOUND"
	CodeNotGM            = "NOT_GM"
)

// ErrPermissionDenied creates an error for an operation on an actor the
// local user does not own.
func ErrPermissionDenied(op, imgID string) error {
	return oops.Code(CodePermissionDenied).
		With("op", op).
		With("img_id", imgID).
		Errorf("permission denied for %s on %s", op, imgID)
}

// ErrInsertNotFound creates an error for an operation on an insert that is
// not on stage.
func ErrInsertNotFound(imgID string) error {
	return oops.Code(CodeInsertNotFound).
		With("img_id", imgID).
		Errorf("insert not on stage: %s", imgID)
}

// ErrNotGM creates an error for a game master operation attempted by a
// player.
func ErrNotGM(op string) error {
	return oops.Code(CodeNotGM).
		With("op", op).
		Errorf("%s requires a game master", op)
}
