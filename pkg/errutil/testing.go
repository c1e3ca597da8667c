// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestingT is the part of *testing.T the assertions use.
type TestingT interface {
	require.TestingT
	Helper()
}

func mustOops(t TestingT, err error) oops.OopsError {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode asserts that err is an oops error with the given code.
func AssertErrorCode(t TestingT, err error, code string) {
	t.Helper()
	assert.Equal(t, code, mustOops(t, err).Code(), "error: %v", err)
}

// AssertErrorContext asserts that err is an oops error with the given
// context key and value.
func AssertErrorContext(t TestingT, err error, key string, value any) {
	t.Helper()
	ctx := mustOops(t, err).Context()
	if assert.Contains(t, ctx, key) {
		assert.Equal(t, value, ctx[key])
	}
}
