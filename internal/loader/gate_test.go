// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package loader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/theatre/internal/loop/looptest"
	"github.com/holomush/theatre/pkg/errutil"
)

func TestGate_BusyLoaderRetriesAfterDelay(t *testing.T) {
	m := looptest.NewManual()
	p := NewPlaceholder(m)
	g := NewGate(m, p)
	p.SetBusy(true)

	calls := 0
	var gotErr error
	g.AddSprites([]Resource{{Name: "x", Path: "x"}}, func(err error) {
		calls++
		gotErr = err
	})

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, p.Adds(), "busy loader must not be touched")
	assert.Equal(t, 1, m.PendingTimers())

	m.Advance(BusyRetryDelay - time.Millisecond)
	assert.Equal(t, 0, calls)

	p.SetBusy(false)
	m.Advance(time.Millisecond)

	require.Equal(t, 1, calls)
	require.NoError(t, gotErr)
	assert.Equal(t, 1, p.Adds())
	assert.True(t, p.Has("x"))
	_, ok := p.Texture("x")
	assert.True(t, ok)
}

func TestGate_KeepsPollingWhileBusy(t *testing.T) {
	m := looptest.NewManual()
	p := NewPlaceholder(m)
	g := NewGate(m, p)
	p.SetBusy(true)

	done := false
	g.AddSprites([]Resource{{Name: "x", Path: "x"}}, func(error) { done = true })

	for range 3 {
		m.Advance(BusyRetryDelay)
		assert.False(t, done)
		assert.Equal(t, 1, m.PendingTimers(), "exactly one retry timer is armed")
	}

	p.SetBusy(false)
	m.Advance(BusyRetryDelay)
	assert.True(t, done)
	assert.Equal(t, 0, m.PendingTimers())
}

func TestGate_AddIsIdempotentPerName(t *testing.T) {
	m := looptest.NewManual()
	p := NewPlaceholder(m)
	g := NewGate(m, p)

	served := 0
	g.AddSprites([]Resource{{Name: "x", Path: "x"}}, func(error) { served++ })
	g.AddSprites([]Resource{{Name: "x", Path: "x"}, {Name: "y", Path: "y"}}, func(error) { served++ })
	m.Drain()
	g.AddSprites([]Resource{{Name: "x", Path: "x"}}, func(error) { served++ })
	m.Drain()

	assert.Equal(t, 3, served)
	assert.Equal(t, 2, p.Adds())
	assert.Equal(t, 0, g.Pending())
}

func TestGate_SecondRequestWaitsForFirstLoad(t *testing.T) {
	m := looptest.NewManual()
	p := NewPlaceholder(m)
	g := NewGate(m, p)

	var order []string
	g.AddSprites([]Resource{{Name: "a", Path: "a"}}, func(error) { order = append(order, "a") })
	g.AddSprites([]Resource{{Name: "b", Path: "b"}}, func(error) { order = append(order, "b") })

	assert.Equal(t, 2, g.Pending())
	m.Drain()

	assert.Equal(t, []string{"a", "b"}, order)
}

func TestGate_FailureDoesNotStallQueue(t *testing.T) {
	m := looptest.NewManual()
	p := NewPlaceholder(m)
	p.FailOn("bad")
	g := NewGate(m, p)

	var badErr, goodErr error
	goodCalled := false
	g.AddSprites([]Resource{{Name: "bad", Path: "bad.png"}}, func(err error) { badErr = err })
	g.AddSprites([]Resource{{Name: "good", Path: "good.png"}}, func(err error) {
		goodCalled = true
		goodErr = err
	})
	m.Drain()

	errutil.AssertErrorCode(t, badErr, CodeLoadFailed)
	assert.True(t, goodCalled)
	assert.NoError(t, goodErr)
	assert.False(t, p.Has("bad"), "failed resource can be requested again")
}

func TestGate_RejectsIncompleteSprite(t *testing.T) {
	m := looptest.NewManual()
	g := NewGate(m, NewPlaceholder(m))

	var got error
	g.AddSprites([]Resource{{Name: "x"}}, func(err error) { got = err })

	errutil.AssertErrorCode(t, got, CodeInvalidSprite)
	assert.Equal(t, 0, g.Pending())
}
