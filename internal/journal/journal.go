// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package journal records every envelope a peer sends or receives so a
// session can be replayed later.
package journal

import (
	"slices"
	"sync"
	"time"

	"github.com/holomush/theatre/internal/protocol"
)

// Direction tells whether an envelope was sent or received.
type Direction string

// Directions.
const (
	Sent     Direction = "out"
	Received Direction = "in"
)

// Entry is one journaled envelope.
type Entry struct {
	At        time.Time         `json:"at"`
	Direction Direction         `json:"dir"`
	Envelope  protocol.Envelope `json:"env"`
}

// Journal stores entries.
type Journal interface {
	Record(e Entry) error
	Close() error
}

// Memory keeps entries in memory.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

var _ Journal = (*Memory)(nil)

// NewMemory creates an empty in-memory journal.
func NewMemory() *Memory {
	return &Memory{}
}

// Record appends e.
func (m *Memory) Record(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	recorded.WithLabelValues(string(e.Direction)).Inc()
	return nil
}

// Entries returns a copy of everything recorded so far.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
