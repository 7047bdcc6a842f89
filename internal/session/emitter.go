// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"sync"

	"github.com/ManuGH/playctl/internal/media"
)

// Sink receives snapshots from the session owner goroutine.
// Push must not block.
type Sink interface {
	Push(snap media.Snapshot) bool
	Close()
}

// Snapshot triggers.
const (
	triggerSubscribe  = "subscribe"
	triggerTick       = "tick"
	triggerTransition = "transition"
	triggerEvent      = "event"
	triggerError      = "error"
)

// DefaultSinkBuffer is the queue depth of a ChannelSink created with size <= 0.
const DefaultSinkBuffer = 16

// ChannelSink delivers snapshots over a buffered channel and drops them when
// the reader falls behind.
type ChannelSink struct {
	mu     sync.Mutex
	ch     chan media.Snapshot
	closed bool
	done   chan struct{}
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = DefaultSinkBuffer
	}
	return &ChannelSink{
		ch:   make(chan media.Snapshot, size),
		done: make(chan struct{}),
	}
}

// C is closed when the sink is closed, after buffered snapshots.
func (s *ChannelSink) C() <-chan media.Snapshot { return s.ch }

// Done is closed when the sink is closed.
func (s *ChannelSink) Done() <-chan struct{} { return s.done }

// Push reports false when the snapshot was dropped.
func (s *ChannelSink) Push(snap media.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- snap:
		return true
	default:
		return false
	}
}

// Close is idempotent.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	close(s.done)
}
