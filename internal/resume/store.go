// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package resume remembers where playback of a media URL stopped, so a later
// session configured with resume can start from there.
package resume

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// State is the persisted position of one media item.
type State struct {
	PositionMs int64
	DurationMs int64
	Finished   bool
	UpdatedAt  time.Time
}

// Store persists resume states keyed by media URL.
type Store interface {
	Put(ctx context.Context, key string, state *State) error
	// Get returns nil, nil when nothing is stored for key.
	Get(ctx context.Context, key string) (*State, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// FinishedThreshold marks an item finished when this close to its end.
const FinishedThreshold = 5 * time.Second

// NewState derives Finished from position and duration.
func NewState(positionMs, durationMs int64, now time.Time) *State {
	finished := durationMs > 0 && durationMs-positionMs <= FinishedThreshold.Milliseconds()
	return &State{
		PositionMs: positionMs,
		DurationMs: durationMs,
		Finished:   finished,
		UpdatedAt:  now.UTC(),
	}
}

// StartPosition is where a resumed session should begin. Finished items
// start over.
func (s *State) StartPosition() int64 {
	if s == nil || s.Finished || s.PositionMs < 0 {
		return 0
	}
	return s.PositionMs
}

// NewStore creates a resume store for backend ("sqlite" or "memory").
// sqlite with an empty dir falls back to memory.
func NewStore(backend, dir string) (Store, error) {
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "sqlite":
		if dir == "" {
			return NewMemoryStore(), nil
		}
		return NewSqliteStore(filepath.Join(dir, "resume.sqlite"))
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown resume store backend: %s (supported: sqlite, memory)", backend)
	}
}

// MemoryStore implements Store using a map.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]State
}

// NewMemoryStore creates an in-memory resume store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]State)}
}

func (s *MemoryStore) Put(_ context.Context, key string, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return errClosed
	}
	s.data[key] = *state
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if val, ok := s.data[key]; ok {
		return &val, nil
	}
	return nil, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.data = nil
	s.mu.Unlock()
	return nil
}
