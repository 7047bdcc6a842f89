// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"fmt"
	"sort"
	"sync"
)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes an engine kind available to Lookup. Engines register from init.
func Register(kind string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, dup := factories[kind]; dup {
		panic(fmt.Sprintf("engine: duplicate registration of %q", kind))
	}
	factories[kind] = f
}

// Lookup returns the factory for kind.
func Lookup(kind string) (Factory, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown engine kind %q (available: %v)", kind, kindsLocked())
	}
	return f, nil
}

// Kinds lists the registered engine kinds.
func Kinds() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	return kindsLocked()
}

func kindsLocked() []string {
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
