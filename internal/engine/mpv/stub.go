// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build !libmpv

package mpv

import (
	"context"

	"github.com/ManuGH/playctl/internal/engine"
)

func newEngine(context.Context) (engine.Engine, error) {
	return nil, engine.ErrNotEnabled
}
