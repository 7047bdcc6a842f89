// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package command maps wire method names and loosely typed arguments onto
// session operations.
package command

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/playctl/internal/log"
	"github.com/ManuGH/playctl/internal/media"
	"github.com/ManuGH/playctl/internal/metrics"
	"github.com/ManuGH/playctl/internal/tracks"
)

// ErrUnimplemented is returned for unknown methods.
var ErrUnimplemented = errors.New("unimplemented")

// Target is the session surface commands operate on.
type Target interface {
	Configure(ctx context.Context, items []media.Item, opts media.SessionOptions) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	SeekTo(ctx context.Context, positionMs int64) error
	SetSpeed(ctx context.Context, speed float64) error
	SetLooping(ctx context.Context, loop bool) error
	SetFit(ctx context.Context, fit string) error
	SetDataSaver(ctx context.Context, enabled bool) error
	Retry(ctx context.Context) error
	SelectTrack(ctx context.Context, t media.Type, id string) (bool, error)
	ListTracks(ctx context.Context, t media.Type) ([]tracks.Info, error)
	EnterPip(ctx context.Context) (bool, error)
	Dispose(ctx context.Context) error
}

type handler func(ctx context.Context, d *Dispatcher, t Target, args Args) (any, error)

// Dispatcher resolves method names. It is safe for concurrent use.
type Dispatcher struct {
	mu       sync.RWMutex
	defaults media.SessionOptions
	handlers map[string]handler
	logger   zerolog.Logger
}

// NewDispatcher uses defaults for configure arguments that are absent.
func NewDispatcher(defaults media.SessionOptions) *Dispatcher {
	return &Dispatcher{
		defaults: defaults,
		handlers: handlers(),
		logger:   xglog.WithComponent("command"),
	}
}

// Defaults returns the configure defaults.
func (d *Dispatcher) Defaults() media.SessionOptions {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.defaults
}

// SetDefaults replaces the configure defaults for later commands.
func (d *Dispatcher) SetDefaults(opts media.SessionOptions) {
	d.mu.Lock()
	d.defaults = opts
	d.mu.Unlock()
}

// Methods lists every accepted method name, aliases included.
func (d *Dispatcher) Methods() []string {
	out := make([]string, 0, len(d.handlers))
	for m := range d.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs method against t. Unknown methods return ErrUnimplemented.
func (d *Dispatcher) Dispatch(ctx context.Context, t Target, method string, args Args) (any, error) {
	method = strings.TrimSpace(method)
	h, ok := d.handlers[method]
	if !ok {
		metrics.IncCommand("unknown", metrics.ResultUnimplemented)
		d.logger.Debug().Str(xglog.FieldEvent, "command.unimplemented").Str(xglog.FieldCommand, method).Msg("unknown method")
		return nil, ErrUnimplemented
	}
	if args == nil {
		args = Args{}
	}

	res, err := h(ctx, d, t, args)
	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError
	}
	metrics.IncCommand(method, result)

	logger := xglog.WithContext(ctx, d.logger)
	logger.Debug().
		Str(xglog.FieldEvent, "command.dispatched").
		Str(xglog.FieldCommand, method).
		AnErr("error", err).
		Msg("command")
	return res, err
}

func handlers() map[string]handler {
	h := map[string]handler{
		"configure": func(ctx context.Context, d *Dispatcher, t Target, a Args) (any, error) {
			items, opts := DecodeConfigure(a, d.Defaults())
			return nil, t.Configure(ctx, items, opts)
		},
		"play": func(ctx context.Context, _ *Dispatcher, t Target, _ Args) (any, error) {
			return nil, t.Play(ctx)
		},
		"pause": func(ctx context.Context, _ *Dispatcher, t Target, _ Args) (any, error) {
			return nil, t.Pause(ctx)
		},
		"seekTo": func(ctx context.Context, _ *Dispatcher, t Target, a Args) (any, error) {
			return nil, t.SeekTo(ctx, a.Int64("millis", 0))
		},
		"setSpeed": func(ctx context.Context, _ *Dispatcher, t Target, a Args) (any, error) {
			return nil, t.SetSpeed(ctx, a.Float("speed", 1.0))
		},
		"setLooping": func(ctx context.Context, _ *Dispatcher, t Target, a Args) (any, error) {
			return nil, t.SetLooping(ctx, a.Bool("loop", false))
		},
		"setFit": func(ctx context.Context, _ *Dispatcher, t Target, a Args) (any, error) {
			return nil, t.SetFit(ctx, a.String("fit", string(media.FitContain)))
		},
		"retry": func(ctx context.Context, _ *Dispatcher, t Target, _ Args) (any, error) {
			return nil, t.Retry(ctx)
		},
		"selectTrack": func(ctx context.Context, _ *Dispatcher, t Target, a Args) (any, error) {
			typ, ok := media.ParseType(a.String("type", ""))
			if !ok {
				return false, nil
			}
			return t.SelectTrack(ctx, typ, a.String("id", ""))
		},
		"listTracks": func(ctx context.Context, _ *Dispatcher, t Target, a Args) (any, error) {
			typ, ok := media.ParseType(a.String("type", ""))
			if !ok {
				return []tracks.Info{}, nil
			}
			return listTracks(ctx, t, typ)
		},
		"setDataSaver": func(ctx context.Context, _ *Dispatcher, t Target, a Args) (any, error) {
			return nil, t.SetDataSaver(ctx, a.Bool("enable", false))
		},
		"enterPip": func(ctx context.Context, _ *Dispatcher, t Target, _ Args) (any, error) {
			return t.EnterPip(ctx)
		},
		"dispose": func(ctx context.Context, _ *Dispatcher, t Target, _ Args) (any, error) {
			return nil, t.Dispose(ctx)
		},
	}
	h["setBoxFit"] = h["setFit"]

	for name, typ := range map[string]media.Type{
		"Video":    media.TypeVideo,
		"Audio":    media.TypeAudio,
		"Subtitle": media.TypeText,
	} {
		h["get"+name+"Tracks"] = func(ctx context.Context, _ *Dispatcher, t Target, _ Args) (any, error) {
			return listTracks(ctx, t, typ)
		}
		h["set"+name+"Track"] = func(ctx context.Context, _ *Dispatcher, t Target, a Args) (any, error) {
			return t.SelectTrack(ctx, typ, a.String("id", ""))
		}
	}
	return h
}

func listTracks(ctx context.Context, t Target, typ media.Type) ([]tracks.Info, error) {
	list, err := t.ListTracks(ctx, typ)
	if list == nil && err == nil {
		list = []tracks.Info{}
	}
	return list, err
}
