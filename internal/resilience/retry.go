// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package resilience

import (
	"time"

	"github.com/ManuGH/playctl/internal/media"
)

// Decision is the outcome of a retry evaluation.
// The zero value is "retry immediately"; use Suppressed to stop.
type Decision struct {
	Delay      time.Duration
	Suppressed bool
}

// Suppress is the decision to give up on the current loadable.
var Suppress = Decision{Suppressed: true}

func (d Decision) String() string {
	if d.Suppressed {
		return "suppressed"
	}
	return d.Delay.String()
}

// DelayFor computes the linear, capped backoff for the attempt-th consecutive
// load failure. attempt is 1-based and coerced to at least 1.
func DelayFor(attempt int, opts media.PlaybackOptions) Decision {
	if !opts.AutoRetry {
		return Suppress
	}
	if attempt < 1 {
		attempt = 1
	}
	if opts.MaxRetryCount >= 0 && attempt > opts.MaxRetryCount {
		return Suppress
	}
	delay := int64(opts.InitialRetryDelayMs) * int64(attempt)
	if ceiling := int64(opts.MaxRetryDelayMs); delay > ceiling {
		delay = ceiling
	}
	if delay < 0 {
		delay = 0
	}
	return Decision{Delay: time.Duration(delay) * time.Millisecond}
}

// DataType classifies a loadable for MinimumRetryCount.
type DataType string

const (
	DataManifest DataType = "manifest"
	DataMedia    DataType = "media"
	DataDrm      DataType = "drm"
)

// MinimumRetryCount returns the retry floor for dataType. ok is false when the
// engine should use its own default.
func MinimumRetryCount(_ DataType, opts media.PlaybackOptions) (count int, ok bool) {
	if opts.MaxRetryCount >= 0 {
		return opts.MaxRetryCount, true
	}
	return 0, false
}

// LoadErrorPolicy is the value installed on an engine at prepare time.
type LoadErrorPolicy struct {
	opts     media.PlaybackOptions
	observer func(attempt int, d Decision)
}

// NewLoadErrorPolicy binds options; observer may be nil.
func NewLoadErrorPolicy(opts media.PlaybackOptions, observer func(attempt int, d Decision)) *LoadErrorPolicy {
	return &LoadErrorPolicy{opts: opts, observer: observer}
}

// RetryDelay evaluates DelayFor and reports the decision to the observer.
func (p *LoadErrorPolicy) RetryDelay(attempt int) Decision {
	if p == nil {
		return Suppress
	}
	d := DelayFor(attempt, p.opts)
	if p.observer != nil {
		p.observer(attempt, d)
	}
	return d
}

// MinimumRetryCount delegates to the package function with the bound options.
func (p *LoadErrorPolicy) MinimumRetryCount(dt DataType) (int, bool) {
	if p == nil {
		return 0, false
	}
	return MinimumRetryCount(dt, p.opts)
}

// Options returns the bound options.
func (p *LoadErrorPolicy) Options() media.PlaybackOptions {
	return p.opts
}
