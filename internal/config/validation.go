// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"
)

// Validate checks every section and joins all problems into one error
// wrapping ErrInvalidConfig.
func Validate(cfg Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, _, err := net.SplitHostPort(cfg.Server.Listen); err != nil {
		add("server.listen %q: %v", cfg.Server.Listen, err)
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		add("server.shutdownTimeout must be positive")
	}
	if cfg.Server.RateLimit < 0 {
		add("server.rateLimit must not be negative")
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err != nil {
		add("log.level %q: %v", cfg.Log.Level, err)
	}
	if strings.TrimSpace(cfg.Engine.Kind) == "" {
		add("engine.kind is required")
	}

	if cfg.Session.SampleInterval < 0 {
		add("session.sampleInterval must not be negative")
	}
	if cfg.Session.MaxSessions < 0 {
		add("session.maxSessions must not be negative")
	}
	if cfg.Session.IntentRate < 0 || cfg.Session.IntentBurst < 0 {
		add("session.intentRate and session.intentBurst must not be negative")
	}

	if cfg.Playback.InitialRetryDelayMs < 0 || cfg.Playback.MaxRetryDelayMs < 0 {
		add("playback retry delays must not be negative")
	}
	if cfg.Playback.MaxRetryDelayMs < cfg.Playback.InitialRetryDelayMs {
		add("playback.maxRetryDelayMs (%d) is below initialRetryDelayMs (%d)",
			cfg.Playback.MaxRetryDelayMs, cfg.Playback.InitialRetryDelayMs)
	}
	if cfg.Playback.RebufferTimeoutMs < 0 {
		add("playback.rebufferTimeoutMs must not be negative")
	}

	switch cfg.Resume.Backend {
	case "sqlite", "memory", "off":
	default:
		add("resume.backend %q: want sqlite, memory or off", cfg.Resume.Backend)
	}

	if r := cfg.Surfaces.Redis; r.Enabled {
		if r.Addr == "" {
			add("surfaces.redis.addr is required when enabled")
		}
		if r.BreakerThreshold <= 0 || r.BreakerCooldown <= 0 {
			add("surfaces.redis breaker threshold and cooldown must be positive")
		}
	}

	if t := cfg.Telemetry; t.Enabled {
		if t.Protocol != "grpc" && t.Protocol != "http" {
			add("telemetry.protocol %q: want grpc or http", t.Protocol)
		}
		if t.Endpoint == "" {
			add("telemetry.endpoint is required when enabled")
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			add("telemetry.sampleRate must be within [0,1]")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
