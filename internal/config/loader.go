// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
	version    string
	// ConsumedEnvKeys records every environment key the loader looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. An empty configPath means ENV and defaults only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, if any.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, def string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, def)
}

func (l *Loader) envBool(key string, def bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, def)
}

func (l *Loader) envInt(key string, def int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, def)
}

func (l *Loader) envFloat(key string, def float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, def)
}

func (l *Loader) envDuration(key string, def time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, def)
}

func (l *Loader) envList(key string, def []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, def)
}

// Load applies defaults, then the file (strict), then the environment, then validates.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if cfg.Resume.DataDir != "" {
		if abs, err := filepath.Abs(cfg.Resume.DataDir); err == nil {
			cfg.Resume.DataDir = abs
		}
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes YAML on top of cfg. Unknown fields are rejected.
func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *Config) {
	p := EnvPrefix

	cfg.Server.Listen = l.envString(p+"LISTEN", cfg.Server.Listen)
	cfg.Server.ReadHeaderTimeout = l.envDuration(p+"READ_HEADER_TIMEOUT", cfg.Server.ReadHeaderTimeout)
	cfg.Server.ShutdownTimeout = l.envDuration(p+"SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.RateLimit = l.envInt(p+"RATE_LIMIT", cfg.Server.RateLimit)
	cfg.Server.AllowedOrigins = l.envList(p+"ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)

	cfg.Log.Level = l.envString(p+"LOG_LEVEL", cfg.Log.Level)
	cfg.Engine.Kind = l.envString(p+"ENGINE", cfg.Engine.Kind)

	cfg.Session.SampleInterval = l.envDuration(p+"SAMPLE_INTERVAL", cfg.Session.SampleInterval)
	cfg.Session.DataSaverCap = l.envInt(p+"DATA_SAVER_CAP", cfg.Session.DataSaverCap)
	cfg.Session.MaxSessions = l.envInt(p+"MAX_SESSIONS", cfg.Session.MaxSessions)
	cfg.Session.IntentRate = l.envFloat(p+"INTENT_RATE", cfg.Session.IntentRate)
	cfg.Session.IntentBurst = l.envInt(p+"INTENT_BURST", cfg.Session.IntentBurst)

	cfg.Playback.MaxRetryCount = l.envInt(p+"MAX_RETRY_COUNT", cfg.Playback.MaxRetryCount)
	cfg.Playback.InitialRetryDelayMs = l.envInt(p+"INITIAL_RETRY_DELAY_MS", cfg.Playback.InitialRetryDelayMs)
	cfg.Playback.MaxRetryDelayMs = l.envInt(p+"MAX_RETRY_DELAY_MS", cfg.Playback.MaxRetryDelayMs)
	cfg.Playback.AutoRetry = l.envBool(p+"AUTO_RETRY", cfg.Playback.AutoRetry)
	cfg.Playback.RebufferTimeoutMs = l.envInt(p+"REBUFFER_TIMEOUT_MS", cfg.Playback.RebufferTimeoutMs)

	cfg.Resume.Backend = l.envString(p+"RESUME_BACKEND", cfg.Resume.Backend)
	cfg.Resume.DataDir = l.envString(p+"DATA_DIR", cfg.Resume.DataDir)

	cfg.Surfaces.MPRIS.Enabled = l.envBool(p+"MPRIS_ENABLED", cfg.Surfaces.MPRIS.Enabled)
	cfg.Surfaces.MPRIS.Identity = l.envString(p+"MPRIS_IDENTITY", cfg.Surfaces.MPRIS.Identity)

	r := &cfg.Surfaces.Redis
	r.Enabled = l.envBool(p+"REDIS_ENABLED", r.Enabled)
	r.Addr = l.envString(p+"REDIS_ADDR", r.Addr)
	r.Password = l.envString(p+"REDIS_PASSWORD", r.Password)
	r.DB = l.envInt(p+"REDIS_DB", r.DB)
	r.Prefix = l.envString(p+"REDIS_PREFIX", r.Prefix)
	r.StateTTL = l.envDuration(p+"REDIS_STATE_TTL", r.StateTTL)

	t := &cfg.Telemetry
	t.Enabled = l.envBool(p+"TELEMETRY_ENABLED", t.Enabled)
	t.Protocol = l.envString(p+"OTLP_PROTOCOL", t.Protocol)
	t.Endpoint = l.envString(p+"OTLP_ENDPOINT", t.Endpoint)
	t.ServiceName = l.envString(p+"SERVICE_NAME", t.ServiceName)
	t.SampleRate = l.envFloat(p+"TRACE_SAMPLE_RATE", t.SampleRate)
}
