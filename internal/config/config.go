// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the playctld daemon configuration.
// Precedence is ENV > YAML file > defaults.
package config

import (
	"time"

	"github.com/ManuGH/playctl/internal/media"
)

// Config is the effective daemon configuration.
type Config struct {
	Version string `yaml:"-"`

	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Engine    EngineConfig    `yaml:"engine"`
	Session   SessionConfig   `yaml:"session"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Resume    ResumeConfig    `yaml:"resume"`
	Surfaces  SurfacesConfig  `yaml:"surfaces"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Listen            string        `yaml:"listen"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit      int      `yaml:"rateLimit"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type EngineConfig struct {
	Kind string `yaml:"kind"`
}

type SessionConfig struct {
	SampleInterval time.Duration `yaml:"sampleInterval"`
	DataSaverCap   int           `yaml:"dataSaverCap"`
	MaxSessions    int           `yaml:"maxSessions"`
	IntentRate     float64       `yaml:"intentRate"`
	IntentBurst    int           `yaml:"intentBurst"`
}

// PlaybackConfig holds the defaults applied to configure commands that omit
// playbackOptions.
type PlaybackConfig struct {
	MaxRetryCount       int  `yaml:"maxRetryCount"`
	InitialRetryDelayMs int  `yaml:"initialRetryDelayMs"`
	MaxRetryDelayMs     int  `yaml:"maxRetryDelayMs"`
	AutoRetry           bool `yaml:"autoRetry"`
	RebufferTimeoutMs   int  `yaml:"rebufferTimeoutMs"`
}

type ResumeConfig struct {
	// Backend is "sqlite", "memory" or "off".
	Backend string `yaml:"backend"`
	DataDir string `yaml:"dataDir"`
}

type SurfacesConfig struct {
	MPRIS MPRISConfig `yaml:"mpris"`
	Redis RedisConfig `yaml:"redis"`
}

type MPRISConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Identity string `yaml:"identity"`
}

type RedisConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Addr             string        `yaml:"addr"`
	Password         string        `yaml:"password"`
	DB               int           `yaml:"db"`
	Prefix           string        `yaml:"prefix"`
	StateTTL         time.Duration `yaml:"stateTTL"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown"`
}

type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Protocol is "grpc" or "http".
	Protocol    string  `yaml:"protocol"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"serviceName"`
	SampleRate  float64 `yaml:"sampleRate"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	pb := media.DefaultPlaybackOptions()
	return Config{
		Server: ServerConfig{
			Listen:            ":8088",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RateLimit:         600,
		},
		Log:    LogConfig{Level: "info"},
		Engine: EngineConfig{Kind: "sim"},
		Session: SessionConfig{
			SampleInterval: 500 * time.Millisecond,
			DataSaverCap:   800_000,
			MaxSessions:    64,
			IntentRate:     5,
			IntentBurst:    3,
		},
		Playback: PlaybackConfig{
			MaxRetryCount:       pb.MaxRetryCount,
			InitialRetryDelayMs: pb.InitialRetryDelayMs,
			MaxRetryDelayMs:     pb.MaxRetryDelayMs,
			AutoRetry:           pb.AutoRetry,
			RebufferTimeoutMs:   pb.RebufferTimeoutMs,
		},
		Resume: ResumeConfig{Backend: "sqlite", DataDir: "/var/lib/playctl"},
		Surfaces: SurfacesConfig{
			MPRIS: MPRISConfig{Identity: "playctl"},
			Redis: RedisConfig{
				Addr:             "localhost:6379",
				Prefix:           "playctl",
				StateTTL:         time.Minute,
				BreakerThreshold: 5,
				BreakerCooldown:  30 * time.Second,
			},
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			Endpoint:    "localhost:4317",
			ServiceName: "playctl",
			SampleRate:  1.0,
		},
	}
}

// SessionDefaults maps the playback section onto configure defaults.
func (c Config) SessionDefaults() media.SessionOptions {
	opts := media.DefaultSessionOptions()
	opts.Playback = media.PlaybackOptions{
		MaxRetryCount:       c.Playback.MaxRetryCount,
		InitialRetryDelayMs: c.Playback.InitialRetryDelayMs,
		MaxRetryDelayMs:     c.Playback.MaxRetryDelayMs,
		AutoRetry:           c.Playback.AutoRetry,
		RebufferTimeoutMs:   c.Playback.RebufferTimeoutMs,
	}
	return opts
}
