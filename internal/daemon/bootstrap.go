// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/ManuGH/playctl/internal/api"
	"github.com/ManuGH/playctl/internal/api/middleware"
	"github.com/ManuGH/playctl/internal/config"
	"github.com/ManuGH/playctl/internal/control/command"
	"github.com/ManuGH/playctl/internal/engine"
	"github.com/ManuGH/playctl/internal/health"
	xglog "github.com/ManuGH/playctl/internal/log"
	"github.com/ManuGH/playctl/internal/presentation"
	"github.com/ManuGH/playctl/internal/presentation/mpris"
	"github.com/ManuGH/playctl/internal/presentation/redismirror"
	"github.com/ManuGH/playctl/internal/registry"
	"github.com/ManuGH/playctl/internal/resilience"
	"github.com/ManuGH/playctl/internal/resume"
	"github.com/ManuGH/playctl/internal/telemetry"

	// Engine registrations.
	_ "github.com/ManuGH/playctl/internal/engine/mpv"
	_ "github.com/ManuGH/playctl/internal/engine/sim"
)

// App is a fully wired daemon.
type App struct {
	Manager    *Manager
	Registry   *registry.Registry
	Dispatcher *command.Dispatcher
	Holder     *config.Holder
}

// Bootstrap wires every component from the current configuration. The
// returned App owns all resources; they are released by its manager's
// shutdown hooks.
func Bootstrap(ctx context.Context, holder *config.Holder) (*App, error) {
	cfg := holder.Get()
	logger := xglog.WithComponent("daemon")

	factory, err := engine.Lookup(cfg.Engine.Kind)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	var hooks []namedHook
	cleanup := func() {
		for i := len(hooks) - 1; i >= 0; i-- {
			_ = hooks[i].hook(context.WithoutCancel(ctx))
		}
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Version,
		Protocol:       cfg.Telemetry.Protocol,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	hooks = append(hooks, namedHook{name: "telemetry", hook: provider.Shutdown})

	checks := health.NewManager(cfg.Version)

	var store resume.Store
	if cfg.Resume.Backend != "off" {
		store, err = resume.NewStore(cfg.Resume.Backend, cfg.Resume.DataDir)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("resume store: %w", err)
		}
		hooks = append(hooks, namedHook{name: "resume-store", hook: func(context.Context) error { return store.Close() }})
		if p, ok := store.(pinger); ok {
			checks.RegisterChecker(health.NewPingChecker("resume_store", p.Ping))
			checks.RegisterChecker(health.NewWritableDirChecker("resume_data_dir", cfg.Resume.DataDir))
		}
	}

	surfaces, err := buildSurfaces(ctx, cfg.Surfaces)
	if err != nil {
		cleanup()
		return nil, err
	}
	if client := surfaces.client; client != nil {
		hooks = append(hooks, namedHook{name: "redis", hook: func(context.Context) error { return client.Close() }})
		checks.RegisterChecker(health.Informational("redis_surface", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}

	reg := registry.New(registry.Options{
		Engine:         factory,
		Surfaces:       surfaces.factory,
		Resume:         store,
		SampleInterval: cfg.Session.SampleInterval,
		DataSaverCap:   cfg.Session.DataSaverCap,
		IntentRate:     rate.Limit(cfg.Session.IntentRate),
		IntentBurst:    cfg.Session.IntentBurst,
		MaxSessions:    cfg.Session.MaxSessions,
	})
	hooks = append(hooks, namedHook{name: "sessions", hook: reg.Close})

	dispatcher := command.NewDispatcher(cfg.SessionDefaults())

	stack := middleware.StackConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		EnableMetrics:  true,
		EnableLogging:  true,
		RateLimit:      cfg.Server.RateLimit,
	}
	if provider.Enabled() {
		stack.TracingService = cfg.Telemetry.ServiceName
	}
	srv := api.New(api.Deps{
		Registry:   reg,
		Dispatcher: dispatcher,
		Version:    cfg.Version,
		Stack:      stack,
		Health:     checks,
	})

	mgr, err := NewManager(ServerConfig{
		Listen:            cfg.Server.Listen,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	}, srv.Handler())
	if err != nil {
		cleanup()
		return nil, err
	}
	for _, h := range hooks {
		mgr.RegisterShutdownHook(h.name, h.hook)
	}
	mgr.AddRunner("config-watch", holder.Watch)
	if surfaces.hub != nil {
		mgr.AddRunner("mpris", surfaces.hub.Run)
	}

	holder.OnReload(func(old, updated config.Config) {
		if old.Log.Level != updated.Log.Level {
			xglog.SetLevel(updated.Log.Level)
		}
		reg.SetMaxSessions(updated.Session.MaxSessions)
		dispatcher.SetDefaults(updated.SessionDefaults())
		logger.Info().
			Str(xglog.FieldEvent, "config.applied").
			Str("log_level", updated.Log.Level).
			Int("max_sessions", updated.Session.MaxSessions).
			Msg("applied reloaded configuration")
	})

	logger.Info().
		Str(xglog.FieldEvent, "daemon.bootstrapped").
		Str(xglog.FieldEngine, cfg.Engine.Kind).
		Str("resume_backend", cfg.Resume.Backend).
		Bool("mpris", cfg.Surfaces.MPRIS.Enabled).
		Bool("redis", cfg.Surfaces.Redis.Enabled).
		Bool("tracing", provider.Enabled()).
		Msg("daemon wired")

	return &App{Manager: mgr, Registry: reg, Dispatcher: dispatcher, Holder: holder}, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// surfaceSet holds the per-session surface factory and the process-wide
// resources behind it.
type surfaceSet struct {
	factory registry.SurfaceFactory
	client  *redis.Client
	hub     *mpris.Hub
}

func buildSurfaces(ctx context.Context, cfg config.SurfacesConfig) (surfaceSet, error) {
	var set surfaceSet
	if !cfg.MPRIS.Enabled && !cfg.Redis.Enabled {
		return set, nil
	}

	var (
		breaker *resilience.CircuitBreaker
		rcfg    redismirror.Config
	)
	if cfg.Redis.Enabled {
		rcfg = redismirror.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Prefix:    cfg.Redis.Prefix,
			StateTTL:  cfg.Redis.StateTTL,
			Threshold: cfg.Redis.BreakerThreshold,
			Cooldown:  cfg.Redis.BreakerCooldown,
		}
		client, err := redismirror.NewClient(ctx, rcfg)
		if err != nil {
			return set, fmt.Errorf("redis surface: %w", err)
		}
		set.client = client
		breaker = resilience.NewCircuitBreaker("redis-surface", rcfg.Threshold, rcfg.Cooldown,
			resilience.WithStateListener(logSurfaceState))
	}
	if cfg.MPRIS.Enabled {
		set.hub = mpris.NewHub(cfg.MPRIS.Identity)
	}

	client, hub := set.client, set.hub
	set.factory = func(_ context.Context, sessionID string) []presentation.Surface {
		var out []presentation.Surface
		if hub != nil {
			out = append(out, hub.Surface(sessionID))
		}
		if client != nil {
			out = append(out, redismirror.New(client, breaker, rcfg, sessionID))
		}
		return out
	}
	return set, nil
}

func logSurfaceState(surface string, from, to resilience.State, reason resilience.TripReason) {
	logger := xglog.WithComponent("surfaces")
	ev := logger.Info()
	if to == resilience.StateOpen {
		ev = logger.Warn().Str("reason", string(reason))
	}
	ev.Str(xglog.FieldEvent, "surface.breaker").
		Str("surface", surface).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("surface availability changed")
}
