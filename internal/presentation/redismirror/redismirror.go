// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package redismirror publishes session transport state to Redis and accepts
// play/pause intents from a Redis channel, for remote companion surfaces.
package redismirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/playctl/internal/log"
	"github.com/ManuGH/playctl/internal/presentation"
	"github.com/ManuGH/playctl/internal/resilience"
)

// SurfaceName labels this surface in logs and metrics.
const SurfaceName = "redis"

var (
	_ presentation.Surface    = (*Surface)(nil)
	_ presentation.PipSurface = (*Surface)(nil)
)

// Config holds Redis connection configuration.
type Config struct {
	Addr      string        // host:port
	Password  string        // optional
	DB        int           // database number
	Prefix    string        // key and channel prefix, default "playctl"
	StateTTL  time.Duration // lifetime of the last-state key
	Threshold int           // breaker failure threshold
	Cooldown  time.Duration // breaker reset timeout
}

// NewClient connects and pings the server.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// Channels names the keys used for one session.
type Channels struct {
	State   string
	Intents string
	Pip     string
	LastKey string
}

// ChannelsFor derives the channel names of a session.
func ChannelsFor(prefix, sessionID string) Channels {
	if prefix == "" {
		prefix = "playctl"
	}
	base := prefix + ":session:" + sessionID
	return Channels{
		State:   base + ":state",
		Intents: base + ":intents",
		Pip:     base + ":pip",
		LastKey: base + ":last",
	}
}

// Surface mirrors one session.
type Surface struct {
	client   *redis.Client
	breaker  *resilience.CircuitBreaker
	channels Channels
	ttl      time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a surface for sessionID. breaker may be shared across sessions.
func New(client *redis.Client, breaker *resilience.CircuitBreaker, cfg Config, sessionID string) *Surface {
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Surface{
		client:   client,
		breaker:  breaker,
		channels: ChannelsFor(cfg.Prefix, sessionID),
		ttl:      ttl,
		logger: xglog.WithComponent("presentation.redis").With().
			Str(xglog.FieldSessionID, sessionID).Logger(),
	}
}

func (s *Surface) Name() string { return SurfaceName }

// Channels returns the channel names in use.
func (s *Surface) Channels() Channels { return s.channels }

// Attach subscribes to the intent channel.
func (s *Surface) Attach(ctx context.Context, intents presentation.IntentHandler) error {
	ps := s.client.Subscribe(ctx, s.channels.Intents)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", s.channels.Intents, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.pubsub = ps
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ch := ps.Channel()
		for {
			select {
			case <-loopCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				in, valid := parseIntent(msg.Payload)
				if !valid {
					s.logger.Debug().Str("payload", msg.Payload).Msg("ignoring malformed intent")
					continue
				}
				intents(in)
			}
		}
	}()
	return nil
}

// parseIntent accepts a bare intent name or {"intent":"..."}.
func parseIntent(payload string) (presentation.Intent, bool) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "{") {
		var msg struct {
			Intent string `json:"intent"`
		}
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return "", false
		}
		payload = msg.Intent
	}
	return presentation.ParseIntent(payload)
}

// Publish stores the last state and broadcasts it.
func (s *Surface) Publish(ctx context.Context, st presentation.State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.breaker.Execute(func() error {
		_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, s.channels.LastKey, payload, s.ttl)
			p.Publish(ctx, s.channels.State, payload)
			return nil
		})
		return err
	})
}

type pipRequest struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Ratio  string `json:"ratio"`
}

// EnterPip asks remote companions to open PiP; acknowledged when at least
// one subscriber received the request.
func (s *Surface) EnterPip(ctx context.Context, ratio presentation.Ratio) (bool, error) {
	payload, err := json.Marshal(pipRequest{Width: ratio.Width, Height: ratio.Height, Ratio: ratio.String()})
	if err != nil {
		return false, err
	}
	var receivers int64
	err = s.breaker.Execute(func() error {
		n, err := s.client.Publish(ctx, s.channels.Pip, payload).Result()
		receivers = n
		return err
	})
	if err != nil {
		return false, err
	}
	return receivers > 0, nil
}

// Detach unsubscribes. The shared client stays open.
func (s *Surface) Detach() error {
	s.mu.Lock()
	ps, cancel := s.pubsub, s.cancel
	s.pubsub, s.cancel = nil, nil
	s.mu.Unlock()
	if ps == nil {
		return nil
	}
	cancel()
	err := ps.Close()
	s.wg.Wait()
	return err
}
