// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package command

import (
	"strings"

	"github.com/ManuGH/playctl/internal/media"
)

// DecodeConfigure maps configure arguments onto a playlist and session
// options, starting from defaults. Playlist entries that are not objects or
// lack a url are dropped here; an empty result is not an error.
func DecodeConfigure(args Args, defaults media.SessionOptions) ([]media.Item, media.SessionOptions) {
	opts := defaults
	opts.AutoPlay = args.Bool("autoPlay", defaults.AutoPlay)
	opts.Loop = args.Bool("loop", defaults.Loop)
	opts.StartPositionMs = max(args.Int64("startPositionMs", defaults.StartPositionMs), 0)
	opts.StartAutoPlay = opts.AutoPlay
	if args.HasBool("startAutoPlay") {
		opts.StartAutoPlay = args.Bool("startAutoPlay", opts.AutoPlay)
	}
	opts.DataSaver = args.Bool("dataSaver", defaults.DataSaver)
	opts.Resume = args.Bool("resume", defaults.Resume)
	opts.Playback = decodePlayback(args.Object("playbackOptions"), defaults.Playback)

	var items []media.Item
	for _, entry := range args.Objects("playlist") {
		if entry == nil {
			continue
		}
		url := strings.TrimSpace(entry.String("url", ""))
		if url == "" {
			continue
		}
		items = append(items, media.NewItem(url, entry.StringMap("headers"), decodeDrm(entry.Object("drm")), entry.Bool("isLive", false)))
	}
	return items, opts
}

func decodePlayback(args Args, defaults media.PlaybackOptions) media.PlaybackOptions {
	if args == nil {
		return defaults
	}
	return media.PlaybackOptions{
		MaxRetryCount:       args.Int("maxRetryCount", defaults.MaxRetryCount),
		InitialRetryDelayMs: args.Int("initialRetryDelayMs", defaults.InitialRetryDelayMs),
		MaxRetryDelayMs:     args.Int("maxRetryDelayMs", defaults.MaxRetryDelayMs),
		AutoRetry:           args.Bool("autoRetry", defaults.AutoRetry),
		RebufferTimeoutMs:   args.Int("rebufferTimeoutMs", defaults.RebufferTimeoutMs),
	}
}

func decodeDrm(args Args) *media.DrmConfig {
	if args == nil {
		return nil
	}
	scheme := media.ParseDrmScheme(args.String("type", ""))
	if scheme == media.DrmNone {
		return nil
	}
	return &media.DrmConfig{
		Scheme:     scheme,
		LicenseURL: args.String("licenseUrl", ""),
		ContentID:  args.String("contentId", ""),
		ClearKey:   args.String("clearKey", ""),
		Headers:    args.StringMap("headers"),
	}
}
