// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package media

import (
	"encoding/base64"
	"maps"
	"strings"
	"time"
)

// DrmScheme tags the DRM system of an item.
type DrmScheme string

const (
	DrmNone     DrmScheme = ""
	DrmWidevine DrmScheme = "widevine"
	DrmClearKey DrmScheme = "clearkey"
)

// ParseDrmScheme is case-insensitive; unknown values map to DrmNone.
func ParseDrmScheme(s string) DrmScheme {
	switch DrmScheme(strings.ToLower(strings.TrimSpace(s))) {
	case DrmWidevine:
		return DrmWidevine
	case DrmClearKey:
		return DrmClearKey
	default:
		return DrmNone
	}
}

// DrmConfig is forwarded to the engine; the control plane never interprets keys.
type DrmConfig struct {
	Scheme     DrmScheme
	LicenseURL string
	ContentID  string
	ClearKey   string // inline clear-key JSON
	Headers    map[string]string
}

// License is the engine-facing license request derived from a DrmConfig.
type License struct {
	Scheme  DrmScheme
	URI     string
	Headers map[string]string
}

// License derives the license request. ok is false when the block must be dropped
// (unknown scheme, or widevine without a license URL).
func (d DrmConfig) License() (License, bool) {
	switch d.Scheme {
	case DrmWidevine:
		if d.LicenseURL == "" {
			return License{}, false
		}
		headers := make(map[string]string, len(d.Headers)+1)
		if d.ContentID != "" {
			headers["Content-ID"] = d.ContentID
		}
		maps.Copy(headers, d.Headers)
		return License{Scheme: DrmWidevine, URI: d.LicenseURL, Headers: headers}, true
	case DrmClearKey:
		lic := License{Scheme: DrmClearKey, Headers: maps.Clone(d.Headers)}
		switch {
		case d.ClearKey != "":
			lic.URI = "data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte(d.ClearKey))
		case d.LicenseURL != "":
			lic.URI = d.LicenseURL
		}
		return lic, true
	default:
		return License{}, false
	}
}

// LiveConfig carries latency targets for live items.
type LiveConfig struct {
	TargetOffset time.Duration
	MinSpeed     float64
	MaxSpeed     float64
}

// DefaultLiveConfig is applied to every item flagged live.
var DefaultLiveConfig = LiveConfig{
	TargetOffset: 3 * time.Second,
	MinSpeed:     0.97,
	MaxSpeed:     1.03,
}

// Item is one playlist entry. Treat it as immutable once built.
type Item struct {
	URL     string
	Headers map[string]string
	DRM     *DrmConfig
	Live    bool
}

// NewItem copies headers so later mutation of the source map cannot leak in.
func NewItem(url string, headers map[string]string, drm *DrmConfig, live bool) Item {
	it := Item{URL: url, Live: live}
	if len(headers) > 0 {
		it.Headers = maps.Clone(headers)
	}
	if drm != nil {
		cp := *drm
		cp.Headers = maps.Clone(drm.Headers)
		it.DRM = &cp
	}
	return it
}

// License returns the derived DRM license request, if any.
func (it Item) License() (License, bool) {
	if it.DRM == nil {
		return License{}, false
	}
	return it.DRM.License()
}

// LiveConfig returns the live settings, nil for VOD items.
func (it Item) LiveConfig() *LiveConfig {
	if !it.Live {
		return nil
	}
	cfg := DefaultLiveConfig
	return &cfg
}
