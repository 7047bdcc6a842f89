// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package media

import (
	"maps"
	"math"
	"strconv"
	"strings"
)

// Type is the media type of a track group.
type Type string

const (
	TypeVideo Type = "video"
	TypeAudio Type = "audio"
	TypeText  Type = "text"
)

// ParseType accepts the wire names plus "subtitle" for text.
func ParseType(s string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video":
		return TypeVideo, true
	case "audio":
		return TypeAudio, true
	case "text", "subtitle", "subtitles":
		return TypeText, true
	default:
		return "", false
	}
}

// Track is one engine-reported track. Zero numeric fields mean unknown.
type Track struct {
	Bitrate   int
	Width     int
	Height    int
	FrameRate float64
	Language  string
	Label     string
	Codecs    string
	Forced    bool
	Selected  bool
}

// TrackGroup is a group of tracks sharing a type. Index is the position in the
// engine's full group list, across types.
type TrackGroup struct {
	Index  int
	Type   Type
	Tracks []Track
}

// FormatTrackID renders the wire address of a track.
func FormatTrackID(group, track int) string {
	return strconv.Itoa(group) + ":" + strconv.Itoa(track)
}

// ParseTrackID parses "g:i". Both parts must be non-negative integers.
func ParseTrackID(id string) (group, track int, ok bool) {
	g, t, found := strings.Cut(id, ":")
	if !found {
		return 0, 0, false
	}
	gi, err := strconv.Atoi(g)
	if err != nil || gi < 0 {
		return 0, 0, false
	}
	ti, err := strconv.Atoi(t)
	if err != nil || ti < 0 {
		return 0, 0, false
	}
	return gi, ti, true
}

// BitrateUnbounded removes the video bitrate ceiling.
const BitrateUnbounded = math.MaxInt32

// Override pins one track of a group.
type Override struct {
	Group int
	Track int
}

// TrackSelection mirrors the engine's selection parameters.
type TrackSelection struct {
	Overrides       map[Type]Override
	Disabled        map[Type]bool
	MaxVideoBitrate int
}

// DefaultTrackSelection has no overrides and no bitrate ceiling.
func DefaultTrackSelection() TrackSelection {
	return TrackSelection{MaxVideoBitrate: BitrateUnbounded}
}

// Clone returns a deep copy.
func (s TrackSelection) Clone() TrackSelection {
	return TrackSelection{
		Overrides:       maps.Clone(s.Overrides),
		Disabled:        maps.Clone(s.Disabled),
		MaxVideoBitrate: s.MaxVideoBitrate,
	}
}

// WithOverride replaces the override of one type.
func (s TrackSelection) WithOverride(t Type, o Override) TrackSelection {
	out := s.Clone()
	if out.Overrides == nil {
		out.Overrides = make(map[Type]Override, 1)
	}
	out.Overrides[t] = o
	return out
}

// WithoutOverride removes the override of one type only.
func (s TrackSelection) WithoutOverride(t Type) TrackSelection {
	out := s.Clone()
	delete(out.Overrides, t)
	return out
}

// WithDisabled toggles a whole track type.
func (s TrackSelection) WithDisabled(t Type, disabled bool) TrackSelection {
	out := s.Clone()
	if !disabled {
		delete(out.Disabled, t)
		return out
	}
	if out.Disabled == nil {
		out.Disabled = make(map[Type]bool, 1)
	}
	out.Disabled[t] = true
	return out
}

// WithMaxVideoBitrate sets the video ceiling.
func (s TrackSelection) WithMaxVideoBitrate(bps int) TrackSelection {
	out := s.Clone()
	out.MaxVideoBitrate = bps
	return out
}

// Override returns the override for t, if any.
func (s TrackSelection) Override(t Type) (Override, bool) {
	o, ok := s.Overrides[t]
	return o, ok
}

// IsDisabled reports whether the type is switched off.
func (s TrackSelection) IsDisabled(t Type) bool {
	return s.Disabled[t]
}
