// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package mpv drives libmpv through github.com/gen2brain/go-mpv. The native
// backend is compiled only with the libmpv build tag; without it the factory
// reports engine.ErrNotEnabled.
package mpv

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ManuGH/playctl/internal/engine"
	"github.com/ManuGH/playctl/internal/media"
)

// Kind is the registry name of this engine.
const Kind = "mpv"

func init() {
	engine.Register(Kind, newEngine)
}

// mpvTrack is one entry of the "track-list" property.
type mpvTrack struct {
	ID         int     `json:"id"`
	Type       string  `json:"type"`
	Title      string  `json:"title"`
	Lang       string  `json:"lang"`
	Codec      string  `json:"codec"`
	Selected   bool    `json:"selected"`
	Forced     bool    `json:"forced"`
	DemuxW     int     `json:"demux-w"`
	DemuxH     int     `json:"demux-h"`
	DemuxFPS   float64 `json:"demux-fps"`
	HLSBitrate int     `json:"hls-bitrate"`
}

// inventory maps the flat mpv track list onto per-type groups. ids[g][i] is
// the mpv track id of track i in group g.
type inventory struct {
	groups []media.TrackGroup
	ids    [][]int
}

func mpvType(t string) (media.Type, bool) {
	switch t {
	case "video":
		return media.TypeVideo, true
	case "audio":
		return media.TypeAudio, true
	case "sub":
		return media.TypeText, true
	default:
		return "", false
	}
}

func parseTrackList(raw string) (inventory, error) {
	var tracks []mpvTrack
	if strings.TrimSpace(raw) == "" {
		return inventory{}, nil
	}
	if err := json.Unmarshal([]byte(raw), &tracks); err != nil {
		return inventory{}, fmt.Errorf("decode track-list: %w", err)
	}

	var inv inventory
	groupOf := map[media.Type]int{}
	for _, t := range tracks {
		mt, ok := mpvType(t.Type)
		if !ok {
			continue
		}
		g, seen := groupOf[mt]
		if !seen {
			g = len(inv.groups)
			groupOf[mt] = g
			inv.groups = append(inv.groups, media.TrackGroup{Index: g, Type: mt})
			inv.ids = append(inv.ids, nil)
		}
		inv.groups[g].Tracks = append(inv.groups[g].Tracks, media.Track{
			Bitrate:   t.HLSBitrate,
			Width:     t.DemuxW,
			Height:    t.DemuxH,
			FrameRate: t.DemuxFPS,
			Language:  t.Lang,
			Label:     t.Title,
			Codecs:    t.Codec,
			Forced:    t.Forced,
			Selected:  t.Selected,
		})
		inv.ids[g] = append(inv.ids[g], t.ID)
	}
	return inv, nil
}

// trackProperty is the mpv property selecting the active track of a type.
func trackProperty(t media.Type) string {
	switch t {
	case media.TypeVideo:
		return "vid"
	case media.TypeAudio:
		return "aid"
	default:
		return "sid"
	}
}

// selectionValues resolves a selection to property values for vid/aid/sid.
func selectionValues(inv inventory, sel media.TrackSelection) map[string]string {
	out := make(map[string]string, 3)
	for _, t := range []media.Type{media.TypeVideo, media.TypeAudio, media.TypeText} {
		prop := trackProperty(t)
		switch {
		case sel.IsDisabled(t):
			out[prop] = "no"
		default:
			out[prop] = "auto"
			if o, ok := sel.Override(t); ok && o.Group < len(inv.groups) &&
				inv.groups[o.Group].Type == t && o.Track < len(inv.ids[o.Group]) {
				out[prop] = strconv.Itoa(inv.ids[o.Group][o.Track])
			}
		}
	}
	return out
}

// hlsBitrate renders the video ceiling for the hls-bitrate option.
func hlsBitrate(bps int) string {
	if bps <= 0 || bps >= media.BitrateUnbounded {
		return "max"
	}
	return strconv.Itoa(bps)
}

// headerFields renders request headers for http-header-fields.
func headerFields(headers map[string]string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.ReplaceAll(headers[k], ",", `\,`)
		parts = append(parts, k+": "+v)
	}
	return strings.Join(parts, ",")
}

// fitProperties maps a fit mode to keepaspect/panscan.
func fitProperties(mode media.FitMode) (keepAspect string, panscan float64) {
	switch mode {
	case media.FitCover:
		return "yes", 1.0
	case media.FitFill:
		return "no", 0
	default:
		return "yes", 0
	}
}
