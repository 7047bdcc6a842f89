// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package tracks translates between an engine's live track inventory and the
// "group:track" addressing used on the wire.
package tracks

import (
	"github.com/samber/lo"

	"github.com/ManuGH/playctl/internal/media"
)

// TextOff is the text track id that switches subtitles off.
const TextOff = "off"

// Source is the part of an engine the catalog reads and writes.
type Source interface {
	TrackGroups() []media.TrackGroup
	TrackSelection() media.TrackSelection
	SetTrackSelection(sel media.TrackSelection)
}

// Info is the wire shape of one track.
type Info struct {
	ID       string `json:"id"`
	Selected bool   `json:"selected"`
	Label    string `json:"label"`
	Language string `json:"language,omitempty"`
	Bitrate  int    `json:"bitrate,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Forced   *bool  `json:"forced,omitempty"`
}

// Catalog is stateless; every call reads the current inventory.
type Catalog struct {
	src Source
}

// New binds a catalog to an engine.
func New(src Source) *Catalog {
	return &Catalog{src: src}
}

// List returns one entry per track of every group of type t.
func (c *Catalog) List(t media.Type) []Info {
	groups := lo.Filter(c.src.TrackGroups(), func(g media.TrackGroup, _ int) bool {
		return g.Type == t
	})
	return lo.FlatMap(groups, func(g media.TrackGroup, _ int) []Info {
		return lo.Map(g.Tracks, func(tr media.Track, i int) Info {
			return describe(g, tr, i)
		})
	})
}

func describe(g media.TrackGroup, tr media.Track, i int) Info {
	info := Info{
		ID:       media.FormatTrackID(g.Index, i),
		Selected: tr.Selected,
	}
	switch g.Type {
	case media.TypeVideo:
		info.Label = videoLabel(tr, i)
		info.Bitrate = tr.Bitrate
		info.Width = tr.Width
		info.Height = tr.Height
	case media.TypeAudio:
		info.Label = audioLabel(tr, i)
		info.Language = tr.Language
	case media.TypeText:
		info.Label = textLabel(tr, i)
		info.Language = tr.Language
		info.Forced = lo.ToPtr(tr.Forced)
	}
	return info
}

// resolve validates id against the current inventory.
func (c *Catalog) resolve(t media.Type, id string) (media.Override, bool) {
	g, i, ok := media.ParseTrackID(id)
	if !ok {
		return media.Override{}, false
	}
	group, found := lo.Find(c.src.TrackGroups(), func(tg media.TrackGroup) bool {
		return tg.Index == g
	})
	if !found || group.Type != t || i >= len(group.Tracks) {
		return media.Override{}, false
	}
	return media.Override{Group: g, Track: i}, true
}

// Select pins the track addressed by id for type t, replacing only that
// type's override. Stale or malformed ids are a no-op and return false.
// For text, "" re-enables default selection and TextOff disables subtitles.
func (c *Catalog) Select(t media.Type, id string) bool {
	if id == "" {
		c.Clear(t)
		return true
	}
	if t == media.TypeText && id == TextOff {
		c.src.SetTrackSelection(c.src.TrackSelection().
			WithoutOverride(media.TypeText).
			WithDisabled(media.TypeText, true))
		return true
	}
	o, ok := c.resolve(t, id)
	if !ok {
		return false
	}
	sel := c.src.TrackSelection().WithOverride(t, o)
	if t == media.TypeText {
		sel = sel.WithDisabled(media.TypeText, false)
	}
	c.src.SetTrackSelection(sel)
	return true
}

// Clear drops the override of type t. Clearing text also re-enables the type.
func (c *Catalog) Clear(t media.Type) {
	sel := c.src.TrackSelection().WithoutOverride(t)
	if t == media.TypeText {
		sel = sel.WithDisabled(media.TypeText, false)
	}
	c.src.SetTrackSelection(sel)
}

// SelectedVideoSize returns the dimensions of the selected video track.
func (c *Catalog) SelectedVideoSize() (width, height int, ok bool) {
	for _, info := range c.List(media.TypeVideo) {
		if info.Selected && info.Width > 0 && info.Height > 0 {
			return info.Width, info.Height, true
		}
	}
	return 0, 0, false
}
