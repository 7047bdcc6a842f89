// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package tracks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/playctl/internal/engine/sim"
	"github.com/ManuGH/playctl/internal/media"
)

func newCatalog(t *testing.T) (*Catalog, *sim.Engine) {
	t.Helper()
	e := sim.New()
	t.Cleanup(func() { _ = e.Release() })
	return New(e), e
}

func selectedIDs(infos []Info) []string {
	var out []string
	for _, i := range infos {
		if i.Selected {
			out = append(out, i.ID)
		}
	}
	return out
}

func TestList_Video(t *testing.T) {
	c, _ := newCatalog(t)

	got := c.List(media.TypeVideo)
	require.Len(t, got, 3)
	assert.Equal(t, Info{
		ID: "0:1", Label: "720p • 30 fps • 2.5 Mbps", Bitrate: 2_500_000, Width: 1280, Height: 720,
	}, got[1])
	assert.Equal(t, "1080p • 60 fps • 12 Mbps", got[2].Label)
	assert.True(t, got[2].Selected)
}

func TestList_AudioAndText(t *testing.T) {
	c, _ := newCatalog(t)

	audio := c.List(media.TypeAudio)
	require.Len(t, audio, 2)
	assert.Equal(t, "1:0", audio[0].ID)
	assert.Equal(t, "mp4a.40.2", audio[0].Label)
	assert.Equal(t, "German", audio[1].Label)
	assert.Equal(t, "de", audio[1].Language)
	assert.Nil(t, audio[1].Forced)

	text := c.List(media.TypeText)
	require.Len(t, text, 2)
	assert.Equal(t, "English", text[0].Label)
	assert.Equal(t, "Sub 2", text[1].Label)
	require.NotNil(t, text[1].Forced)
	assert.True(t, *text[1].Forced)
}

func TestSelect_MarksExactlyOne(t *testing.T) {
	c, _ := newCatalog(t)

	for _, id := range []string{"0:0", "0:1", "0:2"} {
		require.True(t, c.Select(media.TypeVideo, id))
		assert.Equal(t, []string{id}, selectedIDs(c.List(media.TypeVideo)))
	}
}

func TestSelect_OutOfBoundsIsNoop(t *testing.T) {
	c, e := newCatalog(t)

	require.True(t, c.Select(media.TypeVideo, "0:1"))
	before := e.TrackSelection()

	for _, id := range []string{"0:5", "9:0", "1:0", "x", "0:-1", "0"} {
		assert.False(t, c.Select(media.TypeVideo, id), id)
	}
	assert.Equal(t, before, e.TrackSelection())
	assert.Equal(t, []string{"0:1"}, selectedIDs(c.List(media.TypeVideo)))
}

func TestSelect_StaleIDAfterInventoryChange(t *testing.T) {
	c, e := newCatalog(t)

	e.ReplaceGroups([]media.TrackGroup{
		{Index: 0, Type: media.TypeVideo, Tracks: []media.Track{{Height: 360}}},
	})
	assert.False(t, c.Select(media.TypeVideo, "0:2"))
}

func TestClear_OnlyTouchesOneType(t *testing.T) {
	c, e := newCatalog(t)

	require.True(t, c.Select(media.TypeVideo, "0:0"))
	require.True(t, c.Select(media.TypeAudio, "1:1"))

	c.Clear(media.TypeVideo)

	sel := e.TrackSelection()
	_, hasVideo := sel.Override(media.TypeVideo)
	audio, hasAudio := sel.Override(media.TypeAudio)
	assert.False(t, hasVideo)
	assert.True(t, hasAudio)
	assert.Equal(t, media.Override{Group: 1, Track: 1}, audio)
}

func TestSelect_TextOffAndClear(t *testing.T) {
	c, e := newCatalog(t)

	require.True(t, c.Select(media.TypeText, TextOff))
	assert.True(t, e.TrackSelection().IsDisabled(media.TypeText))
	assert.Empty(t, selectedIDs(c.List(media.TypeText)))

	require.True(t, c.Select(media.TypeText, ""))
	assert.False(t, e.TrackSelection().IsDisabled(media.TypeText))

	require.True(t, c.Select(media.TypeText, TextOff))
	require.True(t, c.Select(media.TypeText, "2:0"))
	assert.False(t, e.TrackSelection().IsDisabled(media.TypeText))
	assert.Equal(t, []string{"2:0"}, selectedIDs(c.List(media.TypeText)))
}

func TestSelectedVideoSize(t *testing.T) {
	c, _ := newCatalog(t)
	require.True(t, c.Select(media.TypeVideo, "0:1"))

	w, h, ok := c.SelectedVideoSize()
	require.True(t, ok)
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)
}
