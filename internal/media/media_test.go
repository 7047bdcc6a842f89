// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package media

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrmConfig_License(t *testing.T) {
	tests := []struct {
		name   string
		in     DrmConfig
		want   License
		wantOK bool
	}{
		{
			name:   "widevine without license url is dropped",
			in:     DrmConfig{Scheme: DrmWidevine},
			wantOK: false,
		},
		{
			name: "widevine adds content id",
			in: DrmConfig{
				Scheme:     DrmWidevine,
				LicenseURL: "https://lic.example/wv",
				ContentID:  "abc",
				Headers:    map[string]string{"X-Token": "t"},
			},
			want: License{
				Scheme:  DrmWidevine,
				URI:     "https://lic.example/wv",
				Headers: map[string]string{"Content-ID": "abc", "X-Token": "t"},
			},
			wantOK: true,
		},
		{
			name: "clearkey inline json becomes data uri",
			in:   DrmConfig{Scheme: DrmClearKey, ClearKey: `{"keys":[]}`, LicenseURL: "https://ignored"},
			want: License{
				Scheme: DrmClearKey,
				URI:    "data:application/json;base64,eyJrZXlzIjpbXX0=",
			},
			wantOK: true,
		},
		{
			name:   "clearkey falls back to license url",
			in:     DrmConfig{Scheme: DrmClearKey, LicenseURL: "https://lic.example/ck"},
			want:   License{Scheme: DrmClearKey, URI: "https://lic.example/ck"},
			wantOK: true,
		},
		{
			name:   "unknown scheme dropped",
			in:     DrmConfig{Scheme: DrmNone, LicenseURL: "https://x"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.in.License()
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("License() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseDrmScheme(t *testing.T) {
	assert.Equal(t, DrmWidevine, ParseDrmScheme("Widevine"))
	assert.Equal(t, DrmClearKey, ParseDrmScheme(" clearkey "))
	assert.Equal(t, DrmNone, ParseDrmScheme("playready"))
}

func TestItem_LiveConfig(t *testing.T) {
	assert.Nil(t, NewItem("https://x/a.mp4", nil, nil, false).LiveConfig())

	live := NewItem("https://x/live.m3u8", nil, nil, true).LiveConfig()
	require.NotNil(t, live)
	assert.Equal(t, DefaultLiveConfig, *live)
}

func TestNewItem_CopiesHeaders(t *testing.T) {
	h := map[string]string{"A": "1"}
	it := NewItem("u", h, nil, false)
	h["A"] = "2"
	assert.Equal(t, "1", it.Headers["A"])
}

func TestTrackID_RoundTrip(t *testing.T) {
	g, i, ok := ParseTrackID(FormatTrackID(2, 7))
	require.True(t, ok)
	assert.Equal(t, 2, g)
	assert.Equal(t, 7, i)

	for _, bad := range []string{"", "1", "a:b", "-1:0", "0:-2", "1:2:3", ":"} {
		_, _, ok := ParseTrackID(bad)
		assert.False(t, ok, bad)
	}
}

func TestTrackSelection_OverridesPerType(t *testing.T) {
	sel := DefaultTrackSelection().
		WithOverride(TypeVideo, Override{Group: 0, Track: 1}).
		WithOverride(TypeAudio, Override{Group: 1, Track: 0})

	cleared := sel.WithoutOverride(TypeVideo)
	_, hasVideo := cleared.Override(TypeVideo)
	audio, hasAudio := cleared.Override(TypeAudio)
	assert.False(t, hasVideo)
	assert.True(t, hasAudio)
	assert.Equal(t, Override{Group: 1, Track: 0}, audio)

	// the original value is untouched
	_, stillVideo := sel.Override(TypeVideo)
	assert.True(t, stillVideo)
}

func TestParseFit(t *testing.T) {
	assert.Equal(t, FitCover, ParseFit("cover"))
	assert.Equal(t, FitFitHeight, ParseFit("fitHeight"))
	assert.Equal(t, FitContain, ParseFit("stretchy"))
	assert.Equal(t, FitContain, ParseFit(""))
}

func TestNewSnapshot_Clamps(t *testing.T) {
	s := NewSnapshot(-5, -1, true, true)
	assert.Equal(t, int64(0), s.PositionMs)
	assert.Equal(t, int64(0), s.DurationMs)

	e := s.WithError("SOURCE")
	assert.False(t, e.IsPlaying)
	assert.False(t, e.IsBuffering)
	assert.Equal(t, "SOURCE", e.Error)
}
