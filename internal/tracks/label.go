// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package tracks

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/ManuGH/playctl/internal/media"
)

const labelSeparator = " • "

func videoLabel(tr media.Track, i int) string {
	var parts []string
	if l := strings.TrimSpace(tr.Label); l != "" {
		parts = append(parts, l)
	}
	if tr.Height > 0 {
		parts = append(parts, fmt.Sprintf("%dp", tr.Height))
	}
	if tr.FrameRate > 0 && !math.IsNaN(tr.FrameRate) {
		parts = append(parts, fmt.Sprintf("%.0f fps", tr.FrameRate))
	}
	if tr.Bitrate > 0 {
		parts = append(parts, bitrateTag(tr.Bitrate))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Track %d", i+1)
	}
	return strings.Join(parts, labelSeparator)
}

// bitrateTag drops the decimal at and above 10 Mbps.
func bitrateTag(bps int) string {
	mbps := float64(bps) / 1_000_000
	if mbps >= 10 {
		return fmt.Sprintf("%.0f Mbps", mbps)
	}
	return fmt.Sprintf("%.1f Mbps", mbps)
}

func audioLabel(tr media.Track, i int) string {
	switch {
	case tr.Label != "":
		return tr.Label
	case tr.Codecs != "":
		return tr.Codecs
	}
	if name := languageName(tr.Language); name != "" {
		return name
	}
	return fmt.Sprintf("Audio %d", i+1)
}

func textLabel(tr media.Track, i int) string {
	if tr.Label != "" {
		return tr.Label
	}
	return fmt.Sprintf("Sub %d", i+1)
}

var languageNamer = display.English.Languages()

// languageName renders a BCP 47 or ISO 639 code in English, "" if unknown.
func languageName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.EqualFold(code, "und") {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}
	return languageNamer.Name(tag)
}
