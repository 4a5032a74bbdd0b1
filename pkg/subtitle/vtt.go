// Package subtitle normalizes subtitle documents to WebVTT and exposes a
// cue-based view of them. Cue order is playback order and is preserved by
// every transformation.
package subtitle

import (
	"regexp"
	"strings"
)

// Cue is one timed subtitle entry. Timing keeps the original textual
// "start --> end" form so round-trips never reformat timestamps.
type Cue struct {
	Timing string
	Text   string
}

var (
	srtTimestampPattern = regexp.MustCompile(`(\d{2}:\d{2}:\d{2}),(\d{3})`)
	cueIndexPattern     = regexp.MustCompile(`(?m)^\d+\s*\n`)
	tagPattern          = regexp.MustCompile(`<[^>]+>`)
)

// ToVTT normalizes a fetched subtitle body: documents already carrying the
// WEBVTT header pass through unchanged, anything else is treated as SRT.
func ToVTT(raw string) string {
	if strings.HasPrefix(strings.TrimLeft(raw, " \t\r\n\uFEFF"), "WEBVTT") {
		return raw
	}
	return SrtToVTT(raw)
}

// SrtToVTT converts an SRT document to WebVTT: line endings normalized,
// comma decimal separators converted to dots, numeric cue-index lines
// stripped, header prefixed.
func SrtToVTT(srt string) string {
	body := strings.ReplaceAll(srt, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	body = srtTimestampPattern.ReplaceAllString(body, "$1.$2")
	body = cueIndexPattern.ReplaceAllString(body, "")
	return "WEBVTT\n\n" + strings.TrimSpace(body)
}

// ParseCues scans a VTT document for cues. A line containing the timing
// arrow starts a cue; following non-blank lines are its text. Markup tags
// are stripped and cues left with no text are dropped.
func ParseCues(vtt string) []Cue {
	lines := strings.Split(vtt, "\n")
	var cues []Cue

	for i := 0; i < len(lines); {
		line := strings.TrimSpace(lines[i])
		if !strings.Contains(line, "-->") {
			i++
			continue
		}

		timing := line
		i++
		var textLines []string
		for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
			textLines = append(textLines, lines[i])
			i++
		}

		text := strings.TrimSpace(tagPattern.ReplaceAllString(strings.Join(textLines, "\n"), ""))
		if text != "" {
			cues = append(cues, Cue{Timing: timing, Text: text})
		}
	}

	return cues
}

// BuildVTT assembles cues back into a WebVTT document.
func BuildVTT(cues []Cue) string {
	parts := make([]string, 0, len(cues))
	for _, c := range cues {
		parts = append(parts, c.Timing+"\n"+c.Text)
	}
	return "WEBVTT\n\n" + strings.Join(parts, "\n\n")
}
