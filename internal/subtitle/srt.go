// Package subtitle renders the transcript SRT sidecar (spec.md §6), adapted
// from byron-the-bulb-cinema-chat's internal/ffmpeg/subtitles.go: that file
// parses SRT time ranges back into Subtitle structs; this one runs the same
// format in reverse, writing transcript segments out as an SRT document.
package subtitle

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Entry is one subtitle cue: a transcript segment's time span and text.
type Entry struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Render formats entries as an SRT document, numbering cues from 1 in the
// order given. Callers are expected to have already sorted entries by start
// time.
func Render(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, formatSRTTime(e.Start), formatSRTTime(e.End), e.Text)
	}
	return b.String()
}

// WriteFile renders entries and writes them to path, creating or truncating
// the file.
func WriteFile(path string, entries []Entry) error {
	return os.WriteFile(path, []byte(Render(entries)), 0o644)
}

// formatSRTTime converts a duration to SRT's HH:MM:SS,mmm format, the same
// layout FormatDurationToSRT produces in the teacher's subtitles.go.
func formatSRTTime(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}
