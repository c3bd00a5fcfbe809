// Package transcribe provides the speech-to-text client and transcript
// handling for the transcription and subtitle pipelines.
package transcribe

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Segment is a timestamped span of transcribed speech. Start and End are
// seconds relative to the transcript's own timeline.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the result of transcribing one piece of audio.
type Transcript struct {
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration"`
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// Merge concatenates per-chunk transcripts into a single transcript on one
// absolute timeline. Each chunk's segment timestamps are shifted by the total
// duration of all preceding chunks; inputs must already be ordered by chunk
// index.
func Merge(parts []Transcript) Transcript {
	var merged Transcript
	var texts []string
	offset := 0.0

	for _, p := range parts {
		for _, s := range p.Segments {
			merged.Segments = append(merged.Segments, Segment{
				Start: s.Start + offset,
				End:   s.End + offset,
				Text:  s.Text,
			})
		}
		if t := strings.TrimSpace(p.Text); t != "" {
			texts = append(texts, t)
		}
		if merged.Language == "" {
			merged.Language = p.Language
		}
		offset += p.Duration
	}

	merged.Duration = offset
	merged.Text = strings.Join(texts, " ")
	return merged
}

// WriteSRT renders the transcript in SubRip format, the form ffmpeg's
// subtitles filter consumes.
func WriteSRT(w io.Writer, t Transcript) error {
	for i, s := range t.Segments {
		_, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTimestamp(s.Start), srtTimestamp(s.End), strings.TrimSpace(s.Text))
		if err != nil {
			return fmt.Errorf("write srt cue %d: %w", i+1, err)
		}
	}
	return nil
}

// srtTimestamp formats seconds as HH:MM:SS,mmm.
func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds * float64(time.Second))
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	ms := (d - s*time.Second) / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
