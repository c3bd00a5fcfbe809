// Package highlight derives an activity-based highlight reel from a clip.
// Activity is the complement of detected silence in the audio track; the
// loudness floor used for silence detection is what the caller's sensitivity
// maps onto.
package highlight

import (
	"errors"

	"github.com/clipflow/pipeline/internal/media"
)

// Sensitivity controls how loud a passage must be to count as activity.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// ErrUnknownSensitivity is returned for a sensitivity outside the supported set.
var ErrUnknownSensitivity = errors.New("unknown sensitivity")

// NoiseFloorDB returns the silencedetect threshold for the sensitivity.
// A higher (less negative) floor classifies more of the track as silence, so
// only genuinely loud passages survive as activity.
func (s Sensitivity) NoiseFloorDB() (float64, error) {
	switch s {
	case SensitivityLow:
		return -25, nil
	case SensitivityMedium:
		return -33, nil
	case SensitivityHigh:
		return -40, nil
	default:
		return 0, ErrUnknownSensitivity
	}
}

// Options tune highlight selection.
type Options struct {
	// MinSpanSec drops activity bursts shorter than this.
	MinSpanSec float64
	// PadSec extends each selected span on both sides for context.
	PadSec float64
	// MaxReelSec caps the cumulative duration of the reel.
	MaxReelSec float64
}

// DefaultOptions returns the selection defaults.
func DefaultOptions() Options {
	return Options{
		MinSpanSec: 3,
		PadSec:     0.5,
		MaxReelSec: 90,
	}
}

// Select turns detected silences into an ordered list of activity spans for
// the reel. Spans shorter than MinSpanSec are dropped, survivors are padded
// and clamped to the clip, and selection stops once MaxReelSec is reached
// (the span that would overflow the cap is truncated).
func Select(silences []media.Silence, totalSec float64, opts Options) []media.Span {
	if totalSec <= 0 {
		return nil
	}

	activity := invertSilences(silences, totalSec)

	var reel []media.Span
	budget := opts.MaxReelSec
	for _, span := range activity {
		if span.Duration() < opts.MinSpanSec {
			continue
		}

		padded := media.Span{Start: span.Start - opts.PadSec, End: span.End + opts.PadSec}
		if padded.Start < 0 {
			padded.Start = 0
		}
		if padded.End > totalSec {
			padded.End = totalSec
		}

		if budget > 0 && padded.Duration() > budget {
			padded.End = padded.Start + budget
			if padded.Duration() > 0 {
				reel = append(reel, padded)
			}
			break
		}

		reel = append(reel, padded)
		if budget > 0 {
			budget -= padded.Duration()
			if budget <= 0 {
				break
			}
		}
	}
	return reel
}

// invertSilences returns the non-silent intervals covering [0, totalSec].
func invertSilences(silences []media.Silence, totalSec float64) []media.Span {
	var spans []media.Span
	cursor := 0.0
	for _, s := range silences {
		if s.Start > cursor {
			spans = append(spans, media.Span{Start: cursor, End: s.Start})
		}
		if s.End > cursor {
			cursor = s.End
		}
	}
	if cursor < totalSec {
		spans = append(spans, media.Span{Start: cursor, End: totalSec})
	}
	return spans
}
