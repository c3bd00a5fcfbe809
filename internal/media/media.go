// Package media wraps the external ffmpeg/ffprobe tools for the fixed set of
// operations the pipelines need. Every call is a pure, synchronous, single
// attempt; retry policy belongs to the callers.
package media

import (
	"errors"
	"fmt"
)

// Resolution is the target output resolution for transcodes.
type Resolution string

const (
	Res480p  Resolution = "480p"
	Res720p  Resolution = "720p"
	Res1080p Resolution = "1080p"
	Res2160p Resolution = "2160p"
)

// ErrUnknownResolution is returned for a resolution outside the supported set.
var ErrUnknownResolution = errors.New("unknown resolution")

// Size returns the pixel dimensions for the resolution.
func (r Resolution) Size() (width, height int, err error) {
	switch r {
	case Res480p:
		return 854, 480, nil
	case Res720p:
		return 1280, 720, nil
	case Res1080p:
		return 1920, 1080, nil
	case Res2160p:
		return 3840, 2160, nil
	default:
		return 0, 0, fmt.Errorf("%w: %q", ErrUnknownResolution, r)
	}
}

// Quality is the encoding quality preset.
type Quality string

const (
	QualityDraft    Quality = "draft"
	QualityStandard Quality = "standard"
	QualityHigh     Quality = "high"
)

// ErrUnknownQuality is returned for a quality preset outside the supported set.
var ErrUnknownQuality = errors.New("unknown quality preset")

// Encoding returns the x264 CRF value and speed preset for the quality level.
func (q Quality) Encoding() (crf int, preset string, err error) {
	switch q {
	case QualityDraft:
		return 30, "veryfast", nil
	case QualityStandard:
		return 23, "fast", nil
	case QualityHigh:
		return 18, "slow", nil
	default:
		return 0, "", fmt.Errorf("%w: %q", ErrUnknownQuality, q)
	}
}

// Span is a time interval of the source media in seconds.
type Span struct {
	Start float64
	End   float64
}

// Duration returns the span length in seconds.
func (s Span) Duration() float64 {
	return s.End - s.Start
}

// ErrToolNotFound is returned when the ffmpeg or ffprobe binary cannot be
// located. This is a configuration problem and never worth retrying.
var ErrToolNotFound = errors.New("media tool not found")

// ToolError represents a failed tool invocation, including the stderr output.
type ToolError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s error: %v\nargs: %v\nstderr: %s", e.Tool, e.Err, e.Args, e.Stderr)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}
