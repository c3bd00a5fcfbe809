package job

import (
	"encoding/json"
	"fmt"
)

// TimeRange selects a sub-interval of the source media in seconds.
type TimeRange struct {
	Start float64 `json:"start" validate:"gte=0"`
	End   float64 `json:"end" validate:"gtfield=Start"`
}

// Duration returns the length of the range in seconds.
func (r TimeRange) Duration() float64 {
	return r.End - r.Start
}

// ExportParams configures a media-export job.
type ExportParams struct {
	// Resolution is the target output resolution.
	Resolution string `json:"resolution" validate:"required,oneof=480p 720p 1080p 2160p"`
	// Quality is the encoding quality preset.
	Quality string `json:"quality" validate:"required,oneof=draft standard high"`
	// Ranges optionally trims the source to these intervals before encoding.
	Ranges []TimeRange `json:"ranges,omitempty" validate:"omitempty,dive"`
}

// TranscriptionParams configures a transcription job.
type TranscriptionParams struct {
	// Language is an optional ISO 639-1 hint passed to the transcription API.
	Language string `json:"language,omitempty" validate:"omitempty,len=2"`
	// ChunkWindowSec overrides the nominal chunk duration for long inputs.
	ChunkWindowSec int `json:"chunk_window_sec,omitempty" validate:"omitempty,gte=60,lte=1800"`
}

// SubtitleBurnParams configures a subtitle-burn job.
type SubtitleBurnParams struct {
	Language string `json:"language,omitempty" validate:"omitempty,len=2"`
	// Resolution of the re-encoded output carrying the burned subtitles.
	Resolution string `json:"resolution" validate:"required,oneof=480p 720p 1080p 2160p"`
	Quality    string `json:"quality" validate:"required,oneof=draft standard high"`
}

// HighlightParams configures a highlight-detection job.
type HighlightParams struct {
	// Sensitivity controls how loud a passage must be to count as activity.
	Sensitivity string `json:"sensitivity" validate:"required,oneof=low medium high"`
	// MaxReelSec caps the total duration of the produced highlight reel.
	MaxReelSec int `json:"max_reel_sec,omitempty" validate:"omitempty,gte=10,lte=600"`
}

// BatchItemParams configures a batch-item normalization job.
type BatchItemParams struct {
	Resolution string `json:"resolution" validate:"required,oneof=480p 720p 1080p 2160p"`
	Quality    string `json:"quality" validate:"required,oneof=draft standard high"`
}

// EncodeParams marshals a typed parameter struct for storage on a Job.
func EncodeParams(p any) (json.RawMessage, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode job params: %w", err)
	}
	return b, nil
}

// DecodeParams unmarshals a Job's raw parameters into the given struct.
// A nil raw payload leaves the destination at its zero value.
func DecodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode job params: %w", err)
	}
	return nil
}
