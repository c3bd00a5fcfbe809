package highlight

import (
	"testing"

	"github.com/clipflow/pipeline/internal/media"
)

func TestSensitivityNoiseFloorDB(t *testing.T) {
	tests := []struct {
		s       Sensitivity
		want    float64
		wantErr bool
	}{
		{SensitivityLow, -25, false},
		{SensitivityMedium, -33, false},
		{SensitivityHigh, -40, false},
		{Sensitivity("extreme"), 0, true},
	}
	for _, tt := range tests {
		got, err := tt.s.NoiseFloorDB()
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.s)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%s: expected %v, got %v (err %v)", tt.s, tt.want, got, err)
		}
	}
}

func TestSelect_DropsShortBursts(t *testing.T) {
	// Activity: 0-10, 12-13 (too short), 20-30.
	silences := []media.Silence{
		{Start: 10, End: 12},
		{Start: 13, End: 20},
	}
	opts := Options{MinSpanSec: 3, PadSec: 0, MaxReelSec: 90}

	reel := Select(silences, 30, opts)
	if len(reel) != 2 {
		t.Fatalf("expected 2 spans, got %d: %v", len(reel), reel)
	}
	if reel[0].Start != 0 || reel[0].End != 10 {
		t.Errorf("unexpected first span: %v", reel[0])
	}
	if reel[1].Start != 20 || reel[1].End != 30 {
		t.Errorf("unexpected second span: %v", reel[1])
	}
}

func TestSelect_PadsAndClamps(t *testing.T) {
	silences := []media.Silence{
		{Start: 5, End: 8},
	}
	opts := Options{MinSpanSec: 3, PadSec: 0.5, MaxReelSec: 90}

	reel := Select(silences, 12, opts)
	if len(reel) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(reel))
	}
	// First span starts at the clip start despite padding.
	if reel[0].Start != 0 || reel[0].End != 5.5 {
		t.Errorf("unexpected first span: %v", reel[0])
	}
	// Last span ends at the clip end despite padding.
	if reel[1].Start != 7.5 || reel[1].End != 12 {
		t.Errorf("unexpected second span: %v", reel[1])
	}
}

func TestSelect_BudgetCapTruncates(t *testing.T) {
	// Three 10s bursts separated by silences.
	silences := []media.Silence{
		{Start: 10, End: 20},
		{Start: 30, End: 40},
	}
	opts := Options{MinSpanSec: 3, PadSec: 0, MaxReelSec: 15}

	reel := Select(silences, 50, opts)
	if len(reel) != 2 {
		t.Fatalf("expected 2 spans, got %d: %v", len(reel), reel)
	}
	total := 0.0
	for _, s := range reel {
		total += s.Duration()
	}
	if total != 15 {
		t.Errorf("expected reel capped at 15s, got %v", total)
	}
	// The overflowing span is truncated, not dropped.
	if reel[1].Duration() != 5 {
		t.Errorf("expected second span truncated to 5s, got %v", reel[1].Duration())
	}
}

func TestSelect_SilentClip(t *testing.T) {
	silences := []media.Silence{{Start: 0, End: 30}}
	reel := Select(silences, 30, DefaultOptions())
	if len(reel) != 0 {
		t.Errorf("expected no spans for a silent clip, got %v", reel)
	}
}

func TestSelect_NoSilencesSelectsWholeClip(t *testing.T) {
	reel := Select(nil, 40, Options{MinSpanSec: 3, PadSec: 0, MaxReelSec: 90})
	if len(reel) != 1 || reel[0].Start != 0 || reel[0].End != 40 {
		t.Errorf("expected the whole clip as one span, got %v", reel)
	}
}
