package transcribe

import (
	"strings"
	"testing"
)

func TestMerge_ShiftsTimestampsByPrecedingDurations(t *testing.T) {
	parts := []Transcript{
		{
			Language: "en",
			Duration: 1200,
			Text:     "first chunk.",
			Segments: []Segment{
				{Start: 0, End: 4.5, Text: "first"},
				{Start: 1195, End: 1199, Text: "chunk."},
			},
		},
		{
			Duration: 1200,
			Text:     "second chunk.",
			Segments: []Segment{
				{Start: 1, End: 3, Text: "second chunk."},
			},
		},
		{
			Duration: 720,
			Text:     "third chunk.",
			Segments: []Segment{
				{Start: 0.5, End: 2, Text: "third chunk."},
			},
		},
	}

	merged := Merge(parts)

	if merged.Duration != 3120 {
		t.Errorf("expected total duration 3120, got %v", merged.Duration)
	}
	if merged.Language != "en" {
		t.Errorf("expected language en, got %q", merged.Language)
	}
	if len(merged.Segments) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(merged.Segments))
	}
	// Second chunk's segments shift by 1200, third's by 2400.
	if merged.Segments[2].Start != 1201 || merged.Segments[2].End != 1203 {
		t.Errorf("expected second chunk shifted by 1200, got %v-%v",
			merged.Segments[2].Start, merged.Segments[2].End)
	}
	if merged.Segments[3].Start != 2400.5 {
		t.Errorf("expected third chunk shifted by 2400, got %v", merged.Segments[3].Start)
	}
	if merged.Text != "first chunk. second chunk. third chunk." {
		t.Errorf("unexpected merged text: %q", merged.Text)
	}

	// Timestamps stay non-decreasing across the merged timeline.
	for i := 1; i < len(merged.Segments); i++ {
		if merged.Segments[i].Start < merged.Segments[i-1].Start {
			t.Errorf("segment %d starts before segment %d", i, i-1)
		}
	}
}

func TestMerge_Empty(t *testing.T) {
	merged := Merge(nil)
	if merged.Duration != 0 || merged.Text != "" || len(merged.Segments) != 0 {
		t.Errorf("expected zero transcript, got %+v", merged)
	}
}

func TestWriteSRT(t *testing.T) {
	tr := Transcript{
		Segments: []Segment{
			{Start: 0, End: 2.5, Text: " hello "},
			{Start: 3661.25, End: 3662, Text: "one hour in"},
		},
	}

	var b strings.Builder
	if err := WriteSRT(&b, tr); err != nil {
		t.Fatalf("write srt failed: %v", err)
	}

	want := "1\n00:00:00,000 --> 00:00:02,500\nhello\n\n" +
		"2\n01:01:01,250 --> 01:01:02,000\none hour in\n\n"
	if b.String() != want {
		t.Errorf("unexpected srt output:\ngot:\n%s\nwant:\n%s", b.String(), want)
	}
}
