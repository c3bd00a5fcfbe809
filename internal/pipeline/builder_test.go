package pipeline

import (
	"errors"
	"testing"

	"github.com/clipflow/pipeline/internal/job"
	"github.com/clipflow/pipeline/internal/media"
	"github.com/clipflow/pipeline/internal/retry"
	"github.com/clipflow/pipeline/internal/storage"
	"github.com/clipflow/pipeline/internal/transcribe"
)

func newTestBuilder(t *testing.T, opts ...BuilderOption) *Builder {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir, dir)
	if err != nil {
		t.Fatalf("local storage failed: %v", err)
	}
	return NewBuilder(media.NewFFmpeg("", ""), transcribe.Disabled{}, store, retry.DefaultPolicy, opts...)
}

func stageNames(stages []Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}

func assertStageShape(t *testing.T, stages []Stage, want []string) {
	t.Helper()
	got := stageNames(stages)
	if len(got) != len(want) {
		t.Fatalf("expected stages %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stage %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	// Checkpoints climb strictly and end at 100.
	prev := 0
	for _, s := range stages {
		if s.Checkpoint <= prev {
			t.Errorf("stage %q: checkpoint %d does not advance past %d", s.Name, s.Checkpoint, prev)
		}
		prev = s.Checkpoint
	}
	if prev != 100 {
		t.Errorf("expected final checkpoint 100, got %d", prev)
	}
}

func TestBuilder_TranscriptionStages(t *testing.T) {
	b := newTestBuilder(t)
	j := job.New(job.TypeTranscription, "ref", []byte(`{"language":"en"}`))

	stages, err := b.Stages(j)
	if err != nil {
		t.Fatalf("stages failed: %v", err)
	}
	assertStageShape(t, stages, []string{
		"fetching source",
		"extracting audio",
		"splitting audio",
		"transcribing audio",
		"publishing transcript",
	})
}

func TestBuilder_MediaExportStages(t *testing.T) {
	b := newTestBuilder(t)
	j := job.New(job.TypeMediaExport, "ref", []byte(`{"resolution":"720p","quality":"standard"}`))

	stages, err := b.Stages(j)
	if err != nil {
		t.Fatalf("stages failed: %v", err)
	}
	assertStageShape(t, stages, []string{
		"fetching source",
		"trimming source",
		"re-encoding",
		"publishing result",
	})
}

func TestBuilder_SubtitleBurnStages(t *testing.T) {
	b := newTestBuilder(t)
	j := job.New(job.TypeSubtitleBurn, "ref", []byte(`{"resolution":"1080p","quality":"high"}`))

	stages, err := b.Stages(j)
	if err != nil {
		t.Fatalf("stages failed: %v", err)
	}
	assertStageShape(t, stages, []string{
		"fetching source",
		"extracting audio",
		"splitting audio",
		"transcribing audio",
		"rendering subtitles",
		"burning subtitles",
		"publishing result",
	})
}

func TestBuilder_HighlightStages(t *testing.T) {
	b := newTestBuilder(t)
	j := job.New(job.TypeHighlightDetection, "ref", []byte(`{"sensitivity":"medium"}`))

	stages, err := b.Stages(j)
	if err != nil {
		t.Fatalf("stages failed: %v", err)
	}
	assertStageShape(t, stages, []string{
		"fetching source",
		"extracting audio",
		"analyzing activity",
		"cutting highlights",
		"publishing result",
	})
}

func TestBuilder_BatchItemStages(t *testing.T) {
	b := newTestBuilder(t)
	j := job.New(job.TypeBatchItem, "ref", []byte(`{"resolution":"480p","quality":"draft"}`))

	stages, err := b.Stages(j)
	if err != nil {
		t.Fatalf("stages failed: %v", err)
	}
	assertStageShape(t, stages, []string{
		"fetching source",
		"normalizing media",
		"publishing result",
	})
}

func TestBuilder_UnknownType(t *testing.T) {
	b := newTestBuilder(t)
	j := job.New(job.Type("resize"), "ref", nil)

	_, err := b.Stages(j)
	if !errors.Is(err, ErrUnsupportedJobType) {
		t.Errorf("expected ErrUnsupportedJobType, got %v", err)
	}
}

func TestBuilder_BadEncodingParams(t *testing.T) {
	b := newTestBuilder(t)

	j := job.New(job.TypeMediaExport, "ref", []byte(`{"resolution":"144p","quality":"standard"}`))
	if _, err := b.Stages(j); !errors.Is(err, media.ErrUnknownResolution) {
		t.Errorf("expected ErrUnknownResolution, got %v", err)
	}

	j = job.New(job.TypeBatchItem, "ref", []byte(`{"resolution":"720p","quality":"lossless"}`))
	if _, err := b.Stages(j); !errors.Is(err, media.ErrUnknownQuality) {
		t.Errorf("expected ErrUnknownQuality, got %v", err)
	}

	j = job.New(job.TypeHighlightDetection, "ref", []byte(`{"sensitivity":"extreme"}`))
	if _, err := b.Stages(j); err == nil {
		t.Error("expected error for unknown sensitivity")
	}
}

func TestBuilder_MalformedParams(t *testing.T) {
	b := newTestBuilder(t)
	j := job.New(job.TypeTranscription, "ref", []byte(`{not json`))

	if _, err := b.Stages(j); err == nil {
		t.Error("expected decode error for malformed params")
	}
}

func TestBuilder_RetryableStages(t *testing.T) {
	b := newTestBuilder(t)
	j := job.New(job.TypeTranscription, "ref", nil)

	stages, err := b.Stages(j)
	if err != nil {
		t.Fatalf("stages failed: %v", err)
	}
	for _, s := range stages {
		switch s.Name {
		case "fetching source", "publishing transcript":
			if !s.Retryable {
				t.Errorf("stage %q should route through the retry policy", s.Name)
			}
		case "transcribing audio":
			// Retries happen per chunk inside the stage.
			if s.Retryable {
				t.Errorf("stage %q must not retry wholesale", s.Name)
			}
		}
	}
}
