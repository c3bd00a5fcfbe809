package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/clipflow/pipeline/internal/chunk"
	"github.com/clipflow/pipeline/internal/highlight"
	"github.com/clipflow/pipeline/internal/job"
	"github.com/clipflow/pipeline/internal/media"
	"github.com/clipflow/pipeline/internal/retry"
	"github.com/clipflow/pipeline/internal/storage"
	"github.com/clipflow/pipeline/internal/transcribe"
)

// DefaultChunkWindowSec is the nominal chunk duration for long audio. 600s of
// mono 16kHz PCM stays safely under the transcription API upload cap.
const DefaultChunkWindowSec = 600

// DefaultChunkConcurrency bounds how many chunks are transcribed in parallel.
const DefaultChunkConcurrency = 3

// boundaryToleranceSec is how far a chunk boundary may be nudged to land on a
// silence instead of cutting through speech.
const boundaryToleranceSec = 30.0

// chunkSilenceNoiseDB / chunkSilenceMinSec tune silence detection when it is
// used only to find clean cut points, as opposed to highlight analysis.
const (
	chunkSilenceNoiseDB = -40.0
	chunkSilenceMinSec  = 0.5
)

// ErrUnsupportedJobType is returned when a job names a type no pipeline exists
// for. The sequencer records it as the job's failure detail.
var ErrUnsupportedJobType = errors.New("unsupported job type")

// Builder assembles the per-type stage pipelines from the shared adapters.
type Builder struct {
	ffmpeg      *media.FFmpeg
	splitter    *chunk.Splitter
	transcriber transcribe.Client
	storage     storage.Storage
	policy      retry.Policy

	chunkWindowSec   float64
	chunkConcurrency int
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithChunkWindow overrides the nominal chunk duration in seconds.
func WithChunkWindow(sec int) BuilderOption {
	return func(b *Builder) {
		if sec > 0 {
			b.chunkWindowSec = float64(sec)
		}
	}
}

// WithChunkConcurrency overrides how many chunks are processed in parallel.
func WithChunkConcurrency(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.chunkConcurrency = n
		}
	}
}

// NewBuilder creates a pipeline builder over the given adapters. policy is
// the per-chunk retry budget for transcription calls.
func NewBuilder(ffmpeg *media.FFmpeg, transcriber transcribe.Client, store storage.Storage, policy retry.Policy, opts ...BuilderOption) *Builder {
	b := &Builder{
		ffmpeg:           ffmpeg,
		splitter:         chunk.NewSplitter(ffmpeg),
		transcriber:      transcriber,
		storage:          store,
		policy:           policy,
		chunkWindowSec:   DefaultChunkWindowSec,
		chunkConcurrency: DefaultChunkConcurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ Stages = (*Builder)(nil)

// Stages returns the ordered stage list for the job, with its parameters
// decoded and validated. Unknown types and malformed parameters fail here,
// before any stage runs.
func (b *Builder) Stages(j *job.Job) ([]Stage, error) {
	switch j.Type {
	case job.TypeTranscription:
		var p job.TranscriptionParams
		if err := job.DecodeParams(j.Params, &p); err != nil {
			return nil, err
		}
		return b.transcriptionStages(p), nil
	case job.TypeMediaExport:
		var p job.ExportParams
		if err := job.DecodeParams(j.Params, &p); err != nil {
			return nil, err
		}
		return b.exportStages(p)
	case job.TypeSubtitleBurn:
		var p job.SubtitleBurnParams
		if err := job.DecodeParams(j.Params, &p); err != nil {
			return nil, err
		}
		return b.subtitleBurnStages(p)
	case job.TypeHighlightDetection:
		var p job.HighlightParams
		if err := job.DecodeParams(j.Params, &p); err != nil {
			return nil, err
		}
		return b.highlightStages(p)
	case job.TypeBatchItem:
		var p job.BatchItemParams
		if err := job.DecodeParams(j.Params, &p); err != nil {
			return nil, err
		}
		return b.batchItemStages(p)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedJobType, j.Type)
	}
}

func (b *Builder) transcriptionStages(p job.TranscriptionParams) []Stage {
	window := b.chunkWindowSec
	if p.ChunkWindowSec > 0 {
		window = float64(p.ChunkWindowSec)
	}
	return []Stage{
		b.fetchStage(10),
		b.extractAudioStage(25),
		b.splitAudioStage(35, window),
		b.transcribeStage(85, p.Language),
		{
			Name:       "publishing transcript",
			Checkpoint: 100,
			Retryable:  true,
			Run: func(ctx context.Context, env *Env) error {
				path := filepath.Join(env.WorkDir, "transcript.json")
				data, err := json.Marshal(env.Transcript)
				if err != nil {
					return fmt.Errorf("encoding transcript: %w", err)
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("writing transcript: %w", err)
				}
				return b.publish(ctx, env, "transcript.json", path)
			},
		},
	}
}

func (b *Builder) exportStages(p job.ExportParams) ([]Stage, error) {
	res, quality, err := encodingSettings(p.Resolution, p.Quality)
	if err != nil {
		return nil, err
	}
	return []Stage{
		b.fetchStage(10),
		{
			Name:       "trimming source",
			Checkpoint: 40,
			Run: func(ctx context.Context, env *Env) error {
				if len(p.Ranges) == 0 {
					return nil
				}
				for _, r := range p.Ranges {
					env.Spans = append(env.Spans, media.Span{Start: r.Start, End: r.End})
				}
				cut, err := b.cutSpans(ctx, env, env.SourcePath, "trimmed.mp4")
				if err != nil {
					return err
				}
				env.SourcePath = cut
				return nil
			},
		},
		b.transcodeStage("re-encoding", 80, res, quality, "export.mp4"),
		b.publishOutputStage(100, "export.mp4"),
	}, nil
}

func (b *Builder) subtitleBurnStages(p job.SubtitleBurnParams) ([]Stage, error) {
	res, quality, err := encodingSettings(p.Resolution, p.Quality)
	if err != nil {
		return nil, err
	}
	return []Stage{
		b.fetchStage(10),
		b.extractAudioStage(20),
		b.splitAudioStage(30, b.chunkWindowSec),
		b.transcribeStage(60, p.Language),
		{
			Name:       "rendering subtitles",
			Checkpoint: 70,
			Run: func(ctx context.Context, env *Env) error {
				path := filepath.Join(env.WorkDir, "subtitles.srt")
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("creating subtitle file: %w", err)
				}
				defer f.Close()
				if err := transcribe.WriteSRT(f, env.Transcript); err != nil {
					return fmt.Errorf("rendering subtitles: %w", err)
				}
				env.SubtitlePath = path
				return nil
			},
		},
		{
			Name:       "burning subtitles",
			Checkpoint: 90,
			Run: func(ctx context.Context, env *Env) error {
				out := filepath.Join(env.WorkDir, "subtitled.mp4")
				if err := b.ffmpeg.BurnSubtitles(ctx, env.SourcePath, env.SubtitlePath, out, res, quality); err != nil {
					return err
				}
				env.OutputPath = out
				return nil
			},
		},
		b.publishOutputStage(100, "subtitled.mp4"),
	}, nil
}

func (b *Builder) highlightStages(p job.HighlightParams) ([]Stage, error) {
	noiseDB, err := highlight.Sensitivity(p.Sensitivity).NoiseFloorDB()
	if err != nil {
		return nil, err
	}
	opts := highlight.DefaultOptions()
	if p.MaxReelSec > 0 {
		opts.MaxReelSec = float64(p.MaxReelSec)
	}
	return []Stage{
		b.fetchStage(10),
		b.extractAudioStage(20),
		{
			Name:       "analyzing activity",
			Checkpoint: 50,
			Run: func(ctx context.Context, env *Env) error {
				total, err := b.ffmpeg.Duration(ctx, env.AudioPath)
				if err != nil {
					return err
				}
				silences, err := b.ffmpeg.DetectSilences(ctx, env.AudioPath, noiseDB, 0.6)
				if err != nil {
					return err
				}
				spans := highlight.Select(silences, total, opts)
				if len(spans) == 0 {
					return errors.New("no highlight-worthy activity detected in source")
				}
				env.Spans = spans
				return nil
			},
		},
		{
			Name:       "cutting highlights",
			Checkpoint: 85,
			Run: func(ctx context.Context, env *Env) error {
				out, err := b.cutSpans(ctx, env, env.SourcePath, "highlights.mp4")
				if err != nil {
					return err
				}
				env.OutputPath = out
				return nil
			},
		},
		b.publishOutputStage(100, "highlights.mp4"),
	}, nil
}

func (b *Builder) batchItemStages(p job.BatchItemParams) ([]Stage, error) {
	res, quality, err := encodingSettings(p.Resolution, p.Quality)
	if err != nil {
		return nil, err
	}
	return []Stage{
		b.fetchStage(15),
		b.transcodeStage("normalizing media", 70, res, quality, "normalized.mp4"),
		b.publishOutputStage(100, "normalized.mp4"),
	}, nil
}

// fetchStage resolves the job's input reference into the work directory.
func (b *Builder) fetchStage(checkpoint int) Stage {
	return Stage{
		Name:       "fetching source",
		Checkpoint: checkpoint,
		Retryable:  true,
		Run: func(ctx context.Context, env *Env) error {
			fetched, err := b.storage.Fetch(ctx, env.Job.InputRef)
			if err != nil {
				return err
			}
			dst := filepath.Join(env.WorkDir, "source"+filepath.Ext(env.Job.InputRef))
			if err := os.Rename(fetched, dst); err != nil {
				// Cross-device fallback; the fetched copy is removed either way.
				defer os.Remove(fetched)
				if cpErr := copyIntoWorkDir(fetched, dst); cpErr != nil {
					return fmt.Errorf("moving fetched source: %w", cpErr)
				}
			}
			env.SourcePath = dst
			return nil
		},
	}
}

func (b *Builder) extractAudioStage(checkpoint int) Stage {
	return Stage{
		Name:       "extracting audio",
		Checkpoint: checkpoint,
		Run: func(ctx context.Context, env *Env) error {
			dst := filepath.Join(env.WorkDir, "audio.wav")
			if err := b.ffmpeg.ExtractAudio(ctx, env.SourcePath, dst); err != nil {
				return err
			}
			env.AudioPath = dst
			return nil
		},
	}
}

// splitAudioStage plans duration windows over the extracted audio, aligns the
// boundaries to detected silences, and extracts the chunk files. Short inputs
// pass through as a single chunk without re-cutting the audio.
func (b *Builder) splitAudioStage(checkpoint int, windowSec float64) Stage {
	return Stage{
		Name:       "splitting audio",
		Checkpoint: checkpoint,
		Run: func(ctx context.Context, env *Env) error {
			total, err := b.ffmpeg.Duration(ctx, env.AudioPath)
			if err != nil {
				return err
			}
			plan := chunk.Plan(total, windowSec)
			if len(plan) <= 1 {
				env.Chunks = []chunk.Chunk{{Index: 0, Start: 0, Duration: total, Path: env.AudioPath}}
				return nil
			}
			silences, err := b.ffmpeg.DetectSilences(ctx, env.AudioPath, chunkSilenceNoiseDB, chunkSilenceMinSec)
			if err != nil {
				return err
			}
			aligned := chunk.AlignToSilences(plan, silences, boundaryToleranceSec)
			extracted, err := b.splitter.Extract(ctx, env.AudioPath, env.WorkDir, aligned)
			if err != nil {
				return err
			}
			env.Chunks = extracted
			return nil
		},
	}
}

// transcribeStage transcribes the planned chunks in parallel and merges the
// results onto one timeline. Retries happen per chunk, inside the stage, so
// one flaky chunk does not restart the others.
func (b *Builder) transcribeStage(checkpoint int, language string) Stage {
	return Stage{
		Name:       "transcribing audio",
		Checkpoint: checkpoint,
		Run: func(ctx context.Context, env *Env) error {
			parts, err := chunk.Process(ctx, env.Chunks, b.chunkConcurrency, func(ctx context.Context, c chunk.Chunk) (transcribe.Transcript, error) {
				var t transcribe.Transcript
				err := retry.Do(ctx, b.policy, func() error {
					var tErr error
					t, tErr = b.transcriber.Transcribe(ctx, c.Path, language)
					return tErr
				})
				if err != nil {
					return transcribe.Transcript{}, fmt.Errorf("chunk %d: %w", c.Index, err)
				}
				// The planned duration is authoritative for timeline offsets.
				t.Duration = c.Duration
				return t, nil
			})
			if err != nil {
				return err
			}
			env.Transcript = transcribe.Merge(parts)
			return nil
		},
	}
}

func (b *Builder) transcodeStage(name string, checkpoint int, res media.Resolution, q media.Quality, outName string) Stage {
	return Stage{
		Name:       name,
		Checkpoint: checkpoint,
		Run: func(ctx context.Context, env *Env) error {
			out := filepath.Join(env.WorkDir, outName)
			if err := b.ffmpeg.Transcode(ctx, env.SourcePath, out, res, q); err != nil {
				return err
			}
			env.OutputPath = out
			return nil
		},
	}
}

func (b *Builder) publishOutputStage(checkpoint int, outName string) Stage {
	return Stage{
		Name:       "publishing result",
		Checkpoint: checkpoint,
		Retryable:  true,
		Run: func(ctx context.Context, env *Env) error {
			return b.publish(ctx, env, outName, env.OutputPath)
		},
	}
}

func (b *Builder) publish(ctx context.Context, env *Env, outName, localPath string) error {
	key := fmt.Sprintf("jobs/%s/%s", env.Job.ID, outName)
	ref, err := b.storage.Publish(ctx, key, localPath)
	if err != nil {
		return err
	}
	env.OutputRef = ref
	return nil
}

// cutSpans trims each span out of src and concatenates the pieces in order.
// A single span skips the concat step.
func (b *Builder) cutSpans(ctx context.Context, env *Env, src, outName string) (string, error) {
	out := filepath.Join(env.WorkDir, outName)
	if len(env.Spans) == 1 {
		if err := b.ffmpeg.Trim(ctx, src, out, env.Spans[0]); err != nil {
			return "", err
		}
		return out, nil
	}
	parts := make([]string, len(env.Spans))
	for i, span := range env.Spans {
		part := filepath.Join(env.WorkDir, fmt.Sprintf("part_%03d%s", i, filepath.Ext(src)))
		if err := b.ffmpeg.Trim(ctx, src, part, span); err != nil {
			return "", err
		}
		parts[i] = part
	}
	if err := b.ffmpeg.Concat(ctx, parts, out); err != nil {
		return "", err
	}
	return out, nil
}

func encodingSettings(resolution, quality string) (media.Resolution, media.Quality, error) {
	res := media.Resolution(resolution)
	if _, _, err := res.Size(); err != nil {
		return "", "", err
	}
	q := media.Quality(quality)
	if _, _, err := q.Encoding(); err != nil {
		return "", "", err
	}
	return res, q, nil
}

// copyIntoWorkDir copies src to dst when a rename across filesystems fails.
func copyIntoWorkDir(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
