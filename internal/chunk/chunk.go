// Package chunk splits large media payloads into bounded-duration chunks so
// they fit external API limits, and reassembles per-chunk results in order.
// Boundaries are duration-based rather than byte-based so a unit of speech is
// never cut mid-word when silence information is available.
package chunk

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/clipflow/pipeline/internal/media"
)

// Chunk is a bounded slice of a larger payload.
type Chunk struct {
	// Index is the position of the chunk in the sequence. Results are merged
	// strictly by ascending index regardless of processing order.
	Index int
	// Start is the offset of the chunk from the source start, in seconds.
	Start float64
	// Duration is the chunk length in seconds.
	Duration float64
	// Path is the extracted chunk file; empty until extraction.
	Path string
}

// End returns the chunk's end offset in seconds.
func (c Chunk) End() float64 {
	return c.Start + c.Duration
}

// Plan divides a payload of totalSec into contiguous, non-overlapping windows
// of at most windowSec. The final chunk absorbs the remainder and may be
// shorter than the nominal window. A payload within one window yields a
// single chunk.
func Plan(totalSec, windowSec float64) []Chunk {
	if totalSec <= 0 {
		return nil
	}
	if windowSec <= 0 || totalSec <= windowSec {
		return []Chunk{{Index: 0, Start: 0, Duration: totalSec}}
	}

	var chunks []Chunk
	for start := 0.0; start < totalSec; start += windowSec {
		d := windowSec
		if start+d > totalSec {
			d = totalSec - start
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Start: start, Duration: d})
	}
	return chunks
}

// AlignToSilences nudges interior chunk boundaries to the middle of a nearby
// silence, so transcription chunks do not begin or end mid-word. A boundary
// moves only when a silence midpoint lies within tolerance of it; boundaries
// stay strictly increasing. The overall coverage is unchanged.
func AlignToSilences(chunks []Chunk, silences []media.Silence, tolerance float64) []Chunk {
	if len(chunks) < 2 || len(silences) == 0 || tolerance <= 0 {
		return chunks
	}

	boundaries := make([]float64, 0, len(chunks)-1)
	for _, c := range chunks[1:] {
		boundaries = append(boundaries, c.Start)
	}

	prev := 0.0
	for i, b := range boundaries {
		if best, ok := nearestSilence(silences, b, tolerance); ok && best > prev {
			boundaries[i] = best
		}
		prev = boundaries[i]
	}

	total := chunks[len(chunks)-1].End()
	aligned := make([]Chunk, 0, len(chunks))
	start := 0.0
	for i, b := range append(boundaries, total) {
		aligned = append(aligned, Chunk{Index: i, Start: start, Duration: b - start})
		start = b
	}
	return aligned
}

// nearestSilence returns the silence midpoint closest to the ideal point
// within tolerance.
func nearestSilence(silences []media.Silence, ideal, tolerance float64) (float64, bool) {
	best := 0.0
	bestDist := tolerance
	found := false
	for _, s := range silences {
		mid := s.Middle()
		dist := mid - ideal
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			bestDist = dist
			best = mid
			found = true
		}
	}
	return best, found
}

// Splitter extracts planned chunks into files using the media adapter.
type Splitter struct {
	ffmpeg *media.FFmpeg
}

// NewSplitter creates a Splitter on the given media adapter.
func NewSplitter(ffmpeg *media.FFmpeg) *Splitter {
	return &Splitter{ffmpeg: ffmpeg}
}

// Extract writes each chunk of src as its own file in outDir and fills in
// the chunk paths. Partial output files are removed on error.
func (s *Splitter) Extract(ctx context.Context, src, outDir string, chunks []Chunk) ([]Chunk, error) {
	out := make([]Chunk, len(chunks))
	copy(out, chunks)

	for i := range out {
		path := filepath.Join(outDir, fmt.Sprintf("chunk_%03d%s", out[i].Index, filepath.Ext(src)))
		span := media.Span{Start: out[i].Start, End: out[i].End()}
		if err := s.ffmpeg.Trim(ctx, src, path, span); err != nil {
			return nil, fmt.Errorf("extract chunk %d: %w", out[i].Index, err)
		}
		out[i].Path = path
	}
	return out, nil
}

// Process runs fn for every chunk with at most concurrency running at once
// and returns the results ordered by chunk index, regardless of completion
// order. If any chunk fails, the remaining work is cancelled and the partial
// results are discarded.
func Process[R any](ctx context.Context, chunks []Chunk, concurrency int, fn func(ctx context.Context, c Chunk) (R, error)) ([]R, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]R, len(chunks))
	sem := make(chan struct{}, concurrency)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for i, c := range chunks {
		wg.Add(1)
		go func(i int, c Chunk) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			r, err := fn(ctx, c)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("chunk %d: %w", c.Index, err)
				}
				mu.Unlock()
				cancel()
				return
			}
			results[i] = r
		}(i, c)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("chunk processing cancelled: %w", err)
	}
	return results, nil
}
