package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/clipflow/pipeline/internal/retry"
)

// FFmpeg invokes the ffmpeg and ffprobe CLIs.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg adapter. Empty paths default to "ffmpeg"
// and "ffprobe" resolved via PATH.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Trim extracts a span of the source into dst without re-encoding.
func (f *FFmpeg) Trim(ctx context.Context, src, dst string, span Span) error {
	return f.run(ctx, f.ffmpegPath, buildTrimArgs(src, dst, span))
}

// buildTrimArgs constructs the stream-copy extraction argument list.
func buildTrimArgs(src, dst string, span Span) []string {
	return []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", span.Start),
		"-t", fmt.Sprintf("%.3f", span.Duration()),
		"-i", src,
		"-c", "copy",
		dst,
	}
}

// Concat joins multiple media files into a single output. It first attempts
// a stream copy and falls back to re-encoding if the inputs are incompatible.
func (f *FFmpeg) Concat(ctx context.Context, srcs []string, dst string) error {
	if len(srcs) == 0 {
		return errors.New("no inputs to concatenate")
	}
	if len(srcs) == 1 {
		return copyFile(srcs[0], dst)
	}

	listFile, err := writeConcatList(srcs)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(listFile) }()

	if err := f.run(ctx, f.ffmpegPath, buildConcatArgs(listFile, dst, false)); err == nil {
		return nil
	}
	return f.run(ctx, f.ffmpegPath, buildConcatArgs(listFile, dst, true))
}

func buildConcatArgs(listFile, dst string, reencode bool) []string {
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
	}
	if reencode {
		args = append(args,
			"-c:v", "libx264",
			"-preset", "fast",
			"-crf", "23",
			"-c:a", "aac",
			"-b:a", "128k",
		)
	} else {
		args = append(args, "-c", "copy")
	}
	return append(args, dst)
}

// writeConcatList creates the temporary file list required by ffmpeg's
// concat demuxer.
func writeConcatList(srcs []string) (string, error) {
	tmp, err := os.CreateTemp("", "ffmpeg-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create concat list: %w", err)
	}
	defer func() { _ = tmp.Close() }()

	for _, src := range srcs {
		abs, err := filepath.Abs(src)
		if err != nil {
			return "", fmt.Errorf("resolve path %s: %w", src, err)
		}
		escaped := strings.ReplaceAll(abs, "'", "'\\''")
		if _, err := fmt.Fprintf(tmp, "file '%s'\n", escaped); err != nil {
			return "", fmt.Errorf("write concat list: %w", err)
		}
	}
	return tmp.Name(), nil
}

// Transcode re-encodes the source to the target resolution and quality.
func (f *FFmpeg) Transcode(ctx context.Context, src, dst string, res Resolution, q Quality) error {
	args, err := buildTranscodeArgs(src, dst, res, q)
	if err != nil {
		return err
	}
	return f.run(ctx, f.ffmpegPath, args)
}

func buildTranscodeArgs(src, dst string, res Resolution, q Quality) ([]string, error) {
	width, height, err := res.Size()
	if err != nil {
		return nil, err
	}
	crf, preset, err := q.Encoding()
	if err != nil {
		return nil, err
	}

	// Scale to fit the target box, then pad so odd aspect ratios still
	// produce the exact requested dimensions.
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black",
		width, height, width, height,
	)

	return []string{
		"-y",
		"-i", src,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", fmt.Sprintf("%d", crf),
		"-c:a", "aac",
		"-b:a", "128k",
		"-pix_fmt", "yuv420p",
		dst,
	}, nil
}

// BurnSubtitles re-encodes the source at the target resolution with the given
// SRT file rendered into the video stream.
func (f *FFmpeg) BurnSubtitles(ctx context.Context, src, srtPath, dst string, res Resolution, q Quality) error {
	args, err := buildBurnArgs(src, srtPath, dst, res, q)
	if err != nil {
		return err
	}
	return f.run(ctx, f.ffmpegPath, args)
}

func buildBurnArgs(src, srtPath, dst string, res Resolution, q Quality) ([]string, error) {
	width, height, err := res.Size()
	if err != nil {
		return nil, err
	}
	crf, preset, err := q.Encoding()
	if err != nil {
		return nil, err
	}

	// The subtitles filter parses its argument with its own quoting rules;
	// escape the characters that terminate the filename. Scale before burning
	// so subtitle glyphs render at the output resolution.
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`).Replace(srtPath)
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black,subtitles='%s'",
		width, height, width, height, escaped,
	)

	return []string{
		"-y",
		"-i", src,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", fmt.Sprintf("%d", crf),
		"-c:a", "copy",
		dst,
	}, nil
}

// ExtractAudio produces a mono 16kHz WAV from the source, the format the
// transcription API expects.
func (f *FFmpeg) ExtractAudio(ctx context.Context, src, dst string) error {
	return f.run(ctx, f.ffmpegPath, buildExtractAudioArgs(src, dst))
}

func buildExtractAudioArgs(src, dst string) []string {
	return []string{
		"-y",
		"-i", src,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		dst,
	}
}

// Duration returns the duration in seconds of a media file, via ffprobe.
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, f.wrapRunError(ctx, "ffprobe", args, stderr.String(), err)
	}

	var duration float64
	if _, err := fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration); err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}

// run executes ffmpeg with the given arguments, translating failures into
// the adapter's error taxonomy.
func (f *FFmpeg) run(ctx context.Context, tool string, args []string) error {
	// #nosec G204 - tool path is set by the application, not user input
	cmd := exec.CommandContext(ctx, tool, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return f.wrapRunError(ctx, filepath.Base(tool), args, stderr.String(), err)
	}
	return nil
}

func (f *FFmpeg) wrapRunError(ctx context.Context, tool string, args []string, stderr string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s cancelled: %w", tool, ctx.Err())
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrToolNotFound, tool)
	}

	toolErr := &ToolError{Tool: tool, Args: args, Stderr: stderr, Err: err}
	if isResourceExhaustion(stderr) {
		return retry.Retryable(toolErr)
	}
	return toolErr
}

// isResourceExhaustion recognizes the transient failure signatures worth
// retrying. Everything else (bad input, codec errors) is terminal.
func isResourceExhaustion(stderr string) bool {
	for _, sig := range []string{
		"Cannot allocate memory",
		"Resource temporarily unavailable",
		"Too many open files",
	} {
		if strings.Contains(stderr, sig) {
			return true
		}
	}
	return false
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	input, err := os.ReadFile(src) // #nosec G304 - src is provided by trusted internal code
	if err != nil {
		return fmt.Errorf("read source file: %w", err)
	}
	if err := os.WriteFile(dst, input, 0600); err != nil {
		return fmt.Errorf("write destination file: %w", err)
	}
	return nil
}
