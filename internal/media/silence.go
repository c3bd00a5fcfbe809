package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
)

// Silence is a detected silent interval in an audio stream, in seconds.
type Silence struct {
	Start float64
	End   float64
}

// Middle returns the midpoint of the interval.
func (s Silence) Middle() float64 {
	return (s.Start + s.End) / 2
}

// DetectSilences runs ffmpeg's silencedetect filter and parses the detected
// intervals. noiseDB is the dBFS threshold below which audio counts as
// silence; minDuration is the minimum silence length in seconds.
func (f *FFmpeg) DetectSilences(ctx context.Context, path string, noiseDB float64, minDuration float64) ([]Silence, error) {
	filter := fmt.Sprintf("silencedetect=noise=%ddB:d=%f", int(noiseDB), minDuration)
	args := []string{
		"-i", path,
		"-af", filter,
		"-f", "null",
		"-hide_banner",
		"-",
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// silencedetect writes to stderr and ffmpeg exits non-zero with a null
	// output; the run error itself carries no signal.
	_ = cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("silencedetect cancelled: %w", ctx.Err())
	}

	return parseSilenceOutput(stderr.String()), nil
}

var (
	silenceStartRe = regexp.MustCompile(`silence_start:\s*([\d.]+)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*([\d.]+)`)
)

// parseSilenceOutput extracts silence intervals from silencedetect stderr
// output. Unpaired markers are dropped.
func parseSilenceOutput(output string) []Silence {
	var silences []Silence

	starts := silenceStartRe.FindAllStringSubmatch(output, -1)
	ends := silenceEndRe.FindAllStringSubmatch(output, -1)

	n := len(starts)
	if len(ends) < n {
		n = len(ends)
	}

	for i := 0; i < n; i++ {
		start, err1 := strconv.ParseFloat(starts[i][1], 64)
		end, err2 := strconv.ParseFloat(ends[i][1], 64)
		if err1 != nil || err2 != nil || end < start {
			continue
		}
		silences = append(silences, Silence{Start: start, End: end})
	}

	return silences
}
