package media

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
)

const (
	progressPipeTarget = "pipe:2"
	progressTimePrefix = "out_time_us="
)

// FFmpegTranscoder extracts audio tracks with the ffmpeg binary.
// ffprobe supplies the input duration so conversion progress can be
// derived from ffmpeg's out_time reporting.
type FFmpegTranscoder struct {
	ffmpegPath  string
	ffprobePath string
	logger      arbor.ILogger
}

// NewFFmpegTranscoder creates a transcoder using the configured binaries
func NewFFmpegTranscoder(ffmpegPath, ffprobePath string, logger arbor.ILogger) *FFmpegTranscoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegTranscoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      logger,
	}
}

// ExtractAudio writes an audio-only rendition of inputPath to outputPath.
// A cancelled context or a failed run removes the partial output file.
func (t *FFmpegTranscoder) ExtractAudio(ctx context.Context, inputPath, outputPath string, progress func(fraction float64)) error {
	duration, err := t.probeDuration(inputPath)
	if err != nil {
		t.logger.Debug().
			Err(err).
			Str("input", inputPath).
			Msg("ffprobe duration unavailable, progress will be coarse")
		duration = 0
	}

	args := buildExtractAudioArgs(inputPath, outputPath)
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		t.monitorProgress(stderr, duration, progress)
	}()

	err = cmd.Wait()
	<-monitorDone

	if ctx.Err() != nil {
		os.Remove(outputPath)
		return ctx.Err()
	}
	if err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("ffmpeg audio extraction failed: %w", err)
	}

	if _, statErr := os.Stat(outputPath); statErr != nil {
		return fmt.Errorf("ffmpeg reported success but output missing: %w", statErr)
	}

	if progress != nil {
		progress(1.0)
	}
	return nil
}

// Available reports whether the ffmpeg binary responds
func (t *FFmpegTranscoder) Available() bool {
	if err := exec.Command(t.ffmpegPath, "-version").Run(); err != nil {
		return false
	}
	return true
}

// buildExtractAudioArgs maps the input to its audio stream at the best
// variable bitrate, overwriting any existing output.
func buildExtractAudioArgs(inputPath, outputPath string) []string {
	return []string{
		"-i", inputPath,
		"-q:a", "0",
		"-map", "a",
		"-progress", progressPipeTarget,
		"-nostats",
		outputPath,
		"-y",
	}
}

// probeDuration reads the container duration in seconds via ffprobe
func (t *FFmpegTranscoder) probeDuration(filePath string) (float64, error) {
	cmd := exec.Command(t.ffprobePath, "-v", "error", "-show_entries", "format=duration", "-of", "csv=p=0", filePath)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("running ffprobe: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing ffprobe duration: %w", err)
	}
	return duration, nil
}

// monitorProgress converts ffmpeg out_time reports into fractions
func (t *FFmpegTranscoder) monitorProgress(stderr io.ReadCloser, totalDuration float64, progress func(fraction float64)) {
	defer stderr.Close()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, progressTimePrefix) {
			continue
		}

		micros, err := strconv.ParseInt(strings.TrimPrefix(line, progressTimePrefix), 10, 64)
		if err != nil {
			continue
		}

		if totalDuration > 0 && progress != nil {
			fraction := (float64(micros) / 1e6) / totalDuration
			if fraction > 1.0 {
				fraction = 1.0
			}
			progress(fraction)
		}
	}
}
