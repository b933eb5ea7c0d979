package strategies

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/models"
)

// stubStrategy lets each test script an attempt outcome
type stubStrategy struct {
	name  string
	fetch func(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

func (s *stubStrategy) Name() string {
	return s.name
}

func (s *stubStrategy) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	return s.fetch(ctx, req)
}

// stubTranscoder scripts conversion outcomes
type stubTranscoder struct {
	available bool
	extract   func(ctx context.Context, inputPath, outputPath string, progress func(float64)) error
}

func (t *stubTranscoder) ExtractAudio(ctx context.Context, inputPath, outputPath string, progress func(float64)) error {
	return t.extract(ctx, inputPath, outputPath, progress)
}

func (t *stubTranscoder) Available() bool {
	return t.available
}

func failing(name string) *stubStrategy {
	return &stubStrategy{
		name: name,
		fetch: func(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
			return nil, fmt.Errorf("%s broke", name)
		},
	}
}

func succeeding(name, filePath string) *stubStrategy {
	return &stubStrategy{
		name: name,
		fetch: func(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
			return &FetchResult{
				FilePath: filePath,
				Title:    "clip",
				Format:   models.FormatVideo,
			}, nil
		},
	}
}

func TestExecuteFallsThroughToLaterStrategy(t *testing.T) {
	exec := NewExecutor(nil, arbor.NewLogger(),
		failing("first"),
		failing("second"),
		succeeding("third", "/tmp/clip.mp4"),
	)

	var messages []string
	result, err := exec.Execute(context.Background(), models.PlatformInstagram,
		[]string{"first", "second", "third"},
		&FetchRequest{URL: "https://instagram.com/p/x", Format: models.FormatVideo},
		Callbacks{OnMessage: func(m string) { messages = append(messages, m) }},
	)

	require.NoError(t, err)
	assert.Equal(t, "/tmp/clip.mp4", result.FilePath)

	// Two failures accumulated before the third attempt won.
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, "first", result.Attempts[0].Strategy)
	assert.Equal(t, "second", result.Attempts[1].Strategy)

	assert.Contains(t, messages, "Trying first method...")
	assert.Contains(t, messages, "Trying third method...")
}

func TestExecuteAllStrategiesFail(t *testing.T) {
	exec := NewExecutor(nil, arbor.NewLogger(),
		failing("first"),
		failing("second"),
	)

	_, err := exec.Execute(context.Background(), models.PlatformInstagram,
		[]string{"first", "second"},
		&FetchRequest{URL: "https://instagram.com/p/x", Format: models.FormatVideo},
		Callbacks{},
	)
	require.Error(t, err)

	var exhausted *models.StrategyExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Attempts, 2)
	assert.Contains(t, exhausted.Error(), "second broke")
	assert.NotContains(t, exhausted.Error(), "first broke")
}

func TestExecuteUnregisteredStrategyCounts(t *testing.T) {
	exec := NewExecutor(nil, arbor.NewLogger(), failing("known"))

	_, err := exec.Execute(context.Background(), models.PlatformYouTube,
		[]string{"phantom", "known"},
		&FetchRequest{URL: "https://youtu.be/x", Format: models.FormatVideo},
		Callbacks{},
	)
	require.Error(t, err)

	var exhausted *models.StrategyExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 2)
	assert.Equal(t, "strategy not registered", exhausted.Attempts[0].Error)
}

func TestExecuteCancelledContext(t *testing.T) {
	exec := NewExecutor(nil, arbor.NewLogger(), failing("first"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Execute(ctx, models.PlatformYouTube,
		[]string{"first"},
		&FetchRequest{URL: "https://youtu.be/x", Format: models.FormatVideo},
		Callbacks{},
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	var exhausted *models.StrategyExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestFinalizeConvertsAudioRequest(t *testing.T) {
	dir := t.TempDir()
	videoPath := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("video"), 0o644))

	transcoder := &stubTranscoder{
		available: true,
		extract: func(ctx context.Context, inputPath, outputPath string, progress func(float64)) error {
			progress(0.5)
			return os.WriteFile(outputPath, []byte("audio"), 0o644)
		},
	}
	exec := NewExecutor(transcoder, arbor.NewLogger(), succeeding("only", videoPath))

	var fractions []float64
	result, err := exec.Execute(context.Background(), models.PlatformYouTube,
		[]string{"only"},
		&FetchRequest{URL: "https://youtu.be/x", Format: models.FormatAudio},
		Callbacks{OnConvert: func(f float64) { fractions = append(fractions, f) }},
	)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "clip.mp3"), result.FilePath)
	assert.Equal(t, models.FormatAudio, result.Format)
	assert.Nil(t, result.Degraded)
	assert.NotEmpty(t, fractions)

	// Original video is cleaned up after a successful conversion.
	_, statErr := os.Stat(videoPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFinalizeDegradesWhenTranscoderFails(t *testing.T) {
	dir := t.TempDir()
	videoPath := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("video"), 0o644))

	transcoder := &stubTranscoder{
		available: true,
		extract: func(ctx context.Context, inputPath, outputPath string, progress func(float64)) error {
			return fmt.Errorf("codec exploded")
		},
	}
	exec := NewExecutor(transcoder, arbor.NewLogger(), succeeding("only", videoPath))

	result, err := exec.Execute(context.Background(), models.PlatformYouTube,
		[]string{"only"},
		&FetchRequest{URL: "https://youtu.be/x", Format: models.FormatAudio},
		Callbacks{},
	)

	// Degraded conversion is not a job failure.
	require.NoError(t, err)
	assert.Equal(t, videoPath, result.FilePath)
	assert.Equal(t, models.FormatVideo, result.Format)
	require.NotNil(t, result.Degraded)
	assert.Contains(t, result.Degraded.Error(), "codec exploded")

	_, statErr := os.Stat(videoPath)
	assert.NoError(t, statErr)
}

func TestFinalizeDegradesWhenTranscoderUnavailable(t *testing.T) {
	dir := t.TempDir()
	videoPath := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(videoPath, []byte("video"), 0o644))

	transcoder := &stubTranscoder{available: false}
	exec := NewExecutor(transcoder, arbor.NewLogger(), succeeding("only", videoPath))

	result, err := exec.Execute(context.Background(), models.PlatformYouTube,
		[]string{"only"},
		&FetchRequest{URL: "https://youtu.be/x", Format: models.FormatAudio},
		Callbacks{},
	)

	require.NoError(t, err)
	require.NotNil(t, result.Degraded)
	assert.Equal(t, models.FormatVideo, result.Format)
}

func TestFinalizeLeavesVideoRequestsAlone(t *testing.T) {
	exec := NewExecutor(&stubTranscoder{available: true, extract: func(ctx context.Context, in, out string, p func(float64)) error {
		t.Fatal("transcoder must not run for video requests")
		return nil
	}}, arbor.NewLogger(), succeeding("only", "/tmp/clip.mp4"))

	result, err := exec.Execute(context.Background(), models.PlatformYouTube,
		[]string{"only"},
		&FetchRequest{URL: "https://youtu.be/x", Format: models.FormatVideo},
		Callbacks{},
	)

	require.NoError(t, err)
	assert.Equal(t, models.FormatVideo, result.Format)
}
