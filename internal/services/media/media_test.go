package media

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"watch URL with playlist", "https://www.youtube.com/watch?v=VIDEO_ID&list=PL123abc", "PL123abc"},
		{"playlist URL", "https://www.youtube.com/playlist?list=PL123abc", "PL123abc"},
		{"playlist with trailing params", "https://www.youtube.com/watch?v=VIDEO_ID&list=PL123abc&index=1", "PL123abc"},
		{"radio playlist", "https://www.youtube.com/watch?v=VIDEO_ID&list=RDabc&start_radio=1", "RDabc"},
		{"no playlist param", "https://www.youtube.com/watch?v=VIDEO_ID", ""},
		{"empty playlist id", "https://www.youtube.com/watch?v=VIDEO_ID&list=", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractPlaylistID(tt.url))
		})
	}
}

func TestHasPlaylistParam(t *testing.T) {
	assert.True(t, HasPlaylistParam("https://www.youtube.com/playlist?list=PL1"))
	assert.False(t, HasPlaylistParam("https://www.youtube.com/watch?v=abc"))
}

func TestBuildExtractAudioArgs(t *testing.T) {
	args := buildExtractAudioArgs("/tmp/in.mp4", "/tmp/out.mp3")

	assert.Equal(t, []string{
		"-i", "/tmp/in.mp4",
		"-q:a", "0",
		"-map", "a",
		"-progress", "pipe:2",
		"-nostats",
		"/tmp/out.mp3",
		"-y",
	}, args)
}

func TestMonitorProgressParsesOutTime(t *testing.T) {
	transcoder := NewFFmpegTranscoder("ffmpeg", "ffprobe", arbor.NewLogger())

	// 30s of a 60s input, then 60s of 60s.
	output := strings.Join([]string{
		"frame=100",
		"out_time_us=30000000",
		"speed=4x",
		"out_time_us=60000000",
		"progress=end",
	}, "\n")

	var fractions []float64
	transcoder.monitorProgress(io.NopCloser(strings.NewReader(output)), 60.0, func(fraction float64) {
		fractions = append(fractions, fraction)
	})

	require.Len(t, fractions, 2)
	assert.InDelta(t, 0.5, fractions[0], 0.001)
	assert.InDelta(t, 1.0, fractions[1], 0.001)
}

func TestMonitorProgressClampsOverrun(t *testing.T) {
	transcoder := NewFFmpegTranscoder("ffmpeg", "ffprobe", arbor.NewLogger())

	var fractions []float64
	transcoder.monitorProgress(io.NopCloser(strings.NewReader("out_time_us=90000000\n")), 60.0, func(fraction float64) {
		fractions = append(fractions, fraction)
	})

	require.Len(t, fractions, 1)
	assert.Equal(t, 1.0, fractions[0])
}

func TestNewestFileSkipsPartials(t *testing.T) {
	dir := t.TempDir()

	older := filepath.Join(dir, "older.mp4")
	require.NoError(t, os.WriteFile(older, []byte("a"), 0o644))
	require.NoError(t, os.Chtimes(older, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)))

	newer := filepath.Join(dir, "newer.mp4")
	require.NoError(t, os.WriteFile(newer, []byte("b"), 0o644))

	partial := filepath.Join(dir, "incoming.mp4.part")
	require.NoError(t, os.WriteFile(partial, []byte("c"), 0o644))

	found, err := newestFile(dir)
	require.NoError(t, err)
	assert.Equal(t, newer, found)
}

func TestNewestFileEmptyDir(t *testing.T) {
	_, err := newestFile(t.TempDir())
	assert.Error(t, err)
}
