package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobPhaseTerminal(t *testing.T) {
	terminal := []JobPhase{PhaseCompleted, PhaseFailed, PhaseExpired}
	for _, p := range terminal {
		assert.True(t, p.IsTerminal(), "phase %s should be terminal", p)
		assert.False(t, p.IsActive(), "phase %s should not be active", p)
	}

	active := []JobPhase{PhasePending, PhaseInitializing, PhaseFetchingInfo, PhaseDownloading, PhaseFinalizing, PhaseConverting}
	for _, p := range active {
		assert.False(t, p.IsTerminal(), "phase %s should not be terminal", p)
		assert.True(t, p.IsActive(), "phase %s should be active", p)
	}
}

func TestDownloadJobSerializesPhaseAsStatus(t *testing.T) {
	job := &DownloadJob{
		ID:       "capto_abc123def456",
		Platform: PlatformYouTube,
		Phase:    PhaseDownloading,
		Progress: 42,
	}

	data, err := job.ToJSON()
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(data), &raw))

	// polling clients read the phase from the "status" key
	assert.Equal(t, "downloading", raw["status"])
	assert.Equal(t, float64(42), raw["progress"])
	_, hasPhaseKey := raw["phase"]
	assert.False(t, hasPhaseKey)

	parsed, err := FromJSONDownloadJob(data)
	require.NoError(t, err)
	assert.Equal(t, PhaseDownloading, parsed.Phase)
}

func TestDownloadJobClone(t *testing.T) {
	job := &DownloadJob{ID: "capto_000000000001", Phase: PhasePending, Progress: 0}

	clone := job.Clone()
	clone.Phase = PhaseCompleted
	clone.Progress = 100

	assert.Equal(t, PhasePending, job.Phase)
	assert.Equal(t, 0, job.Progress)
}

func TestStrategyExhaustedErrorMessage(t *testing.T) {
	err := &StrategyExhaustedError{
		Platform: PlatformInstagram,
		Attempts: []StrategyAttempt{
			{Strategy: "instagram-api", Error: "login required"},
			{Strategy: "ytdlp", Error: "no video formats found"},
		},
	}

	assert.Contains(t, err.Error(), "no video formats found")
	assert.NotContains(t, err.Error(), "login required")
	assert.Equal(t, "ytdlp", err.Last().Strategy)
}

func TestDownloadRequestDefaults(t *testing.T) {
	req := &DownloadRequest{URL: "https://youtube.com/watch?v=abc"}
	req.ApplyDefaults()

	assert.Equal(t, FormatVideo, req.Format)
	assert.Equal(t, "best", req.Quality)

	// explicit values survive
	req2 := &DownloadRequest{URL: "https://youtube.com/watch?v=abc", Format: FormatAudio, Quality: "720p"}
	req2.ApplyDefaults()
	assert.Equal(t, FormatAudio, req2.Format)
	assert.Equal(t, "720p", req2.Quality)
}
