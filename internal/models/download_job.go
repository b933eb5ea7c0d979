package models

import (
	"encoding/json"
	"time"
)

// JobPhase represents the lifecycle state of a download job
type JobPhase string

const (
	PhasePending      JobPhase = "pending"
	PhaseInitializing JobPhase = "initializing"
	PhaseFetchingInfo JobPhase = "fetching_info"
	PhaseDownloading  JobPhase = "downloading"
	PhaseFinalizing   JobPhase = "finalizing"
	PhaseConverting   JobPhase = "converting"
	PhaseCompleted    JobPhase = "completed"
	PhaseFailed       JobPhase = "failed"
	PhaseExpired      JobPhase = "expired"
)

// IsTerminal returns true when no further transitions are possible
func (p JobPhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseExpired
}

// IsActive returns true while background work may still be running
func (p JobPhase) IsActive() bool {
	return !p.IsTerminal()
}

// Platform identifies the source site of a media URL
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformTwitter   Platform = "twitter"
	PlatformFacebook  Platform = "facebook"
	PlatformGeneric   Platform = "generic"
)

// Output format tags accepted on the request surface
const (
	FormatVideo = "mp4"
	FormatAudio = "mp3"
)

// DownloadJob is the tracked record for one download request.
// The phase is serialized as "status" to match the polling API surface.
//
// Write discipline: exactly one writer at a time (the orchestrator or the
// currently executing strategy); the tracker swaps whole records so polling
// readers never observe a partially updated job. Progress is monotonically
// non-decreasing with one documented exception: transitioning to failed
// resets it to 0.
type DownloadJob struct {
	ID          string    `json:"job_id"`
	URL         string    `json:"url"`
	Platform    Platform  `json:"platform"`
	Format      string    `json:"format"`
	Quality     string    `json:"quality,omitempty"`
	Phase       JobPhase  `json:"status"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message"`
	Title       string    `json:"title,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	ETASeconds  int       `json:"eta_seconds,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the job record
func (j *DownloadJob) Clone() *DownloadJob {
	clone := *j
	return &clone
}

// ToJSON serializes the job to a JSON string
func (j *DownloadJob) ToJSON() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSONDownloadJob deserializes a job from a JSON string
func FromJSONDownloadJob(data string) (*DownloadJob, error) {
	var job DownloadJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, err
	}
	return &job, nil
}
