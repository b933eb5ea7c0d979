package interfaces

import (
	"context"

	"github.com/ternarybob/capto/internal/models"
)

// JobService owns job identity and the background download lifecycle
type JobService interface {
	// FetchInfo resolves the platform and extracts metadata synchronously
	FetchInfo(ctx context.Context, req *models.VideoInfoRequest) (*models.MediaInfo, error)

	// StartDownload accepts a request, creates the tracked record, and
	// launches the background unit; returns immediately
	StartDownload(ctx context.Context, req *models.DownloadRequest) (*models.DownloadAccepted, error)

	// Progress returns the current record snapshot, lazily downgrading a
	// terminal record to expired when its directory has disappeared
	Progress(jobID string) (models.DownloadJob, error)

	// DeleteFiles removes the job directory and its record
	DeleteFiles(jobID string) error

	// List returns snapshots of all tracked jobs
	List() []models.DownloadJob

	// ActiveCount returns the number of running jobs
	ActiveCount() int

	// Shutdown cancels running jobs and waits for them within ctx's deadline
	Shutdown(ctx context.Context) error
}
