package interfaces

import "github.com/ternarybob/capto/internal/models"

// StatusTracker is the in-memory registry of job records.
//
// The map supports concurrent polling reads alongside the single per-job
// writer; per-record writes happen through whole-record swaps so a reader
// never observes a half-applied mutation.
type StatusTracker interface {
	// Create registers a new record in phase pending with progress 0
	Create(jobID, url string, platform models.Platform, format, quality string) *models.DownloadJob

	// Update applies a mutation to a clone of the record and swaps it in.
	// Progress is clamped to [0,100] and kept monotonic; the failed phase
	// is the only transition allowed to lower it (reset to 0).
	Update(jobID string, mutate func(*models.DownloadJob)) error

	// Complete atomically finalizes the record: phase completed,
	// progress 100, download URL, filename and message set in one swap
	Complete(jobID, downloadURL, filename, message string) error

	// Fail marks the record failed and resets progress to 0
	Fail(jobID, message string) error

	// Expire downgrades a completed/failed record whose directory is gone
	Expire(jobID, message string) error

	// Get returns a copy of the record or *models.NotFoundError
	Get(jobID string) (models.DownloadJob, error)

	// Delete removes the record; returns *models.NotFoundError when absent
	Delete(jobID string) error

	// Count returns the number of tracked records
	Count() int

	// ActiveCount returns the number of records in a non-terminal phase
	ActiveCount() int

	// Snapshot returns copies of every record, most recently created first
	Snapshot() []models.DownloadJob
}
