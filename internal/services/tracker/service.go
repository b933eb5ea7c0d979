package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
)

// Service keeps the in-memory job registry. Records are swapped whole
// on every mutation so polling readers never see a half-applied update.
type Service struct {
	jobs   map[string]*models.DownloadJob
	mu     sync.RWMutex
	events interfaces.EventService
	logger arbor.ILogger
}

// NewService creates a status tracker backed by an in-memory map
func NewService(events interfaces.EventService, logger arbor.ILogger) interfaces.StatusTracker {
	return &Service{
		jobs:   make(map[string]*models.DownloadJob),
		events: events,
		logger: logger,
	}
}

// Create registers a new job record in phase pending
func (s *Service) Create(jobID, url string, platform models.Platform, format, quality string) *models.DownloadJob {
	now := time.Now()
	job := &models.DownloadJob{
		ID:         jobID,
		URL:        url,
		Platform:   platform,
		Format:     format,
		Quality:    quality,
		Phase:      models.PhasePending,
		Progress:   0,
		Message:    "Preparing download...",
		ETASeconds: models.EstimateSeconds(platform),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	s.jobs[jobID] = job
	s.mu.Unlock()

	s.logger.Info().
		Str("job_id", jobID).
		Str("platform", string(platform)).
		Str("format", format).
		Msg("Job registered")

	s.publish(interfaces.EventJobCreated, *job)
	return job.Clone()
}

// Update applies a mutation to a clone of the record and swaps it in.
// Progress is clamped to [0,100] and kept monotonic; entering the failed
// phase is the one transition allowed to reset it to 0.
func (s *Service) Update(jobID string, mutate func(*models.DownloadJob)) error {
	s.mu.Lock()
	current, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return &models.NotFoundError{Resource: "job", ID: jobID}
	}

	updated := current.Clone()
	mutate(updated)
	normalizeProgress(updated, current.Progress)
	updated.UpdatedAt = time.Now()
	s.jobs[jobID] = updated
	snapshot := *updated
	s.mu.Unlock()

	s.publish(interfaces.EventJobProgress, snapshot)
	return nil
}

// Complete finalizes the record in a single swap: phase, progress 100,
// download URL, filename and message become visible together.
func (s *Service) Complete(jobID, downloadURL, filename, message string) error {
	s.mu.Lock()
	current, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return &models.NotFoundError{Resource: "job", ID: jobID}
	}

	if message == "" {
		message = "Download completed successfully!"
	}

	updated := current.Clone()
	updated.Phase = models.PhaseCompleted
	updated.Progress = 100
	updated.DownloadURL = downloadURL
	updated.Filename = filename
	updated.Message = message
	updated.ETASeconds = 0
	updated.UpdatedAt = time.Now()
	s.jobs[jobID] = updated
	snapshot := *updated
	s.mu.Unlock()

	s.logger.Info().
		Str("job_id", jobID).
		Str("filename", filename).
		Msg("Job completed")

	s.publish(interfaces.EventJobCompleted, snapshot)
	return nil
}

// Fail marks the record failed and resets progress to 0
func (s *Service) Fail(jobID, message string) error {
	s.mu.Lock()
	current, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return &models.NotFoundError{Resource: "job", ID: jobID}
	}

	updated := current.Clone()
	updated.Phase = models.PhaseFailed
	updated.Progress = 0
	updated.Message = message
	updated.ETASeconds = 0
	updated.UpdatedAt = time.Now()
	s.jobs[jobID] = updated
	snapshot := *updated
	s.mu.Unlock()

	s.logger.Warn().
		Str("job_id", jobID).
		Str("message", message).
		Msg("Job failed")

	s.publish(interfaces.EventJobFailed, snapshot)
	return nil
}

// Expire downgrades a completed or failed record whose files are gone.
// Only the poll path calls this; active phases are never expired.
func (s *Service) Expire(jobID, message string) error {
	s.mu.Lock()
	current, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return &models.NotFoundError{Resource: "job", ID: jobID}
	}

	if current.Phase != models.PhaseCompleted && current.Phase != models.PhaseFailed {
		phase := current.Phase
		s.mu.Unlock()
		return fmt.Errorf("cannot expire job %s in phase %s", jobID, phase)
	}

	updated := current.Clone()
	updated.Phase = models.PhaseExpired
	updated.Progress = 0
	updated.Message = message
	updated.UpdatedAt = time.Now()
	s.jobs[jobID] = updated
	snapshot := *updated
	s.mu.Unlock()

	s.logger.Info().
		Str("job_id", jobID).
		Msg("Job expired")

	s.publish(interfaces.EventJobProgress, snapshot)
	return nil
}

// Get returns a value copy of the record
func (s *Service) Get(jobID string) (models.DownloadJob, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()

	if !ok {
		return models.DownloadJob{}, &models.NotFoundError{Resource: "job", ID: jobID}
	}
	return *job, nil
}

// Delete removes the record from the registry
func (s *Service) Delete(jobID string) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if ok {
		delete(s.jobs, jobID)
	}
	s.mu.Unlock()

	if !ok {
		return &models.NotFoundError{Resource: "job", ID: jobID}
	}

	s.logger.Info().
		Str("job_id", jobID).
		Msg("Job record deleted")

	s.publish(interfaces.EventJobDeleted, *job)
	return nil
}

// Count returns the number of tracked records
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// ActiveCount returns the number of records in a non-terminal phase
func (s *Service) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, job := range s.jobs {
		if job.Phase.IsActive() {
			count++
		}
	}
	return count
}

// Snapshot returns value copies of all records, most recently created first
func (s *Service) Snapshot() []models.DownloadJob {
	s.mu.RLock()
	jobs := make([]models.DownloadJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// normalizeProgress clamps to [0,100] and enforces the monotonic contract
func normalizeProgress(updated *models.DownloadJob, previous int) {
	if updated.Progress < 0 {
		updated.Progress = 0
	}
	if updated.Progress > 100 {
		updated.Progress = 100
	}
	if updated.Phase == models.PhaseFailed {
		updated.Progress = 0
		return
	}
	if updated.Progress < previous {
		updated.Progress = previous
	}
}

// publish fires an event without blocking the caller. The event bus
// delivers asynchronously; failures are logged and never surface here.
func (s *Service) publish(eventType interfaces.EventType, job models.DownloadJob) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(context.Background(), interfaces.Event{
		Type:    eventType,
		Payload: job,
	}); err != nil {
		s.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Msg("Event publish failed")
	}
}
