package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
)

// Service periodically removes job directories and scratch files older
// than the retention age, and drops records whose files are gone. Job
// records are only ever removed through the tracker, never mutated here.
type Service struct {
	config  *common.Config
	tracker interfaces.StatusTracker
	logger  arbor.ILogger
	cron    *cron.Cron

	mu      sync.Mutex // sweeps never overlap
	running bool
}

// NewService creates the retention sweeper
func NewService(config *common.Config, tracker interfaces.StatusTracker, logger arbor.ILogger) *Service {
	return &Service{
		config:  config,
		tracker: tracker,
		logger:  logger,
		cron:    cron.New(),
	}
}

// Start schedules the periodic sweep and runs one immediately so stale
// directories from a previous run do not linger until the first tick.
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("retention sweeper already running")
	}

	spec := "@every " + s.config.Retention.SweepInterval().String()
	if _, err := s.cron.AddFunc(spec, s.Sweep); err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("interval", s.config.Retention.SweepInterval().String()).
		Str("max_age", s.config.Retention.MaxAge().String()).
		Msg("Retention sweeper started")

	s.Sweep()
	return nil
}

// Stop halts the periodic sweep
func (s *Service) Stop() {
	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
	s.logger.Info().Msg("Retention sweeper stopped")
}

// Sweep runs one retention pass. Exported so a pass can be forced
// without waiting for the schedule.
func (s *Service) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.config.Retention.MaxAge())

	removedDirs := s.sweepJobDirectories(cutoff)
	removedScratch := s.sweepScratchFiles(cutoff)
	evicted := s.evictOrphanedRecords(cutoff)

	if removedDirs > 0 || removedScratch > 0 || evicted > 0 {
		s.logger.Info().
			Int("directories_removed", removedDirs).
			Int("scratch_files_removed", removedScratch).
			Int("records_evicted", evicted).
			Msg("Retention sweep finished")
	}
}

// sweepJobDirectories removes expired job directories together with
// their records. The directory name is the job id.
func (s *Service) sweepJobDirectories(cutoff time.Time) int {
	entries, err := os.ReadDir(s.config.Storage.OutputDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Msg("Retention sweep could not read output directory")
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		jobID := entry.Name()
		jobDir := filepath.Join(s.config.Storage.OutputDir, jobID)
		if err := os.RemoveAll(jobDir); err != nil {
			s.logger.Warn().Err(err).Str("dir", jobDir).Msg("Failed to remove expired job directory")
			continue
		}
		removed++

		// Directories not created by a tracked job have no record.
		if err := s.tracker.Delete(jobID); err == nil {
			s.logger.Info().Str("job_id", jobID).Msg("Expired job cleaned up")
		}
	}
	return removed
}

// sweepScratchFiles removes stale plain files from the scratch root
func (s *Service) sweepScratchFiles(cutoff time.Time) int {
	entries, err := os.ReadDir(s.config.Storage.ScratchDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Msg("Retention sweep could not read scratch directory")
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.config.Storage.ScratchDir, entry.Name())); err != nil {
			continue
		}
		removed++
	}
	return removed
}

// evictOrphanedRecords drops stale terminal records whose directory
// disappeared without going through the sweep, so the in-memory map
// cannot grow without bound.
func (s *Service) evictOrphanedRecords(cutoff time.Time) int {
	evicted := 0
	for _, job := range s.tracker.Snapshot() {
		if !job.Phase.IsTerminal() {
			continue
		}
		if job.UpdatedAt.After(cutoff) {
			continue
		}
		jobDir := filepath.Join(s.config.Storage.OutputDir, job.ID)
		if _, err := os.Stat(jobDir); !os.IsNotExist(err) {
			continue
		}
		if err := s.tracker.Delete(job.ID); err == nil {
			evicted++
		}
	}
	return evicted
}
