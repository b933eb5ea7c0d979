package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
	"github.com/ternarybob/capto/internal/services/media"
	"github.com/ternarybob/capto/internal/services/platforms"
	"github.com/ternarybob/capto/internal/services/strategies"
)

// Manager owns job identity and the background download lifecycle.
// Each accepted request runs as one detached unit of work whose cancel
// function stays registered until the unit finishes.
type Manager struct {
	config    *common.Config
	tracker   interfaces.StatusTracker
	executor  *strategies.Executor
	fetcher   interfaces.MediaFetcher
	playlists interfaces.PlaylistInspector
	logger    arbor.ILogger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewManager creates the job orchestration service
func NewManager(config *common.Config, tracker interfaces.StatusTracker, executor *strategies.Executor, fetcher interfaces.MediaFetcher, playlists interfaces.PlaylistInspector, logger arbor.ILogger) *Manager {
	return &Manager{
		config:    config,
		tracker:   tracker,
		executor:  executor,
		fetcher:   fetcher,
		playlists: playlists,
		logger:    logger,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// FetchInfo resolves the platform and extracts metadata synchronously.
// YouTube URLs carrying a playlist parameter are inspected as playlists
// instead of being probed as a single video.
func (m *Manager) FetchInfo(ctx context.Context, req *models.VideoInfoRequest) (*models.MediaInfo, error) {
	platform, err := platforms.Resolve(req.URL)
	if err != nil {
		return nil, err
	}

	if platform == models.PlatformYouTube && media.HasPlaylistParam(req.URL) {
		playlist, inspectErr := m.playlists.Inspect(ctx, req.URL)
		if inspectErr == nil {
			title := fmt.Sprintf("Playlist %s", playlist.ID)
			if len(playlist.Items) > 0 {
				title = playlist.Items[0].Title + " - Playlist"
			}
			return &models.MediaInfo{
				Title:    title,
				Formats:  []models.FormatOption{},
				Platform: platform,
				Playlist: playlist,
			}, nil
		}
		m.logger.Warn().
			Err(inspectErr).
			Str("url", req.URL).
			Msg("Playlist inspection failed, falling back to single video info")
	}

	info, err := m.fetcher.FetchInfo(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	info.Platform = platform
	return info, nil
}

// StartDownload accepts a request and launches the background unit.
// The accepting call never waits on the download itself.
func (m *Manager) StartDownload(ctx context.Context, req *models.DownloadRequest) (*models.DownloadAccepted, error) {
	req.ApplyDefaults()

	platform, err := platforms.Resolve(req.URL)
	if err != nil {
		return nil, err
	}

	jobID := common.NewJobID()
	m.tracker.Create(jobID, req.URL, platform, req.Format, req.Quality)

	runCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancels[jobID] = cancel
	m.mu.Unlock()

	url, format, quality := req.URL, req.Format, req.Quality
	common.SafeGoWithContext(runCtx, m.logger, "downloadJob-"+jobID, func() {
		defer m.deregister(jobID)
		m.run(runCtx, jobID, url, platform, format, quality)
	})

	m.logger.Info().
		Str("job_id", jobID).
		Str("platform", string(platform)).
		Str("url", url).
		Msg("Download job accepted")

	return &models.DownloadAccepted{
		Message:          "Download started",
		JobID:            jobID,
		StatusURL:        "/api/progress/" + jobID,
		EstimatedSeconds: models.EstimateSeconds(platform),
		Platform:         platform,
	}, nil
}

// run drives one job through the phase sequence. It is the only writer
// of the job's record while it executes.
func (m *Manager) run(ctx context.Context, jobID, url string, platform models.Platform, format, quality string) {
	logger := m.logger.WithCorrelationId(jobID)
	jobDir := m.jobDir(jobID)

	m.advance(jobID, models.PhaseInitializing, 5, fmt.Sprintf("Starting %s download...", platform))

	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		m.fail(jobID, fmt.Sprintf("Could not create job directory: %v", err))
		return
	}

	m.advance(jobID, models.PhaseFetchingInfo, 10, "Fetching video information...")

	req := &strategies.FetchRequest{
		URL:     url,
		JobDir:  jobDir,
		Format:  format,
		Quality: quality,
		OnProgress: func(done, total int64) {
			m.transferProgress(jobID, done, total)
		},
	}
	cb := strategies.Callbacks{
		OnMessage: func(message string) {
			m.message(jobID, message)
		},
		OnFetched: func() {
			m.advance(jobID, models.PhaseFinalizing, 80, "Processing downloaded file...")
		},
		OnConvert: func(fraction float64) {
			m.convertProgress(jobID, fraction)
		},
	}

	result, err := m.executor.Execute(ctx, platform, platforms.Chain(platform), req, cb)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info().Msg("Download job cancelled")
			m.fail(jobID, "Download cancelled")
			return
		}
		m.fail(jobID, err.Error())
		return
	}

	filename := filepath.Base(result.FilePath)
	message := ""
	if result.Degraded != nil {
		message = "Download completed. " + result.Degraded.Error()
	}

	if err := m.tracker.Complete(jobID, m.publicURL(jobID, filename), filename, message); err != nil {
		logger.Warn().Err(err).Msg("Failed to record job completion")
		return
	}

	logger.Info().
		Str("filename", filename).
		Int("failed_attempts", len(result.Attempts)).
		Msg("Download job finished")
}

// Progress returns the record snapshot, lazily flipping a terminal
// record to expired when its directory has been cleaned away.
func (m *Manager) Progress(jobID string) (models.DownloadJob, error) {
	job, err := m.tracker.Get(jobID)
	if err != nil {
		return models.DownloadJob{}, err
	}

	if (job.Phase == models.PhaseCompleted || job.Phase == models.PhaseFailed) && job.DownloadURL != "" {
		if _, statErr := os.Stat(m.jobDir(jobID)); os.IsNotExist(statErr) {
			if expireErr := m.tracker.Expire(jobID, "File has expired and been deleted"); expireErr == nil {
				return m.tracker.Get(jobID)
			}
		}
	}

	return job, nil
}

// DeleteFiles removes the job directory and the record. An active job
// is cancelled first so it stops writing into the removed directory.
func (m *Manager) DeleteFiles(jobID string) error {
	m.mu.Lock()
	if cancel, ok := m.cancels[jobID]; ok {
		cancel()
	}
	m.mu.Unlock()

	jobDir := m.jobDir(jobID)
	_, statErr := os.Stat(jobDir)
	dirExists := statErr == nil

	if dirExists {
		if err := os.RemoveAll(jobDir); err != nil {
			return fmt.Errorf("removing job directory: %w", err)
		}
	}

	recordErr := m.tracker.Delete(jobID)
	if !dirExists && recordErr != nil {
		return &models.NotFoundError{Resource: "job", ID: jobID}
	}

	m.logger.Info().
		Str("job_id", jobID).
		Bool("had_files", dirExists).
		Msg("Job files deleted")
	return nil
}

// List returns snapshots of all tracked jobs, newest first
func (m *Manager) List() []models.DownloadJob {
	return m.tracker.Snapshot()
}

// ActiveCount returns the number of jobs in a non-terminal phase
func (m *Manager) ActiveCount() int {
	return m.tracker.ActiveCount()
}

// Shutdown cancels every running job and waits for the units to drain
// or the context deadline to lapse.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	count := len(m.cancels)
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()

	if count == 0 {
		return nil
	}

	m.logger.Info().Int("count", count).Msg("Cancelling running download jobs")

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if remaining := m.runningUnits(); remaining > 0 {
				m.logger.Warn().
					Int("count", remaining).
					Msg("Some jobs did not cancel within timeout")
			}
			return ctx.Err()
		case <-ticker.C:
			if m.runningUnits() == 0 {
				m.logger.Info().Msg("All running jobs cancelled successfully")
				return nil
			}
		}
	}
}

func (m *Manager) jobDir(jobID string) string {
	return filepath.Join(m.config.Storage.OutputDir, jobID)
}

func (m *Manager) publicURL(jobID, filename string) string {
	base := strings.TrimSuffix(m.config.Downloads.PublicBasePath, "/")
	return fmt.Sprintf("%s/%s/%s", base, jobID, filename)
}

func (m *Manager) runningUnits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cancels)
}

func (m *Manager) deregister(jobID string) {
	m.mu.Lock()
	delete(m.cancels, jobID)
	m.mu.Unlock()
}

// advance moves the record to a new phase and milestone progress
func (m *Manager) advance(jobID string, phase models.JobPhase, progress int, message string) {
	err := m.tracker.Update(jobID, func(j *models.DownloadJob) {
		j.Phase = phase
		j.Progress = progress
		j.Message = message
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("Progress update failed")
	}
}

// message updates only the record's message text
func (m *Manager) message(jobID, message string) {
	_ = m.tracker.Update(jobID, func(j *models.DownloadJob) {
		j.Message = message
	})
}

func (m *Manager) fail(jobID, message string) {
	if err := m.tracker.Fail(jobID, message); err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to record job failure")
	}
}

// transferProgress maps byte progress into the 20..80 band
func (m *Manager) transferProgress(jobID string, done, total int64) {
	if total <= 0 {
		return
	}
	fraction := float64(done) / float64(total)
	progress := 20 + int(fraction*60)
	if progress > 80 {
		progress = 80
	}
	_ = m.tracker.Update(jobID, func(j *models.DownloadJob) {
		j.Phase = models.PhaseDownloading
		j.Progress = progress
		j.Message = "Downloading video..."
	})
}

// convertProgress maps transcode progress into the 80..99 band; the
// final step to 100 happens only through Complete.
func (m *Manager) convertProgress(jobID string, fraction float64) {
	progress := 80 + int(fraction*19)
	if progress > 99 {
		progress = 99
	}
	_ = m.tracker.Update(jobID, func(j *models.DownloadJob) {
		j.Phase = models.PhaseConverting
		j.Progress = progress
		j.Message = "Converting to MP3..."
	})
}
