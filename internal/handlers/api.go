package handlers

import (
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
	"github.com/ternarybob/capto/internal/services/platforms"
)

// APIHandler serves the operational endpoints: health, version, logs
type APIHandler struct {
	config     *common.Config
	jobs       interfaces.JobService
	fetcher    interfaces.MediaFetcher
	transcoder interfaces.Transcoder
	logger     arbor.ILogger
}

func NewAPIHandler(config *common.Config, jobs interfaces.JobService, fetcher interfaces.MediaFetcher, transcoder interfaces.Transcoder) *APIHandler {
	return &APIHandler{
		config:     config,
		jobs:       jobs,
		fetcher:    fetcher,
		transcoder: transcoder,
		logger:     common.GetLogger(),
	}
}

// VersionHandler returns version information and service capabilities
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
		"platforms":  platforms.Supported(),
	})
}

// HealthHandler reports service health including directory and external
// tool availability. The transcoder being missing only degrades audio
// conversion, so it does not flip the overall status.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	outputOK := dirExists(h.config.Storage.OutputDir)
	scratchOK := dirExists(h.config.Storage.ScratchDir)
	fetcherOK := h.fetcher != nil && h.fetcher.Available()
	transcoderOK := h.transcoder != nil && h.transcoder.Available()

	status := "healthy"
	if !outputOK || !scratchOK || !fetcherOK {
		status = "degraded"
	}

	WriteJSON(w, http.StatusOK, models.HealthStatus{
		Status:              status,
		Version:             common.GetVersion(),
		OutputDirExists:     outputOK,
		ScratchDirExists:    scratchOK,
		FetcherAvailable:    fetcherOK,
		TranscoderAvailable: transcoderOK,
		ActiveJobs:          h.jobs.ActiveCount(),
		TrackedJobs:         len(h.jobs.List()),
		FilesOnDisk:         countFiles(h.config.Storage.OutputDir),
	})
}

// GetRecentLogsHandler returns recent service logs from the arbor
// memory writer, oldest first.
func (h *APIHandler) GetRecentLogsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
			if limit > 500 {
				limit = 500
			}
		}
	}

	logs := []string{}
	memWriter := arbor.GetRegisteredMemoryWriter(arbor.WRITER_MEMORY)
	if memWriter != nil {
		entries, err := memWriter.GetEntriesWithLimit(limit)
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to get log entries")
			WriteError(w, http.StatusInternalServerError, "Failed to retrieve logs")
			return
		}

		// Map keys are timestamps, so sorting gives chronological order.
		keys := make([]string, 0, len(entries))
		for key := range entries {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			logs = append(logs, entries[key])
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// countFiles counts regular files under root, one level of job
// directories deep is all that ever exists but the walk keeps it exact.
func countFiles(root string) int {
	count := 0
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			count++
		}
		return nil
	})
	return count
}
