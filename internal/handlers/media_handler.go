package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
)

var validate = validator.New()

// MediaHandler serves the download API: info extraction, job
// submission, progress polling, file delivery and deletion.
type MediaHandler struct {
	config *common.Config
	jobs   interfaces.JobService
	logger arbor.ILogger
}

func NewMediaHandler(config *common.Config, jobs interfaces.JobService) *MediaHandler {
	return &MediaHandler{
		config: config,
		jobs:   jobs,
		logger: common.GetLogger(),
	}
}

// VideoInfoHandler handles POST /api/video-info
func (h *MediaHandler) VideoInfoHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.VideoInfoRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	info, err := h.jobs.FetchInfo(r.Context(), &req)
	if err != nil {
		h.logger.Warn().Err(err).Str("url", req.URL).Msg("Video info extraction failed")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, info)
}

// DownloadHandler handles POST /api/download. The job is accepted and
// runs in the background; the response carries the polling URL.
func (h *MediaHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.DownloadRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	accepted, err := h.jobs.StartDownload(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, accepted)
}

// ProgressHandler handles GET /api/progress/{jobId}
func (h *MediaHandler) ProgressHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	// Extract job ID from path: /api/progress/{jobId}
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[2] == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}
	jobID := pathParts[2]

	job, err := h.jobs.Progress(jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// FileHandler handles GET /api/download/{jobId}/{filename}, streaming
// the finished file as an attachment.
func (h *MediaHandler) FileHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	// Extract segments from path: /api/download/{jobId}/{filename}
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 4 || pathParts[2] == "" || pathParts[3] == "" {
		WriteError(w, http.StatusBadRequest, "Job ID and filename are required")
		return
	}
	jobID := pathParts[2]
	filename := pathParts[3]

	// Reject traversal attempts before touching the filesystem.
	if !validPathSegment(jobID) || !validPathSegment(filename) {
		WriteError(w, http.StatusBadRequest, "Invalid file path")
		return
	}

	jobDir := filepath.Join(h.config.Storage.OutputDir, jobID)
	filePath := filepath.Join(jobDir, filename)
	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() {
		WriteError(w, http.StatusNotFound, "File not found")
		return
	}

	// Touch both file and directory so the retention sweep, which ages
	// directories, cannot reap a file that is being fetched.
	now := time.Now()
	os.Chtimes(filePath, now, now)
	os.Chtimes(jobDir, now, now)

	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectFile(filePath); err == nil {
		contentType = mtype.String()
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, filePath)
}

// DeleteFilesHandler handles DELETE /api/files/{jobId}
func (h *MediaHandler) DeleteFilesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	// Extract job ID from path: /api/files/{jobId}
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[2] == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}
	jobID := pathParts[2]

	if err := h.jobs.DeleteFiles(jobID); err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteSuccess(w, fmt.Sprintf("Files for %s deleted successfully", jobID))
}

// JobsHandler handles GET /api/jobs, listing all tracked jobs newest first
func (h *MediaHandler) JobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobs := h.jobs.List()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// validPathSegment reports whether a job ID or filename taken from the URL
// path is safe to join onto the output directory.
func validPathSegment(segment string) bool {
	if segment == "" || segment == "." || segment == ".." {
		return false
	}
	return segment == filepath.Base(segment) && !strings.ContainsAny(segment, `/\`)
}

// decodeRequest parses and validates a JSON request body
func decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
