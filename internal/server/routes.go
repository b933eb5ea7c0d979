package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route, absent entirely when disabled in config
	if s.app.WSHandler != nil {
		mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)
	}

	// API routes - Media downloads.
	// "/api/download" submits a job; "/api/download/" with a longer path
	// serves a finished file, so the exact and prefix patterns coexist.
	mux.HandleFunc("/api/video-info", s.app.MediaHandler.VideoInfoHandler) // POST - extract metadata
	mux.HandleFunc("/api/download", s.app.MediaHandler.DownloadHandler)    // POST - start download job
	mux.HandleFunc("/api/download/", s.app.MediaHandler.FileHandler)       // GET /{jobId}/{filename}
	mux.HandleFunc("/api/progress/", s.app.MediaHandler.ProgressHandler)   // GET /{jobId}
	mux.HandleFunc("/api/files/", s.app.MediaHandler.DeleteFilesHandler)   // DELETE /{jobId}
	mux.HandleFunc("/api/jobs", s.app.MediaHandler.JobsHandler)            // GET - list tracked jobs

	// API routes - Logs
	mux.HandleFunc("/api/logs/recent", s.app.APIHandler.GetRecentLogsHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}
