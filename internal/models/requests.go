package models

// VideoInfoRequest is the body of POST /api/video-info
type VideoInfoRequest struct {
	URL     string `json:"url" validate:"required,url"`
	Format  string `json:"format,omitempty" validate:"omitempty,oneof=mp4 mp3"`
	Quality string `json:"quality,omitempty" validate:"omitempty,max=16"`
}

// DownloadRequest is the body of POST /api/download
type DownloadRequest struct {
	URL     string `json:"url" validate:"required,url"`
	Format  string `json:"format,omitempty" validate:"omitempty,oneof=mp4 mp3"`
	Quality string `json:"quality,omitempty" validate:"omitempty,max=16"`
}

// ApplyDefaults fills the optional request fields with their documented defaults
func (r *DownloadRequest) ApplyDefaults() {
	if r.Format == "" {
		r.Format = FormatVideo
	}
	if r.Quality == "" {
		r.Quality = "best"
	}
}

// DownloadAccepted is the immediate response to an accepted download request
type DownloadAccepted struct {
	Message          string   `json:"message"`
	JobID            string   `json:"job_id"`
	StatusURL        string   `json:"status_url"`
	EstimatedSeconds int      `json:"estimated_time"`
	Platform         Platform `json:"platform"`
}

// FormatOption describes one downloadable format variant of an asset.
// Quality carries the human-facing label (a format note or "720p");
// Height is the numeric rung used for closest-match selection.
type FormatOption struct {
	ID         string `json:"format_id"`
	Quality    string `json:"quality"`
	Ext        string `json:"extension,omitempty"`
	Height     int    `json:"height,omitempty"`
	Filesize   int64  `json:"filesize,omitempty"`
	VideoCodec string `json:"video_codec,omitempty"`
	AudioCodec string `json:"audio_codec,omitempty"`
	HasVideo   bool   `json:"has_video"`
	HasAudio   bool   `json:"has_audio"`
}

// PlaylistItem is one entry of an inspected playlist
type PlaylistItem struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
}

// PlaylistInfo summarizes a playlist URL without downloading it
type PlaylistInfo struct {
	ID    string         `json:"id"`
	Count int            `json:"count"`
	Items []PlaylistItem `json:"items"`
}

// MediaInfo is the response of POST /api/video-info
type MediaInfo struct {
	Title     string         `json:"title"`
	Duration  int            `json:"duration"`
	Thumbnail string         `json:"thumbnail,omitempty"`
	Author    string         `json:"author,omitempty"`
	Formats   []FormatOption `json:"available_formats"`
	Platform  Platform       `json:"platform"`
	Playlist  *PlaylistInfo  `json:"playlist,omitempty"`
}

// EstimateSeconds returns the static completion estimate reported when a
// job is accepted. Instagram assets are short-form and finish faster.
func EstimateSeconds(platform Platform) int {
	if platform == PlatformInstagram {
		return 60
	}
	return 120
}

// HealthStatus is the response of GET /api/health
type HealthStatus struct {
	Status              string `json:"status"`
	Version             string `json:"version"`
	OutputDirExists     bool   `json:"output_dir_exists"`
	ScratchDirExists    bool   `json:"scratch_dir_exists"`
	FetcherAvailable    bool   `json:"fetcher_available"`
	TranscoderAvailable bool   `json:"transcoder_available"`
	ActiveJobs          int    `json:"active_jobs"`
	TrackedJobs         int    `json:"tracked_jobs"`
	FilesOnDisk         int    `json:"files_on_disk"`
}
