package interfaces

import (
	"context"

	"github.com/ternarybob/capto/internal/models"
)

// ProgressFunc receives byte-level transfer progress from a fetcher.
// total is 0 when the overall size is unknown.
type ProgressFunc func(done, total int64)

// DownloadOptions describes one acquisition into a job directory
type DownloadOptions struct {
	URL        string
	Dir        string
	Format     string // models.FormatVideo or models.FormatAudio
	Quality    string // "best" or a height hint like "720p", best-effort
	OnProgress ProgressFunc
}

// DownloadResult reports where a fetched asset landed
type DownloadResult struct {
	FilePath string
	Title    string
	Ext      string
}

// MediaFetcher extracts metadata and downloads media assets.
// Implementations wrap an external extraction capability; the orchestration
// core never talks to the underlying tool directly.
type MediaFetcher interface {
	// FetchInfo extracts metadata without downloading
	FetchInfo(ctx context.Context, url string) (*models.MediaInfo, error)

	// Download fetches the asset into opts.Dir, reporting transfer progress
	Download(ctx context.Context, opts DownloadOptions) (*DownloadResult, error)

	// Available reports whether the underlying tool can run
	Available() bool
}

// Transcoder converts a local media file to an audio-only container
type Transcoder interface {
	// ExtractAudio writes an audio-only rendition of inputPath to outputPath.
	// progress receives a completion fraction in [0,1] when measurable.
	ExtractAudio(ctx context.Context, inputPath, outputPath string, progress func(fraction float64)) error

	// Available reports whether the underlying tool can run
	Available() bool
}

// PlaylistInspector lists playlist entries without downloading them
type PlaylistInspector interface {
	Inspect(ctx context.Context, url string) (*models.PlaylistInfo, error)
}
