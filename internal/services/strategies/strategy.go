package strategies

import (
	"context"

	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
)

// FetchRequest describes one acquisition attempt into a job directory
type FetchRequest struct {
	URL        string
	JobDir     string
	Format     string // models.FormatVideo or models.FormatAudio
	Quality    string // "best" or a height hint like "720p"
	OnProgress interfaces.ProgressFunc
}

// FetchResult is what a successful strategy attempt produced.
// Format reflects the file actually on disk, which the executor may
// still convert for audio requests. Degraded is set when audio was
// requested but conversion fell through and the video file was kept.
// Attempts lists the strategies that failed before this one succeeded.
type FetchResult struct {
	FilePath string
	Title    string
	Format   string
	Degraded *models.TranscodeDegradedError
	Attempts []models.StrategyAttempt
}

// Strategy is a single way of acquiring media from a URL. Strategies
// are tried in the order the platform chain dictates; any error moves
// the executor on to the next one.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}
