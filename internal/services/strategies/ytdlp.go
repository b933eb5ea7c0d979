package strategies

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
	"github.com/ternarybob/capto/internal/services/platforms"
)

// YtdlpStrategy acquires media through the yt-dlp fetcher. It is the
// primary strategy for every platform and the middle fallback for
// Instagram.
type YtdlpStrategy struct {
	fetcher interfaces.MediaFetcher
}

// NewYtdlpStrategy creates the yt-dlp backed strategy
func NewYtdlpStrategy(fetcher interfaces.MediaFetcher) *YtdlpStrategy {
	return &YtdlpStrategy{fetcher: fetcher}
}

// Name implements Strategy
func (s *YtdlpStrategy) Name() string {
	return platforms.StrategyYtdlp
}

// Fetch implements Strategy
func (s *YtdlpStrategy) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if !s.fetcher.Available() {
		return nil, fmt.Errorf("yt-dlp is not available")
	}

	res, err := s.fetcher.Download(ctx, interfaces.DownloadOptions{
		URL:        req.URL,
		Dir:        req.JobDir,
		Format:     req.Format,
		Quality:    req.Quality,
		OnProgress: req.OnProgress,
	})
	if err != nil {
		return nil, err
	}

	format := models.FormatVideo
	if strings.EqualFold(res.Ext, "mp3") {
		format = models.FormatAudio
	}

	return &FetchResult{
		FilePath: res.FilePath,
		Title:    res.Title,
		Format:   format,
	}, nil
}
