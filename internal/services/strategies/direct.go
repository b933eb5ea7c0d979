package strategies

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/httpclient"
	"github.com/ternarybob/capto/internal/models"
	"github.com/ternarybob/capto/internal/services/platforms"
)

// Open Graph selectors in preference order. Secure URLs first since
// plain og:video occasionally points at an embed page instead of a file.
var ogVideoSelectors = []string{
	`meta[property="og:video:secure_url"]`,
	`meta[property="og:video:url"]`,
	`meta[property="og:video"]`,
}

// DirectStrategy is the last-resort scrape: pull the page HTML and
// stream whatever video the Open Graph tags advertise.
type DirectStrategy struct {
	client *http.Client
	logger arbor.ILogger
}

// NewDirectStrategy creates the page-scrape strategy
func NewDirectStrategy(client *http.Client, logger arbor.ILogger) *DirectStrategy {
	return &DirectStrategy{
		client: client,
		logger: logger,
	}
}

// Name implements Strategy
func (s *DirectStrategy) Name() string {
	return platforms.StrategyDirect
}

// Fetch implements Strategy
func (s *DirectStrategy) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	videoURL, title, err := s.scrapeVideoURL(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	if title == "" {
		title = fmt.Sprintf("video_%s", time.Now().Format("20060102_150405"))
	}
	filename := common.SanitizeFilename(title + ".mp4")
	destPath := filepath.Join(req.JobDir, filename)

	if err := streamToFile(ctx, s.client, videoURL, httpclient.DesktopUserAgent, destPath, req.OnProgress); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("source", req.URL).
		Str("file", destPath).
		Msg("Direct page scrape download finished")

	return &FetchResult{
		FilePath: destPath,
		Title:    title,
		Format:   models.FormatVideo,
	}, nil
}

// scrapeVideoURL fetches the page and reads the Open Graph video target
func (s *DirectStrategy) scrapeVideoURL(ctx context.Context, pageURL string) (string, string, error) {
	pageReq, err := httpclient.NewPageRequest(pageURL, httpclient.DesktopUserAgent)
	if err != nil {
		return "", "", fmt.Errorf("building page request: %w", err)
	}
	pageReq = pageReq.WithContext(ctx)

	resp, err := s.client.Do(pageReq)
	if err != nil {
		return "", "", fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("page fetch failed with status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("parsing page HTML: %w", err)
	}

	videoURL := extractOgVideo(doc)
	if videoURL == "" {
		return "", "", fmt.Errorf("page exposes no og:video metadata")
	}

	title := ""
	if content, exists := doc.Find(`meta[property="og:title"]`).Attr("content"); exists {
		title = strings.TrimSpace(content)
	}

	return videoURL, title, nil
}

func extractOgVideo(doc *goquery.Document) string {
	for _, selector := range ogVideoSelectors {
		if content, exists := doc.Find(selector).Attr("content"); exists {
			if trimmed := strings.TrimSpace(content); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
