package strategies

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/httpclient"
	"github.com/ternarybob/capto/internal/models"
	"github.com/ternarybob/capto/internal/services/media"
	"github.com/ternarybob/capto/internal/services/platforms"
	"golang.org/x/time/rate"
)

const igMediaEndpoint = "https://www.instagram.com/p/%s/?__a=1&__d=dis"

var shortcodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`instagram\.com/p/([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`instagram\.com/reel/([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`instagram\.com/tv/([A-Za-z0-9_-]+)`),
}

// ExtractShortcode pulls the media shortcode out of post, reel and tv URLs
func ExtractShortcode(url string) string {
	for _, pattern := range shortcodePatterns {
		if m := pattern.FindStringSubmatch(url); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

type igVideoVersion struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// igMediaDocument covers both response shapes the media endpoint serves
type igMediaDocument struct {
	Items []struct {
		MediaType     int              `json:"media_type"`
		VideoVersions []igVideoVersion `json:"video_versions"`
		User          struct {
			Username string `json:"username"`
		} `json:"user"`
	} `json:"items"`
	Graphql struct {
		ShortcodeMedia struct {
			IsVideo  bool   `json:"is_video"`
			VideoURL string `json:"video_url"`
			Owner    struct {
				Username string `json:"username"`
			} `json:"owner"`
		} `json:"shortcode_media"`
	} `json:"graphql"`
}

// InstagramStrategy fetches through Instagram's public media endpoint.
// Requests are paced with a rate limiter so bursts of jobs do not trip
// the platform's throttling.
type InstagramStrategy struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewInstagramStrategy creates the API-backed Instagram strategy
func NewInstagramStrategy(client *http.Client, logger arbor.ILogger) *InstagramStrategy {
	return &InstagramStrategy{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		logger:  logger,
	}
}

// Name implements Strategy
func (s *InstagramStrategy) Name() string {
	return platforms.StrategyInstagramAPI
}

// Fetch implements Strategy
func (s *InstagramStrategy) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	shortcode := ExtractShortcode(req.URL)
	if shortcode == "" {
		return nil, fmt.Errorf("could not extract Instagram shortcode from %s", req.URL)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	videoURL, username, err := s.resolveVideoURL(ctx, shortcode, req.Quality)
	if err != nil {
		return nil, err
	}

	filename := common.SanitizeFilename(fmt.Sprintf("%s_instagram_%s.mp4", username, time.Now().Format("20060102_150405")))
	destPath := filepath.Join(req.JobDir, filename)

	if err := streamToFile(ctx, s.client, videoURL, httpclient.MobileUserAgent, destPath, req.OnProgress); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("shortcode", shortcode).
		Str("file", destPath).
		Msg("Instagram media endpoint download finished")

	return &FetchResult{
		FilePath: destPath,
		Title:    fmt.Sprintf("%s instagram %s", username, shortcode),
		Format:   models.FormatVideo,
	}, nil
}

// resolveVideoURL queries the media endpoint and picks the variant
// closest to the requested quality.
func (s *InstagramStrategy) resolveVideoURL(ctx context.Context, shortcode, quality string) (string, string, error) {
	pageReq, err := httpclient.NewPageRequest(fmt.Sprintf(igMediaEndpoint, shortcode), httpclient.MobileUserAgent)
	if err != nil {
		return "", "", fmt.Errorf("building media endpoint request: %w", err)
	}
	pageReq = pageReq.WithContext(ctx)
	pageReq.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(pageReq)
	if err != nil {
		return "", "", fmt.Errorf("querying Instagram media endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("Instagram media endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", "", fmt.Errorf("reading media endpoint response: %w", err)
	}

	return pickVideoVariant(body, quality)
}

// pickVideoVariant parses the endpoint document and selects a video URL.
// Quality selection follows the closest at-or-below rule over the
// variant heights on offer.
func pickVideoVariant(body []byte, quality string) (string, string, error) {
	var doc igMediaDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", "", fmt.Errorf("parsing media endpoint response: %w", err)
	}

	if len(doc.Items) > 0 {
		item := doc.Items[0]
		if item.MediaType != 2 {
			return "", "", fmt.Errorf("not a video post")
		}
		if len(item.VideoVersions) == 0 {
			return "", "", fmt.Errorf("no video versions found")
		}

		username := item.User.Username
		if username == "" {
			username = "instagram"
		}

		heights := make([]int, 0, len(item.VideoVersions))
		for _, v := range item.VideoVersions {
			heights = append(heights, v.Height)
		}
		if target, ok := media.ClosestHeight(heights, quality); ok {
			for _, v := range item.VideoVersions {
				if v.Height == target && v.URL != "" {
					return v.URL, username, nil
				}
			}
		}
		return item.VideoVersions[0].URL, username, nil
	}

	sm := doc.Graphql.ShortcodeMedia
	if sm.VideoURL != "" {
		if !sm.IsVideo {
			return "", "", fmt.Errorf("not a video post")
		}
		username := sm.Owner.Username
		if username == "" {
			username = "instagram"
		}
		return sm.VideoURL, username, nil
	}

	return "", "", fmt.Errorf("media endpoint response contained no video")
}
