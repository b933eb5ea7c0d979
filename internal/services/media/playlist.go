package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/models"
	"github.com/ytget/ytdlp/v2"
)

const (
	playlistURLParam   = "list="
	playlistParamSep   = "&"
	playlistInspectTTL = 60 * time.Second

	videoURLTemplate = "https://www.youtube.com/watch?v=%s"
)

// YouTubePlaylistInspector lists playlist entries without downloading.
// Only YouTube carries a list parameter the inspector understands.
type YouTubePlaylistInspector struct {
	logger arbor.ILogger
}

// NewPlaylistInspector creates a playlist inspector
func NewPlaylistInspector(logger arbor.ILogger) *YouTubePlaylistInspector {
	return &YouTubePlaylistInspector{logger: logger}
}

// HasPlaylistParam reports whether a URL references a playlist
func HasPlaylistParam(url string) bool {
	return strings.Contains(url, playlistURLParam)
}

// ExtractPlaylistID pulls the playlist ID out of watch and playlist URLs
func ExtractPlaylistID(url string) string {
	if !strings.Contains(url, playlistURLParam) {
		return ""
	}
	parts := strings.Split(url, playlistURLParam)
	if len(parts) < 2 {
		return ""
	}
	id := parts[1]
	if strings.Contains(id, playlistParamSep) {
		id = strings.Split(id, playlistParamSep)[0]
	}
	return id
}

// Inspect resolves the playlist behind a URL into its entry list
func (p *YouTubePlaylistInspector) Inspect(ctx context.Context, url string) (*models.PlaylistInfo, error) {
	if !HasPlaylistParam(url) {
		return nil, fmt.Errorf("URL does not reference a playlist: %s", url)
	}

	playlistID := ExtractPlaylistID(url)
	if playlistID == "" {
		return nil, fmt.Errorf("could not extract playlist ID from URL: %s", url)
	}

	ctx, cancel := context.WithTimeout(ctx, playlistInspectTTL)
	defer cancel()

	d := ytdlp.New()
	items, err := d.GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}

	info := &models.PlaylistInfo{
		ID:    playlistID,
		Count: len(items),
		Items: make([]models.PlaylistItem, 0, len(items)),
	}
	for _, it := range items {
		info.Items = append(info.Items, models.PlaylistItem{
			VideoID: it.VideoID,
			Title:   it.Title,
			URL:     fmt.Sprintf(videoURLTemplate, it.VideoID),
		})
	}

	p.logger.Debug().
		Str("playlist_id", playlistID).
		Int("items", len(items)).
		Msg("Playlist inspected")

	return info, nil
}
