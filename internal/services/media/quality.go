package media

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/capto/internal/models"
)

// ParseQualityHeight extracts the numeric height from a quality hint
// such as "720p" or "480". Returns false for "best", empty, or anything
// non-numeric.
func ParseQualityHeight(quality string) (int, bool) {
	trimmed := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(quality)), "p")
	if trimmed == "" || trimmed == "best" {
		return 0, false
	}
	height, err := strconv.Atoi(trimmed)
	if err != nil || height <= 0 {
		return 0, false
	}
	return height, true
}

// FormatSelector builds the yt-dlp format expression for a request.
// Audio requests always take the best audio stream; video requests cap
// the height when the quality hint is numeric.
func FormatSelector(format, quality string) string {
	if format == models.FormatAudio {
		return "bestaudio/best"
	}
	if height, ok := ParseQualityHeight(quality); ok {
		return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best", height)
	}
	return "bestvideo+bestaudio/best"
}

// ClosestHeight picks from offered heights the largest one at or below
// the requested height. When nothing qualifies it falls back to the best
// available, and when the request carries no numeric hint it returns the
// best outright.
func ClosestHeight(offered []int, quality string) (int, bool) {
	if len(offered) == 0 {
		return 0, false
	}

	best := 0
	for _, h := range offered {
		if h > best {
			best = h
		}
	}

	requested, ok := ParseQualityHeight(quality)
	if !ok {
		return best, true
	}

	selected := 0
	for _, h := range offered {
		if h <= requested && h > selected {
			selected = h
		}
	}
	if selected == 0 {
		return best, true
	}
	return selected, true
}
