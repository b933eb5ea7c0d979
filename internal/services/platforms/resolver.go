package platforms

import (
	"strings"

	"github.com/ternarybob/capto/internal/models"
)

// Strategy names used to assemble per-platform fallback chains.
// The executor resolves these to registered strategy implementations.
const (
	StrategyInstagramAPI = "instagram-api"
	StrategyYtdlp        = "ytdlp"
	StrategyDirect       = "direct"
)

type rule struct {
	fragment string
	platform models.Platform
}

// Resolution table. Order matters: the first matching fragment wins,
// so youtu.be short links resolve before any later rule could.
var rules = []rule{
	{"youtube.com", models.PlatformYouTube},
	{"youtu.be", models.PlatformYouTube},
	{"instagram.com", models.PlatformInstagram},
	{"tiktok.com", models.PlatformTikTok},
	{"twitter.com", models.PlatformTwitter},
	{"x.com", models.PlatformTwitter},
	{"facebook.com", models.PlatformFacebook},
	{"fb.watch", models.PlatformFacebook},
}

// Resolve maps a raw URL to a supported platform by case-insensitive
// substring matching. Unknown hosts return UnsupportedPlatformError.
func Resolve(rawURL string) (models.Platform, error) {
	lowered := strings.ToLower(rawURL)
	for _, r := range rules {
		if strings.Contains(lowered, r.fragment) {
			return r.platform, nil
		}
	}
	return "", &models.UnsupportedPlatformError{URL: rawURL}
}

// Chain returns the ordered strategy names to attempt for a platform.
// Instagram pages frequently block generic extractors, so it gets an
// API-style fetch first with yt-dlp and a direct page scrape behind it.
// Every other platform uses yt-dlp alone.
func Chain(platform models.Platform) []string {
	if platform == models.PlatformInstagram {
		return []string{StrategyInstagramAPI, StrategyYtdlp, StrategyDirect}
	}
	return []string{StrategyYtdlp}
}

// Supported lists the platforms the resolver can produce, in table order
// without duplicates. Surfaced through the version endpoint.
func Supported() []models.Platform {
	seen := make(map[models.Platform]bool)
	var out []models.Platform
	for _, r := range rules {
		if !seen[r.platform] {
			seen[r.platform] = true
			out = append(out, r.platform)
		}
	}
	return out
}
