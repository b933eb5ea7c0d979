package platforms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/capto/internal/models"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected models.Platform
	}{
		{"youtube watch URL", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", models.PlatformYouTube},
		{"youtube short link", "https://youtu.be/dQw4w9WgXcQ", models.PlatformYouTube},
		{"youtube uppercase host", "https://WWW.YOUTUBE.COM/watch?v=abc", models.PlatformYouTube},
		{"instagram reel", "https://www.instagram.com/reel/Cxyz123/", models.PlatformInstagram},
		{"tiktok video", "https://www.tiktok.com/@user/video/724", models.PlatformTikTok},
		{"twitter status", "https://twitter.com/user/status/1234", models.PlatformTwitter},
		{"x.com status", "https://x.com/user/status/1234", models.PlatformTwitter},
		{"facebook watch", "https://www.facebook.com/watch/?v=5678", models.PlatformFacebook},
		{"fb short link", "https://fb.watch/abcDEF/", models.PlatformFacebook},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform, err := Resolve(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, platform)
		})
	}
}

func TestResolveUnsupported(t *testing.T) {
	_, err := Resolve("https://vimeo.com/12345")
	require.Error(t, err)

	var unsupported *models.UnsupportedPlatformError
	require.ErrorAs(t, err, &unsupported)
	assert.Contains(t, unsupported.Error(), "vimeo.com")
}

func TestResolveDeterministic(t *testing.T) {
	// Same input always yields the same platform regardless of call order.
	for i := 0; i < 10; i++ {
		platform, err := Resolve("https://youtu.be/abc")
		require.NoError(t, err)
		assert.Equal(t, models.PlatformYouTube, platform)
	}
}

func TestChainInstagram(t *testing.T) {
	chain := Chain(models.PlatformInstagram)
	assert.Equal(t, []string{StrategyInstagramAPI, StrategyYtdlp, StrategyDirect}, chain)
}

func TestChainDefault(t *testing.T) {
	for _, platform := range []models.Platform{
		models.PlatformYouTube,
		models.PlatformTikTok,
		models.PlatformTwitter,
		models.PlatformFacebook,
	} {
		chain := Chain(platform)
		assert.Equal(t, []string{StrategyYtdlp}, chain, "platform %s", platform)
	}
}

func TestSupported(t *testing.T) {
	supported := Supported()
	assert.Equal(t, []models.Platform{
		models.PlatformYouTube,
		models.PlatformInstagram,
		models.PlatformTikTok,
		models.PlatformTwitter,
		models.PlatformFacebook,
	}, supported)
}
