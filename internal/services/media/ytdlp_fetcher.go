package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
)

const progressInterval = 500 * time.Millisecond

// YtdlpFetcher drives the yt-dlp binary through go-ytdlp. It is the
// primary acquisition path for every supported platform.
type YtdlpFetcher struct {
	binaryPath string
	logger     arbor.ILogger
}

// NewYtdlpFetcher creates a fetcher using the configured binary path
func NewYtdlpFetcher(binaryPath string, logger arbor.ILogger) *YtdlpFetcher {
	return &YtdlpFetcher{
		binaryPath: binaryPath,
		logger:     logger,
	}
}

// EnsureYtdlp downloads yt-dlp when it is not already present. Failure
// is not fatal: a binary on PATH still works.
func EnsureYtdlp(ctx context.Context, logger arbor.ILogger) {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		logger.Warn().
			Err(err).
			Msg("yt-dlp self-install failed, relying on system binary")
	}
}

// infoProbe maps the subset of yt-dlp's JSON dump the API surfaces
type infoProbe struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
	Uploader  string  `json:"uploader"`
	Formats   []struct {
		FormatID   string  `json:"format_id"`
		Ext        string  `json:"ext"`
		Height     float64 `json:"height"`
		FormatNote string  `json:"format_note"`
		Filesize   int64   `json:"filesize"`
		Vcodec     string  `json:"vcodec"`
		Acodec     string  `json:"acodec"`
	} `json:"formats"`
}

// FetchInfo extracts metadata without downloading
func (f *YtdlpFetcher) FetchInfo(ctx context.Context, url string) (*models.MediaInfo, error) {
	cmd := ytdlp.New().
		NoPlaylist().
		DumpJSON()

	result, err := cmd.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp metadata fetch failed: %w", err)
	}

	var probe infoProbe
	if err := json.Unmarshal([]byte(result.Stdout), &probe); err != nil {
		return nil, fmt.Errorf("parsing yt-dlp metadata: %w", err)
	}

	info := &models.MediaInfo{
		Title:     probe.Title,
		Duration:  int(probe.Duration),
		Thumbnail: probe.Thumbnail,
		Author:    probe.Uploader,
		Formats:   make([]models.FormatOption, 0, len(probe.Formats)),
	}
	if info.Title == "" {
		info.Title = "Unknown Title"
	}
	if info.Author == "" {
		info.Author = "Unknown Author"
	}

	for _, fmtEntry := range probe.Formats {
		hasVideo := fmtEntry.Vcodec != "" && fmtEntry.Vcodec != "none"
		hasAudio := fmtEntry.Acodec != "" && fmtEntry.Acodec != "none"
		if !hasVideo && !hasAudio {
			continue
		}

		height := int(fmtEntry.Height)
		quality := fmtEntry.FormatNote
		if quality == "" && height > 0 {
			quality = strconv.Itoa(height) + "p"
		}
		if quality == "" {
			quality = "unknown"
		}

		info.Formats = append(info.Formats, models.FormatOption{
			ID:         fmtEntry.FormatID,
			Quality:    quality,
			Ext:        fmtEntry.Ext,
			Height:     height,
			Filesize:   fmtEntry.Filesize,
			VideoCodec: fmtEntry.Vcodec,
			AudioCodec: fmtEntry.Acodec,
			HasVideo:   hasVideo,
			HasAudio:   hasAudio,
		})
	}

	sort.SliceStable(info.Formats, func(i, j int) bool {
		return info.Formats[i].Height > info.Formats[j].Height
	})

	return info, nil
}

// Download fetches the asset into opts.Dir, reporting transfer progress.
// Audio requests extract mp3 in-process; a leftover non-mp3 file is the
// caller's cue to run the transcoder.
func (f *YtdlpFetcher) Download(ctx context.Context, opts interfaces.DownloadOptions) (*interfaces.DownloadResult, error) {
	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		NoPlaylist().
		Output(filepath.Join(opts.Dir, "%(title)s.%(ext)s"))

	if opts.Format == models.FormatAudio {
		dl = dl.Format(FormatSelector(opts.Format, opts.Quality)).
			ExtractAudio().
			AudioFormat("mp3").
			AudioQuality("192K")
	} else {
		dl = dl.Format(FormatSelector(opts.Format, opts.Quality)).
			MergeOutputFormat("mp4")
	}

	if opts.OnProgress != nil {
		dl.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
			if update.TotalBytes > 0 {
				opts.OnProgress(int64(update.DownloadedBytes), int64(update.TotalBytes))
			}
		})
	}

	result, err := dl.Run(ctx, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp download failed: %w", err)
	}

	res := &interfaces.DownloadResult{}
	if infos, infoErr := result.GetExtractedInfo(); infoErr == nil && len(infos) > 0 {
		first := infos[0]
		if first.Title != nil {
			res.Title = *first.Title
		}
		if first.Filename != nil && fileExists(*first.Filename) {
			res.FilePath = *first.Filename
		}
	}

	// Post-processing can rename the output, so fall back to the newest
	// file in the job directory when the reported path is stale.
	if res.FilePath == "" {
		newest, scanErr := newestFile(opts.Dir)
		if scanErr != nil {
			return nil, fmt.Errorf("no file was downloaded: %w", scanErr)
		}
		res.FilePath = newest
	}

	res.Ext = strings.TrimPrefix(filepath.Ext(res.FilePath), ".")
	if res.Title == "" {
		base := filepath.Base(res.FilePath)
		res.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	f.logger.Debug().
		Str("file", res.FilePath).
		Str("ext", res.Ext).
		Msg("yt-dlp download finished")

	return res, nil
}

// Available reports whether the yt-dlp binary responds
func (f *YtdlpFetcher) Available() bool {
	path := f.binaryPath
	if path == "" {
		path = "yt-dlp"
	}
	if err := exec.Command(path, "--version").Run(); err != nil {
		return false
	}
	return true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// newestFile returns the most recently modified regular file in dir,
// ignoring partial download artifacts.
func newestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var newest string
	var newestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = name
			newestTime = info.ModTime()
		}
	}

	if newest == "" {
		return "", fmt.Errorf("directory %s contains no downloaded files", dir)
	}
	return filepath.Join(dir, newest), nil
}
