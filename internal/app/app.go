package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/handlers"
	"github.com/ternarybob/capto/internal/httpclient"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/jobs"
	"github.com/ternarybob/capto/internal/services/events"
	"github.com/ternarybob/capto/internal/services/media"
	"github.com/ternarybob/capto/internal/services/platforms"
	"github.com/ternarybob/capto/internal/services/retention"
	"github.com/ternarybob/capto/internal/services/strategies"
	"github.com/ternarybob/capto/internal/services/tracker"
)

// shutdownGrace bounds how long Close waits for running downloads to
// notice cancellation before giving up on them.
const shutdownGrace = 10 * time.Second

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Event-driven services
	EventService interfaces.EventService
	Tracker      interfaces.StatusTracker

	// Media tooling
	Fetcher    interfaces.MediaFetcher
	Transcoder interfaces.Transcoder
	Playlists  interfaces.PlaylistInspector

	// Download orchestration
	Executor   *strategies.Executor
	JobService interfaces.JobService
	Retention  *retention.Service

	// HTTP handlers
	APIHandler   *handlers.APIHandler
	MediaHandler *handlers.MediaHandler
	WSHandler    *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to prepare storage directories: %w", err)
	}

	// Event service comes first: the tracker publishes through it and
	// the WebSocket handler subscribes to it in its constructor.
	app.EventService = events.NewService(app.Logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
		return nil, fmt.Errorf("failed to subscribe event logger: %w", err)
	}
	if cfg.WebSocket.Enabled {
		app.WSHandler = handlers.NewWebSocketHandler(app.EventService, app.Logger, &app.Config.WebSocket)
	}

	app.Tracker = tracker.NewService(app.EventService, app.Logger)
	app.Logger.Debug().Msg("Status tracker initialized")

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	// The sweeper runs one pass synchronously on start, clearing
	// anything left behind by a previous run.
	if err := app.Retention.Start(); err != nil {
		return nil, fmt.Errorf("failed to start retention sweeper: %w", err)
	}

	logger.Info().
		Str("output_dir", cfg.Storage.OutputDir).
		Bool("fetcher_available", app.Fetcher.Available()).
		Bool("transcoder_available", app.Transcoder.Available()).
		Int("platforms", len(platforms.Supported())).
		Msg("Application initialization complete")

	return app, nil
}

// initServices initializes the media tooling and download pipeline in
// dependency order: fetcher and transcoder, then strategies, then the
// job manager that drives them.
func (a *App) initServices() error {
	// Self-install yt-dlp when missing; a binary already on PATH also works.
	media.EnsureYtdlp(context.Background(), a.Logger)

	fetcher := media.NewYtdlpFetcher(a.Config.Downloads.YtdlpPath, a.Logger)
	a.Fetcher = fetcher
	if !fetcher.Available() {
		a.Logger.Warn().Msg("yt-dlp not found, downloads will fail until it is installed")
	} else {
		a.Logger.Debug().Msg("Media fetcher initialized")
	}

	transcoder := media.NewFFmpegTranscoder(a.Config.Downloads.FfmpegPath, a.Config.Downloads.FfprobePath, a.Logger)
	a.Transcoder = transcoder
	if !transcoder.Available() {
		a.Logger.Warn().Msg("ffmpeg not found, mp3 requests will deliver the original container")
	} else {
		a.Logger.Debug().Msg("Transcoder initialized")
	}

	a.Playlists = media.NewPlaylistInspector(a.Logger)

	// Shared HTTP client for the scraping strategies; carries a cookie
	// jar so Instagram page fetches hold a session.
	client, err := httpclient.NewMediaClient()
	if err != nil {
		return fmt.Errorf("failed to build media HTTP client: %w", err)
	}

	a.Executor = strategies.NewExecutor(
		a.Transcoder,
		a.Logger,
		strategies.NewInstagramStrategy(client, a.Logger),
		strategies.NewYtdlpStrategy(a.Fetcher),
		strategies.NewDirectStrategy(client, a.Logger),
	)
	a.Logger.Debug().Msg("Strategy executor initialized")

	a.JobService = jobs.NewManager(a.Config, a.Tracker, a.Executor, a.Fetcher, a.Playlists, a.Logger)
	a.Logger.Debug().Msg("Job manager initialized")

	a.Retention = retention.NewService(a.Config, a.Tracker, a.Logger)

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Config, a.JobService, a.Fetcher, a.Transcoder)
	a.MediaHandler = handlers.NewMediaHandler(a.Config, a.JobService)
	// WSHandler already initialized in New() so it subscribes before
	// the first job can publish.
}

// Close closes all application resources
func (a *App) Close() error {
	// Stop the sweeper first so no sweep runs mid-shutdown.
	if a.Retention != nil {
		a.Retention.Stop()
	}

	// Cancel running downloads and give them a bounded window to exit.
	if a.JobService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.JobService.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Job shutdown incomplete")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
