package strategies

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
)

// Callbacks lets the executor narrate execution into the job record
// without knowing about the tracker. OnFetched fires the moment a
// strategy delivers a file, before any audio conversion.
type Callbacks struct {
	OnMessage func(message string)
	OnFetched func()
	OnConvert func(fraction float64)
}

func (c Callbacks) message(msg string) {
	if c.OnMessage != nil {
		c.OnMessage(msg)
	}
}

func (c Callbacks) fetched() {
	if c.OnFetched != nil {
		c.OnFetched()
	}
}

func (c Callbacks) convert(fraction float64) {
	if c.OnConvert != nil {
		c.OnConvert(fraction)
	}
}

// Executor walks a platform's strategy chain in order until one attempt
// succeeds. Failures accumulate; they only surface as an error when the
// whole chain is exhausted.
type Executor struct {
	registry   map[string]Strategy
	transcoder interfaces.Transcoder
	logger     arbor.ILogger
}

// NewExecutor creates an executor over the given strategies
func NewExecutor(transcoder interfaces.Transcoder, logger arbor.ILogger, strategies ...Strategy) *Executor {
	registry := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		registry[s.Name()] = s
	}
	return &Executor{
		registry:   registry,
		transcoder: transcoder,
		logger:     logger,
	}
}

// Execute runs the chain for one job. Cancellation aborts immediately
// and is never recorded as a strategy failure.
func (e *Executor) Execute(ctx context.Context, platform models.Platform, chain []string, req *FetchRequest, cb Callbacks) (*FetchResult, error) {
	var attempts []models.StrategyAttempt

	for _, name := range chain {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		strategy, ok := e.registry[name]
		if !ok {
			attempts = append(attempts, models.StrategyAttempt{
				Strategy: name,
				Error:    "strategy not registered",
			})
			continue
		}

		cb.message(fmt.Sprintf("Trying %s method...", name))
		e.logger.Info().
			Str("strategy", name).
			Str("platform", string(platform)).
			Msg("Attempting download strategy")

		result, err := strategy.Fetch(ctx, req)
		if err == nil {
			result.Attempts = attempts
			cb.fetched()
			return e.finalize(ctx, req, result, cb)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		e.logger.Warn().
			Err(err).
			Str("strategy", name).
			Msg("Download strategy failed")
		attempts = append(attempts, models.StrategyAttempt{
			Strategy: name,
			Error:    err.Error(),
		})
	}

	return nil, &models.StrategyExhaustedError{
		Platform: platform,
		Attempts: attempts,
	}
}

// finalize converts the fetched file to mp3 when the request asked for
// audio and the strategy delivered video. Conversion failure keeps the
// original file and marks the result degraded instead of failing the job.
func (e *Executor) finalize(ctx context.Context, req *FetchRequest, result *FetchResult, cb Callbacks) (*FetchResult, error) {
	if req.Format != models.FormatAudio || result.Format == models.FormatAudio {
		return result, nil
	}

	cb.message("Converting to MP3...")

	if e.transcoder == nil || !e.transcoder.Available() {
		e.logger.Warn().
			Str("file", result.FilePath).
			Msg("Transcoder unavailable, keeping video file")
		result.Degraded = &models.TranscodeDegradedError{Reason: "ffmpeg is not available"}
		return result, nil
	}

	audioPath := strings.TrimSuffix(result.FilePath, filepath.Ext(result.FilePath)) + ".mp3"
	if err := e.transcoder.ExtractAudio(ctx, result.FilePath, audioPath, cb.convert); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn().
			Err(err).
			Str("file", result.FilePath).
			Msg("Audio conversion failed, keeping original file")
		result.Degraded = &models.TranscodeDegradedError{Reason: err.Error()}
		return result, nil
	}

	os.Remove(result.FilePath)
	result.FilePath = audioPath
	result.Format = models.FormatAudio
	return result, nil
}
