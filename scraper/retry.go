package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-startups/config"
	"github.com/aluiziolira/go-scrape-startups/extract"
	"github.com/aluiziolira/go-scrape-startups/models"
	"github.com/aluiziolira/go-scrape-startups/parser"
	"github.com/aluiziolira/go-scrape-startups/render"
)

type visitState int

const (
	stateAttempting visitState = iota
	stateSucceeded
	stateSkipped
)

func (s visitState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateSucceeded:
		return "succeeded"
	case stateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// retryController visits one detail page with a bounded number of attempts.
type retryController struct {
	cfg       *config.Config
	extractor *extract.Extractor
	required  []string
	metrics   *Metrics
	stats     *runStats
}

func newRetryController(cfg *config.Config, extractor *extract.Extractor, required []string, metrics *Metrics, stats *runStats) *retryController {
	return &retryController{
		cfg:       cfg,
		extractor: extractor,
		required:  required,
		metrics:   metrics,
		stats:     stats,
	}
}

// visit runs navigate, extract and validate up to MaxAttempts times. A
// record missing required fields is retried, and the last attempt keeps it
// with the empty values. Any other terminal failure is logged and returned
// as a *SkipError.
func (rc *retryController) visit(ctx context.Context, page render.Page, url string) (*models.Record, error) {
	state := stateAttempting
	attempt := 0
	var record *models.Record
	var lastErr error

	for state == stateAttempting {
		attempt++
		record, lastErr = rc.attempt(ctx, page, url)
		if lastErr == nil {
			state = stateSucceeded
			break
		}

		label := errorTypeLabel(lastErr)
		rc.stats.addError(label)
		rc.metrics.IncError(label)

		if ctx.Err() != nil {
			state = stateSkipped
			break
		}
		if attempt >= rc.cfg.MaxAttempts {
			state = stateSkipped
			if record != nil && errors.As(lastErr, new(ErrExtraction)) {
				slog.Warn("incomplete record kept",
					slog.String("url", url),
					slog.Int("attempts", attempt),
					slog.Any("error", lastErr),
				)
				state = stateSucceeded
			}
			break
		}

		delay := rc.backoff(attempt)
		rc.stats.addRetry()
		rc.metrics.IncRetries()
		slog.Debug("retrying detail page",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("category", label),
			slog.Any("error", lastErr),
		)
		if err := render.Sleep(ctx, delay); err != nil {
			lastErr = err
			state = stateSkipped
		}
	}

	slog.Debug("visit finished",
		slog.String("url", url),
		slog.Int("attempts", attempt),
		slog.String("state", state.String()),
	)
	if state == stateSucceeded {
		return record, nil
	}

	rc.metrics.IncSkipped()
	slog.Warn("skipped",
		slog.String("url", url),
		slog.Int("attempts", attempt),
		slog.String("category", errorTypeLabel(lastErr)),
		slog.Any("error", lastErr),
	)
	return nil, &SkipError{URL: url, Attempts: attempt, Err: lastErr}
}

func (rc *retryController) attempt(ctx context.Context, page render.Page, url string) (*models.Record, error) {
	start := time.Now()
	rc.metrics.IncNavigation("detail")
	err := page.Navigate(ctx, url, render.Readiness(rc.cfg.DetailReadiness), rc.cfg.Timeout)
	rc.metrics.ObserveDuration("detail", time.Since(start))
	if err != nil {
		return nil, classifyError(err)
	}

	record := rc.extractor.Extract(ctx, page)
	if record.URL == "" {
		record.URL = url
	}
	if err := parser.ValidateRecord(record, rc.required); err != nil {
		return record, ErrExtraction{Err: err}
	}
	return record, nil
}

func (rc *retryController) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rc.cfg.RetryBackoff
	if base <= 0 {
		return 0
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rc.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}
