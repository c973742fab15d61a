// Package scraper drives a harvest: discover the frontier on the listing
// page, then visit every detail page and append its record to a pipeline.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-startups/config"
	"github.com/aluiziolira/go-scrape-startups/extract"
	"github.com/aluiziolira/go-scrape-startups/frontier"
	"github.com/aluiziolira/go-scrape-startups/models"
	"github.com/aluiziolira/go-scrape-startups/pipeline"
	"github.com/aluiziolira/go-scrape-startups/render"
)

// Observer receives progress for both phases. Calls may come from several
// goroutines when more than one worker is configured.
type Observer interface {
	DiscoveryProgress(collected, target int)
	ExtractionStarted(total int)
	ExtractionProgress(done, total int)
}

// Scraper harvests records through a render.Browser.
type Scraper struct {
	cfg       *config.Config
	browser   render.Browser
	extractor *extract.Extractor
	retry     *retryController
	stats     *runStats
	Metrics   *Metrics
	Observer  Observer
}

// NewScraper builds a scraper. required lists the fields a record must
// carry to count as extracted.
func NewScraper(cfg *config.Config, browser render.Browser, extractor *extract.Extractor, required []string) (*Scraper, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if browser == nil {
		return nil, fmt.Errorf("browser cannot be nil")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor cannot be nil")
	}

	s := &Scraper{
		cfg:       cfg,
		browser:   browser,
		extractor: extractor,
		stats:     newRunStats(),
		Metrics:   NewMetrics(),
	}
	s.retry = newRetryController(cfg, extractor, required, s.Metrics, s.stats)
	return s, nil
}

// Run performs one harvest into p. The caller closes p afterwards, which
// performs the final flush. When ctx ends early Run returns the partial
// result together with the context error.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.HarvestResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if p == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}

	s.stats.reset()
	start := time.Now()
	page, err := s.openPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	discovered, err := s.discover(ctx, page)
	if discovered == nil || (err != nil && !isContextErr(err)) {
		return nil, err
	}

	result := &models.HarvestResult{
		StartTime:  start,
		Target:     s.cfg.TargetCount,
		Discovered: len(discovered.URLs),
		Shortfall:  discovered.Shortfall,
	}

	if err == nil {
		s.harvest(ctx, page, p, discovered.URLs)
	}

	result.EndTime = time.Now()
	result.Scraped = s.stats.scrapedCount()
	result.Duplicates = s.stats.duplicateCount()
	result.SkippedURLs = s.stats.skippedURLs()
	result.Skipped = len(result.SkippedURLs)
	result.RetryCount = s.stats.retryCount()
	result.ErrorsByType = s.stats.errorsByType()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	return result, nil
}

func (s *Scraper) openPage(ctx context.Context) (render.Page, error) {
	page, err := s.browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	if err := page.InstallResourceFilter(render.BlockHeavy); err != nil {
		// the harvest still works, only slower
		slog.Warn("resource filter not installed", slog.Any("error", err))
	}
	return page, nil
}

// discover loads the listing and collects the frontier. A listing that
// cannot be loaded yields an empty frontier with a shortfall.
func (s *Scraper) discover(ctx context.Context, page render.Page) (*frontier.Result, error) {
	listingURL := s.cfg.ListingURL()

	start := time.Now()
	s.Metrics.IncNavigation("listing")
	err := page.Navigate(ctx, listingURL, render.Readiness(s.cfg.ListingReadiness), s.cfg.Timeout)
	s.Metrics.ObserveDuration("listing", time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return &frontier.Result{Target: s.cfg.TargetCount, Shortfall: true}, ctx.Err()
		}
		classified := classifyError(err)
		label := errorTypeLabel(classified)
		s.stats.addError(label)
		s.Metrics.IncError(label)
		slog.Error("listing navigation failed",
			slog.String("url", listingURL),
			slog.String("category", label),
			slog.Any("error", classified),
		)
		return &frontier.Result{Target: s.cfg.TargetCount, Shortfall: true}, nil
	}

	collector, err := frontier.New(frontier.Options{
		BaseURL:        s.cfg.BaseURL,
		ItemPrefix:     s.cfg.ItemPrefix,
		ScrollDistance: s.cfg.ScrollDistance,
		Settle:         s.cfg.SettleInterval,
		StallThreshold: s.cfg.StallThreshold,
		OnProgress: func(collected, target int) {
			s.Metrics.SetFrontierSize(collected)
			if s.Observer != nil {
				s.Observer.DiscoveryProgress(collected, target)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build frontier collector: %w", err)
	}

	slog.Info("collecting detail links",
		slog.String("url", listingURL),
		slog.Int("target", s.cfg.TargetCount),
	)
	result, err := collector.Collect(ctx, page, s.cfg.TargetCount)
	if err != nil {
		if result == nil {
			return nil, fmt.Errorf("collect frontier: %w", err)
		}
		return result, err
	}
	slog.Info("frontier collected",
		slog.Int("urls", len(result.URLs)),
		slog.Int("target", result.Target),
		slog.Int("cycles", result.Cycles),
		slog.Bool("shortfall", result.Shortfall),
	)
	return result, nil
}

// harvest visits urls, sequentially on page or fanned out over Workers
// pages. With several workers records are appended in completion order.
func (s *Scraper) harvest(ctx context.Context, page render.Page, p *pipeline.Pipeline, urls []string) {
	total := len(urls)
	if s.Observer != nil {
		s.Observer.ExtractionStarted(total)
	}
	if total == 0 {
		return
	}

	workers := s.cfg.Workers
	if workers > total {
		workers = total
	}
	if workers <= 1 {
		for _, url := range urls {
			if ctx.Err() != nil {
				return
			}
			s.process(ctx, page, p, url, total)
		}
		return
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		workerPage := page
		if i > 0 {
			opened, err := s.openPage(ctx)
			if err != nil {
				slog.Warn("worker page unavailable", slog.Int("worker", i), slog.Any("error", err))
				continue
			}
			workerPage = opened
		}
		wg.Add(1)
		go func(id int, wp render.Page) {
			defer wg.Done()
			if id > 0 {
				defer wp.Close()
			}
			for url := range jobs {
				s.process(ctx, wp, p, url, total)
			}
		}(i, workerPage)
	}

feed:
	for _, url := range urls {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- url:
		}
	}
	close(jobs)
	wg.Wait()
}

func (s *Scraper) process(ctx context.Context, page render.Page, p *pipeline.Pipeline, url string, total int) {
	defer func() {
		done := s.stats.addVisited()
		if s.Observer != nil {
			s.Observer.ExtractionProgress(done, total)
		}
	}()

	record, err := s.retry.visit(ctx, page, url)
	if err != nil {
		s.stats.addSkipped(url)
		return
	}

	if err := p.Append(record); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrDuplicateRecord):
			s.stats.addDuplicate()
			slog.Debug("duplicate record dropped", slog.String("url", record.URL))
		case errors.Is(err, pipeline.ErrPipelineClosed):
			slog.Warn("pipeline closed, record dropped", slog.String("url", url))
		default:
			slog.Error("pipeline append error", slog.String("url", url), slog.Any("error", err))
		}
		return
	}
	s.stats.addScraped()
	s.Metrics.IncRecords()
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// runStats accumulates per-run counters shared by the workers.
type runStats struct {
	mu         sync.Mutex
	skipped    []string
	errors     map[string]int
	retries    int
	scraped    int
	duplicates int
	visited    int
}

func newRunStats() *runStats {
	return &runStats{errors: make(map[string]int)}
}

// reset clears the counters in place; the retry controller shares rs.
func (rs *runStats) reset() {
	rs.mu.Lock()
	rs.skipped = nil
	rs.errors = make(map[string]int)
	rs.retries = 0
	rs.scraped = 0
	rs.duplicates = 0
	rs.visited = 0
	rs.mu.Unlock()
}

func (rs *runStats) addScraped() {
	rs.mu.Lock()
	rs.scraped++
	rs.mu.Unlock()
}

func (rs *runStats) addDuplicate() {
	rs.mu.Lock()
	rs.duplicates++
	rs.mu.Unlock()
}

func (rs *runStats) addVisited() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.visited++
	return rs.visited
}

func (rs *runStats) addSkipped(url string) {
	rs.mu.Lock()
	rs.skipped = append(rs.skipped, url)
	rs.mu.Unlock()
}

func (rs *runStats) addError(label string) {
	rs.mu.Lock()
	rs.errors[label]++
	rs.mu.Unlock()
}

func (rs *runStats) addRetry() {
	rs.mu.Lock()
	rs.retries++
	rs.mu.Unlock()
}

func (rs *runStats) skippedURLs() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]string, len(rs.skipped))
	copy(out, rs.skipped)
	return out
}

func (rs *runStats) errorsByType() map[string]int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make(map[string]int, len(rs.errors))
	for k, v := range rs.errors {
		out[k] = v
	}
	return out
}

func (rs *runStats) retryCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.retries
}

func (rs *runStats) scrapedCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.scraped
}

func (rs *runStats) duplicateCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.duplicates
}
