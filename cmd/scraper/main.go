package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-startups/config"
	"github.com/aluiziolira/go-scrape-startups/extract"
	"github.com/aluiziolira/go-scrape-startups/models"
	"github.com/aluiziolira/go-scrape-startups/pipeline"
	"github.com/aluiziolira/go-scrape-startups/render"
	"github.com/aluiziolira/go-scrape-startups/render/chrome"
	"github.com/aluiziolira/go-scrape-startups/render/static"
	"github.com/aluiziolira/go-scrape-startups/scraper"
)

func main() {
	if err := loadDotEnv(); err != nil {
		slog.Warn("ignoring .env file", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, err := newRootCommand()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadDotEnv loads filenames (.env by default) into the environment
// without overriding variables already set. Missing files are not errors.
func loadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// newRootCommand binds flags to a config whose defaults already carry the
// environment overrides.
func newRootCommand() (*cobra.Command, error) {
	cfg := config.DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cmd := &cobra.Command{
		Use:           "scraper",
		Short:         "Harvest startup profiles from an infinite-scroll directory.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
			cfg.Provider = strings.ToLower(cfg.Provider)
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Site root")
	flags.StringVar(&cfg.ListingPath, "listing-path", cfg.ListingPath, "Path of the infinite-scroll listing")
	flags.StringVar(&cfg.ItemPrefix, "item-prefix", cfg.ItemPrefix, "Path prefix of detail pages")
	flags.IntVarP(&cfg.TargetCount, "target", "n", cfg.TargetCount, "Number of detail pages to collect")
	flags.IntVar(&cfg.Workers, "workers", cfg.Workers, "Detail pages visited concurrently")
	flags.IntVar(&cfg.CheckpointEvery, "checkpoint-every", cfg.CheckpointEvery, "Records appended between checkpoint flushes")
	flags.IntVar(&cfg.ScrollDistance, "scroll-distance", cfg.ScrollDistance, "Pixels per scroll, 0 scrolls to the bottom")
	flags.DurationVar(&cfg.SettleInterval, "settle", cfg.SettleInterval, "Wait after each scroll")
	flags.IntVar(&cfg.StallThreshold, "stall-threshold", cfg.StallThreshold, "Scroll cycles without new links before giving up")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-page navigation timeout")
	flags.StringVar(&cfg.ListingReadiness, "listing-readiness", cfg.ListingReadiness, "Listing readiness: commit, domcontentloaded, or load")
	flags.StringVar(&cfg.DetailReadiness, "detail-readiness", cfg.DetailReadiness, "Detail readiness: commit, domcontentloaded, or load")
	flags.IntVar(&cfg.MaxAttempts, "attempts", cfg.MaxAttempts, "Attempts per detail page")
	flags.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Initial retry backoff")
	flags.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "Maximum retry backoff")
	flags.StringVar(&cfg.Provider, "provider", cfg.Provider, "Page provider: chrome or static")
	flags.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run chrome without a window")
	flags.StringVar(&cfg.ChromePath, "chrome-path", cfg.ChromePath, "Chrome binary, autodetected when empty")
	flags.StringVar(&cfg.NextSelector, "next-selector", cfg.NextSelector, "Static provider: link followed on scroll")
	flags.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User agent header")
	flags.StringVarP(&cfg.OutputFile, "output", "o", cfg.OutputFile, "Output file path")
	flags.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output format: csv, json, xlsx, or dual")
	flags.IntVar(&cfg.DedupeSize, "dedupe-size", cfg.DedupeSize, "Record URLs remembered for duplicate detection")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Enable verbose logging")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")

	return cmd, nil
}

// applyEnv overrides defaults from SCRAPER_* variables.
func applyEnv(cfg *config.Config) error {
	if value, ok, err := config.EnvInt("SCRAPER_TARGET"); err != nil {
		return fmt.Errorf("invalid SCRAPER_TARGET: %w", err)
	} else if ok {
		cfg.TargetCount = value
	}
	if value, ok, err := config.EnvInt("SCRAPER_WORKERS"); err != nil {
		return fmt.Errorf("invalid SCRAPER_WORKERS: %w", err)
	} else if ok {
		cfg.Workers = value
	}
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		cfg.OutputFile = value
	}
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	if value, ok := config.EnvString("SCRAPER_PROVIDER"); ok {
		cfg.Provider = strings.ToLower(value)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, level := newLogger(cfg.Verbose)
	logger = logger.With(slog.String("run_id", uuid.NewString()))
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("starting harvest",
		slog.String("listing", cfg.ListingURL()),
		slog.Int("target", cfg.TargetCount),
		slog.Int("workers", cfg.Workers),
		slog.String("provider", cfg.Provider),
	)

	browser, err := newBrowser(ctx, cfg)
	if err != nil {
		return fmt.Errorf("start %s provider: %w", cfg.Provider, err)
	}
	defer browser.Close()

	s, err := scraper.NewScraper(cfg, browser, extract.Default(), extract.DefaultRequired)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	sink, outputs, err := createSink(cfg.OutputFormat, cfg.OutputFile, models.Columns)
	if err != nil {
		return fmt.Errorf("creating sink: %w", err)
	}
	p, err := pipeline.NewPipeline(sink, pipeline.Options{
		CheckpointEvery: cfg.CheckpointEvery,
		DedupeSize:      cfg.DedupeSize,
	})
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	metricsServer := startMetricsServer(cfg.MetricsAddr, s.Metrics)

	var observer progressObserver
	if isTerminal(os.Stderr) {
		observer = newBarObserver(os.Stderr, cfg.TargetCount)
	} else {
		observer = newLogObserver()
	}
	s.Observer = observer

	result, runErr := s.Run(ctx, p)
	observer.Stop()
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		slog.Warn("harvest interrupted, saving collected records")
	default:
		slog.Error("harvest failed", slog.Any("error", runErr))
	}

	// final flush
	closeErr := p.Close()
	if closeErr != nil {
		slog.Warn("final flush failed", slog.Any("error", closeErr))
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if result == nil {
		return runErr
	}
	metrics := p.GetMetrics()
	if flushes, ok := metrics["flushes"].(int64); ok {
		result.Flushes = int(flushes)
	}
	if flushErrors, ok := metrics["flush_errors"].(int64); ok {
		result.FlushErrors = int(flushErrors)
	}
	if err := sink.Validate(); err != nil {
		slog.Warn("output validation failed", slog.Any("error", err))
	}

	printSummary(os.Stdout, result, outputs)
	if closeErr != nil {
		return closeErr
	}
	return nil
}

func newBrowser(ctx context.Context, cfg *config.Config) (render.Browser, error) {
	switch cfg.Provider {
	case config.ProviderStatic:
		return static.NewBrowser(static.Options{
			UserAgent:    cfg.UserAgent,
			NextSelector: cfg.NextSelector,
		}), nil
	case config.ProviderChrome:
		return chrome.NewBrowser(ctx, chrome.Options{
			Headless:  cfg.Headless,
			UserAgent: cfg.UserAgent,
			ExecPath:  cfg.ChromePath,
		})
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// createSink returns the sink for format and the files it writes.
func createSink(format, filename string, columns []string) (pipeline.Sink, []string, error) {
	switch format {
	case config.FormatCSV:
		sink, err := pipeline.NewCSVSink(filename, columns)
		if err != nil {
			return nil, nil, err
		}
		return sink, []string{filename}, nil
	case config.FormatJSON:
		sink, err := pipeline.NewJSONSink(filename, columns)
		if err != nil {
			return nil, nil, err
		}
		return sink, []string{filename}, nil
	case config.FormatXLSX:
		path := withExt(filename, ".xlsx")
		sink, err := pipeline.NewXLSXSink(path, "Startups", columns)
		if err != nil {
			return nil, nil, err
		}
		return sink, []string{path}, nil
	case config.FormatDual:
		jsonPath := withExt(filename, ".jsonl")
		csvSink, err := pipeline.NewCSVSink(filename, columns)
		if err != nil {
			return nil, nil, err
		}
		jsonSink, err := pipeline.NewJSONSink(jsonPath, columns)
		if err != nil {
			return nil, nil, err
		}
		sink, err := pipeline.NewMultiSink(csvSink, jsonSink)
		if err != nil {
			return nil, nil, err
		}
		return sink, []string{filename, jsonPath}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func withExt(filename, ext string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ext
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func printSummary(out io.Writer, result *models.HarvestResult, outputs []string) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Harvest complete")

	t.AppendRow(table.Row{"Target", result.Target})
	t.AppendRow(table.Row{"Discovered", result.Discovered})
	t.AppendRow(table.Row{"Scraped", result.Scraped})
	t.AppendRow(table.Row{"Duplicates", result.Duplicates})
	t.AppendRow(table.Row{"Skipped", result.Skipped})
	t.AppendRow(table.Row{"Shortfall", result.Shortfall})
	t.AppendRow(table.Row{"Retries", result.RetryCount})
	t.AppendRow(table.Row{"Flushes", fmt.Sprintf("%d (%d failed)", result.Flushes, result.FlushErrors)})
	if len(result.ErrorsByType) > 0 {
		t.AppendRow(table.Row{"Error types", fmt.Sprintf("%v", result.ErrorsByType)})
	}
	duration := result.EndTime.Sub(result.StartTime)
	t.AppendRow(table.Row{"Duration", duration.Round(time.Millisecond)})
	if secs := duration.Seconds(); secs > 0 {
		t.AppendRow(table.Row{"Pages/sec", fmt.Sprintf("%.2f", float64(result.Scraped)/secs)})
	}
	t.AppendSeparator()
	for _, path := range outputs {
		t.AppendRow(table.Row{"Output", path})
	}
	t.Render()
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
