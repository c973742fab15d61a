package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Readiness levels accepted for navigation.
const (
	ReadinessCommit           = "commit"
	ReadinessDOMContentLoaded = "domcontentloaded"
	ReadinessLoad             = "load"
)

// Providers accepted for page rendering.
const (
	ProviderChrome = "chrome"
	ProviderStatic = "static"
)

// Output formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
	FormatDual = "dual"
)

// Config holds harvester configuration.
type Config struct {
	BaseURL     string
	ListingPath string
	ItemPrefix  string

	TargetCount     int
	Workers         int
	CheckpointEvery int

	ScrollDistance int // pixels; <= 0 scrolls to the bottom
	SettleInterval time.Duration
	StallThreshold int

	Timeout          time.Duration
	ListingReadiness string
	DetailReadiness  string
	MaxAttempts      int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration

	Provider     string // chrome or static
	Headless     bool
	ChromePath   string // chrome provider only: browser binary, empty to autodetect
	NextSelector string // static provider only: link followed on scroll
	UserAgent    string

	OutputFile   string
	OutputFormat string // csv, json, xlsx, or dual (csv plus json)
	DedupeSize   int
	Verbose      bool
	MetricsAddr  string
}

// DefaultConfig returns defaults for the YC company directory.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://www.ycombinator.com",
		ListingPath:      "/companies",
		ItemPrefix:       "/companies/",
		TargetCount:      500,
		Workers:          1,
		CheckpointEvery:  50,
		ScrollDistance:   0,
		SettleInterval:   400 * time.Millisecond,
		StallThreshold:   8,
		Timeout:          15 * time.Second,
		ListingReadiness: ReadinessLoad,
		DetailReadiness:  ReadinessCommit,
		MaxAttempts:      1,
		RetryBackoff:     200 * time.Millisecond,
		RetryBackoffMax:  2 * time.Second,
		Provider:         ProviderChrome,
		Headless:         true,
		NextSelector:     `a[rel="next"]`,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		OutputFile:       "output/yc_startups.csv",
		OutputFormat:     FormatCSV,
		DedupeSize:       100000,
		Verbose:          false,
	}
}

// ListingURL joins the base URL and the listing path.
func (c *Config) ListingURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + strings.TrimPrefix(c.ListingPath, "/")
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if c.ItemPrefix == "" {
		return fmt.Errorf("item prefix cannot be empty")
	}

	if c.TargetCount <= 0 {
		return fmt.Errorf("target count must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.CheckpointEvery <= 0 {
		return fmt.Errorf("checkpoint cadence must be positive")
	}
	if c.SettleInterval < 0 {
		return fmt.Errorf("settle interval cannot be negative")
	}
	if c.StallThreshold <= 0 {
		return fmt.Errorf("stall threshold must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if !validReadiness(c.ListingReadiness) {
		return fmt.Errorf("listing readiness must be commit, domcontentloaded, or load")
	}
	if !validReadiness(c.DetailReadiness) {
		return fmt.Errorf("detail readiness must be commit, domcontentloaded, or load")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.Provider != ProviderChrome && c.Provider != ProviderStatic {
		return fmt.Errorf("provider must be chrome or static")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case FormatCSV, FormatJSON, FormatXLSX, FormatDual:
	default:
		return fmt.Errorf("output format must be csv, json, xlsx, or dual")
	}
	if c.DedupeSize <= 0 {
		return fmt.Errorf("dedupe size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

func validReadiness(r string) bool {
	switch r {
	case ReadinessCommit, ReadinessDOMContentLoaded, ReadinessLoad:
		return true
	default:
		return false
	}
}
