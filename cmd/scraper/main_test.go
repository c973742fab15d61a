package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-scrape-startups/config"
	"github.com/aluiziolira/go-scrape-startups/models"
)

func TestApplyEnv(t *testing.T) {
	t.Setenv("SCRAPER_TARGET", "25")
	t.Setenv("SCRAPER_WORKERS", "4")
	t.Setenv("SCRAPER_OUTPUT", "out/custom.csv")
	t.Setenv("SCRAPER_PROVIDER", "STATIC")

	cfg := config.DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.TargetCount != 25 || cfg.Workers != 4 || cfg.OutputFile != "out/custom.csv" || cfg.Provider != config.ProviderStatic {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestApplyEnvRejectsBadInteger(t *testing.T) {
	t.Setenv("SCRAPER_TARGET", "many")
	if err := applyEnv(config.DefaultConfig()); err == nil || !strings.Contains(err.Error(), "SCRAPER_TARGET") {
		t.Fatalf("expected SCRAPER_TARGET error, got %v", err)
	}
}

func TestRootCommandFlags(t *testing.T) {
	cmd, err := newRootCommand()
	if err != nil {
		t.Fatalf("new root command: %v", err)
	}
	if err := cmd.ParseFlags([]string{"-n", "7", "--provider", "static", "--format", "dual"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	for flag, want := range map[string]string{"target": "7", "provider": "static", "format": "dual"} {
		if got := cmd.Flags().Lookup(flag).Value.String(); got != want {
			t.Fatalf("flag %s = %q, want %q", flag, got, want)
		}
	}
}

func TestCreateSink(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "startups.csv")

	tests := []struct {
		format string
		want   []string
	}{
		{format: config.FormatCSV, want: []string{base}},
		{format: config.FormatJSON, want: []string{base}},
		{format: config.FormatXLSX, want: []string{filepath.Join(dir, "startups.xlsx")}},
		{format: config.FormatDual, want: []string{base, filepath.Join(dir, "startups.jsonl")}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			sink, outputs, err := createSink(tt.format, base, models.Columns)
			if err != nil {
				t.Fatalf("create sink: %v", err)
			}
			if sink == nil {
				t.Fatalf("nil sink")
			}
			if diff := cmp.Diff(tt.want, outputs); diff != "" {
				t.Fatalf("outputs mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, _, err := createSink("parquet", base, models.Columns); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	result := &models.HarvestResult{
		StartTime:    start,
		EndTime:      start.Add(2 * time.Second),
		Target:       5,
		Discovered:   4,
		Shortfall:    true,
		Scraped:      3,
		Skipped:      1,
		RetryCount:   2,
		ErrorsByType: map[string]int{"timeout": 2},
		Flushes:      2,
	}

	var buf bytes.Buffer
	printSummary(&buf, result, []string{"output/yc_startups.csv"})
	out := buf.String()
	for _, want := range []string{"Harvest complete", "Discovered", "Duplicates", "Skipped", "output/yc_startups.csv", "timeout"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	if err := loadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored, got %v", err)
	}

	// a directory opens but cannot be read as a file
	if err := loadDotEnv(dir); err == nil {
		t.Fatalf("expected error for unreadable .env")
	}

	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("SCRAPER_DOTENV_TEST=from-file\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("SCRAPER_DOTENV_TEST") })
	if err := loadDotEnv(path); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv("SCRAPER_DOTENV_TEST"); got != "from-file" {
		t.Fatalf("SCRAPER_DOTENV_TEST = %q, want from-file", got)
	}
}
