package scraper

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-startups/config"
	"github.com/aluiziolira/go-scrape-startups/render"
)

func navErr(err error) error {
	return &render.NavigationError{URL: "http://example.test/companies/acme", Err: err}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "context timeout", err: navErr(context.DeadlineExceeded), expected: "timeout"},
		{name: "net timeout", err: navErr(&net.DNSError{IsTimeout: true}), expected: "timeout"},
		{name: "connection", err: navErr(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}), expected: "connection"},
		{name: "chrome connection", err: navErr(errors.New("net::ERR_NAME_NOT_RESOLVED")), expected: "connection"},
		{name: "chrome timeout", err: navErr(errors.New("net::ERR_TIMED_OUT")), expected: "timeout"},
		{name: "forbidden", err: navErr(&render.StatusError{Code: http.StatusForbidden}), expected: "forbidden"},
		{name: "not found", err: navErr(&render.StatusError{Code: http.StatusNotFound}), expected: "not_found"},
		{name: "rate limited", err: navErr(&render.StatusError{Code: http.StatusTooManyRequests}), expected: "rate_limited"},
		{name: "server error", err: navErr(&render.StatusError{Code: http.StatusInternalServerError}), expected: "http_status"},
		{name: "cancelled", err: navErr(context.Canceled), expected: "cancelled"},
		{name: "navigation", err: navErr(errors.New("tab crashed")), expected: "navigation"},
		{name: "extraction", err: ErrExtraction{Err: errors.New("record missing company name")}, expected: "extraction"},
		{name: "other", err: errors.New("some other error"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err)); got != tt.expected {
				t.Fatalf("classifyError(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestSkipErrorMatchesSentinel(t *testing.T) {
	cause := ErrTimeout{Err: context.DeadlineExceeded}
	err := error(&SkipError{URL: "http://example.test/companies/acme", Attempts: 2, Err: cause})

	if !errors.Is(err, ErrSkipped) {
		t.Fatalf("expected ErrSkipped")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cause to unwrap")
	}
	var timeout ErrTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("expected ErrTimeout in chain")
	}
}

func TestRetryBackoffCapped(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond
	rc := newRetryController(cfg, nil, nil, nil, newRunStats())

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 200 * time.Millisecond},
		{attempt: 1, want: 200 * time.Millisecond},
		{attempt: 2, want: 400 * time.Millisecond},
		{attempt: 3, want: 500 * time.Millisecond},
		{attempt: 8, want: 500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := rc.backoff(tt.attempt); got != tt.want {
			t.Fatalf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	cfg.RetryBackoff = 0
	if got := rc.backoff(3); got != 0 {
		t.Fatalf("zero base backoff = %v, want 0", got)
	}
}
