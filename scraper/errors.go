package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/aluiziolira/go-scrape-startups/render"
)

// ErrSkipped matches every SkipError.
var ErrSkipped = errors.New("skipped")

// ErrTimeout indicates a page that did not become ready in time.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates a forbidden response (HTTP 403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing resource (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrExtraction indicates a page that loaded without its required fields,
// usually because it was not fully rendered yet.
type ErrExtraction struct {
	Err error
}

func (e ErrExtraction) Error() string {
	return fmt.Errorf("extraction: %w", e.Err).Error()
}

func (e ErrExtraction) Unwrap() error {
	return e.Err
}

// SkipError reports a URL abandoned after its last attempt.
type SkipError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skipped %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *SkipError) Unwrap() error {
	return e.Err
}

func (e *SkipError) Is(target error) bool {
	return target == ErrSkipped
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var extraction ErrExtraction
	if errors.As(err, &extraction) {
		return "extraction"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	var status *render.StatusError
	if errors.As(err, &status) {
		return "http_status"
	}
	var nav *render.NavigationError
	if errors.As(err, &nav) {
		return "navigation"
	}
	return "other"
}

// classifyError wraps a navigation failure in the typed error matching its
// cause. Chrome reports network failures as "net::ERR_*" text.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	var status *render.StatusError
	if errors.As(err, &status) {
		switch status.Code {
		case http.StatusForbidden:
			return ErrForbidden{Err: err}
		case http.StatusNotFound:
			return ErrNotFound{Err: err}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: err}
		}
		return err
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "net::ERR_TIMED_OUT"), strings.Contains(msg, "net::ERR_CONNECTION_TIMED_OUT"):
		return ErrTimeout{Err: err}
	case strings.Contains(msg, "net::ERR_"):
		return ErrConnection{Err: err}
	}
	return err
}
