// Package render defines the rendered-page capability consumed by the
// harvester and the DOM snapshot shared by its implementations.
package render

import (
	"context"
	"fmt"
	"time"
)

// Readiness is the condition a navigation waits for before returning.
type Readiness string

const (
	// ReadinessCommit returns once the navigation has been committed.
	ReadinessCommit Readiness = "commit"
	// ReadinessDOMContentLoaded waits for the document body to be parsed.
	ReadinessDOMContentLoaded Readiness = "domcontentloaded"
	// ReadinessLoad waits for the document to finish loading.
	ReadinessLoad Readiness = "load"
)

// Element is a handle to one node of a rendered page.
type Element interface {
	Text() string
	Attr(name string) (string, bool)
	Find(selector string) []Element
	// Closest returns the nearest strict ancestor matching selector.
	Closest(selector string) (Element, bool)
	// Contains reports whether other is this element or one of its
	// descendants.
	Contains(other Element) bool
}

// Page is a single browsing context. Implementations are not safe for
// concurrent use; callers own one Page per goroutine.
type Page interface {
	// Navigate loads url and waits for readiness, failing with a
	// *NavigationError on timeout or transport failure.
	Navigate(ctx context.Context, url string, readiness Readiness, timeout time.Duration) error
	// Query returns every element matching selector. It never fails; an
	// invalid selector or an unreadable document yields no elements.
	Query(ctx context.Context, selector string) []Element
	// Scroll moves the viewport by distance pixels, or to the bottom of the
	// document when distance <= 0.
	Scroll(ctx context.Context, distance int) error
	Wait(ctx context.Context, d time.Duration) error
	// InstallResourceFilter applies filter to every subsequent request.
	InstallResourceFilter(filter Filter) error
	// URL is the address of the current document.
	URL() string
	Close() error
}

// Browser hands out independent pages.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// NavigationError reports a page that failed to load.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// StatusError reports an HTTP error status for the main document.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
