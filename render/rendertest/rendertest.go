// Package rendertest provides an in-memory render.Browser for tests.
package rendertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-startups/render"
)

// ErrUnreachable is returned for URLs without a fixture or with pending
// failures.
var ErrUnreachable = errors.New("rendertest: unreachable")

// Site is a set of HTML fixtures keyed by URL. It implements render.Browser;
// every page shares the fixtures and the navigation counters.
type Site struct {
	// Pages maps URL to document HTML.
	Pages map[string]string
	// Chunks are appended to the current document on successive scrolls.
	Chunks []string
	// Failures is the number of navigations of a URL that fail before it
	// loads; a negative count fails forever.
	Failures map[string]int
	// Redirects maps a URL to the address its page reports once loaded.
	Redirects map[string]string

	mu          sync.Mutex
	navigations map[string]int
	scrolls     int
	filters     int
}

var _ render.Browser = (*Site)(nil)

// NewPage returns a fresh page over the site.
func (s *Site) NewPage(ctx context.Context) (render.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Page{site: s}, nil
}

func (s *Site) Close() error {
	return nil
}

// Navigations reports how many times url was navigated to.
func (s *Site) Navigations(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigations[url]
}

// Scrolls reports the total number of scroll calls across pages.
func (s *Site) Scrolls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scrolls
}

// Filters reports how many resource filters were installed.
func (s *Site) Filters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

func (s *Site) load(url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.navigations == nil {
		s.navigations = make(map[string]int)
	}
	s.navigations[url]++

	if remaining, ok := s.Failures[url]; ok && remaining != 0 {
		if remaining > 0 {
			s.Failures[url] = remaining - 1
		}
		return "", ErrUnreachable
	}
	html, ok := s.Pages[url]
	if !ok {
		return "", ErrUnreachable
	}
	return html, nil
}

// Page is one browsing context over a Site.
type Page struct {
	site     *Site
	url      string
	snapshot *render.Snapshot
	chunk    int
}

var _ render.Page = (*Page)(nil)

func (p *Page) Navigate(ctx context.Context, url string, _ render.Readiness, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return &render.NavigationError{URL: url, Err: err}
	}
	html, err := p.site.load(url)
	if err != nil {
		return &render.NavigationError{URL: url, Err: err}
	}
	snap, err := render.ParseSnapshot(html)
	if err != nil {
		return &render.NavigationError{URL: url, Err: err}
	}
	p.url = url
	if to, ok := p.site.Redirects[url]; ok {
		p.url = to
	}
	p.snapshot = snap
	p.chunk = 0
	return nil
}

func (p *Page) Query(_ context.Context, selector string) []render.Element {
	return p.snapshot.Query(selector)
}

func (p *Page) Scroll(ctx context.Context, _ int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.site.mu.Lock()
	p.site.scrolls++
	p.site.mu.Unlock()

	if p.snapshot == nil || p.chunk >= len(p.site.Chunks) {
		return nil
	}
	more, err := render.ParseSnapshot(p.site.Chunks[p.chunk])
	if err != nil {
		return err
	}
	p.chunk++
	p.snapshot.Append(more.Last())
	return nil
}

func (p *Page) Wait(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func (p *Page) InstallResourceFilter(render.Filter) error {
	p.site.mu.Lock()
	p.site.filters++
	p.site.mu.Unlock()
	return nil
}

func (p *Page) URL() string {
	return p.url
}

func (p *Page) Close() error {
	return nil
}
