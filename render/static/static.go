// Package static implements render.Page over plain HTTP fetches. Listings
// that paginate with "next" links stand in for infinite scroll: every
// Scroll follows the next link of the last loaded chunk and appends it to
// the page.
package static

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-startups/render"
)

// ErrBlocked is returned when the resource filter aborts a navigation.
var ErrBlocked = errors.New("request blocked by resource filter")

// Options configures the HTTP client.
type Options struct {
	UserAgent    string
	NextSelector string
	Transport    http.RoundTripper
}

// Browser hands out static pages sharing one configuration.
type Browser struct {
	opts Options
}

var _ render.Browser = (*Browser)(nil)

// NewBrowser returns a Browser creating pages with opts.
func NewBrowser(opts Options) *Browser {
	return &Browser{opts: opts}
}

func (b *Browser) NewPage(ctx context.Context) (render.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewPage(b.opts), nil
}

func (b *Browser) Close() error {
	return nil
}

// Page is a colly-backed document holder.
type Page struct {
	opts      Options
	collector *colly.Collector
	filter    render.Filter

	url      string
	timeout  time.Duration
	snapshot *render.Snapshot
	chunks   map[string]struct{}

	// per-fetch outcome, written by collector callbacks
	response *colly.Response
	fetchErr error
}

var _ render.Page = (*Page)(nil)

// NewPage builds a page with its own collector.
func NewPage(opts Options) *Page {
	options := []colly.CollectorOption{colly.AllowURLRevisit()}
	if opts.UserAgent != "" {
		options = append(options, colly.UserAgent(opts.UserAgent))
	}
	collector := colly.NewCollector(options...)
	collector.IgnoreRobotsTxt = true
	if opts.Transport != nil {
		collector.WithTransport(opts.Transport)
	}

	p := &Page{opts: opts, collector: collector}
	collector.OnRequest(func(r *colly.Request) {
		if p.filter.Blocks(render.ClassifyURL(r.URL.String())) {
			slog.Debug("request blocked", slog.String("url", r.URL.String()))
			r.Abort()
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		p.response = r
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= http.StatusBadRequest {
			err = &render.StatusError{Code: r.StatusCode}
		}
		p.fetchErr = err
	})
	return p
}

func (p *Page) fetch(ctx context.Context, rawURL string, timeout time.Duration) (*render.Snapshot, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	p.response, p.fetchErr = nil, nil
	if timeout > 0 {
		p.collector.SetRequestTimeout(timeout)
	}

	err := p.collector.Visit(rawURL)
	if p.fetchErr != nil {
		err = p.fetchErr
	}
	if err != nil {
		return nil, "", err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, "", ctxErr
	}
	if p.response == nil {
		return nil, "", ErrBlocked
	}

	doc, err := render.ParseDocument(bytes.NewReader(p.response.Body))
	if err != nil {
		return nil, "", err
	}
	finalURL := rawURL
	if p.response.Request != nil && p.response.Request.URL != nil {
		finalURL = p.response.Request.URL.String()
	}
	return render.NewSnapshot(doc), finalURL, nil
}

// Navigate fetches rawURL. Every readiness level is satisfied once the
// response body has been parsed.
func (p *Page) Navigate(ctx context.Context, rawURL string, _ render.Readiness, timeout time.Duration) error {
	snap, finalURL, err := p.fetch(ctx, rawURL, timeout)
	if err != nil {
		return &render.NavigationError{URL: rawURL, Err: err}
	}
	p.url = finalURL
	p.timeout = timeout
	p.snapshot = snap
	p.chunks = map[string]struct{}{finalURL: {}}
	return nil
}

func (p *Page) Query(_ context.Context, selector string) []render.Element {
	return p.snapshot.Query(selector)
}

// Scroll loads the next chunk of a paginated listing. It is a no-op when
// the last chunk has no unseen next link.
func (p *Page) Scroll(ctx context.Context, _ int) error {
	if p.snapshot == nil || p.opts.NextSelector == "" {
		return nil
	}
	last := p.snapshot.Last()
	href, ok := last.Find(p.opts.NextSelector).First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return nil
	}
	next, err := resolve(p.url, href)
	if err != nil {
		return fmt.Errorf("resolve next link %q: %w", href, err)
	}
	if _, seen := p.chunks[next]; seen {
		return nil
	}
	p.chunks[next] = struct{}{}

	snap, _, err := p.fetch(ctx, next, p.timeout)
	if err != nil {
		return fmt.Errorf("load next chunk: %w", err)
	}
	p.snapshot.Append(snap.Last())
	return nil
}

func (p *Page) Wait(ctx context.Context, d time.Duration) error {
	return render.Sleep(ctx, d)
}

func (p *Page) InstallResourceFilter(filter render.Filter) error {
	p.filter = filter
	return nil
}

func (p *Page) URL() string {
	return p.url
}

func (p *Page) Close() error {
	return nil
}

func resolve(base, href string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(ref).String(), nil
}
