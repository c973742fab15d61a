// Package chrome implements render.Page on top of a headless Chrome
// driven through the DevTools protocol.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/aluiziolira/go-scrape-startups/render"
)

const (
	queryTimeout  = 10 * time.Second
	scrollTimeout = 5 * time.Second
	pollInterval  = 50 * time.Millisecond
)

// Options configures the browser process.
type Options struct {
	Headless  bool
	UserAgent string
	ExecPath  string
}

// Browser owns one Chrome process; every page is a tab.
type Browser struct {
	allocCtx      context.Context
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
}

var _ render.Browser = (*Browser)(nil)

// NewBrowser launches Chrome. The process lives until Close or until ctx
// is cancelled.
func NewBrowser(ctx context.Context, opts Options) (*Browser, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &Browser{
		allocCtx:      allocCtx,
		cancelAlloc:   cancelAlloc,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
	}, nil
}

// NewPage opens a new tab.
func (b *Browser) NewPage(ctx context.Context) (render.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return newPage(tabCtx, cancel), nil
}

// Close terminates the browser process.
func (b *Browser) Close() error {
	b.cancelBrowser()
	b.cancelAlloc()
	return nil
}

// Page is one Chrome tab. Queries share one DOM snapshot until the next
// Navigate, Scroll or Wait.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	url    string

	snap    *render.Snapshot
	readDOM func(ctx context.Context) (string, error)
}

func newPage(ctx context.Context, cancel context.CancelFunc) *Page {
	p := &Page{ctx: ctx, cancel: cancel}
	p.readDOM = p.outerHTML
	return p
}

var _ render.Page = (*Page)(nil)

// run executes actions on the tab, bounded by timeout and by the caller's
// context.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Page) Navigate(ctx context.Context, rawURL string, readiness render.Readiness, timeout time.Duration) error {
	p.snap = nil
	err := p.run(ctx, timeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errorText, err := page.Navigate(rawURL).Do(ctx)
			if err != nil {
				return err
			}
			if errorText != "" {
				return errors.New(errorText)
			}
			return nil
		}),
		waitFor(readiness),
	)
	if err != nil {
		return &render.NavigationError{URL: rawURL, Err: err}
	}
	p.url = rawURL
	return nil
}

func waitFor(readiness render.Readiness) chromedp.Action {
	switch readiness {
	case render.ReadinessDOMContentLoaded:
		return chromedp.WaitReady("body", chromedp.ByQuery)
	case render.ReadinessLoad:
		return chromedp.ActionFunc(func(ctx context.Context) error {
			for {
				var state string
				// evaluation fails while the old document is torn down
				if err := chromedp.Evaluate(`document.readyState`, &state).Do(ctx); err == nil && state == "complete" {
					return nil
				}
				if err := render.Sleep(ctx, pollInterval); err != nil {
					return err
				}
			}
		})
	default:
		return chromedp.ActionFunc(func(context.Context) error { return nil })
	}
}

// Query matches selector against the current DOM snapshot, taking one
// if none is held. A failed snapshot is not kept.
func (p *Page) Query(ctx context.Context, selector string) []render.Element {
	if p.snap == nil {
		html, err := p.readDOM(ctx)
		if err != nil {
			slog.Debug("dom snapshot failed", slog.String("url", p.url), slog.Any("error", err))
			return nil
		}
		snap, err := render.ParseSnapshot(html)
		if err != nil {
			slog.Debug("dom parse failed", slog.String("url", p.url), slog.Any("error", err))
			return nil
		}
		p.snap = snap
	}
	return p.snap.Query(selector)
}

func (p *Page) outerHTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, queryTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *Page) Scroll(ctx context.Context, distance int) error {
	expr := `window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`
	if distance > 0 {
		expr = fmt.Sprintf(`window.scrollBy(0, %d); window.scrollY`, distance)
	}
	p.snap = nil
	var position float64
	if err := p.run(ctx, scrollTimeout, chromedp.Evaluate(expr, &position)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// Wait lets client rendering progress; the next Query re-reads the DOM.
func (p *Page) Wait(ctx context.Context, d time.Duration) error {
	p.snap = nil
	return render.Sleep(ctx, d)
}

// InstallResourceFilter intercepts every request of the tab through the
// Fetch domain and fails the ones the filter blocks.
func (p *Page) InstallResourceFilter(filter render.Filter) error {
	chromedp.ListenTarget(p.ctx, func(ev interface{}) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		// replies must not block the event loop
		go p.resolve(paused, filter)
	})
	if err := chromedp.Run(p.ctx, fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}})); err != nil {
		return fmt.Errorf("enable request interception: %w", err)
	}
	return nil
}

func (p *Page) resolve(ev *fetch.EventRequestPaused, filter render.Filter) {
	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return
	}
	ctx := cdp.WithExecutor(p.ctx, c.Target)

	var err error
	if filter.Blocks(resourceKind(ev.ResourceType)) {
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
	} else {
		err = fetch.ContinueRequest(ev.RequestID).Do(ctx)
	}
	if err != nil && p.ctx.Err() == nil {
		slog.Debug("request interception reply failed",
			slog.String("request", ev.Request.URL),
			slog.Any("error", err),
		)
	}
}

func resourceKind(t network.ResourceType) render.ResourceKind {
	switch t {
	case network.ResourceTypeDocument:
		return render.KindDocument
	case network.ResourceTypeStylesheet:
		return render.KindStylesheet
	case network.ResourceTypeScript:
		return render.KindScript
	case network.ResourceTypeImage:
		return render.KindImage
	case network.ResourceTypeFont:
		return render.KindFont
	case network.ResourceTypeMedia:
		return render.KindMedia
	case network.ResourceTypeXHR, network.ResourceTypeFetch:
		return render.KindXHR
	default:
		return render.KindOther
	}
}

func (p *Page) URL() string {
	return p.url
}

// Close closes the tab.
func (p *Page) Close() error {
	p.cancel()
	return nil
}
