// Package frontier discovers detail-page URLs on an incrementally loaded
// listing page.
package frontier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-startups/render"
)

// ErrInvalidTarget is returned for a non-positive target count.
var ErrInvalidTarget = errors.New("frontier: target count must be positive")

const defaultResolveCacheSize = 4096

// Options configures a Collector.
type Options struct {
	BaseURL        string
	ItemPrefix     string
	ScrollDistance int
	Settle         time.Duration
	// StallThreshold is the number of consecutive cycles without a new URL
	// after which collection gives up.
	StallThreshold   int
	ResolveCacheSize int
	// OnProgress, when set, is called after every cycle.
	OnProgress func(collected, target int)
}

// Result is a frozen frontier.
type Result struct {
	URLs      []string
	Target    int
	Cycles    int
	Scrolls   int
	Shortfall bool
}

// Collector runs scroll-and-harvest cycles against a listing page.
type Collector struct {
	opts     Options
	base     *url.URL
	selector string
	resolved *lru.Cache[string, string]
}

// New validates opts and builds a Collector.
func New(opts Options) (*Collector, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if opts.ItemPrefix == "" {
		return nil, fmt.Errorf("item prefix cannot be empty")
	}
	if opts.StallThreshold <= 0 {
		return nil, fmt.Errorf("stall threshold must be positive")
	}
	size := opts.ResolveCacheSize
	if size <= 0 {
		size = defaultResolveCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create resolve cache: %w", err)
	}

	prefix := "/" + strings.TrimPrefix(opts.ItemPrefix, "/")
	absolute := strings.TrimSuffix(base.Scheme+"://"+base.Host, "/") + prefix
	selector := fmt.Sprintf(`a[href^=%q], a[href^=%q]`, prefix, absolute)

	return &Collector{
		opts:     opts,
		base:     base,
		selector: selector,
		resolved: cache,
	}, nil
}

// Collect harvests up to n unique item URLs from page, which must already
// show the listing. Collection stops at n, after StallThreshold cycles in a
// row add nothing (Result.Shortfall), or when ctx ends; in the last case
// the partial result is returned with the context error.
func (c *Collector) Collect(ctx context.Context, page render.Page, n int) (*Result, error) {
	if n <= 0 {
		return nil, ErrInvalidTarget
	}

	set := newOrderedSet(n)
	result := &Result{Target: n}
	stalls := 0

	for set.Len() < n {
		if err := ctx.Err(); err != nil {
			result.URLs = set.Items()
			return result, err
		}

		before := set.Len()
		result.Cycles++
		for _, anchor := range page.Query(ctx, c.selector) {
			href, ok := anchor.Attr("href")
			if !ok {
				continue
			}
			if abs, ok := c.resolve(href); ok {
				set.Add(abs)
			}
			if set.Len() >= n {
				break
			}
		}
		if c.opts.OnProgress != nil {
			c.opts.OnProgress(set.Len(), n)
		}
		if set.Len() >= n {
			break
		}

		if set.Len() == before {
			stalls++
			if stalls >= c.opts.StallThreshold {
				result.Shortfall = true
				slog.Warn("listing stopped yielding new items",
					slog.Int("collected", set.Len()),
					slog.Int("target", n),
					slog.Int("stalled_cycles", stalls),
				)
				break
			}
		} else {
			stalls = 0
		}

		if err := page.Scroll(ctx, c.opts.ScrollDistance); err != nil {
			if ctx.Err() != nil {
				result.URLs = set.Items()
				return result, ctx.Err()
			}
			slog.Debug("scroll failed", slog.Any("error", err))
		}
		result.Scrolls++
		if err := page.Wait(ctx, c.opts.Settle); err != nil {
			result.URLs = set.Items()
			return result, err
		}
	}

	result.URLs = set.Items()
	slog.Debug("frontier collected",
		slog.Int("urls", len(result.URLs)),
		slog.Int("cycles", result.Cycles),
		slog.Bool("shortfall", result.Shortfall),
	)
	return result, nil
}

// resolve turns an href into an absolute item URL without fragment. The
// whole listing is re-queried every cycle, so results are memoised.
func (c *Collector) resolve(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if cached, ok := c.resolved.Get(href); ok {
		return cached, cached != ""
	}

	abs := ""
	if ref, err := url.Parse(href); err == nil {
		u := c.base.ResolveReference(ref)
		u.Fragment = ""
		if strings.HasPrefix(u.Path, "/"+strings.TrimPrefix(c.opts.ItemPrefix, "/")) {
			abs = u.String()
		}
	}
	c.resolved.Add(href, abs)
	return abs, abs != ""
}

type orderedSet struct {
	items []string
	index map[string]struct{}
}

func newOrderedSet(capacity int) *orderedSet {
	return &orderedSet{
		items: make([]string, 0, capacity),
		index: make(map[string]struct{}, capacity),
	}
}

func (s *orderedSet) Add(item string) {
	if _, ok := s.index[item]; ok {
		return
	}
	s.index[item] = struct{}{}
	s.items = append(s.items, item)
}

func (s *orderedSet) Len() int {
	return len(s.items)
}

func (s *orderedSet) Items() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}
