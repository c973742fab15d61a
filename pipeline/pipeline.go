package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-startups/models"
)

var (
	// ErrPipelineClosed is returned when Append is called after Close.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrDuplicateRecord is returned for a record whose URL was already
	// appended.
	ErrDuplicateRecord = errors.New("pipeline: duplicate record")
)

// Sink persists the full result set. Every Flush supersedes the previous
// one.
type Sink interface {
	Flush(records []models.Record) error
	Close() error
	Validate() error
}

// Options configures a Pipeline.
type Options struct {
	// CheckpointEvery is the number of appended records between flushes.
	CheckpointEvery int
	// DedupeSize bounds the set of URLs remembered for duplicate detection.
	DedupeSize int
}

// Pipeline owns the ordered result set and checkpoints it to a Sink.
type Pipeline struct {
	sink  Sink
	every int

	mu         sync.Mutex // guards records, sinceFlush, closed
	records    []models.Record
	sinceFlush int
	closed     bool
	seen       *lru.Cache[string, struct{}]

	// flushMu orders flushes so an older snapshot never lands after a newer one.
	flushMu sync.Mutex

	metrics metrics

	closeOnce    sync.Once
	closeErr     error
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline flushing to sink.
func NewPipeline(sink Sink, opts Options) (*Pipeline, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}
	if opts.CheckpointEvery <= 0 {
		return nil, fmt.Errorf("checkpoint cadence must be positive")
	}
	size := opts.DedupeSize
	if size <= 0 {
		size = 1024
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &Pipeline{
		sink:     sink,
		every:    opts.CheckpointEvery,
		seen:     seen,
		shutdown: make(chan struct{}),
	}, nil
}

// Append adds record to the result set and flushes every CheckpointEvery
// appends. A failed checkpoint is logged and counted; it is not returned.
func (p *Pipeline) Append(record *models.Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPipelineClosed
	}
	if record.URL != "" {
		if p.seen.Contains(record.URL) {
			p.mu.Unlock()
			p.metrics.incrementDuplicates()
			return ErrDuplicateRecord
		}
		p.seen.Add(record.URL, struct{}{})
	}
	p.records = append(p.records, cloneRecord(record))
	p.sinceFlush++
	due := p.sinceFlush >= p.every
	if due {
		p.sinceFlush = 0
	}
	p.mu.Unlock()

	p.metrics.incrementAppended()
	if due {
		_ = p.checkpoint("checkpoint")
	}
	return nil
}

// Flush writes the current result set immediately.
func (p *Pipeline) Flush() error {
	return p.checkpoint("manual")
}

// Close stops accepting records, performs the final flush, and closes the
// sink. Later calls return the first result.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.signalShutdown()

		flushErr := p.checkpoint("final")
		if flushErr != nil {
			flushErr = fmt.Errorf("final flush: %w", flushErr)
		}
		closeErr := p.sink.Close()
		if closeErr != nil {
			closeErr = fmt.Errorf("close sink: %w", closeErr)
		}
		p.closeErr = errors.Join(flushErr, closeErr)
	})
	return p.closeErr
}

// Len reports the number of records in the result set.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Records returns a copy of the result set in append order.
func (p *Pipeline) Records() []models.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Record, len(p.records))
	copy(out, p.records)
	return out
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs until Close.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				slog.Info("pipeline progress",
					slog.Int64("records", metrics["appended_records"].(int64)),
					slog.Int64("flushes", metrics["flushes"].(int64)),
					slog.Int64("flush_errors", metrics["flush_errors"].(int64)),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) checkpoint(reason string) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	snapshot := make([]models.Record, len(p.records))
	copy(snapshot, p.records)
	p.mu.Unlock()

	if err := p.sink.Flush(snapshot); err != nil {
		p.metrics.incrementFlushErrors()
		slog.Warn("flush failed, keeping records in memory",
			slog.String("reason", reason),
			slog.Int("records", len(snapshot)),
			slog.Any("error", err),
		)
		return err
	}
	p.metrics.incrementFlushes()
	slog.Debug("flushed records",
		slog.String("reason", reason),
		slog.Int("records", len(snapshot)),
	)
	return nil
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

// cloneRecord detaches the stored record from the caller's map.
func cloneRecord(r *models.Record) models.Record {
	fields := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return models.Record{URL: r.URL, Fields: fields}
}

type metrics struct {
	mu          sync.Mutex
	appended    int64
	duplicates  int64
	flushes     int64
	flushErrors int64
}

func (m *metrics) incrementAppended() {
	m.mu.Lock()
	m.appended++
	m.mu.Unlock()
}

func (m *metrics) incrementDuplicates() {
	m.mu.Lock()
	m.duplicates++
	m.mu.Unlock()
}

func (m *metrics) incrementFlushes() {
	m.mu.Lock()
	m.flushes++
	m.mu.Unlock()
}

func (m *metrics) incrementFlushErrors() {
	m.mu.Lock()
	m.flushErrors++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]interface{}{
		"appended_records":  m.appended,
		"duplicate_records": m.duplicates,
		"flushes":           m.flushes,
		"flush_errors":      m.flushErrors,
	}
}
