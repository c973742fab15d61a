package main

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// progressObserver reports harvest progress and is stopped once Run
// returns.
type progressObserver interface {
	DiscoveryProgress(collected, target int)
	ExtractionStarted(total int)
	ExtractionProgress(done, total int)
	Stop()
}

// barObserver renders one bar per phase.
type barObserver struct {
	pw        progress.Writer
	discovery *progress.Tracker

	mu         sync.Mutex
	extraction *progress.Tracker
}

func newBarObserver(out io.Writer, target int) *barObserver {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Percentage = true

	discovery := &progress.Tracker{Message: "Collecting links", Total: int64(target), Units: progress.UnitsDefault}
	pw.AppendTracker(discovery)
	go pw.Render()

	return &barObserver{pw: pw, discovery: discovery}
}

func (b *barObserver) DiscoveryProgress(collected, _ int) {
	b.discovery.SetValue(int64(collected))
}

func (b *barObserver) ExtractionStarted(total int) {
	b.discovery.MarkAsDone()

	tracker := &progress.Tracker{Message: "Scraping pages", Total: int64(total), Units: progress.UnitsDefault}
	b.mu.Lock()
	b.extraction = tracker
	b.mu.Unlock()
	b.pw.AppendTracker(tracker)
}

func (b *barObserver) ExtractionProgress(done, _ int) {
	b.mu.Lock()
	tracker := b.extraction
	b.mu.Unlock()
	if tracker != nil {
		tracker.SetValue(int64(done))
	}
}

func (b *barObserver) Stop() {
	b.discovery.MarkAsDone()
	b.mu.Lock()
	if b.extraction != nil {
		b.extraction.MarkAsDone()
	}
	b.mu.Unlock()

	// let the renderer draw the final state
	time.Sleep(150 * time.Millisecond)
	b.pw.Stop()
	for b.pw.IsRenderInProgress() {
		time.Sleep(10 * time.Millisecond)
	}
}

// logObserver reports progress through slog when stderr is not a terminal.
type logObserver struct {
	mu            sync.Mutex
	lastCollected int
	every         int
}

func newLogObserver() *logObserver {
	return &logObserver{every: 25}
}

func (l *logObserver) DiscoveryProgress(collected, target int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if collected-l.lastCollected < l.every && collected < target {
		return
	}
	l.lastCollected = collected
	slog.Info("collecting links", slog.Int("collected", collected), slog.Int("target", target))
}

func (l *logObserver) ExtractionStarted(total int) {
	slog.Info("scraping pages", slog.Int("total", total))
}

func (l *logObserver) ExtractionProgress(done, total int) {
	if done%l.every != 0 && done != total {
		return
	}
	slog.Info("scraping progress", slog.Int("done", done), slog.Int("total", total))
}

func (l *logObserver) Stop() {}
