package pipeline

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-scrape-startups/models"
)

type mockSink struct {
	mu          sync.Mutex
	flushes     [][]models.Record
	failures    int
	closed      bool
	validateErr error
}

func (ms *mockSink) Flush(records []models.Record) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.failures > 0 {
		ms.failures--
		return errors.New("disk full")
	}
	snapshot := make([]models.Record, len(records))
	copy(snapshot, records)
	ms.flushes = append(ms.flushes, snapshot)
	return nil
}

func (ms *mockSink) Close() error {
	ms.mu.Lock()
	ms.closed = true
	ms.mu.Unlock()
	return nil
}

func (ms *mockSink) Validate() error {
	return ms.validateErr
}

func (ms *mockSink) flushSizes() []int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	sizes := make([]int, 0, len(ms.flushes))
	for _, f := range ms.flushes {
		sizes = append(sizes, len(f))
	}
	return sizes
}

func record(i int) *models.Record {
	r := models.NewRecord("http://example.test/companies/" + strconv.Itoa(i))
	r.Set(models.FieldCompanyName, fmt.Sprintf("Company %d", i))
	return r
}

func newTestPipeline(t *testing.T, sink Sink, every int) *Pipeline {
	t.Helper()
	p, err := NewPipeline(sink, Options{CheckpointEvery: every, DedupeSize: 16})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestPipelineCheckpointCadence(t *testing.T) {
	sink := &mockSink{}
	p := newTestPipeline(t, sink, 2)

	for i := 0; i < 5; i++ {
		if err := p.Append(record(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if diff := cmp.Diff([]int{2, 4}, sink.flushSizes()); diff != "" {
		t.Fatalf("checkpoint sizes mismatch (-want +got):\n%s", diff)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if diff := cmp.Diff([]int{2, 4, 5}, sink.flushSizes()); diff != "" {
		t.Fatalf("flush sizes mismatch (-want +got):\n%s", diff)
	}
	if !sink.closed {
		t.Fatalf("expected sink to be closed")
	}
}

func TestPipelineFlushFailureDoesNotStopLoop(t *testing.T) {
	sink := &mockSink{failures: 1}
	p := newTestPipeline(t, sink, 2)

	for i := 0; i < 4; i++ {
		if err := p.Append(record(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	// first checkpoint failed, second one carries every record
	if diff := cmp.Diff([]int{4}, sink.flushSizes()); diff != "" {
		t.Fatalf("flush sizes mismatch (-want +got):\n%s", diff)
	}

	metrics := p.GetMetrics()
	if metrics["flush_errors"].(int64) != 1 || metrics["flushes"].(int64) != 1 {
		t.Fatalf("unexpected metrics %v", metrics)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestPipelineCloseReportsFinalFlushError(t *testing.T) {
	sink := &mockSink{failures: 1}
	p := newTestPipeline(t, sink, 10)
	if err := p.Append(record(1)); err != nil {
		t.Fatalf("append: %v", err)
	}

	err := p.Close()
	if err == nil {
		t.Fatalf("expected final flush error")
	}
	if again := p.Close(); again == nil || again.Error() != err.Error() {
		t.Fatalf("second close = %v, want %v", again, err)
	}
	if !errors.Is(p.Append(record(2)), ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed after close")
	}
}

func TestPipelineDropsDuplicateURLs(t *testing.T) {
	sink := &mockSink{}
	p := newTestPipeline(t, sink, 10)

	if err := p.Append(record(1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := p.Append(record(1)); !errors.Is(err, ErrDuplicateRecord) {
		t.Fatalf("expected ErrDuplicateRecord, got %v", err)
	}
	if p.Len() != 1 {
		t.Fatalf("len = %d, want 1", p.Len())
	}
	if p.GetMetrics()["duplicate_records"].(int64) != 1 {
		t.Fatalf("expected one duplicate counted")
	}
}

func TestPipelineStoresCopies(t *testing.T) {
	p := newTestPipeline(t, &mockSink{}, 10)
	r := record(1)
	if err := p.Append(r); err != nil {
		t.Fatalf("append: %v", err)
	}
	r.Set(models.FieldCompanyName, "mutated")

	if got := p.Records()[0].Get(models.FieldCompanyName); got != "Company 1" {
		t.Fatalf("stored record changed to %q", got)
	}
}

func TestPipelineConcurrentAppend(t *testing.T) {
	sink := &mockSink{}
	p := newTestPipeline(t, sink, 7)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if err := p.Append(record(w*100 + i)); err != nil {
					t.Errorf("append: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := sink.flushSizes()
	if len(sizes) == 0 || sizes[len(sizes)-1] != 100 {
		t.Fatalf("final flush sizes = %v, want last 100", sizes)
	}
	for i := 1; i < len(sizes); i++ {
		if sizes[i] < sizes[i-1] {
			t.Fatalf("flush %d shrank: %v", i, sizes)
		}
	}
}

func TestNewPipelineValidation(t *testing.T) {
	if _, err := NewPipeline(nil, Options{CheckpointEvery: 1}); err == nil {
		t.Fatalf("expected error for nil sink")
	}
	if _, err := NewPipeline(&mockSink{}, Options{}); err == nil {
		t.Fatalf("expected error for zero cadence")
	}
}
