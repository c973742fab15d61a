package pipeline

import (
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-startups/models"
)

// MultiSink flushes every record set to each of its sinks. A failing sink
// does not prevent the others from being written.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks; at least one is required.
func NewMultiSink(sinks ...Sink) (*MultiSink, error) {
	if len(sinks) == 0 {
		return nil, fmt.Errorf("multi sink needs at least one sink")
	}
	return &MultiSink{sinks: sinks}, nil
}

func (ms *MultiSink) Flush(records []models.Record) error {
	var errs []error
	for _, s := range ms.sinks {
		if err := s.Flush(records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ms *MultiSink) Close() error {
	var errs []error
	for _, s := range ms.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ms *MultiSink) Validate() error {
	var errs []error
	for _, s := range ms.sinks {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
