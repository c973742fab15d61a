// Package models defines data structures for the harvester.
package models

import "time"

// Column names of the persisted artifact, in output order.
const (
	FieldCompanyName      = "Company Name"
	FieldBatch            = "Batch"
	FieldDescription      = "Description"
	FieldFounderNames     = "Founder Names"
	FieldFounderLinkedIns = "Founder LinkedIn URLs"
)

// Columns is the fixed column order of the output artifact.
var Columns = []string{
	FieldCompanyName,
	FieldBatch,
	FieldDescription,
	FieldFounderNames,
	FieldFounderLinkedIns,
}

// Record is the extracted field set for one detail page.
type Record struct {
	URL    string
	Fields map[string]string
}

// NewRecord returns an empty record for url.
func NewRecord(url string) *Record {
	return &Record{URL: url, Fields: make(map[string]string)}
}

// Get returns the value of field, or "" when absent.
func (r *Record) Get(field string) string {
	if r == nil || r.Fields == nil {
		return ""
	}
	return r.Fields[field]
}

// Set stores value under field.
func (r *Record) Set(field, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	r.Fields[field] = value
}

// Row returns the record's values ordered by columns.
func (r *Record) Row(columns []string) []string {
	row := make([]string, len(columns))
	for i, col := range columns {
		row[i] = r.Get(col)
	}
	return row
}

// HarvestResult holds the overall result of a harvest run.
type HarvestResult struct {
	StartTime    time.Time
	EndTime      time.Time
	Target       int
	Discovered   int
	Shortfall    bool
	Scraped      int
	Duplicates   int
	Skipped      int
	SkippedURLs  []string
	RetryCount   int
	ErrorsByType map[string]int
	Flushes      int
	FlushErrors  int
}
