package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-scrape-startups/models"
)

// ListDelimiter separates values of multi-valued fields.
const ListDelimiter = ", "

// BatchPattern matches accelerator batch labels, short ("W21") or long
// ("Winter 2021").
var BatchPattern = regexp.MustCompile(`^(?:[SWFX]\d{2}|(?:Summer|Winter|Spring|Fall) \d{4})$`)

// ValidateRecord ensures the extractor captured every required field.
func ValidateRecord(r *models.Record, required []string) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	for _, field := range required {
		if strings.TrimSpace(r.Get(field)) == "" {
			return fmt.Errorf("record missing %s for %s", strings.ToLower(field), r.URL)
		}
	}
	return nil
}

// NormalizeText trims the value and collapses internal runs of whitespace.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// JoinValues normalizes values, drops empties, optionally suppresses
// duplicates, and joins the rest with ListDelimiter.
func JoinValues(values []string, unique bool) string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = NormalizeText(v)
		if v == "" {
			continue
		}
		if unique {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
		}
		out = append(out, v)
	}
	return strings.Join(out, ListDelimiter)
}
