package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Snapshot is a parsed, queryable copy of one or more documents. Pages
// that grow by appending content (infinite scroll emulation) keep one
// document per loaded chunk.
type Snapshot struct {
	docs []*goquery.Document
}

// NewSnapshot wraps already parsed documents.
func NewSnapshot(docs ...*goquery.Document) *Snapshot {
	return &Snapshot{docs: docs}
}

// ParseSnapshot parses html into a single-document snapshot.
func ParseSnapshot(html string) (*Snapshot, error) {
	doc, err := ParseDocument(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return NewSnapshot(doc), nil
}

// ParseDocument parses an HTML stream.
func ParseDocument(r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Append adds a document to the snapshot.
func (s *Snapshot) Append(doc *goquery.Document) {
	s.docs = append(s.docs, doc)
}

// Last returns the most recently appended document, or nil.
func (s *Snapshot) Last() *goquery.Document {
	if s == nil || len(s.docs) == 0 {
		return nil
	}
	return s.docs[len(s.docs)-1]
}

// Query matches selector across every document in load order.
func (s *Snapshot) Query(selector string) []Element {
	if s == nil {
		return nil
	}
	var out []Element
	for _, doc := range s.docs {
		out = append(out, wrap(doc.Find(selector))...)
	}
	return out
}

type selection struct {
	sel *goquery.Selection
}

func wrap(s *goquery.Selection) []Element {
	out := make([]Element, 0, s.Length())
	s.Each(func(_ int, node *goquery.Selection) {
		out = append(out, selection{sel: node})
	})
	return out
}

func (e selection) Text() string {
	return strings.TrimSpace(e.sel.Text())
}

func (e selection) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

func (e selection) Find(selector string) []Element {
	return wrap(e.sel.Find(selector))
}

func (e selection) Contains(other Element) bool {
	o, ok := other.(selection)
	if !ok || o.sel.Length() == 0 || e.sel.Length() == 0 {
		return false
	}
	node := o.sel.Get(0)
	return e.sel.Get(0) == node || e.sel.Contains(node)
}

func (e selection) Closest(selector string) (Element, bool) {
	parent := e.sel.Parent().Closest(selector)
	if parent.Length() == 0 {
		return nil, false
	}
	return selection{sel: parent.First()}, true
}
