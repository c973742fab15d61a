// Package extract turns a rendered detail page into a record by running
// ordered selector strategies per field.
package extract

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-scrape-startups/models"
	"github.com/aluiziolira/go-scrape-startups/parser"
	"github.com/aluiziolira/go-scrape-startups/render"
)

// Mode selects how matched elements become a value.
type Mode int

const (
	// ModeText takes the text of the first usable match.
	ModeText Mode = iota
	// ModeAttr takes an attribute of the first usable match.
	ModeAttr
	// ModeTextList joins the text of every usable match.
	ModeTextList
	// ModeAttrList joins an attribute of every usable match.
	ModeAttrList
)

func (m Mode) String() string {
	switch m {
	case ModeText:
		return "text"
	case ModeAttr:
		return "attr"
	case ModeTextList:
		return "text-list"
	case ModeAttrList:
		return "attr-list"
	default:
		return "unknown"
	}
}

func (m Mode) list() bool {
	return m == ModeTextList || m == ModeAttrList
}

func (m Mode) attr() bool {
	return m == ModeAttr || m == ModeAttrList
}

// Strategy is one selector attempt within a field's fallback chain.
// A match whose value is empty, does not satisfy Match, or does not
// contain Contains is ignored.
type Strategy struct {
	Selector string
	Mode     Mode
	Attr     string
	Match    *regexp.Regexp
	Contains string
	// Unique drops repeated values in list modes.
	Unique bool
}

// FieldSpec names a field and its strategies, tried in order.
type FieldSpec struct {
	Name       string
	Strategies []Strategy
}

// RelationSpec pairs links with the heading that names them, as on a
// founders section where each profile link sits next to a name.
type RelationSpec struct {
	// Sections are tried in order; every element matched by the first
	// selector with a match is searched for links.
	Sections []string
	Link     string
	// LinkContains restricts recorded links; empty records every href.
	LinkContains string
	Heading      string
	// Scope is the ancestor searched for a heading when the link has none.
	Scope     string
	NameField string
	LinkField string
}

// Extractor applies field and relation specs to pages.
type Extractor struct {
	fields    []FieldSpec
	relations []RelationSpec
}

// New builds an Extractor. Specs are used as given and must not be
// mutated afterwards.
func New(fields []FieldSpec, relations []RelationSpec) *Extractor {
	return &Extractor{fields: fields, relations: relations}
}

// Columns lists every field the extractor produces, in declaration order.
func (e *Extractor) Columns() []string {
	out := make([]string, 0, len(e.fields)+2*len(e.relations))
	for _, f := range e.fields {
		out = append(out, f.Name)
	}
	for _, r := range e.relations {
		out = append(out, r.NameField, r.LinkField)
	}
	return out
}

// Extract reads every field from page. It never fails: a field whose
// strategies all miss, or whose evaluation panics, is the empty string.
func (e *Extractor) Extract(ctx context.Context, page render.Page) *models.Record {
	record := models.NewRecord(page.URL())
	for _, spec := range e.fields {
		record.Set(spec.Name, e.field(ctx, page, spec))
	}
	for _, spec := range e.relations {
		names, links := e.relate(ctx, page, spec)
		record.Set(spec.NameField, names)
		record.Set(spec.LinkField, links)
	}
	return record
}

func (e *Extractor) field(ctx context.Context, page render.Page, spec FieldSpec) (value string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("field extraction panicked",
				slog.String("field", spec.Name),
				slog.String("url", page.URL()),
				slog.Any("panic", r),
			)
			value = ""
		}
	}()

	for _, strategy := range spec.Strategies {
		if v := apply(strategy, page.Query(ctx, strategy.Selector)); v != "" {
			return v
		}
	}
	return ""
}

// apply evaluates one strategy against its matches; "" means a miss.
func apply(s Strategy, matches []render.Element) string {
	var values []string
	for _, el := range matches {
		v, ok := s.value(el)
		if !ok {
			continue
		}
		if !s.Mode.list() {
			return v
		}
		values = append(values, v)
	}
	return parser.JoinValues(values, s.Unique)
}

func (s Strategy) value(el render.Element) (string, bool) {
	var raw string
	if s.Mode.attr() {
		v, ok := el.Attr(s.Attr)
		if !ok {
			return "", false
		}
		raw = v
	} else {
		raw = el.Text()
	}

	v := parser.NormalizeText(raw)
	if v == "" {
		return "", false
	}
	if s.Match != nil && !s.Match.MatchString(v) {
		return "", false
	}
	if s.Contains != "" && !strings.Contains(v, s.Contains) {
		return "", false
	}
	return v, true
}

func (e *Extractor) relate(ctx context.Context, page render.Page, spec RelationSpec) (names, links string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("relation extraction panicked",
				slog.String("field", spec.NameField),
				slog.String("url", page.URL()),
				slog.Any("panic", r),
			)
			names, links = "", ""
		}
	}()

	var sections []render.Element
	for _, selector := range spec.Sections {
		if sections = page.Query(ctx, selector); len(sections) > 0 {
			break
		}
	}

	var nameValues, linkValues []string
	for _, section := range sections {
		for _, link := range section.Find(spec.Link) {
			if name := heading(section, link, spec); name != "" {
				nameValues = append(nameValues, name)
			}
			href, ok := link.Attr("href")
			href = strings.TrimSpace(href)
			if !ok || href == "" {
				continue
			}
			if spec.LinkContains == "" || strings.Contains(href, spec.LinkContains) {
				linkValues = append(linkValues, href)
			}
		}
	}
	return parser.JoinValues(nameValues, true), parser.JoinValues(linkValues, true)
}

// heading finds the name for link: a heading inside the link, otherwise
// the only heading of its scope ancestor within section. A scope holding
// several headings cannot be attributed and yields "".
func heading(section, link render.Element, spec RelationSpec) string {
	if spec.Heading == "" {
		return ""
	}
	if name := firstText(link.Find(spec.Heading)); name != "" {
		return name
	}
	if spec.Scope == "" {
		return ""
	}
	scope, ok := link.Closest(spec.Scope)
	if !ok || !section.Contains(scope) {
		return ""
	}
	var found []string
	for _, h := range scope.Find(spec.Heading) {
		if text := parser.NormalizeText(h.Text()); text != "" {
			found = append(found, text)
		}
	}
	if len(found) != 1 {
		return ""
	}
	return found[0]
}

func firstText(elements []render.Element) string {
	for _, el := range elements {
		if text := parser.NormalizeText(el.Text()); text != "" {
			return text
		}
	}
	return ""
}
