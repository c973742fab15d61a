package extract

import (
	"github.com/aluiziolira/go-scrape-startups/models"
	"github.com/aluiziolira/go-scrape-startups/parser"
)

// DefaultFields reads a YC company page.
func DefaultFields() []FieldSpec {
	return []FieldSpec{
		{
			Name: models.FieldCompanyName,
			Strategies: []Strategy{
				{Selector: "h1", Mode: ModeText},
				{Selector: `meta[property="og:title"]`, Mode: ModeAttr, Attr: "content"},
			},
		},
		{
			Name: models.FieldBatch,
			Strategies: []Strategy{
				{Selector: `a[href*="batch="]`, Mode: ModeText, Match: parser.BatchPattern},
				{Selector: "span", Mode: ModeText, Match: parser.BatchPattern},
			},
		},
		{
			Name: models.FieldDescription,
			Strategies: []Strategy{
				{Selector: "div.prose p", Mode: ModeText},
				{Selector: "main p", Mode: ModeText},
				{Selector: `meta[name="description"]`, Mode: ModeAttr, Attr: "content"},
			},
		},
	}
}

// DefaultRelations pairs founders with their LinkedIn profiles.
func DefaultRelations() []RelationSpec {
	return []RelationSpec{
		{
			Sections:     []string{`div[class*="founder"]`, `section:contains("Founders")`},
			Link:         "a[href]",
			LinkContains: "linkedin.com",
			Heading:      "h3, h4",
			Scope:        "div",
			NameField:    models.FieldFounderNames,
			LinkField:    models.FieldFounderLinkedIns,
		},
	}
}

// DefaultRequired are the fields without which a page counts as not yet
// rendered.
var DefaultRequired = []string{models.FieldCompanyName}

// Default returns an Extractor for the YC company schema.
func Default() *Extractor {
	return New(DefaultFields(), DefaultRelations())
}
