package extract

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-scrape-startups/models"
	"github.com/aluiziolira/go-scrape-startups/render"
	"github.com/aluiziolira/go-scrape-startups/render/rendertest"
)

const pageURL = "http://example.test/companies/acme"

func loadPage(t *testing.T, html string) render.Page {
	t.Helper()
	site := &rendertest.Site{Pages: map[string]string{pageURL: html}}
	page, err := site.NewPage(context.Background())
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	if err := page.Navigate(context.Background(), pageURL, render.ReadinessCommit, time.Second); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	return page
}

const companyHTML = `<html><head>
<meta property="og:title" content="Acme (meta)">
<meta name="description" content="Meta description">
</head><body><main>
<h1>  Acme
  Corp </h1>
<div class="flex"><span>Active</span><a href="/companies?batch=Winter%202021"><span>Winter 2021</span></a></div>
<div class="prose"><p>Rockets for   everyone.</p><p>Second paragraph.</p></div>
<section><h2>Founders</h2>
  <div class="founders">
    <div class="card"><a href="https://www.linkedin.com/in/ada"><h4>Ada</h4></a></div>
    <div class="card"><a href="https://www.linkedin.com/in/anon">profile</a></div>
  </div>
</section>
</main></body></html>`

func TestExtractDefaultSchema(t *testing.T) {
	record := Default().Extract(context.Background(), loadPage(t, companyHTML))

	want := map[string]string{
		models.FieldCompanyName:      "Acme Corp",
		models.FieldBatch:            "Winter 2021",
		models.FieldDescription:      "Rockets for everyone.",
		models.FieldFounderNames:     "Ada",
		models.FieldFounderLinkedIns: "https://www.linkedin.com/in/ada, https://www.linkedin.com/in/anon",
	}
	if diff := cmp.Diff(want, record.Fields); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
	if record.URL != pageURL {
		t.Fatalf("record url = %q, want %q", record.URL, pageURL)
	}
}

func TestExtractFallsBackInOrder(t *testing.T) {
	html := `<html><head>
<meta property="og:title" content="Fallback Inc">
<meta name="description" content="From meta">
</head><body><span>S19</span></body></html>`

	record := Default().Extract(context.Background(), loadPage(t, html))

	if got := record.Get(models.FieldCompanyName); got != "Fallback Inc" {
		t.Fatalf("company name = %q, want meta fallback", got)
	}
	if got := record.Get(models.FieldDescription); got != "From meta" {
		t.Fatalf("description = %q, want meta fallback", got)
	}
	if got := record.Get(models.FieldBatch); got != "S19" {
		t.Fatalf("batch = %q, want S19", got)
	}
}

func TestExtractMissingFieldDegradesToEmpty(t *testing.T) {
	html := `<html><body><h1>Only Name</h1></body></html>`

	record := Default().Extract(context.Background(), loadPage(t, html))

	want := map[string]string{
		models.FieldCompanyName:      "Only Name",
		models.FieldBatch:            "",
		models.FieldDescription:      "",
		models.FieldFounderNames:     "",
		models.FieldFounderLinkedIns: "",
	}
	if diff := cmp.Diff(want, record.Fields); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestStrategyModes(t *testing.T) {
	html := `<html><body>
<ul>
  <li><a href="/a" data-id="1">Alpha</a></li>
  <li><a href="/b">Beta</a></li>
  <li><a href="/a" data-id="3">Alpha</a></li>
  <li><a href="/c" data-id="">  </a></li>
</ul>
</body></html>`
	page := loadPage(t, html)

	tests := []struct {
		name     string
		strategy Strategy
		want     string
	}{
		{name: "text first", strategy: Strategy{Selector: "li a", Mode: ModeText}, want: "Alpha"},
		{name: "attr first", strategy: Strategy{Selector: "li a", Mode: ModeAttr, Attr: "data-id"}, want: "1"},
		{name: "attr missing everywhere", strategy: Strategy{Selector: "li a", Mode: ModeAttr, Attr: "title"}, want: ""},
		{name: "text list keeps duplicates", strategy: Strategy{Selector: "li a", Mode: ModeTextList}, want: "Alpha, Beta, Alpha"},
		{name: "text list unique", strategy: Strategy{Selector: "li a", Mode: ModeTextList, Unique: true}, want: "Alpha, Beta"},
		{name: "attr list unique", strategy: Strategy{Selector: "li a", Mode: ModeAttrList, Attr: "href", Unique: true}, want: "/a, /b, /c"},
		{name: "match filter", strategy: Strategy{Selector: "li a", Mode: ModeText, Match: regexp.MustCompile(`^B`)}, want: "Beta"},
		{name: "contains filter", strategy: Strategy{Selector: "li a", Mode: ModeAttrList, Attr: "href", Contains: "/b"}, want: "/b"},
		{name: "no match", strategy: Strategy{Selector: "table", Mode: ModeText}, want: ""},
		{name: "invalid selector", strategy: Strategy{Selector: "li[", Mode: ModeText}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := New([]FieldSpec{{Name: "value", Strategies: []Strategy{tt.strategy}}}, nil)
			if got := ex.Extract(context.Background(), page).Get("value"); got != tt.want {
				t.Fatalf("value = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRelationHeadingFromScope(t *testing.T) {
	html := `<html><body>
<div class="founder-list">
  <div class="card"><h3>Grace Hopper</h3><a href="https://twitter.com/grace">x</a><a href="https://linkedin.com/in/grace">in</a></div>
  <div class="card"><h3>Alan</h3><h3>Turing</h3><a href="https://linkedin.com/in/alan">in</a></div>
</div>
</body></html>`

	record := Default().Extract(context.Background(), loadPage(t, html))

	if got := record.Get(models.FieldFounderNames); got != "Grace Hopper" {
		t.Fatalf("founder names = %q, want Grace Hopper", got)
	}
	want := "https://linkedin.com/in/grace, https://linkedin.com/in/alan"
	if got := record.Get(models.FieldFounderLinkedIns); got != want {
		t.Fatalf("founder links = %q, want %q", got, want)
	}
}

func TestRelationScopeStaysInsideSection(t *testing.T) {
	html := `<html><body>
<div id="page"><h3>Latest News</h3>
  <section><h2>Founders</h2><a href="https://linkedin.com/in/solo">in</a></section>
</div>
</body></html>`

	record := Default().Extract(context.Background(), loadPage(t, html))

	if got := record.Get(models.FieldFounderNames); got != "" {
		t.Fatalf("founder names = %q, want empty", got)
	}
	if got := record.Get(models.FieldFounderLinkedIns); got != "https://linkedin.com/in/solo" {
		t.Fatalf("founder links = %q", got)
	}
}

func TestRelationSectionFallback(t *testing.T) {
	html := `<html><body>
<section><h2>Founders</h2>
  <div><a href="https://linkedin.com/in/ada"><h4>Ada</h4></a></div>
  <div><a href="https://linkedin.com/in/ada"><h4>Ada</h4></a></div>
</section>
</body></html>`

	record := Default().Extract(context.Background(), loadPage(t, html))

	if got := record.Get(models.FieldFounderNames); got != "Ada" {
		t.Fatalf("founder names = %q, want deduplicated Ada", got)
	}
	if got := record.Get(models.FieldFounderLinkedIns); got != "https://linkedin.com/in/ada" {
		t.Fatalf("founder links = %q", got)
	}
}

func TestColumns(t *testing.T) {
	if diff := cmp.Diff(models.Columns, Default().Columns()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
}

type panicElement struct{}

func (panicElement) Text() string { panic("node detached") }
func (panicElement) Attr(string) (string, bool) { panic("node detached") }
func (panicElement) Find(string) []render.Element { panic("node detached") }
func (panicElement) Closest(string) (render.Element, bool) { panic("node detached") }
func (panicElement) Contains(render.Element) bool { panic("node detached") }

type panicPage struct {
	render.Page
	inner render.Page
}

func (p panicPage) Query(ctx context.Context, selector string) []render.Element {
	if selector == "h1" || selector == `div[class*="founder"]` {
		return []render.Element{panicElement{}}
	}
	return p.inner.Query(ctx, selector)
}

func (p panicPage) URL() string { return p.inner.URL() }

func TestExtractRecoversFromPanics(t *testing.T) {
	inner := loadPage(t, companyHTML)
	record := Default().Extract(context.Background(), panicPage{Page: inner, inner: inner})

	if got := record.Get(models.FieldCompanyName); got != "" {
		t.Fatalf("company name = %q, want empty after panic", got)
	}
	if got := record.Get(models.FieldFounderNames); got != "" {
		t.Fatalf("founder names = %q, want empty after panic", got)
	}
	if got := record.Get(models.FieldDescription); got != "Rockets for everyone." {
		t.Fatalf("description = %q, other fields must be unaffected", got)
	}
}
