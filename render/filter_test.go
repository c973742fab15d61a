package render

import "testing"

func TestBlockHeavy(t *testing.T) {
	tests := []struct {
		kind     ResourceKind
		expected bool
	}{
		{kind: KindImage, expected: true},
		{kind: KindFont, expected: true},
		{kind: KindMedia, expected: true},
		{kind: KindDocument, expected: false},
		{kind: KindScript, expected: false},
		{kind: KindStylesheet, expected: false},
		{kind: KindXHR, expected: false},
		{kind: KindOther, expected: false},
		{kind: ResourceKind("Manifest"), expected: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := BlockHeavy(tt.kind); got != tt.expected {
				t.Fatalf("BlockHeavy(%q) = %v, want %v", tt.kind, got, tt.expected)
			}
		})
	}
}

func TestClassifyURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected ResourceKind
	}{
		{name: "page", url: "https://example.test/companies/acme", expected: KindDocument},
		{name: "html", url: "https://example.test/index.html", expected: KindDocument},
		{name: "image with query", url: "https://cdn.example.test/logo.PNG?w=200", expected: KindImage},
		{name: "font", url: "https://cdn.example.test/inter.woff2", expected: KindFont},
		{name: "media", url: "https://cdn.example.test/intro.mp4", expected: KindMedia},
		{name: "script", url: "https://cdn.example.test/app.js", expected: KindScript},
		{name: "unknown extension", url: "https://cdn.example.test/blob.bin", expected: KindOther},
		{name: "unparseable", url: "://bad url", expected: KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyURL(tt.url); got != tt.expected {
				t.Fatalf("ClassifyURL(%q) = %q, want %q", tt.url, got, tt.expected)
			}
		})
	}
}

func TestFilterBlocksFailsOpen(t *testing.T) {
	var nilFilter Filter
	if nilFilter.Blocks(KindImage) {
		t.Fatalf("nil filter should allow")
	}

	panicking := Filter(func(ResourceKind) bool {
		panic("classification failed")
	})
	if panicking.Blocks(KindImage) {
		t.Fatalf("panicking filter should allow")
	}

	if !Filter(BlockHeavy).Blocks(KindFont) {
		t.Fatalf("BlockHeavy filter should block fonts")
	}
}
