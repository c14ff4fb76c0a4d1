package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/quarrydev/quarry/internal/log"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Sample Page</title>
  <meta name="description" content="A page for testing">
  <meta name="keywords" content="testing, parsing">
  <meta property="og:title" content="Sample OG Title">
  <meta property="og:type" content="article">
</head>
<body>
  <nav>Navigation menu</nav>
  <header>Site header</header>
  <h1>Main Heading</h1>
  <p>First paragraph of real content.</p>
  <p>Second paragraph with more detail.</p>
  <script>console.log("should not appear")</script>
  <footer>Copyright footer</footer>
</body>
</html>`

func newTestHTML(t *testing.T, cfg map[string]any) *HTML {
	t.Helper()
	return NewHTML(cfg, log.NewNop())
}

func TestHTMLParseExcludesBoilerplate(t *testing.T) {
	p := newTestHTML(t, nil)
	doc, err := p.Parse([]byte(samplePage), "https://example.com/docs/sample")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	for _, excluded := range []string{"Navigation menu", "Site header", "Copyright footer", "should not appear"} {
		if strings.Contains(doc.Content, excluded) {
			t.Errorf("content contains excluded text %q", excluded)
		}
	}
	for _, wanted := range []string{"Main Heading", "First paragraph of real content.", "Second paragraph with more detail."} {
		if !strings.Contains(doc.Content, wanted) {
			t.Errorf("content missing %q", wanted)
		}
	}
}

func TestHTMLParseTitle(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"title tag", samplePage, "Sample Page"},
		{"heading fallback", `<html><body><h2>Heading Title</h2><p>Body</p></body></html>`, "Heading Title"},
		{"source fallback", `<html><body><p>No titles here</p></body></html>`, "https://example.com/page"},
	}
	p := newTestHTML(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := p.Parse([]byte(tt.html), "https://example.com/page")
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if doc.Title != tt.want {
				t.Errorf("Title = %q, want %q", doc.Title, tt.want)
			}
		})
	}
}

func TestHTMLParseMetadata(t *testing.T) {
	p := newTestHTML(t, nil)
	doc, err := p.Parse([]byte(samplePage), "https://example.com/docs/sample")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := map[string]any{
		"domain":      "example.com",
		"path":        "/docs/sample",
		"description": "A page for testing",
		"keywords":    "testing, parsing",
		"og_title":    "Sample OG Title",
		"og_type":     "article",
	}
	for key, value := range want {
		if doc.Metadata[key] != value {
			t.Errorf("Metadata[%q] = %v, want %v", key, doc.Metadata[key], value)
		}
	}
	if doc.SourceType != "html" {
		t.Errorf("SourceType = %q, want html", doc.SourceType)
	}
}

func TestHTMLParseCustomExcludes(t *testing.T) {
	p := newTestHTML(t, map[string]any{"exclude_elements": []any{"aside"}})
	doc, err := p.Parse([]byte(`<html><body><nav>menu</nav><aside>sidebar</aside><p>body</p></body></html>`), "https://example.com/")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if strings.Contains(doc.Content, "sidebar") {
		t.Error("content contains text from configured excluded element")
	}
	if !strings.Contains(doc.Content, "menu") {
		t.Error("default exclusions applied despite explicit exclude_elements override")
	}
}

func TestHTMLFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "quarry/") {
			t.Errorf("User-Agent = %q", ua)
		}
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	p := newTestHTML(t, nil)
	content, err := p.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(content) != samplePage {
		t.Error("fetched content does not match served page")
	}
}

func TestHTMLFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := newTestHTML(t, nil)
	if _, err := p.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("Fetch() error = nil, want status error")
	}
}

func TestExtractLinks(t *testing.T) {
	page := `<html><body>
		<a href="https://example.com/abs">absolute</a>
		<a href="/relative">relative</a>
		<a href="page#section">fragment</a>
		<a href="page#other">fragment dup</a>
		<a href="mailto:team@example.com">mail</a>
		<a href="ftp://example.com/file">ftp</a>
		<a href="https://example.com/abs">duplicate</a>
	</body></html>`

	links, err := ExtractLinks([]byte(page), "https://example.com/docs/index.html")
	if err != nil {
		t.Fatalf("ExtractLinks() error = %v", err)
	}
	want := []string{
		"https://example.com/abs",
		"https://example.com/relative",
		"https://example.com/docs/page",
	}
	if !reflect.DeepEqual(links, want) {
		t.Errorf("ExtractLinks() = %v, want %v", links, want)
	}
}

func TestExtractLinksEmptyPage(t *testing.T) {
	links, err := ExtractLinks([]byte(`<html><body><p>no links</p></body></html>`), "https://example.com/")
	if err != nil {
		t.Fatalf("ExtractLinks() error = %v", err)
	}
	if len(links) != 0 {
		t.Errorf("ExtractLinks() = %v, want empty", links)
	}
}
