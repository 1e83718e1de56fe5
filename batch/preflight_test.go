package batch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/gleaner/extract"
)

func TestNeedsBrowser(t *testing.T) {
	longText := strings.Repeat("plenty of visible body text here. ", 20)

	tests := []struct {
		name string
		body string
		want bool
	}{
		{
			"spa shell",
			`<html><body><div id="root"></div><script src="app.js"></script></body></html>`,
			true,
		},
		{
			"noscript warning",
			`<html><body>` + longText + `<noscript>Please enable JavaScript to continue</noscript></body></html>`,
			true,
		},
		{
			"static content",
			`<html><body><article>` + longText + `</article></body></html>`,
			false,
		},
		{
			"nearly empty body",
			`<html><body><p>hi</p></body></html>`,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsBrowser([]byte(tt.body)); got != tt.want {
				t.Errorf("needsBrowser = %v, want %v", got, tt.want)
			}
		})
	}
}

func staticCommentPage(n int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b,
			`<div class="comment-item"><a class="username">user%d</a><p class="comment-content">a reasonably long static comment body number %d with enough words to count as visible text</p><em class="like-count">%d</em></div>`,
			i, i, i)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func TestTryStatic_ExtractsFromStaticPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, staticCommentPage(5))
	}))
	defer srv.Close()

	p := newPreflight(5*time.Second, "", extract.NewExtractor(nil, slog.Default()), slog.Default())
	records, ok := p.tryStatic(context.Background(), srv.URL+"/item/1")
	if !ok {
		t.Fatal("tryStatic = false for a static page with records")
	}
	if len(records) != 5 {
		t.Errorf("got %d records, want 5", len(records))
	}
}

func TestTryStatic_RemembersBrowserOnlyDomains(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, `<html><body><div id="root"></div></body></html>`)
	}))
	defer srv.Close()

	p := newPreflight(5*time.Second, "", extract.NewExtractor(nil, slog.Default()), slog.Default())

	if _, ok := p.tryStatic(context.Background(), srv.URL+"/item/1"); ok {
		t.Fatal("tryStatic = true for an SPA shell")
	}
	if hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}

	// Same domain: the probe must be skipped entirely.
	if _, ok := p.tryStatic(context.Background(), srv.URL+"/item/2"); ok {
		t.Fatal("tryStatic = true on a known browser-only domain")
	}
	if hits != 1 {
		t.Errorf("hits = %d after second call, want still 1", hits)
	}
}
