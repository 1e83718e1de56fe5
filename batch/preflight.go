package batch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	tls2 "github.com/refraction-networking/utls"
	"github.com/use-agent/gleaner/extract"
	"github.com/use-agent/gleaner/models"
	"golang.org/x/net/html"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// preflight is the static fast path: fetch the item over plain HTTP with a
// Chrome TLS fingerprint and extract directly from the static HTML when the
// page does not need JS rendering. A preflight failure never fails the
// item; it only routes it to the browser path.
type preflight struct {
	timeout   time.Duration
	proxy     string
	extractor *extract.Extractor
	logger    *slog.Logger

	// browserOnly remembers domains where the static path already failed
	// this run, so later items on the same domain skip the probe.
	mu          sync.Mutex
	browserOnly map[string]struct{}
}

func newPreflight(timeout time.Duration, proxy string, extractor *extract.Extractor, logger *slog.Logger) *preflight {
	return &preflight{
		timeout:     timeout,
		proxy:       proxy,
		extractor:   extractor,
		logger:      logger,
		browserOnly: make(map[string]struct{}),
	}
}

// tryStatic attempts the fast path for one item. ok is true only when the
// static HTML produced records.
func (p *preflight) tryStatic(ctx context.Context, item string) ([]models.Record, bool) {
	domain := extractDomain(item)
	p.mu.Lock()
	_, skip := p.browserOnly[domain]
	p.mu.Unlock()
	if skip {
		return nil, false
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, err := p.fetch(fetchCtx, item)
	if err != nil {
		p.logger.Debug("preflight fetch failed, using browser", "item", item, "error", err)
		p.markBrowserOnly(domain)
		return nil, false
	}

	if needsBrowser(body) {
		p.logger.Debug("preflight detected JS-dependent page", "item", item)
		p.markBrowserOnly(domain)
		return nil, false
	}

	doc, err := extract.ParseSnapshot(string(body))
	if err != nil {
		p.markBrowserOnly(domain)
		return nil, false
	}
	records, err := p.extractor.ExtractAll(doc, item)
	if err != nil || len(records) == 0 {
		p.markBrowserOnly(domain)
		return nil, false
	}

	p.logger.Info("static fast path succeeded", "item", item, "records", len(records))
	return records, true
}

func (p *preflight) markBrowserOnly(domain string) {
	p.mu.Lock()
	p.browserOnly[domain] = struct{}{}
	p.mu.Unlock()
}

// fetch retrieves the URL via plain HTTP with a Chrome TLS fingerprint.
func (p *preflight) fetch(ctx context.Context, targetURL string) ([]byte, error) {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr)
		},
	}
	if p.proxy != "" {
		if proxyURL, err := url.Parse(p.proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client := &http.Client{Transport: transport}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("preflight: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("preflight: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("preflight: HTTP %d for %s", resp.StatusCode, targetURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024)) // 10 MB cap
	if err != nil {
		return nil, fmt.Errorf("preflight: read body: %w", err)
	}
	return body, nil
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint via utls.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{
		ServerName: host,
	}, tls2.HelloChrome_Auto)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

var reNoscript = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?)\s+javascript`)

// needsBrowser decides whether the HTTP-fetched HTML likely needs JS
// rendering (SPA shell, noscript warnings, JS-heavy page with little text).
func needsBrowser(body []byte) bool {
	bodyText := visibleText(body)

	// Very little visible text in <body> means an SPA shell.
	if len(bodyText) < 200 {
		return true
	}

	lower := strings.ToLower(string(body))
	if strings.Contains(lower, `<div id="root"></div>`) ||
		strings.Contains(lower, `<div id="app"></div>`) ||
		strings.Contains(lower, `<div id="__next"></div>`) {
		return true
	}
	if reNoscript.MatchString(lower) {
		return true
	}
	if strings.Count(lower, "<script") > 10 && len(bodyText) < 500 {
		return true
	}
	return false
}

// visibleText extracts the visible text from within <body>, stripping all
// tags and <script>/<style> content. Used for heuristic analysis only.
func visibleText(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	var buf strings.Builder
	inBody := false
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "body" {
				inBody = true
			}
			if tag == "script" || tag == "style" || tag == "noscript" {
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "script" || tag == "style" || tag == "noscript" {
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				text := strings.TrimSpace(string(tokenizer.Text()))
				if text != "" {
					buf.WriteString(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
}

// extractDomain returns the hostname of a URL, or the raw string when it
// does not parse.
func extractDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
