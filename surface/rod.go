package surface

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/gleaner/config"
	"github.com/use-agent/gleaner/models"
	"github.com/ysmood/gson"
)

// userAgents is the pool of desktop Chrome user agents; each session picks
// one at random so consecutive sessions do not share a fingerprint.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
}

// RodFactory launches one fresh Chromium process per session. Sessions are
// deliberately not pooled: destroying the whole browser between items
// resets cookies and fingerprint-like state, trading speed for detection
// avoidance.
type RodFactory struct {
	cfg    config.BrowserConfig
	logger *slog.Logger
}

// NewRodFactory creates a session factory from browser configuration.
func NewRodFactory(cfg config.BrowserConfig, logger *slog.Logger) *RodFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodFactory{cfg: cfg, logger: logger}
}

// NewSession launches a browser, opens a single page with stealth applied,
// and returns it as a Surface. Stealth JS and resource blocking are
// installed before any navigation; they only take effect for navigations
// that happen after they are mounted.
func (f *RodFactory) NewSession(ctx context.Context) (Surface, error) {
	l := launcher.New().
		Headless(f.cfg.Headless).
		NoSandbox(f.cfg.NoSandbox)

	if f.cfg.BrowserBin != "" {
		l = l.Bin(f.cfg.BrowserBin)
	}
	if f.cfg.Proxy != "" {
		l = l.Proxy(f.cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("window-size"), "1920,1080")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewHarvestError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, models.NewHarvestError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}

	// Stealth JS must be installed before the first navigation.
	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		f.logger.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
	}

	ua := userAgents[rand.IntN(len(userAgents))]
	if uaErr := (proto.NetworkSetUserAgentOverride{UserAgent: ua}).Call(page); uaErr != nil {
		f.logger.Warn("user agent override failed", "error", uaErr)
	}

	router := mountHijack(page, f.cfg.BlockedResourceTypes)

	s := &rodSurface{
		browser:   browser,
		launcher:  l,
		page:      page.Context(ctx),
		rawPage:   page,
		router:    router,
		navLimit:  f.cfg.NavigationTimeout,
		logger:    f.logger,
		userAgent: ua,
	}
	f.logger.Debug("session created", "userAgent", ua)
	return s, nil
}

// rodSurface is the Rod-backed Surface. One browser process, one page.
type rodSurface struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page // request-context-bound
	rawPage  *rod.Page // original reference, used for cleanup
	router   *rod.HijackRouter
	navLimit time.Duration
	logger   *slog.Logger

	userAgent string
}

func (s *rodSurface) Navigate(ctx context.Context, target string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.navLimit)
	defer cancel()
	p := s.rawPage.Context(navCtx)

	// Arriving from a search result looks more organic than a bare visit.
	if u, parseErr := url.Parse(target); parseErr == nil {
		referer := "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: proto.NetworkHeaders{"Referer": gson.New(referer)},
		}.Call(s.rawPage)
	}

	if err := p.Navigate(target); err != nil {
		return categorizeNavError(err)
	}
	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		s.logger.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"error", stableErr,
		)
	}
	return nil
}

func (s *rodSurface) Elements(selector string) ([]Element, error) {
	els, err := s.page.Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out, nil
}

func (s *rodSurface) Count(selector string) (int, error) {
	res, err := s.page.Eval(`(sel) => document.querySelectorAll(sel).length`, selector)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (s *rodSurface) Eval(js string) error {
	_, err := s.page.Eval(js)
	return err
}

func (s *rodSurface) ScrollTop() (int, error) {
	res, err := s.page.Eval(`() => window.pageYOffset`)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (s *rodSurface) Wheel(deltaY float64) error {
	return s.page.Mouse.Scroll(0, deltaY, 1)
}

func (s *rodSurface) HTML() (string, error) {
	return s.page.HTML()
}

// Close tears the whole browser process down. The session is never reused.
func (s *rodSurface) Close() error {
	if s.router != nil {
		_ = s.router.Stop()
	}
	// Use the original page reference so cleanup succeeds even when the
	// request context has expired.
	pageErr := s.rawPage.Close()
	browserErr := s.browser.Close()
	s.launcher.Kill()
	return errors.Join(pageErr, browserErr)
}

// rodElement wraps a Rod element handle.
type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text() (string, error) { return e.el.Text() }

func (e *rodElement) Visible() (bool, error) { return e.el.Visible() }

func (e *rodElement) Enabled() (bool, error) {
	disabled, err := e.el.Property("disabled")
	if err != nil {
		return false, err
	}
	return !disabled.Bool(), nil
}

func (e *rodElement) ScrollIntoView() error { return e.el.ScrollIntoView() }

func (e *rodElement) Click() error { return e.el.Click(proto.InputMouseButtonLeft, 1) }

// categorizeNavError wraps raw navigation errors into typed HarvestErrors.
func categorizeNavError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewHarvestError(models.ErrCodeTimeout, "navigation timed out", err)
	case errors.Is(err, context.Canceled):
		return models.NewHarvestError(models.ErrCodeTimeout, "navigation canceled", err)
	default:
		return models.NewHarvestError(models.ErrCodeNavigation, "navigation to target URL failed", err)
	}
}
