// Package loader drives a rendering surface until enough records are
// visible: it probes the record count, performs randomized human-like
// scroll interactions, clicks "load more" affordances, and decides when
// the page has genuinely stopped producing content.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/use-agent/gleaner/config"
	"github.com/use-agent/gleaner/models"
	"github.com/use-agent/gleaner/surface"
)

// StagnationPolicy decides the outcome when loading stagnates before the
// target count is reached.
type StagnationPolicy string

const (
	// PolicyPartial treats a stagnated page as success when it holds at
	// least one record: stagnation usually means end of content.
	PolicyPartial StagnationPolicy = "partial"

	// PolicyStrict fails the item whenever the target was not reached.
	PolicyStrict StagnationPolicy = "strict"
)

// defaultLoadMoreSelectors is the ranked list of "load more" affordances,
// most specific first.
var defaultLoadMoreSelectors = []string{
	`[data-e2e="load-more-comment"]`,
	".load-more",
	`[class*="load-more"]`,
	`button[class*="more"]`,
	`[data-testid="load-more"]`,
}

// Result summarizes one load phase.
type Result struct {
	// Count is the final visible record count.
	Count int

	// Iterations is the number of load iterations performed.
	Iterations int

	// Exhausted is true when loading stopped on stagnation rather than by
	// reaching the target.
	Exhausted bool
}

// Loader is the scroll/load controller. It is stateless across items: all
// per-item load state lives on the stack of LoadUntil and is discarded when
// the call returns.
type Loader struct {
	containerSelectors []string
	loadMoreSelectors  []string

	maxIterations       int
	stagnationThreshold int
	policy              StagnationPolicy

	logger *slog.Logger

	// rngMu guards rng: one Loader serves every worker pipeline, so
	// concurrent LoadUntil calls draw from it simultaneously.
	rngMu sync.Mutex
	rng   *rand.Rand

	// sleep blocks for d or until ctx is done; overridable in tests so
	// they run without wall-clock waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Loader. containerSelectors are the ranked count probes
// (normally extract.ContainerSelectors of the strategy list).
func New(cfg config.LoaderConfig, containerSelectors []string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 100
	}
	threshold := cfg.StagnationThreshold
	if threshold <= 0 {
		threshold = 5
	}
	policy := PolicyPartial
	if cfg.StagnationPolicy == string(PolicyStrict) {
		policy = PolicyStrict
	}
	return &Loader{
		containerSelectors:  containerSelectors,
		loadMoreSelectors:   defaultLoadMoreSelectors,
		maxIterations:       maxIter,
		stagnationThreshold: threshold,
		policy:              policy,
		logger:              logger,
		rng:                 rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		sleep:               sleepCtx,
	}
}

// LoadUntil drives s until at least target records are visible, the count
// stagnates, or maxIterations elapse. It always terminates. Surface
// failures inside an interaction are treated as no-ops for that iteration;
// markup instability is expected, not exceptional.
func (l *Loader) LoadUntil(ctx context.Context, s surface.Surface, target int) (Result, error) {
	var (
		prevCount int
		streak    int
		count     int
	)

	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return Result{Count: count, Iterations: iteration - 1}, err
		}

		count = l.probeCount(s)

		if count >= target {
			l.logger.Info("target count reached", "count", count, "iterations", iteration)
			return Result{Count: count, Iterations: iteration}, nil
		}

		if count == prevCount {
			streak++
			if streak >= l.stagnationThreshold {
				l.logger.Info("record count stagnated, stopping",
					"count", count,
					"streak", streak,
					"iterations", iteration,
				)
				return l.finishExhausted(count, iteration, target)
			}
		} else {
			streak = 0
			prevCount = count
		}

		l.interact(ctx, s)
		clicked := l.tryLoadMore(ctx, s)

		if err := l.sleep(ctx, l.durBetween(1500*time.Millisecond, 4*time.Second)); err != nil {
			return Result{Count: count, Iterations: iteration}, err
		}
		if clicked {
			if err := l.sleep(ctx, l.durBetween(2*time.Second, 4*time.Second)); err != nil {
				return Result{Count: count, Iterations: iteration}, err
			}
		}

		if iteration%10 == 0 {
			l.logger.Info("load progress", "iterations", iteration, "count", count, "target", target)
		}
	}

	// Iteration budget spent: hand whatever is on the page to extraction.
	l.logger.Warn("iteration budget exhausted before target", "count", count, "target", target)
	return Result{Count: count, Iterations: l.maxIterations}, nil
}

// finishExhausted applies the stagnation policy.
func (l *Loader) finishExhausted(count, iterations, target int) (Result, error) {
	res := Result{Count: count, Iterations: iterations, Exhausted: true}
	if l.policy == PolicyStrict && count < target {
		return res, models.NewHarvestError(
			models.ErrCodeStagnated,
			fmt.Sprintf("stagnated at %d of %d records", count, target),
			nil,
		)
	}
	if count == 0 {
		return res, models.NewHarvestError(models.ErrCodeStagnated, "no records ever appeared", nil)
	}
	return res, nil
}

// WaitForContainers polls the container selectors until at least one
// matches, for up to maxAttempts polls spaced pollInterval apart. Used
// during the post-navigation settle phase.
func (l *Loader) WaitForContainers(ctx context.Context, s surface.Surface, maxAttempts int, pollInterval time.Duration) bool {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if l.probeCount(s) > 0 {
			return true
		}
		if err := l.sleep(ctx, pollInterval); err != nil {
			return false
		}
	}
	return l.probeCount(s) > 0
}

// probeCount returns the visible record count using the first container
// selector that matches anything. Probe errors read as zero: an unstable
// DOM mid-load is indistinguishable from "not loaded yet".
func (l *Loader) probeCount(s surface.Surface) int {
	for _, sel := range l.containerSelectors {
		n, err := s.Count(sel)
		if err != nil {
			continue
		}
		if n > 0 {
			return n
		}
	}
	return 0
}

// interact performs one randomized human-like scroll interaction. Fixed
// large jumps are a detectable automation signature, so the interaction
// kind, distance, and pacing all vary.
func (l *Loader) interact(ctx context.Context, s surface.Surface) {
	switch l.intBetween(0, 2) {
	case 0:
		l.smoothScroll(ctx, s)
	case 1:
		l.jumpScroll(s)
	default:
		l.wheelScroll(ctx, s)
	}
}

// smoothScroll scrolls 300-800px split into 5-15 sub-steps with 50-150ms
// pauses, approximating a drag on a touchpad.
func (l *Loader) smoothScroll(ctx context.Context, s surface.Surface) {
	top, err := s.ScrollTop()
	if err != nil {
		l.logger.Debug("scroll offset probe failed", "error", err)
		return
	}
	distance := l.intBetween(300, 800)
	steps := l.intBetween(5, 15)
	stepSize := distance / steps

	for i := 1; i <= steps; i++ {
		if evalErr := s.Eval(fmt.Sprintf("window.scrollTo(0, %d)", top+stepSize*i)); evalErr != nil {
			l.logger.Debug("smooth scroll step failed", "error", evalErr)
			return
		}
		if l.sleep(ctx, l.durBetween(50*time.Millisecond, 150*time.Millisecond)) != nil {
			return
		}
	}
}

// jumpScroll performs a single 400-1000px jump.
func (l *Loader) jumpScroll(s surface.Surface) {
	if err := s.Eval(fmt.Sprintf("window.scrollBy(0, %d)", l.intBetween(400, 1000))); err != nil {
		l.logger.Debug("jump scroll failed", "error", err)
	}
}

// wheelScroll emits 3-8 pointer-wheel ticks of 100-300px each.
func (l *Loader) wheelScroll(ctx context.Context, s surface.Surface) {
	ticks := l.intBetween(3, 8)
	for i := 0; i < ticks; i++ {
		if err := s.Wheel(float64(l.intBetween(100, 300))); err != nil {
			l.logger.Debug("wheel tick failed", "error", err)
			return
		}
		if l.sleep(ctx, l.durBetween(100*time.Millisecond, 300*time.Millisecond)) != nil {
			return
		}
	}
}

// tryLoadMore walks the ranked load-more selectors and clicks the first
// visible and enabled match, scrolling it into view first. Returns whether
// a click landed. All failures are swallowed; a missing affordance is the
// common case, not an error.
func (l *Loader) tryLoadMore(ctx context.Context, s surface.Surface) bool {
	for _, sel := range l.loadMoreSelectors {
		els, err := s.Elements(sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			visible, vErr := el.Visible()
			if vErr != nil || !visible {
				continue
			}
			enabled, eErr := el.Enabled()
			if eErr != nil || !enabled {
				continue
			}
			if el.ScrollIntoView() != nil {
				continue
			}
			if l.sleep(ctx, 500*time.Millisecond) != nil {
				return false
			}
			if el.Click() != nil {
				continue
			}
			l.logger.Debug("load-more clicked", "selector", sel)
			return true
		}
	}
	return false
}

func (l *Loader) intBetween(min, max int) int {
	l.rngMu.Lock()
	defer l.rngMu.Unlock()
	return min + l.rng.IntN(max-min+1)
}

func (l *Loader) durBetween(min, max time.Duration) time.Duration {
	l.rngMu.Lock()
	defer l.rngMu.Unlock()
	return min + time.Duration(l.rng.Int64N(int64(max-min+1)))
}

// sleepCtx blocks for d or until ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
