// Package batch sequences items through the harvest pipeline, isolating
// per-item failures and pacing work to avoid burst patterns.
package batch

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/use-agent/gleaner/config"
	"github.com/use-agent/gleaner/extract"
	"github.com/use-agent/gleaner/loader"
	"github.com/use-agent/gleaner/models"
	"github.com/use-agent/gleaner/surface"
	"golang.org/x/time/rate"
)

// Orchestrator runs a batch of items. Each item gets a fresh, exclusively
// owned rendering session that is destroyed before the next item starts.
// No error propagates past the per-item boundary: failed items land in the
// failure set and the batch continues.
type Orchestrator struct {
	cfg       config.BatchConfig
	factory   surface.Factory
	loader    *loader.Loader
	extractor *extract.Extractor
	logger    *slog.Logger

	preflight *preflight
	limiter   *rate.Limiter

	// rngMu guards rng: workers draw pacing delays concurrently.
	rngMu sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	cfg config.BatchConfig,
	factory surface.Factory,
	ld *loader.Loader,
	ex *extract.Extractor,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	navsPerMinute := cfg.NavsPerMinute
	if navsPerMinute <= 0 {
		navsPerMinute = 6
	}
	return &Orchestrator{
		cfg:       cfg,
		factory:   factory,
		loader:    ld,
		extractor: ex,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(navsPerMinute/60.0), 1),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		sleep:     sleepCtx,
	}
}

// EnablePreflight turns on the HTTP static fast path.
func (o *Orchestrator) EnablePreflight(cfg config.PreflightConfig, proxy string) {
	if !cfg.Enabled {
		return
	}
	o.preflight = newPreflight(cfg.Timeout, proxy, o.extractor, o.logger)
}

// Run processes all items and returns the accumulated results. Items are
// dispatched in input order; with Workers > 1 they are distributed across
// that many independent pipelines, each owning at most one session at a
// time, all merging into the shared ResultSet.
//
// When ctx is canceled, in-flight items stop and whatever has been
// accumulated so far stays available to the caller for a best-effort flush.
func (o *Orchestrator) Run(ctx context.Context, items []string, tracker *Tracker) *ResultSet {
	results := NewResultSet()
	if tracker == nil {
		tracker = NewTracker(items)
	}
	defer tracker.Finish()

	workers := o.cfg.Workers
	if workers <= 1 {
		o.runSequential(ctx, items, tracker, results)
		return results
	}

	feed := make(chan string)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first := true
			for item := range feed {
				// Pace between items, never after a pipeline's last one.
				// Workers stay paced individually; simultaneous wake-ups
				// are their own burst signature.
				if !first {
					_ = o.sleep(ctx, o.durBetween(5*time.Second, 15*time.Second))
				}
				first = false
				o.harvestOne(ctx, item, tracker, results)
			}
		}()
	}

feedLoop:
	for _, item := range items {
		select {
		case feed <- item:
		case <-ctx.Done():
			break feedLoop
		}
	}
	close(feed)
	wg.Wait()

	o.logFinished(items, results)
	return results
}

func (o *Orchestrator) runSequential(ctx context.Context, items []string, tracker *Tracker, results *ResultSet) {
	for i, item := range items {
		if ctx.Err() != nil {
			o.logger.Warn("run interrupted", "processed", i, "total", len(items))
			break
		}
		o.logger.Info("processing item", "index", i+1, "total", len(items), "item", item)
		o.harvestOne(ctx, item, tracker, results)

		if i < len(items)-1 {
			if err := o.sleep(ctx, o.durBetween(5*time.Second, 15*time.Second)); err != nil {
				break
			}
		}
	}
	o.logFinished(items, results)
}

// harvestOne runs the full pipeline for a single item. Every failure is
// absorbed here: recorded in the failure set, logged, never propagated.
func (o *Orchestrator) harvestOne(ctx context.Context, item string, tracker *Tracker, results *ResultSet) {
	records, err := o.harvestItem(ctx, item, tracker)
	if err != nil {
		tracker.SetState(item, models.ItemFailed)
		results.Fail(item, err)
		o.logger.Warn("item failed", "item", item, "code", models.CodeOf(err), "error", err)
		return
	}
	results.Append(records...)
	tracker.SetRecords(item, len(records))
	tracker.SetState(item, models.ItemCompleted)
	o.logger.Info("item completed", "item", item, "records", len(records))
}

func (o *Orchestrator) harvestItem(ctx context.Context, item string, tracker *Tracker) ([]models.Record, error) {
	// Static fast path: no browser session needed when plain HTML already
	// carries the records.
	if o.preflight != nil {
		if records, ok := o.preflight.tryStatic(ctx, item); ok {
			return records, nil
		}
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return nil, models.NewHarvestError(models.ErrCodeTimeout, "canceled while rate-limited", err)
	}

	tracker.SetState(item, models.ItemNavigating)
	session, err := o.factory.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	// The session is destroyed unconditionally, success or failure, so the
	// next item starts with fresh cookie/fingerprint state.
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			o.logger.Debug("session close failed", "item", item, "error", closeErr)
		}
	}()

	if err := session.Navigate(ctx, item); err != nil {
		return nil, err
	}

	// Randomized settle delay before touching the page.
	if err := o.sleep(ctx, o.durBetween(3*time.Second, 6*time.Second)); err != nil {
		return nil, models.NewHarvestError(models.ErrCodeTimeout, "canceled during settle delay", err)
	}
	if !o.loader.WaitForContainers(ctx, session, 30, 500*time.Millisecond) {
		o.logger.Warn("no containers after settle, loading anyway", "item", item)
	}

	tracker.SetState(item, models.ItemLoading)
	loadRes, err := o.loader.LoadUntil(ctx, session, o.cfg.PerItemTarget)
	if err != nil {
		return nil, err
	}

	tracker.SetState(item, models.ItemExtracting)
	rawHTML, err := session.HTML()
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeSnapshot, "failed to snapshot page HTML", err)
	}
	doc, err := extract.ParseSnapshot(rawHTML)
	if err != nil {
		return nil, err
	}
	records, err := o.extractor.ExtractAll(doc, item)
	if err != nil {
		return nil, err
	}

	o.logger.Info("item harvested",
		"item", item,
		"records", len(records),
		"visible", loadRes.Count,
		"iterations", loadRes.Iterations,
		"exhausted", loadRes.Exhausted,
	)
	return records, nil
}

func (o *Orchestrator) logFinished(items []string, results *ResultSet) {
	o.logger.Info("batch finished",
		"items", len(items),
		"records", results.Len(),
		"failures", len(results.Failures()),
	)
}

func (o *Orchestrator) durBetween(min, max time.Duration) time.Duration {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	return min + time.Duration(o.rng.Int64N(int64(max-min+1)))
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
