// Command gleaner harvests records from a list of infinite-scroll pages and
// writes them to an Excel workbook.
//
// Usage:
//
//	gleaner <items-file>
//
// The items file holds one URL per line; blank lines and lines starting
// with # are ignored.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/gleaner/api"
	"github.com/use-agent/gleaner/batch"
	"github.com/use-agent/gleaner/config"
	"github.com/use-agent/gleaner/extract"
	"github.com/use-agent/gleaner/loader"
	"github.com/use-agent/gleaner/sink"
	"github.com/use-agent/gleaner/surface"
	"github.com/use-agent/gleaner/webhook"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: gleaner <items-file>")
		return 2
	}

	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)

	// ── 3. Load items ────────────────────────────────────────────────
	items, err := batch.LoadItems(os.Args[1])
	if err != nil {
		slog.Error("failed to load items file", "path", os.Args[1], "error", err)
		return 1
	}
	if len(items) == 0 {
		slog.Error("items file contains no URLs", "path", os.Args[1])
		return 1
	}

	slog.Info("gleaner starting",
		"items", len(items),
		"workers", cfg.Batch.Workers,
		"target", cfg.Batch.PerItemTarget,
		"headless", cfg.Browser.Headless,
	)

	// ── 4. Wire the pipeline ─────────────────────────────────────────
	strategies := extract.DefaultStrategies()
	extractor := extract.NewExtractor(strategies, slog.Default())
	ld := loader.New(cfg.Loader, extract.ContainerSelectors(strategies), slog.Default())
	factory := surface.NewRodFactory(cfg.Browser, slog.Default())

	orch := batch.NewOrchestrator(cfg.Batch, factory, ld, extractor, slog.Default())
	orch.EnablePreflight(cfg.Preflight, cfg.Browser.Proxy)

	tracker := batch.NewTracker(items)

	// ── 5. Optional status API ───────────────────────────────────────
	var statusSrv *http.Server
	if cfg.Server.Addr != "" {
		router := api.NewRouter(tracker, cfg, time.Now())
		statusSrv = &http.Server{Addr: cfg.Server.Addr, Handler: router}
		go func() {
			slog.Info("status API listening", "addr", cfg.Server.Addr)
			if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("status API error", "error", err)
			}
		}()
	}

	// ── 6. Run the batch ─────────────────────────────────────────────
	// SIGINT/SIGTERM cancels the run; accumulated results still flush.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results := orch.Run(ctx, items, tracker)

	if err := ctx.Err(); err != nil {
		slog.Warn("run interrupted, flushing partial results", "error", err)
	}

	// ── 7. Flush results ─────────────────────────────────────────────
	snap := tracker.Snapshot()
	records := results.Records()
	failures := results.Failures()

	sk := sink.New(cfg.Sink, slog.Default())
	workbook, err := sk.Export(snap.ID, records, failures)
	if err != nil {
		slog.Error("failed to write workbook", "error", err)
	}
	sk.Summary(os.Stdout, sink.Compute(records, cfg.Sink.DuplicateDistance), failures)

	// ── 8. Notify ────────────────────────────────────────────────────
	// Deliver on a fresh context so a canceled run still notifies.
	notifyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	notifier := webhook.New(cfg.Webhook, slog.Default())
	if err := notifier.RunCompleted(notifyCtx, snap, workbook, failures); err != nil {
		slog.Error("webhook delivery failed", "error", err)
	}

	// ── 9. Drain the status API ──────────────────────────────────────
	if statusSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("status API forced shutdown", "error", err)
		}
	}

	slog.Info("gleaner finished",
		"status", snap.Status,
		"records", len(records),
		"failed_items", len(failures),
		"workbook", workbook,
	)

	if snap.Status == "failed" {
		return 1
	}
	return 0
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
