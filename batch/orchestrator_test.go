package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/gleaner/config"
	"github.com/use-agent/gleaner/extract"
	"github.com/use-agent/gleaner/loader"
	"github.com/use-agent/gleaner/models"
	"github.com/use-agent/gleaner/surface"
	"golang.org/x/time/rate"
)

// fakeSession is an in-memory surface.Surface serving a fixed snapshot.
type fakeSession struct {
	navErr error
	html   string
	count  int
	closed bool
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error { return s.navErr }
func (s *fakeSession) Elements(selector string) ([]surface.Element, error) {
	return nil, nil
}
func (s *fakeSession) Count(selector string) (int, error) { return s.count, nil }
func (s *fakeSession) Eval(js string) error               { return nil }
func (s *fakeSession) ScrollTop() (int, error)            { return 0, nil }
func (s *fakeSession) Wheel(deltaY float64) error         { return nil }
func (s *fakeSession) HTML() (string, error)              { return s.html, nil }
func (s *fakeSession) Close() error                       { s.closed = true; return nil }

// fakeFactory hands out sessions in order, one per item.
type fakeFactory struct {
	mu       sync.Mutex
	sessions []*fakeSession
	idx      int
}

func (f *fakeFactory) NewSession(ctx context.Context) (surface.Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.sessions) {
		return nil, models.NewHarvestError(models.ErrCodeBrowserCrash, "no session left", nil)
	}
	s := f.sessions[f.idx]
	f.idx++
	return s, nil
}

func commentPage(authors ...string) string {
	page := "<html><body>"
	for _, a := range authors {
		page += fmt.Sprintf(
			`<div class="comment-item"><a class="username">%s</a><p class="comment-content">hi from %s</p><em class="like-count">3</em></div>`,
			a, a,
		)
	}
	return page + "</body></html>"
}

func newTestOrchestrator(cfg config.BatchConfig, factory surface.Factory) *Orchestrator {
	ex := extract.NewExtractor(nil, slog.Default())
	ld := loader.New(config.LoaderConfig{}, extract.ContainerSelectors(ex.Strategies()), slog.Default())
	o := NewOrchestrator(cfg, factory, ld, ex, slog.Default())
	o.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	o.limiter = rate.NewLimiter(rate.Inf, 0)
	return o
}

func TestRun_FailedItemDoesNotAbortBatch(t *testing.T) {
	sessions := []*fakeSession{
		{html: commentPage("alice", "bob"), count: 2},
		{navErr: models.NewHarvestError(models.ErrCodeNavigation, "dns failure", nil)},
		{html: commentPage("carol"), count: 2},
	}
	factory := &fakeFactory{sessions: sessions}
	o := newTestOrchestrator(config.BatchConfig{PerItemTarget: 2}, factory)

	items := []string{"https://x.test/1", "https://x.test/2", "https://x.test/3"}
	tracker := NewTracker(items)
	results := o.Run(context.Background(), items, tracker)

	records := results.Records()
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3 (items 1 and 3)", len(records))
	}
	if records[0].Item != items[0] || records[1].Item != items[0] || records[2].Item != items[2] {
		t.Errorf("unexpected record order: %v %v %v", records[0].Item, records[1].Item, records[2].Item)
	}

	failures := results.Failures()
	if len(failures) != 1 {
		t.Fatalf("got %d failures, want 1", len(failures))
	}
	if failures[0].Item != items[1] || failures[0].Code != models.ErrCodeNavigation {
		t.Errorf("unexpected failure: %+v", failures[0])
	}

	// Every session, including the failed one, must be destroyed.
	for i, s := range sessions {
		if !s.closed {
			t.Errorf("session %d not closed", i)
		}
	}

	snap := tracker.Snapshot()
	if snap.Status != "partial" {
		t.Errorf("run status = %q, want partial", snap.Status)
	}
	if snap.Completed != 2 || snap.Failed != 1 || snap.Records != 3 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRun_AllItemsSucceed(t *testing.T) {
	factory := &fakeFactory{sessions: []*fakeSession{
		{html: commentPage("a"), count: 1},
		{html: commentPage("b"), count: 1},
	}}
	o := newTestOrchestrator(config.BatchConfig{PerItemTarget: 1}, factory)

	items := []string{"https://x.test/1", "https://x.test/2"}
	tracker := NewTracker(items)
	results := o.Run(context.Background(), items, tracker)

	if len(results.Failures()) != 0 {
		t.Errorf("failures = %v, want none", results.Failures())
	}
	if results.Len() != 2 {
		t.Errorf("records = %d, want 2", results.Len())
	}
	if snap := tracker.Snapshot(); snap.Status != "completed" {
		t.Errorf("run status = %q, want completed", snap.Status)
	}
}

func TestRun_SequenceNumbersRestartPerItem(t *testing.T) {
	factory := &fakeFactory{sessions: []*fakeSession{
		{html: commentPage("a", "b"), count: 2},
		{html: commentPage("c"), count: 1},
	}}
	o := newTestOrchestrator(config.BatchConfig{PerItemTarget: 1}, factory)

	results := o.Run(context.Background(), []string{"i1", "i2"}, nil)
	records := results.Records()
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].Seq != 1 || records[1].Seq != 2 || records[2].Seq != 1 {
		t.Errorf("sequence numbers = %d,%d,%d; want 1,2,1",
			records[0].Seq, records[1].Seq, records[2].Seq)
	}
}

func TestRun_Workers_MergeIntoOneResultSet(t *testing.T) {
	factory := &fakeFactory{sessions: []*fakeSession{
		{html: commentPage("a"), count: 1},
		{html: commentPage("b"), count: 1},
		{html: commentPage("c"), count: 1},
		{html: commentPage("d"), count: 1},
	}}
	o := newTestOrchestrator(config.BatchConfig{PerItemTarget: 1, Workers: 2}, factory)

	items := []string{"i1", "i2", "i3", "i4"}
	results := o.Run(context.Background(), items, nil)

	if results.Len() != 4 {
		t.Errorf("records = %d, want 4", results.Len())
	}
	if len(results.Failures()) != 0 {
		t.Errorf("failures = %v, want none", results.Failures())
	}
	seen := make(map[string]bool)
	for _, r := range results.Records() {
		seen[r.Item] = true
	}
	if len(seen) != 4 {
		t.Errorf("records cover %d items, want 4", len(seen))
	}
}

func TestRun_Workers_PaceOnlyBetweenItems(t *testing.T) {
	factory := &fakeFactory{sessions: []*fakeSession{
		{html: commentPage("a"), count: 1},
		{html: commentPage("b"), count: 1},
		{html: commentPage("c"), count: 1},
		{html: commentPage("d"), count: 1},
	}}
	o := newTestOrchestrator(config.BatchConfig{PerItemTarget: 1, Workers: 2}, factory)

	var mu sync.Mutex
	var sleeps int
	o.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps++
		mu.Unlock()
		return ctx.Err()
	}

	items := []string{"i1", "i2", "i3", "i4"}
	results := o.Run(context.Background(), items, nil)
	if results.Len() != 4 {
		t.Fatalf("records = %d, want 4", results.Len())
	}

	// Each item sleeps once to settle after navigation; pacing sleeps run
	// only between a worker's items, never after its last one. Two sleeps
	// per item would mean a trailing pacing delay.
	if sleeps >= 2*len(items) {
		t.Errorf("sleeps = %d, want fewer than %d (no pacing after a pipeline's final item)",
			sleeps, 2*len(items))
	}
}

func TestRun_CanceledContextKeepsPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	factory := &fakeFactory{sessions: []*fakeSession{{html: commentPage("a"), count: 1}}}
	o := newTestOrchestrator(config.BatchConfig{PerItemTarget: 1}, factory)

	results := o.Run(ctx, []string{"i1", "i2"}, nil)
	// Nothing was processed, but the result set is intact and usable.
	if results == nil {
		t.Fatal("Run returned nil results on cancellation")
	}
	if results.Len() != 0 {
		t.Errorf("records = %d, want 0", results.Len())
	}
}

func TestLoadItems(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "items.txt")
	content := "# comment line\n\nhttps://x.test/1\n   \nhttps://x.test/2\n#another\nhttps://x.test/3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	items, err := LoadItems(path)
	if err != nil {
		t.Fatalf("LoadItems: %v", err)
	}
	want := []string{"https://x.test/1", "https://x.test/2", "https://x.test/3"}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d: %v", len(items), len(want), items)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("items[%d] = %q, want %q", i, items[i], want[i])
		}
	}
}

func TestLoadItems_MissingFile(t *testing.T) {
	if _, err := LoadItems(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
