package sink

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/use-agent/gleaner/config"
	"github.com/use-agent/gleaner/models"
)

func testRecords() []models.Record {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	return []models.Record{
		{Seq: 1, Item: "https://a.example/1", Author: "ana", Content: "this track is incredible, on repeat all day", Likes: 1200, ExtractedAt: base},
		{Seq: 2, Item: "https://a.example/1", Author: "ben", Content: "first comment", Likes: 3, ExtractedAt: base.Add(time.Second)},
		{Seq: 1, Item: "https://a.example/2", Author: "ana", Content: "this track is incredible, on repeat all night", Likes: 40, ExtractedAt: base.Add(2 * time.Second)},
	}
}

func TestComputeStats(t *testing.T) {
	stats := Compute(testRecords(), 16)

	if stats.TotalRecords != 3 {
		t.Errorf("TotalRecords = %d, want 3", stats.TotalRecords)
	}
	if stats.UniqueAuthors != 2 {
		t.Errorf("UniqueAuthors = %d, want 2", stats.UniqueAuthors)
	}
	if stats.UniqueItems != 2 {
		t.Errorf("UniqueItems = %d, want 2", stats.UniqueItems)
	}
	if stats.TotalLikes != 1243 {
		t.Errorf("TotalLikes = %d, want 1243", stats.TotalLikes)
	}
	if stats.TopRecord == nil || stats.TopRecord.Author != "ana" || stats.TopRecord.Likes != 1200 {
		t.Errorf("TopRecord = %+v, want ana with 1200 likes", stats.TopRecord)
	}
	if stats.NearDuplicates != 1 {
		t.Errorf("NearDuplicates = %d, want 1 (third record is a one-word tweak of the first)", stats.NearDuplicates)
	}
	if !stats.FirstAt.Equal(testRecords()[0].ExtractedAt) {
		t.Errorf("FirstAt = %v, want first record's timestamp", stats.FirstAt)
	}
	if !stats.LastAt.Equal(testRecords()[2].ExtractedAt) {
		t.Errorf("LastAt = %v, want last record's timestamp", stats.LastAt)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := Compute(nil, 3)
	if stats.TotalRecords != 0 || stats.TopRecord != nil {
		t.Errorf("empty run should produce zero stats, got %+v", stats)
	}
}

func TestExportWritesWorkbook(t *testing.T) {
	dir := t.TempDir()
	s := New(config.SinkConfig{OutputDir: dir, DuplicateDistance: 3}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	failures := []models.Failure{{Item: "https://a.example/dead", Code: "NAVIGATION_FAILED", Message: "net::ERR_NAME_NOT_RESOLVED"}}
	path, err := s.Export("run-test", testRecords(), failures)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("workbook written to %s, want inside %s", path, dir)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	for _, sheet := range []string{sheetRecords, sheetStats, sheetFailures} {
		if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
			t.Errorf("missing sheet %q", sheet)
		}
	}

	rows, err := f.GetRows(sheetRecords)
	if err != nil {
		t.Fatalf("read records sheet: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("records sheet has %d rows, want header + 3 records", len(rows))
	}
	if rows[1][2] != "ana" || rows[1][3] != "this track is incredible, on repeat all day" {
		t.Errorf("first record row = %v", rows[1])
	}

	failRows, err := f.GetRows(sheetFailures)
	if err != nil {
		t.Fatalf("read failures sheet: %v", err)
	}
	if len(failRows) != 2 || failRows[1][1] != "NAVIGATION_FAILED" {
		t.Errorf("failures sheet = %v", failRows)
	}
}

func TestExportEmptyRun(t *testing.T) {
	dir := t.TempDir()
	s := New(config.SinkConfig{OutputDir: dir, DuplicateDistance: 3}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	path, err := s.Export("run-empty", nil, nil)
	if err != nil {
		t.Fatalf("Export of empty run: %v", err)
	}
	if _, err := excelize.OpenFile(path); err != nil {
		t.Errorf("empty-run workbook should still open: %v", err)
	}
}

func TestSummaryRendersFailures(t *testing.T) {
	s := New(config.SinkConfig{OutputDir: ".", DuplicateDistance: 3}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var buf bytes.Buffer
	failures := []models.Failure{{Item: "https://a.example/dead", Code: "LOAD_STAGNATED", Message: "no records loaded"}}
	s.Summary(&buf, Compute(testRecords(), 3), failures)

	out := buf.String()
	for _, want := range []string{"Records", "Failed items", "LOAD_STAGNATED", "https://a.example/dead"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary output missing %q:\n%s", want, out)
		}
	}
}
