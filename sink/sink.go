// Package sink persists harvested records to an Excel workbook and renders
// a console summary of the run.
package sink

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/xuri/excelize/v2"

	"github.com/use-agent/gleaner/config"
	"github.com/use-agent/gleaner/models"
)

const (
	sheetRecords  = "Records"
	sheetStats    = "Stats"
	sheetFailures = "Failures"
)

// Sink writes run results to disk.
type Sink struct {
	outputDir   string
	dupDistance int
	logger      *slog.Logger
}

// New creates a sink writing workbooks under cfg.OutputDir.
func New(cfg config.SinkConfig, logger *slog.Logger) *Sink {
	return &Sink{
		outputDir:   cfg.OutputDir,
		dupDistance: cfg.DuplicateDistance,
		logger:      logger,
	}
}

// Export writes one workbook for the run and returns its path. Records land
// on the Records sheet in append order, aggregate numbers on Stats, and
// failed items on Failures. An empty run still produces a workbook so the
// caller can tell "ran and found nothing" from "never ran".
func (s *Sink) Export(runID string, records []models.Record, failures []models.Failure) (string, error) {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetRecords); err != nil {
		return "", fmt.Errorf("rename records sheet: %w", err)
	}
	if err := s.writeRecords(f, records); err != nil {
		return "", err
	}
	if err := s.writeStats(f, Compute(records, s.dupDistance)); err != nil {
		return "", err
	}
	if err := s.writeFailures(f, failures); err != nil {
		return "", err
	}

	path := filepath.Join(s.outputDir, fmt.Sprintf("gleaner-%s.xlsx", runID))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	s.logger.Info("workbook written",
		"path", path,
		"records", len(records),
		"failures", len(failures))
	return path, nil
}

func (s *Sink) writeRecords(f *excelize.File, records []models.Record) error {
	header := []any{"seq", "item", "author", "content", "likes", "extracted_at"}
	if err := f.SetSheetRow(sheetRecords, "A1", &header); err != nil {
		return fmt.Errorf("write records header: %w", err)
	}
	for i, rec := range records {
		row := []any{
			rec.Seq,
			rec.Item,
			rec.Author,
			rec.Content,
			rec.Likes,
			rec.ExtractedAt.Format(time.RFC3339),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("record row %d: %w", i, err)
		}
		if err := f.SetSheetRow(sheetRecords, cell, &row); err != nil {
			return fmt.Errorf("write record row %d: %w", i, err)
		}
	}
	return nil
}

func (s *Sink) writeStats(f *excelize.File, stats Stats) error {
	if _, err := f.NewSheet(sheetStats); err != nil {
		return fmt.Errorf("create stats sheet: %w", err)
	}

	rows := [][2]any{
		{"total records", stats.TotalRecords},
		{"unique authors", stats.UniqueAuthors},
		{"unique items", stats.UniqueItems},
		{"total likes", stats.TotalLikes},
		{"near duplicates", stats.NearDuplicates},
	}
	if stats.TopRecord != nil {
		rows = append(rows,
			[2]any{"top author", stats.TopRecord.Author},
			[2]any{"top likes", stats.TopRecord.Likes},
		)
	}
	if !stats.FirstAt.IsZero() {
		rows = append(rows,
			[2]any{"first extracted", stats.FirstAt.Format(time.RFC3339)},
			[2]any{"last extracted", stats.LastAt.Format(time.RFC3339)},
		)
	}

	for i, kv := range rows {
		row := []any{kv[0], kv[1]}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("stats row %d: %w", i, err)
		}
		if err := f.SetSheetRow(sheetStats, cell, &row); err != nil {
			return fmt.Errorf("write stats row %d: %w", i, err)
		}
	}
	return nil
}

func (s *Sink) writeFailures(f *excelize.File, failures []models.Failure) error {
	if _, err := f.NewSheet(sheetFailures); err != nil {
		return fmt.Errorf("create failures sheet: %w", err)
	}

	header := []any{"item", "code", "message"}
	if err := f.SetSheetRow(sheetFailures, "A1", &header); err != nil {
		return fmt.Errorf("write failures header: %w", err)
	}
	for i, fail := range failures {
		row := []any{fail.Item, fail.Code, fail.Message}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failure row %d: %w", i, err)
		}
		if err := f.SetSheetRow(sheetFailures, cell, &row); err != nil {
			return fmt.Errorf("write failure row %d: %w", i, err)
		}
	}
	return nil
}

// Summary renders a human-readable run summary table to w.
func (s *Sink) Summary(w io.Writer, stats Stats, failures []models.Failure) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Records", stats.TotalRecords})
	t.AppendRow(table.Row{"Unique authors", stats.UniqueAuthors})
	t.AppendRow(table.Row{"Items with records", stats.UniqueItems})
	t.AppendRow(table.Row{"Failed items", len(failures)})
	t.AppendRow(table.Row{"Total likes", stats.TotalLikes})
	t.AppendRow(table.Row{"Near duplicates", stats.NearDuplicates})
	if stats.TopRecord != nil {
		t.AppendRow(table.Row{"Top record", fmt.Sprintf("%s (%d likes)", stats.TopRecord.Author, stats.TopRecord.Likes)})
	}
	t.Render()

	for _, fail := range failures {
		fmt.Fprintf(w, "failed: %s [%s] %s\n", fail.Item, fail.Code, fail.Message)
	}
}
