package sink

import (
	"time"

	"github.com/use-agent/gleaner/models"
	"github.com/use-agent/gleaner/simhash"
)

// Stats summarizes one harvested run.
type Stats struct {
	TotalRecords  int
	UniqueAuthors int
	UniqueItems   int
	TotalLikes    int

	// TopRecord is the record with the highest like count, nil when the
	// run produced nothing.
	TopRecord *models.Record

	// FirstAt and LastAt bound the extraction timestamps.
	FirstAt time.Time
	LastAt  time.Time

	// NearDuplicates counts records whose content fingerprint lands within
	// the configured Hamming distance of an earlier record.
	NearDuplicates int
}

// Compute aggregates run statistics over the record set. dupDistance is the
// simhash Hamming distance at or below which two contents count as
// near-duplicates.
func Compute(records []models.Record, dupDistance int) Stats {
	stats := Stats{TotalRecords: len(records)}
	if len(records) == 0 {
		return stats
	}

	authors := make(map[string]struct{})
	items := make(map[string]struct{})
	seen := make([]uint64, 0, len(records))

	for i := range records {
		rec := &records[i]
		authors[rec.Author] = struct{}{}
		items[rec.Item] = struct{}{}
		stats.TotalLikes += rec.Likes

		if stats.TopRecord == nil || rec.Likes > stats.TopRecord.Likes {
			stats.TopRecord = rec
		}
		if stats.FirstAt.IsZero() || rec.ExtractedAt.Before(stats.FirstAt) {
			stats.FirstAt = rec.ExtractedAt
		}
		if rec.ExtractedAt.After(stats.LastAt) {
			stats.LastAt = rec.ExtractedAt
		}

		fp := simhash.Fingerprint(rec.Content)
		if fp != 0 && nearAny(fp, seen, dupDistance) {
			stats.NearDuplicates++
		}
		seen = append(seen, fp)
	}

	stats.UniqueAuthors = len(authors)
	stats.UniqueItems = len(items)
	return stats
}

func nearAny(fp uint64, seen []uint64, threshold int) bool {
	for _, prev := range seen {
		if prev == 0 {
			continue
		}
		if simhash.Near(fp, prev, threshold) {
			return true
		}
	}
	return false
}
