package extract

import (
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/gleaner/models"
)

const (
	// authorPlaceholder is the identity default when no author field resolves.
	authorPlaceholder = "unknown user"

	// contentPlaceholder is the content default when even the container's
	// full text is empty.
	contentPlaceholder = "(content unavailable)"
)

// Per-field generic fallbacks, tried after the frozen strategy's own
// selector. Ordered from named classes to class substrings to bare tags.
var (
	authorFallbacks  = []string{".username", `[class*="username"]`, "a"}
	contentFallbacks = []string{".comment-content", `[class*="text"]`, "span"}
	likesFallbacks   = []string{".like-count", `[class*="like"]`, `[data-testid*="like"]`}
)

// Extractor converts container elements of an HTML snapshot into Records
// using a ranked strategy list with per-field fallback chains.
type Extractor struct {
	strategies []Strategy
	logger     *slog.Logger

	// now is the extraction clock; overridable in tests.
	now func() time.Time
}

// NewExtractor creates an Extractor with the given strategies. A nil or
// empty list falls back to DefaultStrategies.
func NewExtractor(strategies []Strategy, logger *slog.Logger) *Extractor {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		strategies: strategies,
		logger:     logger,
		now:        time.Now,
	}
}

// Strategies returns the extractor's ranked strategy list.
func (e *Extractor) Strategies() []Strategy { return e.strategies }

// ExtractAll resolves a strategy against the snapshot and converts every
// matched container into a Record. Containers that cannot produce a record
// are skipped, so the output may be shorter than the container count; a
// skip never aborts the pass. Sequence numbers are 1-based per item, in
// DOM order.
func (e *Extractor) ExtractAll(doc *goquery.Document, item string) ([]models.Record, error) {
	strategy, containers, err := Resolve(doc, e.strategies)
	if err != nil {
		return nil, err
	}
	e.logger.Info("strategy resolved",
		"item", item,
		"strategy", strategy.Name,
		"containers", containers.Length(),
	)

	records := make([]models.Record, 0, containers.Length())
	containers.Each(func(i int, s *goquery.Selection) {
		rec, ok := e.extractOne(item, s, strategy)
		if !ok {
			e.logger.Debug("container skipped", "item", item, "index", i)
			return
		}
		rec.Seq = len(records) + 1
		records = append(records, rec)
	})

	return records, nil
}

// extractOne converts one container element into a Record. ok is false when
// the container carries no usable text at all (spacer nodes, icon-only
// rows); such containers are skipped rather than emitted as empty records.
func (e *Extractor) extractOne(item string, s *goquery.Selection, strategy Strategy) (models.Record, bool) {
	author, authorFound := firstText(s, strategy.Author, authorFallbacks)
	if !authorFound {
		author = authorPlaceholder
	}

	content, contentFound := firstText(s, strategy.Content, contentFallbacks)
	if !contentFound {
		// Fall back to the container's full text with the author substring
		// removed.
		full := normalizeText(s.Text())
		if authorFound && full != "" {
			content = normalizeText(strings.ReplaceAll(full, author, ""))
		} else {
			content = full
		}
		if content == "" {
			content = contentPlaceholder
		}
	}

	if !authorFound && !contentFound && normalizeText(s.Text()) == "" {
		return models.Record{}, false
	}

	likes := 0
	if likeText, ok := firstText(s, strategy.Likes, likesFallbacks); ok {
		likes = ParseMetric(likeText)
	}

	return models.Record{
		Item:        item,
		Author:      author,
		Content:     content,
		Likes:       likes,
		ExtractedAt: e.now(),
	}, true
}

// firstText resolves a field through its fallback chain: the strategy's
// declared selector first, then the generic fallbacks. For each selector
// only the first matched element is considered; the first non-empty text
// wins.
func firstText(s *goquery.Selection, declared string, fallbacks []string) (string, bool) {
	chain := append([]string{declared}, fallbacks...)
	for _, sel := range chain {
		if sel == "" {
			continue
		}
		found := s.Find(sel).First()
		if found.Length() == 0 {
			continue
		}
		if text := normalizeText(found.Text()); text != "" {
			return text, true
		}
	}
	return "", false
}

// normalizeText trims and collapses internal whitespace runs to single
// spaces. Rendered snapshots carry layout-driven newlines and tabs that are
// noise in record fields.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
