package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/gleaner/models"
)

// Strategy is an immutable tuple of CSS selectors mapping logical record
// fields to markup locators. Strategies are ranked: the resolver tries them
// in order and freezes the first one whose container selector matches.
type Strategy struct {
	Name      string
	Container string
	Author    string
	Content   string
	Likes     string
}

// Valid reports whether every selector in the strategy parses. Strategies
// with malformed selectors are skipped during resolution instead of
// breaking the whole pass.
func (s Strategy) Valid() bool {
	for _, sel := range []string{s.Container, s.Author, s.Content, s.Likes} {
		if _, err := cascadia.Parse(sel); err != nil {
			return false
		}
	}
	return true
}

// DefaultStrategies returns the built-in strategy list, ordered from the
// most specific and stable markup (data-e2e attributes) to the most generic
// class-substring matching. Generic strategies over-match, so they only run
// when everything above them found nothing.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{
			Name:      "data-e2e",
			Container: `[data-e2e="comment-item"]`,
			Author:    `[data-e2e="comment-username"]`,
			Content:   `[data-e2e="comment-level-1"]`,
			Likes:     `[data-e2e="comment-like-count"]`,
		},
		{
			Name:      "class-names",
			Container: ".comment-item",
			Author:    ".username",
			Content:   ".comment-content",
			Likes:     ".like-count",
		},
		{
			Name:      "class-substring",
			Container: `[class*="comment"]`,
			Author:    `[class*="username"]`,
			Content:   `[class*="text"]`,
			Likes:     `[class*="like"]`,
		},
	}
}

// ContainerSelectors returns the container selector of each valid strategy,
// in rank order. The load controller uses these as cheap count probes.
func ContainerSelectors(strategies []Strategy) []string {
	out := make([]string, 0, len(strategies))
	for _, s := range strategies {
		if s.Valid() {
			out = append(out, s.Container)
		}
	}
	return out
}

// Resolve picks the first valid strategy whose container selector yields at
// least one element in doc and returns it together with the matched
// containers in DOM order. The chosen strategy is frozen for the remainder
// of the item; there is no mid-item re-resolution.
//
// Resolution is a pure function of the snapshot: the same document always
// resolves to the same strategy and the same container order.
func Resolve(doc *goquery.Document, strategies []Strategy) (Strategy, *goquery.Selection, error) {
	for _, s := range strategies {
		if !s.Valid() {
			continue
		}
		sel := doc.Find(s.Container)
		if sel.Length() > 0 {
			return s, sel, nil
		}
	}
	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.Name)
	}
	return Strategy{}, nil, models.NewHarvestError(
		models.ErrCodeNoStrategy,
		"no strategy matched any containers (tried: "+strings.Join(names, ", ")+")",
		nil,
	)
}

// ParseSnapshot parses a rendered HTML snapshot into a queryable document.
func ParseSnapshot(rawHTML string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeSnapshot, "failed to parse HTML snapshot", err)
	}
	return doc, nil
}
