// Package scrape extracts advert candidates from the listings result page.
package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/adscout/adscout-cli/internal/model"
)

// advertRowCells is the column count of an advert row on the listings page.
// Header rows, banner rows and other furniture have different arities.
const advertRowCells = 8

// RowClassifier decides whether a table row holds an advert. It receives
// the row's direct td children. The default classifier is an exact arity
// match; keeping it pluggable lets the heuristic be tightened without
// touching field extraction.
type RowClassifier func(cells *goquery.Selection) bool

// ExactCellCount returns a classifier accepting rows with exactly n cells.
func ExactCellCount(n int) RowClassifier {
	return func(cells *goquery.Selection) bool {
		return cells.Length() == n
	}
}

// Stats reports what one parse pass saw.
type Stats struct {
	RowsSeen    int
	RowsSkipped int
}

// Parser turns a listings HTML document into advert candidates.
type Parser struct {
	classify RowClassifier
}

// Option configures a Parser.
type Option func(*Parser)

// WithClassifier overrides the default row classifier.
func WithClassifier(c RowClassifier) Option {
	return func(p *Parser) {
		p.classify = c
	}
}

// NewParser creates a Parser with the default 8-cell classifier.
func NewParser(opts ...Option) *Parser {
	p := &Parser{classify: ExactCellCount(advertRowCells)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts candidates from the document, in row order. The scan is
// deliberately broad (every tr on the page, not a specific table id): the
// listings are the only rows of the expected shape. Rows the classifier
// rejects are skipped without error and counted in Stats.
func (p *Parser) Parse(html string) ([]model.Candidate, Stats, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, Stats{}, eris.Wrap(err, "scrape: parse document")
	}

	var candidates []model.Candidate
	var stats Stats

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		stats.RowsSeen++

		cells := row.ChildrenFiltered("td")
		if !p.classify(cells) {
			stats.RowsSkipped++
			return
		}

		candidates = append(candidates, extractCandidate(cells))
	})

	return candidates, stats, nil
}

// extractCandidate reads the fixed cell layout of an advert row.
func extractCandidate(cells *goquery.Selection) model.Candidate {
	var c model.Candidate

	linkCell := cells.Eq(1)
	if href, ok := linkCell.Find("a").First().Attr("href"); ok {
		c.URL = href
	}
	if src, ok := linkCell.Find("img").First().Attr("src"); ok {
		c.ImageURL = src
	}

	c.Description = strings.TrimSpace(cells.Eq(2).Text())
	c.Type = strings.TrimSpace(cells.Eq(3).Text())
	c.Year = strings.TrimSpace(cells.Eq(4).Text())
	c.Price = SanitizeInt(cells.Eq(7).Text())

	return c
}

// SanitizeInt keeps the digits of s plus a single leading sign, dropping
// everything else. Digit-free input yields the empty string. This mirrors
// integer sanitization, not numeric validation: embedded separators are
// stripped, not interpreted.
func SanitizeInt(s string) string {
	var digits strings.Builder
	sign := ""
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case (r == '-' || r == '+') && digits.Len() == 0 && sign == "":
			sign = string(r)
		}
	}
	if digits.Len() == 0 {
		return ""
	}
	return sign + digits.String()
}
