// Package scrape turns scraped review markup into plain review strings.
package scrape

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoReviews means the payload contained no review text. Callers treat it
// as a failed scrape, not as a product with zero reviews.
var ErrNoReviews = errors.New("no reviews found, scraping failed")

// reviewBodySelector matches the collapsed review body inside one list item
// of a product review page.
const reviewBodySelector = `div[data-hook="review-collapsed"] span`

// Cleaner normalizes review payloads before they are queued.
type Cleaner struct {
	skip bool
}

// NewCleaner returns a Cleaner. With skip set, payloads are assumed to be
// normalized already and are only trimmed.
func NewCleaner(skip bool) *Cleaner {
	return &Cleaner{skip: skip}
}

// Clean extracts review text from each entry. An entry holding a review list
// yields one review per <li>; any other entry yields its text content.
// Empty results are dropped.
func (c *Cleaner) Clean(raw []string) ([]string, error) {
	var out []string
	for i, entry := range raw {
		if c.skip {
			if s := normalizeSpace(entry); s != "" {
				out = append(out, s)
			}
			continue
		}

		texts, err := extract(entry)
		if err != nil {
			return nil, fmt.Errorf("parsing review %d: %w", i, err)
		}
		out = append(out, texts...)
	}

	if len(out) == 0 {
		return nil, ErrNoReviews
	}
	return out, nil
}

func extract(markup string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}

	items := doc.Find("li")
	if items.Length() == 0 {
		if s := normalizeSpace(doc.Text()); s != "" {
			return []string{s}, nil
		}
		return nil, nil
	}

	var out []string
	items.Each(func(_ int, li *goquery.Selection) {
		if s := normalizeSpace(li.Find(reviewBodySelector).Text()); s != "" {
			out = append(out, s)
		}
	})
	return out, nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
