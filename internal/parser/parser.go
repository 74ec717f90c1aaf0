// Package parser reads listing and detail pages rendered by the browser.
// Lookups report absence with a boolean instead of an error; callers pick
// the defaults.
package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/catalog-crawler/internal/site"
)

type Document struct {
	doc *goquery.Document
}

func Parse(html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Count returns how many elements match selector.
func (d *Document) Count(selector string) int {
	if selector == "" {
		return 0
	}
	return d.doc.Find(selector).Length()
}

// Field resolves a site.Field to cleaned text.
func (d *Document) Field(f site.Field) (string, bool) {
	return lookup(d.doc.Selection, f)
}

// Price resolves a site.Field and normalizes it to an integer amount.
func (d *Document) Price(f site.Field) (int, bool) {
	text, ok := d.Field(f)
	if !ok {
		return 0, false
	}
	return ParsePriceOK(text)
}

func lookup(root *goquery.Selection, f site.Field) (string, bool) {
	var value *goquery.Selection
	switch {
	case f.Selector != "":
		value = root.Find(f.Selector).First()
	case f.LabelSelector != "":
		label := root.Find(f.LabelSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(CleanText(s.Text()), f.Label)
		}).First()
		if label.Length() == 0 {
			return "", false
		}
		value = label.NextAll()
		if f.ValueSelector != "" {
			value = label.NextAllFiltered(f.ValueSelector)
		}
		value = value.First()
		if f.ValueChild != "" {
			value = value.Find(f.ValueChild).First()
		}
	default:
		return "", false
	}

	if value.Length() == 0 {
		return "", false
	}
	text := CleanText(value.Text())
	return text, text != ""
}

// attr returns the first non-empty attribute among names.
func attr(s *goquery.Selection, names []string) (string, bool) {
	for _, name := range names {
		if v, ok := s.Attr(name); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		}
	}
	return "", false
}
