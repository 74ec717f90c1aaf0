package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/catalog-crawler/internal/resolver"
	"github.com/maltedev/catalog-crawler/internal/site"
)

// Gallery returns the resolved detail images in DOM order, deduplicated.
func (d *Document) Gallery(rules site.DetailRules, res *resolver.Resolver) []string {
	urls := []string{}
	if rules.Gallery == "" {
		return urls
	}

	seen := make(map[string]struct{})
	d.doc.Find(rules.Gallery).Each(func(_ int, img *goquery.Selection) {
		raw, ok := attr(img, rules.ImageAttrs)
		if !ok {
			return
		}
		u := res.Resolve(raw)
		if rules.GalleryFilter != "" && !strings.Contains(u, rules.GalleryFilter) {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	})

	return urls
}
