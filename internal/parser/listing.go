package parser

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/resolver"
	"github.com/maltedev/catalog-crawler/internal/site"
)

// Summaries returns the listing entries of one page in DOM order. Entries
// without a detail link cannot be visited and are left out.
func (d *Document) Summaries(rules site.ListingRules, res *resolver.Resolver, page int) []models.ProductSummary {
	summaries := []models.ProductSummary{}
	if rules.Item == "" {
		return summaries
	}

	d.doc.Find(rules.Item).Each(func(_ int, item *goquery.Selection) {
		nameSel := item.Find(rules.Name).First()
		linkSel := nameSel
		if rules.Link != "" {
			linkSel = item.Find(rules.Link).First()
		}

		href, ok := attr(linkSel, []string{"href"})
		if !ok {
			return
		}

		s := models.ProductSummary{
			Page:      page,
			Name:      StripPrefixes(CleanText(nameSel.Text()), rules.NamePrefix),
			DetailURL: res.Resolve(href),
		}
		if rules.Price != "" {
			s.ListPriceText = CleanText(item.Find(rules.Price).First().Text())
		}
		if rules.Thumbnail != "" {
			if src, ok := attr(item.Find(rules.Thumbnail).First(), rules.ImageAttrs); ok {
				s.ThumbnailURL = res.Resolve(src)
			}
		}
		if rules.Code != "" {
			s.Code = CleanText(item.Find(rules.Code).First().Text())
		}

		summaries = append(summaries, s)
	})

	return summaries
}
