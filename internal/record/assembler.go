// Package record merges what a crawl learned about one product into the
// canonical ProductRecord. Nothing here performs I/O.
package record

import (
	"strconv"

	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/parser"
	"github.com/maltedev/catalog-crawler/internal/site"
)

type Assembler struct {
	policy site.PricePolicy
}

func NewAssembler(policy site.PricePolicy) *Assembler {
	return &Assembler{policy: policy}
}

// Assemble builds the record for one product. The same inputs always yield
// an identical record.
func (a *Assembler) Assemble(summary models.ProductSummary, detail models.ProductDetail, manifest models.MediaManifest) *models.ProductRecord {
	price := nonNegative(parser.ParsePrice(summary.ListPriceText))

	productID := detail.Code
	if productID == "" {
		productID = summary.Code
	}

	gallery := Dedupe(detail.GalleryURLs)
	thumbnail := Thumbnail(summary, detail)

	comb, info := Flatten(detail.OptionGroups)

	rec := &models.ProductRecord{
		Idx:                 summary.Page,
		ProductID:           productID,
		OriginPath:          summary.DetailURL,
		ProductName:         summary.Name,
		ProductPrice:        price,
		ProductOriginPrice:  price,
		ProductMinimumPrice: price,
		CurrencyUnit:        a.policy.Currency,
		DeliveryPrice:       nonNegative(detail.DeliveryPrice),
		ReturnPrice:         nonNegative(detail.ReturnPrice),
		ChangePrice:         nonNegative(detail.ChangePrice),
		OptionCombList:      comb,
		OptionInfoList:      info,
		KeywordList:         []string{},
		ThumbnailImg:        thumbnail,
		MainImg:             thumbnail,
		ProductImgList:      Dedupe([]string{thumbnail}),
		ProductInfoImgList:  gallery,
		DeliveryInfo:        "",
	}

	if allSoldOut(comb) {
		rec.IsSoldout = 1
	}
	if manifest.AllSaved() {
		rec.IsImgSave = 1
	}
	return rec
}

// Flatten projects option groups into the flat combination list and the
// grouped display list. Paths are made unique across the whole product by
// suffixing repeats with "#2", "#3" and so on; both lists carry the same
// final path for a value.
func Flatten(groups []models.OptionGroup) ([]models.OptionComb, []models.OptionInfo) {
	comb := []models.OptionComb{}
	info := []models.OptionInfo{}
	seen := make(map[string]struct{})

	for _, g := range groups {
		body := []models.OptionInfoValue{}
		for _, v := range g.Values {
			path := uniquePath(v.Path, seen)
			comb = append(comb, models.OptionComb{
				Path:      path,
				Price:     nonNegative(v.PriceDelta),
				Img:       v.ImageURL,
				IsSoldout: v.SoldOut,
			})
			name := v.Text
			if name == "" {
				name = v.Label
			}
			body = append(body, models.OptionInfoValue{
				Path:      path,
				Name:      name,
				Img:       v.ImageURL,
				IsSoldout: v.SoldOut,
			})
		}
		if len(body) > 0 {
			info = append(info, models.OptionInfo{Title: g.Title, Body: body})
		}
	}
	return comb, info
}

func uniquePath(path string, seen map[string]struct{}) string {
	candidate := path
	for n := 2; ; n++ {
		if _, dup := seen[candidate]; !dup {
			break
		}
		candidate = path + "#" + strconv.Itoa(n)
	}
	seen[candidate] = struct{}{}
	return candidate
}

// Dedupe drops empty and repeated URLs, keeping first occurrences in order.
func Dedupe(urls []string) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func allSoldOut(comb []models.OptionComb) bool {
	if len(comb) == 0 {
		return false
	}
	for _, c := range comb {
		if !c.IsSoldout {
			return false
		}
	}
	return true
}

func nonNegative(v int) int {
	return max(v, 0)
}

// Thumbnail picks the representative image: the listing thumbnail, else the
// first gallery image.
func Thumbnail(summary models.ProductSummary, detail models.ProductDetail) string {
	if summary.ThumbnailURL != "" {
		return summary.ThumbnailURL
	}
	for _, u := range detail.GalleryURLs {
		if u != "" {
			return u
		}
	}
	return ""
}
