package parser

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/site"
)

type OptionParser struct {
	rules site.OptionRules
	delta *regexp.Regexp
	strip *regexp.Regexp
}

func NewOptionParser(rs *site.Ruleset) (*OptionParser, error) {
	delta, err := rs.DeltaRegexp()
	if err != nil {
		return nil, err
	}
	return &OptionParser{
		rules: rs.Options,
		delta: delta,
		strip: regexp.MustCompile(`\s*(?:` + delta.String() + `)`),
	}, nil
}

// Parse reads every option control in d. fallbackGroupID names groups whose
// control carries no identifier of its own; when it is empty too the group's
// position is used. No control on the page yields an empty slice.
func (p *OptionParser) Parse(d *Document, fallbackGroupID string) []models.OptionGroup {
	groups := []models.OptionGroup{}
	if p.rules.Control == "" {
		return groups
	}

	d.doc.Find(p.rules.Control).Each(func(i int, control *goquery.Selection) {
		group := models.OptionGroup{
			ID:    p.groupID(control, fallbackGroupID, i),
			Title: p.title(control),
		}

		control.Find("option").Each(func(_ int, opt *goquery.Selection) {
			if v, ok := p.value(group.ID, opt); ok {
				group.Values = append(group.Values, v)
			}
		})

		if len(group.Values) > 0 {
			groups = append(groups, group)
		}
	})

	return groups
}

// ParseDelta splits a choice text into its clean label and price delta.
func (p *OptionParser) ParseDelta(text string) (string, int) {
	m := p.delta.FindStringSubmatch(text)
	if m == nil {
		return text, 0
	}
	label := strings.TrimSpace(p.strip.ReplaceAllString(text, ""))
	if label == "" {
		label = text
	}
	return label, ParsePrice(m[1])
}

func (p *OptionParser) value(groupID string, opt *goquery.Selection) (models.OptionValue, bool) {
	if _, disabled := opt.Attr("disabled"); disabled {
		return models.OptionValue{}, false
	}

	text := CleanText(opt.Text())
	value, hasValue := opt.Attr("value")
	if !hasValue {
		value = text
	}
	value = strings.TrimSpace(value)
	if value == "" || text == "" || slices.Contains(p.rules.SkipValues, value) {
		return models.OptionValue{}, false
	}
	for _, marker := range p.rules.SkipTextContains {
		if marker != "" && strings.Contains(text, marker) {
			return models.OptionValue{}, false
		}
	}

	label, delta := p.ParseDelta(text)
	return models.OptionValue{
		Path:       groupID + ":" + label,
		Label:      label,
		Text:       text,
		PriceDelta: delta,
		SoldOut:    p.rules.SoldOutMarker != "" && strings.Contains(text, p.rules.SoldOutMarker),
	}, true
}

func (p *OptionParser) groupID(control *goquery.Selection, fallback string, index int) string {
	if p.rules.GroupIDAttr != "" {
		if id, ok := control.Attr(p.rules.GroupIDAttr); ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id)
		}
	}
	if fallback != "" {
		return fallback
	}
	return strconv.Itoa(index + 1)
}

func (p *OptionParser) title(control *goquery.Selection) string {
	if p.rules.TitleAttr != "" {
		if t, ok := control.Attr(p.rules.TitleAttr); ok {
			if t = CleanText(t); t != "" {
				return t
			}
		}
	}
	if p.rules.DefaultTitle != "" {
		return p.rules.DefaultTitle
	}
	return "옵션"
}
