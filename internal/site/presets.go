package site

import (
	"fmt"
	"sort"
)

const (
	PresetCafe24   = "cafe24"
	PresetGodomall = "godomall"
)

var presets = map[string]func() Ruleset{
	PresetCafe24:   cafe24,
	PresetGodomall: godomall,
}

// Preset returns a fresh copy of a built-in ruleset.
func Preset(name string) (*Ruleset, error) {
	build, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownPreset, name, PresetNames())
	}
	rs := build()
	rs.ApplyDefaults()
	return &rs, nil
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cafe24() Ruleset {
	markers := []string{"#prdDetail", ".edibot-product", ".cont", ".xans-product-detail"}
	return Ruleset{
		Name:      PresetCafe24,
		PageParam: "page",
		Login: LoginRules{
			UserField:     "member_id",
			PasswordField: "member_passwd",
			Submit:        "a.-btn.-block.-xl.-black",
		},
		Listing: ListingRules{
			Item:       ".prdList .item",
			Name:       "p.name a",
			NamePrefix: []string{"상품명 :", "상품명:"},
			Price:      "li.xans-record- > span[style*='font-size']",
			Thumbnail:  "img[id^='eListPrdImage']",
		},
		Detail: DetailRules{
			ReadyMarkers: markers,
			Code: Field{
				LabelSelector: "th",
				Label:         "자체상품코드",
				ValueSelector: "td",
				ValueChild:    "span",
			},
			Delivery:      Field{Selector: ".delv_price_B strong"},
			Gallery:       "#prdDetail img, .edibot-product img, .cont img, .xans-product-detail img",
			GalleryFilter: "/web/upload/NNEditor/",
		},
		Options: OptionRules{
			Control:       "select[option_product_no]",
			GroupIDAttr:   "option_product_no",
			TitleAttr:     "option_title",
			DefaultTitle:  "옵션",
			SkipValues:    []string{"", "*", "**"},
			SoldOutMarker: "품절",
		},
		Pricing: PricePolicy{Currency: "원", ReturnMultiplier: 1, ChangeMultiplier: 2},
	}
}

func godomall() Ruleset {
	return Ruleset{
		Name:      PresetGodomall,
		PageParam: "page",
		Login: LoginRules{
			UserField:     "m_id",
			PasswordField: "password",
			Submit:        "input[type='image'][src*='btn_login.gif']",
		},
		Listing: ListingRules{
			Item:      ".goodsList",
			Name:      ".goodsnm a",
			Price:     ".goodsPrice",
			Thumbnail: ".goodsImg img",
			Code:      ".goodscd",
		},
		Detail: DetailRules{
			ReadyMarkers: []string{"center[style*='1120px']", "select[name='opt[]']", "li.cont_title"},
			Delivery: Field{
				LabelSelector: "li.cont_title",
				Label:         "배송비",
				ValueSelector: "li.cont_desc",
			},
			Gallery: "center[style*='1120px'] img",
		},
		Options: OptionRules{
			Control:          "select[name='opt[]']",
			DefaultTitle:     "구성",
			SkipValues:       []string{""},
			SkipTextContains: []string{"=="},
			SoldOutMarker:    "품절",
		},
		Pricing: PricePolicy{Currency: "원", ReturnMultiplier: 1, ChangeMultiplier: 2},
	}
}
