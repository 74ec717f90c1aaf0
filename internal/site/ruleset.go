// Package site holds the per-site extraction rules that parameterize the
// generic crawl pipeline.
package site

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrUnknownPreset  = errors.New("unknown site preset")
	ErrInvalidRuleset = errors.New("invalid site ruleset")
)

// DefaultDeltaPattern matches "(+1,000원)" and "(1,000원)" with the amount
// in the first group.
const DefaultDeltaPattern = `\(\s*\+?\s*([\d,]+)\s*원\s*\)`

type Ruleset struct {
	Name       string `mapstructure:"name"`
	BaseURL    string `mapstructure:"base_url"`
	LoginURL   string `mapstructure:"login_url"`
	ListingURL string `mapstructure:"listing_url"`
	PageParam  string `mapstructure:"page_param"`

	Login   LoginRules   `mapstructure:"login"`
	Listing ListingRules `mapstructure:"listing"`
	Detail  DetailRules  `mapstructure:"detail"`
	Options OptionRules  `mapstructure:"options"`
	Pricing PricePolicy  `mapstructure:"pricing"`
}

// LoginRules name the login form inputs. LoggedInMarker, when set, must
// appear before login counts as done.
type LoginRules struct {
	UserField      string `mapstructure:"user_field"`
	PasswordField  string `mapstructure:"password_field"`
	Submit         string `mapstructure:"submit"`
	LoggedInMarker string `mapstructure:"logged_in_marker"`
}

type ListingRules struct {
	Item       string   `mapstructure:"item"`
	Name       string   `mapstructure:"name"`
	NamePrefix []string `mapstructure:"name_prefix"`
	Link       string   `mapstructure:"link"`
	Price      string   `mapstructure:"price"`
	Thumbnail  string   `mapstructure:"thumbnail"`
	Code       string   `mapstructure:"code"`
	ImageAttrs []string `mapstructure:"image_attrs"`
}

type DetailRules struct {
	ReadyMarkers  []string `mapstructure:"ready_markers"`
	Code          Field    `mapstructure:"code"`
	Delivery      Field    `mapstructure:"delivery"`
	Gallery       string   `mapstructure:"gallery"`
	GalleryFilter string   `mapstructure:"gallery_filter"`
	ImageAttrs    []string `mapstructure:"image_attrs"`
}

// Field locates one text value on a page. Selector wins when set;
// otherwise the value is the first sibling matching ValueSelector that
// follows a LabelSelector element whose text contains Label.
type Field struct {
	Selector      string `mapstructure:"selector"`
	LabelSelector string `mapstructure:"label_selector"`
	Label         string `mapstructure:"label"`
	ValueSelector string `mapstructure:"value_selector"`
	ValueChild    string `mapstructure:"value_child"`
}

func (f Field) IsZero() bool {
	return f.Selector == "" && f.LabelSelector == ""
}

type OptionRules struct {
	Control          string   `mapstructure:"control"`
	GroupIDAttr      string   `mapstructure:"group_id_attr"`
	TitleAttr        string   `mapstructure:"title_attr"`
	DefaultTitle     string   `mapstructure:"default_title"`
	SkipValues       []string `mapstructure:"skip_values"`
	SkipTextContains []string `mapstructure:"skip_text_contains"`
	DeltaPattern     string   `mapstructure:"delta_pattern"`
	SoldOutMarker    string   `mapstructure:"sold_out_marker"`
}

// PricePolicy derives return and exchange fees from the delivery fee.
type PricePolicy struct {
	Currency         string `mapstructure:"currency"`
	ReturnMultiplier int    `mapstructure:"return_multiplier"`
	ChangeMultiplier int    `mapstructure:"change_multiplier"`
}

func (p PricePolicy) ReturnPrice(delivery int) int {
	return delivery * p.ReturnMultiplier
}

func (p PricePolicy) ChangePrice(delivery int) int {
	return delivery * p.ChangeMultiplier
}

// PageURL returns the listing URL for page n. Only the page parameter is
// touched; the rest of the query keeps its order and encoding.
func (r *Ruleset) PageURL(n int) (string, error) {
	u, err := url.Parse(r.ListingURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse listing url: %w", err)
	}
	param := r.PageParam
	if param == "" {
		param = "page"
	}

	var parts []string
	for _, part := range strings.Split(u.RawQuery, "&") {
		if part == "" {
			continue
		}
		key, _, _ := strings.Cut(part, "=")
		if k, err := url.QueryUnescape(key); err == nil && k == param {
			continue
		}
		parts = append(parts, part)
	}
	parts = append(parts, url.QueryEscape(param)+"="+strconv.Itoa(n))
	u.RawQuery = strings.Join(parts, "&")
	return u.String(), nil
}

// DeltaRegexp compiles the option price-delta pattern.
func (r *Ruleset) DeltaRegexp() (*regexp.Regexp, error) {
	pattern := r.Options.DeltaPattern
	if pattern == "" {
		pattern = DefaultDeltaPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: delta pattern: %v", ErrInvalidRuleset, err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("%w: delta pattern needs a capture group", ErrInvalidRuleset)
	}
	return re, nil
}

func (r *Ruleset) Validate() error {
	var missing []string
	if r.ListingURL == "" {
		missing = append(missing, "listing_url")
	}
	if r.BaseURL == "" {
		missing = append(missing, "base_url")
	}
	if r.Listing.Item == "" {
		missing = append(missing, "listing.item")
	}
	if r.Listing.Name == "" {
		missing = append(missing, "listing.name")
	}
	if r.Detail.Gallery == "" {
		missing = append(missing, "detail.gallery")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRuleset, strings.Join(missing, ", "))
	}
	if r.Pricing.ReturnMultiplier < 0 || r.Pricing.ChangeMultiplier < 0 {
		return fmt.Errorf("%w: negative price multiplier", ErrInvalidRuleset)
	}
	if _, err := r.DeltaRegexp(); err != nil {
		return err
	}
	return nil
}

// ApplyDefaults fills fields a ruleset may leave blank.
func (r *Ruleset) ApplyDefaults() {
	if r.PageParam == "" {
		r.PageParam = "page"
	}
	if len(r.Listing.ImageAttrs) == 0 {
		r.Listing.ImageAttrs = []string{"src", "data-src"}
	}
	if len(r.Detail.ImageAttrs) == 0 {
		r.Detail.ImageAttrs = []string{"src", "data-src"}
	}
	if r.Options.DefaultTitle == "" {
		r.Options.DefaultTitle = "옵션"
	}
	if r.Options.DeltaPattern == "" {
		r.Options.DeltaPattern = DefaultDeltaPattern
	}
	if r.Pricing.Currency == "" {
		r.Pricing.Currency = "원"
	}
	if r.Pricing.ReturnMultiplier == 0 && r.Pricing.ChangeMultiplier == 0 {
		r.Pricing.ReturnMultiplier = 1
		r.Pricing.ChangeMultiplier = 2
	}
}

type Credentials struct {
	User     string
	Password string
}
