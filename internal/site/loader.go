package site

import (
	"fmt"
	"net/url"

	"github.com/spf13/viper"
)

// LoadFile reads a ruleset from a YAML (or any viper-supported) file. A
// top-level "extends" key names a preset the file overrides.
func LoadFile(path string) (*Ruleset, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read site rules %s: %w", path, err)
	}

	rs := &Ruleset{}
	if base := v.GetString("extends"); base != "" {
		preset, err := Preset(base)
		if err != nil {
			return nil, err
		}
		rs = preset
	}

	if err := v.Unmarshal(rs); err != nil {
		return nil, fmt.Errorf("failed to decode site rules %s: %w", path, err)
	}
	rs.ApplyDefaults()
	return rs, nil
}

// Overrides are deployment-specific URLs that are not part of a ruleset file.
type Overrides struct {
	BaseURL    string
	LoginURL   string
	ListingURL string
}

// Apply sets the non-empty overrides. A ruleset still without a base URL
// afterwards takes the origin of its listing URL.
func (r *Ruleset) Apply(o Overrides) {
	if o.BaseURL != "" {
		r.BaseURL = o.BaseURL
	}
	if o.LoginURL != "" {
		r.LoginURL = o.LoginURL
	}
	if o.ListingURL != "" {
		r.ListingURL = o.ListingURL
	}
	if r.BaseURL == "" {
		r.BaseURL = origin(r.ListingURL)
	}
}

func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
