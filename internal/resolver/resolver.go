// Package resolver turns the URL forms found in catalog markup into
// absolute, fetchable URLs.
package resolver

import "strings"

// Resolve normalizes raw against baseURL. Rules apply in order:
// protocol-relative gets https, site-relative gets the base URL, http is
// upgraded to https, inline data:image payloads are returned untouched and
// anything else passes through. Resolve(Resolve(u, b), b) == Resolve(u, b).
func Resolve(raw, baseURL string) string {
	u := strings.TrimSpace(raw)
	switch {
	case u == "":
		return ""
	case IsInline(u):
		return u
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	case strings.HasPrefix(u, "/"):
		base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if base == "" {
			return u
		}
		return upgrade(base + u)
	default:
		return upgrade(u)
	}
}

// IsInline reports whether u carries its image bytes inline.
func IsInline(u string) bool {
	return hasPrefixFold(u, "data:image")
}

func upgrade(u string) string {
	if hasPrefixFold(u, "http:") {
		return "https:" + u[len("http:"):]
	}
	return u
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// Resolver binds Resolve to one site's base URL.
type Resolver struct {
	base string
}

func New(baseURL string) *Resolver {
	return &Resolver{base: baseURL}
}

func (r *Resolver) Resolve(raw string) string {
	return Resolve(raw, r.base)
}

func (r *Resolver) Base() string {
	return r.base
}
