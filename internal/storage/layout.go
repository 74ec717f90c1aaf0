package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/maltedev/catalog-crawler/internal/models"
	"golang.org/x/text/unicode/norm"
)

const maxDirNameBytes = 200

// Layout names the files of a per-product output directory.
type Layout struct {
	Root           string
	ThumbnailFile  string
	NameFile       string
	PriceFile      string
	GalleryDir     string
	GalleryPattern string
	RecordFile     string
}

func DefaultLayout(root string) Layout {
	return Layout{
		Root:           root,
		ThumbnailFile:  "대표이미지.jpg",
		NameFile:       "상품명.text",
		PriceFile:      "가격.text",
		GalleryDir:     "상세정보사진",
		GalleryPattern: "상세이미지_%d.jpg",
		RecordFile:     "productInfo.json",
	}
}

// ProductDir returns the directory for a product. fallback is used when the
// name has nothing usable left after sanitizing.
func (l Layout) ProductDir(name, fallback string) string {
	dir := SanitizeName(name)
	if dir == "" {
		dir = SanitizeName(fallback)
	}
	if dir == "" {
		dir = "unnamed"
	}
	return filepath.Join(l.Root, dir)
}

// SuffixedDir is ProductDir with "_"+suffix appended to the directory name.
// The name is shortened when needed so the suffix always survives.
func (l Layout) SuffixedDir(name, fallback, suffix string) string {
	suffix = "_" + SanitizeName(suffix)
	base := filepath.Base(l.ProductDir(name, fallback))
	base = truncateName(base, maxDirNameBytes-len(suffix))
	return filepath.Join(l.Root, base+suffix)
}

// Plan lays out the thumbnail and gallery images of one product. Gallery
// files are numbered from 1 in the order given.
func (l Layout) Plan(dir, thumbnail string, gallery []string) models.MediaManifest {
	m := models.MediaManifest{Dir: dir, Items: []models.MediaItem{}}
	if thumbnail != "" {
		m.Items = append(m.Items, models.MediaItem{
			Kind: models.MediaThumbnail,
			URL:  thumbnail,
			Path: filepath.Join(dir, l.ThumbnailFile),
		})
	}
	for i, u := range gallery {
		m.Items = append(m.Items, models.MediaItem{
			Kind: models.MediaGallery,
			URL:  u,
			Path: filepath.Join(dir, l.GalleryDir, fmt.Sprintf(l.GalleryPattern, i+1)),
		})
	}
	return m
}

// SanitizeName turns a product name into a single safe path element.
func SanitizeName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	clean := strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, name)
	clean = strings.Trim(clean, " .")
	return truncateName(clean, maxDirNameBytes)
}

func truncateName(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := max(limit, 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], " .")
}
