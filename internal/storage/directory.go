package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/maltedev/catalog-crawler/internal/models"
)

// DirectorySink writes one directory per product: name and price as plain
// text, the record as indented JSON. Images are expected to be in place
// already, written by the media materializer to the manifest paths.
type DirectorySink struct {
	layout Layout
	logger *slog.Logger
}

func NewDirectorySink(layout Layout, logger *slog.Logger) *DirectorySink {
	return &DirectorySink{
		layout: layout,
		logger: logger.With("component", "directory_sink"),
	}
}

func (s *DirectorySink) Layout() Layout {
	return s.layout
}

func (s *DirectorySink) Persist(ctx context.Context, rec *models.ProductRecord, manifest models.MediaManifest) error {
	if rec == nil {
		return ErrNoRecord
	}
	dir := manifest.Dir
	if dir == "" {
		dir = s.layout.ProductDir(rec.ProductName, rec.ProductID)
	}

	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	files := []struct {
		name string
		data []byte
	}{
		{s.layout.NameFile, []byte(rec.ProductName)},
		{s.layout.PriceFile, []byte(strconv.Itoa(rec.ProductPrice))},
		{s.layout.RecordFile, data},
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := WriteBytes(filepath.Join(dir, f.name), f.data); err != nil {
			return err
		}
	}

	if err := s.pruneThumbnail(dir, manifest); err != nil {
		return err
	}
	if err := s.pruneGallery(dir, manifest); err != nil {
		return err
	}

	s.logger.Debug("product persisted", "dir", dir, "images", manifest.SavedCount())
	return nil
}

// pruneThumbnail removes a representative image left by a previous run when
// this run did not save one.
func (s *DirectorySink) pruneThumbnail(dir string, manifest models.MediaManifest) error {
	for _, it := range manifest.Items {
		if it.Kind == models.MediaThumbnail && it.Saved {
			return nil
		}
	}
	p := filepath.Join(dir, s.layout.ThumbnailFile)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale image %s: %w", p, err)
	}
	return nil
}

// pruneGallery removes gallery files a previous run left behind that this
// run did not write.
func (s *DirectorySink) pruneGallery(dir string, manifest models.MediaManifest) error {
	galleryDir := filepath.Join(dir, s.layout.GalleryDir)
	entries, err := os.ReadDir(galleryDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read gallery dir: %w", err)
	}

	keep := make(map[string]struct{})
	for _, it := range manifest.Items {
		if it.Saved && it.Kind == models.MediaGallery {
			keep[filepath.Clean(it.Path)] = struct{}{}
		}
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(galleryDir, e.Name())
		if _, ok := keep[p]; ok {
			continue
		}
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("failed to remove stale image %s: %w", p, err)
		}
	}
	return nil
}

// EncodeRecord renders a record the way it is stored on disk: two-space
// indentation, no HTML escaping, trailing newline.
func EncodeRecord(rec *models.ProductRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return buf.Bytes(), nil
}
