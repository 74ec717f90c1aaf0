// Package storage persists assembled product records.
package storage

import (
	"context"
	"errors"

	"github.com/maltedev/catalog-crawler/internal/models"
)

// Sink persists one product. Writes overwrite whatever a previous run
// stored for the same product.
type Sink interface {
	Persist(ctx context.Context, rec *models.ProductRecord, manifest models.MediaManifest) error
}

// MultiSink persists to every sink in order and stops at the first error.
type MultiSink []Sink

func (m MultiSink) Persist(ctx context.Context, rec *models.ProductRecord, manifest models.MediaManifest) error {
	for _, s := range m {
		if err := s.Persist(ctx, rec, manifest); err != nil {
			return err
		}
	}
	return nil
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec *models.ProductRecord, manifest models.MediaManifest) error

func (f SinkFunc) Persist(ctx context.Context, rec *models.ProductRecord, manifest models.MediaManifest) error {
	return f(ctx, rec, manifest)
}

var ErrNoRecord = errors.New("nil product record")
