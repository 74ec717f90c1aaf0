package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/storage"
)

var ErrNoOriginPath = errors.New("record has no origin path")

const createRecordsTable = `
	CREATE TABLE IF NOT EXISTS catalog_products (
		origin_path    TEXT PRIMARY KEY,
		product_id     TEXT NOT NULL DEFAULT '',
		site           TEXT NOT NULL,
		product_name   TEXT NOT NULL,
		product_price  INTEGER NOT NULL DEFAULT 0,
		delivery_price INTEGER NOT NULL DEFAULT 0,
		record         JSONB NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

const upsertRecord = `
	INSERT INTO catalog_products (origin_path, product_id, site, product_name, product_price, delivery_price, record)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (origin_path) DO UPDATE SET
		product_id = EXCLUDED.product_id,
		site = EXCLUDED.site,
		product_name = EXCLUDED.product_name,
		product_price = EXCLUDED.product_price,
		delivery_price = EXCLUDED.delivery_price,
		record = EXCLUDED.record,
		updated_at = CURRENT_TIMESTAMP`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RecordSink keeps one row per product, keyed by its detail URL. A re-run
// overwrites the row.
type RecordSink struct {
	db     execer
	site   string
	logger *slog.Logger
}

func NewRecordSink(db *DB, site string, logger *slog.Logger) *RecordSink {
	return newRecordSink(db, site, logger)
}

func newRecordSink(db execer, site string, logger *slog.Logger) *RecordSink {
	return &RecordSink{
		db:     db,
		site:   site,
		logger: logger.With("component", "record_sink"),
	}
}

func (s *RecordSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createRecordsTable); err != nil {
		return fmt.Errorf("failed to create catalog_products: %w", err)
	}
	return nil
}

func (s *RecordSink) Persist(ctx context.Context, rec *models.ProductRecord, _ models.MediaManifest) error {
	if rec == nil {
		return storage.ErrNoRecord
	}
	if rec.OriginPath == "" {
		return ErrNoOriginPath
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tag, err := s.db.Exec(ctx, upsertRecord,
		rec.OriginPath, rec.ProductID, s.site, rec.ProductName,
		rec.ProductPrice, rec.DeliveryPrice, body,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", rec.OriginPath, err)
	}

	s.logger.Debug("record stored", "origin_path", rec.OriginPath, "rows", tag.RowsAffected())
	return nil
}
