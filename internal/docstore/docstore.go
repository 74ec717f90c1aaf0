package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Config struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// Connect opens a client and verifies it with a ping.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetRetryWrites(true))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, nil
}

type replacer interface {
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
}

// Sink stores each record as a document keyed by origin_path, replacing the
// previous run's document.
type Sink struct {
	coll   replacer
	site   string
	logger *slog.Logger
}

func NewSink(client *mongo.Client, cfg Config, site string, logger *slog.Logger) *Sink {
	return newSink(client.Database(cfg.Database).Collection(cfg.Collection), site, logger)
}

func newSink(coll replacer, site string, logger *slog.Logger) *Sink {
	return &Sink{
		coll:   coll,
		site:   site,
		logger: logger.With("component", "docstore"),
	}
}

type document struct {
	*models.ProductRecord `bson:",inline"`

	Site     string `bson:"site"`
	MediaDir string `bson:"media_dir"`
}

func (s *Sink) Persist(ctx context.Context, rec *models.ProductRecord, manifest models.MediaManifest) error {
	if rec == nil {
		return storage.ErrNoRecord
	}

	doc := document{ProductRecord: rec, Site: s.site, MediaDir: manifest.Dir}
	filter := bson.D{{Key: "origin_path", Value: rec.OriginPath}}
	res, err := s.coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("could not save product %s: %w", rec.OriginPath, err)
	}

	s.logger.Debug("document saved",
		"origin_path", rec.OriginPath,
		"matched", res.MatchedCount,
		"upserted", res.UpsertedCount)
	return nil
}
