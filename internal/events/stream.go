package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	EventProductCrawled = "PRODUCT_CRAWLED"
	DefaultStream       = "stream:catalog_products"
)

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// StreamSink publishes one event per persisted record to a Redis stream.
type StreamSink struct {
	redis  RedisClient
	stream string
	site   string
	now    func() time.Time
	logger *slog.Logger
}

func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func NewStreamSink(client RedisClient, stream, site string, logger *slog.Logger) *StreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamSink{
		redis:  client,
		stream: stream,
		site:   site,
		now:    time.Now,
		logger: logger.With("component", "stream_sink"),
	}
}

func (s *StreamSink) Persist(ctx context.Context, rec *models.ProductRecord, manifest models.MediaManifest) error {
	if rec == nil {
		return storage.ErrNoRecord
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	eventID := uuid.New()
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"event_id":    eventID.String(),
			"event_type":  EventProductCrawled,
			"site":        s.site,
			"origin_path": rec.OriginPath,
			"product_id":  rec.ProductID,
			"media_dir":   manifest.Dir,
			"data":        string(data),
			"timestamp":   strconv.FormatInt(s.now().UnixNano(), 10),
		},
	}

	id, err := s.redis.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	s.logger.Debug("event published",
		"event_id", eventID,
		"stream_id", id,
		"origin_path", rec.OriginPath)
	return nil
}

func (s *StreamSink) Close() error {
	return s.redis.Close()
}
