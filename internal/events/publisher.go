// Package events fans finished result records out to a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/amazon-review-scraper/internal/models"
)

const (
	EventTypeReviewsCollected = "REVIEWS_COLLECTED"
	DefaultStream             = "stream:review_results"
)

// RedisClient is the subset of *redis.Client the publisher needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type Config struct {
	Stream string

	// MaxLen trims the stream approximately; zero keeps everything.
	MaxLen int64
}

type Publisher struct {
	redis  RedisClient
	stream string
	maxLen int64
	now    func() time.Time
	logger *slog.Logger
}

func NewPublisher(client RedisClient, cfg Config, logger *slog.Logger) *Publisher {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		redis:  client,
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
		now:    time.Now,
		logger: logger.With("component", "event_publisher"),
	}
}

// Publish appends record to the stream and returns the stream entry ID.
func (p *Publisher) Publish(ctx context.Context, record models.ResultRecord) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result record: %w", err)
	}

	eventID := uuid.New().String()
	ts := p.now()

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":        string(data),
			"type":        EventTypeReviewsCollected,
			"event_id":    eventID,
			"asin":        record.ASIN,
			"domain_code": record.DomainCode,
			"status":      record.StatusMessage,
			"status_code": strconv.Itoa(record.StatusCode),
			"reviews":     strconv.Itoa(len(record.Reviews)),
			"timestamp":   strconv.FormatInt(ts.UnixNano(), 10),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.redis.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Info("result published",
		"event_id", eventID,
		"stream_id", id,
		"asin", record.ASIN,
		"status", record.StatusMessage)
	return id, nil
}

// PublishAll publishes every record, logging failures, and returns how many went out.
func (p *Publisher) PublishAll(ctx context.Context, records []models.ResultRecord) int {
	published := 0
	for _, r := range records {
		if _, err := p.Publish(ctx, r); err != nil {
			p.logger.Error("failed to publish result", "asin", r.ASIN, "error", err)
			continue
		}
		published++
	}
	return published
}

func (p *Publisher) Close() error {
	return p.redis.Close()
}
