package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeRunCompleted is published once per scrape run that got past
	// authentication.
	EventTypeRunCompleted EventType = "LIBRARY_RUN_COMPLETED"
)

const source = "audible-scraper"

// RunCompleted summarizes a finished run.
type RunCompleted struct {
	EventID          string    `json:"event_id"`
	EventType        string    `json:"event_type"`
	Timestamp        time.Time `json:"timestamp"`
	RunID            string    `json:"run_id"`
	Records          int       `json:"records"`
	Pages            int       `json:"pages"`
	FinalState       string    `json:"final_state"`
	StopReason       string    `json:"stop_reason"`
	ImagesDownloaded int       `json:"images_downloaded"`
	ImagesSkipped    int       `json:"images_skipped"`
	ImagesFailed     int       `json:"images_failed"`
	RecordFile       string    `json:"record_file,omitempty"`
	Source           string    `json:"source"`
}

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// NewRedisClient connects to addr. The connection is lazy.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Publisher appends run events to a Redis stream.
type Publisher struct {
	redis  RedisClient
	stream string
	logger *slog.Logger
}

func NewPublisher(client RedisClient, stream string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		redis:  client,
		stream: stream,
		logger: logger.With("component", "event_publisher"),
	}
}

// PublishRunCompleted fills the event metadata and XADDs the payload. It
// returns the stream entry ID.
func (p *Publisher) PublishRunCompleted(ctx context.Context, payload *RunCompleted) (string, error) {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	if payload.EventType == "" {
		payload.EventType = string(EventTypeRunCompleted)
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}
	payload.Source = source

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":       string(data),
			"event_type": payload.EventType,
			"event_id":   payload.EventID,
			"run_id":     payload.RunID,
			"timestamp":  fmt.Sprintf("%d", payload.Timestamp.UnixNano()),
		},
	}

	id, err := p.redis.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Info("run event published",
		"stream", p.stream,
		"stream_id", id,
		"event_id", payload.EventID,
		"run_id", payload.RunID)
	return id, nil
}

func (p *Publisher) Close() error {
	return p.redis.Close()
}
