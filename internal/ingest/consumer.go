// Package ingest feeds the historical observations store: a Kafka
// consumer reads tweet-observation events published by the scraping jobs
// and batch-inserts them into Postgres.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"github.com/adolic/tweet-optimized/internal/training"
)

// ObservationEvent is the wire form of one scraped engagement
// measurement.
type ObservationEvent struct {
	Text                 string    `json:"text"`
	Author               string    `json:"author"`
	Views                float64   `json:"views"`
	Likes                float64   `json:"likes"`
	Retweets             float64   `json:"retweets"`
	Comments             float64   `json:"comments"`
	AuthorFollowersCount float64   `json:"author_followers_count"`
	AuthorFollowingCount float64   `json:"author_following_count"`
	AuthorTweetCount     float64   `json:"author_tweet_count"`
	IsBlueVerified       bool      `json:"is_blue_verified"`
	TweetTime            time.Time `json:"tweet_time"`
	ObservationTime      time.Time `json:"observation_time"`
	AuthorCreatedAt      time.Time `json:"author_created_at"`
}

// Observation converts the event to the training pipeline's row form.
func (e ObservationEvent) Observation() training.Observation {
	return training.Observation{
		Text:                 e.Text,
		Author:               e.Author,
		Views:                e.Views,
		Likes:                e.Likes,
		Retweets:             e.Retweets,
		Comments:             e.Comments,
		AuthorFollowersCount: e.AuthorFollowersCount,
		AuthorFollowingCount: e.AuthorFollowingCount,
		AuthorTweetCount:     e.AuthorTweetCount,
		IsBlueVerified:       e.IsBlueVerified,
		TweetTime:            e.TweetTime,
		ObservationTime:      e.ObservationTime,
		AuthorCreatedAt:      e.AuthorCreatedAt,
	}
}

// ObservationSink receives flushed observation batches.
type ObservationSink interface {
	InsertObservations(ctx context.Context, observations []training.Observation) error
}

// Config carries the Kafka connection settings for the consumer.
type Config struct {
	Broker  string
	GroupID string
	Topic   string
}

// Consumer reads observation events and flushes them to the sink in
// batches, by size or on a timer. Offsets are committed only after a
// successful flush.
type Consumer struct {
	consumer *kafka.Consumer
	sink     ObservationSink
	buffer   *BatchBuffer[training.Observation]
	topic    string
}

func NewConsumer(cfg Config, sink ObservationSink) (*Consumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Broker,
		"group.id":           cfg.GroupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	if err := c.SubscribeTopics([]string{cfg.Topic}, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to %q: %w", cfg.Topic, err)
	}

	slog.Info("[IngestConsumer] Kafka consumer initialized",
		slog.String("broker", cfg.Broker),
		slog.String("group_id", cfg.GroupID),
		slog.String("topic", cfg.Topic))

	return &Consumer{
		consumer: c,
		sink:     sink,
		buffer:   NewBatchBuffer[training.Observation](),
		topic:    cfg.Topic,
	}, nil
}

// Run consumes until the context is canceled, flushing any buffered rows
// before returning.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("[IngestConsumer] Listening for observation events...")

	ticker := time.NewTicker(BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Warn("[IngestConsumer] Stopping consumer...")
			c.flush(context.Background())
			return ctx.Err()
		case <-ticker.C:
			c.flush(ctx)
		default:
			msg, err := c.consumer.ReadMessage(time.Second)
			if err != nil {
				if kafkaErr, ok := err.(kafka.Error); ok && kafkaErr.Code() == kafka.ErrTimedOut {
					continue
				}
				slog.Warn("[IngestConsumer] Failed to read message",
					slog.String("error", err.Error()))
				continue
			}

			var event ObservationEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				slog.Warn("[IngestConsumer] Skipping malformed event",
					slog.String("error", err.Error()))
				continue
			}

			c.buffer.Add(event.Observation())
			if c.buffer.Size() >= BatchSize {
				c.flush(ctx)
			}
		}
	}
}

func (c *Consumer) flush(ctx context.Context) {
	batch := c.buffer.GetAndClear()
	if len(batch) == 0 {
		return
	}

	if err := c.sink.InsertObservations(ctx, batch); err != nil {
		dropped := c.buffer.Requeue(batch)
		slog.Error("[IngestConsumer] Failed to flush batch, will retry on next trigger",
			slog.Int("batch_size", len(batch)),
			slog.String("error", err.Error()))
		if dropped > 0 {
			slog.Warn("[IngestConsumer] Buffer full, dropped newest rows",
				slog.Int("dropped", dropped))
		}
		return
	}

	if _, err := c.consumer.Commit(); err != nil {
		slog.Warn("[IngestConsumer] Failed to commit offsets",
			slog.String("error", err.Error()))
		return
	}
	slog.Info("[IngestConsumer] Batch flushed",
		slog.Int("batch_size", len(batch)))
}

func (c *Consumer) Close() {
	if err := c.consumer.Close(); err != nil {
		slog.Warn("[IngestConsumer] Failed to close consumer",
			slog.String("error", err.Error()))
	}
}
