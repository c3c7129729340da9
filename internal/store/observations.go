package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adolic/tweet-optimized/internal/training"
)

const observationsTable = "twitter_forecast"

// ObservationStore reads and writes historical tweet observations in
// Postgres. Reads feed the offline training pipeline; writes come from
// the ingest consumer.
type ObservationStore struct {
	pool *pgxpool.Pool
}

func NewObservationStore(ctx context.Context, dsn string) (*ObservationStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	slog.Info("[ObservationStore] Connected to PostgreSQL")
	return &ObservationStore{pool: pool}, nil
}

func (s *ObservationStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Observations loads every stored observation row. Filtering happens in
// the training pipeline, not in SQL, so filter thresholds stay in one
// place.
func (s *ObservationStore) Observations(ctx context.Context) ([]training.Observation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT text, author,
		       views, likes, retweets, comments,
		       author_followers_count, author_following_count, author_tweet_count,
		       is_blue_verified,
		       tweet_time, observation_time, author_created_at
		FROM `+observationsTable)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var out []training.Observation
	for rows.Next() {
		var o training.Observation
		if err := rows.Scan(
			&o.Text, &o.Author,
			&o.Views, &o.Likes, &o.Retweets, &o.Comments,
			&o.AuthorFollowersCount, &o.AuthorFollowingCount, &o.AuthorTweetCount,
			&o.IsBlueVerified,
			&o.TweetTime, &o.ObservationTime, &o.AuthorCreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan observation row: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read observations: %w", err)
	}
	return out, nil
}

// InsertObservations bulk-writes a batch of observations using the
// Postgres COPY protocol.
func (s *ObservationStore) InsertObservations(ctx context.Context, observations []training.Observation) error {
	if len(observations) == 0 {
		return nil
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{observationsTable},
		[]string{
			"text", "author",
			"views", "likes", "retweets", "comments",
			"author_followers_count", "author_following_count", "author_tweet_count",
			"is_blue_verified",
			"tweet_time", "observation_time", "author_created_at",
		},
		pgx.CopyFromSlice(len(observations), func(i int) ([]any, error) {
			o := observations[i]
			return []any{
				o.Text, o.Author,
				o.Views, o.Likes, o.Retweets, o.Comments,
				o.AuthorFollowersCount, o.AuthorFollowingCount, o.AuthorTweetCount,
				o.IsBlueVerified,
				o.TweetTime, o.ObservationTime, o.AuthorCreatedAt,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy observations: %w", err)
	}

	slog.Info("[ObservationStore] Observations inserted",
		slog.Int("rows", len(observations)))
	return nil
}
