package embedding

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"
)

const cacheKeyPrefix = "tweetopt:emb:"

// CacheConfig configures the Valkey connection behind a cached embedder.
type CacheConfig struct {
	Addr     string
	Password string
	UseTLS   bool
	TTL      time.Duration
}

// CachedEmbedder is a read-through Valkey cache in front of another
// Embedder. Embeddings are deterministic, so a hit is always exact. Cache
// faults degrade to the inner embedder and never fail a prediction.
type CachedEmbedder struct {
	inner  Embedder
	client valkey.Client
	ttl    time.Duration
}

func NewCachedEmbedder(inner Embedder, cfg CacheConfig) (*CachedEmbedder, error) {
	opts := valkey.ClientOption{
		InitAddress:      []string{cfg.Addr},
		Password:         cfg.Password,
		ConnWriteTimeout: 5 * time.Second,
		SelectDB:         0,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: false}
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Valkey: %w", err)
	}

	slog.Info("[EmbedCache] Connected to Valkey", slog.String("addr", cfg.Addr))

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEmbedder{inner: inner, client: client, ttl: ttl}, nil
}

func cacheKey(modelName, text string) string {
	sum := sha256.Sum256([]byte(modelName + "\x00" + text))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	missing := make([]int, 0, len(texts))

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = cacheKey(c.inner.ModelName(), text)
	}

	resp := c.client.Do(ctx, c.client.B().Mget().Key(keys...).Build())
	if err := resp.Error(); err != nil {
		slog.Warn("[EmbedCache] Lookup failed, falling back to backend",
			slog.String("error", err.Error()))
		return c.inner.Embed(ctx, texts)
	}
	entries, err := resp.ToArray()
	if err != nil || len(entries) != len(texts) {
		slog.Warn("[EmbedCache] Unexpected lookup response, falling back to backend")
		return c.inner.Embed(ctx, texts)
	}

	for i, entry := range entries {
		raw, err := entry.AsBytes()
		if err != nil {
			missing = append(missing, i)
			continue
		}
		var vec []float32
		if err := json.Unmarshal(raw, &vec); err != nil || len(vec) != c.inner.Dimension() {
			missing = append(missing, i)
			continue
		}
		vectors[i] = vec
	}

	if len(missing) > 0 {
		missTexts := make([]string, len(missing))
		for j, i := range missing {
			missTexts[j] = texts[i]
		}
		computed, err := c.inner.Embed(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, i := range missing {
			vectors[i] = computed[j]
			c.store(ctx, keys[i], computed[j])
		}
	}

	slog.Debug("[EmbedCache] Batch served",
		slog.Int("texts", len(texts)),
		slog.Int("misses", len(missing)))
	return vectors, nil
}

func (c *CachedEmbedder) store(ctx context.Context, key string, vec []float32) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	cmd := c.client.B().Set().Key(key).Value(string(raw)).
		Ex(c.ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		slog.Warn("[EmbedCache] Failed to store embedding",
			slog.String("error", err.Error()))
	}
}

func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

func (c *CachedEmbedder) Close() {
	c.client.Close()
}
