package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"tradeberg/internal/model"
)

// SearchCache keeps recent similarity results in Redis. Each ticker carries a
// version counter that is bumped after a successful re-ingestion, so cached
// rankings from a superseded chunk set can never be served.
type SearchCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewSearchCache(client *redisv9.Client, ttl time.Duration) *SearchCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &SearchCache{client: client, ttl: ttl}
}

func (c *SearchCache) Get(ctx context.Context, query, ticker string, k int) ([]model.ScoredChunk, bool, error) {
	key, err := c.resultKey(ctx, query, ticker, k)
	if err != nil {
		return nil, false, err
	}
	raw, err := c.client.Get(ctx, key).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get search result failed: %w", err)
	}

	var chunks []model.ScoredChunk
	if err := json.Unmarshal([]byte(raw), &chunks); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached search result failed: %w", err)
	}
	return chunks, true, nil
}

func (c *SearchCache) Set(ctx context.Context, query, ticker string, k int, chunks []model.ScoredChunk) error {
	key, err := c.resultKey(ctx, query, ticker, k)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("marshal search result failed: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set search result failed: %w", err)
	}
	return nil
}

// Invalidate bumps the ticker's version and the global version so both
// filtered and unfiltered cached results stop matching.
func (c *SearchCache) Invalidate(ctx context.Context, ticker string) error {
	if err := c.client.Incr(ctx, versionKey(ticker)).Err(); err != nil {
		return fmt.Errorf("redis bump search version failed: %w", err)
	}
	if err := c.client.Incr(ctx, versionKey("")).Err(); err != nil {
		return fmt.Errorf("redis bump global search version failed: %w", err)
	}
	return nil
}

func (c *SearchCache) resultKey(ctx context.Context, query, ticker string, k int) (string, error) {
	version, err := c.client.Get(ctx, versionKey(ticker)).Int64()
	if err != nil && err != redisv9.Nil {
		return "", fmt.Errorf("redis get search version failed: %w", err)
	}
	digest := sha256.Sum256([]byte(query))
	return fmt.Sprintf("search:result:%s:%d:%d:%x", scope(ticker), version, k, digest[:16]), nil
}

func versionKey(ticker string) string {
	return "search:version:" + scope(ticker)
}

func scope(ticker string) string {
	if ticker == "" {
		return "_all"
	}
	return ticker
}
