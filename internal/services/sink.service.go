package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"tickwatch/internal/models"
)

// HistorySink persists exported cadence points outside the process.
type HistorySink interface {
	Store(ctx context.Context, point models.CadencePoint) error
}

// RedisHistorySink keeps the newest points in a capped Redis list, newest
// first.
type RedisHistorySink struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedisHistorySink connects to url (redis://host:port/db).
func NewRedisHistorySink(url, key string, maxLen int64) (*RedisHistorySink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if maxLen < 1 {
		maxLen = 1
	}
	return &RedisHistorySink{
		client: redis.NewClient(opts),
		key:    key,
		maxLen: maxLen,
	}, nil
}

// Ping checks the connection.
func (s *RedisHistorySink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Store implements HistorySink.
func (s *RedisHistorySink) Store(ctx context.Context, point models.CadencePoint) error {
	data, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("encoding cadence point: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, data)
	pipe.LTrim(ctx, s.key, 0, s.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing cadence point: %w", err)
	}
	return nil
}

// Recent returns up to n stored points, newest first.
func (s *RedisHistorySink) Recent(ctx context.Context, n int64) ([]models.CadencePoint, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading cadence points: %w", err)
	}

	points := make([]models.CadencePoint, 0, len(raw))
	for _, r := range raw {
		var p models.CadencePoint
		if err := json.Unmarshal([]byte(r), &p); err != nil {
			return nil, fmt.Errorf("decoding cadence point: %w", err)
		}
		points = append(points, p)
	}
	return points, nil
}

func (s *RedisHistorySink) Close() error {
	return s.client.Close()
}
