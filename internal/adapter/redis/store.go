// Package redis provides a Redis-backed persistent cache tier. Each date is
// one hash holding the CSV-encoded prediction set and its creation time.
package redis

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix       = "crash-risk:predictions:"
	fieldCSV        = "csv"
	fieldCreatedAt  = "created_at"
	createdAtLayout = time.RFC3339Nano
)

// PredictionStore stores prediction sets in Redis without expiry.
type PredictionStore struct {
	client goredis.UniversalClient
	clock  clockwork.Clock
}

// NewClient connects to a single Redis server.
func NewClient(addr, password string, db int) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewPredictionStore wraps an existing client. clock stamps entries saved
// without a creation time; nil means real time.
func NewPredictionStore(client goredis.UniversalClient, clock clockwork.Clock) *PredictionStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PredictionStore{client: client, clock: clock}
}

// Key returns the Redis key for date.
func Key(date string) (string, error) {
	canonical, err := domain.CanonicalDate(date)
	if err != nil {
		return "", err
	}
	return keyPrefix + canonical, nil
}

// Load reads the prediction set for date.
func (s *PredictionStore) Load(ctx context.Context, date string) (domain.CacheEntry, bool, error) {
	key, err := Key(date)
	if err != nil {
		return domain.CacheEntry{}, false, err
	}

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("redis HGETALL %s: %w", key, err)
	}
	payload, ok := fields[fieldCSV]
	if !ok {
		return domain.CacheEntry{}, false, nil
	}

	preds, err := domain.DecodePredictionsCSV(strings.NewReader(payload))
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	entry := domain.CacheEntry{Date: strings.TrimPrefix(key, keyPrefix), Predictions: preds}
	if ts, ok := fields[fieldCreatedAt]; ok {
		if t, err := time.Parse(createdAtLayout, ts); err == nil {
			entry.CreatedAt = t
		}
	}
	return entry, true, nil
}

// Save replaces the stored set for the entry's date in one transaction.
func (s *PredictionStore) Save(ctx context.Context, entry domain.CacheEntry) error {
	key, err := Key(entry.Date)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := domain.EncodePredictionsCSV(&buf, entry.Predictions); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fieldCSV, buf.String(), fieldCreatedAt, createdAt.UTC().Format(createdAtLayout))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", key, err)
	}
	return nil
}

// Delete removes the set for date.
func (s *PredictionStore) Delete(ctx context.Context, date string) error {
	key, err := Key(date)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis DEL %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *PredictionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
