// Package cache provides a read-through store for provider responses so
// repeated runs do not burn provider quota on fields that rarely change.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/quantfold/fundrank/internal/provider"
)

// RecordCache stores partial records per provider and entity. A cache
// miss returns (nil, nil): caching is an optimization, never a failure
// the pipeline has to handle.
type RecordCache interface {
	Get(ctx context.Context, providerName, entityID string) (*provider.PartialRecord, error)
	Put(ctx context.Context, rec *provider.PartialRecord, ttl time.Duration) error
}

// Redis implements RecordCache on a redis client.
type Redis struct {
	client     redis.Cmdable
	defaultTTL time.Duration
	log        zerolog.Logger
}

// NewRedis wraps an existing redis client.
func NewRedis(client redis.Cmdable, defaultTTL time.Duration, log zerolog.Logger) *Redis {
	return &Redis{
		client:     client,
		defaultTTL: defaultTTL,
		log:        log.With().Str("component", "record_cache").Logger(),
	}
}

// Key layout: fund:rec:<provider>:<entity>.
func key(providerName, entityID string) string {
	return fmt.Sprintf("fund:rec:%s:%s", providerName, entityID)
}

// Get returns the cached partial record, or nil on a miss. Transport
// errors are logged and reported as misses so a flaky cache degrades to
// direct provider calls instead of failing entities.
func (r *Redis) Get(ctx context.Context, providerName, entityID string) (*provider.PartialRecord, error) {
	raw, err := r.client.Get(ctx, key(providerName, entityID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		r.log.Warn().Err(err).Str("provider", providerName).Str("entity", entityID).Msg("cache read failed, treating as miss")
		return nil, nil
	}
	var rec provider.PartialRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		r.log.Warn().Err(err).Str("provider", providerName).Str("entity", entityID).Msg("cache entry corrupt, treating as miss")
		return nil, nil
	}
	return &rec, nil
}

// Put stores a partial record under the provider/entity key.
func (r *Redis) Put(ctx context.Context, rec *provider.PartialRecord, ttl time.Duration) error {
	if rec == nil || len(rec.Fields) == 0 {
		return nil
	}
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding cached record: %w", err)
	}
	if err := r.client.Set(ctx, key(rec.Provider, rec.EntityID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("writing cached record: %w", err)
	}
	return nil
}
