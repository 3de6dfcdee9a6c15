// Package keys resolves API keys to their metadata, redis first and MySQL as
// the source of truth.
package keys

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"resbridge/internal/shared"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Store struct {
	redis *redis.Client
	rdb   *sql.DB
	log   *zap.SugaredLogger
}

// NewStore builds a Store. Either backend may be nil; a nil redis skips the
// cache and a nil db rejects every cache miss.
func NewStore(redisClient *redis.Client, rdb *sql.DB, log *zap.SugaredLogger) *Store {
	return &Store{redis: redisClient, rdb: rdb, log: log}
}

func cacheKey(apiKey string) string {
	return fmt.Sprintf("v1:bridge:apikey:%s", apiKey)
}

func (s *Store) Lookup(ctx context.Context, apiKey string) (*shared.KeyMetadata, error) {
	var key shared.KeyMetadata
	key.APIKey = apiKey

	keyCacheKey := cacheKey(apiKey)
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, keyCacheKey).Result()
		switch {
		case err == nil:
			if err := json.Unmarshal([]byte(cached), &key); err == nil {
				return &key, nil
			}
			s.log.Errorw("Error unmarshalling key cache", "error", err)
		case errors.Is(err, redis.Nil):
			s.log.Debugw("Key cache miss", "key", keyCacheKey)
		default:
			s.log.Warnw("Key cache unavailable", "error", err)
		}
	}

	if s.rdb == nil {
		return nil, shared.ErrUnauthorized
	}
	err := s.rdb.QueryRowContext(ctx, `
		SELECT
		api_key.id,
		api_key.owner_id,
		owner.email,
		owner.role,
		api_key.active
		FROM api_key
		INNER JOIN owner ON owner.id = api_key.owner_id
		WHERE api_key.token = ?
		`, apiKey).Scan(
		&key.KeyID,
		&key.OwnerID,
		&key.Email,
		&key.Role,
		&key.Active,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.log.Warnw("Invalid API key", "key_prefix", apiKey[:min(len(apiKey), 6)])
			return nil, shared.ErrUnauthorized
		}
		s.log.Errorw("Database error during API key validation", "error", err)
		return nil, shared.ErrUnauthorized
	}

	if s.redis != nil {
		go func() {
			cached, err := json.Marshal(key)
			if err != nil {
				s.log.Errorw("Error marshalling key metadata", "error", err)
				return
			}
			if err := s.redis.Set(context.Background(), keyCacheKey, cached, shared.APIKeyCacheTTL).Err(); err != nil {
				s.log.Warnw("Failed caching key metadata", "error", err)
			}
		}()
	}
	return &key, nil
}

// Static serves a fixed key set, for running without redis or MySQL.
type Static map[string]shared.KeyMetadata

func (s Static) Lookup(_ context.Context, apiKey string) (*shared.KeyMetadata, error) {
	key, ok := s[apiKey]
	if !ok {
		return nil, shared.ErrUnauthorized
	}
	key.APIKey = apiKey
	return &key, nil
}

type Source interface {
	Lookup(ctx context.Context, apiKey string) (*shared.KeyMetadata, error)
}

// Chain tries each source in order and returns the first hit.
type Chain []Source

func (c Chain) Lookup(ctx context.Context, apiKey string) (*shared.KeyMetadata, error) {
	for _, l := range c {
		if key, err := l.Lookup(ctx, apiKey); err == nil {
			return key, nil
		}
	}
	return nil, shared.ErrUnauthorized
}
