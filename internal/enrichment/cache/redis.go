package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apperrors "query-enrichment/internal/common/errors"
	"query-enrichment/internal/common/database"
)

// RedisStore keeps entries as JSON with a Redis-side expiry matching the
// entry TTL.
type RedisStore struct {
	client *database.RedisClient
	now    func() time.Time
}

func NewRedisStore(client *database.RedisClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := r.client.Get(ctx, key)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, apperrors.NewCacheUnavailableError(r.Name(), err)
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, apperrors.NewCacheUnavailableError(r.Name(), err)
	}
	if e.Expired(r.now()) {
		return nil, ErrMiss
	}
	return &e, nil
}

func (r *RedisStore) Put(ctx context.Context, e *Entry) error {
	if e == nil || e.TTL <= 0 {
		return nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := r.client.Set(ctx, e.Key, raw, e.TTL); err != nil {
		return apperrors.NewCacheUnavailableError(r.Name(), err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key); err != nil {
		return apperrors.NewCacheUnavailableError(r.Name(), err)
	}
	return nil
}
