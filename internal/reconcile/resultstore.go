package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const resultKeyPrefix = "reconcile:result:"

// ErrResultExpired means a pending result is gone from Redis, either
// because its TTL lapsed or because the run was discarded.
var ErrResultExpired = errors.New("reconcile: pending result expired")

// ResultStore parks parsed results in Redis between parse and review.
// Results are ephemeral by design; the catalog itself is never staged
// there.
type ResultStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultStore instantiates the store helper.
func NewResultStore(client *redis.Client, ttl time.Duration) *ResultStore {
	return &ResultStore{client: client, ttl: ttl}
}

// Put stores the result of one run under its run id.
func (s *ResultStore) Put(ctx context.Context, runID string, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, resultKeyPrefix+runID, payload, s.ttl).Err()
}

// Get loads a pending result. Missing keys surface as ErrResultExpired.
func (s *ResultStore) Get(ctx context.Context, runID string) (Result, error) {
	payload, err := s.client.Get(ctx, resultKeyPrefix+runID).Bytes()
	if err == redis.Nil {
		return Result{}, ErrResultExpired
	}
	if err != nil {
		return Result{}, err
	}
	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return Result{}, err
	}
	return result, nil
}

// Delete drops a pending result once it is applied or discarded.
func (s *ResultStore) Delete(ctx context.Context, runID string) error {
	return s.client.Del(ctx, resultKeyPrefix+runID).Err()
}
