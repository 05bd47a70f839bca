package imports

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const payloadKeyPrefix = "imports:payload:"

// PayloadStore parks raw upload bytes in Redis until the parse task
// picks them up. Payloads share the pending-result TTL, so an orphaned
// upload cannot linger.
type PayloadStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPayloadStore instantiates the store helper.
func NewPayloadStore(client *redis.Client, ttl time.Duration) *PayloadStore {
	return &PayloadStore{client: client, ttl: ttl}
}

// Put stores the raw file under the run id.
func (s *PayloadStore) Put(ctx context.Context, runID string, payload []byte) error {
	return s.client.Set(ctx, payloadKeyPrefix+runID, payload, s.ttl).Err()
}

// Get loads the raw file. Missing keys surface as ErrPayloadExpired.
func (s *PayloadStore) Get(ctx context.Context, runID string) ([]byte, error) {
	payload, err := s.client.Get(ctx, payloadKeyPrefix+runID).Bytes()
	if err == redis.Nil {
		return nil, ErrPayloadExpired
	}
	return payload, err
}

// Delete drops the raw file once parsed or discarded.
func (s *PayloadStore) Delete(ctx context.Context, runID string) error {
	return s.client.Del(ctx, payloadKeyPrefix+runID).Err()
}
