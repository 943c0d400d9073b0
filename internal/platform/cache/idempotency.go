package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyPrefix = "idempotency:"
	inFlightMarker    = "in-flight"
)

// ErrRequestInFlight is returned when a request with the same key is still
// being processed.
var ErrRequestInFlight = errors.New("request with this idempotency key is in progress")

// StoredResponse is the response replayed for a repeated idempotency key.
type StoredResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// IdempotencyStore records the response of the first request for a key.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Begin reserves key. It returns the stored response when key was already
// completed, ErrRequestInFlight while another request holds it, and
// (nil, nil) when the caller now owns the key.
func (s *IdempotencyStore) Begin(ctx context.Context, key string) (*StoredResponse, error) {
	redisKey := idempotencyPrefix + key

	reserved, err := s.client.SetNX(ctx, redisKey, inFlightMarker, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if reserved {
		return nil, nil
	}

	raw, err := s.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls
		return s.Begin(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	if string(raw) == inFlightMarker {
		return nil, ErrRequestInFlight
	}

	var stored StoredResponse
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode stored response: %w", err)
	}
	return &stored, nil
}

// Complete stores the response for key.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, resp StoredResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	if err := s.client.Set(ctx, idempotencyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store idempotency response: %w", err)
	}
	return nil
}

// Release drops the reservation so the request can be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, idempotencyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}
