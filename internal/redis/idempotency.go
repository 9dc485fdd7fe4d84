package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which appointment a patient's Idempotency-Key
// produced, so a retried booking request returns the original appointment
// instead of failing with a slot conflict against itself.
type IdempotencyStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewIdempotencyStore(client redis.UniversalClient, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

func idempotencyKey(patientID uuid.UUID, key string) string {
	return fmt.Sprintf("idem:booking:%s:%s", patientID, key)
}

// Lookup returns the appointment stored for the key, if any.
func (s *IdempotencyStore) Lookup(ctx context.Context, patientID uuid.UUID, key string) (uuid.UUID, bool, error) {
	val, err := s.client.Get(ctx, idempotencyKey(patientID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("idempotency lookup: %w", err)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("idempotency lookup: stored value %q: %w", val, err)
	}
	return id, true, nil
}

// Remember stores the appointment for the key. The first writer wins.
func (s *IdempotencyStore) Remember(ctx context.Context, patientID uuid.UUID, key string, appointmentID uuid.UUID) error {
	if err := s.client.SetNX(ctx, idempotencyKey(patientID, key), appointmentID.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency remember: %w", err)
	}
	return nil
}
