package codes

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps short-lived verification and password-reset codes in redis.
// Codes are consumed once: a successful read deletes the entry.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) StoreVerificationCode(ctx context.Context, userUID, code string) error {
	return s.client.Set(ctx, verificationKey(userUID), code, s.ttl).Err()
}

func (s *Store) ConsumeVerificationCode(ctx context.Context, userUID string) (string, bool, error) {
	return s.consume(ctx, verificationKey(userUID))
}

func (s *Store) StorePasswordResetCode(ctx context.Context, userUID, code string) error {
	return s.client.Set(ctx, passwordResetKey(userUID), code, s.ttl).Err()
}

func (s *Store) ConsumePasswordResetCode(ctx context.Context, userUID string) (string, bool, error) {
	return s.consume(ctx, passwordResetKey(userUID))
}

func (s *Store) consume(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func verificationKey(userUID string) string {
	return fmt.Sprintf("verification:%s", userUID)
}

func passwordResetKey(userUID string) string {
	return fmt.Sprintf("password-reset:%s", userUID)
}
