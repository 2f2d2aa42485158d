package blocklist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blocklist records revoked token ids in redis. Entries carry a TTL no
// shorter than the remaining lifetime of the token they target, so storage
// stays bounded and a revocation never outlives its token.
type Blocklist struct {
	client *redis.Client
}

func New(client *redis.Client) *Blocklist {
	return &Blocklist{client: client}
}

// Add marks a jti revoked. Re-adding an already revoked jti is a no-op
// beyond refreshing the TTL, so retries are safe.
func (b *Blocklist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		// Token already expired; nothing left to revoke.
		return nil
	}
	return b.client.Set(ctx, blocklistKey(jti), "revoked", ttl).Err()
}

// Contains reports whether a jti has been revoked. Errors propagate so the
// caller can fail closed instead of treating an unreachable store as
// "not revoked".
func (b *Blocklist) Contains(ctx context.Context, jti string) (bool, error) {
	_, err := b.client.Get(ctx, blocklistKey(jti)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func blocklistKey(jti string) string {
	return fmt.Sprintf("blocklist:%s", jti)
}
