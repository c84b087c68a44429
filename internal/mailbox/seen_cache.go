package mailbox

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const seenKeyTTL = 72 * time.Hour

// SeenCache guards against double-processing a message when intake sweeps
// overlap. Claims are recorded in Redis with a TTL; when Redis is down the
// cache fails open since IMAP seen-flags already bound the damage.
type SeenCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewSeenCache creates the cache. A nil client disables the guard.
func NewSeenCache(client *redis.Client, logger *zap.Logger) *SeenCache {
	return &SeenCache{client: client, logger: logger}
}

// Claim atomically marks the message UID as taken and reports whether this
// caller was first.
func (s *SeenCache) Claim(ctx context.Context, uid uint32) bool {
	if s == nil || s.client == nil {
		return true
	}
	key := fmt.Sprintf("intake:seen:%d", uid)
	first, err := s.client.SetNX(ctx, key, 1, seenKeyTTL).Result()
	if err != nil {
		s.logger.Warn("seen cache unavailable", zap.Uint32("uid", uid), zap.Error(err))
		return true
	}
	return first
}
