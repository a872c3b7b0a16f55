package sessions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyforge/keyforge/pkg/logger"
)

// Revoked tokens live in Redis keyed by token hash, expiring when the token
// itself would. With no Redis client configured revocation degrades to the
// session row deletion alone.

var revocationClient *redis.Client

// SetRevocationClient installs the Redis client used for the token blacklist.
func SetRevocationClient(c *redis.Client) { revocationClient = c }

func revocationKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "revoked:" + hex.EncodeToString(sum[:])
}

// RevokeToken blacklists a token for ttl. A non-positive ttl means the token
// is already expired and nothing needs storing.
func RevokeToken(ctx context.Context, token string, ttl time.Duration) {
	if revocationClient == nil || ttl <= 0 {
		return
	}
	if err := revocationClient.Set(ctx, revocationKey(token), "1", ttl).Err(); err != nil {
		logger.Warnf("failed to blacklist token: %v", err)
	}
}

// IsTokenRevoked reports whether the token has been blacklisted. Redis errors
// fail open so an outage does not lock everyone out.
func IsTokenRevoked(ctx context.Context, token string) bool {
	if revocationClient == nil {
		return false
	}
	n, err := revocationClient.Exists(ctx, revocationKey(token)).Result()
	if err != nil {
		logger.Warnf("token revocation check failed: %v", err)
		return false
	}
	return n > 0
}
