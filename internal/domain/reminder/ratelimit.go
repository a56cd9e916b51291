package reminder

import "context"

// UserRateLimiter defines the contract for per-user reminder rate limiting.
// Implementations live in infra/ratelimit/.
type UserRateLimiter interface {
	// Allow checks whether a reminder may be dispatched for the given user.
	// Returns true if the dispatch is allowed, false if rate limited.
	Allow(ctx context.Context, userID string) (bool, error)
}
