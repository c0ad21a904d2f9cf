package rate

import "errors"

var (
	// ErrRateLimited reports an exhausted fixed-window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps transport errors from the Redis backend.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
