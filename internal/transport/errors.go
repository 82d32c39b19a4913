package transport

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrBlocked     = errors.New("recipient blocked the bot")
	ErrDeactivated = errors.New("recipient account is deactivated")
)

// RateLimitedError is flood control from the chat API. The caller should pause
// for RetryAfter and try again.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// IsPermanent reports whether retrying a delivery can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrBlocked) || errors.Is(err, ErrDeactivated)
}

func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
