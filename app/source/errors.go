package source

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable marks transient upstream failures that persisted through
// the retry budget. Cursor state must not advance when a fetch fails with it.
var ErrUnavailable = errors.New("source unavailable")

// ErrConfig marks non-retryable upstream rejections (bad token, bad group id).
var ErrConfig = errors.New("source configuration rejected")

// RateLimitError is returned when the upstream keeps rate-limiting past the
// cooldown budget. A single 429 is absorbed by the client itself.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}
