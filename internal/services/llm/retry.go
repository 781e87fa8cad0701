package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// backoff is the attempt budget and the doubling delay between attempts.
type backoff struct {
	attempts int
	base     time.Duration
	max      time.Duration
}

// delay is the wait after the given 1-based attempt failed with err. A
// server Retry-After hint replaces the computed delay, still capped.
func (b backoff) delay(attempt int, err error) time.Duration {
	var status *statusError
	if errors.As(err, &status) && status.RetryAfter > 0 {
		return min(status.RetryAfter, b.max)
	}
	if b.base <= 0 {
		return 0
	}
	d := b.base
	for i := 1; i < attempt && d < b.max; i++ {
		d *= 2
	}
	return min(d, b.max)
}

// retryable reports whether another attempt could succeed: throttling, server
// errors, network timeouts and empty replies. Cancellation never retries.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var empty *emptyReplyError
	if errors.As(err, &empty) {
		return true
	}
	var status *statusError
	if errors.As(err, &status) {
		return status.Code == http.StatusRequestTimeout ||
			status.Code == http.StatusTooManyRequests ||
			status.Code >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// parseRetryAfter reads delta-seconds or an HTTP date. Anything else, or a
// moment already past, yields zero.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return max(time.Duration(seconds)*time.Second, 0)
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(time.Until(when), 0)
	}
	return 0
}
