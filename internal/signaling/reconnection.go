package signaling

import (
	"context"
	"fmt"
	"time"

	"fjarsyn/models"
)

// ============================================================
// DIAL WITH BACKOFF
// ============================================================

type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: models.InitialRetryDelay,
		MaxDelay:     models.MaxRetryDelay,
		MaxAttempts:  models.MaxRetries,
	}
}

// DialWithRetry keeps dialing with exponential backoff until it succeeds,
// runs out of attempts or ctx ends. It does not resume a dropped session.
func DialWithRetry(ctx context.Context, url string, policy RetryPolicy) (*Conn, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	delay := policy.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		conn, err := Dial(ctx, url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Warnf("🔄 Relay dial attempt %d/%d failed: %v", attempt, policy.MaxAttempts, err)

		if attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = nextDelay(delay, policy.MaxDelay)
	}

	return nil, fmt.Errorf("relay unreachable after %d attempts: %w", policy.MaxAttempts, lastErr)
}

func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
