package infra

import (
	"math/rand"
	"time"
)

const (
	// Standard backoff constants
	baseDelay = 1 * time.Second
	maxDelay  = 60 * time.Second
)

// CalculateBackoff returns the exponential backoff duration for a given retry count.
// Logic: baseDelay * 2^retryCount, capped at maxDelay.
// If retryCount is negative, it returns baseDelay.
func CalculateBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		return baseDelay
	}

	// 2^30 seconds is already far beyond maxDelay; cap early to avoid
	// shifting into overflow.
	if retryCount > 30 {
		return maxDelay
	}

	backoff := baseDelay * time.Duration(1<<retryCount)

	if backoff > maxDelay {
		return maxDelay
	}

	return backoff
}

// BackoffWithJitter adds up to 25% random jitter on top of CalculateBackoff
// so a fleet of clients does not retry in lockstep.
func BackoffWithJitter(retryCount int) time.Duration {
	d := CalculateBackoff(retryCount)
	return d + time.Duration(rand.Int63n(int64(d/4)+1))
}

// RetryDelay picks the wait before the next attempt: the server's hint when
// it provided one (Retry-After), otherwise jittered exponential backoff.
func RetryDelay(retryCount int, serverHint time.Duration) time.Duration {
	if serverHint > 0 {
		return serverHint
	}
	return BackoffWithJitter(retryCount)
}
