package infra

import (
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter.
// Thread-safe and suitable for concurrent API calls.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter.
// maxRequests: maximum burst size
// perSecond: refill rate (requests per second)
func NewRateLimiter(maxRequests int, perSecond float64) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(maxRequests),
		maxTokens:  float64(maxRequests),
		refillRate: perSecond,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available.
// Returns immediately if a token is available.
func (r *RateLimiter) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	for r.tokens < 1 {
		waitTime := time.Duration(float64(time.Second) / r.refillRate)
		r.mu.Unlock()
		time.Sleep(waitTime)
		r.mu.Lock()
		r.refill()
	}

	r.tokens--
}

// TryAcquire attempts to acquire a token without blocking.
// Returns true if a token was acquired, false otherwise.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// refill adds tokens based on elapsed time.
// Must be called with mutex held.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens += elapsed * r.refillRate

	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}

	r.lastRefill = now
}

// Pre-configured limiters for the exchange REST API. Spot endpoints allow
// roughly 20 req/s per IP; the engine stays well under that so reconcile
// and balance pollers never starve order placement.
var (
	orderLimiter    *RateLimiter
	accountLimiter  *RateLimiter
	marketLimiter   *RateLimiter
	rateLimiterOnce sync.Once
)

// GetOrderLimiter returns the rate limiter for order placement and status
// endpoints. 5 req/s with burst of 5.
func GetOrderLimiter() *RateLimiter {
	rateLimiterOnce.Do(initExchangeLimiters)
	return orderLimiter
}

// GetAccountLimiter returns the rate limiter for account endpoints.
// 2 req/s with burst of 2.
func GetAccountLimiter() *RateLimiter {
	rateLimiterOnce.Do(initExchangeLimiters)
	return accountLimiter
}

// GetMarketLimiter returns the rate limiter for public market data.
// 10 req/s with burst of 10.
func GetMarketLimiter() *RateLimiter {
	rateLimiterOnce.Do(initExchangeLimiters)
	return marketLimiter
}

func initExchangeLimiters() {
	// Conservative limits to avoid IP bans
	orderLimiter = NewRateLimiter(5, 5)
	accountLimiter = NewRateLimiter(2, 2)
	marketLimiter = NewRateLimiter(10, 10)
}
