package connection

import (
	"math"
	"time"
)

// ReconnectPolicy decides whether a dropped connection is retried and after
// what delay.
type ReconnectPolicy interface {
	// ShouldRetry reports whether to reconnect after cause.
	ShouldRetry(cause error, disconnectRequested bool) bool

	// Delay returns the wait before retry attempt n (0-based). The attempt
	// counter resets once the broker confirms a connection.
	Delay(attempt int) time.Duration
}

// FixedIntervalPolicy retries forever with a constant delay.
type FixedIntervalPolicy struct {
	Interval time.Duration
}

// NewFixedIntervalPolicy returns a FixedIntervalPolicy. Negative intervals are
// treated as zero.
func NewFixedIntervalPolicy(interval time.Duration) *FixedIntervalPolicy {
	if interval < 0 {
		interval = 0
	}
	return &FixedIntervalPolicy{Interval: interval}
}

// ShouldRetry is true unless a disconnect was requested.
func (p *FixedIntervalPolicy) ShouldRetry(cause error, disconnectRequested bool) bool {
	return !disconnectRequested
}

// Delay returns the fixed interval regardless of attempt.
func (p *FixedIntervalPolicy) Delay(attempt int) time.Duration {
	return p.Interval
}

// ExponentialBackoffPolicy retries forever, multiplying the delay by Factor on
// each consecutive attempt up to MaxDelay. It is opt-in; the default policy is
// FixedIntervalPolicy.
type ExponentialBackoffPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
}

// NewExponentialBackoffPolicy returns an ExponentialBackoffPolicy with sane
// bounds.
func NewExponentialBackoffPolicy(base, max time.Duration, factor float64) *ExponentialBackoffPolicy {
	if base < 0 {
		base = 0
	}
	if max <= 0 {
		max = 60 * time.Second
	}
	if factor < 1 {
		factor = 2
	}
	return &ExponentialBackoffPolicy{BaseDelay: base, MaxDelay: max, Factor: factor}
}

// ShouldRetry is true unless a disconnect was requested.
func (p *ExponentialBackoffPolicy) ShouldRetry(cause error, disconnectRequested bool) bool {
	return !disconnectRequested
}

// Delay returns BaseDelay * Factor^attempt capped at MaxDelay.
func (p *ExponentialBackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}
