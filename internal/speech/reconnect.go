package speech

import "time"

// ReconnectionPolicy computes bounded exponential backoff for provider
// restarts.
type ReconnectionPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// NewReconnectionPolicy builds a policy from millisecond settings, applying
// defaults for non-positive values.
func NewReconnectionPolicy(baseMs, maxMs int) ReconnectionPolicy {
	p := ReconnectionPolicy{
		BaseDelay: time.Duration(baseMs) * time.Millisecond,
		MaxDelay:  time.Duration(maxMs) * time.Millisecond,
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	return p
}

// NextDelay returns base * 2^(attempt-1), capped at MaxDelay. Attempt
// numbers start at 1.
func (p ReconnectionPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// ShouldRetry reports whether another restart is allowed given the
// consecutive-error count.
func (p ReconnectionPolicy) ShouldRetry(consecutiveErrors, maxAttempts int) bool {
	return consecutiveErrors < maxAttempts
}
