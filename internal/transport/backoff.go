package transport

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig shapes the reconnect delay curve: an exponential series
// starting at Base, doubling per attempt via Multiplier, capped at Max,
// with optional jitter.
type BackoffConfig struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter in [0,1] randomizes each delay by up to that fraction.
	Jitter float64
	// MaxRetries bounds automatic attempts after the initial one. Once
	// exhausted the channel parks in the Failed state until Connect is
	// called again.
	MaxRetries int
}

// DefaultBackoff mirrors the production reconnect policy: 1s base doubling
// to a 30s cap, five automatic retries.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		Base:       time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0,
		MaxRetries: 5,
	}
}

// Delay returns the wait before the given retry attempt (1-based).
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(c.Base) * math.Pow(c.Multiplier, float64(attempt-1))
	if d > float64(c.Max) {
		d = float64(c.Max)
	}
	if c.Jitter > 0 {
		d += d * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}
