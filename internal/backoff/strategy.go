package backoff

import (
	"math/rand"
	"time"
)

// Strategy defines the interface for backoff calculation algorithms.
type Strategy interface {
	// Calculate returns the backoff duration for the given attempt number.
	// jitterMax bounds the random addition; it is additive, never
	// multiplicative, so the floor delay is never starved.
	Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier float64, jitterMax time.Duration) time.Duration
}

// ExponentialAdditiveJitterStrategy implements strictly exponential growth
// with a hard ceiling plus a uniform additive jitter in [0, jitterMax).
type ExponentialAdditiveJitterStrategy struct{}

// Calculate implements the Strategy interface.
func (s ExponentialAdditiveJitterStrategy) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier float64, jitterMax time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// Prevent overflow by limiting attempt
	if attempt > 30 {
		attempt = 30
	}

	backoff := time.Duration(float64(initialBackoff) * pow(multiplier, attempt))
	if backoff < 0 || backoff > maxBackoff {
		backoff = maxBackoff
	}

	if jitterMax > 0 {
		backoff += time.Duration(rand.Int63n(int64(jitterMax)))
	}
	return backoff
}

// DecorrelatedJitterStrategy implements decorrelated jitter as per the AWS
// architecture blog. Provides smoother tail latencies than exponential jitter.
type DecorrelatedJitterStrategy struct{}

// Calculate implements the Strategy interface. jitterMax is ignored: the
// randomness is inherent to the strategy.
func (s DecorrelatedJitterStrategy) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier float64, jitterMax time.Duration) time.Duration {
	// Formula: random_between(base, min(cap, base * 3^attempt)).
	if attempt <= 0 {
		return initialBackoff
	}

	// Prevent overflow by limiting attempt
	if attempt > 10 {
		attempt = 10
	}

	base := float64(initialBackoff)
	upper := base * pow(3.0, attempt)

	maxBackoffFloat := float64(maxBackoff)
	if upper > maxBackoffFloat || upper < 0 {
		upper = maxBackoffFloat
	}
	if upper < base {
		upper = base
	}

	delay := base + rand.Float64()*(upper-base)

	result := time.Duration(delay)
	if result < 0 || result > maxBackoff {
		result = maxBackoff
	}

	return result
}

// pow calculates base^exponent using integer exponentiation.
func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}

// Pow is the exported version of pow for callers outside this package.
func Pow(base float64, exponent int) float64 {
	return pow(base, exponent)
}
