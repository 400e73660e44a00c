package dispatch

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy computes the wait before the next dispatch attempt:
// base * factor^(n-1), capped, with a symmetric jitter fraction applied so
// that retry storms spread out.
type BackoffPolicy struct {
	Base   time.Duration
	Factor float64
	Cap    time.Duration
	Jitter float64 // 0.2 means ±20%
}

func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:   30 * time.Second,
		Factor: 2,
		Cap:    time.Hour,
		Jitter: 0.2,
	}
}

// Delay returns the backoff after attemptCount completed attempts.
// attemptCount is at least 1 when a failure has just landed.
func (p BackoffPolicy) Delay(attemptCount int) time.Duration {
	if attemptCount < 1 {
		attemptCount = 1
	}

	base := float64(p.Base) * math.Pow(p.Factor, float64(attemptCount-1))
	capped := float64(p.Cap)
	if base > capped {
		base = capped
	}

	if p.Jitter > 0 {
		spread := base * p.Jitter
		base = base - spread + rand.Float64()*2*spread
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}
