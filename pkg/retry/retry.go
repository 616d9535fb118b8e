package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy bounds the number of attempts and the exponential backoff
// between them.
type Policy struct {
	Attempts     int
	Base         time.Duration
	Max          time.Duration
	JitterFactor float64
}

// Do invokes fn up to policy.Attempts times, sleeping with exponential
// backoff and optional jitter between failed attempts. It returns nil as
// soon as fn succeeds, the context error if ctx is done while waiting,
// and otherwise the error of the last attempt.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	delay := policy.Base
	var err error

	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		// No need to wait after the final attempt.
		if attempt == policy.Attempts-1 {
			break
		}

		wait := delay
		if policy.JitterFactor > 0 {
			jitter := 1 + policy.JitterFactor*(2*r.Float64()-1)
			wait = time.Duration(float64(wait) * jitter)
		}
		if policy.Max > 0 && wait > policy.Max {
			wait = policy.Max
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if policy.Max > 0 && delay > policy.Max {
			delay = policy.Max
		}
	}

	return err
}
