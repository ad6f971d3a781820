// Package retry runs transient operations with exponential backoff.
//
// The geocode client is the main consumer: Nominatim hiccups are worth
// a couple of spaced attempts, but a 4xx answer will not get better, so
// callers mark those with Permanent to stop the loop immediately.
package retry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"
)

// PermanentError wraps an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do will not retry it.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do calls fn up to maxAttempts times, sleeping between attempts with
// exponential backoff and +-25% jitter starting at baseDelay. It stops
// early on success, on a *PermanentError (which it unwraps), or when ctx
// is cancelled during a backoff sleep.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}

		// No sleep after the final attempt.
		if attempt == maxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(delay)):
		}

		delay *= 2
	}

	return err
}

// jittered spreads a delay by +-25% so that concurrent callers failing
// against the same upstream do not retry in lockstep.
func jittered(d time.Duration) time.Duration {
	quarter := int64(d / 4)
	return d - time.Duration(quarter) + time.Duration(randInt64n(2*quarter+1))
}

// randInt64n returns a random int64 in [0, n) using crypto/rand, which
// avoids seeding concerns at this call rate.
func randInt64n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	_, _ = rand.Read(b[:])
	v := binary.LittleEndian.Uint64(b[:]) >> 1
	return int64(v % uint64(n))
}
