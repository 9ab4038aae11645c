// Package retry provides the bounded polling primitives used around the TTS
// backend: a fixed-delay attempt loop and a wait-for-file built on it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"
)

// ErrExhausted is returned when every attempt failed or the timeout elapsed.
var ErrExhausted = errors.New("retry budget exhausted")

// Clock abstracts time so tests can drive polling without sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Policy bounds a retry loop. Attempts <= 0 means a single attempt.
// A zero Timeout disables the deadline.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
	Clock    Clock
}

func (p Policy) clock() Clock {
	if p.Clock == nil {
		return RealClock
	}
	return p.Clock
}

// Do calls fn until it succeeds, the attempts run out, the timeout passes, or
// ctx is cancelled. attempt is 1-based. The returned error wraps ErrExhausted
// and carries the last failure message.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	clock := p.clock()
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var deadline time.Time
	if p.Timeout > 0 {
		deadline = clock.Now().Add(p.Timeout)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		if attempt == attempts {
			break
		}
		if !deadline.IsZero() && !clock.Now().Add(p.Delay).Before(deadline) {
			break
		}
		if err := clock.Sleep(ctx, p.Delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

// ChecksFor returns how many polls of interval fit in timeout (at least one).
func ChecksFor(timeout, interval time.Duration) int {
	if interval <= 0 || timeout <= 0 {
		return 1
	}
	return int(math.Ceil(float64(timeout) / float64(interval)))
}

// WaitForFile polls until path exists. It is the synchronization point with
// backends that deliver results by writing into a shared directory.
func WaitForFile(ctx context.Context, path string, timeout, interval time.Duration, clock Clock) error {
	p := Policy{
		Attempts: ChecksFor(timeout, interval),
		Delay:    interval,
		Clock:    clock,
	}
	return Do(ctx, p, func(context.Context, int) error {
		_, err := os.Stat(path)
		return err
	})
}
