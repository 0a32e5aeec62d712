package chain

import (
	"context"
	"time"
)

// backoff hands out doubling delays between initial and max.
type backoff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	if max < initial {
		max = initial
	}
	return &backoff{initial: initial, max: max, next: initial}
}

// Next returns the current delay and doubles the one after it.
func (b *backoff) Next() time.Duration {
	d := b.next
	b.next = min(d*2, b.max)
	return d
}

// Reset starts over from the initial delay.
func (b *backoff) Reset() {
	b.next = b.initial
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
