package camera

import "time"

// Backoff computes initial * 2^(n-1) for the n-th consecutive failure,
// capped at max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	attempt int
}

func (b *Backoff) Next() time.Duration {
	b.attempt++
	if b.Initial <= 0 {
		return 0
	}
	shift := b.attempt - 1
	if shift > 30 {
		return b.Max
	}
	d := b.Initial << uint(shift)
	if d <= 0 || d > b.Max {
		d = b.Max
	}

	return d
}

func (b *Backoff) Reset() {
	b.attempt = 0
}

func (b *Backoff) Attempt() int {
	return b.attempt
}
