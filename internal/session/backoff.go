package session

import "time"

// Backoff is the retry delay for whole-track fetches that were rate
// limited. The first delay is base, each further one doubles up to cap, and
// Reset returns to base.
type Backoff struct {
	base    time.Duration
	cap     time.Duration
	current time.Duration
}

func NewBackoff(base, cap time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if cap < base {
		cap = base
	}
	return &Backoff{base: base, cap: cap}
}

// Next advances the state and returns the delay to wait.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.base
	} else {
		b.current = min(b.current*2, b.cap)
	}
	return b.current
}

// Reset is called after a successful fetch.
func (b *Backoff) Reset() {
	b.current = 0
}

// Current is the last delay handed out, zero after a reset.
func (b *Backoff) Current() time.Duration {
	return b.current
}
