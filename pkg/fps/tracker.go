// Package fps derives a smoothed frame rate from recent frame timestamps.
package fps

import "time"

const DefaultWindow = 10

// Tracker keeps the last N frame timestamps and reports the rate averaged
// over that window. It is not safe for concurrent use.
type Tracker struct {
	history []time.Time
	size    int
	fps     float64
}

// New returns a tracker with a window of n timestamps. Windows smaller than
// two cannot produce a rate and fall back to DefaultWindow.
func New(n int) *Tracker {
	if n < 2 {
		n = DefaultWindow
	}
	t := &Tracker{
		history: make([]time.Time, 0, n),
		size:    n,
	}
	t.history = append(t.history, time.Unix(0, 0))

	return t
}

// Update records ts and returns the current rate. When the window spans no
// time (stalled clock, only the sentinel) the previous rate is kept.
func (t *Tracker) Update(ts time.Time) float64 {
	if len(t.history) == t.size {
		copy(t.history, t.history[1:])
		t.history = t.history[:t.size-1]
	}
	t.history = append(t.history, ts)

	elapsed := t.history[len(t.history)-1].Sub(t.history[0])
	if elapsed <= 0 {
		return t.fps
	}
	t.fps = float64(len(t.history)-1) / elapsed.Seconds()

	return t.fps
}

func (t *Tracker) FPS() float64 {
	return t.fps
}

func (t *Tracker) Len() int {
	return len(t.history)
}

func (t *Tracker) Cap() int {
	return t.size
}
