package feed

import (
	"math/rand"
	"time"
)

// Clock paces the simulator; tests swap in a manual clock.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Rand yields values in [0, 1).
type Rand interface {
	Float64() float64
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewRand returns a source seeded from the current time. The simulator is
// its only user, so no locking is needed.
func NewRand() Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
