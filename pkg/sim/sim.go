// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package sim provides the latency and randomness sources used by the
// simulated hardware layer.
//
// Simulators never call time.Sleep or math/rand directly. They wait on a Clock
// and roll a Chance, so tests can swap in Instant and Always/Never to get
// deterministic, zero-latency outcomes.
package sim

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Clock schedules deferred completion of simulated operations.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Chance decides whether a simulated operation succeeds.
type Chance interface {
	// Succeeds reports true with probability p (clamped to [0, 1]).
	Succeeds(p float64) bool
}

// RealClock is backed by the time package.
type RealClock struct{}

// Now returns the current wall clock time.
func (RealClock) Now() time.Time { return time.Now() }

// After waits for d on a real timer.
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Instant is a clock whose timers fire immediately. Now still reports the
// wall clock so generated IDs stay unique.
type Instant struct{}

// Now returns the current wall clock time.
func (Instant) Now() time.Time { return time.Now() }

// After returns a channel that is already ready.
func (Instant) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// Wait blocks until d has elapsed on clock or done is closed.
// It returns false when done fired first.
func Wait(clock Clock, d time.Duration, done <-chan struct{}) bool {
	if d <= 0 {
		select {
		case <-done:
			return false
		default:
			return true
		}
	}
	select {
	case <-clock.After(d):
		return true
	case <-done:
		return false
	}
}

// Random rolls against a math/rand/v2 source. The zero value uses the global
// generator.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a Random seeded for reproducible sequences.
func NewRandom(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Succeeds reports true with probability p.
func (r *Random) Succeeds(p float64) bool {
	switch {
	case p <= 0:
		return false
	case p >= 1:
		return true
	}
	if r.rng == nil {
		return rand.Float64() < p
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() < p
}

// Always succeeds regardless of p.
type Always struct{}

// Succeeds returns true.
func (Always) Succeeds(float64) bool { return true }

// Never fails regardless of p.
type Never struct{}

// Succeeds returns false.
func (Never) Succeeds(float64) bool { return false }

// Sequence replays fixed outcomes in order, then repeats the last one.
// An empty sequence always fails.
type Sequence struct {
	mu       sync.Mutex
	outcomes []bool
	next     int
}

// NewSequence returns a Sequence over outcomes.
func NewSequence(outcomes ...bool) *Sequence {
	return &Sequence{outcomes: outcomes}
}

// Succeeds returns the next scripted outcome.
func (s *Sequence) Succeeds(float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outcomes) == 0 {
		return false
	}
	i := s.next
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	} else {
		s.next++
	}
	return s.outcomes[i]
}
