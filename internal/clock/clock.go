// Package clock abstracts time so window expiry and retry scheduling can be
// tested deterministically without sleeps.
package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by the rate limiter and the webhook dispatcher.
type Clock interface {
	Now() time.Time
}

// System reads the real wall clock.
type System struct{}

func NewSystem() *System { return &System{} }

func (s *System) Now() time.Time { return time.Now() }

// Manual is a test clock whose time only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set jumps to an absolute time. Only useful at test setup; going backward
// breaks monotonicity.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}
