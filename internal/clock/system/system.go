// Package system provides crawler.Clock implementations: the wall clock used
// in production and a fixed clock for deterministic output names in tests.
package system

import (
	"sync"
	"time"
)

// Clock implements crawler.Clock using time.Now in a fixed location.
type Clock struct {
	loc *time.Location
}

// New creates a Clock reporting UTC.
func New() *Clock {
	return &Clock{loc: time.UTC}
}

// NewIn creates a Clock reporting times in loc; output files are stamped with
// the run date in this location. A nil loc means time.Local.
func NewIn(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.Local
	}
	return &Clock{loc: loc}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	if c == nil || c.loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.loc)
}

// Fixed is a Clock frozen at a settable instant.
type Fixed struct {
	mu sync.Mutex
	at time.Time
}

// NewFixed returns a clock frozen at at.
func NewFixed(at time.Time) *Fixed {
	return &Fixed{at: at}
}

// Now returns the frozen instant.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.at
}

// Advance moves the frozen instant forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.at = f.at.Add(d)
}
