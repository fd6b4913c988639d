// Package system provides the clocks handed to checkpoint stores and
// schedulers.
package system

import "time"

// Clock implements crawler.Clock using the wall clock in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always returns the same instant.
type Fixed time.Time

// Now implements crawler.Clock.
func (f Fixed) Now() time.Time {
	return time.Time(f).UTC()
}
