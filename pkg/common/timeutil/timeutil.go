// Package timeutil provides a small abstraction over wall-clock time so
// components that stamp domain events can be tested deterministically.
package timeutil

import "time"

// Provider supplies the current time. Production code uses Default;
// tests substitute Mock to control the clock.
type Provider interface {
	Now() time.Time
}

type realProvider struct{}

func (realProvider) Now() time.Time { return time.Now() }

// Default returns a Provider backed by the system clock.
func Default() Provider { return realProvider{} }

// Mock is a Provider with a settable current time for tests.
type Mock struct{ CurrentTime time.Time }

// Now returns the mock's current time.
func (m Mock) Now() time.Time { return m.CurrentTime }

// Advance moves the mock clock forward by d.
func (m *Mock) Advance(d time.Duration) { m.CurrentTime = m.CurrentTime.Add(d) }
