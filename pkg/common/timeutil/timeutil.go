// Package timeutil provides a seam over the wall clock.
package timeutil

import "time"

// Provider returns the current time.
type Provider interface {
	Now() time.Time
}

type realProvider struct{}

func (realProvider) Now() time.Time { return time.Now() }

// Default returns a Provider backed by time.Now.
func Default() Provider { return realProvider{} }
