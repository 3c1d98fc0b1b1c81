// File: hint/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package hint

import "log/slog"

const (
	// DefaultResident bounds the free tokens retained by a pool.
	DefaultResident = 4096
	// DefaultPrealloc is the number of tokens created up front.
	DefaultPrealloc = 1000
)

type config struct {
	resident        int
	prealloc        int
	trackDuplicates int
	logger          *slog.Logger
}

func defaultConfig() config {
	return config{resident: DefaultResident, prealloc: DefaultPrealloc}
}

// Option customizes a token pool.
type Option func(*config)

// WithResident sets how many free tokens the pool retains.
func WithResident(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.resident = n
		}
	}
}

// WithPrealloc sets how many tokens are created at construction.
func WithPrealloc(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.prealloc = n
		}
	}
}

// WithDuplicateTracking remembers the claim time of the last n handles so
// duplicate releases are logged with the delay since the first one.
func WithDuplicateTracking(n int) Option {
	return func(c *config) {
		c.trackDuplicates = n
	}
}

// WithLogger sets the logger for release anomalies.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}
