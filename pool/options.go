// File: pool/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "log/slog"

// Option customizes pool construction.
type Option func(*BufferPool)

// WithAllocator replaces the default native arena.
func WithAllocator(a Allocator) Option {
	return func(p *BufferPool) {
		p.alloc = a
	}
}

// WithLogger sets the logger used for anomalies (allocation failures,
// foreign or duplicate give backs). Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(p *BufferPool) {
		p.log = l
	}
}
