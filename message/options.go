// File: message/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package message

import "log/slog"

// Option customizes a Lifecycle.
type Option func(*Lifecycle)

// WithLogger sets the logger used for release anomalies.
func WithLogger(l *slog.Logger) Option {
	return func(lc *Lifecycle) { lc.log = l }
}
