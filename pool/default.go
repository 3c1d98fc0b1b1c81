// File: pool/default.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync"

var (
	defaultOnce sync.Once
	defaultPool *BufferPool
)

// Default returns the process-wide pool. It is created on first use and
// never torn down or reinitialised, so all components share one set of
// size classes.
func Default() *BufferPool {
	defaultOnce.Do(func() {
		defaultPool = New()
	})
	return defaultPool
}
