// File: internal/native/heap.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package native

import "github.com/momentics/hioload-mq/api"

// HeapAllocator serves regions from the Go heap. Useful when no engine
// retains buffer addresses outside Go, and in tests.
type HeapAllocator struct{}

var _ Allocator = HeapAllocator{}

func (HeapAllocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, api.ErrInvalidArgument
	}
	return make([]byte, size), nil
}

func (HeapAllocator) Free([]byte) {}

func (HeapAllocator) Close() error { return nil }
