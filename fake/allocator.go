// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake allocator with controllable failure for allocation-failure tests.

package fake

import (
	"errors"
	"sync/atomic"

	"github.com/momentics/hioload-mq/api"
)

// ErrOutOfMemory is returned once the allocator's budget is exhausted.
var ErrOutOfMemory = errors.New("fake: out of native memory")

// Allocator serves Go heap memory and fails after a configurable number
// of successful allocations.
type Allocator struct {
	remaining atomic.Int64 // < 0 means unlimited
	allocs    atomic.Int64
	frees     atomic.Int64
	closed    atomic.Bool
}

// NewAllocator returns an allocator that never fails until FailAfter is called.
func NewAllocator() *Allocator {
	a := &Allocator{}
	a.remaining.Store(-1)
	return a
}

// FailAfter lets n more allocations succeed, then fails every following one.
func (a *Allocator) FailAfter(n int) {
	a.remaining.Store(int64(n))
}

// Alloc implements pool.Allocator.
func (a *Allocator) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, api.ErrInvalidArgument
	}
	for {
		r := a.remaining.Load()
		if r < 0 {
			break
		}
		if r == 0 {
			return nil, ErrOutOfMemory
		}
		if a.remaining.CompareAndSwap(r, r-1) {
			break
		}
	}
	a.allocs.Add(1)
	return make([]byte, size), nil
}

// Free implements pool.Allocator.
func (a *Allocator) Free(buf []byte) {
	if cap(buf) > 0 {
		a.frees.Add(1)
	}
}

// Close implements pool.Allocator.
func (a *Allocator) Close() error {
	a.closed.Store(true)
	return nil
}

// Allocs returns the number of successful allocations.
func (a *Allocator) Allocs() int64 { return a.allocs.Load() }

// Frees returns the number of regions freed.
func (a *Allocator) Frees() int64 { return a.frees.Load() }

// Closed reports whether Close was called.
func (a *Allocator) Closed() bool { return a.closed.Load() }
