// File: internal/native/arena.go
// Package native allocates buffer memory outside the Go heap.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Regions of a page or more get a dedicated OS mapping and are unmapped on
// Free. Smaller regions are carved from shared chunks with a lock-free bump
// pointer; carved memory is only reclaimed when the arena is closed.

package native

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/momentics/hioload-mq/api"
)

// Allocator hands out native memory regions.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(buf []byte)
	Close() error
}

// ArenaStats reports mapping bookkeeping for diagnostics.
type ArenaStats struct {
	MappedBytes   int64
	Regions       int64
	StrandedBytes int64 // carved bytes freed but held until Close
}

const (
	defaultChunkSize = 64 * 1024
	carveAlign       = 16
)

type region struct {
	mem   []byte // the full mapping as returned by the OS
	chunk bool
}

type chunk struct {
	mem []byte
	off atomic.Int64
}

// Arena is the default Allocator.
type Arena struct {
	chunkSize int
	pageSize  int

	cur     atomic.Pointer[chunk]
	regions sync.Map // base address -> region
	closed  atomic.Bool

	mapped   atomic.Int64
	count    atomic.Int64
	stranded atomic.Int64
}

var _ Allocator = (*Arena)(nil)

// NewArena creates an arena carving sub-page regions from chunkSize chunks.
// chunkSize <= 0 selects the default.
func NewArena(chunkSize int) *Arena {
	ps := pageSize()
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	chunkSize = roundUp(chunkSize, ps)
	return &Arena{chunkSize: chunkSize, pageSize: ps}
}

// PageSize reports the OS page size used for dedicated mappings.
func (a *Arena) PageSize() int { return a.pageSize }

// PageSize reports the OS page size.
func PageSize() int { return pageSize() }

// Alloc returns a zeroed region of exactly size bytes (len == cap == size).
func (a *Arena) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, api.ErrInvalidArgument
	}
	if a.closed.Load() {
		return nil, api.ErrPoolClosed
	}
	if size >= a.pageSize {
		return a.allocDedicated(size)
	}
	return a.carve(roundUp(size, carveAlign), size)
}

func (a *Arena) allocDedicated(size int) ([]byte, error) {
	mem, err := mapRegion(roundUp(size, a.pageSize))
	if err != nil {
		return nil, fmt.Errorf("%w: map %d bytes: %v", api.ErrAllocationFailure, size, err)
	}
	a.track(mem, false)
	return mem[:size:size], nil
}

func (a *Arena) carve(aligned, size int) ([]byte, error) {
	for {
		c := a.cur.Load()
		if c != nil {
			end := c.off.Add(int64(aligned))
			if end <= int64(len(c.mem)) {
				start := end - int64(aligned)
				return c.mem[start : start+int64(size) : start+int64(size)], nil
			}
		}

		mem, err := mapRegion(a.chunkSize)
		if err != nil {
			return nil, fmt.Errorf("%w: map chunk of %d bytes: %v", api.ErrAllocationFailure, a.chunkSize, err)
		}
		nc := &chunk{mem: mem}
		if a.cur.CompareAndSwap(c, nc) {
			a.track(mem, true)
			continue
		}
		// another goroutine installed a fresh chunk first
		_ = unmapRegion(mem)
	}
}

func (a *Arena) track(mem []byte, isChunk bool) {
	a.regions.Store(baseOf(mem), region{mem: mem, chunk: isChunk})
	a.mapped.Add(int64(cap(mem)))
	a.count.Add(1)
}

// Free releases buf. Dedicated mappings are returned to the OS at once;
// carved regions stay mapped until Close.
func (a *Arena) Free(buf []byte) {
	if cap(buf) == 0 || a.closed.Load() {
		return
	}
	v, ok := a.regions.Load(baseOf(buf))
	if !ok || v.(region).chunk {
		a.stranded.Add(int64(cap(buf)))
		return
	}
	if _, ok := a.regions.LoadAndDelete(baseOf(buf)); !ok {
		return
	}
	r := v.(region)
	if err := unmapRegion(r.mem); err == nil {
		a.mapped.Add(-int64(len(r.mem)))
		a.count.Add(-1)
	}
}

// Close unmaps every region. Buffers handed out earlier become invalid.
func (a *Arena) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	a.cur.Store(nil)
	var firstErr error
	a.regions.Range(func(k, v any) bool {
		if err := unmapRegion(v.(region).mem); err != nil && firstErr == nil {
			firstErr = err
		}
		a.regions.Delete(k)
		return true
	})
	a.mapped.Store(0)
	a.count.Store(0)
	a.stranded.Store(0)
	return firstErr
}

// Stats returns a snapshot of mapping counters.
func (a *Arena) Stats() ArenaStats {
	return ArenaStats{
		MappedBytes:   a.mapped.Load(),
		Regions:       a.count.Load(),
		StrandedBytes: a.stranded.Load(),
	}
}

func baseOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

func roundUp(n, to int) int {
	return (n + to - 1) / to * to
}
