// File: pool/slab_pool.go
// Package pool implements lock-free slab allocation with size class support.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync/atomic"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/core/concurrency"
)

// slabPool is the free list and counters of one size class.
type slabPool struct {
	SizeClass
	queue *concurrency.LockFreeQueue[*Buffer]

	// free counts queue slots reserved by put; it never exceeds MaxResident.
	free atomic.Int64

	rents    atomic.Int64
	returns  atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
	discards atomic.Int64
}

func newSlabPool(c SizeClass) *slabPool {
	return &slabPool{
		SizeClass: c,
		queue:     concurrency.NewLockFreeQueue[*Buffer](c.MaxResident),
	}
}

func (sp *slabPool) get() (*Buffer, bool) {
	b, ok := sp.queue.Dequeue()
	if ok {
		sp.free.Add(-1)
	}
	return b, ok
}

// put enqueues b unless the class already retains MaxResident buffers.
func (sp *slabPool) put(b *Buffer) bool {
	limit := int64(sp.MaxResident)
	for {
		n := sp.free.Load()
		if n >= limit {
			return false
		}
		if sp.free.CompareAndSwap(n, n+1) {
			break
		}
	}
	if !sp.queue.Enqueue(b) {
		// a consumer is mid-dequeue on the slot we need
		sp.free.Add(-1)
		return false
	}
	return true
}

// stats loads returns before rents so a concurrent snapshot never reports
// more returns than rents.
func (sp *slabPool) stats() api.SizeClassStatistics {
	returns := sp.returns.Load()
	return api.SizeClassStatistics{
		Index:       sp.Index,
		Capacity:    sp.Capacity,
		MaxResident: sp.MaxResident,
		Free:        int(sp.free.Load()),
		Rents:       sp.rents.Load(),
		Returns:     returns,
		Hits:        sp.hits.Load(),
		Misses:      sp.misses.Load(),
		Discards:    sp.discards.Load(),
	}
}
