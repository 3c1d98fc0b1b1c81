// Package api
// Author: momentics
//
// Zero-copy native memory buffers and size-classed pooling.
//
// Buffers live outside the Go heap so an external messaging engine may
// keep their addresses across asynchronous send stages.

package api

// Buffer describes an exclusively owned native memory region.
type Buffer interface {
	// Bytes returns the in-use window of the region.
	Bytes() []byte

	// Cap returns the full capacity of the region.
	Cap() int

	// Class returns the owning size-class index, or -1 for oversize buffers.
	Class() int
}

// BufferPool abstracts rent/return of size-classed native buffers.
type BufferPool[B Buffer] interface {
	// Rent returns a buffer of capacity >= size from the smallest fitting class.
	Rent(size int) (B, error)

	// GiveBack returns buffer to its class; buffer must not be used afterwards.
	GiveBack(b B)

	// Statistics exposes a lock-free snapshot of pool counters.
	Statistics() PoolStatistics

	// Prewarm pre-populates the class serving size with up to count buffers.
	Prewarm(size, count int) error
}
