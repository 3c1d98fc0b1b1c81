// Package pool
// Author: momentics <momentics@gmail.com>
//
// Size-classed pool of native memory buffers for zero-copy message transmission.
// Free lists are lock-free MPMC queues and every counter is atomic, so Rent,
// GiveBack and Statistics never block. See sizeclass.go for the fixed class
// table and slab_pool.go for the per-class free list.
package pool
