// File: pool/bufferpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// BufferPool owns one slab pool per size class. Classes and their queues are
// created once in New and live as long as the pool, so buffer addresses stay
// stable for an engine that holds them across asynchronous send stages.

package pool

import (
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/internal/logging"
	"github.com/momentics/hioload-mq/internal/native"
)

// Allocator provides the native memory behind pooled buffers.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(buf []byte)
	Close() error
}

// BufferPool is a thread-safe, lock-free pool of size-classed native buffers.
type BufferPool struct {
	classes [NumClasses]*slabPool
	alloc   Allocator
	log     *slog.Logger
	now     func() time.Time

	oversize     atomic.Int64
	oversizeLive atomic.Int64
	closed       atomic.Bool
	allocClosed  atomic.Bool
}

var _ api.BufferPool[*Buffer] = (*BufferPool)(nil)

// New creates a pool with every size class initialised and empty.
func New(opts ...Option) *BufferPool {
	p := &BufferPool{now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.alloc == nil {
		p.alloc = native.NewArena(0)
	}
	p.log = logging.Component(p.log, "pool")
	for i, c := range classTable {
		p.classes[i] = newSlabPool(c)
	}
	return p
}

// Rent returns a buffer with Len() == size and Cap() >= size, taken from the
// smallest class that fits. Sizes above MaxPooledSize get a one-off
// allocation tagged ClassOversize. Allocation failure is returned as is,
// without retry.
func (p *BufferPool) Rent(size int) (*Buffer, error) {
	if size < 0 {
		return nil, api.Wrap(api.ErrCodeInvalidArgument, "negative rent size", api.ErrInvalidArgument).
			WithContext("size", size)
	}
	if p.closed.Load() {
		return nil, api.ErrPoolClosed
	}

	idx := SelectClass(size)
	if idx == ClassOversize {
		mem, err := p.allocate(size)
		if err != nil {
			return nil, err
		}
		p.oversize.Add(1)
		p.oversizeLive.Add(1)
		b := p.wrap(mem, ClassOversize)
		b.n = size
		b.rented.Store(true)
		return b, nil
	}

	sp := p.classes[idx]
	b, hit := sp.get()
	if !hit {
		mem, err := p.allocate(sp.Capacity)
		if err != nil {
			return nil, err
		}
		b = p.wrap(mem, idx)
		sp.misses.Add(1)
	} else {
		sp.hits.Add(1)
	}
	sp.rents.Add(1)
	b.n = size
	b.rented.Store(true)
	return b, nil
}

// GiveBack returns b to its class free list, or discards it when the class
// already retains MaxResident buffers. Oversize buffers are released
// directly. Giving back the same buffer twice is ignored.
func (p *BufferPool) GiveBack(b *Buffer) {
	if b == nil {
		return
	}
	if b.owner != p {
		p.log.Warn("buffer given back to a foreign pool", slog.Int("class", b.class))
		return
	}
	if !b.rented.CompareAndSwap(true, false) {
		p.log.Debug("duplicate give back ignored", slog.Int("class", b.class))
		return
	}

	if b.class == ClassOversize {
		p.oversizeLive.Add(-1)
		p.release(b)
		p.closeIfDrained()
		return
	}

	sp := p.classes[b.class]
	sp.returns.Add(1)
	b.n = 0
	if p.closed.Load() || !sp.put(b) {
		sp.discards.Add(1)
		p.release(b)
		p.closeIfDrained()
	}
}

// Prewarm allocates up to count buffers for the class serving size, without
// exceeding the class retention limit. Oversize or non-positive input is a no-op.
func (p *BufferPool) Prewarm(size, count int) error {
	if size < 0 || count <= 0 {
		return nil
	}
	idx := SelectClass(size)
	if idx == ClassOversize {
		return nil
	}
	sp := p.classes[idx]
	for i := 0; i < count; i++ {
		mem, err := p.allocate(sp.Capacity)
		if err != nil {
			return err
		}
		if !sp.put(p.wrap(mem, idx)) {
			p.alloc.Free(mem)
			break
		}
	}
	p.log.Debug("prewarmed", slog.Int("class", sp.Capacity), slog.Int64("free", sp.free.Load()))
	return nil
}

// PrewarmPlan prewarms several sizes concurrently. plan maps size to count.
func (p *BufferPool) PrewarmPlan(plan map[int]int) error {
	var g errgroup.Group
	for size, count := range plan {
		size, count := size, count
		g.Go(func() error { return p.Prewarm(size, count) })
	}
	return g.Wait()
}

// PrewarmSizes prewarms count buffers for each of sizes concurrently.
// Sizes that share a class add up, still capped by the class retention limit.
func (p *BufferPool) PrewarmSizes(sizes []int, count int) error {
	var g errgroup.Group
	for _, size := range sizes {
		size := size
		g.Go(func() error { return p.Prewarm(size, count) })
	}
	return g.Wait()
}

// Statistics returns a snapshot built from atomic loads only.
func (p *BufferPool) Statistics() api.PoolStatistics {
	st := api.PoolStatistics{
		OversizeRents: p.oversize.Load(),
		Classes:       make([]api.SizeClassStatistics, NumClasses),
	}
	for i, sp := range p.classes {
		cs := sp.stats()
		st.Classes[i] = cs
		st.Rents += cs.Rents
		st.Returns += cs.Returns
		st.Hits += cs.Hits
		st.Misses += cs.Misses
		st.Discards += cs.Discards
	}
	return st
}

// Clear drains every free list and releases the drained memory.
// Buffers currently rented are unaffected.
func (p *BufferPool) Clear() {
	for _, sp := range p.classes {
		for {
			b, ok := sp.get()
			if !ok {
				break
			}
			p.release(b)
		}
	}
}

// Close rejects further rents and releases the drained free lists. The
// allocator is closed once no buffer is rented; while buffers are still out
// their memory stays mapped and the allocator closes when the last one is
// given back.
func (p *BufferPool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.Clear()
	if n := p.inFlight(); n != 0 {
		p.log.Warn("closing pool with outstanding buffers, native memory kept until they return",
			slog.Int64("outstanding", n))
		return nil
	}
	return p.closeAllocator()
}

// inFlight counts rented buffers, oversize included.
func (p *BufferPool) inFlight() int64 {
	return p.Statistics().Outstanding() + p.oversizeLive.Load()
}

func (p *BufferPool) closeIfDrained() {
	if !p.closed.Load() || p.inFlight() != 0 {
		return
	}
	if err := p.closeAllocator(); err != nil {
		p.log.Error("closing allocator", slog.Any("err", err))
	}
}

func (p *BufferPool) closeAllocator() error {
	if !p.allocClosed.CompareAndSwap(false, true) {
		return nil
	}
	return p.alloc.Close()
}

func (p *BufferPool) allocate(size int) ([]byte, error) {
	mem, err := p.alloc.Alloc(size)
	if err != nil {
		p.log.Error("native allocation failed", slog.Int("size", size), slog.Any("err", err))
		return nil, api.Wrap(api.ErrCodeAllocation, "rent", api.ErrAllocationFailure).
			WithContext("size", size).WithContext("cause", err.Error())
	}
	return mem, nil
}

func (p *BufferPool) wrap(mem []byte, class int) *Buffer {
	return &Buffer{mem: mem, class: class, created: p.now(), owner: p}
}

func (p *BufferPool) release(b *Buffer) {
	p.alloc.Free(b.mem)
	b.mem = nil
	b.n = 0
}
