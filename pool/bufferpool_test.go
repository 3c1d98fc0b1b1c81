package pool_test

import (
	"bytes"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/fake"
	"github.com/momentics/hioload-mq/internal/logging"
	"github.com/momentics/hioload-mq/internal/native"
	"github.com/momentics/hioload-mq/pool"
)

func newPool(t *testing.T) (*pool.BufferPool, *fake.Allocator) {
	t.Helper()
	alloc := fake.NewAllocator()
	p := pool.New(pool.WithAllocator(alloc), pool.WithLogger(logging.Discard()))
	t.Cleanup(func() { _ = p.Close() })
	return p, alloc
}

func TestSelectClass(t *testing.T) {
	cases := []struct {
		size int
		want int
	}{
		{0, 0}, {1, 0}, {15, 0}, {16, 0},
		{17, 1}, {32, 1}, {33, 2}, {64, 2}, {65, 3},
		{1024, 6}, {1025, 7},
		{pool.MaxPooledSize, 18},
		{pool.MaxPooledSize + 1, pool.ClassOversize},
		{10_000_000, pool.ClassOversize},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, pool.SelectClass(c.size), "size %d", c.size)
	}
}

func TestSelectClassIsSmallestFitting(t *testing.T) {
	classes := pool.Classes()
	require.Len(t, classes, 19)
	for size := 0; size <= 70_000; size += 7 {
		idx := pool.SelectClass(size)
		require.GreaterOrEqual(t, classes[idx].Capacity, size)
		if idx > 0 {
			require.Less(t, classes[idx-1].Capacity, size, "size %d should fit class %d", size, idx-1)
		}
	}
}

func TestClassTableShape(t *testing.T) {
	classes := pool.Classes()
	assert.Equal(t, 16, classes[0].Capacity)
	assert.Equal(t, pool.MaxPooledSize, classes[len(classes)-1].Capacity)
	for i := 1; i < len(classes); i++ {
		assert.Equal(t, classes[i-1].Capacity*2, classes[i].Capacity)
		assert.LessOrEqual(t, classes[i].MaxResident, classes[i-1].MaxResident)
	}
}

func TestRentBoundarySelectsExactClass(t *testing.T) {
	p, _ := newPool(t)

	b, err := p.Rent(64)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Class())
	assert.Equal(t, 64, b.Cap())
	assert.Equal(t, 64, b.Len())
	p.GiveBack(b)
}

func TestRentReturnCycle(t *testing.T) {
	p, _ := newPool(t)

	b, err := p.Rent(1000)
	require.NoError(t, err)
	assert.Equal(t, 6, b.Class())
	assert.Equal(t, 1024, b.Cap())
	assert.Len(t, b.Bytes(), 1000)
	assert.False(t, b.Created().IsZero())

	copy(b.Bytes(), "hello")
	p.GiveBack(b)

	st := p.Statistics()
	assert.Equal(t, int64(1), st.Rents)
	assert.Equal(t, int64(1), st.Returns)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(0), st.Outstanding())
	assert.Equal(t, 1, st.Classes[6].Free)

	again, err := p.Rent(512 + 1)
	require.NoError(t, err)
	assert.Same(t, b, again, "free buffer must be reused")
	assert.Equal(t, int64(1), p.Statistics().Hits)
	p.GiveBack(again)
}

func TestOutstandingTracksRentsMinusReturns(t *testing.T) {
	p, _ := newPool(t)

	var held []*pool.Buffer
	for i := 0; i < 50; i++ {
		b, err := p.Rent(100 * (i%5 + 1))
		require.NoError(t, err)
		held = append(held, b)
		st := p.Statistics()
		require.Equal(t, st.Rents-st.Returns, st.Outstanding())
		require.Equal(t, int64(len(held)), st.Outstanding())
	}
	for len(held) > 0 {
		p.GiveBack(held[0])
		held = held[1:]
		st := p.Statistics()
		require.Equal(t, int64(len(held)), st.Outstanding())
	}
}

func TestSteadyStateHitRate(t *testing.T) {
	p, _ := newPool(t)
	const iterations = 10_000

	for i := 0; i < iterations; i++ {
		b, err := p.Rent(1024)
		require.NoError(t, err)
		b.Bytes()[0] = byte(i)
		p.GiveBack(b)
	}

	st := p.Statistics()
	assert.Equal(t, int64(iterations), st.Rents)
	assert.Equal(t, int64(iterations), st.Returns)
	assert.Greater(t, st.Classes[pool.SelectClass(1024)].HitRate(), 0.9)
	assert.Equal(t, int64(0), st.Outstanding())
}

func TestGiveBackDiscardsWhenClassFull(t *testing.T) {
	p, alloc := newPool(t)
	idx := pool.SelectClass(1024 * 1024)
	limit := pool.Classes()[idx].MaxResident

	bufs := make([]*pool.Buffer, limit+10)
	for i := range bufs {
		b, err := p.Rent(1024 * 1024)
		require.NoError(t, err)
		bufs[i] = b
	}
	for _, b := range bufs {
		p.GiveBack(b)
	}

	cs := p.Statistics().Classes[idx]
	assert.Equal(t, limit, cs.Free)
	assert.Equal(t, int64(10), cs.Discards)
	assert.Equal(t, int64(0), cs.Outstanding())
	assert.Equal(t, int64(10), alloc.Frees(), "discarded buffers release their memory")
	assert.Equal(t, int64(10), p.Statistics().Overflow())
}

func TestOversizeBypassesPooling(t *testing.T) {
	p, alloc := newPool(t)
	before := p.Statistics()

	b, err := p.Rent(5 * 1024 * 1024)
	require.NoError(t, err)
	assert.Equal(t, pool.ClassOversize, b.Class())
	assert.GreaterOrEqual(t, b.Cap(), 5*1024*1024)
	b.Bytes()[b.Len()-1] = 1

	after := p.Statistics()
	assert.Equal(t, before.Overflow()+1, after.Overflow())
	assert.Equal(t, int64(1), after.OversizeRents)
	assert.Equal(t, int64(0), after.Rents, "oversize rents are untracked")
	for i := range after.Classes {
		assert.Equal(t, before.Classes[i].Free, after.Classes[i].Free)
	}

	p.GiveBack(b)
	assert.Equal(t, int64(1), alloc.Frees(), "oversize buffer is disposed directly")
	for i, cs := range p.Statistics().Classes {
		assert.Equal(t, before.Classes[i].Free, cs.Free)
	}
}

func TestDuplicateGiveBackIgnored(t *testing.T) {
	p, _ := newPool(t)

	b, err := p.Rent(256)
	require.NoError(t, err)
	p.GiveBack(b)
	p.GiveBack(b)
	p.GiveBack(nil)

	st := p.Statistics()
	assert.Equal(t, int64(1), st.Returns)
	assert.Equal(t, 1, st.Classes[pool.SelectClass(256)].Free)
}

func TestForeignBufferIgnored(t *testing.T) {
	p1, _ := newPool(t)
	p2, _ := newPool(t)

	b, err := p1.Rent(128)
	require.NoError(t, err)
	p2.GiveBack(b)
	assert.Equal(t, int64(0), p2.Statistics().Returns)
	p1.GiveBack(b)
	assert.Equal(t, int64(1), p1.Statistics().Returns)
}

func TestRentNegativeSize(t *testing.T) {
	p, _ := newPool(t)
	_, err := p.Rent(-1)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	assert.Equal(t, api.ErrCodeInvalidArgument, api.CodeOf(err))
}

func TestAllocationFailurePropagates(t *testing.T) {
	p, alloc := newPool(t)
	alloc.FailAfter(1)

	b, err := p.Rent(64)
	require.NoError(t, err)

	_, err = p.Rent(64)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrAllocationFailure)
	assert.Equal(t, api.ErrCodeAllocation, api.CodeOf(err))

	st := p.Statistics()
	assert.Equal(t, int64(1), st.Rents, "failed rent is not counted")
	assert.Equal(t, int64(1), st.Outstanding())

	p.GiveBack(b)
	_, err = p.Rent(64)
	assert.NoError(t, err, "free buffer still served without allocation")
}

func TestPrewarmThenConcurrentRentsAllHit(t *testing.T) {
	p, _ := newPool(t)
	require.NoError(t, p.Prewarm(1024, 100))

	idx := pool.SelectClass(1024)
	require.Equal(t, 100, p.Statistics().Classes[idx].Free)

	var g errgroup.Group
	rented := make([]*pool.Buffer, 100)
	for i := 0; i < 100; i++ {
		i := i
		g.Go(func() error {
			b, err := p.Rent(1024)
			rented[i] = b
			return err
		})
	}
	require.NoError(t, g.Wait())

	cs := p.Statistics().Classes[idx]
	assert.Equal(t, int64(100), cs.Hits)
	assert.Equal(t, int64(0), cs.Misses)
	for _, b := range rented {
		p.GiveBack(b)
	}
}

func TestPrewarmRespectsResidentLimit(t *testing.T) {
	p, alloc := newPool(t)
	idx := pool.SelectClass(4 * 1024 * 1024)
	limit := pool.Classes()[idx].MaxResident

	require.NoError(t, p.Prewarm(4*1024*1024, limit+20))
	assert.Equal(t, limit, p.Statistics().Classes[idx].Free)
	assert.Equal(t, int64(limit+1), alloc.Allocs(), "one surplus allocation is released")

	require.NoError(t, p.Prewarm(pool.MaxPooledSize+1, 10), "oversize prewarm is a no-op")
	require.NoError(t, p.Prewarm(64, 0))
}

func TestPrewarmPlan(t *testing.T) {
	p, _ := newPool(t)
	require.NoError(t, p.PrewarmPlan(map[int]int{128: 50, 1024: 100}))

	st := p.Statistics()
	assert.Equal(t, 50, st.Classes[pool.SelectClass(128)].Free)
	assert.Equal(t, 100, st.Classes[pool.SelectClass(1024)].Free)
}

func TestPrewarmPlanAllocationFailure(t *testing.T) {
	p, alloc := newPool(t)
	alloc.FailAfter(5)
	err := p.PrewarmPlan(map[int]int{128: 50})
	assert.ErrorIs(t, err, api.ErrAllocationFailure)
}

func TestClearDrainsFreeLists(t *testing.T) {
	p, alloc := newPool(t)
	require.NoError(t, p.Prewarm(256, 10))
	p.Clear()
	assert.Equal(t, 0, p.Statistics().Classes[pool.SelectClass(256)].Free)
	assert.Equal(t, int64(10), alloc.Frees())
}

func TestClosedPoolRejectsRent(t *testing.T) {
	alloc := fake.NewAllocator()
	p := pool.New(pool.WithAllocator(alloc), pool.WithLogger(logging.Discard()))

	b, err := p.Rent(64)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	assert.False(t, alloc.Closed(), "allocator stays open while a buffer is rented")

	_, err = p.Rent(64)
	assert.ErrorIs(t, err, api.ErrPoolClosed)

	p.GiveBack(b)
	assert.Equal(t, 0, p.Statistics().Classes[2].Free, "late give back after close is discarded")
	assert.True(t, alloc.Closed(), "last give back closes the allocator")
}

func TestCloseWithoutRentsClosesAllocator(t *testing.T) {
	alloc := fake.NewAllocator()
	p := pool.New(pool.WithAllocator(alloc), pool.WithLogger(logging.Discard()))
	require.NoError(t, p.Prewarm(64, 3))
	require.NoError(t, p.Close())
	assert.True(t, alloc.Closed())
	assert.Equal(t, int64(3), alloc.Frees())
}

func TestCloseKeepsRentedNativeMemoryMapped(t *testing.T) {
	arena := native.NewArena(0)
	p := pool.New(pool.WithAllocator(arena), pool.WithLogger(logging.Discard()))

	pooled, err := p.Rent(16384)
	require.NoError(t, err)
	oversize, err := p.Rent(pool.MaxPooledSize + 1)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	assert.Positive(t, arena.Stats().MappedBytes)

	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)
	assert.NotPanics(t, func() {
		for _, b := range []*pool.Buffer{pooled, oversize} {
			mem := b.Bytes()
			mem[0], mem[len(mem)-1] = 1, 2
		}
	})

	p.GiveBack(pooled)
	assert.Positive(t, arena.Stats().MappedBytes, "oversize buffer still out")
	p.GiveBack(oversize)
	assert.Equal(t, native.ArenaStats{}, arena.Stats(), "arena closed after the last return")
}

func TestPrewarmSizes(t *testing.T) {
	p, _ := newPool(t)
	require.NoError(t, p.PrewarmSizes([]int{100, 2000, 100_000}, 7))

	st := p.Statistics()
	for _, size := range []int{100, 2000, 100_000} {
		assert.Equal(t, 7, st.Classes[pool.SelectClass(size)].Free, "size %d", size)
	}
	require.NoError(t, p.PrewarmSizes(nil, 7))
}

func TestPrewarmSizesAllocationFailure(t *testing.T) {
	p, alloc := newPool(t)
	alloc.FailAfter(2)
	err := p.PrewarmSizes([]int{64, 128}, 5)
	assert.ErrorIs(t, err, api.ErrAllocationFailure)
}

func TestSetLen(t *testing.T) {
	p, _ := newPool(t)
	b, err := p.Rent(10)
	require.NoError(t, err)
	defer p.GiveBack(b)

	require.NoError(t, b.SetLen(16))
	assert.Len(t, b.Bytes(), 16)
	assert.ErrorIs(t, b.SetLen(17), api.ErrSizeExceedsBuffer)
	assert.Error(t, b.SetLen(-1))
}

// Each worker stamps its id across the whole buffer and verifies the stamp
// before giving it back; any aliasing between renters corrupts a stamp.
func TestConcurrentRentGiveBackNoAliasing(t *testing.T) {
	p, _ := newPool(t)
	const workers, cycles = 16, 2000
	sizes := []int{16, 100, 1024, 5000, 70_000}

	var corrupted atomic.Int64
	var inUse sync.Map
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		id := byte(w + 1)
		g.Go(func() error {
			for i := 0; i < cycles; i++ {
				b, err := p.Rent(sizes[i%len(sizes)])
				if err != nil {
					return err
				}
				if _, dup := inUse.LoadOrStore(b, id); dup {
					corrupted.Add(1)
				}
				stamp := bytes.Repeat([]byte{id}, b.Len())
				copy(b.Bytes(), stamp)
				if !bytes.Equal(b.Bytes(), stamp) {
					corrupted.Add(1)
				}
				inUse.Delete(b)
				p.GiveBack(b)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	st := p.Statistics()
	assert.Equal(t, int64(0), corrupted.Load())
	assert.Equal(t, int64(workers*cycles), st.Rents)
	assert.Equal(t, int64(0), st.Outstanding())
}

func TestStatisticsString(t *testing.T) {
	p, _ := newPool(t)
	b, err := p.Rent(16)
	require.NoError(t, err)
	p.GiveBack(b)

	st := p.Statistics()
	assert.Contains(t, st.String(), "rents=1")
	assert.Contains(t, st.Classes[0].String(), "size=16")
}

func TestDefaultIsSingleton(t *testing.T) {
	assert.Same(t, pool.Default(), pool.Default())
}
