// File: hint/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package hint

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/core/concurrency"
	"github.com/momentics/hioload-mq/internal/logging"
)

// Handle identifies one outstanding token. It is pointer-sized so it
// survives the round trip through the engine unchanged. Zero is never
// issued. After the counter wraps, a handle still live is skipped, so the
// live table never holds two tokens under one handle.
type Handle uintptr

// Hint converts h to the pointer-sized value handed to the engine.
func (h Handle) Hint() uintptr { return uintptr(h) }

// FromHint converts a value echoed by the engine back to a Handle.
func FromHint(v uintptr) Handle { return Handle(v) }

type token[T any] struct {
	handle  Handle
	payload T
}

// Pool is a single-class token pool plus the live handle table.
type Pool[T any] struct {
	free      *concurrency.LockFreeQueue[*token[T]]
	freeCount atomic.Int64
	resident  int64

	live    sync.Map // Handle -> *token[T]
	next    atomic.Uintptr
	wrapped atomic.Bool
	recent  *lru.Cache[Handle, time.Time]
	log    *slog.Logger

	acquired   atomic.Int64
	claimed    atomic.Int64
	duplicates atomic.Int64
	unknown    atomic.Int64
	allocated  atomic.Int64
}

// NewPool creates a token pool and pre-allocates its initial tokens.
func NewPool[T any](opts ...Option) *Pool[T] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.prealloc > cfg.resident {
		cfg.prealloc = cfg.resident
	}

	p := &Pool[T]{
		free:     concurrency.NewLockFreeQueue[*token[T]](cfg.resident),
		resident: int64(cfg.resident),
		log:      logging.Component(cfg.logger, "hint"),
	}
	if cfg.trackDuplicates > 0 {
		// only fails for a non-positive size
		p.recent, _ = lru.New[Handle, time.Time](cfg.trackDuplicates)
	}
	for i := 0; i < cfg.prealloc; i++ {
		p.allocated.Add(1)
		p.put(&token[T]{})
	}
	return p
}

// Acquire registers payload under a fresh handle.
func (p *Pool[T]) Acquire(payload T) Handle {
	tok, ok := p.take()
	if !ok {
		tok = &token[T]{}
		p.allocated.Add(1)
	}
	tok.payload = payload
	p.acquired.Add(1)
	for {
		h := Handle(p.next.Add(1))
		if h == 0 {
			p.wrapped.Store(true)
			p.log.Info("hint handle counter wrapped")
			continue
		}
		tok.handle = h
		// tok may be claimed as soon as it is stored; only h is safe to use after.
		if _, busy := p.live.LoadOrStore(h, tok); !busy {
			return h
		}
		p.log.Debug("handle still live after wraparound, skipped", slog.Uint64("handle", uint64(h)))
	}
}

// Claim atomically removes h from the live table and returns its payload.
// Only the first claim of a handle succeeds; later claims return false.
func (p *Pool[T]) Claim(h Handle) (T, bool) {
	v, ok := p.live.LoadAndDelete(h)
	if !ok {
		var zero T
		p.miss(h)
		return zero, false
	}
	tok := v.(*token[T])
	payload := tok.payload

	var zero T
	tok.payload = zero
	tok.handle = 0
	p.claimed.Add(1)
	if p.recent != nil {
		p.recent.Add(h, time.Now())
	}
	p.put(tok)
	return payload, true
}

// miss classifies a failed claim. Before the counter wraps, any handle in
// [1, last issued] was claimed already. After it wraps the range says
// nothing, so the recent-claims cache decides when tracking is enabled.
func (p *Pool[T]) miss(h Handle) {
	if p.recent != nil {
		if first, ok := p.recent.Get(h); ok {
			p.duplicates.Add(1)
			p.log.Debug("duplicate release ignored",
				slog.Uint64("handle", uint64(h)),
				slog.Duration("since_first", time.Since(first)))
			return
		}
	}
	wrapped := p.wrapped.Load()
	if h == 0 || (!wrapped && uintptr(h) > p.next.Load()) || (wrapped && p.recent != nil) {
		p.unknown.Add(1)
		p.log.Warn("release for unknown handle", slog.Uint64("handle", uint64(h)))
		return
	}
	p.duplicates.Add(1)
	p.log.Debug("duplicate release ignored", slog.Uint64("handle", uint64(h)))
}

func (p *Pool[T]) take() (*token[T], bool) {
	tok, ok := p.free.Dequeue()
	if ok {
		p.freeCount.Add(-1)
	}
	return tok, ok
}

func (p *Pool[T]) put(tok *token[T]) {
	for {
		n := p.freeCount.Load()
		if n >= p.resident {
			return
		}
		if p.freeCount.CompareAndSwap(n, n+1) {
			break
		}
	}
	if !p.free.Enqueue(tok) {
		p.freeCount.Add(-1)
	}
}

// Live reports whether h is registered and not yet claimed.
func (p *Pool[T]) Live(h Handle) bool {
	_, ok := p.live.Load(h)
	return ok
}

// Statistics returns a snapshot of token counters.
func (p *Pool[T]) Statistics() api.HintStatistics {
	claimed := p.claimed.Load()
	acquired := p.acquired.Load()
	return api.HintStatistics{
		Acquired:   acquired,
		Claimed:    claimed,
		Duplicates: p.duplicates.Load(),
		Unknown:    p.unknown.Load(),
		Allocated:  p.allocated.Load(),
		Free:       int(p.freeCount.Load()),
		Live:       acquired - claimed,
	}
}
