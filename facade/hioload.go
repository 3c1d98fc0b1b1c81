// File: facade/hioload.go
// Unified facade layer for hioload-mq.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HioloadMQ aggregates the buffer pool, the hint-token pool, the message
// lifecycle and the control surface behind one configured instance.

package facade

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-mq/adapters"
	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/control"
	"github.com/momentics/hioload-mq/hint"
	"github.com/momentics/hioload-mq/internal/logging"
	"github.com/momentics/hioload-mq/message"
	"github.com/momentics/hioload-mq/pool"
)

// Config holds parameters immutable per instance.
type Config struct {
	Prewarm           map[int]int    // request size -> buffers to allocate up front
	HintResident      int            // free hint tokens retained
	HintPrealloc      int            // hint tokens created at startup
	DuplicateTracking int            // recent claims remembered for duplicate logging, 0 disables
	Logging           logging.Config // logger setup, ignored when Logger is set
	Logger            *slog.Logger
	Allocator         pool.Allocator // nil selects the native arena
	EnableMetrics     bool           // expose api.Control
	LeakCheckOnClose  bool           // report outstanding buffers on Shutdown
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		HintResident:      hint.DefaultResident,
		HintPrealloc:      hint.DefaultPrealloc,
		DuplicateTracking: 1024,
		Logging:           logging.DefaultConfig(),
		EnableMetrics:     true,
		LeakCheckOnClose:  true,
	}
}

// HioloadMQ is the main facade type.
type HioloadMQ struct {
	pool      *pool.BufferPool
	hints     *hint.Pool[message.Payload]
	lifecycle *message.Lifecycle
	control   *adapters.ControlAdapter
	leaks     *control.LeakDetector
	log       *slog.Logger

	config   *Config
	ownsPool bool

	closed atomic.Bool
}

// New constructs an instance with its own buffer pool.
func New(cfg *Config) (*HioloadMQ, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New(cfg.Logging)
	}

	opts := []pool.Option{pool.WithLogger(log)}
	if cfg.Allocator != nil {
		opts = append(opts, pool.WithAllocator(cfg.Allocator))
	}
	p := pool.New(opts...)

	if len(cfg.Prewarm) > 0 {
		if err := p.PrewarmPlan(cfg.Prewarm); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("prewarm: %w", err)
		}
	}
	return assemble(cfg, p, log, true), nil
}

func assemble(cfg *Config, p *pool.BufferPool, log *slog.Logger, owns bool) *HioloadMQ {
	hopts := []hint.Option{
		hint.WithResident(cfg.HintResident),
		hint.WithPrealloc(cfg.HintPrealloc),
		hint.WithLogger(log),
	}
	if cfg.DuplicateTracking > 0 {
		hopts = append(hopts, hint.WithDuplicateTracking(cfg.DuplicateTracking))
	}
	hints := hint.NewPool[message.Payload](hopts...)

	h := &HioloadMQ{
		pool:      p,
		hints:     hints,
		lifecycle: message.NewLifecycle(p, hints, message.WithLogger(log)),
		leaks:     control.NewLeakDetector(p, log),
		log:       logging.Component(log, "facade"),
		config:    cfg,
		ownsPool:  owns,
	}
	if cfg.EnableMetrics {
		h.control = adapters.NewControlAdapter(p, hints)
	}
	return h
}

var (
	defaultOnce sync.Once
	defaultMQ   *HioloadMQ
)

// Default returns the process-wide instance built on pool.Default. It is
// created once and never reinitialised; Shutdown on it keeps the shared pool.
func Default() *HioloadMQ {
	defaultOnce.Do(func() {
		cfg := DefaultConfig()
		defaultMQ = assemble(cfg, pool.Default(), logging.New(cfg.Logging), false)
	})
	return defaultMQ
}

// Pool returns the buffer pool.
func (h *HioloadMQ) Pool() *pool.BufferPool { return h.pool }

// Hints returns the hint-token pool.
func (h *HioloadMQ) Hints() *hint.Pool[message.Payload] { return h.hints }

// Lifecycle returns the message lifecycle.
func (h *HioloadMQ) Lifecycle() *message.Lifecycle { return h.lifecycle }

// GetControl returns the Control interface, or nil when metrics are disabled.
func (h *HioloadMQ) GetControl() api.Control {
	if h.control == nil {
		return nil
	}
	return h.control
}

// Statistics returns the buffer pool statistics.
func (h *HioloadMQ) Statistics() api.PoolStatistics { return h.pool.Statistics() }

// Send copies data into a pooled buffer and hands it to t.
func (h *HioloadMQ) Send(t api.ZeroCopyTransport, data []byte) error {
	if h.closed.Load() {
		return api.ErrPoolClosed
	}
	return h.lifecycle.Send(t, data)
}

// SendFunc hands caller-owned data to t without copying; release runs once
// the engine is done with it.
func (h *HioloadMQ) SendFunc(t api.ZeroCopyTransport, data []byte, release func([]byte)) error {
	if h.closed.Load() {
		return api.ErrPoolClosed
	}
	return h.lifecycle.SendFunc(t, data, release)
}

// Recv reads one frame of up to maxFrame bytes. The caller must return the
// buffer with GiveBack.
func (h *HioloadMQ) Recv(t api.ZeroCopyTransport, maxFrame int) (*pool.Buffer, error) {
	if h.closed.Load() {
		return nil, api.ErrPoolClosed
	}
	return h.lifecycle.Recv(t, maxFrame)
}

// GiveBack returns a received buffer.
func (h *HioloadMQ) GiveBack(b *pool.Buffer) { h.pool.GiveBack(b) }

// CheckLeaks reports outstanding buffers. Meaningful only after all
// traffic has drained.
func (h *HioloadMQ) CheckLeaks() error { return h.leaks.Check() }

// Shutdown optionally checks for leaks, then closes an owned pool. Buffers
// still in flight keep their memory until they are released; release
// callbacks arriving afterwards are absorbed. Calling it twice is a no-op.
func (h *HioloadMQ) Shutdown() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if h.config.LeakCheckOnClose {
		if err := h.leaks.Check(); err != nil {
			errs = append(errs, err)
		}
	}
	if h.ownsPool {
		if err := h.pool.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.log.Info("shutdown complete", slog.String("stats", h.pool.Statistics().String()))
	return errors.Join(errs...)
}
