// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake messaging engine for testing the zero-copy send and receive paths.
// Release timing is controllable: synchronous, deferred to worker goroutines,
// duplicated, or withheld until the test decides.

package fake

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/sourcegraph/conc"

	"github.com/momentics/hioload-mq/api"
)

var (
	// ErrNoMessage is returned by Recv when nothing is queued.
	ErrNoMessage = errors.New("fake: no message queued")
	// ErrTruncated is returned by Recv when a frame is larger than the buffer.
	ErrTruncated = errors.New("fake: frame truncated")
)

// ReleaseMode controls when the engine invokes release callbacks.
type ReleaseMode int

const (
	// ReleaseSync calls release before SendZeroCopy returns.
	ReleaseSync ReleaseMode = iota
	// ReleaseAsync calls release later from a worker goroutine.
	ReleaseAsync
	// ReleaseDuplicate calls release twice before SendZeroCopy returns.
	ReleaseDuplicate
	// ReleaseNever holds callbacks until ReleaseHeld is called.
	ReleaseNever
)

type pendingRelease struct {
	hint    uintptr
	release api.ReleaseFunc
}

// Engine is a fake api.ZeroCopyTransport.
type Engine struct {
	mode     ReleaseMode
	loopback bool

	mu      sync.Mutex
	pending *queue.Queue // pendingRelease, async and held callbacks
	inbox   *queue.Queue // []byte frames for Recv
	sendErr error
	closed  bool

	wake    chan struct{}
	done    chan struct{}
	workers conc.WaitGroup

	sent     atomic.Int64
	released atomic.Int64
}

var _ api.ZeroCopyTransport = (*Engine)(nil)

// EngineOption customizes a fake engine.
type EngineOption func(*Engine)

// WithReleaseMode selects the release timing.
func WithReleaseMode(m ReleaseMode) EngineOption {
	return func(e *Engine) { e.mode = m }
}

// WithLoopback queues a copy of every sent frame for Recv.
func WithLoopback() EngineOption {
	return func(e *Engine) { e.loopback = true }
}

// NewEngine creates a fake engine. In ReleaseAsync mode workers goroutines
// deliver the callbacks.
func NewEngine(workers int, opts ...EngineOption) *Engine {
	e := &Engine{
		pending: queue.New(),
		inbox:   queue.New(),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.mode == ReleaseAsync {
		if workers <= 0 {
			workers = 1
		}
		for i := 0; i < workers; i++ {
			e.workers.Go(e.run)
		}
	}
	return e
}

// SetSendError makes every following SendZeroCopy fail with err.
// Pass nil to restore normal behavior.
func (e *Engine) SetSendError(err error) {
	e.mu.Lock()
	e.sendErr = err
	e.mu.Unlock()
}

// SendZeroCopy implements api.ZeroCopyTransport.
func (e *Engine) SendZeroCopy(data []byte, hint uintptr, release api.ReleaseFunc) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return api.ErrTransportClosed
	}
	if e.sendErr != nil {
		err := e.sendErr
		e.mu.Unlock()
		return err
	}
	if e.loopback {
		frame := make([]byte, len(data))
		copy(frame, data)
		e.inbox.Add(frame)
	}
	if e.mode == ReleaseAsync || e.mode == ReleaseNever {
		e.pending.Add(pendingRelease{hint: hint, release: release})
	}
	e.mu.Unlock()
	e.sent.Add(1)

	switch e.mode {
	case ReleaseSync:
		e.fire(hint, release)
	case ReleaseDuplicate:
		e.fire(hint, release)
		e.fire(hint, release)
	case ReleaseAsync:
		select {
		case e.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Recv implements api.ZeroCopyTransport.
func (e *Engine) Recv(buf []byte) (int, error) {
	e.mu.Lock()
	if e.inbox.Length() == 0 {
		closed := e.closed
		e.mu.Unlock()
		if closed {
			return 0, api.ErrTransportClosed
		}
		return 0, ErrNoMessage
	}
	frame := e.inbox.Remove().([]byte)
	e.mu.Unlock()

	n := copy(buf, frame)
	if n < len(frame) {
		return n, fmt.Errorf("%w: %d of %d bytes", ErrTruncated, n, len(frame))
	}
	return n, nil
}

// Deliver queues frame for the next Recv.
func (e *Engine) Deliver(frame []byte) {
	c := make([]byte, len(frame))
	copy(c, frame)
	e.mu.Lock()
	e.inbox.Add(c)
	e.mu.Unlock()
}

// ReleaseHeld invokes every callback held so far and returns how many ran.
func (e *Engine) ReleaseHeld() int {
	n := 0
	for {
		p, ok := e.pop()
		if !ok {
			return n
		}
		e.fire(p.hint, p.release)
		n++
	}
}

// Pending returns the number of callbacks not yet delivered.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.Length()
}

// Sent returns the number of accepted sends.
func (e *Engine) Sent() int64 { return e.sent.Load() }

// Released returns the number of release callbacks invoked.
func (e *Engine) Released() int64 { return e.released.Load() }

// Close rejects further sends and waits for async callbacks to drain.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	close(e.done)
	e.workers.Wait()
	return nil
}

func (e *Engine) run() {
	for {
		if p, ok := e.pop(); ok {
			e.fire(p.hint, p.release)
			continue
		}
		select {
		case <-e.wake:
		case <-e.done:
			for {
				p, ok := e.pop()
				if !ok {
					return
				}
				e.fire(p.hint, p.release)
			}
		}
	}
}

func (e *Engine) pop() (pendingRelease, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending.Length() == 0 {
		return pendingRelease{}, false
	}
	return e.pending.Remove().(pendingRelease), true
}

func (e *Engine) fire(hint uintptr, release api.ReleaseFunc) {
	e.released.Add(1)
	if release != nil {
		release(hint)
	}
}
