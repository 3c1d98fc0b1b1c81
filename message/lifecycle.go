// File: message/lifecycle.go
// Package message implements the zero-copy release protocol.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A buffer handed to the engine is registered under a hint handle. The
// engine echoes the handle back through OnRelease when it no longer reads
// the memory; the first claim of the handle returns a pooled buffer to its
// pool, or runs the owner's callback for caller-owned memory. Every later
// claim is absorbed.

package message

import (
	"fmt"
	"log/slog"

	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/hint"
	"github.com/momentics/hioload-mq/internal/logging"
	"github.com/momentics/hioload-mq/pool"
)

// Payload is what a hint handle resolves to on release: either a pooled
// buffer to give back, or caller-owned memory and the callback that returns
// it to its owner.
type Payload struct {
	Buffer  *pool.Buffer
	Data    []byte
	Release func([]byte)
}

// Message is one outbound payload in flight.
type Message struct {
	payload Payload
	handle  hint.Handle
}

// Bytes returns the payload window.
func (m *Message) Bytes() []byte {
	if m.payload.Buffer != nil {
		return m.payload.Buffer.Bytes()
	}
	return m.payload.Data
}

// Len returns the payload length.
func (m *Message) Len() int { return len(m.Bytes()) }

// Buffer returns the pooled buffer backing the message, or nil when the
// message carries caller-owned memory.
func (m *Message) Buffer() *pool.Buffer { return m.payload.Buffer }

// Handle returns the hint handle registered for the message.
func (m *Message) Handle() hint.Handle { return m.handle }

// Lifecycle binds a buffer pool to a hint pool.
type Lifecycle struct {
	pool  *pool.BufferPool
	hints *hint.Pool[Payload]
	log   *slog.Logger
}

// NewLifecycle creates a lifecycle over p and h.
func NewLifecycle(p *pool.BufferPool, h *hint.Pool[Payload], opts ...Option) *Lifecycle {
	l := &Lifecycle{pool: p, hints: h}
	for _, opt := range opts {
		opt(l)
	}
	l.log = logging.Component(l.log, "message")
	return l
}

// Pool returns the buffer pool.
func (l *Lifecycle) Pool() *pool.BufferPool { return l.pool }

// Hints returns the hint pool.
func (l *Lifecycle) Hints() *hint.Pool[Payload] { return l.hints }

// BeginSend marks b as carrying size payload bytes and registers it for
// release. From here b belongs to the message until its handle is claimed.
func (l *Lifecycle) BeginSend(b *pool.Buffer, size int) (*Message, error) {
	if b == nil {
		return nil, api.Wrap(api.ErrCodeInvalidArgument, "nil buffer", api.ErrInvalidArgument)
	}
	if err := b.SetLen(size); err != nil {
		return nil, err
	}
	p := Payload{Buffer: b}
	return &Message{payload: p, handle: l.hints.Acquire(p)}, nil
}

// BeginSendFunc registers caller-owned data for release. release runs once,
// from the engine's callback goroutine, when the engine is done with data.
func (l *Lifecycle) BeginSendFunc(data []byte, release func([]byte)) (*Message, error) {
	if release == nil {
		return nil, api.Wrap(api.ErrCodeInvalidArgument, "nil release callback", api.ErrInvalidArgument)
	}
	p := Payload{Data: data, Release: release}
	return &Message{payload: p, handle: l.hints.Acquire(p)}, nil
}

// OnRelease is the engine's release callback. It never panics, including
// when a caller release callback does.
func (l *Lifecycle) OnRelease(v uintptr) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("release callback panicked",
				slog.Uint64("handle", uint64(v)),
				slog.Any("panic", r))
		}
	}()
	p, ok := l.hints.Claim(hint.FromHint(v))
	if !ok {
		return
	}
	if p.Buffer != nil {
		l.pool.GiveBack(p.Buffer)
		return
	}
	p.Release(p.Data)
}

// ReleaseFunc returns OnRelease as an api.ReleaseFunc.
func (l *Lifecycle) ReleaseFunc() api.ReleaseFunc { return l.OnRelease }

// Abort reclaims m after the engine rejected it synchronously and reports
// whether this call performed the reclaim. A pooled buffer goes back to the
// pool. Caller-owned data is not passed to its release callback: the caller
// keeps ownership and learns of it from the send error.
func (l *Lifecycle) Abort(m *Message) bool {
	if m == nil {
		return false
	}
	p, ok := l.hints.Claim(m.handle)
	if !ok {
		return false
	}
	if p.Buffer != nil {
		l.pool.GiveBack(p.Buffer)
	}
	return true
}

// BeginReceive rents a buffer for an inbound frame of up to size bytes.
// The caller owns it and must return it with GiveBack.
func (l *Lifecycle) BeginReceive(size int) (*pool.Buffer, error) {
	return l.pool.Rent(size)
}

// GiveBack returns a receive buffer to the pool.
func (l *Lifecycle) GiveBack(b *pool.Buffer) { l.pool.GiveBack(b) }

// SendBuffer hands the first size bytes of b to t without copying.
// On a synchronous transport error b is reclaimed before returning.
func (l *Lifecycle) SendBuffer(t api.ZeroCopyTransport, b *pool.Buffer, size int) error {
	m, err := l.BeginSend(b, size)
	if err != nil {
		return err
	}
	return l.handOff(t, m)
}

func (l *Lifecycle) handOff(t api.ZeroCopyTransport, m *Message) error {
	if err := t.SendZeroCopy(m.Bytes(), m.handle.Hint(), l.OnRelease); err != nil {
		l.Abort(m)
		return fmt.Errorf("zero-copy send of %d bytes: %w", m.Len(), err)
	}
	return nil
}

// SendFunc hands caller-owned data to t without copying. release runs once
// the engine is done with data. On a synchronous transport error release is
// not called and data stays with the caller.
func (l *Lifecycle) SendFunc(t api.ZeroCopyTransport, data []byte, release func([]byte)) error {
	m, err := l.BeginSendFunc(data, release)
	if err != nil {
		return err
	}
	return l.handOff(t, m)
}

// Send copies data into a pooled buffer and hands it to t.
func (l *Lifecycle) Send(t api.ZeroCopyTransport, data []byte) error {
	b, err := l.pool.Rent(len(data))
	if err != nil {
		return err
	}
	copy(b.Raw(), data)
	return l.SendBuffer(t, b, len(data))
}

// Recv reads one frame of up to maxFrame bytes from t into a pooled buffer.
// The buffer length is set to the bytes received; on error it is given back.
func (l *Lifecycle) Recv(t api.ZeroCopyTransport, maxFrame int) (*pool.Buffer, error) {
	b, err := l.BeginReceive(maxFrame)
	if err != nil {
		return nil, err
	}
	n, err := t.Recv(b.Raw()[:maxFrame])
	if err != nil {
		l.pool.GiveBack(b)
		return nil, err
	}
	if err := b.SetLen(n); err != nil {
		l.pool.GiveBack(b)
		return nil, err
	}
	return b, nil
}
