// File: pool/buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-mq/api"
)

// Buffer is a native memory region sized exactly to one SizeClass
// (or to the request, for oversize buffers). It is owned either by its
// class free list or by exactly one renter.
type Buffer struct {
	mem     []byte
	n       int
	class   int
	created time.Time
	owner   *BufferPool
	rented  atomic.Bool
}

var _ api.Buffer = (*Buffer)(nil)

// Bytes returns the in-use window [0:Len()).
func (b *Buffer) Bytes() []byte { return b.mem[:b.n] }

// Raw returns the whole region regardless of Len.
func (b *Buffer) Raw() []byte { return b.mem }

// Len returns the number of bytes in use.
func (b *Buffer) Len() int { return b.n }

// Cap returns the region capacity.
func (b *Buffer) Cap() int { return len(b.mem) }

// Class returns the owning class index or ClassOversize.
func (b *Buffer) Class() int { return b.class }

// Created returns when the region was allocated. Diagnostic only.
func (b *Buffer) Created() time.Time { return b.created }

// SetLen adjusts the in-use window.
func (b *Buffer) SetLen(n int) error {
	if n < 0 || n > len(b.mem) {
		return api.Wrap(api.ErrCodeInvalidArgument, "buffer length out of range", api.ErrSizeExceedsBuffer).
			WithContext("len", n).WithContext("cap", len(b.mem))
	}
	b.n = n
	return nil
}
