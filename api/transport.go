// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Contract with the external messaging engine that performs the actual
// zero-copy transmission.

package api

// ReleaseFunc is invoked by the engine, from any goroutine or foreign
// thread, once it no longer reads the memory handed to SendZeroCopy.
// hint is the value passed to SendZeroCopy, echoed back unmodified.
// The engine may call it synchronously, later, more than once, or never.
type ReleaseFunc func(hint uintptr)

// ZeroCopyTransport abstracts the engine's send/receive surface.
type ZeroCopyTransport interface {
	// SendZeroCopy transmits data without copying. When it returns nil the
	// engine owns data until release(hint) is called. A non-nil error means
	// the engine did not take the buffer and will not call release.
	SendZeroCopy(data []byte, hint uintptr, release ReleaseFunc) error

	// Recv synchronously fills buf and returns the number of bytes received.
	Recv(buf []byte) (int, error)
}
