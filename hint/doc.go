// Package hint
// Author: momentics <momentics@gmail.com>
//
// Pooled correlation tokens for the engine's release callback.
//
// The engine echoes back a single pointer-sized value when it is done with a
// buffer. A Pool maps that value (a Handle) to the payload awaiting release
// through a concurrent lookup table. Handles are never reused, so a claim for
// an already-claimed handle can only miss and is a safe no-op.
package hint
