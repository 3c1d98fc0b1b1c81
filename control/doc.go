// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics, debug introspection and leak detection for hioload-mq.
//
// Provides concurrent-safe primitives including:
//   - A metrics registry fed from pool and hint-token statistics
//   - Debug probe registration and state export
//   - Outstanding-buffer leak checks at drain time
package control
