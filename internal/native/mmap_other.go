//go:build !unix && !windows

// File: internal/native/mmap_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platforms without a mapping API fall back to the Go heap.

package native

func pageSize() int { return 4096 }

func mapRegion(size int) ([]byte, error) { return make([]byte, size), nil }

func unmapRegion([]byte) error { return nil }
