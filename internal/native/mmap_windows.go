//go:build windows

// File: internal/native/mmap_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Committed private pages via VirtualAlloc.

package native

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func pageSize() int { return windows.Getpagesize() }

func mapRegion(size int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func unmapRegion(mem []byte) error {
	return windows.VirtualFree(uintptr(unsafe.Pointer(unsafe.SliceData(mem))), 0, windows.MEM_RELEASE)
}
