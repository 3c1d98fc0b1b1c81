// File: pool/sizeclass.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "math/bits"

// SizeClass is an immutable bucket boundary with its retention limit.
type SizeClass struct {
	Index       int
	Capacity    int
	MaxResident int
}

const (
	// ClassOversize tags buffers above the largest class. They bypass pooling.
	ClassOversize = -1

	minClassShift = 4 // 16 B
	// MaxPooledSize is the capacity of the largest class.
	MaxPooledSize = 4 * 1024 * 1024
)

// Small classes retain many buffers cheaply; large ones retain few.
var classTable = [...]SizeClass{
	{0, 16, 1000},
	{1, 32, 1000},
	{2, 64, 1000},
	{3, 128, 1000},
	{4, 256, 1000},
	{5, 512, 1000},
	{6, 1024, 500},
	{7, 2048, 500},
	{8, 4096, 500},
	{9, 8 * 1024, 250},
	{10, 16 * 1024, 250},
	{11, 32 * 1024, 250},
	{12, 64 * 1024, 250},
	{13, 128 * 1024, 100},
	{14, 256 * 1024, 100},
	{15, 512 * 1024, 100},
	{16, 1024 * 1024, 50},
	{17, 2 * 1024 * 1024, 50},
	{18, 4 * 1024 * 1024, 50},
}

// NumClasses is the number of pooled size classes.
const NumClasses = len(classTable)

// Classes returns a copy of the class table.
func Classes() []SizeClass {
	out := make([]SizeClass, NumClasses)
	copy(out, classTable[:])
	return out
}

// SelectClass returns the index of the smallest class with capacity >= size,
// or ClassOversize when size exceeds MaxPooledSize.
func SelectClass(size int) int {
	if size > MaxPooledSize {
		return ClassOversize
	}
	if size <= 1<<minClassShift {
		return 0
	}
	return bits.Len(uint(size-1)) - minClassShift
}
