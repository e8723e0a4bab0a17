// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package align provides the size and alignment arithmetic shared by the
// svm allocators.
package align

import (
	"math"
	"unsafe"
)

// MaxBytes is the largest byte size any single allocation may request.
// It is half of the maximum signed address range, which keeps offset
// arithmetic on the allocation well clear of overflow.
const MaxBytes = uintptr(math.MaxInt / 2)

// IsPow2 reports whether n is a non-zero power of two.
func IsPow2(n uintptr) bool {
	return n != 0 && n&(n-1) == 0
}

// Up rounds n up to the next multiple of a. a must be a power of two.
func Up(n, a uintptr) uintptr {
	return (n + a - 1) &^ (a - 1)
}

// Up64 is Up for uint64 sizes (device buffer sizes).
func Up64(n, a uint64) uint64 {
	return (n + a - 1) &^ (a - 1)
}

// Bytes returns count*elemSize and whether the product is within MaxBytes.
func Bytes(count int, elemSize uintptr) (uintptr, bool) {
	if count < 0 || elemSize == 0 {
		return 0, false
	}
	if uintptr(count) > MaxBytes/elemSize {
		return 0, false
	}
	return uintptr(count) * elemSize, true
}

// Pointer returns the first address at or after p that is a multiple of a.
func Pointer(p unsafe.Pointer, a uintptr) unsafe.Pointer {
	off := Up(uintptr(p), a) - uintptr(p)
	return unsafe.Add(p, off)
}

// Aligned reports whether p is a multiple of a.
func Aligned(p unsafe.Pointer, a uintptr) bool {
	return uintptr(p)&(a-1) == 0
}

// HeapBlock allocates a pointer-free block of at least size bytes from the
// Go heap whose start is aligned to a. The returned slice keeps the block
// reachable; the pointer is its aligned start.
func HeapBlock(size, a uintptr) ([]byte, unsafe.Pointer) {
	if a < 1 {
		a = 1
	}
	block := make([]byte, size+a)
	return block, Pointer(unsafe.Pointer(unsafe.SliceData(block)), a)
}
