// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package svm

import (
	"unsafe"

	"github.com/gogpu/svm/internal/align"
)

// RawBuffer owns one allocation of Cap() elements of T in shared memory. It
// tracks capacity only; which elements are initialized is the owner's
// business (see Vec).
//
// The allocation strategy is fixed at construction: the Go heap for
// fine-grain system mode, Context.AllocateShared otherwise. Destroy frees
// the allocation with the matching primitive.
//
// RawBuffer is not safe for concurrent mutation.
type RawBuffer[T any] struct {
	ptr     unsafe.Pointer
	cap     int
	mode    Mode
	atomics bool
	cc      Context
	elem    elemInfo[T]

	// heap keeps a fine-grain system allocation reachable.
	heap []T
}

// NewRawBuffer returns an empty buffer (capacity 0, no allocation) for the
// given context and capability bitmask.
//
// It panics if T is zero-sized, if T holds Go pointers, or if caps has no
// buffer sharing support.
func NewRawBuffer[T any](cc Context, caps Capabilities) *RawBuffer[T] {
	b := &RawBuffer[T]{}
	b.init(cc, caps)
	return b
}

func (b *RawBuffer[T]) init(cc Context, caps Capabilities) {
	b.elem = newElemInfo[T]()
	b.mode, b.atomics = ResolveMode(caps)
	b.cc = cc
}

// Cap returns the number of element slots owned by the buffer.
func (b *RawBuffer[T]) Cap() int { return b.cap }

// Mode returns the allocation mode.
func (b *RawBuffer[T]) Mode() Mode { return b.mode }

// Atomics reports whether allocations request atomics support.
func (b *RawBuffer[T]) Atomics() bool { return b.atomics }

// Ptr returns the start of the allocation, or nil if Cap() is 0. The
// pointer is invalidated by the next Grow or Destroy.
func (b *RawBuffer[T]) Ptr() unsafe.Pointer { return b.ptr }

// Grow reallocates the buffer to hold more elements. A request for exactly
// one more element than the current non-zero capacity doubles the
// capacity; any other request sets the capacity to target exactly.
// Requests that do not exceed the current capacity are no-ops.
//
// The first Cap() elements are copied bytewise into the new allocation and
// the old allocation is freed. If the context fails the allocation, Grow
// returns an *AllocationError and leaves the buffer unchanged.
//
// Grow panics with ErrCapacityOverflow if the new size exceeds half of the
// address space. A zero RawBuffer that was never constructed cannot grow
// and returns ErrNotConstructed.
func (b *RawBuffer[T]) Grow(target int) error {
	if target < 0 {
		fatal(ErrCapacityOverflow, "negative capacity %d", target)
	}
	newCap := target
	if b.cap > 0 && target == b.cap+1 {
		newCap = 2 * b.cap
	}
	if newCap <= b.cap {
		return nil
	}
	if b.elem.size == 0 {
		return ErrNotConstructed
	}
	size, ok := align.Bytes(newCap, b.elem.size)
	if !ok {
		fatal(ErrCapacityOverflow, "%d elements of %d bytes", newCap, b.elem.size)
	}

	ptr, heap, err := b.allocate(newCap, size)
	if err != nil {
		return err
	}

	if b.cap > 0 {
		oldSize := uintptr(b.cap) * b.elem.size
		copy(unsafe.Slice((*byte)(ptr), oldSize), unsafe.Slice((*byte)(b.ptr), oldSize))
		b.free()
	}

	Logger().Debug("svm: buffer grown",
		"mode", b.mode,
		"old_cap", b.cap,
		"new_cap", newCap,
		"bytes", size)

	b.ptr = ptr
	b.heap = heap
	b.cap = newCap
	return nil
}

// allocate obtains size bytes for n elements using the strategy for the
// buffer's mode.
func (b *RawBuffer[T]) allocate(n int, size uintptr) (unsafe.Pointer, []T, error) {
	if b.mode == ModeFineGrainSystem {
		heap := make([]T, n)
		return unsafe.Pointer(unsafe.SliceData(heap)), heap, nil
	}

	ptr, err := b.cc.AllocateShared(memFlags(b.mode, b.atomics), size, b.elem.align)
	if err == nil && ptr == nil {
		err = MemObjectAllocationFailure
	}
	if err == nil && !align.Aligned(ptr, b.elem.align) {
		b.cc.FreeShared(ptr)
		err = InvalidValue
	}
	if err != nil {
		return nil, nil, &AllocationError{
			Mode:  b.mode,
			Bytes: size,
			Align: b.elem.align,
			Err:   err,
		}
	}
	return ptr, nil, nil
}

// free releases the current allocation with the primitive matching the
// mode that obtained it.
func (b *RawBuffer[T]) free() {
	if b.ptr == nil {
		return
	}
	if b.mode == ModeFineGrainSystem {
		b.heap = nil
	} else {
		b.cc.FreeShared(b.ptr)
	}
	b.ptr = nil
}

// Zero overwrites the bytes of the first count slots with zero. It is meant
// for freshly allocated slots; it does not release live elements.
func (b *RawBuffer[T]) Zero(count int) {
	if count < 0 || count > b.cap {
		fatal(ErrIndexOutOfRange, "zero %d elements with capacity %d", count, b.cap)
	}
	if count == 0 {
		return
	}
	clear(unsafe.Slice((*byte)(b.ptr), uintptr(count)*b.elem.size))
}

// Destroy frees the allocation. The buffer is left with capacity 0 and may
// be grown again. Destroy is idempotent.
func (b *RawBuffer[T]) Destroy() {
	b.free()
	b.cap = 0
}

// at returns a pointer to slot i. i must be within [0, Cap()].
func (b *RawBuffer[T]) at(i int) *T {
	return (*T)(unsafe.Add(b.ptr, uintptr(i)*b.elem.size))
}

// slice returns slots [0, n) as a slice.
func (b *RawBuffer[T]) slice(n int) []T {
	if n == 0 || b.ptr == nil {
		return nil
	}
	return unsafe.Slice((*T)(b.ptr), n)
}

// take moves the allocation out of b into a new buffer, leaving b empty
// but still bound to its context and mode.
func (b *RawBuffer[T]) take() RawBuffer[T] {
	moved := *b
	b.ptr = nil
	b.heap = nil
	b.cap = 0
	return moved
}
