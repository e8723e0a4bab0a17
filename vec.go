// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package svm

import (
	"fmt"
	"iter"
	"sync/atomic"
	"unsafe"
)

// Vec is a growable array whose elements live in shared virtual memory.
//
// Elements in [0, Len()) are initialized; slots in [Len(), Cap()) are not
// and are never read before being written. T must be a pointer-free,
// non-zero-sized type.
//
// A Vec must be created with New, WithCapacity, Allocate, AllocateZeroed or
// ForContext and released with Destroy. It is not safe for concurrent use;
// the memory it returns through Slice and Ptr is invalidated by any
// operation that grows the vector.
//
// Coarse-grain vectors must be mapped for host access (see Map and
// WithHostAccess) around reads and writes, and never grow implicitly: Push
// and Insert at capacity panic with ErrImplicitGrowth.
type Vec[T any] struct {
	buf RawBuffer[T]
	len int
	// draining is cleared by a Drain's garbage collection cleanup, which
	// runs on another goroutine.
	draining atomic.Bool
}

// New returns an empty vector with no allocation.
//
// It panics if T is zero-sized or holds Go pointers, or if caps has no
// buffer sharing support.
func New[T any](cc Context, caps Capabilities) *Vec[T] {
	v := &Vec[T]{}
	v.buf.init(cc, caps)
	return v
}

// WithCapacity returns an empty vector with capacity for exactly n
// elements.
func WithCapacity[T any](cc Context, caps Capabilities, n int) (*Vec[T], error) {
	v := New[T](cc, caps)
	if err := v.buf.Grow(n); err != nil {
		return nil, err
	}
	return v, nil
}

// Allocate returns a vector of length and capacity n. The contents are
// unspecified and must be written before they are read.
func Allocate[T any](cc Context, caps Capabilities, n int) (*Vec[T], error) {
	v, err := WithCapacity[T](cc, caps, n)
	if err != nil {
		return nil, err
	}
	v.len = n
	return v, nil
}

// AllocateZeroed returns a vector of n zero-valued elements. It is only
// available in fine-grain buffer mode, where the host can write the
// memory without mapping it; other modes panic with
// ErrZeroedRequiresFineGrain.
func AllocateZeroed[T any](cc Context, caps Capabilities, n int) (*Vec[T], error) {
	v := New[T](cc, caps)
	if v.buf.mode != ModeFineGrainBuffer {
		fatal(ErrZeroedRequiresFineGrain, "mode %s", v.buf.mode)
	}
	if err := v.buf.Grow(n); err != nil {
		return nil, err
	}
	v.buf.Zero(n)
	v.len = n
	return v, nil
}

// ForContext returns an empty vector with capacity n using the context's
// own capability bitmask.
func ForContext[T any](cc Context, n int) (*Vec[T], error) {
	return WithCapacity[T](cc, cc.SVMCapabilities(), n)
}

// Len returns the number of elements.
func (v *Vec[T]) Len() int { return v.len }

// Cap returns the number of elements the vector can hold without growing.
func (v *Vec[T]) Cap() int { return v.buf.cap }

// IsEmpty reports whether Len() == 0.
func (v *Vec[T]) IsEmpty() bool { return v.len == 0 }

// Mode returns the allocation mode.
func (v *Vec[T]) Mode() Mode { return v.buf.mode }

// IsFineGrainBuffer reports whether the vector uses fine-grain buffer mode.
func (v *Vec[T]) IsFineGrainBuffer() bool { return v.buf.mode == ModeFineGrainBuffer }

// IsFineGrainSystem reports whether the vector uses fine-grain system mode.
func (v *Vec[T]) IsFineGrainSystem() bool { return v.buf.mode == ModeFineGrainSystem }

// IsFineGrained reports whether host access needs no map/unmap.
func (v *Vec[T]) IsFineGrained() bool { return v.buf.mode.FineGrained() }

// HasAtomics reports whether the allocation supports device atomics.
func (v *Vec[T]) HasAtomics() bool { return v.buf.atomics }

// Ptr returns the start of the shared allocation for use as a kernel
// argument, or nil if the vector has no allocation.
func (v *Vec[T]) Ptr() unsafe.Pointer { return v.buf.ptr }

// ByteLen returns the size in bytes of the initialized elements.
func (v *Vec[T]) ByteLen() uintptr { return uintptr(v.len) * v.buf.elem.size }

// capBytes returns the size in bytes of the whole allocation.
func (v *Vec[T]) capBytes() uintptr { return uintptr(v.buf.cap) * v.buf.elem.size }

// Slice returns the elements as a slice backed by shared memory. Writes
// through the slice modify the vector. The slice is invalidated by any
// operation that grows the vector.
func (v *Vec[T]) Slice() []T {
	return v.buf.slice(v.len)
}

// All returns an iterator over index/value pairs in index order.
func (v *Vec[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i := 0; i < v.len; i++ {
			if !yield(i, *v.buf.at(i)) {
				return
			}
		}
	}
}

// Reserve ensures capacity for at least n elements. Growing to exactly
// Cap()+1 doubles the capacity; other requests allocate exactly n. The
// length is unchanged.
func (v *Vec[T]) Reserve(n int) error {
	v.checkNotDraining()
	if n <= v.buf.cap {
		return nil
	}
	return v.buf.Grow(n)
}

// SetLen sets the length without initializing or releasing elements,
// growing the allocation first if n exceeds the capacity.
//
// SetLen is an escape hatch for bulk fills (for example by a kernel or a
// device copy): slots in [old length, n) hold unspecified bytes until
// written, and elements cut off by a shorter n are not released.
func (v *Vec[T]) SetLen(n int) error {
	v.checkNotDraining()
	if n < 0 {
		fatal(ErrIndexOutOfRange, "length %d", n)
	}
	if n > v.buf.cap {
		if err := v.buf.Grow(n); err != nil {
			return err
		}
	}
	v.len = n
	return nil
}

// Push appends value. At capacity it grows by doubling, except in
// coarse-grain mode, where it panics with ErrImplicitGrowth.
func (v *Vec[T]) Push(value T) error {
	v.checkNotDraining()
	if v.len == v.buf.cap {
		if err := v.growOne("push"); err != nil {
			return err
		}
	}
	*v.buf.at(v.len) = value
	v.len++
	return nil
}

// Pop removes and returns the last element. ok is false if the vector is
// empty.
func (v *Vec[T]) Pop() (value T, ok bool) {
	v.checkNotDraining()
	if v.len == 0 {
		return value, false
	}
	v.len--
	return *v.buf.at(v.len), true
}

// Insert places value at index, shifting later elements right. index must
// be within [0, Len()]; otherwise Insert panics with ErrIndexOutOfRange.
// Growth follows the same rules as Push.
func (v *Vec[T]) Insert(index int, value T) error {
	v.checkNotDraining()
	if index < 0 || index > v.len {
		fatal(ErrIndexOutOfRange, "insert index %d with length %d", index, v.len)
	}
	if v.len == v.buf.cap {
		if err := v.growOne("insert"); err != nil {
			return err
		}
	}
	s := v.buf.slice(v.len + 1)
	copy(s[index+1:], s[index:v.len])
	s[index] = value
	v.len++
	return nil
}

// Remove removes and returns the element at index, shifting later
// elements left. index must be within [0, Len()); otherwise Remove panics
// with ErrIndexOutOfRange.
func (v *Vec[T]) Remove(index int) T {
	v.checkNotDraining()
	if index < 0 || index >= v.len {
		fatal(ErrIndexOutOfRange, "remove index %d with length %d", index, v.len)
	}
	s := v.buf.slice(v.len)
	value := s[index]
	copy(s[index:], s[index+1:])
	v.len--
	return value
}

// Clear releases every element and sets the length to 0. The capacity is
// unchanged.
func (v *Vec[T]) Clear() {
	v.Truncate(0)
}

// Truncate releases the elements in [n, Len()) and shortens the vector to
// n. It does nothing if n >= Len().
func (v *Vec[T]) Truncate(n int) {
	v.checkNotDraining()
	if n < 0 {
		fatal(ErrIndexOutOfRange, "truncate to %d", n)
	}
	if n >= v.len {
		return
	}
	old := v.len
	v.len = n
	v.releaseRange(n, old)
}

// Extend appends values in order. If they do not fit, the vector grows to
// exactly the required capacity, except in coarse-grain mode, where
// Extend panics with ErrImplicitGrowth.
func (v *Vec[T]) Extend(values ...T) error {
	v.checkNotDraining()
	need := v.len + len(values)
	if need > v.buf.cap {
		if v.buf.elem.size == 0 {
			return ErrNotConstructed
		}
		if v.buf.mode == ModeCoarseGrainBuffer {
			fatal(ErrImplicitGrowth, "extend to %d with capacity %d", need, v.buf.cap)
		}
		if err := v.buf.Grow(need); err != nil {
			return err
		}
	}
	copy(v.buf.slice(need)[v.len:], values)
	v.len = need
	return nil
}

// CopyFrom overwrites the leading elements with src and returns the number
// of elements copied, min(Len(), len(src)).
func (v *Vec[T]) CopyFrom(src []T) int {
	return copy(v.Slice(), src)
}

// Drain empties the vector and returns an iterator over its former
// elements. The vector reports length 0 as soon as Drain returns, and it
// must not be mutated until the Drain is closed. Closing the Drain
// releases the elements that were not yielded; the allocation stays with
// the vector.
func (v *Vec[T]) Drain() *Drain[T] {
	v.checkNotDraining()
	d := newDrain(v, newRawValIter(&v.buf, v.len))
	v.len = 0
	v.draining.Store(true)
	return d
}

// Draining reports whether a Drain of v is still open.
func (v *Vec[T]) Draining() bool { return v.draining.Load() }

// IntoIter moves the elements and the allocation into an iterator. The
// vector is left empty with no allocation and may be reused. Closing the
// iterator releases the elements that were not yielded and frees the
// allocation.
func (v *Vec[T]) IntoIter() *IntoIter[T] {
	v.checkNotDraining()
	rest := newRawValIter(&v.buf, v.len)
	it := newIntoIter(v.buf.take(), rest)
	v.len = 0
	return it
}

// Destroy releases every element and frees the allocation. The vector is
// left empty and may be reused. Destroy is idempotent.
func (v *Vec[T]) Destroy() {
	v.checkNotDraining()
	for v.len > 0 {
		v.len--
		v.release(v.buf.at(v.len))
	}
	v.buf.Destroy()
}

// String formats the elements like a slice.
func (v *Vec[T]) String() string {
	return fmt.Sprint(v.Slice())
}

// growOne grows the buffer by one element for Push and Insert.
func (v *Vec[T]) growOne(op string) error {
	if v.buf.elem.size == 0 {
		return ErrNotConstructed
	}
	if v.buf.mode == ModeCoarseGrainBuffer {
		fatal(ErrImplicitGrowth, "%s at capacity %d", op, v.buf.cap)
	}
	return v.buf.Grow(v.len + 1)
}

func (v *Vec[T]) releaseRange(from, to int) {
	if v.buf.elem.release == nil {
		return
	}
	for i := from; i < to; i++ {
		v.buf.elem.release(v.buf.at(i))
	}
}

func (v *Vec[T]) release(p *T) {
	if v.buf.elem.release != nil {
		v.buf.elem.release(p)
	}
}

func (v *Vec[T]) checkNotDraining() {
	if v.draining.Load() {
		panic(ErrDrainActive)
	}
}
