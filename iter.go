// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package svm

import (
	"iter"
	"runtime"
	"unsafe"
)

// rawValIter moves values out of a range of slots. start is the next slot
// to yield from the front, end is one past the next slot to yield from the
// back. It never frees memory.
type rawValIter[T any] struct {
	base  unsafe.Pointer
	size  uintptr
	start int
	end   int
}

func newRawValIter[T any](b *RawBuffer[T], n int) rawValIter[T] {
	return rawValIter[T]{
		base: b.ptr,
		size: b.elem.size,
		end:  n,
	}
}

func (it *rawValIter[T]) slot(i int) *T {
	return (*T)(unsafe.Add(it.base, uintptr(i)*it.size))
}

func (it *rawValIter[T]) next() (value T, ok bool) {
	if it.start == it.end {
		return value, false
	}
	value = *it.slot(it.start)
	it.start++
	return value, true
}

func (it *rawValIter[T]) nextBack() (value T, ok bool) {
	if it.start == it.end {
		return value, false
	}
	it.end--
	return *it.slot(it.end), true
}

func (it *rawValIter[T]) len() int {
	return it.end - it.start
}

// releaseRest releases every unyielded value and empties the iterator.
func (it *rawValIter[T]) releaseRest(release func(*T)) {
	if release != nil {
		for i := it.start; i < it.end; i++ {
			release(it.slot(i))
		}
	}
	it.start = it.end
}

// Drain yields the elements removed from a vector by Vec.Drain.
//
// Close must be called when done, even after the Drain is exhausted: it
// releases any elements that were not yielded and lets the vector be
// mutated again. Seq closes the Drain itself. A Drain that becomes
// unreachable without Close is closed by the garbage collector, with a
// warning through Logger.
type Drain[T any] struct {
	state   *drainState[T]
	cleanup runtime.Cleanup
}

type drainState[T any] struct {
	vec  *Vec[T]
	iter rawValIter[T]
}

func newDrain[T any](v *Vec[T], rest rawValIter[T]) *Drain[T] {
	d := &Drain[T]{state: &drainState[T]{vec: v, iter: rest}}
	d.cleanup = runtime.AddCleanup(d, func(s *drainState[T]) {
		if s.vec == nil {
			return
		}
		Logger().Warn("svm: Drain collected without Close", "remaining", s.iter.len())
		s.close()
	}, d.state)
	return d
}

// close releases the unyielded elements, then unlocks the vector.
func (s *drainState[T]) close() {
	if s.vec == nil {
		return
	}
	s.iter.releaseRest(s.vec.buf.elem.release)
	s.vec.draining.Store(false)
	s.vec = nil
}

// Next yields the next element from the front.
func (d *Drain[T]) Next() (T, bool) { return d.state.iter.next() }

// NextBack yields the next element from the back.
func (d *Drain[T]) NextBack() (T, bool) { return d.state.iter.nextBack() }

// Len returns the number of elements not yet yielded.
func (d *Drain[T]) Len() int { return d.state.iter.len() }

// Seq returns an iterator over the remaining elements front to back. The
// Drain is closed when the loop ends, including on break.
func (d *Drain[T]) Seq() iter.Seq[T] {
	return func(yield func(T) bool) {
		defer d.Close()
		for {
			v, ok := d.Next()
			if !ok || !yield(v) {
				return
			}
		}
	}
}

// Close releases the elements that were not yielded and unlocks the
// vector. Close is idempotent.
func (d *Drain[T]) Close() {
	d.cleanup.Stop()
	d.state.close()
}

// IntoIter yields the elements of a vector consumed by Vec.IntoIter and
// owns its allocation.
//
// Close must be called when done: it releases any elements that were not
// yielded and frees the allocation. Seq closes the IntoIter itself. An
// IntoIter that becomes unreachable without Close is closed by the
// garbage collector, with a warning through Logger; the context then
// sees FreeShared from the cleanup goroutine.
type IntoIter[T any] struct {
	state   *intoIterState[T]
	cleanup runtime.Cleanup
}

type intoIterState[T any] struct {
	buf    RawBuffer[T]
	iter   rawValIter[T]
	closed bool
}

func newIntoIter[T any](buf RawBuffer[T], rest rawValIter[T]) *IntoIter[T] {
	it := &IntoIter[T]{state: &intoIterState[T]{buf: buf, iter: rest}}
	it.cleanup = runtime.AddCleanup(it, func(s *intoIterState[T]) {
		if s.closed {
			return
		}
		Logger().Warn("svm: IntoIter collected without Close",
			"remaining", s.iter.len(),
			"capacity", s.buf.cap)
		s.close()
	}, it.state)
	return it
}

// close releases the unyielded elements and frees the allocation.
func (s *intoIterState[T]) close() {
	if s.closed {
		return
	}
	s.iter.releaseRest(s.buf.elem.release)
	s.buf.Destroy()
	s.closed = true
}

// Next yields the next element from the front.
func (it *IntoIter[T]) Next() (T, bool) { return it.state.iter.next() }

// NextBack yields the next element from the back.
func (it *IntoIter[T]) NextBack() (T, bool) { return it.state.iter.nextBack() }

// Len returns the number of elements not yet yielded.
func (it *IntoIter[T]) Len() int { return it.state.iter.len() }

// Seq returns an iterator over the remaining elements front to back. The
// IntoIter is closed when the loop ends, including on break.
func (it *IntoIter[T]) Seq() iter.Seq[T] {
	return func(yield func(T) bool) {
		defer it.Close()
		for {
			v, ok := it.Next()
			if !ok || !yield(v) {
				return
			}
		}
	}
}

// Close releases the elements that were not yielded and frees the
// allocation. Close is idempotent.
func (it *IntoIter[T]) Close() {
	it.cleanup.Stop()
	it.state.close()
}
