// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package svmtest

import (
	"context"
	"sync"
	"unsafe"

	"github.com/gogpu/svm"
)

// Op names a recorded queue command.
type Op string

// Recorded operations.
const (
	OpMap   Op = "map"
	OpUnmap Op = "unmap"
)

// Call is one recorded queue command.
type Call struct {
	Op       Op
	Blocking bool
	Flags    svm.MapFlags
	Ptr      unsafe.Pointer
	Size     uintptr
}

// Queue is a recording svm.Queue. Commands complete immediately. Mapping
// a range that is not inside a live allocation of the owning context, or
// unmapping a range that is not mapped, fails with svm.InvalidValue.
type Queue struct {
	mu     sync.Mutex
	cc     *Context
	calls  []Call
	mapped map[unsafe.Pointer]svm.MapFlags
}

// NewQueue returns a queue for cc.
func NewQueue(cc *Context) *Queue {
	return &Queue{cc: cc, mapped: make(map[unsafe.Pointer]svm.MapFlags)}
}

// MapForHostAccess implements svm.Queue.
func (q *Queue) MapForHostAccess(blocking bool, flags svm.MapFlags, ptr unsafe.Pointer, size uintptr) (svm.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, Call{Op: OpMap, Blocking: blocking, Flags: flags, Ptr: ptr, Size: size})

	if n, ok := q.cc.Owns(ptr); !ok || size > n {
		return nil, svm.InvalidValue
	}
	if _, ok := q.mapped[ptr]; ok {
		return nil, svm.InvalidOperation
	}
	q.mapped[ptr] = flags
	return Event{}, nil
}

// UnmapFromHostAccess implements svm.Queue.
func (q *Queue) UnmapFromHostAccess(ptr unsafe.Pointer, size uintptr) (svm.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, Call{Op: OpUnmap, Ptr: ptr, Size: size})

	if _, ok := q.mapped[ptr]; !ok {
		return nil, svm.InvalidValue
	}
	delete(q.mapped, ptr)
	return Event{}, nil
}

// IsMapped reports whether ptr is currently mapped.
func (q *Queue) IsMapped(ptr unsafe.Pointer) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.mapped[ptr]
	return ok
}

// Calls returns the recorded commands in order.
func (q *Queue) Calls() []Call {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Call(nil), q.calls...)
}

// Event is an already completed svm.Event. Wait returns Err, or the
// context error if ctx is already done.
type Event struct {
	Err error
}

// Wait implements svm.Event.
func (e Event) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.Err
}
