// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package svmtest provides a deterministic in-memory compute context and
// queue for testing code built on svm vectors.
//
// Allocations come from the Go heap and are filled with a poison byte so
// that reads of uninitialized slots stand out. Every call is recorded and
// can be inspected after the fact.
package svmtest

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/gogpu/svm"
	"github.com/gogpu/svm/internal/align"
)

// Poison is the byte written into every fresh allocation.
const Poison byte = 0xCD

// ErrLiveAllocations is returned by Close while allocations are live.
var ErrLiveAllocations = errors.New("svmtest: context closed with live allocations")

// Allocation is one AllocateShared call as seen by the context.
type Allocation struct {
	Flags     svm.MemFlags
	Size      uintptr
	Alignment uintptr
}

// Context is a recording svm.Context. It is safe for concurrent use.
type Context struct {
	mu       sync.Mutex
	caps     svm.Capabilities
	live     map[unsafe.Pointer]allocation
	history  []Allocation
	frees    int
	failNext []error
	closed   bool
}

type allocation struct {
	Allocation
	block []byte
}

// NewContext returns a context reporting caps.
func NewContext(caps svm.Capabilities) *Context {
	return &Context{
		caps: caps,
		live: make(map[unsafe.Pointer]allocation),
	}
}

// SVMCapabilities implements svm.Context.
func (c *Context) SVMCapabilities() svm.Capabilities { return c.caps }

// AllocateShared implements svm.Context. It fails with the next error
// queued by FailNext, if any.
func (c *Context) AllocateShared(flags svm.MemFlags, size, alignment uintptr) (unsafe.Pointer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkOpen("AllocateShared")

	a := Allocation{Flags: flags, Size: size, Alignment: alignment}
	c.history = append(c.history, a)
	if len(c.failNext) > 0 {
		err := c.failNext[0]
		c.failNext = c.failNext[1:]
		return nil, err
	}
	if !align.IsPow2(alignment) {
		return nil, svm.InvalidValue
	}

	block, p := align.HeapBlock(size, alignment)
	for i := range block {
		block[i] = Poison
	}
	c.live[p] = allocation{Allocation: a, block: block}
	return p, nil
}

// FreeShared implements svm.Context. It panics on pointers it did not
// hand out or already freed.
func (c *Context) FreeShared(ptr unsafe.Pointer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkOpen("FreeShared")

	if _, ok := c.live[ptr]; !ok {
		panic(fmt.Sprintf("svmtest: FreeShared(%p): not a live allocation", ptr))
	}
	delete(c.live, ptr)
	c.frees++
}

// FailNext makes the next AllocateShared call fail with err. Calls queue
// up in order.
func (c *Context) FailNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = append(c.failNext, err)
}

// Live returns the number of allocations not yet freed.
func (c *Context) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// LiveBytes returns the total requested size of live allocations.
func (c *Context) LiveBytes() uintptr {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n uintptr
	for _, a := range c.live {
		n += a.Size
	}
	return n
}

// Frees returns the number of successful FreeShared calls.
func (c *Context) Frees() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frees
}

// Allocations returns every AllocateShared call in order, including failed
// ones.
func (c *Context) Allocations() []Allocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Allocation(nil), c.history...)
}

// Owns reports whether ptr is the start of a live allocation, and its size.
func (c *Context) Owns(ptr unsafe.Pointer) (uintptr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.live[ptr]
	return a.Size, ok
}

// Close marks the context closed. It fails with ErrLiveAllocations, and
// stays open, while allocations are live.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.live) > 0 {
		return fmt.Errorf("%w: %d", ErrLiveAllocations, len(c.live))
	}
	c.closed = true
	return nil
}

func (c *Context) checkOpen(op string) {
	if c.closed {
		panic("svmtest: " + op + " on closed context")
	}
}
