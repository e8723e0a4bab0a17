// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package svm

import (
	"unsafe"

	"github.com/gogpu/svm/internal/align"
)

// testContext is a minimal Go-heap Context for in-package tests. The
// svmtest package cannot be used here without an import cycle.
type testContext struct {
	caps  Capabilities
	live  map[unsafe.Pointer][]byte
	flags []MemFlags
	fail  error
}

func newTestContext(caps Capabilities) *testContext {
	return &testContext{caps: caps, live: make(map[unsafe.Pointer][]byte)}
}

func (c *testContext) SVMCapabilities() Capabilities { return c.caps }

func (c *testContext) AllocateShared(flags MemFlags, size, alignment uintptr) (unsafe.Pointer, error) {
	c.flags = append(c.flags, flags)
	if c.fail != nil {
		err := c.fail
		c.fail = nil
		return nil, err
	}
	block, p := align.HeapBlock(size, alignment)
	c.live[p] = block
	return p, nil
}

func (c *testContext) FreeShared(ptr unsafe.Pointer) {
	if _, ok := c.live[ptr]; !ok {
		panic("testContext: free of unknown pointer")
	}
	delete(c.live, ptr)
}
