// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package svm

import (
	"context"
	"unsafe"
)

// Context is the compute context that issues shared allocations.
//
// A Context must outlive every buffer allocated from it. Implementations in
// this module check that at run time: closing a context with live
// allocations fails, and allocating or freeing through a closed context
// panics.
type Context interface {
	// SVMCapabilities returns the shared virtual memory capabilities of the
	// devices attached to the context.
	SVMCapabilities() Capabilities

	// AllocateShared requests size bytes aligned to alignment from the
	// runtime's shared address space. A failure should be reported as an
	// ErrorCode (possibly wrapped).
	AllocateShared(flags MemFlags, size, alignment uintptr) (unsafe.Pointer, error)

	// FreeShared releases a pointer returned by AllocateShared. Freeing an
	// unknown or already freed pointer is undefined.
	FreeShared(ptr unsafe.Pointer)
}

// Queue maps shared memory for host access. Vectors never call it; callers
// bracket host reads and writes of coarse-grain memory with it, usually via
// Map, Unmap or WithHostAccess.
type Queue interface {
	// MapForHostAccess maps size bytes at ptr. A blocking map returns after
	// the mapping is complete.
	MapForHostAccess(blocking bool, flags MapFlags, ptr unsafe.Pointer, size uintptr) (Event, error)

	// UnmapFromHostAccess releases a mapping made by MapForHostAccess.
	UnmapFromHostAccess(ptr unsafe.Pointer, size uintptr) (Event, error)
}

// Event is a waitable completion token for an enqueued command.
type Event interface {
	Wait(ctx context.Context) error
}
