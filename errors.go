// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package svm

import (
	"errors"
	"fmt"
)

// Precondition errors. These are never returned: the operation that detects
// them panics with an error wrapping the sentinel, so a recovered value can
// be inspected with errors.Is.
var (
	// ErrNoSharedVirtualMemory is raised when the capability bitmask has
	// neither coarse- nor fine-grain buffer support. Use ordinary host
	// memory and device buffers on such hardware.
	ErrNoSharedVirtualMemory = errors.New("svm: device has no shared virtual memory buffer support")

	// ErrZeroSizedType is raised for element types with size 0.
	ErrZeroSizedType = errors.New("svm: zero-sized element type")

	// ErrPointerElement is raised for element types that hold Go pointers.
	// Shared memory is not scanned by the garbage collector.
	ErrPointerElement = errors.New("svm: element type holds Go pointers")

	// ErrZeroedRequiresFineGrain is raised by AllocateZeroed outside the
	// fine-grain buffer mode.
	ErrZeroedRequiresFineGrain = errors.New("svm: zeroed allocation requires fine-grain buffer mode, use Allocate")

	// ErrCapacityOverflow is raised when a requested capacity exceeds the
	// allocation size ceiling.
	ErrCapacityOverflow = errors.New("svm: capacity overflow")

	// ErrImplicitGrowth is raised when Push or Insert would reallocate a
	// coarse-grain vector. Size coarse-grain vectors up front with Reserve
	// or WithCapacity.
	ErrImplicitGrowth = errors.New("svm: implicit growth of a coarse-grain buffer")

	// ErrIndexOutOfRange is raised by Insert and Remove.
	ErrIndexOutOfRange = errors.New("svm: index out of range")

	// ErrDrainActive is raised when a vector is mutated while one of its
	// Drain iterators is still open.
	ErrDrainActive = errors.New("svm: vector mutated during drain")

	// ErrNotConstructed is returned when growing or decoding into a Vec
	// that was not created by one of the constructors, which leaves it
	// without a context.
	ErrNotConstructed = errors.New("svm: vector has no context, create it with New")
)

// ErrAllocationFailed matches every *AllocationError via errors.Is.
var ErrAllocationFailed = errors.New("svm: shared allocation failed")

// ErrorCode is a compute runtime status code. The values follow OpenCL.
type ErrorCode int32

// Runtime status codes reported by compute contexts.
const (
	Success                    ErrorCode = 0
	MemObjectAllocationFailure ErrorCode = -4
	OutOfResources             ErrorCode = -5
	OutOfHostMemory            ErrorCode = -6
	MemCopyOverlap             ErrorCode = -8
	InvalidValue               ErrorCode = -30
	InvalidContext             ErrorCode = -34
	InvalidOperation           ErrorCode = -59
)

// String returns the symbolic name of the code.
func (c ErrorCode) String() string {
	switch c {
	case Success:
		return "CL_SUCCESS"
	case MemObjectAllocationFailure:
		return "CL_MEM_OBJECT_ALLOCATION_FAILURE"
	case OutOfResources:
		return "CL_OUT_OF_RESOURCES"
	case OutOfHostMemory:
		return "CL_OUT_OF_HOST_MEMORY"
	case MemCopyOverlap:
		return "CL_MEM_COPY_OVERLAP"
	case InvalidValue:
		return "CL_INVALID_VALUE"
	case InvalidContext:
		return "CL_INVALID_CONTEXT"
	case InvalidOperation:
		return "CL_INVALID_OPERATION"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int32(c))
	}
}

// Error implements error.
func (c ErrorCode) Error() string {
	return fmt.Sprintf("compute runtime error %d (%s)", int32(c), c.String())
}

// AllocationError reports a failed shared allocation. The buffer that
// attempted the allocation is left unchanged.
type AllocationError struct {
	Mode  Mode
	Bytes uintptr
	Align uintptr
	Err   error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("svm: allocating %d bytes (align %d, %s): %v", e.Bytes, e.Align, e.Mode, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrAllocationFailed.
func (e *AllocationError) Is(target error) bool {
	return target == ErrAllocationFailed
}

// Code returns the runtime status code behind the failure, or
// MemObjectAllocationFailure when the context did not report one.
func (e *AllocationError) Code() ErrorCode {
	var code ErrorCode
	if errors.As(e.Err, &code) {
		return code
	}
	return MemObjectAllocationFailure
}

// fatal panics with err wrapped with the formatted detail.
func fatal(err error, format string, args ...any) {
	panic(fmt.Errorf("%w: "+format, append([]any{err}, args...)...))
}
