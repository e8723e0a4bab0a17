// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package svm

import (
	"errors"
	"math"
	"testing"
	"unsafe"
)

// recoverErr runs fn and returns the error it panicked with.
func recoverErr(t *testing.T, fn func()) (err error) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		e, ok := r.(error)
		if !ok {
			t.Fatalf("panic value %v (%T) is not an error", r, r)
		}
		err = e
	}()
	fn()
	return nil
}

func TestRawBufferGrowRules(t *testing.T) {
	tests := []struct {
		name    string
		start   int
		target  int
		wantCap int
	}{
		{"from empty exact", 0, 1, 1},
		{"from empty bulk", 0, 10, 10},
		{"single step doubles", 4, 5, 8},
		{"bulk exact", 4, 7, 7},
		{"shrink is noop", 8, 3, 8},
		{"same is noop", 8, 8, 8},
		{"one doubles", 1, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := newTestContext(FineGrainBuffer)
			b := NewRawBuffer[int64](cc, cc.caps)
			defer b.Destroy()
			if tt.start > 0 {
				if err := b.Grow(tt.start); err != nil {
					t.Fatalf("Grow(%d): %v", tt.start, err)
				}
			}
			if err := b.Grow(tt.target); err != nil {
				t.Fatalf("Grow(%d): %v", tt.target, err)
			}
			if b.Cap() != tt.wantCap {
				t.Errorf("Cap() = %d, want %d", b.Cap(), tt.wantCap)
			}
		})
	}
}

func TestRawBufferGrowCopiesAndFrees(t *testing.T) {
	cc := newTestContext(CoarseGrainBuffer)
	b := NewRawBuffer[uint32](cc, cc.caps)
	if err := b.Grow(4); err != nil {
		t.Fatal(err)
	}
	for i, v := range []uint32{10, 20, 30, 40} {
		*b.at(i) = v
	}
	old := b.Ptr()

	if err := b.Grow(5); err != nil {
		t.Fatal(err)
	}
	if b.Ptr() == old {
		t.Error("Grow did not move the allocation")
	}
	if _, ok := cc.live[old]; ok {
		t.Error("old allocation was not freed")
	}
	if got := b.slice(4); got[0] != 10 || got[3] != 40 {
		t.Errorf("prefix after grow = %v", got)
	}

	b.Destroy()
	b.Destroy()
	if len(cc.live) != 0 {
		t.Errorf("%d allocations live after Destroy", len(cc.live))
	}
	if b.Cap() != 0 || b.Ptr() != nil {
		t.Error("Destroy should leave an empty buffer")
	}
}

func TestRawBufferAllocationFlags(t *testing.T) {
	tests := []struct {
		caps Capabilities
		want MemFlags
	}{
		{CoarseGrainBuffer, MemReadWrite},
		{CoarseGrainBuffer | Atomics, MemReadWrite},
		{FineGrainBuffer, MemReadWrite | MemSVMFineGrainBuffer},
		{FineGrainBuffer | Atomics, MemReadWrite | MemSVMFineGrainBuffer | MemSVMAtomics},
		{CoarseGrainBuffer | FineGrainBuffer | Atomics, MemReadWrite | MemSVMFineGrainBuffer | MemSVMAtomics},
	}
	for _, tt := range tests {
		t.Run(tt.caps.String(), func(t *testing.T) {
			cc := newTestContext(tt.caps)
			b := NewRawBuffer[float32](cc, tt.caps)
			defer b.Destroy()
			if err := b.Grow(3); err != nil {
				t.Fatal(err)
			}
			if len(cc.flags) != 1 || cc.flags[0] != tt.want {
				t.Errorf("flags = %v, want [%v]", cc.flags, tt.want)
			}
		})
	}
}

func TestRawBufferFineGrainSystemUsesHeap(t *testing.T) {
	cc := newTestContext(FineGrainSystem | FineGrainBuffer)
	b := NewRawBuffer[int32](cc, cc.caps)
	if b.Mode() != ModeFineGrainSystem {
		t.Fatalf("Mode() = %v", b.Mode())
	}
	if err := b.Grow(16); err != nil {
		t.Fatal(err)
	}
	if err := b.Grow(17); err != nil {
		t.Fatal(err)
	}
	if b.Cap() != 32 {
		t.Errorf("Cap() = %d, want 32", b.Cap())
	}
	if len(cc.flags) != 0 {
		t.Errorf("fine-grain system mode called AllocateShared %d times", len(cc.flags))
	}
	b.Destroy()
	if b.heap != nil {
		t.Error("Destroy kept the heap allocation reachable")
	}
}

func TestRawBufferAllocationFailureLeavesState(t *testing.T) {
	cc := newTestContext(FineGrainBuffer)
	b := NewRawBuffer[int32](cc, cc.caps)
	defer b.Destroy()
	if err := b.Grow(2); err != nil {
		t.Fatal(err)
	}
	ptr := b.Ptr()

	cc.fail = OutOfResources
	err := b.Grow(100)
	if !errors.Is(err, ErrAllocationFailed) {
		t.Fatalf("Grow error = %v, want ErrAllocationFailed", err)
	}
	if !errors.Is(err, OutOfResources) {
		t.Errorf("Grow error %v does not wrap OutOfResources", err)
	}
	var ae *AllocationError
	if !errors.As(err, &ae) || ae.Code() != OutOfResources || ae.Bytes != 400 {
		t.Errorf("AllocationError = %+v", ae)
	}
	if b.Cap() != 2 || b.Ptr() != ptr {
		t.Errorf("failed Grow changed the buffer: cap %d", b.Cap())
	}
}

type nilContext struct{ testContext }

func (nilContext) AllocateShared(MemFlags, uintptr, uintptr) (unsafe.Pointer, error) {
	return nil, nil
}

func TestRawBufferNilPointerIsFailure(t *testing.T) {
	cc := &nilContext{}
	b := NewRawBuffer[int16](cc, CoarseGrainBuffer)
	err := b.Grow(4)
	var ae *AllocationError
	if !errors.As(err, &ae) || ae.Code() != MemObjectAllocationFailure {
		t.Errorf("Grow error = %v, want MemObjectAllocationFailure", err)
	}
}

func TestRawBufferCapacityOverflow(t *testing.T) {
	cc := newTestContext(FineGrainBuffer)
	b := NewRawBuffer[[64]byte](cc, cc.caps)
	err := recoverErr(t, func() { _ = b.Grow(math.MaxInt / 64) })
	if !errors.Is(err, ErrCapacityOverflow) {
		t.Errorf("panic = %v, want ErrCapacityOverflow", err)
	}
	if len(cc.flags) != 0 {
		t.Error("overflowing Grow reached the allocator")
	}
}

func TestRawBufferConstructionPreconditions(t *testing.T) {
	cc := newTestContext(0)
	tests := []struct {
		name string
		fn   func()
		want error
	}{
		{"no svm", func() { NewRawBuffer[int32](cc, FineGrainSystem|Atomics) }, ErrNoSharedVirtualMemory},
		{"zero sized", func() { NewRawBuffer[struct{}](cc, FineGrainBuffer) }, ErrZeroSizedType},
		{"pointer", func() { NewRawBuffer[*int](cc, FineGrainBuffer) }, ErrPointerElement},
		{"string", func() { NewRawBuffer[string](cc, FineGrainBuffer) }, ErrPointerElement},
		{"struct with slice", func() {
			NewRawBuffer[struct {
				a int
				b []int
			}](cc, FineGrainBuffer)
		}, ErrPointerElement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := recoverErr(t, tt.fn)
			if !errors.Is(err, tt.want) {
				t.Errorf("panic = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRawBufferZero(t *testing.T) {
	cc := newTestContext(FineGrainBuffer)
	b := NewRawBuffer[uint64](cc, cc.caps)
	defer b.Destroy()
	if err := b.Grow(4); err != nil {
		t.Fatal(err)
	}
	for i := range 4 {
		*b.at(i) = math.MaxUint64
	}
	b.Zero(3)
	if got := b.slice(4); got[0] != 0 || got[2] != 0 || got[3] != math.MaxUint64 {
		t.Errorf("after Zero(3) = %v", got)
	}
	err := recoverErr(t, func() { b.Zero(5) })
	if !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Zero past capacity panic = %v", err)
	}
}

func TestRawBufferTake(t *testing.T) {
	cc := newTestContext(FineGrainBuffer)
	b := NewRawBuffer[int32](cc, cc.caps)
	if err := b.Grow(8); err != nil {
		t.Fatal(err)
	}
	ptr := b.Ptr()
	moved := b.take()
	if b.Cap() != 0 || b.Ptr() != nil {
		t.Error("take left the allocation in the source")
	}
	if moved.Ptr() != ptr || moved.Cap() != 8 {
		t.Error("take lost the allocation")
	}
	b.Destroy()
	if len(cc.live) != 1 {
		t.Fatal("destroying the emptied source freed the moved allocation")
	}
	moved.Destroy()
	if len(cc.live) != 0 {
		t.Error("moved allocation not freed")
	}
}

func TestResolveMode(t *testing.T) {
	tests := []struct {
		caps    Capabilities
		mode    Mode
		atomics bool
	}{
		{CoarseGrainBuffer, ModeCoarseGrainBuffer, false},
		{CoarseGrainBuffer | Atomics, ModeCoarseGrainBuffer, false},
		{FineGrainBuffer, ModeFineGrainBuffer, false},
		{FineGrainBuffer | Atomics, ModeFineGrainBuffer, true},
		{FineGrainBuffer | FineGrainSystem | Atomics, ModeFineGrainSystem, false},
		{CoarseGrainBuffer | FineGrainSystem, ModeFineGrainSystem, false},
	}
	for _, tt := range tests {
		t.Run(tt.caps.String(), func(t *testing.T) {
			mode, atomics := ResolveMode(tt.caps)
			if mode != tt.mode || atomics != tt.atomics {
				t.Errorf("ResolveMode(%v) = %v, %v; want %v, %v", tt.caps, mode, atomics, tt.mode, tt.atomics)
			}
		})
	}
}

func TestCapabilitiesString(t *testing.T) {
	tests := []struct {
		caps Capabilities
		want string
	}{
		{0, "None"},
		{CoarseGrainBuffer, "CoarseGrainBuffer"},
		{FineGrainBuffer | Atomics, "FineGrainBuffer|Atomics"},
		{FineGrainSystem | 1<<5, "FineGrainSystem|0x20"},
	}
	for _, tt := range tests {
		if got := tt.caps.String(); got != tt.want {
			t.Errorf("Capabilities(%d).String() = %q, want %q", uint64(tt.caps), got, tt.want)
		}
	}
}

func TestErrorCodeString(t *testing.T) {
	if got := OutOfResources.String(); got != "CL_OUT_OF_RESOURCES" {
		t.Errorf("OutOfResources.String() = %q", got)
	}
	if got := ErrorCode(-999).String(); got != "ErrorCode(-999)" {
		t.Errorf("unknown code String() = %q", got)
	}
	var err error = InvalidValue
	if !errors.Is(err, InvalidValue) {
		t.Error("ErrorCode should match itself with errors.Is")
	}
}
