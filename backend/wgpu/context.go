// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/svm"
	"github.com/gogpu/svm/internal/align"
)

// Errors returned by Context.
var (
	// ErrNilProvider is returned when a nil DeviceProvider is passed.
	ErrNilProvider = errors.New("wgpu: nil DeviceProvider")

	// ErrNoHALAccess is returned when a provider does not expose HAL types.
	ErrNoHALAccess = errors.New("wgpu: provider does not expose HAL device and queue")

	// ErrLiveAllocations is returned by Close while allocations are live.
	ErrLiveAllocations = errors.New("wgpu: context has live allocations")
)

const (
	// copyAlignment is the size and offset granularity of buffer writes and
	// copies.
	copyAlignment = 4

	// DefaultWaitTimeout bounds the fence wait of a read-back.
	DefaultWaitTimeout = 5 * time.Second
)

var (
	storageUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	stagingUsage = gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
)

// allocation pairs host shadow memory with its device storage buffer.
type allocation struct {
	shadow   []byte
	base     unsafe.Pointer
	size     uintptr
	bufSize  uint64
	buffer   hal.Buffer
	maps     int
	mapFlags svm.MapFlags
}

func (a *allocation) contains(ptr unsafe.Pointer, size uintptr) bool {
	off := uintptr(ptr) - uintptr(a.base)
	return uintptr(ptr) >= uintptr(a.base) && off < a.size && size <= a.size-off
}

// bytes returns the shadow memory rounded up to the device buffer size.
func (a *allocation) bytes() []byte {
	return unsafe.Slice((*byte)(a.base), a.bufSize)
}

// Context provides coarse-grain shared virtual memory on a WebGPU device.
//
// Each shared allocation is host memory mirrored by a storage buffer of
// the same size. The mirror is synchronized at map boundaries: mapping for
// read copies the storage buffer back into host memory, and unmapping a
// mapping that allowed writes uploads host memory to the storage buffer.
// Kernels bind the storage buffer returned by Buffer.
//
// Context implements both svm.Context and svm.Queue. It is safe for
// concurrent use.
type Context struct {
	mu      sync.Mutex
	device  hal.Device
	queue   hal.Queue
	allocs  map[unsafe.Pointer]*allocation
	timeout time.Duration
	closed  bool
}

// New creates a context on an open HAL device and its queue. The caller
// keeps ownership of the device.
func New(device hal.Device, queue hal.Queue) *Context {
	return &Context{
		device:  device,
		queue:   queue,
		allocs:  make(map[unsafe.Pointer]*allocation),
		timeout: DefaultWaitTimeout,
	}
}

// NewFromProvider creates a context on the device shared by a gpucontext
// provider, such as a gogpu application. The provider must implement
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Context, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALAccess
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALAccess)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALAccess)
	}
	return New(device, queue), nil
}

// SVMCapabilities implements svm.Context. Only coarse-grain buffers are
// supported: the device cannot see host memory between synchronizations.
func (c *Context) SVMCapabilities() svm.Capabilities {
	return svm.CoarseGrainBuffer
}

// AllocateShared implements svm.Context. It creates the storage buffer and
// its host shadow. Fine-grain requests fail with svm.InvalidValue.
func (c *Context) AllocateShared(flags svm.MemFlags, size, alignment uintptr) (unsafe.Pointer, error) {
	if flags&(svm.MemSVMFineGrainBuffer|svm.MemSVMAtomics) != 0 {
		return nil, fmt.Errorf("wgpu: fine-grain allocation: %w", svm.InvalidValue)
	}
	if size == 0 || !align.IsPow2(alignment) {
		return nil, fmt.Errorf("wgpu: size %d alignment %d: %w", size, alignment, svm.InvalidValue)
	}
	bufSize := align.Up64(uint64(size), copyAlignment)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkOpen("AllocateShared")

	buffer, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "svm_shared",
		Size:  bufSize,
		Usage: storageUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create storage buffer of %d bytes: %w: %w", bufSize, err, svm.MemObjectAllocationFailure)
	}

	shadow, base := align.HeapBlock(uintptr(bufSize), max(alignment, copyAlignment))
	c.allocs[base] = &allocation{
		shadow:  shadow,
		base:    base,
		size:    size,
		bufSize: bufSize,
		buffer:  buffer,
	}

	svm.Logger().Debug("wgpu: shared allocation", "bytes", size, "buffer_bytes", bufSize)
	return base, nil
}

// FreeShared implements svm.Context. It destroys the storage buffer. It
// panics on pointers the context did not hand out or already freed.
func (c *Context) FreeShared(ptr unsafe.Pointer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkOpen("FreeShared")

	a, ok := c.allocs[ptr]
	if !ok {
		panic(fmt.Sprintf("wgpu: FreeShared(%p): not a live allocation", ptr))
	}
	if a.maps > 0 {
		svm.Logger().Warn("wgpu: freeing mapped allocation", "bytes", a.size)
	}
	delete(c.allocs, ptr)
	c.device.DestroyBuffer(a.buffer)
}

// lookupLocked returns the allocation containing [ptr, ptr+size).
func (c *Context) lookupLocked(ptr unsafe.Pointer, size uintptr) (*allocation, bool) {
	if a, ok := c.allocs[ptr]; ok {
		return a, a.contains(ptr, size)
	}
	for _, a := range c.allocs {
		if a.contains(ptr, size) {
			return a, true
		}
	}
	return nil, false
}

// Buffer returns the storage buffer backing ptr and the byte offset of ptr
// within it, for binding shared memory to compute passes.
func (c *Context) Buffer(ptr unsafe.Pointer) (buffer hal.Buffer, offset uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.lookupLocked(ptr, 0)
	if !ok {
		return nil, 0, false
	}
	return a.buffer, uint64(uintptr(ptr) - uintptr(a.base)), true
}

// IsMapped reports whether the allocation containing ptr is mapped for
// host access.
func (c *Context) IsMapped(ptr unsafe.Pointer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.lookupLocked(ptr, 0)
	return ok && a.maps > 0
}

// MapForHostAccess implements svm.Queue. Mapping with svm.MapRead reads
// the storage buffer back into host memory before returning; the work is
// synchronous, so blocking and non-blocking maps behave alike.
func (c *Context) MapForHostAccess(_ bool, flags svm.MapFlags, ptr unsafe.Pointer, size uintptr) (svm.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkOpen("map")

	a, ok := c.lookupLocked(ptr, size)
	if !ok {
		return nil, fmt.Errorf("wgpu: map %d bytes at %p: %w", size, ptr, svm.InvalidValue)
	}
	if flags.Reads() && a.maps == 0 {
		if err := c.readBackLocked(a); err != nil {
			return nil, err
		}
	}
	a.maps++
	a.mapFlags |= flags
	return event{}, nil
}

// UnmapFromHostAccess implements svm.Queue. When the last mapping of an
// allocation that allowed writes ends, host memory is uploaded to the
// storage buffer.
func (c *Context) UnmapFromHostAccess(ptr unsafe.Pointer, size uintptr) (svm.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkOpen("unmap")

	a, ok := c.lookupLocked(ptr, size)
	if !ok || a.maps == 0 {
		return nil, fmt.Errorf("wgpu: unmap %d bytes at %p: %w", size, ptr, svm.InvalidValue)
	}
	a.maps--
	if a.maps > 0 {
		return event{}, nil
	}
	if a.mapFlags.Writes() {
		c.queue.WriteBuffer(a.buffer, 0, a.bytes())
		svm.Logger().Debug("wgpu: uploaded shared memory", "bytes", a.bufSize)
	}
	a.mapFlags = 0
	return event{}, nil
}

// readBackLocked copies the storage buffer into the host shadow through a
// staging buffer.
func (c *Context) readBackLocked(a *allocation) error {
	staging, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "svm_staging",
		Size:  a.bufSize,
		Usage: stagingUsage,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	defer c.device.DestroyBuffer(staging)

	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "svm_readback_encoder"})
	if err != nil {
		return fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("svm_readback"); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(a.buffer, staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: a.bufSize},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer c.device.FreeCommandBuffer(cmdBuf)

	fence, err := c.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	defer c.device.DestroyFence(fence)
	if err := c.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	fenceOK, err := c.device.Wait(fence, 1, c.timeout)
	if err != nil {
		return fmt.Errorf("wgpu: wait for GPU: %w", err)
	}
	if !fenceOK {
		return fmt.Errorf("wgpu: read-back timed out after %v: %w", c.timeout, svm.OutOfResources)
	}

	if err := c.queue.ReadBuffer(staging, 0, a.bytes()); err != nil {
		return fmt.Errorf("wgpu: read back: %w", err)
	}
	svm.Logger().Debug("wgpu: read back shared memory", "bytes", a.bufSize)
	return nil
}

// Live returns the number of live allocations.
func (c *Context) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.allocs)
}

// Close closes the context. It fails with ErrLiveAllocations, leaving the
// context open, while allocations are live; any other use of a closed
// context panics. The HAL device is not destroyed.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.allocs); n > 0 {
		return fmt.Errorf("%w: %d", ErrLiveAllocations, n)
	}
	c.closed = true
	return nil
}

func (c *Context) checkOpen(op string) {
	if c.closed {
		panic("wgpu: " + op + " on closed context")
	}
}

// event is a completed svm.Event; Context does its work synchronously.
type event struct{}

func (event) Wait(ctx context.Context) error {
	return ctx.Err()
}
