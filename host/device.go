// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package host

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"unsafe"

	"github.com/gogpu/svm"
	"github.com/gogpu/svm/internal/align"
)

// Device errors.
var (
	// ErrLiveAllocations is returned by Close while shared allocations
	// are still live.
	ErrLiveAllocations = errors.New("host: device has live allocations")

	// ErrBudgetExceeded is wrapped by allocation failures caused by the
	// device's memory budget.
	ErrBudgetExceeded = errors.New("host: memory budget exceeded")

	// ErrNotMapped is wrapped by unmap requests for memory that is not
	// mapped.
	ErrNotMapped = errors.New("host: range not mapped")
)

// MapState is the host-access state of a shared allocation.
type MapState int

const (
	// Unmapped memory belongs to the device.
	Unmapped MapState = iota

	// Mapped memory may be accessed by the host.
	Mapped
)

// String returns the string representation of MapState.
func (s MapState) String() string {
	switch s {
	case Unmapped:
		return "Unmapped"
	case Mapped:
		return "Mapped"
	default:
		return fmt.Sprintf("MapState(%d)", int(s))
	}
}

// region is one shared allocation.
type region struct {
	mem      []byte
	base     unsafe.Pointer
	size     uintptr
	flags    svm.MemFlags
	maps     int
	mapFlags svm.MapFlags
}

func (r *region) contains(ptr unsafe.Pointer, size uintptr) bool {
	off := uintptr(ptr) - uintptr(r.base)
	return uintptr(ptr) >= uintptr(r.base) && off < r.size && size <= r.size-off
}

// Device is an in-process compute device whose shared allocations are
// anonymous memory mappings. It implements svm.Context, and its Queue
// implements svm.Queue.
//
// Device is safe for concurrent use.
type Device struct {
	mu sync.RWMutex

	caps     svm.Capabilities
	budget   uint64
	pageSize uintptr
	log      *slog.Logger

	regions map[unsafe.Pointer]*region
	used    uint64
	peak    uint64
	allocs  uint64
	frees   uint64
	failed  uint64

	queue *Queue
	// closing rejects new allocations while Close drains the queue.
	closing bool
	closed  bool
}

// NewDevice creates a device and starts its queue.
//
// Example:
//
//	dev, err := host.NewDevice(host.WithBudget(64 * datasize.MB))
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
func NewDevice(opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.caps&(svm.CoarseGrainBuffer|svm.FineGrainBuffer) == 0 {
		return nil, fmt.Errorf("host: capabilities %s have no shared buffer support", o.caps)
	}
	if o.queueDepth < 1 {
		return nil, fmt.Errorf("host: queue depth %d must be positive", o.queueDepth)
	}

	d := &Device{
		caps:     o.caps,
		budget:   o.budget.Bytes(),
		pageSize: pageSize(),
		log:      o.logger,
		regions:  make(map[unsafe.Pointer]*region),
	}
	d.queue = newQueue(d, o.queueDepth)

	d.logger().Info("host: device created",
		"capabilities", d.caps,
		"budget", o.budget.HumanReadable(),
		"queue_depth", o.queueDepth)
	return d, nil
}

// logger returns the device's logger, falling back to the svm logger.
func (d *Device) logger() *slog.Logger {
	if d.log != nil {
		return d.log
	}
	return svm.Logger()
}

// SVMCapabilities implements svm.Context.
func (d *Device) SVMCapabilities() svm.Capabilities { return d.caps }

// Queue returns the device's in-order command queue.
func (d *Device) Queue() *Queue { return d.queue }

// AllocateShared implements svm.Context. The memory is page aligned;
// alignments above the page size fail with svm.InvalidValue, and requests
// over the remaining budget fail with svm.OutOfResources.
func (d *Device) AllocateShared(flags svm.MemFlags, size, alignment uintptr) (unsafe.Pointer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkOpen("AllocateShared")

	switch {
	case d.closing:
		d.failed++
		return nil, fmt.Errorf("host: allocation on closing device: %w", svm.InvalidContext)
	case size == 0, !align.IsPow2(alignment), alignment > d.pageSize:
		d.failed++
		return nil, fmt.Errorf("host: size %d alignment %d: %w", size, alignment, svm.InvalidValue)
	case flags&svm.MemSVMFineGrainBuffer != 0 && !d.caps.Has(svm.FineGrainBuffer):
		d.failed++
		return nil, fmt.Errorf("host: fine-grain allocation on %s: %w", d.caps, svm.InvalidValue)
	case uint64(size) > d.budget-d.used:
		d.failed++
		return nil, fmt.Errorf("%w: %d bytes requested, %d of %d used: %w",
			ErrBudgetExceeded, size, d.used, d.budget, svm.OutOfResources)
	}

	mem, base, err := mapRegion(size, d.pageSize)
	if err != nil {
		d.failed++
		return nil, fmt.Errorf("host: map %d bytes: %w: %w", size, err, svm.OutOfHostMemory)
	}

	d.regions[base] = &region{mem: mem, base: base, size: size, flags: flags}
	d.used += uint64(size)
	d.peak = max(d.peak, d.used)
	d.allocs++

	d.logger().Debug("host: shared allocation",
		"bytes", size,
		"flags", uint64(flags),
		"used", d.used)
	return base, nil
}

// FreeShared implements svm.Context. It panics on pointers the device did
// not hand out or already freed.
func (d *Device) FreeShared(ptr unsafe.Pointer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkOpen("FreeShared")

	if err := d.freeLocked(ptr); err != nil {
		panic(err.Error())
	}
}

// freeLocked releases the allocation starting at ptr.
func (d *Device) freeLocked(ptr unsafe.Pointer) error {
	r, ok := d.regions[ptr]
	if !ok {
		return fmt.Errorf("host: FreeShared(%p): not a live allocation: %w", ptr, svm.InvalidValue)
	}
	if r.maps > 0 {
		d.logger().Warn("host: freeing mapped allocation", "bytes", r.size, "maps", r.maps)
	}
	delete(d.regions, ptr)
	d.used -= uint64(r.size)
	d.frees++

	if err := unmapRegion(r.mem); err != nil {
		d.logger().Warn("host: release mapping", "bytes", r.size, "err", err)
	}
	return nil
}

// checkFreeable reports an error unless every pointer starts a distinct
// live allocation.
func (d *Device) checkFreeable(ptrs []unsafe.Pointer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	d.checkOpen("free")

	for i, p := range ptrs {
		if _, ok := d.regions[p]; !ok {
			return fmt.Errorf("host: free %p: not a live allocation: %w", p, svm.InvalidValue)
		}
		if slices.Contains(ptrs[:i], p) {
			return fmt.Errorf("host: free %p twice: %w", p, svm.InvalidValue)
		}
	}
	return nil
}

// free releases allocations from a queue command. Pointers freed since
// the command was enqueued are reported instead of panicking the worker.
func (d *Device) free(ptrs []unsafe.Pointer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for _, p := range ptrs {
		if err := d.freeLocked(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// lookup returns the live region containing [ptr, ptr+size).
func (d *Device) lookup(ptr unsafe.Pointer, size uintptr) (*region, bool) {
	if r, ok := d.regions[ptr]; ok {
		return r, r.contains(ptr, size)
	}
	for _, r := range d.regions {
		if r.contains(ptr, size) {
			return r, true
		}
	}
	return nil, false
}

// mapRange marks the region containing [ptr, ptr+size) as mapped.
func (d *Device) mapRange(flags svm.MapFlags, ptr unsafe.Pointer, size uintptr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkOpen("map")

	r, ok := d.lookup(ptr, size)
	if !ok {
		return fmt.Errorf("host: map %d bytes at %p: %w", size, ptr, svm.InvalidValue)
	}
	if flags&svm.MapWriteInvalidateRegion != 0 && flags&(svm.MapRead|svm.MapWrite) != 0 {
		return fmt.Errorf("host: map flags %#x: %w", uint64(flags), svm.InvalidValue)
	}
	r.maps++
	r.mapFlags |= flags
	return nil
}

// unmapRange drops one mapping of the region containing ptr.
func (d *Device) unmapRange(ptr unsafe.Pointer, size uintptr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkOpen("unmap")

	r, ok := d.lookup(ptr, size)
	if !ok {
		return fmt.Errorf("host: unmap %d bytes at %p: %w", size, ptr, svm.InvalidValue)
	}
	if r.maps == 0 {
		return fmt.Errorf("%w: %d bytes at %p: %w", ErrNotMapped, size, ptr, svm.InvalidValue)
	}
	r.maps--
	if r.maps == 0 {
		r.mapFlags = 0
	}
	return nil
}

// bytes returns the live shared memory [ptr, ptr+size) for device-side
// commands.
func (d *Device) bytes(ptr unsafe.Pointer, size uintptr) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	d.checkOpen("access")

	if _, ok := d.lookup(ptr, size); !ok {
		return nil, fmt.Errorf("host: %d bytes at %p: %w", size, ptr, svm.InvalidValue)
	}
	if size == 0 {
		return nil, nil
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

// MapState returns the host-access state of the allocation containing
// ptr. ok is false if ptr is not inside a live allocation.
func (d *Device) MapState(ptr unsafe.Pointer) (state MapState, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.lookup(ptr, 0)
	if !ok {
		return Unmapped, false
	}
	if r.maps > 0 {
		return Mapped, true
	}
	return Unmapped, true
}

// IsMapped reports whether the allocation containing ptr is mapped for
// host access.
func (d *Device) IsMapped(ptr unsafe.Pointer) bool {
	s, ok := d.MapState(ptr)
	return ok && s == Mapped
}

// Stats returns a snapshot of the device's memory usage.
func (d *Device) Stats() MemoryStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := MemoryStats{
		BudgetBytes:    d.budget,
		UsedBytes:      d.used,
		PeakBytes:      d.peak,
		AvailableBytes: d.budget - d.used,
		Allocations:    len(d.regions),
		TotalAllocs:    d.allocs,
		TotalFrees:     d.frees,
		FailedAllocs:   d.failed,
	}
	if d.budget > 0 {
		s.Utilization = float64(d.used) / float64(d.budget)
	}
	return s
}

// Close stops the queue and closes the device. It fails with
// ErrLiveAllocations, leaving the device open, while allocations are live;
// any other use of a closed device panics. Close is idempotent.
//
// Allocations fail with svm.InvalidContext from the moment Close starts
// draining the queue.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	if d.closing {
		d.mu.Unlock()
		d.queue.Close()
		return nil
	}
	if n := len(d.regions); n > 0 {
		used := d.used
		d.mu.Unlock()
		return fmt.Errorf("%w: %d allocations, %d bytes", ErrLiveAllocations, n, used)
	}
	d.closing = true
	d.mu.Unlock()

	d.queue.Close()

	d.mu.Lock()
	if n := len(d.regions); n > 0 {
		used := d.used
		d.closing = false
		d.mu.Unlock()
		return fmt.Errorf("%w: %d allocations, %d bytes", ErrLiveAllocations, n, used)
	}
	d.closed = true
	d.mu.Unlock()

	d.logger().Info("host: device closed", "stats", d.Stats().String())
	return nil
}

func (d *Device) checkOpen(op string) {
	if d.closed {
		panic("host: " + op + " on closed device")
	}
}
