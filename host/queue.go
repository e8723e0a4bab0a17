// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/gogpu/svm"
	"github.com/gogpu/svm/internal/align"
)

// ErrQueueClosed is returned when enqueueing on a closed queue.
var ErrQueueClosed = errors.New("host: queue closed")

// maxFillPattern is the largest fill pattern EnqueueFill accepts.
const maxFillPattern = 128

// Event tracks the completion of one enqueued command. It implements
// svm.Event.
type Event struct {
	name string
	done chan struct{}
	err  error
}

func newEvent(name string) *Event {
	return &Event{name: name, done: make(chan struct{})}
}

func (e *Event) complete(err error) {
	e.err = err
	close(e.done)
}

// Wait blocks until the command completes or ctx is done, and returns
// the command's error or ctx.Err().
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return e.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that is closed when the command completes.
func (e *Event) Done() <-chan struct{} { return e.done }

// Err returns the command's error. It is nil until the command completes.
func (e *Event) Err() error {
	select {
	case <-e.done:
		return e.err
	default:
		return nil
	}
}

// String returns the command name.
func (e *Event) String() string { return e.name }

type command struct {
	run func() error
	ev  *Event
}

// Queue is an in-order command queue. A single worker goroutine runs
// commands in the order they were enqueued; a command starts only after
// the previous one completed. It implements svm.Queue.
//
// Queue is safe for concurrent use.
type Queue struct {
	dev  *Device
	cmds chan command
	wg   sync.WaitGroup

	// mu orders sends on cmds against Close.
	mu     sync.RWMutex
	closed bool
}

func newQueue(dev *Device, depth int) *Queue {
	q := &Queue{
		dev:  dev,
		cmds: make(chan command, depth),
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

// worker runs commands until the queue is closed and drained.
func (q *Queue) worker() {
	defer q.wg.Done()
	for c := range q.cmds {
		err := c.run()
		if err != nil {
			q.dev.logger().Debug("host: command failed", "command", c.ev.name, "err", err)
		}
		c.ev.complete(err)
	}
}

// enqueue adds a command. When blocking, it waits for the command to
// complete and returns its error.
func (q *Queue) enqueue(name string, blocking bool, run func() error) (*Event, error) {
	ev := newEvent(name)

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrQueueClosed, name)
	}
	q.cmds <- command{run: run, ev: ev}
	q.mu.RUnlock()

	if blocking {
		if err := ev.Wait(context.Background()); err != nil {
			return ev, err
		}
	}
	return ev, nil
}

// MapForHostAccess implements svm.Queue. The range must lie inside a live
// allocation of the device.
func (q *Queue) MapForHostAccess(blocking bool, flags svm.MapFlags, ptr unsafe.Pointer, size uintptr) (svm.Event, error) {
	if _, err := q.dev.bytes(ptr, size); err != nil {
		return nil, err
	}
	ev, err := q.enqueue("map", blocking, func() error {
		return q.dev.mapRange(flags, ptr, size)
	})
	if ev == nil {
		return nil, err
	}
	return ev, err
}

// UnmapFromHostAccess implements svm.Queue.
func (q *Queue) UnmapFromHostAccess(ptr unsafe.Pointer, size uintptr) (svm.Event, error) {
	if _, err := q.dev.bytes(ptr, size); err != nil {
		return nil, err
	}
	ev, err := q.enqueue("unmap", false, func() error {
		return q.dev.unmapRange(ptr, size)
	})
	if ev == nil {
		return nil, err
	}
	return ev, err
}

// EnqueueFill writes pattern repeatedly over [ptr, ptr+size). The pattern
// length must be a power of two no larger than 128 bytes, and size a
// multiple of it.
func (q *Queue) EnqueueFill(ptr unsafe.Pointer, pattern []byte, size uintptr) (*Event, error) {
	n := uintptr(len(pattern))
	if !align.IsPow2(n) || n > maxFillPattern || size%n != 0 {
		return nil, fmt.Errorf("host: fill pattern of %d bytes over %d bytes: %w", n, size, svm.InvalidValue)
	}
	if _, err := q.dev.bytes(ptr, size); err != nil {
		return nil, err
	}
	pattern = append([]byte(nil), pattern...)
	return q.enqueue("fill", false, func() error {
		dst, err := q.dev.bytes(ptr, size)
		if err != nil {
			return err
		}
		for i := 0; i < len(dst); i += len(pattern) {
			copy(dst[i:], pattern)
		}
		return nil
	})
}

// EnqueueCopy copies size bytes from src to dst. Both ranges must lie in
// live allocations and must not overlap.
func (q *Queue) EnqueueCopy(dst, src unsafe.Pointer, size uintptr) (*Event, error) {
	d, s := uintptr(dst), uintptr(src)
	if d < s+size && s < d+size {
		return nil, fmt.Errorf("host: copy %d bytes: %w", size, svm.MemCopyOverlap)
	}
	if _, err := q.dev.bytes(src, size); err != nil {
		return nil, err
	}
	if _, err := q.dev.bytes(dst, size); err != nil {
		return nil, err
	}
	return q.enqueue("copy", false, func() error {
		from, err := q.dev.bytes(src, size)
		if err != nil {
			return err
		}
		to, err := q.dev.bytes(dst, size)
		if err != nil {
			return err
		}
		copy(to, from)
		return nil
	})
}

// EnqueueFree frees the given allocations once all earlier commands have
// completed. Every pointer must start a distinct live allocation;
// otherwise EnqueueFree fails with svm.InvalidValue and enqueues nothing.
// A pointer freed by someone else before the command runs is reported
// through the event.
func (q *Queue) EnqueueFree(ptrs ...unsafe.Pointer) (*Event, error) {
	if err := q.dev.checkFreeable(ptrs); err != nil {
		return nil, err
	}
	ptrs = append([]unsafe.Pointer(nil), ptrs...)
	return q.enqueue("free", false, func() error {
		return q.dev.free(ptrs)
	})
}

// Enqueue runs fn on the queue's worker in order with the other commands.
// It is how host-side kernels are launched.
func (q *Queue) Enqueue(name string, fn func() error) (*Event, error) {
	return q.enqueue(name, false, fn)
}

// Finish waits until every command enqueued so far has completed.
func (q *Queue) Finish(ctx context.Context) error {
	ev, err := q.enqueue("marker", false, func() error { return nil })
	if err != nil {
		return err
	}
	return ev.Wait(ctx)
}

// Close stops accepting commands, runs the ones already enqueued and
// waits for the worker to exit. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.cmds)
	q.mu.Unlock()
	q.wg.Wait()
}
