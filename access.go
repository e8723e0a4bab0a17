// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package svm

import (
	"context"
	"errors"
	"fmt"
)

// Map maps the whole allocation of v for host access through q and waits
// for the mapping to complete. Fine-grained vectors and vectors without an
// allocation need no mapping; Map returns nil for them without calling q.
func Map[T any](ctx context.Context, q Queue, v *Vec[T], flags MapFlags) error {
	if v.IsFineGrained() || v.Cap() == 0 {
		return nil
	}
	ev, err := q.MapForHostAccess(false, flags, v.Ptr(), v.capBytes())
	if err != nil {
		return fmt.Errorf("svm: map %d bytes: %w", v.capBytes(), err)
	}
	if err := ev.Wait(ctx); err != nil {
		return fmt.Errorf("svm: wait for map: %w", err)
	}
	Logger().Debug("svm: mapped", "bytes", v.capBytes(), "flags", uint64(flags))
	return nil
}

// Unmap returns the allocation of v to the device and waits for the unmap
// to complete. Like Map it does nothing for fine-grained or unallocated
// vectors.
func Unmap[T any](ctx context.Context, q Queue, v *Vec[T]) error {
	if v.IsFineGrained() || v.Cap() == 0 {
		return nil
	}
	ev, err := q.UnmapFromHostAccess(v.Ptr(), v.capBytes())
	if err != nil {
		return fmt.Errorf("svm: unmap %d bytes: %w", v.capBytes(), err)
	}
	if err := ev.Wait(ctx); err != nil {
		return fmt.Errorf("svm: wait for unmap: %w", err)
	}
	Logger().Debug("svm: unmapped", "bytes", v.capBytes())
	return nil
}

// WithHostAccess maps v, calls fn with its elements and unmaps v again,
// even if fn fails. The errors of fn and of the unmap are joined.
//
// fn must not grow v: the mapping covers the allocation that existed when
// WithHostAccess was called.
func WithHostAccess[T any](ctx context.Context, q Queue, v *Vec[T], flags MapFlags, fn func([]T) error) error {
	if err := Map(ctx, q, v, flags); err != nil {
		return err
	}
	ptr, size := v.Ptr(), v.capBytes()
	fnErr := fn(v.Slice())
	if v.Ptr() != ptr || v.capBytes() != size {
		// The mapped allocation was replaced; unmapping v now would name
		// memory that was never mapped.
		return errors.Join(fnErr, fmt.Errorf("%w: reallocated while mapped", ErrImplicitGrowth))
	}
	return errors.Join(fnErr, Unmap(ctx, q, v))
}
