// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package svm provides growable vectors whose storage lives in shared
// virtual memory (SVM), the address space a host and a compute device can
// both dereference.
//
// # Overview
//
// A [Vec] behaves like a Go slice with an append/insert/remove API, except
// that its backing memory is obtained from a compute [Context] instead of
// the Go heap. The same pointer ([Vec.Ptr]) can then be passed to a kernel
// without copying.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/svm"
//	    "github.com/gogpu/svm/host"
//	)
//
//	dev, err := host.NewDevice()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	v, err := svm.ForContext[float32](dev, 1024)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer v.Destroy()
//
//	err = svm.WithHostAccess(ctx, dev.Queue(), v, svm.MapWrite, func([]float32) error {
//	    return v.Extend(1, 2, 3)
//	})
//
// # Allocation modes
//
// The capability bitmask passed to a constructor selects one of three
// modes, fixed for the vector's lifetime:
//
//   - [ModeFineGrainSystem]: elements live on the Go heap; the device sees
//     all host memory.
//   - [ModeFineGrainBuffer]: elements live in a shared buffer the host may
//     touch at any time.
//   - [ModeCoarseGrainBuffer]: elements live in a shared buffer the host may
//     only touch while it is mapped (see [Map], [Unmap], [WithHostAccess]).
//     These vectors never grow implicitly; size them with [WithCapacity] or
//     [Vec.Reserve].
//
// # Element types
//
// Elements must be non-zero-sized and must not hold Go pointers, because
// shared memory is not scanned by the garbage collector. Elements that own
// outside resources may implement [Releaser].
//
// # Lifetime
//
// Go has no destructors: call [Vec.Destroy] when done with a vector and
// Close on every [Drain] and [IntoIter]. The Context must outlive all of
// its vectors.
//
// # Logging
//
// svm is silent by default. See [SetLogger].
package svm
