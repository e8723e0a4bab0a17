// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu provides coarse-grain shared virtual memory on top of the
// gogpu/wgpu HAL.
//
// WebGPU has no shared address space, so a [Context] emulates one: every
// shared allocation is host memory paired with a storage buffer, and the
// two are synchronized when the memory is mapped for reading or unmapped
// after writing. This is exactly the coarse-grain contract, so svm vectors
// created on a Context work unchanged as long as host access is bracketed
// with svm.Map/svm.Unmap or svm.WithHostAccess.
//
// # Usage
//
//	cc := wgpu.New(device, queue)
//	defer cc.Close()
//
//	v, err := svm.WithCapacity[float32](cc, cc.SVMCapabilities(), n)
//	...
//	err = svm.WithHostAccess(ctx, cc, v, svm.MapWrite, fill)
//	buf, offset, _ := cc.Buffer(v.Ptr()) // bind to a compute pass
//
// With a gogpu application, share its device through
// [NewFromProvider].
package wgpu
