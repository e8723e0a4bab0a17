// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend provides a registry of SVM runtimes.
//
// A runtime is opened as a [Platform]: an svm.Context for shared
// allocations plus the svm.Queue that maps them for host access. Tools
// select runtimes by name instead of depending on a concrete package.
//
// # Backend Registration
//
// Backends are registered via init() functions. The pure-Go host runtime
// registers itself on import:
//
//	import _ "github.com/gogpu/svm/host"
//
// # Backend Selection
//
//	// Open the best available backend
//	p, err := backend.Default()
//
//	// Or request a specific backend
//	p, err := backend.Open("host")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Close()
//
//	v, err := svm.ForContext[float32](p.Context(), 1024)
//
// # Available Backends
//
// - "host": anonymous-memory runtime from package host (always available)
//
// The WebGPU runtime in backend/wgpu needs an open device and is created
// directly with wgpu.New or wgpu.NewFromProvider.
package backend
