// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package host is a pure-Go compute runtime for svm vectors.
//
// A [Device] hands out shared allocations backed by anonymous memory
// mappings and enforces a memory budget. Its [Queue] runs commands (map,
// unmap, fill, copy, free and host-side kernels) in order on a worker
// goroutine and reports completion through [Event] values.
//
// The device reports coarse- and fine-grain buffer support by default.
// Coarse-grain map state is tracked per allocation so that tests and
// tools can check the map/unmap discipline with [Device.IsMapped].
//
// Devices are configured with functional options or from a TOML file:
//
//	cfg, err := host.LoadConfig("svm.toml")
//	if err != nil {
//	    return err
//	}
//	dev, err := host.NewDevice(cfg.Options()...)
package host
