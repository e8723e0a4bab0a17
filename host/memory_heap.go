// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package host

import (
	"unsafe"

	"github.com/gogpu/svm/internal/align"
)

const fallbackPageSize = 4096

func pageSize() uintptr {
	return fallbackPageSize
}

// mapRegion allocates a page-aligned block from the Go heap on platforms
// without anonymous mappings. The block holds no pointers and never moves.
func mapRegion(size, page uintptr) ([]byte, unsafe.Pointer, error) {
	mem, base := align.HeapBlock(size, page)
	return mem, base, nil
}

func unmapRegion([]byte) error {
	return nil
}
