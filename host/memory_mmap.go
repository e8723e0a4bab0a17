// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package host

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func pageSize() uintptr {
	return uintptr(unix.Getpagesize())
}

// mapRegion returns a private anonymous read-write mapping of at least
// size bytes. Mappings start on a page boundary, which satisfies any
// alignment up to the page size.
func mapRegion(size, _ uintptr) ([]byte, unsafe.Pointer, error) {
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}
	return mem, unsafe.Pointer(unsafe.SliceData(mem)), nil
}

func unmapRegion(mem []byte) error {
	return unix.Munmap(mem)
}
