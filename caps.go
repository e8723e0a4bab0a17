// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package svm

import (
	"fmt"
	"strings"
)

// Capabilities is the shared virtual memory capability bitmask reported by
// a compute context. Bit values follow CL_DEVICE_SVM_CAPABILITIES.
type Capabilities uint64

// Capability bits.
const (
	// CoarseGrainBuffer: shared buffers that must be mapped for host access.
	CoarseGrainBuffer Capabilities = 1 << 0

	// FineGrainBuffer: shared buffers accessible without map/unmap.
	FineGrainBuffer Capabilities = 1 << 1

	// FineGrainSystem: any host heap memory is visible to the device.
	FineGrainSystem Capabilities = 1 << 2

	// Atomics: atomic operations on fine-grain shared memory.
	Atomics Capabilities = 1 << 3
)

// Has reports whether all bits of c2 are set in c.
func (c Capabilities) Has(c2 Capabilities) bool {
	return c&c2 == c2
}

// String lists the set capability bits.
func (c Capabilities) String() string {
	if c == 0 {
		return "None"
	}
	var parts []string
	names := []struct {
		bit  Capabilities
		name string
	}{
		{CoarseGrainBuffer, "CoarseGrainBuffer"},
		{FineGrainBuffer, "FineGrainBuffer"},
		{FineGrainSystem, "FineGrainSystem"},
		{Atomics, "Atomics"},
	}
	rest := c
	for _, n := range names {
		if c&n.bit != 0 {
			parts = append(parts, n.name)
			rest &^= n.bit
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint64(rest)))
	}
	return strings.Join(parts, "|")
}

// Mode is the allocation strategy a buffer uses. It is resolved once from
// the capability bitmask when the buffer is constructed.
type Mode int

const (
	// ModeCoarseGrainBuffer allocates through the context; host access must
	// be bracketed by map and unmap.
	ModeCoarseGrainBuffer Mode = iota

	// ModeFineGrainBuffer allocates through the context; host access needs
	// no map/unmap.
	ModeFineGrainBuffer

	// ModeFineGrainSystem allocates from the Go heap.
	ModeFineGrainSystem
)

// String returns the string representation of Mode.
func (m Mode) String() string {
	switch m {
	case ModeCoarseGrainBuffer:
		return "CoarseGrainBuffer"
	case ModeFineGrainBuffer:
		return "FineGrainBuffer"
	case ModeFineGrainSystem:
		return "FineGrainSystem"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// FineGrained reports whether host access needs no map/unmap.
func (m Mode) FineGrained() bool {
	return m == ModeFineGrainBuffer || m == ModeFineGrainSystem
}

// ResolveMode derives the allocation mode from a capability bitmask.
// Fine-grain system wins over fine-grain buffer, which wins over coarse
// grain. atomics is only reported for the fine-grain buffer mode.
//
// ResolveMode panics with ErrNoSharedVirtualMemory if caps has neither
// buffer bit.
func ResolveMode(caps Capabilities) (mode Mode, atomics bool) {
	if caps&(CoarseGrainBuffer|FineGrainBuffer) == 0 {
		fatal(ErrNoSharedVirtualMemory, "capabilities %s", caps)
	}
	switch {
	case caps&FineGrainSystem != 0:
		return ModeFineGrainSystem, false
	case caps&FineGrainBuffer != 0:
		return ModeFineGrainBuffer, caps&Atomics != 0
	default:
		return ModeCoarseGrainBuffer, false
	}
}

// MemFlags is the flag word passed to Context.AllocateShared. Bit values
// follow cl_svm_mem_flags.
type MemFlags uint64

// Allocation flags.
const (
	MemReadWrite          MemFlags = 1 << 0
	MemSVMFineGrainBuffer MemFlags = 1 << 10
	MemSVMAtomics         MemFlags = 1 << 11
)

// memFlags returns the allocation flags for a buffer mode.
func memFlags(mode Mode, atomics bool) MemFlags {
	flags := MemReadWrite
	if mode == ModeFineGrainBuffer {
		flags |= MemSVMFineGrainBuffer
		if atomics {
			flags |= MemSVMAtomics
		}
	}
	return flags
}

// MapFlags selects the host access requested by Queue.MapForHostAccess.
type MapFlags uint64

// Map flags.
const (
	MapRead                  MapFlags = 1 << 0
	MapWrite                 MapFlags = 1 << 1
	MapWriteInvalidateRegion MapFlags = 1 << 2
)

// Reads reports whether the mapping must make device contents visible to
// the host.
func (f MapFlags) Reads() bool {
	return f&MapRead != 0
}

// Writes reports whether the mapping allows host writes.
func (f MapFlags) Writes() bool {
	return f&(MapWrite|MapWriteInvalidateRegion) != 0
}
