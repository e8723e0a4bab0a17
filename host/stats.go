// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package host

import (
	"fmt"

	"github.com/c2h5oh/datasize"
)

// MemoryStats contains shared memory usage statistics.
type MemoryStats struct {
	// BudgetBytes is the total memory budget in bytes.
	BudgetBytes uint64

	// UsedBytes is the currently allocated memory in bytes.
	UsedBytes uint64

	// PeakBytes is the highest UsedBytes seen.
	PeakBytes uint64

	// AvailableBytes is the remaining memory budget.
	AvailableBytes uint64

	// Allocations is the number of live allocations.
	Allocations int

	// TotalAllocs and TotalFrees count successful calls over the device's
	// lifetime.
	TotalAllocs uint64
	TotalFrees  uint64

	// FailedAllocs counts rejected allocation requests.
	FailedAllocs uint64

	// Utilization is the fraction of the budget in use (0.0 to 1.0).
	Utilization float64
}

// String returns a human-readable string of memory stats.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Memory[%.1f%% used, %s/%s, peak %s, %d live, %d failed]",
		s.Utilization*100,
		datasize.ByteSize(s.UsedBytes).HumanReadable(),
		datasize.ByteSize(s.BudgetBytes).HumanReadable(),
		datasize.ByteSize(s.PeakBytes).HumanReadable(),
		s.Allocations,
		s.FailedAllocs)
}
