// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package host

import (
	"log/slog"

	"github.com/c2h5oh/datasize"

	"github.com/gogpu/svm"
)

// Defaults used by NewDevice.
const (
	// DefaultCapabilities reports both buffer modes with atomics.
	DefaultCapabilities = svm.CoarseGrainBuffer | svm.FineGrainBuffer | svm.Atomics

	// DefaultBudget is the default shared memory budget (256 MB).
	DefaultBudget = 256 * datasize.MB

	// DefaultQueueDepth is the number of commands the queue buffers before
	// enqueueing blocks.
	DefaultQueueDepth = 64
)

// Option configures a Device during creation.
//
// Example:
//
//	dev, err := host.NewDevice(
//	    host.WithCapabilities(svm.CoarseGrainBuffer),
//	    host.WithBudget(16*datasize.MB),
//	)
type Option func(*deviceOptions)

type deviceOptions struct {
	caps       svm.Capabilities
	budget     datasize.ByteSize
	queueDepth int
	logger     *slog.Logger
}

func defaultOptions() deviceOptions {
	return deviceOptions{
		caps:       DefaultCapabilities,
		budget:     DefaultBudget,
		queueDepth: DefaultQueueDepth,
	}
}

// WithCapabilities sets the capability bitmask the device reports. It
// must include at least one shared buffer bit.
func WithCapabilities(caps svm.Capabilities) Option {
	return func(o *deviceOptions) {
		o.caps = caps
	}
}

// WithBudget limits the total size of live shared allocations. Zero keeps
// DefaultBudget.
func WithBudget(b datasize.ByteSize) Option {
	return func(o *deviceOptions) {
		if b > 0 {
			o.budget = b
		}
	}
}

// WithQueueDepth sets how many commands the queue buffers.
func WithQueueDepth(n int) Option {
	return func(o *deviceOptions) {
		o.queueDepth = n
	}
}

// WithLogger sets a device-specific logger. By default the device logs
// through svm.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *deviceOptions) {
		o.logger = l
	}
}
