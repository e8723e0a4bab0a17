// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"

	"github.com/gogpu/svm"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNilPlatform is returned when a factory succeeds without a platform.
	ErrNilPlatform = errors.New("backend: factory returned nil platform")
)

// Platform is an opened SVM runtime: the context that hands out shared
// allocations and the queue that maps them for host access.
type Platform struct {
	name    string
	context svm.Context
	queue   svm.Queue
	close   func() error
}

// NewPlatform bundles a context and queue. closeFn, which may be nil, is
// called once by Close.
func NewPlatform(name string, cc svm.Context, q svm.Queue, closeFn func() error) *Platform {
	return &Platform{name: name, context: cc, queue: q, close: closeFn}
}

// Name returns the backend identifier (e.g., "host").
func (p *Platform) Name() string { return p.name }

// Context returns the allocation context.
func (p *Platform) Context() svm.Context { return p.context }

// Queue returns the command queue.
func (p *Platform) Queue() svm.Queue { return p.queue }

// Capabilities returns the SVM capabilities of the context.
func (p *Platform) Capabilities() svm.Capabilities { return p.context.SVMCapabilities() }

// Close releases the runtime. Subsequent calls return nil.
func (p *Platform) Close() error {
	if p.close == nil {
		return nil
	}
	fn := p.close
	p.close = nil
	return fn()
}
