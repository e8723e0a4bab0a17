// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package host

import "github.com/gogpu/svm/backend"

func init() {
	backend.Register(backend.BackendHost, func() (*backend.Platform, error) {
		return Open()
	})
}

// Open creates a device and bundles it with its queue as a platform.
// Closing the platform closes the device.
func Open(opts ...Option) (*backend.Platform, error) {
	dev, err := NewDevice(opts...)
	if err != nil {
		return nil, err
	}
	return backend.NewPlatform(backend.BackendHost, dev, dev.Queue(), dev.Close), nil
}
