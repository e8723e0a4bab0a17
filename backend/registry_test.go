// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/svm"
	"github.com/gogpu/svm/svmtest"
)

func testFactory(caps svm.Capabilities) Factory {
	return func() (*Platform, error) {
		cc := svmtest.NewContext(caps)
		return NewPlatform("test", cc, svmtest.NewQueue(cc), cc.Close), nil
	}
}

func TestRegistryOpen(t *testing.T) {
	Register("test-backend", testFactory(svm.CoarseGrainBuffer))
	defer Unregister("test-backend")

	p, err := Open("test-backend")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if p.Capabilities() != svm.CoarseGrainBuffer {
		t.Errorf("Capabilities() = %v", p.Capabilities())
	}
	if p.Queue() == nil {
		t.Error("Queue() returned nil")
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestRegistryOpenUnregistered(t *testing.T) {
	_, err := Open("nonexistent")
	if !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open(nonexistent) error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestRegistryOpenFailures(t *testing.T) {
	boom := errors.New("no device")
	Register("broken", func() (*Platform, error) { return nil, boom })
	Register("empty", func() (*Platform, error) { return nil, nil })
	defer Unregister("broken")
	defer Unregister("empty")

	if _, err := Open("broken"); !errors.Is(err, boom) {
		t.Errorf("Open(broken) error = %v", err)
	}
	if _, err := Open("empty"); !errors.Is(err, ErrNilPlatform) {
		t.Errorf("Open(empty) error = %v", err)
	}
}

func TestRegistryAvailable(t *testing.T) {
	Register("zz-test", testFactory(0))
	Register("aa-test", testFactory(0))
	defer Unregister("zz-test")
	defer Unregister("aa-test")

	available := Available()
	if !slices.IsSorted(available) {
		t.Errorf("Available() = %v, want sorted", available)
	}
	if !slices.Contains(available, "aa-test") || !slices.Contains(available, "zz-test") {
		t.Errorf("Available() = %v, missing test backends", available)
	}
}

func TestRegistryDefault(t *testing.T) {
	saved := backendPriority
	defer func() { backendPriority = saved }()
	backendPriority = []string{"preferred"}

	Register("fallback", testFactory(svm.CoarseGrainBuffer))
	Register("preferred", testFactory(svm.FineGrainBuffer))
	defer Unregister("fallback")
	defer Unregister("preferred")

	p, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	defer p.Close()
	if p.Capabilities() != svm.FineGrainBuffer {
		t.Errorf("Default() opened %v, want the preferred backend", p.Capabilities())
	}

	boom := errors.New("no device")
	Register("preferred", func() (*Platform, error) { return nil, boom })
	p2, err := Default()
	if err != nil {
		t.Fatalf("Default() with failing preferred backend error = %v", err)
	}
	defer p2.Close()
	if p2.Capabilities() != svm.CoarseGrainBuffer {
		t.Errorf("Default() opened %v, want the fallback", p2.Capabilities())
	}
}

func TestRegistryMustDefault(t *testing.T) {
	Register("test-backend", testFactory(0))
	defer Unregister("test-backend")

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("MustDefault() panicked: %v", r)
		}
	}()
	p := MustDefault()
	if p == nil {
		t.Fatal("MustDefault() returned nil")
	}
	_ = p.Close()
}

func TestRegistryIsRegistered(t *testing.T) {
	Register("test-backend", testFactory(0))
	if !IsRegistered("test-backend") {
		t.Error("test-backend should be registered")
	}
	Unregister("test-backend")
	if IsRegistered("test-backend") {
		t.Error("test-backend should be unregistered")
	}
}
