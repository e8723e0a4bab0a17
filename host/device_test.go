// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package host_test

import (
	"bytes"
	"context"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/svm"
	"github.com/gogpu/svm/host"
)

func newDevice(t *testing.T, opts ...host.Option) *host.Device {
	t.Helper()
	dev, err := host.NewDevice(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, dev.Close())
	})
	return dev
}

func TestNewDeviceDefaults(t *testing.T) {
	dev := newDevice(t)
	assert.Equal(t, host.DefaultCapabilities, dev.SVMCapabilities())
	s := dev.Stats()
	assert.Equal(t, host.DefaultBudget.Bytes(), s.BudgetBytes)
	assert.Zero(t, s.UsedBytes)
	assert.NotNil(t, dev.Queue())
}

func TestNewDeviceRejectsBadOptions(t *testing.T) {
	_, err := host.NewDevice(host.WithCapabilities(svm.FineGrainSystem))
	assert.Error(t, err)

	_, err = host.NewDevice(host.WithQueueDepth(0))
	assert.Error(t, err)
}

func TestAllocateShared(t *testing.T) {
	dev := newDevice(t)

	p, err := dev.AllocateShared(svm.MemReadWrite, 100, 16)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Zero(t, uintptr(p)%16)

	mem := unsafe.Slice((*byte)(p), 100)
	for i := range mem {
		mem[i] = byte(i)
	}
	assert.Equal(t, byte(99), mem[99])

	s := dev.Stats()
	assert.Equal(t, uint64(100), s.UsedBytes)
	assert.Equal(t, 1, s.Allocations)

	dev.FreeShared(p)
	s = dev.Stats()
	assert.Zero(t, s.UsedBytes)
	assert.Equal(t, uint64(100), s.PeakBytes)
	assert.Equal(t, uint64(1), s.TotalFrees)

	assert.Panics(t, func() { dev.FreeShared(p) })
}

func TestAllocateSharedInvalid(t *testing.T) {
	dev := newDevice(t, host.WithCapabilities(svm.CoarseGrainBuffer))
	tests := []struct {
		name      string
		flags     svm.MemFlags
		size      uintptr
		alignment uintptr
	}{
		{"zero size", svm.MemReadWrite, 0, 8},
		{"alignment not power of two", svm.MemReadWrite, 8, 12},
		{"alignment above page", svm.MemReadWrite, 8, 1 << 30},
		{"fine grain unsupported", svm.MemReadWrite | svm.MemSVMFineGrainBuffer, 8, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dev.AllocateShared(tt.flags, tt.size, tt.alignment)
			assert.ErrorIs(t, err, svm.InvalidValue)
		})
	}
	assert.Equal(t, uint64(len(tests)), dev.Stats().FailedAllocs)
}

func TestBudget(t *testing.T) {
	dev := newDevice(t, host.WithBudget(4*datasize.KB))

	a, err := dev.AllocateShared(svm.MemReadWrite, 3000, 8)
	require.NoError(t, err)
	_, err = dev.AllocateShared(svm.MemReadWrite, 2000, 8)
	assert.ErrorIs(t, err, svm.OutOfResources)
	assert.ErrorIs(t, err, host.ErrBudgetExceeded)

	dev.FreeShared(a)
	b, err := dev.AllocateShared(svm.MemReadWrite, 2000, 8)
	require.NoError(t, err)
	dev.FreeShared(b)
}

func TestCloseWithLiveAllocations(t *testing.T) {
	dev, err := host.NewDevice()
	require.NoError(t, err)

	p, err := dev.AllocateShared(svm.MemReadWrite, 64, 8)
	require.NoError(t, err)
	assert.ErrorIs(t, dev.Close(), host.ErrLiveAllocations)

	dev.FreeShared(p)
	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close(), "Close is idempotent")

	assert.Panics(t, func() { _, _ = dev.AllocateShared(svm.MemReadWrite, 8, 8) })
}

func TestVecOnDevice(t *testing.T) {
	for _, caps := range []svm.Capabilities{svm.FineGrainBuffer | svm.Atomics, svm.CoarseGrainBuffer} {
		t.Run(caps.String(), func(t *testing.T) {
			ctx := context.Background()
			dev := newDevice(t, host.WithCapabilities(caps))

			v, err := svm.ForContext[int32](dev, 8)
			require.NoError(t, err)
			err = svm.WithHostAccess(ctx, dev.Queue(), v, svm.MapWrite, func([]int32) error {
				if !v.IsFineGrained() {
					assert.True(t, dev.IsMapped(v.Ptr()))
				}
				return v.Extend(3, 2, 5, 9, 7, 1, 4, 2)
			})
			require.NoError(t, err)
			assert.False(t, dev.IsMapped(v.Ptr()))

			err = svm.WithHostAccess(ctx, dev.Queue(), v, svm.MapRead, func(s []int32) error {
				assert.Equal(t, []int32{3, 2, 5, 9, 7, 1, 4, 2}, slices.Clone(s))
				return nil
			})
			require.NoError(t, err)

			v.Destroy()
			assert.Zero(t, dev.Stats().Allocations)
		})
	}
}

func TestVecGrowthOnDevice(t *testing.T) {
	dev := newDevice(t)
	v := svm.New[float64](dev, dev.SVMCapabilities())
	defer v.Destroy()

	for i := range 1000 {
		require.NoError(t, v.Push(float64(i)))
	}
	assert.Equal(t, 1024, v.Cap())
	assert.Equal(t, 1, dev.Stats().Allocations, "old allocations are freed on growth")
	assert.Equal(t, float64(999), v.Slice()[999])
}

func TestVecBudgetFailure(t *testing.T) {
	dev := newDevice(t, host.WithBudget(1*datasize.KB))
	v := svm.New[int64](dev, dev.SVMCapabilities())
	defer v.Destroy()

	require.NoError(t, v.Reserve(100))
	err := v.Reserve(200)
	assert.ErrorIs(t, err, svm.ErrAllocationFailed)
	assert.ErrorIs(t, err, svm.OutOfResources)
	assert.Equal(t, 100, v.Cap())
}

func TestMapState(t *testing.T) {
	dev := newDevice(t, host.WithCapabilities(svm.CoarseGrainBuffer))
	p, err := dev.AllocateShared(svm.MemReadWrite, 64, 8)
	require.NoError(t, err)
	defer dev.FreeShared(p)

	s, ok := dev.MapState(p)
	assert.True(t, ok)
	assert.Equal(t, host.Unmapped, s)
	assert.Equal(t, "Unmapped", s.String())

	inner := unsafe.Add(p, 32)
	ev, err := dev.Queue().MapForHostAccess(true, svm.MapRead, inner, 16)
	require.NoError(t, err)
	require.NoError(t, ev.Wait(context.Background()))
	assert.True(t, dev.IsMapped(p))

	_, ok = dev.MapState(unsafe.Add(p, 64))
	assert.False(t, ok, "one past the end is outside the allocation")

	ev, err = dev.Queue().UnmapFromHostAccess(inner, 16)
	require.NoError(t, err)
	require.NoError(t, ev.Wait(context.Background()))
	assert.False(t, dev.IsMapped(p))

	ev, err = dev.Queue().UnmapFromHostAccess(p, 64)
	require.NoError(t, err)
	err = ev.Wait(context.Background())
	assert.ErrorIs(t, err, host.ErrNotMapped)
	assert.ErrorIs(t, err, svm.InvalidValue)

	_, err = dev.Queue().MapForHostAccess(false, svm.MapRead, p, 65)
	assert.ErrorIs(t, err, svm.InvalidValue)
}

func TestDeviceLogger(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	dev := newDevice(t, host.WithLogger(l))

	p, err := dev.AllocateShared(svm.MemReadWrite, 32, 8)
	require.NoError(t, err)
	dev.FreeShared(p)

	assert.Contains(t, buf.String(), "host: device created")
	assert.Contains(t, buf.String(), "host: shared allocation")
}

func TestConcurrentAllocations(t *testing.T) {
	dev := newDevice(t)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				p, err := dev.AllocateShared(svm.MemReadWrite, 256, 8)
				if !assert.NoError(t, err) {
					return
				}
				dev.FreeShared(p)
			}
		}()
	}
	wg.Wait()
	s := dev.Stats()
	assert.Zero(t, s.Allocations)
	assert.Equal(t, uint64(400), s.TotalAllocs)
}

func TestMemoryStatsString(t *testing.T) {
	s := host.MemoryStats{
		BudgetBytes: 4 << 20,
		UsedBytes:   2 << 20,
		PeakBytes:   3 << 20,
		Allocations: 2,
		Utilization: 0.5,
	}
	str := s.String()
	assert.True(t, strings.HasPrefix(str, "Memory[50.0% used"), str)
	assert.Contains(t, str, "2 live")
}

func TestCloseRacesAllocation(t *testing.T) {
	for range 200 {
		dev, err := host.NewDevice()
		require.NoError(t, err)

		var (
			wg       sync.WaitGroup
			p        unsafe.Pointer
			allocErr error
			panicked bool
			start    = make(chan struct{})
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { panicked = recover() != nil }()
			<-start
			p, allocErr = dev.AllocateShared(svm.MemReadWrite, 64, 8)
		}()
		close(start)
		closeErr := dev.Close()
		wg.Wait()

		if closeErr == nil {
			require.True(t, panicked || allocErr != nil, "device closed with a live allocation")
			continue
		}
		require.ErrorIs(t, closeErr, host.ErrLiveAllocations)
		require.NoError(t, allocErr)
		dev.FreeShared(p)
		require.NoError(t, dev.Close())
	}
}

func TestAllocateWhileClosing(t *testing.T) {
	dev, err := host.NewDevice()
	require.NoError(t, err)

	started := make(chan struct{})
	var allocErr error
	_, err = dev.Queue().Enqueue("allocator", func() error {
		close(started)
		for {
			p, err := dev.AllocateShared(svm.MemReadWrite, 64, 8)
			if err != nil {
				allocErr = err
				return nil
			}
			dev.FreeShared(p)
			runtime.Gosched()
		}
	})
	require.NoError(t, err)
	<-started

	deadline := time.Now().Add(5 * time.Second)
	for dev.Close() != nil {
		require.True(t, time.Now().Before(deadline), "Close kept seeing the allocator's live allocation")
		runtime.Gosched()
	}
	assert.ErrorIs(t, allocErr, svm.InvalidContext)
	assert.Equal(t, uint64(1), dev.Stats().FailedAllocs)
}
