// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command svmscan runs an inclusive prefix sum over shared virtual memory
// vectors on the host runtime.
//
// The input is copied into an SVM vector, a host kernel writes the scan
// into a second vector, and the result is printed as JSON. Coarse-grain
// vectors are mapped around every host access; fine-grain vectors are
// used directly.
//
//	svmscan -input '[3,2,5,9,7,1,4,2]' -mode coarse-grain-buffer
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/gogpu/svm"
	"github.com/gogpu/svm/host"
)

func main() {
	var (
		configPath = flag.String("config", "", "TOML device configuration file")
		input      = flag.String("input", "[3,2,5,9,7,1,4,2]", "JSON array of integers to scan")
		mode       = flag.String("mode", "", "comma-separated capabilities, overrides the config (e.g. coarse-grain-buffer)")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	svm.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	out, err := run(context.Background(), *configPath, *input, *mode)
	if err != nil {
		log.Fatalf("svmscan: %v", err)
	}
	fmt.Println(string(out))
}

// run scans the JSON input and returns the JSON result.
func run(ctx context.Context, configPath, input, mode string) ([]byte, error) {
	var opts []host.Option
	if configPath != "" {
		cfg, err := host.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		opts = cfg.Options()
	}
	if mode != "" {
		caps, err := host.ParseCapabilities(strings.Split(mode, ","))
		if err != nil {
			return nil, err
		}
		opts = append(opts, host.WithCapabilities(caps))
	}

	var values []int32
	if err := json.Unmarshal([]byte(input), &values); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	dev, err := host.NewDevice(opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			svm.Logger().Warn("svmscan: close device", "error", err)
		}
	}()
	q := dev.Queue()

	out, err := scan(ctx, dev, q, values)
	svm.Logger().Debug("svmscan: done", "stats", dev.Stats().String())
	return out, err
}

// scan runs inclusiveScan on the device and encodes the results.
func scan(ctx context.Context, dev *host.Device, q *host.Queue, values []int32) ([]byte, error) {
	caps := dev.SVMCapabilities()

	in, err := svm.Allocate[int32](dev, caps, len(values))
	if err != nil {
		return nil, err
	}
	defer in.Destroy()
	svm.Logger().Info("svmscan: input allocated", "mode", in.Mode().String(), "len", in.Len())

	err = svm.WithHostAccess(ctx, q, in, svm.MapWrite, func(s []int32) error {
		copy(s, values)
		return nil
	})
	if err != nil {
		return nil, err
	}

	results, err := svm.Allocate[int32](dev, caps, len(values))
	if err != nil {
		return nil, err
	}
	defer results.Destroy()

	ev, err := q.Enqueue("inclusive_scan_int", func() error {
		inclusiveScan(results.Slice(), in.Slice())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := ev.Wait(ctx); err != nil {
		return nil, err
	}

	var out []byte
	err = svm.WithHostAccess(ctx, q, results, svm.MapRead, func([]int32) error {
		var err error
		out, err = json.Marshal(results)
		return err
	})
	return out, err
}

// inclusiveScan writes the running sums of values into output.
func inclusiveScan(output, values []int32) {
	var sum int32
	for i, x := range values {
		sum += x
		output[i] = sum
	}
}
