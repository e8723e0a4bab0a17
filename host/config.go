// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package host

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/svm"
)

// Config is the file form of the device options.
//
// Example config.toml:
//
//	capabilities = ["coarse-grain-buffer", "fine-grain-buffer", "atomics"]
//	budget = "64MB"
//	queue_depth = 32
type Config struct {
	// Capabilities lists capability names: coarse-grain-buffer,
	// fine-grain-buffer, fine-grain-system, atomics. Empty keeps
	// DefaultCapabilities.
	Capabilities []string `toml:"capabilities"`

	// Budget is the shared memory budget, such as "64MB". Zero keeps
	// DefaultBudget.
	Budget datasize.ByteSize `toml:"budget"`

	// QueueDepth is the command queue depth. Zero keeps
	// DefaultQueueDepth.
	QueueDepth int `toml:"queue_depth"`
}

var capabilityNames = map[string]svm.Capabilities{
	"coarse-grain-buffer": svm.CoarseGrainBuffer,
	"fine-grain-buffer":   svm.FineGrainBuffer,
	"fine-grain-system":   svm.FineGrainSystem,
	"atomics":             svm.Atomics,
}

// ParseCapabilities converts capability names into a bitmask. Names are
// case-insensitive.
func ParseCapabilities(names []string) (svm.Capabilities, error) {
	var caps svm.Capabilities
	for _, n := range names {
		c, ok := capabilityNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return 0, fmt.Errorf("host: unknown capability %q", n)
		}
		caps |= c
	}
	return caps, nil
}

// ParseConfig decodes a TOML configuration. Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("host: parse config: %w", err)
	}
	if _, err := ParseCapabilities(c.Capabilities); err != nil {
		return nil, err
	}
	if c.QueueDepth < 0 {
		return nil, fmt.Errorf("host: queue_depth %d is negative", c.QueueDepth)
	}
	return &c, nil
}

// LoadConfig reads and decodes a TOML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("host: read config: %w", err)
	}
	return ParseConfig(data)
}

// Options converts the configuration into device options.
func (c *Config) Options() []Option {
	var opts []Option
	if len(c.Capabilities) > 0 {
		// Validated by ParseConfig; a bad hand-built Config makes
		// NewDevice reject an empty bitmask.
		caps, _ := ParseCapabilities(c.Capabilities)
		opts = append(opts, WithCapabilities(caps))
	}
	if c.Budget > 0 {
		opts = append(opts, WithBudget(c.Budget))
	}
	if c.QueueDepth > 0 {
		opts = append(opts, WithQueueDepth(c.QueueDepth))
	}
	return opts
}
