// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package host_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/svm"
	"github.com/gogpu/svm/host"
)

func TestParseConfig(t *testing.T) {
	cfg, err := host.ParseConfig([]byte(`
capabilities = ["coarse-grain-buffer", "Atomics"]
budget = "64MB"
queue_depth = 8
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"coarse-grain-buffer", "Atomics"}, cfg.Capabilities)
	assert.Equal(t, 64*datasize.MB, cfg.Budget)
	assert.Equal(t, 8, cfg.QueueDepth)

	dev, err := host.NewDevice(cfg.Options()...)
	require.NoError(t, err)
	defer func() { require.NoError(t, dev.Close()) }()
	assert.Equal(t, svm.CoarseGrainBuffer|svm.Atomics, dev.SVMCapabilities())
	assert.Equal(t, (64 * datasize.MB).Bytes(), dev.Stats().BudgetBytes)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", `colour = "red"`},
		{"unknown capability", `capabilities = ["telepathy"]`},
		{"bad budget", `budget = "lots"`},
		{"negative depth", `queue_depth = -1`},
		{"not toml", `capabilities = [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := host.ParseConfig([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestEmptyConfigKeepsDefaults(t *testing.T) {
	cfg, err := host.ParseConfig(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Options())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svm.toml")
	require.NoError(t, os.WriteFile(path, []byte("budget = \"2KB\"\n"), 0o600))

	cfg, err := host.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2*datasize.KB, cfg.Budget)

	_, err = host.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestParseCapabilities(t *testing.T) {
	caps, err := host.ParseCapabilities([]string{"fine-grain-system", " fine-grain-buffer "})
	require.NoError(t, err)
	assert.Equal(t, svm.FineGrainSystem|svm.FineGrainBuffer, caps)

	caps, err = host.ParseCapabilities(nil)
	require.NoError(t, err)
	assert.Zero(t, caps)
}
