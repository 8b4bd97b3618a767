package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadXLEN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Arch.XLEN = 48
	if err := cfg.Validate(); err == nil {
		t.Error("xlen=48 should be rejected")
	}
}

func TestValidateRejectsDWithoutFLEN64(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Arch.FLEN = 32
	if err := cfg.Validate(); err == nil {
		t.Error("extension D with flen=32 should be rejected")
	}
}

func TestValidateVectorGeometry(t *testing.T) {
	tests := []struct {
		name string
		vlen uint
		elen uint
		ok   bool
	}{
		{"vlen128 elen64", 128, 64, true},
		{"vlen not power of two", 96, 64, false},
		{"elen above vlen", 32, 64, false},
		{"minimum vlen", 8, 8, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Arch.Extensions = "IMAFDCVSU"
			cfg.Vector.VLEN = tt.vlen
			cfg.Vector.ELEN = tt.elen
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateFPVersion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FPU.FPVersion = "2.4"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown fp_version should be rejected")
	}
}

func TestHasExtension(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.HasExtension('M') {
		t.Error("default config should include M")
	}
	if cfg.HasExtension('Q') {
		t.Error("default config should not include Q")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := DefaultConfig()
	cfg.Arch.XLEN = 32
	cfg.Arch.FLEN = 32
	cfg.Arch.Extensions = "IMAFCU"
	cfg.Vector.PreserveVLOnX0 = true
	cfg.Memory.PMPEntries = 8
	require.NoError(t, cfg.SaveTo(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, uint(32), loaded.Arch.XLEN)
	assert.Equal(t, "IMAFCU", loaded.Arch.Extensions)
	assert.True(t, loaded.Vector.PreserveVLOnX0)
	assert.Equal(t, uint(8), loaded.Memory.PMPEntries)
}

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, uint(64), cfg.Arch.XLEN)
}
