package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config describes a simulated RISC-V hart variant. Every architectural
// parameter the core consults at construction time lives here; the zero
// value is not usable, start from DefaultConfig.
type Config struct {
	// Base architecture
	Arch struct {
		XLEN       uint   `toml:"xlen"`       // 32 or 64
		FLEN       uint   `toml:"flen"`       // 0, 32 or 64
		Extensions string `toml:"extensions"` // misa letters, e.g. "IMAFDCVSU"
		Zifencei   bool   `toml:"zifencei"`
		Zicond     bool   `toml:"zicond"`
		Zicbom     bool   `toml:"zicbom"`
		Zicboz     bool   `toml:"zicboz"`
		Zfhmin     bool   `toml:"zfhmin"`
		Zfinx      bool   `toml:"zfinx"`
		Svinval    bool   `toml:"svinval"`
	} `toml:"arch"`

	// Vector unit geometry; ignored unless the V extension is enabled
	Vector struct {
		VLEN           uint `toml:"vlen"` // register width in bits, power of two >= 8
		ELEN           uint `toml:"elen"` // max element width
		SLEN           uint `toml:"slen"` // striping granularity; 0 means VLEN
		SEWMin         uint `toml:"sew_min"`
		FractionalLMUL bool `toml:"fractional_lmul"`
		AgnosticOnes   bool `toml:"agnostic_ones"`   // tail/mask agnostic fills ones
		FaultOnlyFirst bool `toml:"fault_only_first"`
		PreserveVLOnX0 bool `toml:"preserve_vl_on_x0"` // vsetvli rd=x0,rs1=x0 keeps vl
	} `toml:"vector"`

	// Floating-point behaviour knobs
	FPU struct {
		FPVersion string `toml:"fp_version"` // "2.2" or "2.3" min/max semantics
		BF16      bool   `toml:"bf16"`       // carried into the variant; no instruction reads it (16-bit conversions use binary16)
	} `toml:"fpu"`

	// Memory system
	Memory struct {
		PMPEntries         uint   `toml:"pmp_entries"` // 0..64; entries 32..63 have no pmpcfg register and stay OFF
		TLBSize            int    `toml:"tlb_size"`
		ReservationGranule uint64 `toml:"reservation_granule"` // bytes, power of two
		CacheLineBytes     uint64 `toml:"cache_line_bytes"`
		UpdatePTEAD        bool   `toml:"update_pte_ad"` // hardware A/D update vs fault
		AllowUnaligned     bool   `toml:"allow_unaligned"`
	} `toml:"memory"`

	// Execution settings
	Execution struct {
		ResetVector uint64 `toml:"reset_vector"`
		DebugVector uint64 `toml:"debug_vector"`
		MaxCycles   uint64 `toml:"max_cycles"`
		WFIIsNop    bool   `toml:"wfi_is_nop"`
		Verbose     bool   `toml:"verbose"`
		EnableTrace bool   `toml:"enable_trace"`
	} `toml:"execution"`
}

// DefaultConfig returns an RV64GC-ish configuration (no V) with common defaults
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Arch.XLEN = 64
	cfg.Arch.FLEN = 64
	cfg.Arch.Extensions = "IMAFDCSU"
	cfg.Arch.Zifencei = true
	cfg.Arch.Zicond = false
	cfg.Arch.Zicbom = false
	cfg.Arch.Zicboz = false
	cfg.Arch.Zfhmin = false
	cfg.Arch.Zfinx = false
	cfg.Arch.Svinval = false

	cfg.Vector.VLEN = 128
	cfg.Vector.ELEN = 64
	cfg.Vector.SLEN = 0
	cfg.Vector.SEWMin = 8
	cfg.Vector.FractionalLMUL = true
	cfg.Vector.AgnosticOnes = true
	cfg.Vector.FaultOnlyFirst = true
	cfg.Vector.PreserveVLOnX0 = false

	cfg.FPU.FPVersion = "2.3"
	cfg.FPU.BF16 = false

	cfg.Memory.PMPEntries = 16
	cfg.Memory.TLBSize = 256
	cfg.Memory.ReservationGranule = 64
	cfg.Memory.CacheLineBytes = 64
	cfg.Memory.UpdatePTEAD = false
	cfg.Memory.AllowUnaligned = false

	cfg.Execution.ResetVector = 0x8000_0000
	cfg.Execution.DebugVector = 0x800
	cfg.Execution.MaxCycles = 0
	cfg.Execution.WFIIsNop = true
	cfg.Execution.Verbose = false
	cfg.Execution.EnableTrace = false

	return cfg
}

// HasExtension reports whether the misa letter is in the configured set
func (c *Config) HasExtension(letter byte) bool {
	for i := 0; i < len(c.Arch.Extensions); i++ {
		if c.Arch.Extensions[i] == letter {
			return true
		}
	}
	return false
}

func isPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// Validate checks the configuration for internally consistent values
func (c *Config) Validate() error {
	if c.Arch.XLEN != 32 && c.Arch.XLEN != 64 {
		return fmt.Errorf("invalid xlen %d (must be 32 or 64)", c.Arch.XLEN)
	}
	switch c.Arch.FLEN {
	case 0, 32, 64:
	default:
		return fmt.Errorf("invalid flen %d (must be 0, 32 or 64)", c.Arch.FLEN)
	}
	if c.HasExtension('D') && c.Arch.FLEN < 64 {
		return fmt.Errorf("extension D requires flen=64, have %d", c.Arch.FLEN)
	}
	if c.HasExtension('F') && c.Arch.FLEN < 32 {
		return fmt.Errorf("extension F requires flen>=32, have %d", c.Arch.FLEN)
	}
	if c.HasExtension('V') {
		if !isPowerOfTwo(uint64(c.Vector.VLEN)) || c.Vector.VLEN < 8 {
			return fmt.Errorf("invalid vlen %d (must be a power of two >= 8)", c.Vector.VLEN)
		}
		if !isPowerOfTwo(uint64(c.Vector.ELEN)) || c.Vector.ELEN < 8 || c.Vector.ELEN > 64 {
			return fmt.Errorf("invalid elen %d", c.Vector.ELEN)
		}
		if c.Vector.ELEN > c.Vector.VLEN {
			return fmt.Errorf("elen %d exceeds vlen %d", c.Vector.ELEN, c.Vector.VLEN)
		}
		if c.Vector.SLEN != 0 && (!isPowerOfTwo(uint64(c.Vector.SLEN)) || c.Vector.SLEN > c.Vector.VLEN) {
			return fmt.Errorf("invalid slen %d", c.Vector.SLEN)
		}
	}
	if c.Memory.PMPEntries > 64 {
		return fmt.Errorf("pmp_entries %d exceeds maximum of 64", c.Memory.PMPEntries)
	}
	if !isPowerOfTwo(c.Memory.ReservationGranule) {
		return fmt.Errorf("reservation_granule %d must be a power of two", c.Memory.ReservationGranule)
	}
	if !isPowerOfTwo(c.Memory.CacheLineBytes) {
		return fmt.Errorf("cache_line_bytes %d must be a power of two", c.Memory.CacheLineBytes)
	}
	if c.FPU.FPVersion != "2.2" && c.FPU.FPVersion != "2.3" {
		return fmt.Errorf("fp_version must be \"2.2\" or \"2.3\", have %q", c.FPU.FPVersion)
	}
	return nil
}

// LoadFrom loads configuration from the specified file
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// SaveTo saves configuration to the specified file
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 -- user config file path
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close config file: %w", closeErr)
		}
	}()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
