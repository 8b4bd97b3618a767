package vm

import (
	"fmt"

	"github.com/lookbusy1344/riscv-emulator/config"
)

// NoReservation is the reservation tag of a hart holding no LR reservation
const NoReservation = ^uint64(0)

// Variant is the resolved, immutable description of the simulated hart,
// derived from a config.Config at construction
type Variant struct {
	XLEN       uint
	FLEN       uint
	VLEN       uint
	ELEN       uint
	SLEN       uint
	SEWMin     uint
	Extensions Extension

	PMPEntries         uint
	TLBSize            int
	ReservationGranule uint64
	CacheLineBytes     uint64
	UpdatePTEAD        bool
	AllowUnaligned     bool

	FractionalLMUL bool
	AgnosticOnes   bool
	FaultOnlyFirst bool
	PreserveVLOnX0 bool

	FPVersion23 bool // 2.3 min/max NaN semantics
	BF16        bool

	ResetVector uint64
	DebugVector uint64
	WFIIsNop    bool
	Verbose     bool
}

// VariantFromConfig resolves a configuration record into a Variant
func VariantFromConfig(cfg *config.Config) (*Variant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var ext Extension
	for i := 0; i < len(cfg.Arch.Extensions); i++ {
		bit, ok := ExtensionFromLetter(cfg.Arch.Extensions[i])
		if !ok {
			return nil, fmt.Errorf("unknown extension letter %q", cfg.Arch.Extensions[i])
		}
		ext |= bit
	}
	ext |= ExtZicsr // Zicsr is implied; the core always has the CSR file
	if cfg.Arch.Zifencei {
		ext |= ExtZifencei
	}
	if cfg.Arch.Zicond {
		ext |= ExtZicond
	}
	if cfg.Arch.Zicbom {
		ext |= ExtZicbom
	}
	if cfg.Arch.Zicboz {
		ext |= ExtZicboz
	}
	if cfg.Arch.Zfhmin {
		ext |= ExtZfhmin
	}
	if cfg.Arch.Zfinx {
		ext |= ExtZfinx
	}
	if cfg.Arch.Svinval {
		ext |= ExtSvinval
	}

	slen := cfg.Vector.SLEN
	if slen == 0 {
		slen = cfg.Vector.VLEN
	}

	v := &Variant{
		XLEN:               cfg.Arch.XLEN,
		FLEN:               cfg.Arch.FLEN,
		VLEN:               cfg.Vector.VLEN,
		ELEN:               cfg.Vector.ELEN,
		SLEN:               slen,
		SEWMin:             cfg.Vector.SEWMin,
		Extensions:         ext,
		PMPEntries:         cfg.Memory.PMPEntries,
		TLBSize:            cfg.Memory.TLBSize,
		ReservationGranule: cfg.Memory.ReservationGranule,
		CacheLineBytes:     cfg.Memory.CacheLineBytes,
		UpdatePTEAD:        cfg.Memory.UpdatePTEAD,
		AllowUnaligned:     cfg.Memory.AllowUnaligned,
		FractionalLMUL:     cfg.Vector.FractionalLMUL,
		AgnosticOnes:       cfg.Vector.AgnosticOnes,
		FaultOnlyFirst:     cfg.Vector.FaultOnlyFirst,
		PreserveVLOnX0:     cfg.Vector.PreserveVLOnX0,
		FPVersion23:        cfg.FPU.FPVersion == "2.3",
		BF16:               cfg.FPU.BF16,
		ResetVector:        cfg.Execution.ResetVector,
		DebugVector:        cfg.Execution.DebugVector,
		WFIIsNop:           cfg.Execution.WFIIsNop,
		Verbose:            cfg.Execution.Verbose,
	}
	return v, nil
}

// Has reports whether the variant provides all extensions in want
func (v *Variant) Has(want Extension) bool {
	return v.Extensions.Has(want)
}

// XLenMask returns the all-ones value of XLEN width
func (v *Variant) XLenMask() uint64 {
	if v.XLEN == 32 {
		return 0xFFFF_FFFF
	}
	return ^uint64(0)
}

// Hart holds the architectural state of one RISC-V hart
type Hart struct {
	Variant *Variant

	// Integer register file; index 0 reads as zero
	X [32]uint64

	// Floating-point register file, FLEN wide, NaN-boxed for narrow values
	F [32]uint64

	// Vector register file, 32*VLEN/8 bytes, allocated lazily when the
	// V extension is configured
	V []byte

	PC   uint64
	Mode Mode

	Disable     Disable
	Reservation uint64
	AtomicCode  AtomicCode

	CSR *CSRBank
	Mem *MemorySystem
	Ext *ExtTable

	// Retired-instruction counter (gated by mcountinhibit.IR) and cycle
	// counter (never inhibited)
	Cycles    uint64
	Instret   uint64

	// Scratch register for multi-step vector ops (vcompress write pointer)
	scratch uint64
}

// NewHart constructs a hart for the given variant, wires the CSR bank and
// memory system, and performs a reset
func NewHart(v *Variant, mem *MemorySystem) *Hart {
	h := &Hart{
		Variant:     v,
		Mode:        ModeM,
		Reservation: NoReservation,
		Mem:         mem,
		Ext:         NewExtTable(),
	}
	if v.Has(ExtV) {
		h.V = make([]byte, 32*v.VLEN/8)
	}
	h.CSR = NewCSRBank(h)
	if mem != nil {
		mem.variant = v
	}
	h.Reset()
	return h
}

// Reset brings the hart to its architectural reset state
func (h *Hart) Reset() {
	for i := range h.X {
		h.X[i] = 0
	}
	for i := range h.F {
		h.F[i] = 0
	}
	for i := range h.V {
		h.V[i] = 0
	}
	h.PC = h.Variant.ResetVector
	h.Mode = ModeM
	h.Disable = 0
	h.Reservation = NoReservation
	h.AtomicCode = AtomicNone
	h.Cycles = 0
	h.Instret = 0
	h.CSR.Reset()
	if h.Mem != nil {
		h.Mem.FlushTLBs()
	}
	h.Ext.notifyReset(h)
}

// GetX reads an integer register; x0 is always zero
func (h *Hart) GetX(reg int) uint64 {
	if reg == 0 {
		return 0
	}
	return h.X[reg] & h.Variant.XLenMask()
}

// SetX writes an integer register; writes to x0 are discarded
func (h *Hart) SetX(reg int, value uint64) {
	if reg == 0 {
		return
	}
	h.X[reg] = value & h.Variant.XLenMask()
}

// GetXSigned reads an integer register sign-extended to 64 bits
func (h *Hart) GetXSigned(reg int) int64 {
	v := h.GetX(reg)
	if h.Variant.XLEN == 32 {
		return int64(int32(uint32(v)))
	}
	return int64(v)
}

// ClearReservation drops any pending LR reservation
func (h *Hart) ClearReservation() {
	h.Reservation = NoReservation
}

// ReservationCovers reports whether the hart holds a reservation whose
// granule contains addr
func (h *Hart) ReservationCovers(addr uint64) bool {
	if h.Reservation == NoReservation {
		return false
	}
	granule := h.Variant.ReservationGranule
	return addr&^(granule-1) == h.Reservation
}

// Stalled reports whether the hart is currently disabled from fetching
func (h *Hart) Stalled() bool {
	return h.Disable != 0
}

// DumpState returns a one-line summary of the hart state for diagnostics
func (h *Hart) DumpState() string {
	return fmt.Sprintf("PC=0x%016X mode=%s sp=0x%016X ra=0x%016X cycles=%d",
		h.PC, h.Mode, h.GetX(2), h.GetX(1), h.Cycles)
}
