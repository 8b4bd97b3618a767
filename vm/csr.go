package vm

import (
	"fmt"
	"sort"
)

// CSRIndex is the 12-bit CSR address. The trap machine refers to CSRs by
// index only, which keeps the CSR bank free of pointer cycles.
type CSRIndex uint16

// Standard addresses used by the core
const (
	CSRfflags CSRIndex = 0x001
	CSRfrm    CSRIndex = 0x002
	CSRfcsr   CSRIndex = 0x003

	CSRvstart CSRIndex = 0x008
	CSRvxsat  CSRIndex = 0x009
	CSRvxrm   CSRIndex = 0x00A
	CSRvcsr   CSRIndex = 0x00F

	CSRsstatus    CSRIndex = 0x100
	CSRsie        CSRIndex = 0x104
	CSRstvec      CSRIndex = 0x105
	CSRscounteren CSRIndex = 0x106
	CSRsenvcfg    CSRIndex = 0x10A
	CSRsscratch   CSRIndex = 0x140
	CSRsepc       CSRIndex = 0x141
	CSRscause     CSRIndex = 0x142
	CSRstval      CSRIndex = 0x143
	CSRsip        CSRIndex = 0x144
	CSRsatp       CSRIndex = 0x180

	CSRvsstatus  CSRIndex = 0x200
	CSRvsie      CSRIndex = 0x204
	CSRvstvec    CSRIndex = 0x205
	CSRvsscratch CSRIndex = 0x240
	CSRvsepc     CSRIndex = 0x241
	CSRvscause   CSRIndex = 0x242
	CSRvstval    CSRIndex = 0x243
	CSRvsip      CSRIndex = 0x244
	CSRvsatp     CSRIndex = 0x280

	CSRmstatus    CSRIndex = 0x300
	CSRmisa       CSRIndex = 0x301
	CSRmedeleg    CSRIndex = 0x302
	CSRmideleg    CSRIndex = 0x303
	CSRmie        CSRIndex = 0x304
	CSRmtvec      CSRIndex = 0x305
	CSRmcounteren CSRIndex = 0x306
	CSRmenvcfg    CSRIndex = 0x30A
	CSRmcountinhibit CSRIndex = 0x320
	CSRmscratch   CSRIndex = 0x340
	CSRmepc       CSRIndex = 0x341
	CSRmcause    CSRIndex = 0x342
	CSRmtval     CSRIndex = 0x343
	CSRmip       CSRIndex = 0x344
	CSRmtinst    CSRIndex = 0x34A
	CSRmtval2    CSRIndex = 0x34B

	CSRpmpcfg0  CSRIndex = 0x3A0
	CSRpmpaddr0 CSRIndex = 0x3B0

	CSRhstatus    CSRIndex = 0x600
	CSRhedeleg    CSRIndex = 0x602
	CSRhideleg    CSRIndex = 0x603
	CSRhie        CSRIndex = 0x604
	CSRhcounteren CSRIndex = 0x606
	CSRhenvcfg    CSRIndex = 0x60A
	CSRhtval      CSRIndex = 0x643
	CSRhip        CSRIndex = 0x644
	CSRhvip       CSRIndex = 0x645
	CSRhtinst     CSRIndex = 0x64A
	CSRhgatp      CSRIndex = 0x680

	CSRmnscratch CSRIndex = 0x740
	CSRmnepc     CSRIndex = 0x741
	CSRmncause   CSRIndex = 0x742
	CSRmnstatus  CSRIndex = 0x744

	CSRdcsr CSRIndex = 0x7B0
	CSRdpc  CSRIndex = 0x7B1

	CSRmcycle   CSRIndex = 0xB00
	CSRminstret CSRIndex = 0xB02

	CSRcycle   CSRIndex = 0xC00
	CSRtime    CSRIndex = 0xC01
	CSRinstret CSRIndex = 0xC02
	CSRvl      CSRIndex = 0xC20
	CSRvtype   CSRIndex = 0xC21
	CSRvlenb   CSRIndex = 0xC22

	CSRmvendorid CSRIndex = 0xF11
	CSRmarchid   CSRIndex = 0xF12
	CSRmimpid    CSRIndex = 0xF13
	CSRmhartid   CSRIndex = 0xF14
)

// MinMode returns the minimum privilege encoded in address bits 9:8
func (i CSRIndex) MinMode() uint64 {
	return uint64(i >> 8 & 0x3)
}

// ReadOnly reports whether address bits 11:10 mark the CSR read-only
func (i CSRIndex) ReadOnly() bool {
	return i>>10&0x3 == 0x3
}

// CSRDef describes one register in the bank. The callbacks operate on the
// hart; Mask/MaskFn gate the architecturally writable bits; the policy
// flags feed the block translator.
type CSRDef struct {
	Addr CSRIndex
	Name string
	Arch Extension

	// Present gates existence beyond the arch bitset; nil means present
	Present func(h *Hart) bool

	// Read returns the architectural value; nil reads raw storage
	Read func(h *Hart) uint64

	// Write stores newValue (already masked) and returns the value actually
	// retained after CSR-specific clamping; nil writes raw storage
	Write func(h *Hart, v uint64) uint64

	// WriteState updates block-derived knowledge after a successful write
	WriteState func(h *Hart, bs *BlockState)

	Mask   uint64                // constant write mask; ^0 when fully writable
	MaskFn func(h *Hart) uint64 // configurable mask, overrides Mask when set

	EndBlock      bool // a write ends the translated block
	EndRM         bool // a write invalidates the known rounding mode
	NoSaveRestore bool // excluded from checkpoints
	NoTrace       bool // suppressed in instruction traces
	WriteRdBypass bool // rd receives the written value, not the old one

	// VirtualAlias redirects access to another CSR when V=1
	VirtualAlias CSRIndex

	TrapTVM    bool // trapped by mstatus.TVM / hstatus.VTVM
	StateenBit int  // Smstateen gate bit, -1 when ungated
}

// CSRBank holds the per-hart register definitions and raw storage
type CSRBank struct {
	hart *Hart
	defs map[CSRIndex]*CSRDef
	raw  map[CSRIndex]uint64
}

// NewCSRBank builds the register set appropriate for the hart's variant
func NewCSRBank(h *Hart) *CSRBank {
	b := &CSRBank{
		hart: h,
		defs: make(map[CSRIndex]*CSRDef),
		raw:  make(map[CSRIndex]uint64),
	}
	b.defineStandard()
	return b
}

// define registers a CSR; duplicate addresses are a wiring bug
func (b *CSRBank) define(d *CSRDef) {
	if _, dup := b.defs[d.Addr]; dup {
		panic(fmt.Sprintf("csr 0x%03X (%s) defined twice", uint16(d.Addr), d.Name))
	}
	if d.Mask == 0 && d.MaskFn == nil {
		d.Mask = ^uint64(0)
	}
	if d.StateenBit == 0 {
		d.StateenBit = -1
	}
	b.defs[d.Addr] = d
}

// Lookup returns the definition for an address, following virtual aliases
// when the hart is in a virtualised mode
func (b *CSRBank) Lookup(idx CSRIndex) (*CSRDef, bool) {
	d, ok := b.defs[idx]
	if !ok {
		return nil, false
	}
	if d.VirtualAlias != 0 && b.hart.Mode.Virtual() {
		if alias, aok := b.defs[d.VirtualAlias]; aok {
			return alias, true
		}
	}
	if !d.present(b.hart) {
		return nil, false
	}
	return d, true
}

func (d *CSRDef) present(h *Hart) bool {
	if d.Arch != 0 && !h.Variant.Has(d.Arch) {
		return false
	}
	if d.Present != nil && !d.Present(h) {
		return false
	}
	return true
}

// Raw reads the backing storage directly, bypassing callbacks and checks.
// The trap machine and emitters use this for registers they own.
func (b *CSRBank) Raw(idx CSRIndex) uint64 {
	return b.raw[idx]
}

// SetRaw writes the backing storage directly
func (b *CSRBank) SetRaw(idx CSRIndex, v uint64) {
	b.raw[idx] = v
}

// CheckAccess performs the architectural access check for a CSR
// instruction: presence, privilege, read-only and TVM gates. StateenBit
// is not consulted; no state-enable gate is applied.
func (b *CSRBank) CheckAccess(idx CSRIndex, write bool, raw uint32) error {
	h := b.hart
	d, ok := b.Lookup(idx)
	if !ok {
		return h.illegalOrVirtual(raw, false, fmt.Sprintf("unknown CSR 0x%03X", uint16(idx)))
	}
	required := idx.MinMode()
	if required == 2 {
		// hypervisor-class address: HS privilege; virtual modes raise
		// Virtual-Instruction instead
		if h.Mode.Virtual() {
			return VirtualInstruction(raw, fmt.Sprintf("hypervisor CSR %s from virtual mode", d.Name))
		}
		required = 1
	}
	if h.Mode.Base() < required {
		return h.illegalOrVirtual(raw, h.Mode.Virtual(),
			fmt.Sprintf("CSR %s requires privilege %d", d.Name, required))
	}
	if write && idx.ReadOnly() {
		return IllegalInstruction(raw, fmt.Sprintf("write to read-only CSR %s", d.Name))
	}
	if d.TrapTVM {
		switch {
		case h.Mode == ModeS && h.CSR.Raw(CSRmstatus)&StatusTVM != 0:
			return IllegalInstruction(raw, fmt.Sprintf("CSR %s with mstatus.TVM set", d.Name))
		case h.Mode == ModeVS && h.CSR.Raw(CSRhstatus)&HStatusVTVM != 0:
			return VirtualInstruction(raw, fmt.Sprintf("CSR %s with hstatus.VTVM set", d.Name))
		}
	}
	return nil
}

// Read performs an architectural CSR read (access already checked)
func (b *CSRBank) Read(idx CSRIndex) (uint64, error) {
	d, ok := b.Lookup(idx)
	if !ok {
		return 0, &FatalError{PC: b.hart.PC, Desc: fmt.Sprintf("read of unwired CSR 0x%03X", uint16(idx))}
	}
	if d.Read != nil {
		return d.Read(b.hart), nil
	}
	return b.raw[d.Addr], nil
}

// Write performs an architectural CSR write: the written value is
// (old &^ mask) | (new & mask), then the CSR-specific callback may clamp
// further. The retained value is returned.
func (b *CSRBank) Write(idx CSRIndex, value uint64) (uint64, error) {
	d, ok := b.Lookup(idx)
	if !ok {
		return 0, &FatalError{PC: b.hart.PC, Desc: fmt.Sprintf("write of unwired CSR 0x%03X", uint16(idx))}
	}
	mask := d.Mask
	if d.MaskFn != nil {
		mask = d.MaskFn(b.hart)
	}
	var old uint64
	if d.Read != nil {
		old = d.Read(b.hart)
	} else {
		old = b.raw[d.Addr]
	}
	merged := (old &^ mask) | (value & mask)
	var retained uint64
	if d.Write != nil {
		retained = d.Write(b.hart, merged)
	} else {
		b.raw[d.Addr] = merged
		retained = merged
	}
	return retained, nil
}

// WriteState invokes the post-write block-invalidation hook
func (b *CSRBank) WriteState(idx CSRIndex, bs *BlockState) {
	if d, ok := b.Lookup(idx); ok && d.WriteState != nil {
		d.WriteState(b.hart, bs)
	}
}

// EndsBlock reports whether a write to idx terminates the current block
func (b *CSRBank) EndsBlock(idx CSRIndex) bool {
	d, ok := b.Lookup(idx)
	return ok && d.EndBlock
}

// Indices returns all present CSR addresses in ascending order
func (b *CSRBank) Indices() []CSRIndex {
	out := make([]CSRIndex, 0, len(b.defs))
	for idx, d := range b.defs {
		if d.present(b.hart) {
			out = append(out, idx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset restores every CSR to its reset value
func (b *CSRBank) Reset() {
	for k := range b.raw {
		delete(b.raw, k)
	}
	h := b.hart
	b.raw[CSRmisa] = b.resetMisa()
	// mstatus resets with MIE=0 and the UXL/SXL fields fixed to XLEN
	var status uint64
	if h.Variant.XLEN == 64 {
		status |= 2 << StatusUXLShift
		if h.Variant.Has(ExtS) {
			status |= 2 << StatusSXLShift
		}
	}
	b.raw[CSRmstatus] = status
	b.raw[CSRmnstatus] = 0x8 // NMIE set out of reset
	b.raw[CSRvtype] = vtypeVill(h.Variant)
	b.raw[CSRmhartid] = 0
}

func (b *CSRBank) resetMisa() uint64 {
	h := b.hart
	var misa uint64
	misa = uint64(h.Variant.Extensions & misaLetterMask)
	if h.Variant.XLEN == 64 {
		misa |= 2 << 62
	} else {
		misa |= 1 << 30
	}
	return misa
}

// MisaEnabled reports whether the extensions in want are all present in
// the variant and currently enabled in misa (misa letters are runtime
// writable)
func (h *Hart) MisaEnabled(want Extension) bool {
	if !h.Variant.Has(want) {
		return false
	}
	letters := want & misaLetterMask
	if letters == 0 {
		return true
	}
	return Extension(h.CSR.Raw(CSRmisa))&letters == letters
}
