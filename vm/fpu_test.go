package vm_test

import (
	"math"
	"testing"

	"github.com/lookbusy1344/riscv-emulator/vm"
)

// fadds builds FADD.S rd, rs1, rs2 with the given rounding mode field
func fadds(rd, rs1, rs2, rm uint32) uint32 {
	return rs2<<20 | rs1<<15 | rm<<12 | rd<<7 | 0x53
}

func TestFADDSNaNBoxedResult(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	// fcsr.frm = RTZ
	h.CSR.SetRaw(vm.CSRfcsr, 1<<5)
	h.F[1] = 0xFFFFFFFF_3FC00000 // 1.5f32, NaN-boxed
	h.F[2] = 0xFFFFFFFF_3FC00000

	// FADD.S f0, f1, f2 with dynamic rounding
	runAt(t, machine, codeBase, fadds(0, 1, 2, 7))

	if got := h.GetF(0, 32); got != 0x40400000 {
		t.Errorf("f0 = 0x%08X, want 3.0f32", got)
	}
	if h.F[0]>>32 != 0xFFFFFFFF {
		t.Errorf("upper half = 0x%X, want all-ones NaN box", h.F[0]>>32)
	}
	if h.CSR.Raw(vm.CSRfcsr)&0x1 != 0 {
		t.Error("fflags.NX set for an exact sum")
	}
}

func TestNaNBoxViolationReadsCanonicalNaN(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart

	h.F[1] = 0x00000000_3FC00000 // not boxed
	if got := h.GetF(1, 32); got != 0x7FC00000 {
		t.Errorf("unboxed read = 0x%08X, want canonical quiet NaN", got)
	}

	h.F[2] = 0xFFFFFFFF_3FC00000
	if got := h.GetF(2, 32); got != 0x3FC00000 {
		t.Errorf("boxed read = 0x%08X, want the stored value", got)
	}
}

func TestReservedRoundingModeTraps(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.F[1] = 0xFFFFFFFF_3F800000
	h.F[2] = 0xFFFFFFFF_3F800000

	// static rm=5 is reserved
	runAt(t, machine, codeBase, fadds(0, 1, 2, 5))
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseIllegalInstruction) {
		t.Errorf("mcause = %d, want illegal instruction", got)
	}
}

func TestDynamicReservedFrmTraps(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.CSR.SetRaw(vm.CSRfcsr, 5<<5) // reserved frm
	h.F[1] = 0xFFFFFFFF_3F800000
	h.F[2] = 0xFFFFFFFF_3F800000

	runAt(t, machine, codeBase, fadds(0, 1, 2, 7))
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseIllegalInstruction) {
		t.Errorf("mcause = %d, want illegal instruction", got)
	}
}

func TestFPOpWithFSOffTraps(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.CSR.SetRaw(vm.CSRmstatus, h.CSR.Raw(vm.CSRmstatus)&^uint64(0x3<<13))

	runAt(t, machine, codeBase, fadds(0, 1, 2, 0))
	if got := h.CSR.Raw(vm.CSRmcause); got != uint64(vm.CauseIllegalInstruction) {
		t.Errorf("mcause = %d, want illegal instruction", got)
	}
}

func TestFPWriteSetsFSDirty(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.F[1] = 0xFFFFFFFF_3F800000
	h.F[2] = 0xFFFFFFFF_3F800000

	runAt(t, machine, codeBase, fadds(0, 1, 2, 0))
	fs := h.CSR.Raw(vm.CSRmstatus) >> 13 & 0x3
	if fs != 3 {
		t.Errorf("mstatus.FS = %d, want Dirty (3)", fs)
	}
	// SD summary bit must follow
	if h.CSR.Raw(vm.CSRmstatus)>>63 != 1 {
		t.Error("mstatus.SD not set with FS dirty")
	}
}

func TestDivideByZeroFlags(t *testing.T) {
	r := vm.FPUOp32(vm.OpFDIV, math.Float32bits(1.0), math.Float32bits(0.0), vm.RoundRNE)
	if r.Flags&vm.FlagDZ == 0 {
		t.Error("1/0 must raise DZ")
	}
	if uint32(r.Bits) != math.Float32bits(float32(math.Inf(1))) {
		t.Errorf("1/0 = 0x%08X, want +inf", uint32(r.Bits))
	}

	r = vm.FPUOp32(vm.OpFDIV, math.Float32bits(0.0), math.Float32bits(0.0), vm.RoundRNE)
	if r.Flags&vm.FlagNV == 0 {
		t.Error("0/0 must raise NV")
	}
}

func TestMinMaxNaNSemanticsByVersion(t *testing.T) {
	qnan := uint32(0x7FC00000)
	one := math.Float32bits(1.0)

	// 2.3: quiet NaN pairing returns the non-NaN operand
	r := vm.FPUMinMax32(qnan, one, false, true)
	if uint32(r.Bits) != one {
		t.Errorf("2.3 min(qnan, 1) = 0x%08X, want 1.0", uint32(r.Bits))
	}
	if r.Flags&vm.FlagNV != 0 {
		t.Error("quiet NaN pairing must not raise NV in 2.3")
	}

	// 2.2: any NaN produces the canonical NaN
	r = vm.FPUMinMax32(qnan, one, false, false)
	if uint32(r.Bits) != qnan {
		t.Errorf("2.2 min(qnan, 1) = 0x%08X, want canonical NaN", uint32(r.Bits))
	}

	// signalling NaN raises NV in both
	snan := uint32(0x7F800001)
	r = vm.FPUMinMax32(snan, one, false, true)
	if r.Flags&vm.FlagNV == 0 {
		t.Error("signalling NaN must raise NV")
	}
}

func TestFPUCompareNaNHandling(t *testing.T) {
	qnan := uint32(0x7FC00000)
	one := math.Float32bits(1.0)

	if v, flags := vm.FPUCompare32(vm.OpFEQ, qnan, one); v != 0 || flags&vm.FlagNV != 0 {
		t.Error("feq with quiet NaN: want 0 and no NV")
	}
	if v, flags := vm.FPUCompare32(vm.OpFLT, qnan, one); v != 0 || flags&vm.FlagNV == 0 {
		t.Error("flt with quiet NaN: want 0 and NV")
	}
}

func TestFPUClass(t *testing.T) {
	tests := []struct {
		bits uint32
		want uint64
	}{
		{math.Float32bits(1.5), 1 << 6},
		{math.Float32bits(float32(math.Inf(-1))), 1 << 0},
		{0x80000000, 1 << 3}, // -0
		{0x00000000, 1 << 4}, // +0
		{0x7FC00000, 1 << 9}, // quiet NaN
		{0x7F800001, 1 << 8}, // signalling NaN
	}
	for _, tt := range tests {
		if got := vm.FPUClass32(tt.bits); got != tt.want {
			t.Errorf("FPUClass32(0x%08X) = 0x%X, want 0x%X", tt.bits, got, tt.want)
		}
	}
}

func TestFPUToIntOverflow(t *testing.T) {
	// 1e10 overflows int32: expect max positive and NV
	big := math.Float64bits(1e10)
	v, flags := vm.FPUToInt(big, 64, 32, false, vm.RoundRTZ)
	if v != uint64(int64(math.MaxInt32)) {
		t.Errorf("overflow conversion = 0x%X, want int32 max", v)
	}
	if flags&vm.FlagNV == 0 {
		t.Error("overflow conversion must raise NV")
	}

	// NaN converts to max positive for signed targets
	v, flags = vm.FPUToInt(uint64(0x7FC00000), 32, 32, false, vm.RoundRTZ)
	if v != uint64(math.MaxInt32)>>0 || flags&vm.FlagNV == 0 {
		t.Errorf("NaN conversion = 0x%X flags=0x%X", v, flags)
	}

	// negative to unsigned clamps to zero
	v, flags = vm.FPUToInt(math.Float64bits(-5), 64, 64, true, vm.RoundRTZ)
	if v != 0 || flags&vm.FlagNV == 0 {
		t.Errorf("negative to unsigned = %d flags=0x%X, want 0 and NV", v, flags)
	}
}

func TestFPUConvertWidths(t *testing.T) {
	r := vm.FPUConvert(math.Float64bits(1.5), 64, 32, vm.RoundRNE)
	if uint32(r.Bits) != math.Float32bits(1.5) {
		t.Errorf("fcvt.s.d(1.5) = 0x%08X", uint32(r.Bits))
	}
	r = vm.FPUConvert(uint64(math.Float32bits(2.25)), 32, 64, vm.RoundRNE)
	if r.Bits != math.Float64bits(2.25) {
		t.Errorf("fcvt.d.s(2.25) = 0x%016X", r.Bits)
	}
}

func TestRecip7Estimate(t *testing.T) {
	// 1/2 = 0.5: the 7-bit estimate of an exact power of two is exact
	r := vm.FPURecip7_32(math.Float32bits(2.0), vm.RoundRNE)
	if uint32(r.Bits) != math.Float32bits(0.5) {
		t.Errorf("recip7(2.0) = 0x%08X, want 0.5", uint32(r.Bits))
	}

	// ±0 diverges
	r = vm.FPURecip7_32(0, vm.RoundRNE)
	if r.Flags&vm.FlagDZ == 0 || uint32(r.Bits) != 0x7F800000 {
		t.Errorf("recip7(+0) = 0x%08X flags=0x%X, want +inf and DZ", uint32(r.Bits), r.Flags)
	}
}

func TestRSqrt7Estimate(t *testing.T) {
	r := vm.FPURSqrt7_32(math.Float32bits(4.0))
	if uint32(r.Bits) != math.Float32bits(0.5) {
		t.Errorf("rsqrt7(4.0) = 0x%08X, want 0.5", uint32(r.Bits))
	}
	// negative input: canonical NaN + NV
	r = vm.FPURSqrt7_32(math.Float32bits(-1.0))
	if r.Flags&vm.FlagNV == 0 || uint32(r.Bits) != 0x7FC00000 {
		t.Errorf("rsqrt7(-1) = 0x%08X flags=0x%X", uint32(r.Bits), r.Flags)
	}
}

func TestHalfPrecisionRoundTrip(t *testing.T) {
	values := []uint16{
		0x3C00, // 1.0
		0xC000, // -2.0
		0x0001, // smallest subnormal
		0x7BFF, // max finite
	}
	for _, hv := range values {
		r := vm.FPUConvert(uint64(hv), 16, 32, vm.RoundRNE)
		back := vm.FPUConvert(r.Bits, 32, 16, vm.RoundRNE)
		if uint16(back.Bits) != hv {
			t.Errorf("half 0x%04X round-trip gave 0x%04X", hv, uint16(back.Bits))
		}
	}
}

func TestFMADD(t *testing.T) {
	machine := newTestVM(t, testConfig())
	h := machine.Hart
	h.F[1] = 0xFFFFFFFF_40000000 // 2.0
	h.F[2] = 0xFFFFFFFF_40400000 // 3.0
	h.F[3] = 0xFFFFFFFF_3F800000 // 1.0

	// FMADD.S f0, f1, f2, f3 -> 7.0
	word := uint32(3)<<27 | 2<<20 | 1<<15 | 0<<12 | 0<<7 | 0x43
	runAt(t, machine, codeBase, word)
	if got := h.GetF(0, 32); got != uint64(math.Float32bits(7.0)) {
		t.Errorf("fmadd = 0x%08X, want 7.0", got)
	}
}
