package vm

import (
	"math"
)

// Accrued exception flags, in fflags bit positions
const (
	FlagNX uint64 = 1 << 0 // inexact
	FlagUF uint64 = 1 << 1 // underflow
	FlagOF uint64 = 1 << 2 // overflow
	FlagDZ uint64 = 1 << 3 // divide by zero
	FlagNV uint64 = 1 << 4 // invalid operation
)

// Canonical quiet NaNs per format
const (
	qnan16 = 0x7E00
	qnan32 = 0x7FC00000
	qnan64 = 0x7FF8000000000000
)

// FPResult carries a raw result and the flags the operation raised
type FPResult struct {
	Bits  uint64
	Flags uint64
}

// ResolveRM resolves the instruction rounding mode against fcsr.frm.
// A reserved static encoding, or CURRENT with a reserved frm, traps
// Illegal-Instruction.
func (h *Hart) ResolveRM(rm RoundingMode, raw uint32) (RoundingMode, error) {
	if rm == RoundBad5 || rm == RoundBad6 {
		return 0, IllegalInstruction(raw, "reserved rounding mode")
	}
	if rm != RoundCurrent {
		return rm, nil
	}
	frm := RoundingMode(h.CSR.Raw(CSRfcsr) >> fcsrFrmShift & 0x7)
	if frm > RoundRMM {
		return 0, IllegalInstruction(raw, "reserved frm value")
	}
	return frm, nil
}

// AccrueFlags ORs an operation's flag accumulator into fflags and marks
// the FP context dirty
func (h *Hart) AccrueFlags(flags uint64) {
	if flags == 0 {
		return
	}
	h.CSR.SetRaw(CSRfcsr, h.CSR.Raw(CSRfcsr)|flags&fcsrFlagsMask)
	h.SetFSDirty()
}

// ---- NaN boxing ----

// boxBits NaN-boxes a k-bit value into the FLEN register image
func (h *Hart) boxBits(bits uint64, width uint16) uint64 {
	flen := uint16(h.Variant.FLEN)
	if width >= flen {
		return bits
	}
	return bits | ^uint64(0)<<width
}

// SetF writes a width-bit FP result into freg, NaN-boxing as needed
func (h *Hart) SetF(reg int, bits uint64, width uint16) {
	h.F[reg] = h.boxBits(bits&widthMask(width), width)
	h.SetFSDirty()
}

// GetF reads freg expecting a width-bit value; a non-NaN-boxed pattern
// yields the canonical quiet NaN of the requested width
func (h *Hart) GetF(reg int, width uint16) uint64 {
	v := h.F[reg]
	flen := uint16(h.Variant.FLEN)
	if width >= flen {
		return v & widthMask(width)
	}
	if v>>width != ^uint64(0)>>width {
		switch width {
		case 16:
			return qnan16
		case 32:
			return qnan32
		}
	}
	return v & widthMask(width)
}

func widthMask(width uint16) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return 1<<width - 1
}

// ---- classification helpers ----

func isNaN32(b uint32) bool  { return b&0x7F800000 == 0x7F800000 && b&0x007FFFFF != 0 }
func isSNaN32(b uint32) bool { return isNaN32(b) && b&0x00400000 == 0 }
func isNaN64(b uint64) bool {
	return b&0x7FF0000000000000 == 0x7FF0000000000000 && b&0x000FFFFFFFFFFFFF != 0
}
func isSNaN64(b uint64) bool { return isNaN64(b) && b&0x0008000000000000 == 0 }

// ---- rounding ----

// roundF64To32 rounds a float64 intermediate to float32 under rm and
// reports the flags raised. The float64 value must itself be the exact or
// correctly rounded-to-nearest result of the operation.
func roundF64To32(x float64, rm RoundingMode) (uint32, uint64) {
	var flags uint64
	if math.IsNaN(x) {
		return qnan32, 0
	}
	f := float32(x) // RNE narrowing
	switch rm {
	case RoundRTZ:
		if float64(f) > x && f > 0 || float64(f) < x && f < 0 {
			f = nextToward32(f, 0)
		}
	case RoundRDN:
		if float64(f) > x {
			f = nextToward32(f, float32(math.Inf(-1)))
		}
	case RoundRUP:
		if float64(f) < x {
			f = nextToward32(f, float32(math.Inf(1)))
		}
	}
	if float64(f) != x {
		flags |= FlagNX
	}
	bits := math.Float32bits(f)
	exp := bits >> 23 & 0xFF
	if exp == 0xFF && !math.IsInf(x, 0) {
		flags |= FlagOF | FlagNX
	}
	if exp == 0 && f != 0 && flags&FlagNX != 0 {
		flags |= FlagUF
	}
	return bits, flags
}

// nextToward32 steps one ulp toward t
func nextToward32(f, t float32) float32 {
	if f == t {
		return f
	}
	b := math.Float32bits(f)
	if f == 0 {
		b = 1
		if t < 0 {
			b |= 0x80000000
		}
		return math.Float32frombits(b)
	}
	if (f < t) == (f > 0) {
		b++
	} else {
		b--
	}
	return math.Float32frombits(b)
}

// adjustF64 nudges a host round-to-nearest float64 result toward the
// requested direction when the operation was inexact. residual supplies
// the sign of the rounding error when known; 0 means unknown/exact.
func adjustF64(r float64, rm RoundingMode, residual int) float64 {
	if residual == 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return r
	}
	switch rm {
	case RoundRTZ:
		if (r > 0) == (residual > 0) {
			return r
		}
		return stepF64(r, r < 0)
	case RoundRDN:
		if residual < 0 {
			return stepF64(r, false)
		}
	case RoundRUP:
		if residual > 0 {
			return stepF64(r, true)
		}
	}
	return r
}

func stepF64(f float64, up bool) float64 {
	b := math.Float64bits(f)
	if f == 0 {
		if up {
			return math.Float64frombits(1)
		}
		return math.Float64frombits(1 | 1<<63)
	}
	if (f > 0) == up {
		b++
	} else {
		b--
	}
	return math.Float64frombits(b)
}

// ---- 32-bit operations ----

// FPUOp32 evaluates a two-operand single-precision operation via an exact
// float64 intermediate
func FPUOp32(op Operation, a, b uint32, rm RoundingMode) FPResult {
	var flags uint64
	if isSNaN32(a) || isSNaN32(b) {
		flags |= FlagNV
	}
	fa, fb := float64(math.Float32frombits(a)), float64(math.Float32frombits(b))

	var x float64
	switch op {
	case OpFADD:
		x = fa + fb
		if math.IsInf(fa, 0) && math.IsInf(fb, 0) && fa != fb {
			flags |= FlagNV
			return FPResult{uint64(qnan32), flags}
		}
	case OpFSUB:
		x = fa - fb
		if math.IsInf(fa, 0) && math.IsInf(fb, 0) && fa == fb {
			flags |= FlagNV
			return FPResult{uint64(qnan32), flags}
		}
	case OpFMUL:
		x = fa * fb
		if (fa == 0 && math.IsInf(fb, 0)) || (fb == 0 && math.IsInf(fa, 0)) {
			flags |= FlagNV
			return FPResult{uint64(qnan32), flags}
		}
	case OpFDIV:
		if fb == 0 && !math.IsNaN(fa) {
			if fa == 0 {
				return FPResult{uint64(qnan32), flags | FlagNV}
			}
			flags |= FlagDZ
		}
		if math.IsInf(fa, 0) && math.IsInf(fb, 0) {
			flags |= FlagNV
			return FPResult{uint64(qnan32), flags}
		}
		x = fa / fb
	}
	if math.IsNaN(x) {
		return FPResult{uint64(qnan32), flags}
	}
	bits, f := roundF64To32(x, rm)
	return FPResult{uint64(bits), flags | f}
}

// FPUSqrt32 computes single-precision square root
func FPUSqrt32(a uint32, rm RoundingMode) FPResult {
	var flags uint64
	if isSNaN32(a) {
		flags |= FlagNV
	}
	fa := float64(math.Float32frombits(a))
	if fa < 0 {
		return FPResult{uint64(qnan32), flags | FlagNV}
	}
	x := math.Sqrt(fa)
	if math.IsNaN(x) {
		return FPResult{uint64(qnan32), flags}
	}
	bits, f := roundF64To32(x, rm)
	return FPResult{uint64(bits), flags | f}
}

// FPUFMA32 computes a*b+c with a single rounding
func FPUFMA32(a, b, c uint32, negProduct, negAddend bool, rm RoundingMode) FPResult {
	var flags uint64
	if isSNaN32(a) || isSNaN32(b) || isSNaN32(c) {
		flags |= FlagNV
	}
	fa := float64(math.Float32frombits(a))
	fb := float64(math.Float32frombits(b))
	fc := float64(math.Float32frombits(c))
	if negProduct {
		fa = -fa
	}
	if negAddend {
		fc = -fc
	}
	if (fa == 0 && math.IsInf(fb, 0)) || (fb == 0 && math.IsInf(fa, 0)) {
		return FPResult{uint64(qnan32), flags | FlagNV}
	}
	x := math.FMA(fa, fb, fc)
	if math.IsNaN(x) {
		if !math.IsNaN(float64(math.Float32frombits(a))) &&
			!math.IsNaN(float64(math.Float32frombits(b))) &&
			!math.IsNaN(fc) {
			flags |= FlagNV
		}
		return FPResult{uint64(qnan32), flags}
	}
	bits, f := roundF64To32(x, rm)
	return FPResult{uint64(bits), flags | f}
}

// ---- 64-bit operations ----

// FPUOp64 evaluates a two-operand double-precision operation. Directed
// rounding uses the host round-to-nearest result; the residual direction
// is recovered where cheaply possible.
func FPUOp64(op Operation, a, b uint64, rm RoundingMode) FPResult {
	var flags uint64
	if isSNaN64(a) || isSNaN64(b) {
		flags |= FlagNV
	}
	fa, fb := math.Float64frombits(a), math.Float64frombits(b)

	var x float64
	switch op {
	case OpFADD:
		if math.IsInf(fa, 0) && math.IsInf(fb, 0) && fa != fb {
			return FPResult{qnan64, flags | FlagNV}
		}
		x = fa + fb
		x = adjustF64(x, rm, residualAdd(fa, fb, x))
	case OpFSUB:
		if math.IsInf(fa, 0) && math.IsInf(fb, 0) && fa == fb {
			return FPResult{qnan64, flags | FlagNV}
		}
		x = fa - fb
		x = adjustF64(x, rm, residualAdd(fa, -fb, x))
	case OpFMUL:
		if (fa == 0 && math.IsInf(fb, 0)) || (fb == 0 && math.IsInf(fa, 0)) {
			return FPResult{qnan64, flags | FlagNV}
		}
		x = fa * fb
		x = adjustF64(x, rm, residualMul(fa, fb, x))
	case OpFDIV:
		if fb == 0 && !math.IsNaN(fa) {
			if fa == 0 {
				return FPResult{qnan64, flags | FlagNV}
			}
			flags |= FlagDZ
		}
		if math.IsInf(fa, 0) && math.IsInf(fb, 0) {
			return FPResult{qnan64, flags | FlagNV}
		}
		x = fa / fb
		x = adjustF64(x, rm, residualDiv(fa, fb, x))
	}
	if math.IsNaN(x) {
		return FPResult{qnan64, flags}
	}
	flags |= classifyResult64(x, fa, fb)
	return FPResult{math.Float64bits(x), flags}
}

// residualAdd recovers the sign of the rounding error of fa+fb ~ s
func residualAdd(fa, fb, s float64) int {
	if math.IsInf(s, 0) || math.IsNaN(s) {
		return 0
	}
	// Knuth two-sum error term
	bp := s - fa
	err := (fa - (s - bp)) + (fb - bp)
	switch {
	case err > 0:
		return 1
	case err < 0:
		return -1
	}
	return 0
}

func residualMul(fa, fb, p float64) int {
	if math.IsInf(p, 0) || math.IsNaN(p) {
		return 0
	}
	err := math.FMA(fa, fb, -p)
	switch {
	case err > 0:
		return 1
	case err < 0:
		return -1
	}
	return 0
}

func residualDiv(fa, fb, q float64) int {
	if math.IsInf(q, 0) || math.IsNaN(q) || math.IsInf(fb, 0) {
		return 0
	}
	// sign of fa - q*fb, adjusted for divisor sign
	err := math.FMA(-q, fb, fa)
	if fb < 0 {
		err = -err
	}
	switch {
	case err > 0:
		return 1
	case err < 0:
		return -1
	}
	return 0
}

func classifyResult64(x, fa, fb float64) uint64 {
	var flags uint64
	if math.IsInf(x, 0) && !math.IsInf(fa, 0) && !math.IsInf(fb, 0) {
		flags |= FlagOF | FlagNX
	}
	if x != 0 && math.Abs(x) < 2.2250738585072014e-308 && !math.IsInf(fa, 0) {
		flags |= FlagUF | FlagNX
	}
	return flags
}

// FPUSqrt64 computes double-precision square root
func FPUSqrt64(a uint64, rm RoundingMode) FPResult {
	var flags uint64
	if isSNaN64(a) {
		flags |= FlagNV
	}
	fa := math.Float64frombits(a)
	if fa < 0 {
		return FPResult{qnan64, flags | FlagNV}
	}
	x := math.Sqrt(fa)
	if math.IsNaN(x) {
		return FPResult{qnan64, flags}
	}
	return FPResult{math.Float64bits(x), flags}
}

// FPUFMA64 computes a*b+c in double precision with a single rounding
func FPUFMA64(a, b, c uint64, negProduct, negAddend bool, rm RoundingMode) FPResult {
	var flags uint64
	if isSNaN64(a) || isSNaN64(b) || isSNaN64(c) {
		flags |= FlagNV
	}
	fa, fb, fc := math.Float64frombits(a), math.Float64frombits(b), math.Float64frombits(c)
	if negProduct {
		fa = -fa
	}
	if negAddend {
		fc = -fc
	}
	if (fa == 0 && math.IsInf(fb, 0)) || (fb == 0 && math.IsInf(fa, 0)) {
		return FPResult{qnan64, flags | FlagNV}
	}
	x := math.FMA(fa, fb, fc)
	if math.IsNaN(x) {
		if !math.IsNaN(math.Float64frombits(a)) && !math.IsNaN(fb) && !math.IsNaN(fc) {
			flags |= FlagNV
		}
		return FPResult{qnan64, flags}
	}
	return FPResult{math.Float64bits(x), flags}
}

// ---- min/max ----

// FPUMinMax32 implements FMIN.S/FMAX.S under the configured spec version:
// 2.2 returns the canonical NaN whenever either operand is NaN; 2.3
// returns the non-NaN operand for a quiet pairing and raises NV only on
// signalling NaNs.
func FPUMinMax32(a, b uint32, max bool, v23 bool) FPResult {
	var flags uint64
	aN, bN := isNaN32(a), isNaN32(b)
	if isSNaN32(a) || isSNaN32(b) {
		flags |= FlagNV
	}
	if aN && bN {
		return FPResult{uint64(qnan32), flags}
	}
	if aN || bN {
		if !v23 {
			flags |= FlagNV
			return FPResult{uint64(qnan32), flags}
		}
		if aN {
			return FPResult{uint64(b), flags}
		}
		return FPResult{uint64(a), flags}
	}
	fa, fb := math.Float32frombits(a), math.Float32frombits(b)
	// -0 orders below +0
	if fa == fb {
		if (a == 0x80000000) != max {
			return FPResult{uint64(a), flags}
		}
		return FPResult{uint64(b), flags}
	}
	if (fa < fb) != max {
		return FPResult{uint64(a), flags}
	}
	return FPResult{uint64(b), flags}
}

// FPUMinMax64 is the double-precision counterpart of FPUMinMax32
func FPUMinMax64(a, b uint64, max bool, v23 bool) FPResult {
	var flags uint64
	aN, bN := isNaN64(a), isNaN64(b)
	if isSNaN64(a) || isSNaN64(b) {
		flags |= FlagNV
	}
	if aN && bN {
		return FPResult{qnan64, flags}
	}
	if aN || bN {
		if !v23 {
			return FPResult{qnan64, flags | FlagNV}
		}
		if aN {
			return FPResult{b, flags}
		}
		return FPResult{a, flags}
	}
	fa, fb := math.Float64frombits(a), math.Float64frombits(b)
	if fa == fb {
		if (a == 1<<63) != max {
			return FPResult{a, flags}
		}
		return FPResult{b, flags}
	}
	if (fa < fb) != max {
		return FPResult{a, flags}
	}
	return FPResult{b, flags}
}

// ---- compares ----

// FPUCompare32 implements FEQ/FLT/FLE.S; FLT/FLE signal on any NaN, FEQ
// only on signalling NaNs
func FPUCompare32(op Operation, a, b uint32) (uint64, uint64) {
	var flags uint64
	aN, bN := isNaN32(a), isNaN32(b)
	if op == OpFEQ {
		if isSNaN32(a) || isSNaN32(b) {
			flags |= FlagNV
		}
	} else if aN || bN {
		flags |= FlagNV
	}
	if aN || bN {
		return 0, flags
	}
	fa, fb := math.Float32frombits(a), math.Float32frombits(b)
	var r bool
	switch op {
	case OpFEQ:
		r = fa == fb
	case OpFLT:
		r = fa < fb
	case OpFLE:
		r = fa <= fb
	}
	if r {
		return 1, flags
	}
	return 0, flags
}

// FPUCompare64 is the double-precision counterpart of FPUCompare32
func FPUCompare64(op Operation, a, b uint64) (uint64, uint64) {
	var flags uint64
	aN, bN := isNaN64(a), isNaN64(b)
	if op == OpFEQ {
		if isSNaN64(a) || isSNaN64(b) {
			flags |= FlagNV
		}
	} else if aN || bN {
		flags |= FlagNV
	}
	if aN || bN {
		return 0, flags
	}
	fa, fb := math.Float64frombits(a), math.Float64frombits(b)
	var r bool
	switch op {
	case OpFEQ:
		r = fa == fb
	case OpFLT:
		r = fa < fb
	case OpFLE:
		r = fa <= fb
	}
	if r {
		return 1, flags
	}
	return 0, flags
}

// ---- classification ----

// FPUClass32 implements FCLASS.S
func FPUClass32(a uint32) uint64 {
	sign := a>>31 != 0
	exp := a >> 23 & 0xFF
	man := a & 0x007FFFFF
	switch {
	case exp == 0xFF && man != 0:
		if a&0x00400000 != 0 {
			return 1 << 9 // quiet NaN
		}
		return 1 << 8 // signalling NaN
	case exp == 0xFF:
		if sign {
			return 1 << 0
		}
		return 1 << 7
	case exp == 0 && man == 0:
		if sign {
			return 1 << 3
		}
		return 1 << 4
	case exp == 0:
		if sign {
			return 1 << 2
		}
		return 1 << 5
	default:
		if sign {
			return 1 << 1
		}
		return 1 << 6
	}
}

// FPUClass64 implements FCLASS.D
func FPUClass64(a uint64) uint64 {
	sign := a>>63 != 0
	exp := a >> 52 & 0x7FF
	man := a & 0x000FFFFFFFFFFFFF
	switch {
	case exp == 0x7FF && man != 0:
		if a&0x0008000000000000 != 0 {
			return 1 << 9
		}
		return 1 << 8
	case exp == 0x7FF:
		if sign {
			return 1 << 0
		}
		return 1 << 7
	case exp == 0 && man == 0:
		if sign {
			return 1 << 3
		}
		return 1 << 4
	case exp == 0:
		if sign {
			return 1 << 2
		}
		return 1 << 5
	default:
		if sign {
			return 1 << 1
		}
		return 1 << 6
	}
}

// ---- conversions ----

// FPUToInt converts an FP value to a signed or unsigned integer of
// intBits width, producing the architected indeterminate result and NV
// on overflow or NaN
func FPUToInt(bits uint64, fpBits uint16, intBits uint16, unsigned bool, rm RoundingMode) (uint64, uint64) {
	var f float64
	var nan bool
	if fpBits == 32 {
		f32 := math.Float32frombits(uint32(bits))
		nan = isNaN32(uint32(bits))
		f = float64(f32)
	} else {
		nan = isNaN64(bits)
		f = math.Float64frombits(bits)
	}

	if nan {
		if unsigned {
			return widthMask(intBits), FlagNV
		}
		return widthMask(intBits) >> 1, FlagNV // max positive
	}

	r := roundToInt(f, rm)
	var flags uint64
	if r != f {
		flags |= FlagNX
	}

	if unsigned {
		var lim float64
		if intBits == 32 {
			lim = 4294967296.0
		} else {
			lim = 18446744073709551616.0
		}
		if r < 0 {
			if r > -1 {
				return 0, flags // rounded to zero
			}
			return 0, FlagNV
		}
		if r >= lim {
			return widthMask(intBits), FlagNV
		}
		v := uint64(r)
		if intBits == 32 {
			v = uint64(int64(int32(uint32(v)))) // sign-extend the 32-bit view
		}
		return v, flags
	}

	var lo, hi float64
	if intBits == 32 {
		lo, hi = -2147483648.0, 2147483648.0
	} else {
		lo, hi = -9223372036854775808.0, 9223372036854775808.0
	}
	if r < lo {
		if intBits == 32 {
			minInt32 := int32(math.MinInt32)
			return uint64(int64(minInt32)), FlagNV
		}
		return 1 << 63, FlagNV
	}
	if r >= hi {
		if intBits == 32 {
			return uint64(int64(math.MaxInt32)), FlagNV
		}
		return math.MaxInt64, FlagNV
	}
	v := int64(r)
	if intBits == 32 {
		v = int64(int32(v))
	}
	return uint64(v), flags
}

func roundToInt(f float64, rm RoundingMode) float64 {
	switch rm {
	case RoundRTZ:
		return math.Trunc(f)
	case RoundRDN:
		return math.Floor(f)
	case RoundRUP:
		return math.Ceil(f)
	case RoundRMM:
		return math.Round(f)
	default:
		return math.RoundToEven(f)
	}
}

// FPUFromInt converts an integer to an FP value of fpBits width
func FPUFromInt(v uint64, intBits uint16, unsigned bool, fpBits uint16, rm RoundingMode) FPResult {
	var f float64
	if unsigned {
		if intBits == 32 {
			f = float64(uint32(v))
		} else {
			f = float64(v)
		}
	} else {
		if intBits == 32 {
			f = float64(int32(uint32(v)))
		} else {
			f = float64(int64(v))
		}
	}
	if fpBits == 32 {
		bits, flags := roundF64To32(f, rm)
		return FPResult{uint64(bits), flags}
	}
	r := math.Float64bits(f)
	var flags uint64
	if !unsigned && intBits == 64 && float64(int64(v)) != f {
		flags |= FlagNX
	}
	if unsigned && intBits == 64 && float64(v) != f {
		flags |= FlagNX
	}
	return FPResult{r, flags}
}

// FPUConvert converts between FP formats (32<->64)
func FPUConvert(bits uint64, from, to uint16, rm RoundingMode) FPResult {
	if from == 32 && to == 64 {
		var flags uint64
		if isSNaN32(uint32(bits)) {
			flags |= FlagNV
		}
		if isNaN32(uint32(bits)) {
			return FPResult{qnan64, flags}
		}
		return FPResult{math.Float64bits(float64(math.Float32frombits(uint32(bits)))), flags}
	}
	if from == 64 && to == 32 {
		var flags uint64
		if isSNaN64(bits) {
			flags |= FlagNV
		}
		if isNaN64(bits) {
			return FPResult{uint64(qnan32), flags}
		}
		b, f := roundF64To32(math.Float64frombits(bits), rm)
		return FPResult{uint64(b), flags | f}
	}
	// 16-bit views handled by the half-precision helpers
	return fpuConvertHalf(bits, from, to, rm)
}
