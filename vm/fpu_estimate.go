package vm

import "math"

// 7-bit-precision reciprocal and reciprocal-square-root estimates for the
// vector unit. Results carry seven significant mantissa bits; special
// cases follow the reference algorithm (canonical NaN / infinity and the
// NV/DZ flags).

// trunc7Man32 keeps the top 7 mantissa bits of a binary32 value
func trunc7Man32(b uint32) uint32 {
	return b &^ (1<<16 - 1)
}

// trunc7Man64 keeps the top 7 mantissa bits of a binary64 value
func trunc7Man64(b uint64) uint64 {
	return b &^ (1<<45 - 1)
}

// FPURecip7_32 estimates 1/x for binary32
func FPURecip7_32(a uint32, rm RoundingMode) FPResult {
	sign := a & 0x80000000
	switch {
	case isSNaN32(a):
		return FPResult{uint64(qnan32), FlagNV}
	case isNaN32(a):
		return FPResult{uint64(qnan32), 0}
	case a&0x7FFFFFFF == 0: // ±0 -> ±inf, divide by zero
		return FPResult{uint64(sign | 0x7F800000), FlagDZ}
	case a&0x7FFFFFFF == 0x7F800000: // ±inf -> ±0
		return FPResult{uint64(sign), 0}
	}
	f := math.Float32frombits(a)
	r := 1.0 / float64(f)
	rb := math.Float32bits(float32(r))
	if rb&0x7F800000 == 0x7F800000 {
		// overflow: round to max-finite or infinity of the correct sign
		if roundsToInfinity(rm, r > 0) {
			return FPResult{uint64(sign | 0x7F800000), FlagOF | FlagNX}
		}
		return FPResult{uint64(sign | 0x7F7FFFFF), FlagOF | FlagNX}
	}
	return FPResult{uint64(trunc7Man32(rb)), 0}
}

// FPURecip7_64 estimates 1/x for binary64
func FPURecip7_64(a uint64, rm RoundingMode) FPResult {
	sign := a & (1 << 63)
	switch {
	case isSNaN64(a):
		return FPResult{qnan64, FlagNV}
	case isNaN64(a):
		return FPResult{qnan64, 0}
	case a&^(uint64(1)<<63) == 0:
		return FPResult{sign | 0x7FF0000000000000, FlagDZ}
	case a&^(uint64(1)<<63) == 0x7FF0000000000000:
		return FPResult{sign, 0}
	}
	f := math.Float64frombits(a)
	r := 1.0 / f
	rb := math.Float64bits(r)
	if rb&0x7FF0000000000000 == 0x7FF0000000000000 {
		if roundsToInfinity(rm, r > 0) {
			return FPResult{sign | 0x7FF0000000000000, FlagOF | FlagNX}
		}
		return FPResult{sign | 0x7FEFFFFFFFFFFFFF, FlagOF | FlagNX}
	}
	return FPResult{trunc7Man64(rb), 0}
}

// FPURSqrt7_32 estimates 1/sqrt(x) for binary32
func FPURSqrt7_32(a uint32) FPResult {
	switch {
	case isSNaN32(a):
		return FPResult{uint64(qnan32), FlagNV}
	case isNaN32(a):
		return FPResult{uint64(qnan32), 0}
	case a == 0: // +0 -> +inf
		return FPResult{uint64(0x7F800000), FlagDZ}
	case a == 0x80000000: // -0 -> -inf
		return FPResult{uint64(0xFF800000), FlagDZ}
	case a>>31 != 0: // negative -> canonical NaN, invalid
		return FPResult{uint64(qnan32), FlagNV}
	case a == 0x7F800000: // +inf -> +0
		return FPResult{0, 0}
	}
	f := math.Float32frombits(a)
	r := 1.0 / math.Sqrt(float64(f))
	return FPResult{uint64(trunc7Man32(math.Float32bits(float32(r)))), 0}
}

// FPURSqrt7_64 estimates 1/sqrt(x) for binary64
func FPURSqrt7_64(a uint64) FPResult {
	switch {
	case isSNaN64(a):
		return FPResult{qnan64, FlagNV}
	case isNaN64(a):
		return FPResult{qnan64, 0}
	case a == 0:
		return FPResult{0x7FF0000000000000, FlagDZ}
	case a == 1<<63:
		return FPResult{0xFFF0000000000000, FlagDZ}
	case a>>63 != 0:
		return FPResult{qnan64, FlagNV}
	case a == 0x7FF0000000000000:
		return FPResult{0, 0}
	}
	f := math.Float64frombits(a)
	r := 1.0 / math.Sqrt(f)
	return FPResult{trunc7Man64(math.Float64bits(r)), 0}
}
