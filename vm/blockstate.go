package vm

// BlockState carries the assumptions the translator currently holds about
// the hart while a block executes: which FP registers are known NaN-boxed,
// the known vector configuration, whether vstart is known zero, and the
// FS/VS dirty state. A new block links to its predecessor to inherit the
// surviving assumptions and is detached, not freed, on exit.
type BlockState struct {
	Prev *BlockState

	// NaNBoxMask[0] tracks 32-bit boxing, NaNBoxMask[1] 16-bit boxing:
	// a set bit means freg i is known properly boxed for that width
	NaNBoxMask [2]uint32

	// VSetTop tracks vector registers with a known agnostic-set tail,
	// singly and as group members
	VSetTop [2]uint32

	// Known vector configuration; zero values mean unknown
	SEW     uint
	LMULx8  uint // 8 * LMUL, so fractional multipliers stay integral
	VLClass VLClass

	VTA bool
	VMA bool

	VStartZero bool
	FSDirty    bool
	VSDirty    bool

	// Known rounding mode, valid only while RMValid
	KnownRM RoundingMode
	RMValid bool

	// polymorphic block key: dynamic features checked once per block
	Key uint32
}

// VLClass is the known zero/non-zero/max state of vl
type VLClass int

const (
	VLUnknown VLClass = iota
	VLZero
	VLNonZero
	VLMax
)

// polymorphic key bits for features that may change without a block end
const (
	KeyXLEN32 uint32 = 1 << iota
	KeyBigEndian
	KeyVTA
	KeyVMA
	KeyTransaction
)

// NewBlockState opens a block, inheriting assumptions from prev
func NewBlockState(prev *BlockState) *BlockState {
	bs := &BlockState{Prev: prev}
	if prev != nil {
		bs.NaNBoxMask = prev.NaNBoxMask
		bs.VSetTop = prev.VSetTop
		bs.SEW = prev.SEW
		bs.LMULx8 = prev.LMULx8
		bs.VLClass = prev.VLClass
		bs.VTA = prev.VTA
		bs.VMA = prev.VMA
		bs.VStartZero = prev.VStartZero
		bs.FSDirty = prev.FSDirty
		bs.VSDirty = prev.VSDirty
		bs.KnownRM = prev.KnownRM
		bs.RMValid = prev.RMValid
		bs.Key = prev.Key
	}
	return bs
}

// Detach unlinks the block from its predecessor on block exit
func (bs *BlockState) Detach() *BlockState {
	prev := bs.Prev
	bs.Prev = nil
	return prev
}

// MarkNaNBoxed records that freg is known boxed for the given width
func (bs *BlockState) MarkNaNBoxed(freg int, bits uint16) {
	switch bits {
	case 32:
		bs.NaNBoxMask[0] |= 1 << freg
	case 16:
		bs.NaNBoxMask[1] |= 1 << freg
		bs.NaNBoxMask[0] |= 1 << freg
	}
}

// KnownNaNBoxed reports whether the boxing check for freg can be elided
func (bs *BlockState) KnownNaNBoxed(freg int, bits uint16) bool {
	switch bits {
	case 32:
		return bs.NaNBoxMask[0]&(1<<freg) != 0
	case 16:
		return bs.NaNBoxMask[1]&(1<<freg) != 0
	}
	return true // full-width reads need no box check
}

// ClearNaNBoxed drops boxing knowledge for freg (a full-width write)
func (bs *BlockState) ClearNaNBoxed(freg int) {
	bs.NaNBoxMask[0] &^= 1 << freg
	bs.NaNBoxMask[1] &^= 1 << freg
}

// InvalidateVectorKnowledge forgets SEW/LMUL/VL after a configuration write
func (bs *BlockState) InvalidateVectorKnowledge() {
	bs.SEW = 0
	bs.LMULx8 = 0
	bs.VLClass = VLUnknown
	bs.VSetTop = [2]uint32{}
}
