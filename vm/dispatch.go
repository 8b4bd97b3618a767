package vm

import "fmt"

// MorphState carries everything an emitter needs: the decoded instruction,
// the owning hart and the active block state
type MorphState struct {
	Hart  *Hart
	Info  *InstructionInfo
	Block *BlockState

	// per-instruction FP flag accumulator, ORed into fflags afterwards
	fflags uint64
}

// emitFn is the per-opcode emitter: it validates enablement, performs the
// semantic body and updates side-effect state. An architectural trap is
// returned as *TrapError; anything else is fatal.
type emitFn func(ms *MorphState) error

// emitters is the dispatch table indexed by operation tag
var emitters [OpLast]emitFn

func init() {
	registerBaseEmitters()
	registerMemoryEmitters()
	registerSystemEmitters()
	registerFPEmitters()
	registerVectorEmitters()
	registerVectorFPEmitters()
	registerVectorMemEmitters()
}

func register(op Operation, fn emitFn) {
	if emitters[op] != nil {
		panic(fmt.Sprintf("emitter for op %d registered twice", op))
	}
	emitters[op] = fn
}

// instructionEnabled verifies the required extensions are configured and
// runtime-enabled. misa letters are runtime writable, so this consults
// the live CSR rather than the variant alone.
func (ms *MorphState) instructionEnabled() error {
	h := ms.Hart
	arch := ms.Info.Arch
	if !h.MisaEnabled(arch) {
		return h.illegalOrVirtual(ms.Info.Raw, false,
			fmt.Sprintf("required extension not enabled for %s", ms.Info.Op))
	}
	return nil
}

// dispatch runs one decoded instruction through its emitter
func (ms *MorphState) dispatch() error {
	info := ms.Info
	if info.Op == OpLast {
		return IllegalInstruction(info.Raw, "unrecognised encoding")
	}
	fn := emitters[info.Op]
	if fn == nil {
		// a decoded tag without an emitter is a wiring bug, not a trap
		return &FatalError{PC: info.PC, Desc: fmt.Sprintf("unimplemented operation %s", info.Op)}
	}
	if err := ms.instructionEnabled(); err != nil {
		return err
	}
	if err := fn(ms); err != nil {
		return err
	}
	// post-emission hooks: accumulated FP flags into fflags
	if ms.fflags != 0 {
		ms.Hart.AccrueFlags(ms.fflags)
		ms.fflags = 0
	}
	return nil
}

// nextPC is the fall-through target of the current instruction
func (ms *MorphState) nextPC() uint64 {
	return ms.Info.PC + uint64(ms.Info.Bytes)
}
