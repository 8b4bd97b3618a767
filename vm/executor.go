package vm

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/lookbusy1344/riscv-emulator/config"
)

// ExecutionState represents the current state of execution
type ExecutionState int

const (
	StateRunning ExecutionState = iota
	StateHalted
	StateWaiting
	StateError
)

// VM ties one hart to the shared memory domain and drives the
// fetch/decode/morph loop. One VM runs on one host thread.
type VM struct {
	Hart *Hart
	Mem  *MemorySystem

	State     ExecutionState
	MaxCycles uint64
	LastError error

	// I/O sink for verbose diagnostics (defaults to os.Stderr)
	OutputWriter io.Writer
	Verbose      bool

	Trace *ExecutionTrace

	// block lifecycle; prevBlock keeps the last detached state so a new
	// block inherits its surviving assumptions
	block      *BlockState
	prevBlock  *BlockState
	blockStart uint64

	// StartBlock/EndBlock observe block boundaries
	StartBlock func(bs *BlockState)
	EndBlock   func(bs *BlockState)
}

// Default memory layout for a bare-metal image
const (
	DefaultRAMBase = 0x8000_0000
	DefaultRAMSize = 64 << 20
)

// NewVM builds a VM (variant, memory domain, hart) from a configuration
func NewVM(cfg *config.Config) (*VM, error) {
	variant, err := VariantFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid variant: %w", err)
	}
	mem := NewMemorySystem()
	mem.AddSegment("ram", DefaultRAMBase, DefaultRAMSize, PermRead|PermWrite|PermExecute)
	hart := NewHart(variant, mem)
	mem.AttachHart(hart)

	vm := &VM{
		Hart:         hart,
		Mem:          mem,
		State:        StateHalted,
		MaxCycles:    cfg.Execution.MaxCycles,
		OutputWriter: os.Stderr,
		Verbose:      cfg.Execution.Verbose,
	}
	if cfg.Execution.EnableTrace {
		vm.Trace = NewExecutionTrace(os.Stdout)
	}
	return vm, nil
}

// NewVMWithMemory builds a VM sharing an existing memory domain; used for
// multi-hart configurations where each hart runs on its own thread
func NewVMWithMemory(cfg *config.Config, mem *MemorySystem) (*VM, error) {
	variant, err := VariantFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid variant: %w", err)
	}
	hart := NewHart(variant, mem)
	mem.AttachHart(hart)
	return &VM{
		Hart:         hart,
		Mem:          mem,
		State:        StateHalted,
		MaxCycles:    cfg.Execution.MaxCycles,
		OutputWriter: os.Stderr,
		Verbose:      cfg.Execution.Verbose,
	}, nil
}

// Reset resets the hart and abandons the current block
func (vm *VM) Reset() {
	vm.endCurrentBlock()
	vm.prevBlock = nil
	vm.Hart.Reset()
	vm.State = StateHalted
	vm.LastError = nil
}

// Morph is the translation entry point: it fetches and decodes the
// instruction at pc. A translated unit in this interpreter is a single
// decoded InstructionInfo; the block state spans consecutive units until
// a block-ending instruction executes.
func (vm *VM) Morph(pc uint64) (InstructionInfo, *TrapError) {
	h := vm.Hart
	low, t := vm.Mem.Fetch(h, pc, 2)
	if t != nil {
		return InstructionInfo{}, t
	}
	if low&0x3 != 0x3 {
		return Decode(h.Variant, pc, low), nil
	}
	word, t := vm.Mem.Fetch(h, pc, 4)
	if t != nil {
		return InstructionInfo{}, t
	}
	return Decode(h.Variant, pc, word), nil
}

// ensureBlock opens a block at the current PC if none is active
func (vm *VM) ensureBlock() {
	if vm.block != nil {
		return
	}
	vm.block = NewBlockState(vm.prevBlock)
	vm.blockStart = vm.Hart.PC
	if vm.StartBlock != nil {
		vm.StartBlock(vm.block)
	}
}

// endCurrentBlock closes the active block, detaching its state
func (vm *VM) endCurrentBlock() {
	if vm.block == nil {
		return
	}
	if vm.EndBlock != nil {
		vm.EndBlock(vm.block)
	}
	vm.block.Detach()
	vm.prevBlock = vm.block
	vm.block = nil
}

// endsBlock reports whether the executed instruction terminates the
// translated block: control transfers, instructions that may observe
// external state, and block-ending CSR writes
func (vm *VM) endsBlock(info *InstructionInfo, taken bool) bool {
	switch info.Op {
	case OpWFI, OpECALL, OpEBREAK, OpMRET, OpSRET, OpMNRET, OpDRET,
		OpFENCE, OpFENCEI, OpSFENCEVMA, OpSINVALVMA, OpSFENCEWINVAL,
		OpSFENCEINVALIR, OpHFENCEVVMA, OpHFENCEGVMA,
		OpLR, OpSC, OpAMOSWAP, OpAMOADD, OpAMOXOR, OpAMOAND, OpAMOOR,
		OpAMOMIN, OpAMOMAX, OpAMOMINU, OpAMOMAXU:
		return true
	case OpCSRRW, OpCSRRS, OpCSRRC, OpCSRRWI, OpCSRRSI, OpCSRRCI:
		return vm.Hart.CSR.EndsBlock(CSRIndex(info.CSR))
	}
	return taken
}

// Step executes a single instruction, sampling interrupts first
func (vm *VM) Step() error {
	h := vm.Hart

	if vm.State == StateError {
		return fmt.Errorf("VM is in error state: %w", vm.LastError)
	}

	// interrupts pre-empt the next instruction
	if cause, pending := h.PendingInterrupt(); pending {
		vm.endCurrentBlock()
		h.Trap(&TrapError{Cause: cause}, true)
		h.Disable &^= DisableWFI
		vm.State = StateRunning
		return nil
	}

	if h.Stalled() {
		vm.State = StateWaiting
		return nil
	}
	vm.State = StateRunning

	vm.ensureBlock()

	info, t := vm.Morph(h.PC)
	if t != nil {
		vm.takeTrap(t)
		return nil
	}

	ms := &MorphState{Hart: h, Info: &info, Block: vm.block}
	err := ms.dispatch()

	h.Cycles++
	if vm.countersRunning() {
		h.Instret++
	}

	if err != nil {
		var trap *TrapError
		if errors.As(err, &trap) {
			trap = h.Ext.filterFirstException(h, trap)
			if vm.Verbose && trap.Cause == CauseIllegalInstruction {
				fmt.Fprintf(vm.OutputWriter, "illegal instruction at PC=0x%016X: %s\n",
					info.PC, trap.Desc)
			}
			vm.takeTrap(trap)
			return nil
		}
		// simulator-internal: fatal, never an architectural fault
		vm.State = StateError
		vm.LastError = err
		fmt.Fprintf(vm.OutputWriter, "fatal: hart at PC=0x%016X: %v\n", info.PC, err)
		return err
	}

	if vm.Trace != nil {
		vm.Trace.Record(h.Cycles, info.PC, &info, h)
	}

	taken := h.PC != info.PC+uint64(info.Bytes)
	if vm.endsBlock(&info, taken) {
		vm.endCurrentBlock()
	}
	return nil
}

// takeTrap routes an architectural trap through the trap machine; the
// faulting instruction's side effects were already discarded by the
// emitter returning before any state write
func (vm *VM) takeTrap(t *TrapError) {
	vm.endCurrentBlock()
	vm.Hart.Trap(t, false)
}

// countersRunning consults mcountinhibit for the instret counter
func (vm *VM) countersRunning() bool {
	return vm.Hart.CSR.Raw(CSRmcountinhibit)&0x4 == 0
}

// Run executes until the hart stalls, errors, or exceeds MaxCycles
func (vm *VM) Run() error {
	vm.State = StateRunning
	for vm.State == StateRunning {
		if err := vm.Step(); err != nil {
			return err
		}
		if vm.MaxCycles > 0 && vm.Hart.Cycles >= vm.MaxCycles {
			vm.State = StateHalted
			return fmt.Errorf("maximum cycles exceeded (%d)", vm.MaxCycles)
		}
	}
	return nil
}

// DumpState returns a one-line state summary for diagnostics
func (vm *VM) DumpState() string {
	return fmt.Sprintf("%s state=%d", vm.Hart.DumpState(), vm.State)
}
