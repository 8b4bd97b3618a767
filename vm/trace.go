package vm

import (
	"fmt"
	"io"
)

// ExecutionTrace records one line per executed instruction: cycle, PC and
// disassembly. CSR accesses whose register is flagged no-trace are
// suppressed.
type ExecutionTrace struct {
	Enabled bool
	Writer  io.Writer
	Entries uint64
	Max     uint64
}

// NewExecutionTrace returns an enabled trace writing to w
func NewExecutionTrace(w io.Writer) *ExecutionTrace {
	return &ExecutionTrace{Enabled: true, Writer: w, Max: 10_000_000}
}

// Record emits one trace line if the trace is enabled and not saturated
func (t *ExecutionTrace) Record(cycle uint64, pc uint64, info *InstructionInfo, h *Hart) {
	if !t.Enabled || t.Writer == nil {
		return
	}
	if t.Max > 0 && t.Entries >= t.Max {
		return
	}
	switch info.Op {
	case OpCSRRW, OpCSRRS, OpCSRRC, OpCSRRWI, OpCSRRSI, OpCSRRCI:
		if d, ok := h.CSR.Lookup(CSRIndex(info.CSR)); ok && d.NoTrace {
			return
		}
	}
	t.Entries++
	fmt.Fprintf(t.Writer, "%10d %016X  %s\n", cycle, pc, Disassemble(info))
}
