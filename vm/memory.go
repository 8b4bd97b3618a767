package vm

import (
	"fmt"
	"sync"
)

// AccessType distinguishes the permission required for a memory access
type AccessType int

const (
	AccessRead AccessType = iota
	AccessWrite
	AccessFetch
)

func (a AccessType) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessFetch:
		return "fetch"
	}
	return "?"
}

// Memory access permissions
type MemoryPermission byte

const (
	PermNone    MemoryPermission = 0
	PermRead    MemoryPermission = 1 << 0
	PermWrite   MemoryPermission = 1 << 1
	PermExecute MemoryPermission = 1 << 2
)

// PMAClass classifies a physical range's attributes
type PMAClass struct {
	Cacheable  bool
	Idempotent bool
	Reservable bool
	AtomicOK   bool
	Device     bool
}

// MemorySegment represents a region of physical memory with permissions
type MemorySegment struct {
	Start       uint64
	Size        uint64
	Data        []byte
	Permissions MemoryPermission
	Attrs       PMAClass
	Name        string
}

// MemorySystem is the shared physical memory domain plus the per-hart
// translation machinery. Harts on separate host threads share one
// MemorySystem; the atomic guard serialises AMO sequences.
type MemorySystem struct {
	variant  *Variant
	Segments []*MemorySegment
	PMP      *PMPUnit

	// PMACheck optionally refines the attribute classification; nil
	// falls back to the owning segment's attributes
	PMACheck func(addr uint64, size uint64) *PMAClass

	tlbs [3]map[tlbKey]*TLBEntry

	// harts registered for remote-store reservation invalidation
	harts []*Hart

	AccessCount uint64
	ReadCount   uint64
	WriteCount  uint64

	atomicMu sync.Mutex
}

// NewMemorySystem creates an empty physical domain
func NewMemorySystem() *MemorySystem {
	m := &MemorySystem{PMP: NewPMPUnit()}
	for i := range m.tlbs {
		m.tlbs[i] = make(map[tlbKey]*TLBEntry)
	}
	return m
}

// AddSegment maps a new region of physical memory
func (m *MemorySystem) AddSegment(name string, start, size uint64, permissions MemoryPermission) {
	m.Segments = append(m.Segments, &MemorySegment{
		Start:       start,
		Size:        size,
		Data:        make([]byte, size),
		Permissions: permissions,
		Attrs:       PMAClass{Cacheable: true, Idempotent: true, Reservable: true, AtomicOK: true},
		Name:        name,
	})
}

// AddDevice maps a device region: non-idempotent, no reservations
func (m *MemorySystem) AddDevice(name string, start, size uint64) {
	m.Segments = append(m.Segments, &MemorySegment{
		Start:       start,
		Size:        size,
		Data:        make([]byte, size),
		Permissions: PermRead | PermWrite,
		Attrs:       PMAClass{Device: true},
		Name:        name,
	})
}

// AttachHart registers a hart for reservation invalidation
func (m *MemorySystem) AttachHart(h *Hart) {
	m.harts = append(m.harts, h)
}

func (m *MemorySystem) findSegment(address uint64) (*MemorySegment, uint64, error) {
	for _, seg := range m.Segments {
		if address >= seg.Start && address < seg.Start+seg.Size {
			return seg, address - seg.Start, nil
		}
	}
	return nil, 0, fmt.Errorf("physical address 0x%016X is not mapped", address)
}

// pma returns the attribute classification for a physical range
func (m *MemorySystem) pma(addr, size uint64) (*PMAClass, error) {
	if m.PMACheck != nil {
		if c := m.PMACheck(addr, size); c != nil {
			return c, nil
		}
	}
	seg, _, err := m.findSegment(addr)
	if err != nil {
		return nil, err
	}
	return &seg.Attrs, nil
}

// accessFaultCause maps an access type to its access-fault cause code
func accessFaultCause(access AccessType) Cause {
	switch access {
	case AccessWrite:
		return CauseStoreAccess
	case AccessFetch:
		return CauseFetchAccess
	}
	return CauseLoadAccess
}

func misalignedCause(access AccessType) Cause {
	switch access {
	case AccessWrite:
		return CauseMisalignedStore
	case AccessFetch:
		return CauseMisalignedFetch
	}
	return CauseMisalignedLoad
}

func pageFaultCause(access AccessType) Cause {
	switch access {
	case AccessWrite:
		return CauseStorePageFault
	case AccessFetch:
		return CauseFetchPageFault
	}
	return CauseLoadPageFault
}

func guestPageFaultCause(access AccessType) Cause {
	switch access {
	case AccessWrite:
		return CauseStoreGuestPage
	case AccessFetch:
		return CauseFetchGuestPage
	}
	return CauseLoadGuestPage
}

// checkPhysical validates a physical access against segment permissions,
// PMP and PMA; vaddr only flavours the fault report
func (m *MemorySystem) checkPhysical(h *Hart, paddr, vaddr uint64, size uint64, access AccessType) (*MemorySegment, uint64, *TrapError) {
	seg, offset, err := m.findSegment(paddr)
	if err != nil {
		return nil, 0, &TrapError{Cause: accessFaultCause(access), Tval: vaddr, Desc: err.Error()}
	}
	if offset+size > seg.Size {
		return nil, 0, &TrapError{Cause: accessFaultCause(access), Tval: vaddr,
			Desc: fmt.Sprintf("access crosses end of segment '%s'", seg.Name)}
	}

	var need MemoryPermission
	switch access {
	case AccessRead:
		need = PermRead
	case AccessWrite:
		need = PermWrite
	case AccessFetch:
		need = PermExecute
	}
	if seg.Permissions&need == 0 {
		return nil, 0, &TrapError{Cause: accessFaultCause(access), Tval: vaddr,
			Desc: fmt.Sprintf("%s permission denied for segment '%s' at 0x%016X", access, seg.Name, paddr)}
	}

	if t := m.PMP.Check(h, paddr, size, access); t != nil {
		t.Tval = vaddr
		return nil, 0, t
	}
	return seg, offset, nil
}

// bigEndian reports whether data accesses in the hart's current effective
// mode are big-endian (mstatus.MBE/SBE/UBE and the vsstatus counterpart)
func (h *Hart) bigEndian(access AccessType) bool {
	if access == AccessFetch {
		return false // instruction fetch is always little-endian
	}
	mode := h.effectiveMode()
	status := h.CSR.Raw(CSRmstatus)
	switch mode {
	case ModeM:
		return status&StatusMBE != 0
	case ModeS:
		return status&StatusSBE != 0
	case ModeVS:
		return h.CSR.Raw(CSRvsstatus)&StatusSBE != 0
	case ModeVU:
		return h.CSR.Raw(CSRvsstatus)&uint64(StatusUBE) != 0
	default:
		return status&uint64(StatusUBE) != 0
	}
}

// effectiveMode applies mstatus.MPRV for data accesses from M-mode
func (h *Hart) effectiveMode() Mode {
	status := h.CSR.Raw(CSRmstatus)
	if h.Mode == ModeM && status&StatusMPRV != 0 {
		mpp := status >> StatusMPPShift & 0x3
		return h.modeFromStack(mpp, status&StatusMPV != 0)
	}
	return h.Mode
}

// readPhys reads size bytes at a checked physical location
func readPhys(seg *MemorySegment, offset, size uint64, big bool) uint64 {
	var v uint64
	if big {
		for i := uint64(0); i < size; i++ {
			v = v<<8 | uint64(seg.Data[offset+i])
		}
	} else {
		for i := size; i > 0; i-- {
			v = v<<8 | uint64(seg.Data[offset+i-1])
		}
	}
	return v
}

func writePhys(seg *MemorySegment, offset, size uint64, value uint64, big bool) {
	if big {
		for i := size; i > 0; i-- {
			seg.Data[offset+i-1] = byte(value)
			value >>= 8
		}
	} else {
		for i := uint64(0); i < size; i++ {
			seg.Data[offset+i] = byte(value)
			value >>= 8
		}
	}
}

// Read performs a data load of size bytes at virtual address vaddr
func (m *MemorySystem) Read(h *Hart, vaddr uint64, size uint64) (uint64, *TrapError) {
	if t := m.checkAlign(h, vaddr, size, AccessRead); t != nil {
		return 0, t
	}
	paddr, t := m.Translate(h, vaddr, AccessRead)
	if t != nil {
		return 0, t
	}
	seg, offset, t := m.checkPhysical(h, paddr, vaddr, size, AccessRead)
	if t != nil {
		return 0, t
	}
	m.AccessCount++
	m.ReadCount++
	return readPhys(seg, offset, size, h.bigEndian(AccessRead)), nil
}

// Write performs a data store of size bytes at virtual address vaddr.
// A remote store into another hart's reservation granule clears that
// reservation.
func (m *MemorySystem) Write(h *Hart, vaddr uint64, size uint64, value uint64) *TrapError {
	if t := m.checkAlign(h, vaddr, size, AccessWrite); t != nil {
		return t
	}
	paddr, t := m.Translate(h, vaddr, AccessWrite)
	if t != nil {
		return t
	}
	seg, offset, t := m.checkPhysical(h, paddr, vaddr, size, AccessWrite)
	if t != nil {
		return t
	}
	m.AccessCount++
	m.WriteCount++
	writePhys(seg, offset, size, value, h.bigEndian(AccessWrite))
	m.invalidateReservations(h, paddr)
	return nil
}

// TryWrite checks that a store would succeed without performing it; used
// by SC (store fault reported in preference to load faults), AMOs and the
// cache-management operations
func (m *MemorySystem) TryWrite(h *Hart, vaddr uint64, size uint64) (uint64, *TrapError) {
	if t := m.checkAlign(h, vaddr, size, AccessWrite); t != nil {
		return 0, t
	}
	paddr, t := m.Translate(h, vaddr, AccessWrite)
	if t != nil {
		return 0, t
	}
	if _, _, t := m.checkPhysical(h, paddr, vaddr, size, AccessWrite); t != nil {
		return 0, t
	}
	return paddr, nil
}

// Fetch reads an instruction halfword or word at the PC
func (m *MemorySystem) Fetch(h *Hart, vaddr uint64, size uint64) (uint32, *TrapError) {
	// a 4-byte fetch may straddle a page boundary; fetch halves separately
	if size == 4 && vaddr&0xFFF == 0xFFE {
		lo, t := m.Fetch(h, vaddr, 2)
		if t != nil {
			return 0, t
		}
		hi, t := m.Fetch(h, vaddr+2, 2)
		if t != nil {
			return 0, t
		}
		return hi<<16 | lo, nil
	}
	if vaddr&1 != 0 {
		return 0, &TrapError{Cause: CauseMisalignedFetch, Tval: vaddr}
	}
	paddr, t := m.Translate(h, vaddr, AccessFetch)
	if t != nil {
		return 0, t
	}
	seg, offset, t := m.checkPhysical(h, paddr, vaddr, size, AccessFetch)
	if t != nil {
		return 0, t
	}
	return uint32(readPhys(seg, offset, size, false)), nil
}

// checkAlign enforces natural alignment unless the variant allows
// misaligned accesses
func (m *MemorySystem) checkAlign(h *Hart, vaddr, size uint64, access AccessType) *TrapError {
	if vaddr&(size-1) == 0 {
		return nil
	}
	if h.Variant.AllowUnaligned {
		// a misaligned access must still stay inside one page
		if vaddr>>12 == (vaddr+size-1)>>12 {
			return nil
		}
	}
	return &TrapError{Cause: misalignedCause(access), Tval: vaddr}
}

// invalidateReservations clears any other hart's reservation covering paddr
func (m *MemorySystem) invalidateReservations(writer *Hart, paddr uint64) {
	for _, other := range m.harts {
		if other == writer {
			continue
		}
		if other.ReservationCovers(paddr) {
			other.ClearReservation()
		}
	}
}

// ReadBytes copies out raw physical bytes, for loaders and checkpoints
func (m *MemorySystem) ReadBytes(paddr uint64, length uint64) ([]byte, error) {
	seg, offset, err := m.findSegment(paddr)
	if err != nil {
		return nil, err
	}
	if offset+length > seg.Size {
		return nil, fmt.Errorf("read of %d bytes at 0x%016X crosses segment end", length, paddr)
	}
	out := make([]byte, length)
	copy(out, seg.Data[offset:offset+length])
	return out, nil
}

// LoadBytes copies a program image into physical memory, bypassing
// permission checks
func (m *MemorySystem) LoadBytes(paddr uint64, data []byte) error {
	seg, offset, err := m.findSegment(paddr)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	if offset+uint64(len(data)) > seg.Size {
		return fmt.Errorf("image of %d bytes at 0x%016X crosses segment end", len(data), paddr)
	}
	copy(seg.Data[offset:], data)
	return nil
}

// Reset clears all memory contents and statistics
func (m *MemorySystem) Reset() {
	for _, seg := range m.Segments {
		for i := range seg.Data {
			seg.Data[i] = 0
		}
	}
	m.AccessCount = 0
	m.ReadCount = 0
	m.WriteCount = 0
	m.FlushTLBs()
}
