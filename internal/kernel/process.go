package kernel

import (
	"fmt"

	"horizon/internal/trace"
)

// Guest-facing TLS layout: a fixed region carved into pages of eight
// 0x200-byte entries each.
const (
	tlsAreaBase     VAddr = 0x1_0000_0000
	tlsAreaSize           = 0x4_0000
	tlsPageSize           = 0x1000
	tlsEntrySize          = 0x200
	tlsSlotsPerPage       = tlsPageSize / tlsEntrySize
	tlsMaxPages           = tlsAreaSize / tlsPageSize
)

// Process is the shared-owner object threads belong to. Many threads hold a
// reference to the same process; the process outlives each of them. Only the
// services the thread core needs are modeled: identity, ideal core, and the
// TLS region allocator.
type Process struct {
	kernel *KernelCore

	id        uint64
	name      string
	idealCore int32

	// tlsPages[i] is a slot-occupancy bitmask for the i-th TLS page.
	tlsPages []uint8
}

// ID returns the process id.
func (p *Process) ID() uint64 { return p.id }

// Name returns the process name.
func (p *Process) Name() string { return p.name }

// IdealCore returns the default core for threads created with
// ProcessorIDDefault.
func (p *Process) IdealCore() int32 { return p.idealCore }

// SetIdealCore sets the default core for new threads.
func (p *Process) SetIdealCore(core int32) {
	if core < ProcessorID0 || core >= ProcessorIDMax {
		panic(fmt.Sprintf("kernel: ideal core %d out of range for process %d", core, p.id))
	}
	p.idealCore = core
}

// AllocateTLSSlot reserves one TLS entry for a new thread and returns its
// guest address. Fails only when the whole TLS region is occupied.
func (p *Process) AllocateTLSSlot() (VAddr, error) {
	for page, mask := range p.tlsPages {
		if mask == 0xFF {
			continue
		}
		for slot := 0; slot < tlsSlotsPerPage; slot++ {
			if mask&(1<<slot) == 0 {
				p.tlsPages[page] |= 1 << slot
				return tlsSlotAddress(page, slot), nil
			}
		}
	}
	if len(p.tlsPages) >= tlsMaxPages {
		return 0, fmt.Errorf("process %d: %w", p.id, ErrTLSSlotsExhausted)
	}
	page := len(p.tlsPages)
	p.tlsPages = append(p.tlsPages, 1)
	return tlsSlotAddress(page, 0), nil
}

// FreeTLSSlot releases the TLS entry at addr. Freeing an address that was
// never allocated is a kernel-model bug.
func (p *Process) FreeTLSSlot(addr VAddr) {
	offset := addr - tlsAreaBase
	page := int(offset / tlsPageSize)
	slot := int(offset % tlsPageSize / tlsEntrySize)
	if addr < tlsAreaBase || page >= len(p.tlsPages) || offset%tlsEntrySize != 0 {
		panic(fmt.Sprintf("kernel: freeing invalid TLS address %#x in process %d", addr, p.id))
	}
	if p.tlsPages[page]&(1<<slot) == 0 {
		panic(fmt.Sprintf("kernel: double free of TLS slot %#x in process %d", addr, p.id))
	}
	p.tlsPages[page] &^= 1 << slot
	p.kernel.emit(trace.ScopeThread, -1, 0, "tls-free", fmt.Sprintf("addr=%#x", addr))
}

func tlsSlotAddress(page, slot int) VAddr {
	return tlsAreaBase + VAddr(page)*tlsPageSize + VAddr(slot)*tlsEntrySize
}
