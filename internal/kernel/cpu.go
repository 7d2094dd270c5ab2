package kernel

// VAddr is a virtual address in the guest address space.
type VAddr uint64

// Handle is a guest-visible kernel object handle.
type Handle uint32

// Context is the saved CPU state of a thread: the subset of AArch64 register
// state the scheduler saves and restores across context switches.
type Context struct {
	Regs   [31]uint64
	SP     VAddr
	PC     VAddr
	PState uint32
	FPCR   uint32
}

// CPU abstracts the guest CPU core a scheduler drives. The emulator plugs its
// JIT-backed core in here; the simulator and the tests use NullCPU.
type CPU interface {
	// SaveContext stores the core's live register state into ctx.
	SaveContext(ctx *Context)
	// LoadContext restores the core's live register state from ctx.
	LoadContext(ctx *Context)
	// SetTLSAddress points the core's TLS base at the incoming thread's block.
	SetTLSAddress(addr VAddr)
	// SetTPIDREL0 sets the core's TPIDR_EL0 read/write system register.
	SetTPIDREL0(value uint64)
}

// NullCPU is a CPU that executes nothing and simply holds register state.
type NullCPU struct {
	ctx   Context
	tls   VAddr
	tpidr uint64
}

// NewNullCPU returns a CPU stub with zeroed state.
func NewNullCPU() *NullCPU { return &NullCPU{} }

// SaveContext copies the held state into ctx.
func (c *NullCPU) SaveContext(ctx *Context) { *ctx = c.ctx }

// LoadContext replaces the held state with ctx.
func (c *NullCPU) LoadContext(ctx *Context) { c.ctx = *ctx }

// SetTLSAddress records the TLS base.
func (c *NullCPU) SetTLSAddress(addr VAddr) { c.tls = addr }

// SetTPIDREL0 records the TPIDR_EL0 value.
func (c *NullCPU) SetTPIDREL0(value uint64) { c.tpidr = value }

// TLSAddress returns the last TLS base loaded into the core.
func (c *NullCPU) TLSAddress() VAddr { return c.tls }
