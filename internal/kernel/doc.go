// Package kernel reimplements the console kernel's thread scheduler and
// synchronization engine in host code (high-level emulation). Guest binaries
// observe the same scheduling-dependent behavior they would on hardware:
// priority-based preemption with FIFO tie-break, mutex priority inheritance,
// wait-any/wait-all multi-object waits with the last-match index rule, timed
// wakeups and core-affinity placement.
//
// The package deliberately excludes its collaborators: CPU execution is
// behind the CPU interface, the delayed-callback facility lives in
// internal/timing, and concrete synchronization primitives only appear
// through the WaitObject contract.
//
// Scheduling is cooperative. The kernel is entered at defined trap points
// (system calls, timer expiry, inter-core signals); each entry point runs to
// completion under the KernelCore critical section. Errors split three ways:
// invalid creation arguments return typed errors, kernel-model corruption
// (self-waits, double registration, inheritance cycles, dead-thread
// operations) panics, and wait timeouts are ordinary outcomes delivered as
// WakeResult values.
package kernel
