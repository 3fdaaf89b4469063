// Package trap defines the interrupt-frame layout, vector numbers and
// the dispatch gate for the simulated CPU.
package trap

// Interrupt vectors
const (
	VecDivide    = 0x00 // #DE divide error
	VecPageFault = 0x0E // #PF page fault
	VecTimer     = 0x20 // PIT channel 0, remapped IRQ0
	VecKeyboard  = 0x21 // remapped IRQ1
	VecSyscall   = 0x80 // int 0x80 system-call entry

	NumVectors = 256
)

// Segment selectors as laid out in the GDT. The low two bits are the
// requested privilege level.
const (
	KernelCS = 0x08
	KernelDS = 0x10
	UserCS   = 0x1B
	UserDS   = 0x23
)

// EFLAGS bits
const (
	FlagReserved = 1 << 1 // always set on real hardware
	FlagIF       = 1 << 9 // interrupt enable
)

// System call numbers. The numbering is part of the user ABI and is
// append-only.
const (
	SysExit  = 1
	SysWrite = 2
)

// Signal numbers. All delivered signals are fatal; none are catchable.
const (
	SIGKILL = 9
	SIGSEGV = 11
	SIGPIPE = 13
)

// HasErrCode reports whether the CPU pushes an error code for vec; the
// entry stub pushes a zero slot for the rest so the frame layout stays
// uniform.
func HasErrCode(vec uint32) bool {
	switch vec {
	case 0x08, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x11:
		return true
	}
	return false
}
