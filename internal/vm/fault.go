package vm

// KernelBase is the lowest address this simulation treats as
// kernel-only; nothing in this module ever maps a page above it.
// Pintos uses the real KERN_BASE split (0x8004000000); the exact value
// doesn't matter here since nothing is actually isolated by hardware,
// only the classification needs to exist for vm_try_handle_fault's
// is_kernel_vaddr check to have something to test.
const KernelBase = uintptr(1) << 40

// UserStackTop is the highest address the user stack may occupy.
const UserStackTop = uintptr(0x47480000)

// stackGrowthLimit bounds how far below UserStackTop a stack may grow
// (Pintos caps the stack at 1MiB).
const stackGrowthLimit = 1 << 20

func isKernelVA(addr uintptr) bool {
	return addr >= KernelBase
}

// FaultResult reports the outcome of HandleFault.
type FaultResult struct {
	Handled   bool
	StackGrew bool
	NewBottom uintptr
}

// HandleFault implements vm_try_handle_fault: reject kernel/NULL
// addresses and protection violations outright, resolve a fault on an
// already-tracked page by claiming it, and otherwise apply the stack
// growth heuristic (within 8 bytes below rsp, within UserStackTop, and
// within the 1MiB stack growth limit).
func HandleFault(spt *SupplementalPageTable, frames *FrameTable, addr, userRSP, stackBottom uintptr, notPresent bool) (FaultResult, error) {
	if !notPresent || addr == 0 || isKernelVA(addr) {
		return FaultResult{}, nil
	}

	if page := spt.Find(addr); page != nil {
		if _, err := frames.Claim(page); err != nil {
			return FaultResult{}, err
		}
		return FaultResult{Handled: true}, nil
	}

	limit := UserStackTop - stackGrowthLimit
	if addr >= userRSP-8 && addr <= UserStackTop && addr >= limit {
		newBottom := stackBottom - PageSize
		if !spt.AllocAnon(Round(newBottom), true) {
			return FaultResult{}, nil
		}
		page := spt.Find(newBottom)
		if _, err := frames.Claim(page); err != nil {
			return FaultResult{}, err
		}
		return FaultResult{Handled: true, StackGrew: true, NewBottom: newBottom}, nil
	}

	return FaultResult{}, nil
}
