package fleet

import "github.com/ayjanu/eec/simhost"

// CPUCompatible reports whether a task requiring cpu can run on a
// machine of family have. CPU families never coerce: a task compiled
// for one instruction set cannot run on another.
func CPUCompatible(have, cpu simhost.CPUFamily) bool {
	return have == cpu
}

// VMKindCompatible reports whether a VM of kind have can host a task
// that requires want. LINUX_RT is the one coercion allowed: a plain
// LINUX VM can absorb a LINUX_RT requirement at reduced determinism,
// but never the reverse, and no kind substitutes for WIN or AIX.
func VMKindCompatible(have, want simhost.VMKind) bool {
	if have == want {
		return true
	}
	return have == simhost.LINUX && want == simhost.LINUXRT
}

// GPUCompatible reports whether a machine with hasGPU can satisfy a
// task that requires GPU capability.
func GPUCompatible(hasGPU, requiresGPU bool) bool {
	if !requiresGPU {
		return true
	}
	return hasGPU
}

// MemoryFits reports whether a machine with available bytes free
// (after subtracting overheadMargin) can fit a VM requiring need
// bytes.
func MemoryFits(available, overheadMargin, need int64) bool {
	return available-overheadMargin >= need
}

// Compatible runs the machine-level placement eligibility check for a
// task against a candidate machine: CPU family and GPU capability.
// vmKind is not checked here — callers already derive it via coerce()
// from the task's raw requirement, and matching a resident VM's kind
// against that coerced value (or creating a new VM of that kind) is
// handled separately by the caller; re-checking it here against the
// task's uncoerced RequiredVMKind would reject every coerced
// placement. Memory is also checked separately by the caller since it
// depends on the specific VM's current footprint, not just the
// machine's static attributes.
func Compatible(machine simhost.MachineInfo, vmKind simhost.VMKind, task simhost.TaskInfo) bool {
	if !CPUCompatible(machine.CPU, task.RequiredCPU) {
		return false
	}
	if !GPUCompatible(machine.HasGPU, task.GPUCapable) {
		return false
	}
	return true
}
