// Package simhost defines the contract between the scheduler core and its
// host simulator: the outbound primitives the scheduler calls, and the
// inbound callbacks the simulator invokes on it. The core never imports a
// concrete simulator; it only depends on the interfaces in this package.
package simhost

import "fmt"

// MachineID identifies a physical machine. Opaque to the core.
type MachineID string

// VMID identifies a virtual machine. Opaque to the core.
type VMID string

// TaskID identifies a task. Opaque to the core.
type TaskID string

// CPUFamily is the instruction-set family of a machine or a task/VM
// requirement.
type CPUFamily int

// CPU families recognized by the core.
const (
	CPUUnknown CPUFamily = iota
	X86
	ARM
	POWER
	RISCV
)

func (c CPUFamily) String() string {
	switch c {
	case X86:
		return "X86"
	case ARM:
		return "ARM"
	case POWER:
		return "POWER"
	case RISCV:
		return "RISCV"
	default:
		return "UNKNOWN"
	}
}

// VMKind is the guest OS/runtime a VM presents.
type VMKind int

// VM kinds recognized by the core.
const (
	VMKindUnknown VMKind = iota
	LINUX
	LINUXRT
	WIN
	AIX
)

func (k VMKind) String() string {
	switch k {
	case LINUX:
		return "LINUX"
	case LINUXRT:
		return "LINUX_RT"
	case WIN:
		return "WIN"
	case AIX:
		return "AIX"
	default:
		return "UNKNOWN"
	}
}

// SState is a coarse machine power state. Numerically higher is deeper
// sleep; S0 is fully on.
type SState int

// Machine S-states, S0 (on) through S5 (soft off).
const (
	S0 SState = iota
	S1
	S2
	S3
	S4
	S5
)

func (s SState) String() string {
	return fmt.Sprintf("S%d", int(s))
}

// PState is a per-core performance/frequency level. P0 is peak
// performance; numerically higher is lower frequency and power draw.
type PState int

// Machine P-states, P0 (peak) through P3 (lowest).
const (
	P0 PState = iota
	P1
	P2
	P3
)

func (p PState) String() string {
	return fmt.Sprintf("P%d", int(p))
}

// SLAClass is the contractual completion bound on a task.
type SLAClass int

// SLA classes, SLA0 (tightest) through SLA3 (best-effort).
const (
	SLA0 SLAClass = iota
	SLA1
	SLA2
	SLA3
)

func (s SLAClass) String() string {
	return fmt.Sprintf("SLA%d", int(s))
}

// Priority is the scheduling priority assigned to a task on its VM.
type Priority int

// Scheduling priorities.
const (
	LOW Priority = iota
	MID
	HIGH
)

func (p Priority) String() string {
	switch p {
	case HIGH:
		return "HIGH"
	case MID:
		return "MID"
	default:
		return "LOW"
	}
}

// PStateTable maps a P-state to the MIPS rating a machine delivers while
// running at it.
type PStateTable map[PState]float64

// MachineInfo is a snapshot of a machine's attributes and current state,
// as returned by the simulator.
type MachineInfo struct {
	ID           MachineID
	CPU          CPUFamily
	NumCores     int
	MemorySize   int64
	MemoryUsed   int64
	HasGPU       bool
	SState       SState
	PState       PState
	MIPS         PStateTable
	ActiveTasks  int
}

// VMInfo is a snapshot of a VM's attributes and current state.
type VMInfo struct {
	ID          VMID
	Kind        VMKind
	CPU         CPUFamily
	Machine     MachineID // empty if detached
	Migrating   bool
	ActiveTasks []TaskID
}

// TaskInfo is a snapshot of a task's requirements and progress.
type TaskInfo struct {
	ID                    TaskID
	RequiredCPU           CPUFamily
	RequiredVMKind        VMKind
	GPUCapable            bool
	MemoryRequired        int64
	SLA                   SLAClass
	TargetCompletion      int64 // virtual microseconds
	TotalInstructions     uint64
	RemainingInstructions uint64
}
