package simharness

import "github.com/ayjanu/eec/simhost"

// MachineSpec describes a physical machine to seed into the harness.
type MachineSpec struct {
	ID       simhost.MachineID
	CPU      simhost.CPUFamily
	NumCores int
	Memory   int64
	HasGPU   bool
	Initial  simhost.SState
	MIPS     simhost.PStateTable
}

// AddMachine seeds a machine described by spec. It must be called
// before Run.
func (h *Harness) AddMachine(spec MachineSpec) {
	h.machines[spec.ID] = &machine{
		id: spec.ID, cpu: spec.CPU, numCores: spec.NumCores,
		memory: spec.Memory, hasGPU: spec.HasGPU,
		sstate: spec.Initial, pstate: simhost.P1, mips: spec.MIPS,
	}
	h.machineOrder = append(h.machineOrder, spec.ID)
}

// TaskSpec describes a task to submit at a given virtual time.
type TaskSpec struct {
	ID                simhost.TaskID
	RequiredCPU       simhost.CPUFamily
	RequiredVMKind    simhost.VMKind
	GPUCapable        bool
	MemoryRequired    int64
	SLA               simhost.SLAClass
	TotalInstructions uint64
	// Deadline is the number of virtual microseconds after arrival by
	// which the task should complete; TargetCompletion is derived as
	// arrivalTime+Deadline.
	Deadline int64
}

// SubmitTask registers a task and schedules its arrival (NewTask
// callback) at the given virtual time.
func (h *Harness) SubmitTask(at int64, spec TaskSpec) simhost.TaskID {
	h.tasks[spec.ID] = &taskRecord{
		id: spec.ID, requiredCPU: spec.RequiredCPU, requiredVMKind: spec.RequiredVMKind,
		gpuCapable: spec.GPUCapable, memoryRequired: spec.MemoryRequired, sla: spec.SLA,
		targetCompletion:      at + spec.Deadline,
		totalInstructions:     spec.TotalInstructions,
		remainingInstructions: spec.TotalInstructions,
		lastProgress:          at,
	}
	h.scheduleAt(at, kindTaskArrival, string(spec.ID), "", "", 0)
	return spec.ID
}

// MachineInfoFor is a test/inspection convenience wrapping
// MachineInfo without the error return, for scenarios that already
// know the machine exists.
func (h *Harness) MachineInfoFor(m simhost.MachineID) simhost.MachineInfo {
	info, _ := h.MachineInfo(m)
	return info
}

// TaskInfoFor is the TaskInfo analogue of MachineInfoFor.
func (h *Harness) TaskInfoFor(t simhost.TaskID) simhost.TaskInfo {
	info, _ := h.TaskInfo(t)
	return info
}

// TaskPriority returns the priority last set on t via AddTask or
// SetTaskPriority, for assertions in scenario tests.
func (h *Harness) TaskPriority(t simhost.TaskID) simhost.Priority {
	if tr, ok := h.tasks[t]; ok {
		return tr.priority
	}
	return simhost.LOW
}

// VMsOnMachine returns the ids of every VM currently attached to m,
// for assertions in scenario tests.
func (h *Harness) VMsOnMachine(m simhost.MachineID) []simhost.VMID {
	mach, ok := h.machines[m]
	if !ok {
		return nil
	}
	out := make([]simhost.VMID, len(mach.vms))
	copy(out, mach.vms)
	return out
}

// AddExistingVM lets a test preseed a VM resident on a machine at
// startup, bypassing CreateVM/AttachVM (e.g. to model machines that
// already carry work when the scheduler starts).
func (h *Harness) AddExistingVM(id simhost.VMID, kind simhost.VMKind, cpu simhost.CPUFamily, m simhost.MachineID) {
	h.vms[id] = &vmRecord{id: id, kind: kind, cpu: cpu, machine: m}
	if mach, ok := h.machines[m]; ok {
		mach.vms = append(mach.vms, id)
	}
}
