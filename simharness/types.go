// Package simharness is a reference, in-memory implementation of
// simhost.Simulator: a discrete-event simulation of machines, VMs, and
// tasks driven by a virtual clock, used by cmd/eec-scheduler and by
// the scheduler package's end-to-end scenario tests. It is not a
// performance model — task progress advances linearly with the host's
// current MIPS rating, split evenly across the host's concurrently
// active tasks — it exists to exercise the scheduler core against
// realistic sequences of callbacks without a real cluster.
package simharness

import "github.com/ayjanu/eec/simhost"

type machine struct {
	id       simhost.MachineID
	cpu      simhost.CPUFamily
	numCores int
	memory   int64
	hasGPU   bool

	sstate simhost.SState
	pstate simhost.PState
	mips   simhost.PStateTable

	vms []simhost.VMID

	energy   float64 // kWh accumulated
	lastTick int64
}

type vmRecord struct {
	id        simhost.VMID
	kind      simhost.VMKind
	cpu       simhost.CPUFamily
	machine   simhost.MachineID
	migrating bool
	tasks     []simhost.TaskID
}

type taskRecord struct {
	id                    simhost.TaskID
	requiredCPU           simhost.CPUFamily
	requiredVMKind        simhost.VMKind
	gpuCapable            bool
	memoryRequired        int64
	sla                   simhost.SLAClass
	targetCompletion      int64
	totalInstructions     uint64
	remainingInstructions uint64

	vm           simhost.VMID
	priority     simhost.Priority
	lastProgress int64 // virtual time progress was last accounted for
	gen          int64 // bumped on every reschedule; invalidates stale completion events
	slaWarned    bool
	completed    bool
}
