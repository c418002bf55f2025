// Package fleet owns the authoritative in-memory view of every machine
// and VM: cached snapshots of their attributes, and the three derived
// indices (machines by CPU family, VMs by host machine, tasks by SLA
// class) the rest of the scheduler queries instead of re-deriving them.
package fleet

import (
	"github.com/ayjanu/eec/simhost"
)

// Fleet is the scheduler's authoritative, cached view of the cluster.
// It is not safe for concurrent use: the scheduler core is
// single-threaded and cooperative, and Fleet is only ever
// touched from within a callback.
type Fleet struct {
	sim simhost.Simulator

	refreshInterval int64 // microseconds
	lastRefresh     int64 // microseconds
	everRefreshed   bool

	machines map[simhost.MachineID]simhost.MachineInfo
	vms      map[simhost.VMID]simhost.VMInfo

	byCPU     map[simhost.CPUFamily][]simhost.MachineID
	byMachine map[simhost.MachineID][]simhost.VMID
	bySLA     map[simhost.SLAClass][]simhost.TaskID
	taskOwner map[simhost.TaskID]simhost.VMID

	active map[simhost.MachineID]struct{}

	utilCache map[simhost.MachineID]float64
}

// New builds an empty Fleet bound to sim. refreshInterval is in
// simulated microseconds. Refresh must be called (directly, or via
// Scheduler.Init) before querying it.
func New(sim simhost.Simulator, refreshInterval int64) *Fleet {
	return &Fleet{
		sim:             sim,
		refreshInterval: refreshInterval,
		machines:        make(map[simhost.MachineID]simhost.MachineInfo),
		vms:             make(map[simhost.VMID]simhost.VMInfo),
		byCPU:           make(map[simhost.CPUFamily][]simhost.MachineID),
		byMachine:       make(map[simhost.MachineID][]simhost.VMID),
		bySLA:           make(map[simhost.SLAClass][]simhost.TaskID),
		taskOwner:       make(map[simhost.TaskID]simhost.VMID),
		active:          make(map[simhost.MachineID]struct{}),
		utilCache:       make(map[simhost.MachineID]float64),
	}
}
