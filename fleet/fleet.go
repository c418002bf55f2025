package fleet

import (
	log "github.com/sirupsen/logrus"

	"github.com/ayjanu/eec/simhost"
)

// RegisterVM tells the Fleet that vm now exists, so future Refresh
// calls query it. The scheduler is the sole creator of VMs (the
// simulator never invents one on its own), so this is how the Fleet
// learns about new ids rather than by enumerating them like machines.
func (f *Fleet) RegisterVM(vm simhost.VMID) {
	if _, ok := f.vms[vm]; !ok {
		f.vms[vm] = simhost.VMInfo{ID: vm}
	}
}

// Refresh re-synchronizes the cached snapshots and rebuilds the three
// indices from scratch. It is idempotent within refreshInterval of
// simulated time: a call inside that window is a no-op, per spec
// Pass force=true to bypass the throttle (e.g. right after a
// mutation the caller needs reflected immediately).
func (f *Fleet) Refresh(now int64, force bool) {
	if !force && f.everRefreshed && now-f.lastRefresh < f.refreshInterval {
		return
	}
	f.lastRefresh = now
	f.everRefreshed = true

	f.refreshMachines()
	f.refreshVMs()
	f.rebuildIndices()
	f.utilCache = make(map[simhost.MachineID]float64)
}

func (f *Fleet) refreshMachines() {
	total := f.sim.MachineTotal()
	fresh := make(map[simhost.MachineID]simhost.MachineInfo, total)
	active := make(map[simhost.MachineID]struct{})

	for i := 0; i < total; i++ {
		id := f.sim.MachineAt(i)
		info, err := f.sim.MachineInfo(id)
		if err != nil {
			log.WithField("machine", id).WithError(err).
				Debug("fleet: dropping machine from refresh, query failed")
			continue
		}
		fresh[id] = info
		if info.SState == simhost.S0 {
			active[id] = struct{}{}
		}
	}
	f.machines = fresh
	f.active = active
}

func (f *Fleet) refreshVMs() {
	fresh := make(map[simhost.VMID]simhost.VMInfo, len(f.vms))
	for id := range f.vms {
		info, err := f.sim.VMInfo(id)
		if err != nil {
			log.WithField("vm", id).WithError(err).
				Debug("fleet: dropping vm from refresh, query failed")
			continue
		}
		fresh[id] = info
	}
	f.vms = fresh
}

func (f *Fleet) rebuildIndices() {
	byCPU := make(map[simhost.CPUFamily][]simhost.MachineID)
	for id, info := range f.machines {
		byCPU[info.CPU] = append(byCPU[info.CPU], id)
	}

	byMachine := make(map[simhost.MachineID][]simhost.VMID)
	taskOwner := make(map[simhost.TaskID]simhost.VMID)
	bySLA := make(map[simhost.SLAClass][]simhost.TaskID)
	for id, info := range f.vms {
		if info.Machine != "" {
			byMachine[info.Machine] = append(byMachine[info.Machine], id)
		}
		for _, t := range info.ActiveTasks {
			taskOwner[t] = id
			if task, err := f.sim.TaskInfo(t); err == nil {
				bySLA[task.SLA] = append(bySLA[task.SLA], t)
			}
		}
	}
	f.byCPU = byCPU
	f.byMachine = byMachine
	f.taskOwner = taskOwner
	f.bySLA = bySLA
}

// MachineInfo returns the cached snapshot for m, transparently
// fetching from the simulator on a cache miss.
func (f *Fleet) MachineInfo(m simhost.MachineID) (simhost.MachineInfo, bool) {
	info, ok := f.machines[m]
	if ok {
		return info, true
	}
	fetched, err := f.sim.MachineInfo(m)
	if err != nil {
		return simhost.MachineInfo{}, false
	}
	f.machines[m] = fetched
	return fetched, true
}

// VMInfo returns the cached snapshot for vm, transparently fetching
// from the simulator on a cache miss.
func (f *Fleet) VMInfo(vm simhost.VMID) (simhost.VMInfo, bool) {
	info, ok := f.vms[vm]
	if ok {
		return info, true
	}
	fetched, err := f.sim.VMInfo(vm)
	if err != nil {
		return simhost.VMInfo{}, false
	}
	f.vms[vm] = fetched
	f.RegisterVM(vm)
	return fetched, true
}

// ActiveMachines returns every machine currently in S0, per the last
// Refresh.
func (f *Fleet) ActiveMachines() []simhost.MachineID {
	out := make([]simhost.MachineID, 0, len(f.active))
	for id := range f.active {
		out = append(out, id)
	}
	return out
}

// IsActive reports whether m was S0 as of the last Refresh.
func (f *Fleet) IsActive(m simhost.MachineID) bool {
	_, ok := f.active[m]
	return ok
}

// VMsOn returns every VM attached to machine m.
func (f *Fleet) VMsOn(m simhost.MachineID) []simhost.VMID {
	return f.byMachine[m]
}

// MachinesWithCPU returns every machine of the given CPU family.
func (f *Fleet) MachinesWithCPU(cpu simhost.CPUFamily) []simhost.MachineID {
	return f.byCPU[cpu]
}

// TasksWithSLA returns every task of the given SLA class, as of the
// last Refresh.
func (f *Fleet) TasksWithSLA(sla simhost.SLAClass) []simhost.TaskID {
	return f.bySLA[sla]
}

// TaskOwner returns the VM a task is currently assigned to.
func (f *Fleet) TaskOwner(t simhost.TaskID) (simhost.VMID, bool) {
	vm, ok := f.taskOwner[t]
	return vm, ok
}

// Utilization computes active_task_count / core_count for m, memoized
// until the next Refresh.
func (f *Fleet) Utilization(m simhost.MachineID) float64 {
	if u, ok := f.utilCache[m]; ok {
		return u
	}
	info, ok := f.MachineInfo(m)
	if !ok || info.NumCores == 0 {
		return 0
	}
	u := float64(info.ActiveTasks) / float64(info.NumCores)
	f.utilCache[m] = u
	return u
}

// AllMachines returns every machine known as of the last Refresh,
// regardless of power state.
func (f *Fleet) AllMachines() []simhost.MachineID {
	var out []simhost.MachineID
	for _, ids := range f.byCPU {
		out = append(out, ids...)
	}
	return out
}

// InvalidateMachine forces the next MachineInfo call for m to hit the
// simulator rather than the cache. Used after a mutation (state
// request, perf change) that the caller needs reflected before the
// next Refresh window opens.
func (f *Fleet) InvalidateMachine(m simhost.MachineID) {
	delete(f.machines, m)
	delete(f.utilCache, m)
}

// InvalidateVM forces the next VMInfo call for vm to hit the simulator.
func (f *Fleet) InvalidateVM(vm simhost.VMID) {
	delete(f.vms, vm)
}
