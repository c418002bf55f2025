// Package migration selects placement targets for live VM moves and
// drives the migration protocol. It is the sole mutator of the
// "migrating" flag on VMs.
package migration

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/ayjanu/eec/fleet"
	"github.com/ayjanu/eec/power"
	"github.com/ayjanu/eec/simhost"
)

// MemoryOverhead is the fixed margin (in the VM's memory units) added
// on top of its current footprint when checking a candidate host's
// headroom.
const MemoryOverhead = 8

// TargetKind classifies the outcome of FindTarget.
type TargetKind int

const (
	// None means no target machine could be found this tick.
	None TargetKind = iota
	// Active means an already-running (S0) machine was selected.
	Active
	// Waking means a deep-sleep machine was selected and a wake
	// request issued; the caller must retry the move once it
	// reaches S0.
	Waking
)

// Manager selects migration targets and tracks in-flight moves.
type Manager struct {
	fleet *fleet.Fleet
	power *power.Manager
	sim   simhost.Simulator

	highWatermark float64

	migrating map[simhost.VMID]struct{}
}

// NewManager builds a Manager bound to f and pm, using highWatermark
// as the utilization ceiling a target machine must stay under.
func NewManager(sim simhost.Simulator, f *fleet.Fleet, pm *power.Manager, highWatermark float64) *Manager {
	return &Manager{
		fleet:         f,
		power:         pm,
		sim:           sim,
		highWatermark: highWatermark,
		migrating:     make(map[simhost.VMID]struct{}),
	}
}

// IsMigrating reports whether vm has an outstanding migration.
func (m *Manager) IsMigrating(vm simhost.VMID) bool {
	_, ok := m.migrating[vm]
	return ok
}

// FindTarget implements the target-selection policy: prefer an
// active machine with headroom, else wake a deep-sleep machine of the
// right shape, else report None.
func (m *Manager) FindTarget(vm simhost.VMID, source simhost.MachineID) (simhost.MachineID, TargetKind, error) {
	vmInfo, ok := m.fleet.VMInfo(vm)
	if !ok {
		return "", None, simhost.Transient("migration: vm %s not found", vm)
	}
	requiresGPU := m.needsGPU(vm)

	var bestActive simhost.MachineID
	bestUtil := 1.0
	found := false

	for _, candidate := range m.fleet.AllMachines() {
		if candidate == source {
			continue
		}
		info, ok := m.fleet.MachineInfo(candidate)
		if !ok {
			continue
		}
		if !fleet.CPUCompatible(info.CPU, vmInfo.CPU) {
			continue
		}
		if !fleet.GPUCompatible(info.HasGPU, requiresGPU) {
			continue
		}
		if info.SState != simhost.S0 || m.power.IsPending(candidate) {
			continue
		}
		util := m.fleet.Utilization(candidate)
		if util >= m.highWatermark {
			continue
		}
		if !m.hasHeadroom(info, vmInfo) {
			continue
		}
		if !found || util < bestUtil {
			bestActive = candidate
			bestUtil = util
			found = true
		}
	}
	if found {
		return bestActive, Active, nil
	}

	for _, candidate := range m.fleet.AllMachines() {
		if candidate == source {
			continue
		}
		info, ok := m.fleet.MachineInfo(candidate)
		if !ok || info.SState == simhost.S0 {
			continue
		}
		if !fleet.CPUCompatible(info.CPU, vmInfo.CPU) {
			continue
		}
		if !fleet.GPUCompatible(info.HasGPU, requiresGPU) {
			continue
		}
		if !m.hasHeadroom(info, vmInfo) {
			continue
		}
		m.power.Track(candidate, info.SState)
		if err := m.power.RequestState(candidate, simhost.S0, false); err != nil {
			log.WithError(err).WithField("machine", candidate).Debug("migration: failed to wake candidate target")
			continue
		}
		return candidate, Waking, nil
	}

	return "", None, simhost.Unavailable("no migration target available for vm %s", vm)
}

// hasCriticalTask reports whether vm carries any SLA0/SLA1 task.
func (m *Manager) hasCriticalTask(vm simhost.VMID) bool {
	info, ok := m.fleet.VMInfo(vm)
	if !ok {
		return false
	}
	for _, t := range info.ActiveTasks {
		task, err := m.sim.TaskInfo(t)
		if err == nil && (task.SLA == simhost.SLA0 || task.SLA == simhost.SLA1) {
			return true
		}
	}
	return false
}

// needsGPU reports whether vm carries any task that requires GPU
// capability.
func (m *Manager) needsGPU(vm simhost.VMID) bool {
	info, ok := m.fleet.VMInfo(vm)
	if !ok {
		return false
	}
	for _, t := range info.ActiveTasks {
		task, err := m.sim.TaskInfo(t)
		if err == nil && task.GPUCapable {
			return true
		}
	}
	return false
}

// memoryNeed sums the memory requirement of vm's active tasks.
func (m *Manager) memoryNeed(vm simhost.VMInfo) int64 {
	var need int64
	for _, t := range vm.ActiveTasks {
		task, err := m.sim.TaskInfo(t)
		if err == nil {
			need += task.MemoryRequired
		}
	}
	return need
}

func (m *Manager) hasHeadroom(info simhost.MachineInfo, vm simhost.VMInfo) bool {
	avail := info.MemorySize - info.MemoryUsed
	need := m.memoryNeed(vm) + MemoryOverhead
	return avail >= need
}

// Start marks vm as migrating and issues the underlying move. It is
// the only place the migrating flag is set.
func (m *Manager) Start(vm simhost.VMID, target simhost.MachineID) error {
	if m.IsMigrating(vm) {
		return simhost.Busy("vm %s already migrating", vm)
	}
	if err := m.sim.MigrateStart(vm); err != nil {
		return simhost.Transient("starting migration for vm %s: %v", vm, err)
	}
	if err := m.sim.Migrate(vm, target); err != nil {
		return simhost.Transient("issuing migration for vm %s to %s: %v", vm, target, err)
	}
	m.migrating[vm] = struct{}{}
	return nil
}

// OnMigrationDone clears the migrating flag for vm. It is the only
// place the flag is cleared.
func (m *Manager) OnMigrationDone(vm simhost.VMID) {
	delete(m.migrating, vm)
	m.fleet.InvalidateVM(vm)
}

// MigrateFromOverloaded implements the overload reaction:
// enumerate the resident VMs on machine, smallest first, and attempt
// to move them off one at a time until one succeeds. VMs carrying an
// SLA0/SLA1 task are tried last — an overload or SLA0-rescue reaction
// should disturb best-effort work before critical work, never the
// other way around.
func (m *Manager) MigrateFromOverloaded(machine simhost.MachineID) error {
	vms := m.fleet.VMsOn(machine)
	candidates := make([]simhost.VMID, 0, len(vms))
	var critical []simhost.VMID
	for _, vm := range vms {
		if m.IsMigrating(vm) {
			continue
		}
		if m.hasCriticalTask(vm) {
			critical = append(critical, vm)
			continue
		}
		candidates = append(candidates, vm)
	}
	if len(candidates) == 0 {
		candidates = critical
	}
	sort.Slice(candidates, func(i, j int) bool {
		infoI, _ := m.fleet.VMInfo(candidates[i])
		infoJ, _ := m.fleet.VMInfo(candidates[j])
		return len(infoI.ActiveTasks) < len(infoJ.ActiveTasks)
	})

	for _, vm := range candidates {
		target, kind, err := m.FindTarget(vm, machine)
		if err != nil || kind == None {
			continue
		}
		if kind == Waking {
			return nil // retry next tick once the wake completes
		}
		return m.Start(vm, target)
	}
	return simhost.Unavailable("no VM on overloaded machine %s could be migrated", machine)
}

// MemoryWarning implements the memory-pressure reaction: evict
// the largest non-migrating VM on machine, falling back to waking any
// powered-off machine of the right CPU family, and drain machine
// faster by forcing P0 on every core either way.
func (m *Manager) MemoryWarning(machine simhost.MachineID) error {
	vms := m.fleet.VMsOn(machine)
	var biggest simhost.VMID
	biggestCount := -1
	for _, vm := range vms {
		if m.IsMigrating(vm) {
			continue
		}
		info, ok := m.fleet.VMInfo(vm)
		if !ok {
			continue
		}
		if len(info.ActiveTasks) > biggestCount {
			biggest = vm
			biggestCount = len(info.ActiveTasks)
		}
	}

	defer func() {
		if err := m.power.SetPerf(machine, simhost.P0); err != nil {
			log.WithError(err).WithField("machine", machine).Debug("migration: failed to force P0 during memory pressure")
		}
	}()

	if biggestCount < 0 {
		return simhost.Unavailable("no evictable VM on machine %s", machine)
	}

	target, kind, err := m.FindTarget(biggest, machine)
	if err != nil || kind == None {
		return m.wakeAnyFallback(machine)
	}
	if kind == Waking {
		return nil
	}
	return m.Start(biggest, target)
}

func (m *Manager) wakeAnyFallback(machine simhost.MachineID) error {
	hostInfo, ok := m.fleet.MachineInfo(machine)
	if !ok {
		return simhost.Transient("machine %s not found for fallback wake", machine)
	}
	for _, candidate := range m.fleet.MachinesWithCPU(hostInfo.CPU) {
		if candidate == machine {
			continue
		}
		info, ok := m.fleet.MachineInfo(candidate)
		if !ok || info.SState == simhost.S0 {
			continue
		}
		m.power.Track(candidate, info.SState)
		if err := m.power.RequestState(candidate, simhost.S0, false); err == nil {
			return nil
		}
	}
	return simhost.Unavailable("no fallback machine available for %s", machine)
}
