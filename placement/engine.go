// Package placement chooses or creates a VM for each arriving task and
// assigns it a scheduling priority, per the scheduler's placement
// contract. Unlike a distributed placement engine polling for host
// offers, this Engine is invoked synchronously, once per task, from
// the scheduler's single-threaded event loop — there is no daemon,
// no concurrency pool, no host-offer acquisition round trip.
package placement

import (
	log "github.com/sirupsen/logrus"

	"github.com/ayjanu/eec/common/queue"
	"github.com/ayjanu/eec/fleet"
	"github.com/ayjanu/eec/migration"
	"github.com/ayjanu/eec/power"
	"github.com/ayjanu/eec/simhost"
)

// UrgencyPromotionThreshold is the default deadline headroom, in
// simulated microseconds, below which a task is promoted to HIGH
// priority regardless of its declared SLA class.
const UrgencyPromotionThreshold = 12_000_000

// Engine selects a target VM for each task and tracks work that could
// not be placed immediately in the pending-high-priority set.
type Engine struct {
	fleet     *fleet.Fleet
	power     *power.Manager
	migration *migration.Manager
	sim       simhost.Simulator

	urgencyThreshold int64

	pendingHigh *queue.PriorityList
}

// NewEngine builds an Engine wired to the given components.
func NewEngine(sim simhost.Simulator, f *fleet.Fleet, pm *power.Manager, mm *migration.Manager, urgencyThreshold int64) *Engine {
	return &Engine{
		fleet:            f,
		power:            pm,
		migration:        mm,
		sim:              sim,
		urgencyThreshold: urgencyThreshold,
		pendingHigh:      queue.NewPriorityList(),
	}
}

// vmKindRunsOn reports whether vmkind is natively valid on cpu: LINUX
// and LINUX_RT run on any CPU family, WIN runs only on X86 or ARM, and
// AIX runs only on POWER.
func vmKindRunsOn(vmkind simhost.VMKind, cpu simhost.CPUFamily) bool {
	switch vmkind {
	case simhost.LINUX, simhost.LINUXRT:
		return true
	case simhost.WIN:
		return cpu == simhost.X86 || cpu == simhost.ARM
	case simhost.AIX:
		return cpu == simhost.POWER
	default:
		return false
	}
}

// coerce implements the coercion table: a vmkind already valid on cpu
// is left untouched; an incompatible pair is remapped to the nearest
// compatible kind, AIX on POWER and LINUX everywhere else.
func coerce(cpu simhost.CPUFamily, vmkind simhost.VMKind) simhost.VMKind {
	if vmKindRunsOn(vmkind, cpu) {
		return vmkind
	}
	if cpu == simhost.POWER {
		return simhost.AIX
	}
	return simhost.LINUX
}

// priorityFor maps SLA to priority, with urgency promotion overriding
// SLA class when deadline headroom is below threshold.
func (e *Engine) priorityFor(task simhost.TaskInfo, now int64) simhost.Priority {
	if task.TargetCompletion-now < e.urgencyThreshold {
		return simhost.HIGH
	}
	switch task.SLA {
	case simhost.SLA0, simhost.SLA1:
		return simhost.HIGH
	case simhost.SLA2:
		return simhost.MID
	default:
		return simhost.LOW
	}
}

// PlaceTask runs the placement algorithm end to end for one arriving
// task: derive requirements, assign priority, choose or create a VM,
// and add the task to it.
func (e *Engine) PlaceTask(now int64, taskID simhost.TaskID) error {
	task, err := e.sim.TaskInfo(taskID)
	if err != nil {
		return simhost.Transient("placement: fetching task %s: %v", taskID, err)
	}

	vmkind := coerce(task.RequiredCPU, task.RequiredVMKind)
	priority := e.priorityFor(task, now)

	vm, machine, err := e.chooseVM(task, vmkind, priority)
	if err != nil {
		if priority == simhost.HIGH {
			e.pendingHigh.Push(int(priority), taskID)
			log.WithField("task", taskID).Debug("placement: deferred to pending-high-priority set")
			return nil
		}
		return err
	}

	if err := e.sim.AddTask(vm, taskID, priority); err != nil {
		return simhost.Transient("placement: adding task %s to vm %s: %v", taskID, vm, err)
	}
	e.fleet.InvalidateVM(vm)

	if priority == simhost.HIGH {
		if err := e.power.SetPerf(machine, simhost.P0); err != nil {
			log.WithError(err).WithField("machine", machine).Debug("placement: failed to force P0 for HIGH priority task")
		}
	}
	return nil
}

// chooseVM tries an existing resident VM first, then falls back to
// creating one on a suitable host.
func (e *Engine) chooseVM(task simhost.TaskInfo, vmkind simhost.VMKind, priority simhost.Priority) (simhost.VMID, simhost.MachineID, error) {
	if vm, machine, ok := e.bestResidentVM(task, vmkind, priority); ok {
		return vm, machine, nil
	}
	return e.createVMOnHost(task, vmkind)
}

func (e *Engine) bestResidentVM(task simhost.TaskInfo, vmkind simhost.VMKind, priority simhost.Priority) (simhost.VMID, simhost.MachineID, bool) {
	var bestVM simhost.VMID
	var bestMachine simhost.MachineID
	bestTasks := -1
	bestUtil := 2.0
	found := false

	for _, machineID := range e.fleet.AllMachines() {
		machineInfo, ok := e.fleet.MachineInfo(machineID)
		if !ok || machineInfo.SState != simhost.S0 {
			continue
		}
		if !fleet.Compatible(machineInfo, vmkind, task) {
			continue
		}
		util := e.fleet.Utilization(machineID)

		for _, vmID := range e.fleet.VMsOn(machineID) {
			vmInfo, ok := e.fleet.VMInfo(vmID)
			if !ok || vmInfo.Migrating || vmInfo.Kind != vmkind {
				continue
			}
			if !fleet.MemoryFits(machineInfo.MemorySize-machineInfo.MemoryUsed, 0, task.MemoryRequired) {
				continue
			}
			activeTasks := len(vmInfo.ActiveTasks)

			better := false
			switch {
			case !found:
				better = true
			case priority == simhost.HIGH:
				better = activeTasks < bestTasks || (activeTasks == bestTasks && util < bestUtil)
			default:
				better = activeTasks < bestTasks
			}
			if better {
				bestVM, bestMachine, bestTasks, bestUtil, found = vmID, machineID, activeTasks, util, true
			}
		}
	}
	return bestVM, bestMachine, found
}

// createVMOnHost creates a VM on the first active host with room for
// the task. If there is none, it requests a wake of a sleeping host of
// the right CPU family (and GPU, if needed) and returns Unavailable
// without creating a VM.
func (e *Engine) createVMOnHost(task simhost.TaskInfo, vmkind simhost.VMKind) (simhost.VMID, simhost.MachineID, error) {
	for _, machineID := range e.fleet.AllMachines() {
		info, ok := e.fleet.MachineInfo(machineID)
		if !ok || info.SState != simhost.S0 {
			continue
		}
		if !fleet.Compatible(info, vmkind, task) {
			continue
		}
		if !fleet.MemoryFits(info.MemorySize-info.MemoryUsed, 0, task.MemoryRequired) {
			continue
		}
		return e.createAndAttach(vmkind, task.RequiredCPU, machineID)
	}

	for _, machineID := range e.fleet.MachinesWithCPU(task.RequiredCPU) {
		info, ok := e.fleet.MachineInfo(machineID)
		if !ok || info.SState == simhost.S0 {
			continue
		}
		if task.GPUCapable && !info.HasGPU {
			continue
		}
		e.power.Track(machineID, info.SState)
		if err := e.power.RequestState(machineID, simhost.S0, false); err != nil {
			continue
		}
		return "", "", simhost.Unavailable("waking machine %s for task placement, retry pending", machineID)
	}

	return "", "", simhost.Unavailable("no compatible host available for task placement")
}

func (e *Engine) createAndAttach(vmkind simhost.VMKind, cpu simhost.CPUFamily, machine simhost.MachineID) (simhost.VMID, simhost.MachineID, error) {
	vm, err := e.sim.CreateVM(vmkind, cpu)
	if err != nil {
		return "", "", simhost.Transient("creating vm on %s: %v", machine, err)
	}
	if err := e.sim.AttachVM(vm, machine); err != nil {
		return "", "", simhost.Transient("attaching vm %s to %s: %v", vm, machine, err)
	}
	e.fleet.RegisterVM(vm)
	e.fleet.InvalidateMachine(machine)
	return vm, machine, nil
}

// DrainPending is called from power.Manager's OnStateComplete hook
// once a machine reaches S0: walk the pending high-priority set and
// attempt placement for any task now eligible. The fleet's cached
// snapshot of machine predates the transition that triggered this
// call, so it must be invalidated before any placement attempt reads
// it.
func (e *Engine) DrainPending(now int64, machine simhost.MachineID) {
	e.fleet.InvalidateMachine(machine)
	for _, level := range []simhost.Priority{simhost.HIGH, simhost.MID, simhost.LOW} {
		items := e.pendingHigh.Items(int(level))
		for _, item := range items {
			taskID := item.(simhost.TaskID)
			if err := e.PlaceTask(now, taskID); err == nil {
				e.pendingHigh.Remove(int(level), item)
			}
		}
	}
}

// PendingCount returns the number of tasks currently deferred in the
// pending-high-priority set.
func (e *Engine) PendingCount() int {
	return e.pendingHigh.Size()
}
