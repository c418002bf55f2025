package control

import (
	log "github.com/sirupsen/logrus"

	"github.com/ayjanu/eec/simhost"
)

// NewTask delegates to the Placement Engine.
func (l *Loop) NewTask(now int64, task simhost.TaskID) {
	if err := l.placement.PlaceTask(now, task); err != nil {
		log.WithError(err).WithField("task", task).Debug("control: new task placement failed")
	}
}

// TaskComplete removes the task from its VM in the simulator, drops
// the VM's cached snapshot, re-runs DVFS on the host, and evacuates
// and sleeps the host if its utilization is zero. The indices and the
// memoized utilization stay as of the last Refresh, so a task placed
// since then is not found in TaskOwner and is ignored here.
func (l *Loop) TaskComplete(now int64, task simhost.TaskID) {
	vm, ok := l.fleet.TaskOwner(task)
	if !ok {
		return
	}
	if err := l.sim.RemoveTask(vm, task); err != nil {
		log.WithError(err).WithField("task", task).Debug("control: removing completed task failed")
	}
	l.fleet.InvalidateVM(vm)
	delete(l.atRisk, task)

	vmInfo, ok := l.fleet.VMInfo(vm)
	if !ok {
		return
	}
	l.applyDVFS(now, vmInfo.Machine)
	if l.fleet.Utilization(vmInfo.Machine) == 0 {
		l.evacuateAndSleep(vmInfo.Machine)
	}
}

// MigrationDone clears the Migration Manager's flag and re-runs DVFS
// on both the source and destination machines.
func (l *Loop) MigrationDone(now int64, vm simhost.VMID) {
	var source simhost.MachineID
	if before, ok := l.fleet.VMInfo(vm); ok {
		source = before.Machine
	}
	l.migration.OnMigrationDone(vm)
	vmInfo, ok := l.fleet.VMInfo(vm)
	if !ok {
		return
	}
	l.applyDVFS(now, vmInfo.Machine)
	if source != "" && source != vmInfo.Machine {
		l.applyDVFS(now, source)
	}
}

// StateChangeDone clears the Power Manager's pending flag, and if the
// machine reached S0, drains the pending-high-priority set.
func (l *Loop) StateChangeDone(now int64, machine simhost.MachineID) {
	l.power.OnStateComplete(machine)
}

// SLAWarning is an immediate, focused version of the periodic at-risk
// scan for a single task.
func (l *Loop) SLAWarning(now int64, task simhost.TaskID) {
	vm, ok := l.fleet.TaskOwner(task)
	if !ok {
		return
	}
	vmInfo, ok := l.fleet.VMInfo(vm)
	if !ok {
		return
	}
	machine := vmInfo.Machine

	info, err := l.sim.TaskInfo(task)
	if err != nil {
		log.WithError(err).WithField("task", task).Debug("control: sla warning task lookup failed")
		return
	}

	l.atRisk[task] = struct{}{}
	l.forceP0(machine)

	// Priority promotion is SLA-gated, unlike the periodic scan's
	// unconditional HIGH promotion: SLA0/SLA1 pin to HIGH and may
	// trigger an overload migration, SLA2 only rises to MID, and SLA3
	// is record-only — l.atRisk above already did the recording.
	switch info.SLA {
	case simhost.SLA0, simhost.SLA1:
		if err := l.sim.SetTaskPriority(task, simhost.HIGH); err != nil {
			log.WithError(err).WithField("task", task).Debug("control: sla warning priority promotion failed")
		}
		machineInfo, ok := l.fleet.MachineInfo(machine)
		if ok && machineInfo.ActiveTasks > 2*machineInfo.NumCores {
			if err := l.migration.MigrateFromOverloaded(machine); err != nil {
				log.WithError(err).WithField("machine", machine).Debug("control: sla warning migration attempt failed")
			}
		}
	case simhost.SLA2:
		if err := l.sim.SetTaskPriority(task, simhost.MID); err != nil {
			log.WithError(err).WithField("task", task).Debug("control: sla warning priority bump failed")
		}
	}
}

// MemoryWarning delegates to the Migration Manager's pressure
// reaction.
func (l *Loop) MemoryWarning(now int64, machine simhost.MachineID) {
	if err := l.migration.MemoryWarning(machine); err != nil {
		log.WithError(err).WithField("machine", machine).Debug("control: memory warning reaction found no target")
	}
}
