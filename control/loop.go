// Package control runs the periodic tick and event callbacks that
// detect overload/underload, react to SLA risk, and run consolidation,
// per the scheduler's control-loop contract.
package control

import (
	log "github.com/sirupsen/logrus"

	"github.com/ayjanu/eec/fleet"
	"github.com/ayjanu/eec/migration"
	"github.com/ayjanu/eec/placement"
	"github.com/ayjanu/eec/power"
	"github.com/ayjanu/eec/simhost"
)

// Config carries the thresholds the Loop needs beyond what each
// component already owns.
type Config struct {
	HighWatermark            float64
	LowWatermark             float64
	ConsolidationInterval    int64 // microseconds
	MinActiveMachines        int
	SLAFactor                func(simhost.SLAClass) float64
	ConsolidationTargetState simhost.SState
}

// Loop wires the four components together and implements the
// periodic tick and event callbacks.
type Loop struct {
	sim       simhost.Simulator
	fleet     *fleet.Fleet
	power     *power.Manager
	migration *migration.Manager
	placement *placement.Engine

	cfg Config

	lastConsolidation int64
	everConsolidated  bool

	atRisk map[simhost.TaskID]struct{}
}

// NewLoop builds a Loop wired to the given components.
func NewLoop(sim simhost.Simulator, f *fleet.Fleet, pm *power.Manager, mm *migration.Manager, pe *placement.Engine, cfg Config) *Loop {
	return &Loop{
		sim:       sim,
		fleet:     f,
		power:     pm,
		migration: mm,
		placement: pe,
		cfg:       cfg,
		atRisk:    make(map[simhost.TaskID]struct{}),
	}
}

// Check implements the periodic tick: refresh, DVFS, SLA-risk scan,
// overload reaction, gated consolidation.
func (l *Loop) Check(now int64) {
	l.fleet.Refresh(now, false)

	for _, machine := range l.fleet.ActiveMachines() {
		l.applyDVFS(now, machine)
	}

	l.scanSLARisk(now)

	for _, machine := range l.fleet.ActiveMachines() {
		if l.fleet.Utilization(machine) > l.cfg.HighWatermark {
			if err := l.migration.MigrateFromOverloaded(machine); err != nil {
				log.WithError(err).WithField("machine", machine).Debug("control: overload reaction found no target")
			}
		}
	}

	if l.shouldConsolidate(now) {
		l.consolidate(now)
		l.lastConsolidation = now
		l.everConsolidated = true
	}
}

func (l *Loop) shouldConsolidate(now int64) bool {
	return !l.everConsolidated || now-l.lastConsolidation >= l.cfg.ConsolidationInterval
}

func (l *Loop) applyDVFS(now int64, machine simhost.MachineID) {
	info, ok := l.fleet.MachineInfo(machine)
	if !ok {
		return
	}
	hasCritical, computeHeavy, atRisk := false, false, false
	for _, vm := range l.fleet.VMsOn(machine) {
		vmInfo, ok := l.fleet.VMInfo(vm)
		if !ok {
			continue
		}
		for _, taskID := range vmInfo.ActiveTasks {
			if _, risky := l.atRisk[taskID]; risky {
				atRisk = true
			}
			task, err := l.sim.TaskInfo(taskID)
			if err != nil {
				continue
			}
			if task.SLA == simhost.SLA0 || task.SLA == simhost.SLA1 {
				hasCritical = true
			}
			if task.TotalInstructions > 0 && task.RequiredCPU == info.CPU {
				computeHeavy = computeHeavy || task.TotalInstructions > task.RemainingInstructions
			}
		}
	}
	util := l.fleet.Utilization(machine)
	target := power.TargetPState(util, hasCritical, computeHeavy, atRisk)
	if err := l.power.SetPerf(machine, target); err != nil {
		log.WithError(err).WithField("machine", machine).Debug("control: dvfs perf change failed")
	}
}

// scanSLARisk implements step 4: a task is at risk iff the MIPS it
// needs to hit its deadline exceeds its current host's MIPS budget
// times the per-SLA safety factor.
func (l *Loop) scanSLARisk(now int64) {
	newRisk := make(map[simhost.TaskID]struct{})
	for _, machine := range l.fleet.ActiveMachines() {
		info, ok := l.fleet.MachineInfo(machine)
		if !ok {
			continue
		}
		currentMIPS := info.MIPS[info.PState]

		for _, vm := range l.fleet.VMsOn(machine) {
			vmInfo, ok := l.fleet.VMInfo(vm)
			if !ok {
				continue
			}
			for _, taskID := range vmInfo.ActiveTasks {
				task, err := l.sim.TaskInfo(taskID)
				if err != nil {
					continue
				}
				headroom := task.TargetCompletion - now
				if headroom <= 0 {
					newRisk[taskID] = struct{}{}
					l.handleAtRisk(now, taskID, machine)
					continue
				}
				requiredMIPS := float64(task.RemainingInstructions) / float64(headroom)
				factor := 1.0
				if l.cfg.SLAFactor != nil {
					factor = l.cfg.SLAFactor(task.SLA)
				}
				if requiredMIPS > currentMIPS*factor {
					newRisk[taskID] = struct{}{}
					l.handleAtRisk(now, taskID, machine)
				}
			}
		}
	}
	l.atRisk = newRisk
}

// handleAtRisk implements step 4's "for any at-risk task, boost its
// host to P0 and promote the task to HIGH" — used as-is by the
// periodic scan. The sla_warning event callback has its own,
// SLA-gated version of the priority half; see SLAWarning in events.go.
func (l *Loop) handleAtRisk(now int64, task simhost.TaskID, machine simhost.MachineID) {
	l.forceP0(machine)
	if err := l.sim.SetTaskPriority(task, simhost.HIGH); err != nil {
		log.WithError(err).WithField("task", task).Debug("control: failed to promote at-risk task priority")
	}
}

// forceP0 boosts machine to maximum performance, unconditionally.
func (l *Loop) forceP0(machine simhost.MachineID) {
	if err := l.power.SetPerf(machine, simhost.P0); err != nil {
		log.WithError(err).WithField("machine", machine).Debug("control: failed to force P0 for at-risk task")
	}
}

// consolidate implements step 6: sort active machines ascending by
// utilization, evacuate and sleep those below the low watermark that
// hold no critical work, respecting the MinActiveMachines floor.
func (l *Loop) consolidate(now int64) {
	candidates := l.consolidationCandidates()
	active := len(l.fleet.ActiveMachines())
	for _, machine := range candidates {
		if active-1 < l.cfg.MinActiveMachines {
			return
		}
		l.evacuateAndSleep(machine)
		if l.power.IsPending(machine) {
			active--
		}
	}
}

func (l *Loop) consolidationCandidates() []simhost.MachineID {
	active := l.fleet.ActiveMachines()
	var eligible []simhost.MachineID
	for _, machine := range active {
		if l.fleet.Utilization(machine) >= l.cfg.LowWatermark {
			continue
		}
		if l.hasCriticalWork(machine) || l.hasMigratingVM(machine) {
			continue
		}
		if l.wouldStrandTaskClass(machine) {
			continue
		}
		eligible = append(eligible, machine)
	}
	sortByUtilizationAscending(l.fleet, eligible)
	return eligible
}

// wouldStrandTaskClass reports whether sleeping machine would leave
// its CPU family, or (if it offers GPU) the GPU-requiring tasks of
// that CPU family, with no remaining eligible host: no other machine
// of that class either already S0 or waking.
func (l *Loop) wouldStrandTaskClass(machine simhost.MachineID) bool {
	info, ok := l.fleet.MachineInfo(machine)
	if !ok {
		return false
	}
	if !l.hasOtherEligibleHost(machine, info.CPU, false) {
		return true
	}
	if info.HasGPU && !l.hasOtherEligibleHost(machine, info.CPU, true) {
		return true
	}
	return false
}

func (l *Loop) hasOtherEligibleHost(exclude simhost.MachineID, cpu simhost.CPUFamily, requireGPU bool) bool {
	for _, candidate := range l.fleet.MachinesWithCPU(cpu) {
		if candidate == exclude {
			continue
		}
		info, ok := l.fleet.MachineInfo(candidate)
		if !ok {
			continue
		}
		if requireGPU && !info.HasGPU {
			continue
		}
		if l.fleet.IsActive(candidate) || l.power.IsWaking(candidate) {
			return true
		}
	}
	return false
}

func (l *Loop) hasCriticalWork(machine simhost.MachineID) bool {
	for _, vm := range l.fleet.VMsOn(machine) {
		vmInfo, ok := l.fleet.VMInfo(vm)
		if !ok {
			continue
		}
		for _, taskID := range vmInfo.ActiveTasks {
			task, err := l.sim.TaskInfo(taskID)
			if err != nil {
				continue
			}
			if task.SLA == simhost.SLA0 || task.SLA == simhost.SLA1 {
				return true
			}
		}
	}
	return false
}

func (l *Loop) hasMigratingVM(machine simhost.MachineID) bool {
	for _, vm := range l.fleet.VMsOn(machine) {
		if l.migration.IsMigrating(vm) {
			return true
		}
	}
	return false
}

func (l *Loop) evacuateAndSleep(machine simhost.MachineID) {
	for _, vm := range l.fleet.VMsOn(machine) {
		if l.migration.IsMigrating(vm) {
			continue
		}
		vmInfo, ok := l.fleet.VMInfo(vm)
		if !ok || len(vmInfo.ActiveTasks) == 0 {
			continue
		}
		target, kind, err := l.migration.FindTarget(vm, machine)
		if err != nil || kind == migration.None {
			continue
		}
		if kind == migration.Waking {
			return
		}
		if err := l.migration.Start(vm, target); err != nil {
			log.WithError(err).WithField("vm", vm).Debug("control: consolidation migration failed to start")
		}
	}

	info, ok := l.fleet.MachineInfo(machine)
	if !ok || info.ActiveTasks != 0 {
		return
	}
	if err := l.power.RequestState(machine, l.cfg.ConsolidationTargetState, false); err != nil {
		log.WithError(err).WithField("machine", machine).Debug("control: consolidation sleep request failed")
	}
}

func sortByUtilizationAscending(f *fleet.Fleet, machines []simhost.MachineID) {
	for i := 1; i < len(machines); i++ {
		j := i
		for j > 0 && f.Utilization(machines[j-1]) > f.Utilization(machines[j]) {
			machines[j-1], machines[j] = machines[j], machines[j-1]
			j--
		}
	}
}
