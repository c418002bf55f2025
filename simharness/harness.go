package simharness

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ayjanu/eec/simhost"
)

// powerDraw is the watt figure simharness charges per P-state while a
// machine sits in S0. Sleep states draw nothing in this model.
var powerDraw = map[simhost.PState]float64{
	simhost.P0: 150,
	simhost.P1: 100,
	simhost.P2: 60,
	simhost.P3: 30,
}

// Harness is a reference simhost.Simulator: a discrete-event
// simulation of machines, VMs, and tasks on a virtual clock. It is
// not safe for concurrent use — Run drives it from a single goroutine,
// matching the scheduler core's own single-threaded assumption.
type Harness struct {
	now    int64
	seq    int64
	events *eventQueue

	machines     map[simhost.MachineID]*machine
	machineOrder []simhost.MachineID
	vms          map[simhost.VMID]*vmRecord
	tasks        map[simhost.TaskID]*taskRecord

	vmSeq int

	pendingState       map[simhost.MachineID]bool
	pendingTargetState map[simhost.MachineID]simhost.SState
	migrationTarget    map[simhost.VMID]simhost.MachineID
	warnedMemory       map[simhost.MachineID]bool

	slaTotal      map[simhost.SLAClass]int
	slaViolations map[simhost.SLAClass]int

	periodicInterval    int64
	stateDelay          int64
	migrateDelay        int64
	memoryWarnThreshold float64
}

// New builds an empty Harness. periodicInterval, stateDelay, and
// migrateDelay are all in virtual microseconds.
func New(periodicInterval, stateDelay, migrateDelay int64) *Harness {
	return &Harness{
		events:              newEventQueue(),
		machines:            make(map[simhost.MachineID]*machine),
		vms:                 make(map[simhost.VMID]*vmRecord),
		tasks:               make(map[simhost.TaskID]*taskRecord),
		pendingState:        make(map[simhost.MachineID]bool),
		pendingTargetState:  make(map[simhost.MachineID]simhost.SState),
		migrationTarget:     make(map[simhost.VMID]simhost.MachineID),
		warnedMemory:        make(map[simhost.MachineID]bool),
		slaTotal:            make(map[simhost.SLAClass]int),
		slaViolations:       make(map[simhost.SLAClass]int),
		periodicInterval:    periodicInterval,
		stateDelay:          stateDelay,
		migrateDelay:        migrateDelay,
		memoryWarnThreshold: 0.9,
	}
}

func (h *Harness) scheduleAt(at int64, k kind, task, vm, machineID string, gen int64) {
	h.seq++
	h.events.schedule(&event{at: at, seq: h.seq, kind: k, task: task, vm: vm, machine: machineID, gen: gen})
}

// Run drives handler's Init, then every scheduled event in virtual-
// time order, up to and including the simulation-complete event at
// horizon.
func (h *Harness) Run(handler simhost.EventHandler, horizon int64) error {
	if err := handler.Init(); err != nil {
		return err
	}
	return h.Drain(handler, horizon)
}

// Drain runs every scheduled event in virtual-time order, up to and
// including the simulation-complete event at horizon, without calling
// handler.Init first. For tests that already called Init and then
// hand-built state before letting the event queue take over.
func (h *Harness) Drain(handler simhost.EventHandler, horizon int64) error {
	if h.periodicInterval > 0 {
		h.scheduleAt(h.periodicInterval, kindPeriodicCheck, "", "", "", 0)
	}
	h.scheduleAt(horizon, kindSimulationComplete, "", "", "", 0)

	for {
		e, ok := h.events.popReady()
		if !ok {
			return nil
		}
		h.now = e.at

		switch e.kind {
		case kindTaskArrival:
			handler.NewTask(h.now, simhost.TaskID(e.task))
		case kindTaskComplete:
			h.fireTaskComplete(e, handler)
		case kindPeriodicCheck:
			handler.PeriodicCheck(h.now)
			if h.now+h.periodicInterval <= horizon {
				h.scheduleAt(h.now+h.periodicInterval, kindPeriodicCheck, "", "", "", 0)
			}
		case kindMigrationDone:
			h.fireMigrationDone(e, handler)
		case kindStateChangeDone:
			h.fireStateChangeDone(e, handler)
		case kindMemoryWarning:
			handler.MemoryWarning(h.now, simhost.MachineID(e.machine))
		case kindSLAWarning:
			handler.SLAWarning(h.now, simhost.TaskID(e.task))
		case kindSimulationComplete:
			handler.SimulationComplete(h.now)
			return nil
		}
	}
}

func (h *Harness) fireTaskComplete(e *event, handler simhost.EventHandler) {
	tr, ok := h.tasks[simhost.TaskID(e.task)]
	if !ok || tr.completed || tr.gen != e.gen {
		return
	}
	v, ok := h.vms[tr.vm]
	if !ok {
		return
	}
	h.sync(v.machine)
	tr.completed = true
	tr.lastProgress = h.now

	h.slaTotal[tr.sla]++
	if h.now > tr.targetCompletion {
		h.slaViolations[tr.sla]++
	}
	h.reschedule(v.machine)
	handler.TaskComplete(h.now, tr.id)
}

func (h *Harness) fireMigrationDone(e *event, handler simhost.EventHandler) {
	vmID := simhost.VMID(e.vm)
	v, ok := h.vms[vmID]
	if !ok {
		return
	}
	target, ok := h.migrationTarget[vmID]
	if !ok {
		return
	}
	delete(h.migrationTarget, vmID)

	src := v.machine
	if src != "" {
		h.sync(src)
		h.removeVMFromMachine(src, vmID)
		h.reschedule(src)
	}
	v.machine = target
	v.migrating = false
	if mach, ok := h.machines[target]; ok {
		mach.vms = append(mach.vms, vmID)
	}
	h.sync(target)
	for _, t := range v.tasks {
		if tr, ok := h.tasks[t]; ok {
			tr.lastProgress = h.now
		}
	}
	h.reschedule(target)
	handler.MigrationDone(h.now, vmID)
}

func (h *Harness) fireStateChangeDone(e *event, handler simhost.EventHandler) {
	m := simhost.MachineID(e.machine)
	mach, ok := h.machines[m]
	if !ok || !h.pendingState[m] {
		return
	}
	target := h.pendingTargetState[m]
	delete(h.pendingState, m)
	delete(h.pendingTargetState, m)

	h.sync(m)
	mach.sstate = target
	mach.lastTick = h.now
	handler.StateChangeDone(h.now, m)
}

func (h *Harness) removeVMFromMachine(m simhost.MachineID, vm simhost.VMID) {
	mach, ok := h.machines[m]
	if !ok {
		return
	}
	for i, id := range mach.vms {
		if id == vm {
			mach.vms = append(mach.vms[:i], mach.vms[i+1:]...)
			return
		}
	}
}

// sync accounts elapsed virtual time against machine m's energy and
// its resident tasks' remaining instructions, at the rate implied by
// its current P-state and active task count. It must run before any
// change to that rate (task count or P-state) and before any query
// that reads task/energy state, so every interval is charged at the
// rate that actually applied during it.
func (h *Harness) sync(m simhost.MachineID) {
	mach, ok := h.machines[m]
	if !ok {
		return
	}
	elapsed := h.now - mach.lastTick
	if elapsed < 0 {
		elapsed = 0
	}
	if mach.sstate == simhost.S0 && elapsed > 0 {
		hours := float64(elapsed) / 3.6e9
		mach.energy += powerDraw[mach.pstate] / 1000 * hours
	}

	active := h.activeTasksOn(mach)
	if len(active) > 0 && elapsed > 0 {
		rate := mach.mips[mach.pstate] * float64(mach.numCores) / float64(len(active))
		done := uint64(rate * float64(elapsed))
		for _, tr := range active {
			if done >= tr.remainingInstructions {
				tr.remainingInstructions = 0
			} else {
				tr.remainingInstructions -= done
			}
			tr.lastProgress = h.now
		}
	}
	mach.lastTick = h.now
}

// reschedule recomputes completion times (and at-risk SLA warnings)
// for every active task on m, bumping each task's generation so any
// already-scheduled completion event for it is recognized as stale.
func (h *Harness) reschedule(m simhost.MachineID) {
	mach, ok := h.machines[m]
	if !ok {
		return
	}
	active := h.activeTasksOn(mach)
	if len(active) == 0 {
		return
	}
	rate := mach.mips[mach.pstate] * float64(mach.numCores) / float64(len(active))
	for _, tr := range active {
		tr.gen++
		if rate <= 0 || tr.remainingInstructions == 0 {
			continue
		}
		delay := int64(float64(tr.remainingInstructions)/rate + 0.5)
		if delay < 1 {
			delay = 1
		}
		h.scheduleAt(h.now+delay, kindTaskComplete, string(tr.id), string(tr.vm), string(m), tr.gen)

		if !tr.slaWarned && h.now+delay > tr.targetCompletion {
			tr.slaWarned = true
			h.scheduleAt(h.now, kindSLAWarning, string(tr.id), "", "", 0)
		}
	}
}

func (h *Harness) activeTasksOn(mach *machine) []*taskRecord {
	var out []*taskRecord
	for _, vmID := range mach.vms {
		v, ok := h.vms[vmID]
		if !ok {
			continue
		}
		for _, tID := range v.tasks {
			if tr, ok := h.tasks[tID]; ok && !tr.completed {
				out = append(out, tr)
			}
		}
	}
	return out
}

func (h *Harness) memoryUsed(mach *machine) int64 {
	var used int64
	for _, vmID := range mach.vms {
		v, ok := h.vms[vmID]
		if !ok {
			continue
		}
		for _, tID := range v.tasks {
			if tr, ok := h.tasks[tID]; ok && !tr.completed {
				used += tr.memoryRequired
			}
		}
	}
	return used
}

// --- simhost.Simulator ---

func (h *Harness) MachineTotal() int { return len(h.machineOrder) }

func (h *Harness) MachineAt(i int) simhost.MachineID { return h.machineOrder[i] }

func (h *Harness) MachineInfo(m simhost.MachineID) (simhost.MachineInfo, error) {
	mach, ok := h.machines[m]
	if !ok {
		return simhost.MachineInfo{}, simhost.Transient("simharness: unknown machine %s", m)
	}
	h.sync(m)
	return simhost.MachineInfo{
		ID: mach.id, CPU: mach.cpu, NumCores: mach.numCores,
		MemorySize: mach.memory, MemoryUsed: h.memoryUsed(mach), HasGPU: mach.hasGPU,
		SState: mach.sstate, PState: mach.pstate, MIPS: mach.mips,
		ActiveTasks: len(h.activeTasksOn(mach)),
	}, nil
}

func (h *Harness) MachineCPU(m simhost.MachineID) (simhost.CPUFamily, error) {
	mach, ok := h.machines[m]
	if !ok {
		return simhost.CPUUnknown, simhost.Transient("simharness: unknown machine %s", m)
	}
	return mach.cpu, nil
}

func (h *Harness) MachineEnergy(m simhost.MachineID) (float64, error) {
	mach, ok := h.machines[m]
	if !ok {
		return 0, simhost.Transient("simharness: unknown machine %s", m)
	}
	h.sync(m)
	return mach.energy, nil
}

func (h *Harness) SetMachineState(m simhost.MachineID, s simhost.SState) error {
	mach, ok := h.machines[m]
	if !ok {
		return simhost.Transient("simharness: unknown machine %s", m)
	}
	if h.pendingState[m] {
		return simhost.Busy("simharness: machine %s has a state change already pending", m)
	}
	h.sync(m)
	if s > simhost.S0 && len(h.activeTasksOn(mach)) > 0 {
		return simhost.Fatal("simharness: refusing to sleep machine %s while it hosts active tasks", m)
	}
	h.pendingState[m] = true
	h.pendingTargetState[m] = s
	h.scheduleAt(h.now+h.stateDelay, kindStateChangeDone, "", "", string(m), 0)
	return nil
}

func (h *Harness) SetCorePerf(m simhost.MachineID, core int, p simhost.PState) error {
	mach, ok := h.machines[m]
	if !ok {
		return simhost.Transient("simharness: unknown machine %s", m)
	}
	if core < 0 || core >= mach.numCores {
		return simhost.Transient("simharness: machine %s has no core %d", m, core)
	}
	h.sync(m)
	mach.pstate = p
	h.reschedule(m)
	return nil
}

func (h *Harness) CreateVM(kind simhost.VMKind, cpu simhost.CPUFamily) (simhost.VMID, error) {
	h.vmSeq++
	vmID := simhost.VMID(fmt.Sprintf("vm-%d", h.vmSeq))
	h.vms[vmID] = &vmRecord{id: vmID, kind: kind, cpu: cpu}
	return vmID, nil
}

func (h *Harness) AttachVM(vm simhost.VMID, m simhost.MachineID) error {
	v, ok := h.vms[vm]
	if !ok {
		return simhost.Transient("simharness: unknown vm %s", vm)
	}
	mach, ok := h.machines[m]
	if !ok {
		return simhost.Transient("simharness: unknown machine %s", m)
	}
	v.machine = m
	mach.vms = append(mach.vms, vm)
	return nil
}

func (h *Harness) VMInfo(vm simhost.VMID) (simhost.VMInfo, error) {
	v, ok := h.vms[vm]
	if !ok {
		return simhost.VMInfo{}, simhost.Transient("simharness: unknown vm %s", vm)
	}
	if v.machine != "" {
		h.sync(v.machine)
	}
	var tasks []simhost.TaskID
	for _, t := range v.tasks {
		if tr, ok := h.tasks[t]; ok && !tr.completed {
			tasks = append(tasks, t)
		}
	}
	return simhost.VMInfo{
		ID: v.id, Kind: v.kind, CPU: v.cpu, Machine: v.machine,
		Migrating: v.migrating, ActiveTasks: tasks,
	}, nil
}

func (h *Harness) AddTask(vm simhost.VMID, task simhost.TaskID, priority simhost.Priority) error {
	v, ok := h.vms[vm]
	if !ok {
		return simhost.Transient("simharness: unknown vm %s", vm)
	}
	if v.machine == "" {
		return simhost.Unavailable("simharness: vm %s is not attached to a machine", vm)
	}
	tr, ok := h.tasks[task]
	if !ok {
		return simhost.Transient("simharness: unknown task %s", task)
	}
	h.sync(v.machine)
	v.tasks = append(v.tasks, task)
	tr.vm = vm
	tr.priority = priority
	tr.lastProgress = h.now
	h.reschedule(v.machine)

	if mach, ok := h.machines[v.machine]; ok && mach.memory > 0 && !h.warnedMemory[v.machine] {
		if float64(h.memoryUsed(mach))/float64(mach.memory) >= h.memoryWarnThreshold {
			h.warnedMemory[v.machine] = true
			h.scheduleAt(h.now, kindMemoryWarning, "", "", string(v.machine), 0)
		}
	}
	return nil
}

func (h *Harness) RemoveTask(vm simhost.VMID, task simhost.TaskID) error {
	v, ok := h.vms[vm]
	if !ok {
		return simhost.Transient("simharness: unknown vm %s", vm)
	}
	for i, t := range v.tasks {
		if t == task {
			v.tasks = append(v.tasks[:i], v.tasks[i+1:]...)
			break
		}
	}
	if v.machine != "" {
		h.sync(v.machine)
		h.reschedule(v.machine)
		if mach, ok := h.machines[v.machine]; ok && mach.memory > 0 {
			if float64(h.memoryUsed(mach))/float64(mach.memory) < h.memoryWarnThreshold {
				h.warnedMemory[v.machine] = false
			}
		}
	}
	return nil
}

func (h *Harness) MigrateStart(vm simhost.VMID) error {
	v, ok := h.vms[vm]
	if !ok {
		return simhost.Transient("simharness: unknown vm %s", vm)
	}
	v.migrating = true
	return nil
}

func (h *Harness) Migrate(vm simhost.VMID, target simhost.MachineID) error {
	if _, ok := h.vms[vm]; !ok {
		return simhost.Transient("simharness: unknown vm %s", vm)
	}
	if _, ok := h.machines[target]; !ok {
		return simhost.Transient("simharness: unknown machine %s", target)
	}
	h.migrationTarget[vm] = target
	h.scheduleAt(h.now+h.migrateDelay, kindMigrationDone, "", string(vm), "", 0)
	return nil
}

func (h *Harness) IsPendingMigration(vm simhost.VMID) (bool, error) {
	v, ok := h.vms[vm]
	if !ok {
		return false, simhost.Transient("simharness: unknown vm %s", vm)
	}
	return v.migrating, nil
}

func (h *Harness) ShutdownVM(vm simhost.VMID) error {
	v, ok := h.vms[vm]
	if !ok {
		return nil
	}
	if v.machine != "" {
		h.sync(v.machine)
		h.removeVMFromMachine(v.machine, vm)
	}
	delete(h.vms, vm)
	return nil
}

func (h *Harness) TaskInfo(t simhost.TaskID) (simhost.TaskInfo, error) {
	tr, ok := h.tasks[t]
	if !ok {
		return simhost.TaskInfo{}, simhost.Transient("simharness: unknown task %s", t)
	}
	if v, ok := h.vms[tr.vm]; ok && v.machine != "" {
		h.sync(v.machine)
	}
	return simhost.TaskInfo{
		ID: tr.id, RequiredCPU: tr.requiredCPU, RequiredVMKind: tr.requiredVMKind,
		GPUCapable: tr.gpuCapable, MemoryRequired: tr.memoryRequired, SLA: tr.sla,
		TargetCompletion: tr.targetCompletion, TotalInstructions: tr.totalInstructions,
		RemainingInstructions: tr.remainingInstructions,
	}, nil
}

func (h *Harness) RemainingInstructions(t simhost.TaskID) (uint64, error) {
	info, err := h.TaskInfo(t)
	if err != nil {
		return 0, err
	}
	return info.RemainingInstructions, nil
}

func (h *Harness) SetTaskPriority(t simhost.TaskID, priority simhost.Priority) error {
	tr, ok := h.tasks[t]
	if !ok {
		return simhost.Transient("simharness: unknown task %s", t)
	}
	tr.priority = priority
	return nil
}

func (h *Harness) ClusterEnergy() (float64, error) {
	total := 0.0
	for id, mach := range h.machines {
		h.sync(id)
		total += mach.energy
	}
	return total, nil
}

func (h *Harness) SLAReport(sla simhost.SLAClass) (float64, error) {
	total := h.slaTotal[sla]
	if total == 0 {
		return 0, nil
	}
	return float64(h.slaViolations[sla]) / float64(total) * 100, nil
}

func (h *Harness) Now() int64 { return h.now }

func (h *Harness) Log(message string, verbosity int) {
	if verbosity > 0 {
		log.WithField("verbosity", verbosity).Debug(message)
		return
	}
	log.Info(message)
}
