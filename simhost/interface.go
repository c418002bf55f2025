package simhost

// Simulator is the set of outbound primitives the scheduler core calls
// into its host discrete-event simulator. A concrete simulator (or a
// test double) implements this; the core never depends on one directly.
//
// Any method may return a wrapped ErrTransient to signal that the query
// or command failed for this one entity only; the core treats that as
// "not eligible this tick" and moves on to the next candidate.
type Simulator interface {
	// Machines. MachineTotal/MachineAt let the core enumerate every
	// machine the simulator knows about without assuming anything
	// about the shape of MachineID: MachineAt(i) for i in
	// [0, MachineTotal()) yields the i'th machine's id once, at
	// startup and on demand, mirroring how the original simulator
	// hands out machines by positional index.
	MachineTotal() int
	MachineAt(i int) MachineID
	MachineInfo(m MachineID) (MachineInfo, error)
	MachineCPU(m MachineID) (CPUFamily, error)
	MachineEnergy(m MachineID) (float64, error)
	SetMachineState(m MachineID, s SState) error
	SetCorePerf(m MachineID, core int, p PState) error

	// VMs.
	CreateVM(kind VMKind, cpu CPUFamily) (VMID, error)
	AttachVM(vm VMID, m MachineID) error
	VMInfo(vm VMID) (VMInfo, error)
	AddTask(vm VMID, task TaskID, priority Priority) error
	RemoveTask(vm VMID, task TaskID) error
	MigrateStart(vm VMID) error
	Migrate(vm VMID, target MachineID) error
	IsPendingMigration(vm VMID) (bool, error)
	ShutdownVM(vm VMID) error

	// Tasks.
	TaskInfo(t TaskID) (TaskInfo, error)
	RemainingInstructions(t TaskID) (uint64, error)
	SetTaskPriority(t TaskID, priority Priority) error

	// Cluster-wide.
	ClusterEnergy() (float64, error)
	SLAReport(sla SLAClass) (float64, error)
	Now() int64
	Log(message string, verbosity int)
}

// EventHandler is the set of inbound callbacks a host simulator invokes
// on the scheduler core. scheduler.Scheduler implements this interface;
// the simulator (or simharness, for the demo/test driver) is the only
// caller.
type EventHandler interface {
	Init() error
	NewTask(now int64, task TaskID)
	TaskComplete(now int64, task TaskID)
	PeriodicCheck(now int64)
	MigrationDone(now int64, vm VMID)
	StateChangeDone(now int64, m MachineID)
	MemoryWarning(now int64, m MachineID)
	SLAWarning(now int64, task TaskID)
	SimulationComplete(now int64)
}
