package migration

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ayjanu/eec/fleet"
	"github.com/ayjanu/eec/power"
	"github.com/ayjanu/eec/simhost"
)

func activeMachine(id simhost.MachineID, cpu simhost.CPUFamily, used int64) simhost.MachineInfo {
	return simhost.MachineInfo{
		ID:         id,
		CPU:        cpu,
		NumCores:   4,
		MemorySize: 1000,
		MemoryUsed: used,
		SState:     simhost.S0,
	}
}

func buildFleetAndPower(sim simhost.Simulator) (*fleet.Fleet, *power.Manager) {
	f := fleet.New(sim, 1_000_000)
	pm := power.NewManager(sim, nil)
	return f, pm
}

func TestFindTargetPrefersLowestUtilizationActiveMachine(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(2)
	sim.On("MachineAt", 0).Return(simhost.MachineID("busy"))
	sim.On("MachineAt", 1).Return(simhost.MachineID("idle"))
	busy := activeMachine("busy", simhost.X86, 100)
	busy.ActiveTasks = 3
	idle := activeMachine("idle", simhost.X86, 100)
	idle.ActiveTasks = 0
	sim.On("MachineInfo", simhost.MachineID("busy")).Return(busy, nil)
	sim.On("MachineInfo", simhost.MachineID("idle")).Return(idle, nil)

	f, pm := buildFleetAndPower(sim)
	f.Refresh(0, false)
	f.RegisterVM("v0")
	sim.On("VMInfo", simhost.VMID("v0")).Return(simhost.VMInfo{ID: "v0", CPU: simhost.X86, Machine: "source"}, nil)
	f.Refresh(0, true)

	mgr := NewManager(sim, f, pm, 0.8)
	target, kind, err := mgr.FindTarget("v0", "source")
	require.NoError(t, err)
	require.Equal(t, Active, kind)
	require.Equal(t, simhost.MachineID("idle"), target)
}

func TestFindTargetWakesDeepSleepWhenNoActiveFits(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(1)
	sim.On("MachineAt", 0).Return(simhost.MachineID("sleeping"))
	sleeping := activeMachine("sleeping", simhost.X86, 0)
	sleeping.SState = simhost.S5
	sim.On("MachineInfo", simhost.MachineID("sleeping")).Return(sleeping, nil)
	sim.On("SetMachineState", simhost.MachineID("sleeping"), simhost.S0).Return(nil)

	f, pm := buildFleetAndPower(sim)
	f.Refresh(0, false)
	f.RegisterVM("v0")
	sim.On("VMInfo", simhost.VMID("v0")).Return(simhost.VMInfo{ID: "v0", CPU: simhost.X86, Machine: "source"}, nil)
	f.Refresh(0, true)

	mgr := NewManager(sim, f, pm, 0.8)
	target, kind, err := mgr.FindTarget("v0", "source")
	require.NoError(t, err)
	require.Equal(t, Waking, kind)
	require.Equal(t, simhost.MachineID("sleeping"), target)
	require.True(t, pm.IsPending("sleeping"))
}

func TestRoundTripMigrationPreservesSingleOwnership(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(2)
	sim.On("MachineAt", 0).Return(simhost.MachineID("a"))
	sim.On("MachineAt", 1).Return(simhost.MachineID("b"))
	a := activeMachine("a", simhost.X86, 0)
	b := activeMachine("b", simhost.X86, 0)
	sim.On("MachineInfo", simhost.MachineID("a")).Return(a, nil)
	sim.On("MachineInfo", simhost.MachineID("b")).Return(b, nil)
	sim.On("VMInfo", simhost.VMID("v0")).Return(simhost.VMInfo{ID: "v0", CPU: simhost.X86, Machine: "a"}, nil)
	sim.On("MigrateStart", simhost.VMID("v0")).Return(nil)
	sim.On("Migrate", simhost.VMID("v0"), simhost.MachineID("b")).Return(nil)
	sim.On("Migrate", simhost.VMID("v0"), simhost.MachineID("a")).Return(nil)

	f, pm := buildFleetAndPower(sim)
	f.RegisterVM("v0")
	f.Refresh(0, true)

	mgr := NewManager(sim, f, pm, 0.8)

	target, kind, err := mgr.FindTarget("v0", "a")
	require.NoError(t, err)
	require.Equal(t, Active, kind)
	require.Equal(t, simhost.MachineID("b"), target)
	require.NoError(t, mgr.Start("v0", target))
	require.True(t, mgr.IsMigrating("v0"))
	mgr.OnMigrationDone("v0")
	require.False(t, mgr.IsMigrating("v0"))

	target, kind, err = mgr.FindTarget("v0", "b")
	require.NoError(t, err)
	require.Equal(t, Active, kind)
	require.Equal(t, simhost.MachineID("a"), target)
	require.NoError(t, mgr.Start("v0", target))
	mgr.OnMigrationDone("v0")
	require.False(t, mgr.IsMigrating("v0"))

	f.Refresh(0, true)
	require.Equal(t, []simhost.VMID{"v0"}, f.VMsOn("a"))
	require.Empty(t, f.VMsOn("b"))
}

func TestFindTargetRejectsCandidateWithoutHeadroomForRealMemoryNeed(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(2)
	sim.On("MachineAt", 0).Return(simhost.MachineID("tight"))
	sim.On("MachineAt", 1).Return(simhost.MachineID("roomy"))
	tight := activeMachine("tight", simhost.X86, 990)
	roomy := activeMachine("roomy", simhost.X86, 0)
	sim.On("MachineInfo", simhost.MachineID("tight")).Return(tight, nil)
	sim.On("MachineInfo", simhost.MachineID("roomy")).Return(roomy, nil)

	f, pm := buildFleetAndPower(sim)
	f.Refresh(0, false)
	f.RegisterVM("v0")
	sim.On("VMInfo", simhost.VMID("v0")).Return(simhost.VMInfo{
		ID: "v0", CPU: simhost.X86, Machine: "source",
		ActiveTasks: []simhost.TaskID{"t0", "t1"},
	}, nil)
	sim.On("TaskInfo", simhost.TaskID("t0")).Return(simhost.TaskInfo{ID: "t0", MemoryRequired: 400}, nil)
	sim.On("TaskInfo", simhost.TaskID("t1")).Return(simhost.TaskInfo{ID: "t1", MemoryRequired: 400}, nil)
	f.Refresh(0, true)

	mgr := NewManager(sim, f, pm, 0.8)
	target, kind, err := mgr.FindTarget("v0", "source")
	require.NoError(t, err)
	require.Equal(t, Active, kind)
	require.Equal(t, simhost.MachineID("roomy"), target, "tight lacks real headroom for the VM's 800 units of task memory plus overhead even though the VM carries only 2 active tasks")
}

func TestFindTargetSkipsNonGPUCandidateForGPUWorkload(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(2)
	sim.On("MachineAt", 0).Return(simhost.MachineID("no-gpu"))
	sim.On("MachineAt", 1).Return(simhost.MachineID("has-gpu"))
	noGPU := activeMachine("no-gpu", simhost.X86, 0)
	withGPU := activeMachine("has-gpu", simhost.X86, 0)
	withGPU.HasGPU = true
	sim.On("MachineInfo", simhost.MachineID("no-gpu")).Return(noGPU, nil)
	sim.On("MachineInfo", simhost.MachineID("has-gpu")).Return(withGPU, nil)

	f, pm := buildFleetAndPower(sim)
	f.Refresh(0, false)
	f.RegisterVM("v0")
	sim.On("VMInfo", simhost.VMID("v0")).Return(simhost.VMInfo{
		ID: "v0", CPU: simhost.X86, Machine: "source",
		ActiveTasks: []simhost.TaskID{"t0"},
	}, nil)
	sim.On("TaskInfo", simhost.TaskID("t0")).Return(simhost.TaskInfo{ID: "t0", GPUCapable: true}, nil)
	f.Refresh(0, true)

	mgr := NewManager(sim, f, pm, 0.8)
	target, kind, err := mgr.FindTarget("v0", "source")
	require.NoError(t, err)
	require.Equal(t, Active, kind)
	require.Equal(t, simhost.MachineID("has-gpu"), target)
}

func TestStartRejectsDoubleMigration(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MigrateStart", simhost.VMID("v0")).Return(nil)
	sim.On("Migrate", simhost.VMID("v0"), simhost.MachineID("b")).Return(nil)

	f, pm := buildFleetAndPower(sim)
	mgr := NewManager(sim, f, pm, 0.8)

	require.NoError(t, mgr.Start("v0", "b"))
	err := mgr.Start("v0", "b")
	require.Error(t, err)
	require.ErrorIs(t, err, simhost.ErrBusy)
}
