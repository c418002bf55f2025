package fleet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ayjanu/eec/simhost"
)

func machine(id simhost.MachineID, cpu simhost.CPUFamily, state simhost.SState) simhost.MachineInfo {
	return simhost.MachineInfo{
		ID:       id,
		CPU:      cpu,
		NumCores: 4,
		SState:   state,
	}
}

func TestRefreshBuildsMachineIndices(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(2)
	sim.On("MachineAt", 0).Return(simhost.MachineID("m0"))
	sim.On("MachineAt", 1).Return(simhost.MachineID("m1"))
	sim.On("MachineInfo", simhost.MachineID("m0")).Return(machine("m0", simhost.X86, simhost.S0), nil)
	sim.On("MachineInfo", simhost.MachineID("m1")).Return(machine("m1", simhost.ARM, simhost.S3), nil)

	f := New(sim, 1_000_000)
	f.Refresh(0, false)

	require.ElementsMatch(t, []simhost.MachineID{"m0"}, f.ActiveMachines())
	require.ElementsMatch(t, []simhost.MachineID{"m0"}, f.MachinesWithCPU(simhost.X86))
	require.ElementsMatch(t, []simhost.MachineID{"m1"}, f.MachinesWithCPU(simhost.ARM))
	require.True(t, f.IsActive("m0"))
	require.False(t, f.IsActive("m1"))
}

func TestRefreshSwallowsTransientMachineErrors(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(2)
	sim.On("MachineAt", 0).Return(simhost.MachineID("m0"))
	sim.On("MachineAt", 1).Return(simhost.MachineID("m1"))
	sim.On("MachineInfo", simhost.MachineID("m0")).Return(machine("m0", simhost.X86, simhost.S0), nil)
	sim.On("MachineInfo", simhost.MachineID("m1")).Return(simhost.MachineInfo{}, simhost.Transient("offline"))

	f := New(sim, 1_000_000)
	f.Refresh(0, false)

	require.ElementsMatch(t, []simhost.MachineID{"m0"}, f.AllMachines())
}

func TestRefreshIsThrottledWithinInterval(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(1)
	sim.On("MachineAt", 0).Return(simhost.MachineID("m0"))
	sim.On("MachineInfo", simhost.MachineID("m0")).Return(machine("m0", simhost.X86, simhost.S0), nil).Once()

	f := New(sim, 1_000_000)
	f.Refresh(0, false)
	f.Refresh(500_000, false) // inside the window, should not re-query

	sim.AssertExpectations(t)
}

func TestRefreshForceBypassesThrottle(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(1)
	sim.On("MachineAt", 0).Return(simhost.MachineID("m0"))
	sim.On("MachineInfo", simhost.MachineID("m0")).Return(machine("m0", simhost.X86, simhost.S0), nil).Twice()

	f := New(sim, 1_000_000)
	f.Refresh(0, false)
	f.Refresh(500_000, true)

	sim.AssertExpectations(t)
}

func TestVMsOnAndTaskOwner(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(1)
	sim.On("MachineAt", 0).Return(simhost.MachineID("m0"))
	sim.On("MachineInfo", simhost.MachineID("m0")).Return(machine("m0", simhost.X86, simhost.S0), nil)
	sim.On("VMInfo", simhost.VMID("v0")).Return(simhost.VMInfo{
		ID:          "v0",
		Machine:     "m0",
		ActiveTasks: []simhost.TaskID{"t0"},
	}, nil)
	sim.On("TaskInfo", simhost.TaskID("t0")).Return(simhost.TaskInfo{ID: "t0", SLA: simhost.SLA1}, nil)

	f := New(sim, 1_000_000)
	f.RegisterVM("v0")
	f.Refresh(0, false)

	require.ElementsMatch(t, []simhost.VMID{"v0"}, f.VMsOn("m0"))
	owner, ok := f.TaskOwner("t0")
	require.True(t, ok)
	require.Equal(t, simhost.VMID("v0"), owner)
	require.ElementsMatch(t, []simhost.TaskID{"t0"}, f.TasksWithSLA(simhost.SLA1))
}

func TestUtilizationIsMemoized(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(1)
	sim.On("MachineAt", 0).Return(simhost.MachineID("m0"))
	info := machine("m0", simhost.X86, simhost.S0)
	info.ActiveTasks = 2
	sim.On("MachineInfo", simhost.MachineID("m0")).Return(info, nil)

	f := New(sim, 1_000_000)
	f.Refresh(0, false)

	require.Equal(t, 0.5, f.Utilization("m0"))
	require.Equal(t, 0.5, f.Utilization("m0"))
}
