package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ayjanu/eec/config"
	"github.com/ayjanu/eec/simhost"
)

func TestInitTracksMachinesAndSeedsOneVMPerCPU(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(1)
	sim.On("MachineAt", 0).Return(simhost.MachineID("m0"))
	info := simhost.MachineInfo{
		ID: "m0", CPU: simhost.X86, NumCores: 2, SState: simhost.S0,
		MIPS: simhost.PStateTable{simhost.P1: 100},
	}
	sim.On("MachineInfo", simhost.MachineID("m0")).Return(info, nil)
	sim.On("SetCorePerf", simhost.MachineID("m0"), 0, simhost.P1).Return(nil)
	sim.On("SetCorePerf", simhost.MachineID("m0"), 1, simhost.P1).Return(nil)
	sim.On("CreateVM", simhost.LINUX, simhost.X86).Return(simhost.VMID("v0"), nil)
	sim.On("AttachVM", simhost.VMID("v0"), simhost.MachineID("m0")).Return(nil)
	sim.On("VMInfo", simhost.VMID("v0")).Return(simhost.VMInfo{ID: "v0", Kind: simhost.LINUX, CPU: simhost.X86, Machine: "m0"}, nil)
	sim.On("Now").Return(int64(0))

	s := New(sim, config.Default())
	require.NoError(t, s.Init())

	require.True(t, s.Power.IsActive("m0"))
	vms := s.Fleet.VMsOn("m0")
	require.Len(t, vms, 1)
	sim.AssertCalled(t, "CreateVM", simhost.LINUX, simhost.X86)
}

func TestHaltSuppressesFurtherEventDelegation(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(0)
	sim.On("Now").Return(int64(0))

	s := New(sim, config.Default())
	require.NoError(t, s.Init())
	require.False(t, s.Halted())

	s.Halt(simhost.Fatal("invariant violated"))
	require.True(t, s.Halted())

	// NewTask must not touch the simulator at all once halted: no
	// expectations are registered for PlaceTask's calls, so a mock
	// panic on an unexpected call would fail the test if the guard
	// were missing.
	s.NewTask(0, "t0")
	s.PeriodicCheck(0)
	s.MemoryWarning(0, "m0")
	s.SLAWarning(0, "t0")
}

func TestSimulationCompleteLogsReportWithoutPanicking(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(0)
	sim.On("Now").Return(int64(0))
	sim.On("SLAReport", simhost.SLA0).Return(0.0, nil)
	sim.On("SLAReport", simhost.SLA1).Return(0.0, nil)
	sim.On("SLAReport", simhost.SLA2).Return(0.0, nil)
	sim.On("ClusterEnergy").Return(0.0, nil)

	s := New(sim, config.Default())
	require.NoError(t, s.Init())
	s.SimulationComplete(0)
}
