package control

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ayjanu/eec/fleet"
	"github.com/ayjanu/eec/migration"
	"github.com/ayjanu/eec/placement"
	"github.com/ayjanu/eec/power"
	"github.com/ayjanu/eec/simhost"
)

func defaultConfig() Config {
	return Config{
		HighWatermark:            0.8,
		LowWatermark:             0.3,
		ConsolidationInterval:    300_000,
		MinActiveMachines:        0,
		ConsolidationTargetState: simhost.S5,
		SLAFactor: func(sla simhost.SLAClass) float64 {
			switch sla {
			case simhost.SLA0:
				return 0.85
			case simhost.SLA1:
				return 0.9
			case simhost.SLA2:
				return 0.95
			default:
				return 1.0
			}
		},
	}
}

func newLoop(sim simhost.Simulator) *Loop {
	f := fleet.New(sim, 1_000_000)
	pm := power.NewManager(sim, nil)
	mm := migration.NewManager(sim, f, pm, 0.8)
	pe := placement.NewEngine(sim, f, pm, mm, placement.UrgencyPromotionThreshold)
	return NewLoop(sim, f, pm, mm, pe, defaultConfig())
}

func TestCheckAppliesDVFSOnActiveMachines(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(1)
	sim.On("MachineAt", 0).Return(simhost.MachineID("m0"))
	info := simhost.MachineInfo{
		ID: "m0", CPU: simhost.X86, NumCores: 4, SState: simhost.S0,
		PState: simhost.P1, MIPS: simhost.PStateTable{simhost.P1: 100},
	}
	sim.On("MachineInfo", simhost.MachineID("m0")).Return(info, nil)
	sim.On("SetCorePerf", simhost.MachineID("m0"), 0, simhost.P3).Return(nil)
	sim.On("SetCorePerf", simhost.MachineID("m0"), 1, simhost.P3).Return(nil)
	sim.On("SetCorePerf", simhost.MachineID("m0"), 2, simhost.P3).Return(nil)
	sim.On("SetCorePerf", simhost.MachineID("m0"), 3, simhost.P3).Return(nil)
	sim.On("SetMachineState", simhost.MachineID("m0"), simhost.S5).Return(nil)

	l := newLoop(sim)
	l.power.Track("m0", simhost.S0)
	l.Check(0)

	sim.AssertCalled(t, "SetCorePerf", simhost.MachineID("m0"), 0, simhost.P3)
}

func TestSLAWarningPromotesAndForcesP0(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(1)
	sim.On("MachineAt", 0).Return(simhost.MachineID("m0"))
	info := simhost.MachineInfo{
		ID: "m0", CPU: simhost.X86, NumCores: 2, SState: simhost.S0,
		ActiveTasks: 1, MIPS: simhost.PStateTable{simhost.P0: 100},
	}
	sim.On("MachineInfo", simhost.MachineID("m0")).Return(info, nil)
	sim.On("SetCorePerf", simhost.MachineID("m0"), 0, simhost.P0).Return(nil)
	sim.On("SetCorePerf", simhost.MachineID("m0"), 1, simhost.P0).Return(nil)
	sim.On("SetTaskPriority", simhost.TaskID("t0"), simhost.HIGH).Return(nil)
	sim.On("TaskInfo", simhost.TaskID("t0")).Return(simhost.TaskInfo{ID: "t0", SLA: simhost.SLA0}, nil)
	sim.On("VMInfo", simhost.VMID("v0")).Return(simhost.VMInfo{ID: "v0", Machine: "m0", ActiveTasks: []simhost.TaskID{"t0"}}, nil)

	l := newLoop(sim)
	l.power.Track("m0", simhost.S0)
	l.fleet.RegisterVM("v0")
	l.fleet.Refresh(0, true)

	l.SLAWarning(0, "t0")

	sim.AssertCalled(t, "SetTaskPriority", simhost.TaskID("t0"), simhost.HIGH)
}

func TestSLAWarningSLA3ForcesP0WithoutPriorityChange(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(1)
	sim.On("MachineAt", 0).Return(simhost.MachineID("m0"))
	info := simhost.MachineInfo{
		ID: "m0", CPU: simhost.X86, NumCores: 2, SState: simhost.S0,
		ActiveTasks: 1, MIPS: simhost.PStateTable{simhost.P0: 100},
	}
	sim.On("MachineInfo", simhost.MachineID("m0")).Return(info, nil)
	sim.On("SetCorePerf", simhost.MachineID("m0"), 0, simhost.P0).Return(nil)
	sim.On("SetCorePerf", simhost.MachineID("m0"), 1, simhost.P0).Return(nil)
	sim.On("TaskInfo", simhost.TaskID("t0")).Return(simhost.TaskInfo{ID: "t0", SLA: simhost.SLA3}, nil)
	sim.On("VMInfo", simhost.VMID("v0")).Return(simhost.VMInfo{ID: "v0", Machine: "m0", ActiveTasks: []simhost.TaskID{"t0"}}, nil)

	l := newLoop(sim)
	l.power.Track("m0", simhost.S0)
	l.fleet.RegisterVM("v0")
	l.fleet.Refresh(0, true)

	l.SLAWarning(0, "t0")

	sim.AssertCalled(t, "SetCorePerf", simhost.MachineID("m0"), 0, simhost.P0)
	sim.AssertNotCalled(t, "SetTaskPriority", simhost.TaskID("t0"), simhost.HIGH)
	_, recorded := l.atRisk["t0"]
	require.True(t, recorded, "sla3 warning must still be recorded in the at-risk set")
}

func TestConsolidationCandidatesExcludesSoleHostOfItsCPUFamily(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(1)
	sim.On("MachineAt", 0).Return(simhost.MachineID("m0"))
	info := simhost.MachineInfo{
		ID: "m0", CPU: simhost.X86, NumCores: 4, SState: simhost.S0,
		MIPS: simhost.PStateTable{simhost.P1: 100},
	}
	sim.On("MachineInfo", simhost.MachineID("m0")).Return(info, nil)

	l := newLoop(sim)
	l.power.Track("m0", simhost.S0)
	l.fleet.Refresh(0, true)

	require.Empty(t, l.consolidationCandidates(), "the only X86 host must never be stranded by consolidation")
}

// A machine whose sibling of the same CPU family stays active (even
// though that sibling itself holds critical work and is therefore
// never itself a consolidation candidate) must not be stranded: the
// sibling still counts as an eligible host for the CPU family.
func TestConsolidationCandidatesIncludesMachineWithSiblingOfSameFamily(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(2)
	sim.On("MachineAt", 0).Return(simhost.MachineID("m0"))
	sim.On("MachineAt", 1).Return(simhost.MachineID("m1"))
	idle := simhost.MachineInfo{
		ID: "m0", CPU: simhost.X86, NumCores: 4, SState: simhost.S0,
		MIPS: simhost.PStateTable{simhost.P1: 100},
	}
	critical := simhost.MachineInfo{
		ID: "m1", CPU: simhost.X86, NumCores: 4, SState: simhost.S0,
		MIPS: simhost.PStateTable{simhost.P1: 100},
	}
	sim.On("MachineInfo", simhost.MachineID("m0")).Return(idle, nil)
	sim.On("MachineInfo", simhost.MachineID("m1")).Return(critical, nil)
	sim.On("VMInfo", simhost.VMID("v1")).Return(simhost.VMInfo{
		ID: "v1", Machine: "m1", ActiveTasks: []simhost.TaskID{"t1"},
	}, nil)
	sim.On("TaskInfo", simhost.TaskID("t1")).Return(simhost.TaskInfo{ID: "t1", SLA: simhost.SLA0}, nil)

	l := newLoop(sim)
	l.power.Track("m0", simhost.S0)
	l.power.Track("m1", simhost.S0)
	l.fleet.RegisterVM("v1")
	l.fleet.Refresh(0, true)

	require.Equal(t, []simhost.MachineID{"m0"}, l.consolidationCandidates())
}

func TestShutdownBuildsReportWithSLA3Zeroed(t *testing.T) {
	sim := simhost.NewMockSimulator()
	sim.On("MachineTotal").Return(0)
	sim.On("SLAReport", simhost.SLA0).Return(1.5, nil)
	sim.On("SLAReport", simhost.SLA1).Return(0.5, nil)
	sim.On("SLAReport", simhost.SLA2).Return(0.0, nil)
	sim.On("ClusterEnergy").Return(42.0, nil)

	l := newLoop(sim)
	report := l.Shutdown(0)

	require.Equal(t, 1.5, report.SLAViolationPercent[simhost.SLA0])
	require.Equal(t, 0.0, report.SLAViolationPercent[simhost.SLA3])
	require.Equal(t, 42.0, report.ClusterEnergy)
}
