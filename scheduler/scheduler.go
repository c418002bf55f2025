// Package scheduler assembles the Fleet Model, Power Manager,
// Migration Manager, Placement Engine, and Control Loop into the
// process-wide scheduler, and implements simhost.EventHandler so a
// host simulator can drive it directly.
package scheduler

import (
	log "github.com/sirupsen/logrus"

	"github.com/ayjanu/eec/config"
	"github.com/ayjanu/eec/control"
	"github.com/ayjanu/eec/fleet"
	"github.com/ayjanu/eec/migration"
	"github.com/ayjanu/eec/placement"
	"github.com/ayjanu/eec/power"
	"github.com/ayjanu/eec/simhost"
)

// Scheduler is not safe for concurrent callback invocation: exactly
// one goroutine may call into it at a time, matching the simulator's
// serialized-callback guarantee. It does not take a lock itself —
// that would mask a caller bug as a performance problem instead of a
// correctness one.
type Scheduler struct {
	sim simhost.Simulator
	cfg *config.Config

	Fleet     *fleet.Fleet
	Power     *power.Manager
	Migration *migration.Manager
	Placement *placement.Engine
	Control   *control.Loop

	halted bool
}

// New builds a Scheduler wired to sim using cfg's tunables. Init must
// be called once the host simulator is ready to serve queries.
func New(sim simhost.Simulator, cfg *config.Config) *Scheduler {
	f := fleet.New(sim, int64(cfg.FleetRefreshInterval))
	pm := power.NewManager(sim, nil)
	mm := migration.NewManager(sim, f, pm, cfg.HighWatermark)
	pe := placement.NewEngine(sim, f, pm, mm, int64(cfg.UrgencyPromotionThreshold))

	loop := control.NewLoop(sim, f, pm, mm, pe, control.Config{
		HighWatermark:            cfg.HighWatermark,
		LowWatermark:             cfg.LowWatermark,
		ConsolidationInterval:    int64(cfg.ConsolidationInterval),
		MinActiveMachines:        cfg.MinActiveMachines,
		ConsolidationTargetState: cfg.ConsolidationTargetState,
		SLAFactor:                config.SLAFactor,
	})

	s := &Scheduler{
		sim:       sim,
		cfg:       cfg,
		Fleet:     f,
		Power:     pm,
		Migration: mm,
		Placement: pe,
		Control:   loop,
	}
	pm.SetDrain(func(machine simhost.MachineID) {
		pe.DrainPending(sim.Now(), machine)
	})
	return s
}

// Init populates the Fleet Model, tracks every machine's startup
// S-state with the Power Manager, sets every machine in S0 to the
// configured DefaultPState, and pre-creates one LINUX VM for each CPU
// family that has a machine in S0. A family whose machines all start
// asleep gets no VM here.
func (s *Scheduler) Init() error {
	s.Fleet.Refresh(s.sim.Now(), true)

	seenCPU := make(map[simhost.CPUFamily]bool)
	for _, machine := range s.Fleet.AllMachines() {
		info, ok := s.Fleet.MachineInfo(machine)
		if !ok {
			continue
		}
		s.Power.Track(machine, info.SState)
		if info.SState == simhost.S0 {
			if err := s.Power.SetPerf(machine, s.cfg.DefaultPState); err != nil {
				log.WithError(err).WithField("machine", machine).Warn("scheduler: init perf set failed")
			}
		}
		if !seenCPU[info.CPU] && info.SState == simhost.S0 {
			vm, err := s.sim.CreateVM(simhost.LINUX, info.CPU)
			if err != nil {
				log.WithError(err).WithField("cpu", info.CPU).Warn("scheduler: init vm creation failed")
				continue
			}
			if err := s.sim.AttachVM(vm, machine); err != nil {
				log.WithError(err).WithField("vm", vm).Warn("scheduler: init vm attach failed")
				continue
			}
			s.Fleet.RegisterVM(vm)
			seenCPU[info.CPU] = true
		}
	}
	s.Fleet.Refresh(s.sim.Now(), true)
	return nil
}

// NewTask implements simhost.EventHandler.
func (s *Scheduler) NewTask(now int64, task simhost.TaskID) {
	if s.halted {
		return
	}
	s.Control.NewTask(now, task)
}

// TaskComplete implements simhost.EventHandler.
func (s *Scheduler) TaskComplete(now int64, task simhost.TaskID) {
	s.Control.TaskComplete(now, task)
}

// PeriodicCheck implements simhost.EventHandler.
func (s *Scheduler) PeriodicCheck(now int64) {
	if s.halted {
		return
	}
	s.Control.Check(now)
}

// MigrationDone implements simhost.EventHandler.
func (s *Scheduler) MigrationDone(now int64, vm simhost.VMID) {
	s.Control.MigrationDone(now, vm)
}

// StateChangeDone implements simhost.EventHandler.
func (s *Scheduler) StateChangeDone(now int64, machine simhost.MachineID) {
	s.Control.StateChangeDone(now, machine)
}

// MemoryWarning implements simhost.EventHandler.
func (s *Scheduler) MemoryWarning(now int64, machine simhost.MachineID) {
	if s.halted {
		return
	}
	s.Control.MemoryWarning(now, machine)
}

// SLAWarning implements simhost.EventHandler.
func (s *Scheduler) SLAWarning(now int64, task simhost.TaskID) {
	if s.halted {
		return
	}
	s.Control.SLAWarning(now, task)
}

// SimulationComplete implements simhost.EventHandler: shuts down
// every VM, requests the sleep state on every machine, and logs the
// final SLA/energy report.
func (s *Scheduler) SimulationComplete(now int64) {
	report := s.Control.Shutdown(now)
	log.WithFields(log.Fields{
		"sla0_violation_pct": report.SLAViolationPercent[simhost.SLA0],
		"sla1_violation_pct": report.SLAViolationPercent[simhost.SLA1],
		"sla2_violation_pct": report.SLAViolationPercent[simhost.SLA2],
		"sla3_violation_pct": report.SLAViolationPercent[simhost.SLA3],
		"cluster_energy_kwh": report.ClusterEnergy,
	}).Info("simulation complete")
}

// Halt flips the scheduler into the halted state and logs reason.
// While halted, NewTask, PeriodicCheck, MemoryWarning and SLAWarning
// return without delegating to the control loop; TaskComplete,
// MigrationDone, StateChangeDone and SimulationComplete still delegate,
// so state requests and migrations issued from those paths continue.
// Nothing in this module calls Halt: a Fatal error returned by a
// component is logged by its caller and does not halt the scheduler.
func (s *Scheduler) Halt(reason error) {
	if s.halted {
		return
	}
	s.halted = true
	log.WithError(reason).Error("scheduler: halting, invariant violation detected")
}

// Halted reports whether Halt has been called.
func (s *Scheduler) Halted() bool {
	return s.halted
}
