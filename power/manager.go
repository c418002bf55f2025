// Package power sequences S-state (sleep) and P-state (DVFS)
// transitions on machines, honoring the invariants that a machine
// hosting active work never drops below S0 and a machine with a
// state change already outstanding takes no second request.
package power

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ayjanu/eec/common/statemachine"
	"github.com/ayjanu/eec/simhost"
)

// DefaultWakePState is the P-state the Power Manager applies to every
// core of a machine the moment it reaches S0.
const DefaultWakePState = simhost.P1

// DrainFunc is invoked once a machine reaches S0, so the placement
// engine can attempt pending high-priority work against it. Wired by
// the scheduler at construction time to break the import cycle
// between power and placement.
type DrainFunc func(machine simhost.MachineID)

// Manager sequences S-state and P-state transitions. It is the sole
// mutator of the pending-state flag on machines.
type Manager struct {
	sim simhost.Simulator

	machines map[simhost.MachineID]statemachine.StateMachine
	pending  map[simhost.MachineID]simhost.SState
	active   map[simhost.MachineID]struct{}

	onDrain DrainFunc
}

// NewManager builds an empty Manager bound to sim. onDrain may be nil
// (e.g. in tests that don't exercise the drain hook).
func NewManager(sim simhost.Simulator, onDrain DrainFunc) *Manager {
	return &Manager{
		sim:      sim,
		machines: make(map[simhost.MachineID]statemachine.StateMachine),
		pending:  make(map[simhost.MachineID]simhost.SState),
		active:   make(map[simhost.MachineID]struct{}),
		onDrain:  onDrain,
	}
}

func sStateRules() map[statemachine.State]*statemachine.Rule {
	all := []simhost.SState{simhost.S0, simhost.S1, simhost.S2, simhost.S3, simhost.S4, simhost.S5}
	rules := make(map[statemachine.State]*statemachine.Rule, len(all))
	for _, from := range all {
		var to []statemachine.State
		for _, dest := range all {
			if dest != from {
				to = append(to, statemachine.State(dest.String()))
			}
		}
		rules[statemachine.State(from.String())] = &statemachine.Rule{
			From: statemachine.State(from.String()),
			To:   to,
		}
	}
	return rules
}

// Track registers a machine with the Power Manager at its current
// S-state, e.g. at Init. A machine not tracked is assumed S0/inactive
// by RequestState's callers.
func (m *Manager) Track(machine simhost.MachineID, initial simhost.SState) {
	if _, ok := m.machines[machine]; ok {
		return
	}
	builder := statemachine.NewBuilder().
		WithName(fmt.Sprintf("machine:%s", machine)).
		WithCurrentState(statemachine.State(initial.String()))
	for _, rule := range sStateRules() {
		builder = builder.AddRule(rule)
	}
	sm, err := builder.Build()
	if err != nil {
		log.WithError(err).WithField("machine", machine).Error("power: failed to build state machine")
		return
	}
	m.machines[machine] = sm
	if initial == simhost.S0 {
		m.active[machine] = struct{}{}
	}
}

// SetDrain installs the drain hook invoked whenever a machine reaches
// S0. Split from NewManager so callers can close over components
// that themselves depend on the Manager they're being wired into.
func (m *Manager) SetDrain(onDrain DrainFunc) {
	m.onDrain = onDrain
}

// IsActive reports whether machine is in the active set (S0, per the
// last completed transition).
func (m *Manager) IsActive(machine simhost.MachineID) bool {
	_, ok := m.active[machine]
	return ok
}

// IsPending reports whether machine has an outstanding state request.
func (m *Manager) IsPending(machine simhost.MachineID) bool {
	_, ok := m.pending[machine]
	return ok
}

// IsWaking reports whether machine has an outstanding request to
// reach S0.
func (m *Manager) IsWaking(machine simhost.MachineID) bool {
	target, ok := m.pending[machine]
	return ok && target == simhost.S0
}

// RequestState issues a state change for machine. It fails with
// ErrBusy if one is already outstanding, or wraps ErrFatal if
// newState > S0 (deeper sleep) and the machine still hosts active
// tasks — that would violate I3.
func (m *Manager) RequestState(machine simhost.MachineID, newState simhost.SState, hasActiveTasks bool) error {
	if _, busy := m.pending[machine]; busy {
		return simhost.Busy("machine %s has a state change already pending", machine)
	}
	if newState > simhost.S0 && hasActiveTasks {
		return simhost.Fatal("refusing to sleep machine %s below S0 while it hosts active tasks", machine)
	}
	if err := m.sim.SetMachineState(machine, newState); err != nil {
		return simhost.Transient("requesting state change for %s: %v", machine, err)
	}
	m.pending[machine] = newState
	return nil
}

// OnStateComplete clears the pending flag for machine and applies the
// post-transition bookkeeping: entering S0 sets the default P-state,
// adds the machine to the active set, and drains pending high-priority
// work; entering any deeper state removes it from the active set.
func (m *Manager) OnStateComplete(machine simhost.MachineID) {
	newState, ok := m.pending[machine]
	if !ok {
		log.WithField("machine", machine).Warn("power: state-change-done with no pending request")
		return
	}
	delete(m.pending, machine)

	if sm, tracked := m.machines[machine]; tracked {
		if err := sm.TransitTo(statemachine.State(newState.String()), "state_change_done"); err != nil {
			log.WithError(err).WithField("machine", machine).Error("power: state machine rejected completed transition")
		}
	}

	if newState == simhost.S0 {
		m.active[machine] = struct{}{}
		if err := m.SetPerf(machine, DefaultWakePState); err != nil {
			log.WithError(err).WithField("machine", machine).Warn("power: failed to set wake p-state")
		}
		if m.onDrain != nil {
			m.onDrain(machine)
		}
		return
	}
	delete(m.active, machine)
}

// SetPerf applies pState to every core of machine. It is a no-op if
// the machine is not currently in S0 or has a pending state change.
func (m *Manager) SetPerf(machine simhost.MachineID, pState simhost.PState) error {
	if _, busy := m.pending[machine]; busy {
		return nil
	}
	if _, active := m.active[machine]; !active {
		return nil
	}
	info, err := m.sim.MachineInfo(machine)
	if err != nil {
		return simhost.Transient("reading machine %s for perf change: %v", machine, err)
	}
	for core := 0; core < info.NumCores; core++ {
		if err := m.sim.SetCorePerf(machine, core, pState); err != nil {
			return simhost.Transient("setting perf for %s core %d: %v", machine, core, err)
		}
	}
	return nil
}
