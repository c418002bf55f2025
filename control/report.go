package control

import (
	log "github.com/sirupsen/logrus"

	"github.com/ayjanu/eec/simhost"
)

// Report summarizes the simulation's outcome: SLA-violation
// percentages per class and total cluster energy. SLA3 has no
// declared deadline obligation, so it is always reported as 0%.
type Report struct {
	SLAViolationPercent map[simhost.SLAClass]float64
	ClusterEnergy       float64
}

// Shutdown implements simulation_complete: shut down every VM, request
// S5 on every machine, and return the
// final report. It never aborts partway through on a per-entity
// failure — those are logged and skipped, matching the rest of the
// loop's failure policy.
func (l *Loop) Shutdown(now int64) Report {
	l.fleet.Refresh(now, true)

	for _, machine := range l.fleet.AllMachines() {
		for _, vm := range l.fleet.VMsOn(machine) {
			if err := l.sim.ShutdownVM(vm); err != nil {
				log.WithError(err).WithField("vm", vm).Debug("control: shutdown vm failed")
			}
		}
		if err := l.power.RequestState(machine, simhost.S5, false); err != nil {
			log.WithError(err).WithField("machine", machine).Debug("control: shutdown state request failed")
		}
	}

	return l.buildReport()
}

func (l *Loop) buildReport() Report {
	report := Report{SLAViolationPercent: make(map[simhost.SLAClass]float64)}

	for _, sla := range []simhost.SLAClass{simhost.SLA0, simhost.SLA1, simhost.SLA2} {
		pct, err := l.sim.SLAReport(sla)
		if err != nil {
			log.WithError(err).WithField("sla", sla).Debug("control: sla report query failed")
			continue
		}
		report.SLAViolationPercent[sla] = pct
	}
	report.SLAViolationPercent[simhost.SLA3] = 0

	energy, err := l.sim.ClusterEnergy()
	if err != nil {
		log.WithError(err).Debug("control: cluster energy query failed")
	}
	report.ClusterEnergy = energy

	return report
}
