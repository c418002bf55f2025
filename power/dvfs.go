package power

import "github.com/ayjanu/eec/simhost"

// TargetPState implements the DVFS watermark policy: utilization and
// workload shape determine the frequency/power point, with SLA risk
// overriding everything to pin the machine at P0.
func TargetPState(util float64, hasCriticalSLA bool, computeHeavy bool, atSLARisk bool) simhost.PState {
	if atSLARisk {
		return simhost.P0
	}
	if hasCriticalSLA || util >= 0.8 {
		return simhost.P0
	}
	if util >= 0.5 || computeHeavy {
		return simhost.P1
	}
	if util >= 0.3 {
		return simhost.P2
	}
	return simhost.P3
}
