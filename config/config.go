// Package config holds the scheduler's own tunables: the named
// constants the design calls out as watermarks, intervals, and
// thresholds, collected into one YAML-loadable, validated struct. It
// does not carry the machine-class/task-class workload grammar, which
// is parsed by an external component.
package config

import (
	"time"

	eccommon "github.com/ayjanu/eec/common/config"
	"github.com/ayjanu/eec/common/logging"
	"github.com/ayjanu/eec/common/metrics"
	"github.com/ayjanu/eec/simhost"
)

// Microseconds is a virtual-clock duration, matching the simulator's
// time unit. Kept distinct from time.Duration so config values read as
// plain simulator microsecond counts, not wall-clock durations.
type Microseconds int64

// Config is the scheduler's full set of tunables plus the ambient
// logging/metrics configuration.
type Config struct {
	Metrics metrics.Config       `yaml:"metrics"`
	Sentry  logging.SentryConfig `yaml:"sentry"`
	Debug   bool                 `yaml:"debug"`

	// FleetRefreshInterval bounds how often the Fleet Model re-syncs
	// its cache from the simulator. Default 1,000,000us.
	FleetRefreshInterval Microseconds `yaml:"fleet_refresh_interval" validate:"min=1"`

	// HighWatermark is the utilization above which a machine is
	// considered overloaded. Default 0.8.
	HighWatermark float64 `yaml:"high_watermark" validate:"min=0,max=1"`
	// MidWatermark is loaded and validated but not read by the
	// scheduler: power.TargetPState uses its own fixed 0.5 boundary
	// between P1 and P2. Default 0.5.
	MidWatermark float64 `yaml:"mid_watermark" validate:"min=0,max=1"`
	// LowWatermark is the utilization below which a machine is
	// eligible for consolidation. Default 0.3.
	LowWatermark float64 `yaml:"low_watermark" validate:"min=0,max=1"`

	// MigrationMemoryOverhead is loaded and validated but not read by
	// the scheduler: the Migration Manager adds its own constant
	// migration.MemoryOverhead (8, in the same units as
	// MachineInfo.MemorySize) to a VM's memory need when evaluating a
	// migration target. Default 8.
	MigrationMemoryOverhead int64 `yaml:"migration_memory_overhead" validate:"min=0"`

	// UrgencyPromotionThreshold is the deadline headroom below which a
	// task is promoted to HIGH priority regardless of SLA class.
	// Default 12,000,000us.
	UrgencyPromotionThreshold Microseconds `yaml:"urgency_promotion_threshold" validate:"min=0"`

	// ConsolidationInterval gates how often the control loop attempts
	// consolidation. Default 300,000us.
	ConsolidationInterval Microseconds `yaml:"consolidation_interval" validate:"min=1"`
	// ConsolidationTargetState is the S-state a fully evacuated
	// machine is put into. Default S5.
	ConsolidationTargetState simhost.SState `yaml:"consolidation_target_state"`

	// MinActiveMachines is the floor below which consolidation will
	// not request a machine to sleep, damping wake/sleep oscillation.
	// Default 0 (no floor).
	MinActiveMachines int `yaml:"min_active_machines" validate:"min=0"`

	// DefaultPState is the P-state Init sets on every machine that is
	// in S0 at startup. A machine that reaches S0 later is set to
	// power.DefaultWakePState instead. Default P1.
	DefaultPState simhost.PState `yaml:"default_pstate"`
}

// SLAFactor returns the factor(sla) multiplier used by the at-risk scan.
func SLAFactor(sla simhost.SLAClass) float64 {
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
}

// Default returns the scheduler's built-in defaults.
func Default() *Config {
	return &Config{
		FleetRefreshInterval:      1_000_000,
		HighWatermark:             0.8,
		MidWatermark:              0.5,
		LowWatermark:              0.3,
		MigrationMemoryOverhead:   8,
		UrgencyPromotionThreshold: 12_000_000,
		ConsolidationInterval:     300_000,
		ConsolidationTargetState:  simhost.S5,
		MinActiveMachines:         0,
		DefaultPState:             simhost.P1,
	}
}

// Load reads and merges one or more YAML config files on top of the
// defaults, then validates the result.
func Load(files ...string) (*Config, error) {
	cfg := Default()
	if len(files) == 0 {
		return cfg, nil
	}
	if err := eccommon.Parse(cfg, files...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AsDuration converts a Microseconds value to a time.Duration, for
// components (e.g. the demo harness) that need to sleep/tick in wall
// clock time rather than just compare virtual timestamps.
func (m Microseconds) AsDuration() time.Duration {
	return time.Duration(m) * time.Microsecond
}
