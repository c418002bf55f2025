package power

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ayjanu/eec/simhost"
)

func TestTargetPStateWatermarks(t *testing.T) {
	assert.Equal(t, simhost.P0, TargetPState(0.9, false, false, false))
	assert.Equal(t, simhost.P1, TargetPState(0.6, false, false, false))
	assert.Equal(t, simhost.P2, TargetPState(0.35, false, false, false))
	assert.Equal(t, simhost.P3, TargetPState(0.1, false, false, false))
}

func TestTargetPStateCriticalSLAForcesP0(t *testing.T) {
	assert.Equal(t, simhost.P0, TargetPState(0.1, true, false, false))
}

func TestTargetPStateComputeHeavyForcesAtLeastP1(t *testing.T) {
	assert.Equal(t, simhost.P1, TargetPState(0.1, false, true, false))
}

func TestTargetPStateSLARiskOverridesEverything(t *testing.T) {
	assert.Equal(t, simhost.P0, TargetPState(0.0, false, false, true))
}
