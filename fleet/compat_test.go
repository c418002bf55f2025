package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ayjanu/eec/simhost"
)

func TestCPUCompatible(t *testing.T) {
	families := []simhost.CPUFamily{simhost.X86, simhost.ARM, simhost.POWER, simhost.RISCV}
	for _, have := range families {
		for _, want := range families {
			assert.Equal(t, have == want, CPUCompatible(have, want), "have=%v want=%v", have, want)
		}
	}
}

func TestVMKindCompatible(t *testing.T) {
	kinds := []simhost.VMKind{simhost.LINUX, simhost.LINUXRT, simhost.WIN, simhost.AIX}
	for _, have := range kinds {
		for _, want := range kinds {
			expect := have == want || (have == simhost.LINUX && want == simhost.LINUXRT)
			assert.Equal(t, expect, VMKindCompatible(have, want), "have=%v want=%v", have, want)
		}
	}
}

func TestVMKindCompatibleNoReverseCoercion(t *testing.T) {
	assert.False(t, VMKindCompatible(simhost.LINUXRT, simhost.LINUX))
}

func TestGPUCompatible(t *testing.T) {
	assert.True(t, GPUCompatible(true, true))
	assert.True(t, GPUCompatible(false, false))
	assert.True(t, GPUCompatible(true, false))
	assert.False(t, GPUCompatible(false, true))
}

func TestMemoryFits(t *testing.T) {
	assert.True(t, MemoryFits(1000, 100, 900))
	assert.False(t, MemoryFits(1000, 100, 901))
	assert.True(t, MemoryFits(1000, 0, 1000))
}

func TestCompatible(t *testing.T) {
	machine := simhost.MachineInfo{CPU: simhost.X86, HasGPU: false}
	task := simhost.TaskInfo{RequiredCPU: simhost.X86, RequiredVMKind: simhost.LINUX, GPUCapable: false}
	assert.True(t, Compatible(machine, simhost.LINUX, task))

	task.GPUCapable = true
	assert.False(t, Compatible(machine, simhost.LINUX, task))

	machine.HasGPU = true
	assert.True(t, Compatible(machine, simhost.LINUX, task))

	assert.False(t, Compatible(simhost.MachineInfo{CPU: simhost.ARM}, simhost.LINUX, task))
}

// TestCompatibleIgnoresRawVMKindAfterCoercion locks in that Compatible
// never re-checks vmKind against the task's uncoerced
// RequiredVMKind: a task that originally required WIN on a POWER
// machine is coerced to AIX by the caller before this is ever
// evaluated, and Compatible must not then reject it for the
// WIN/AIX mismatch.
func TestCompatibleIgnoresRawVMKindAfterCoercion(t *testing.T) {
	machine := simhost.MachineInfo{CPU: simhost.POWER, HasGPU: false}
	task := simhost.TaskInfo{RequiredCPU: simhost.POWER, RequiredVMKind: simhost.WIN, GPUCapable: false}
	assert.True(t, Compatible(machine, simhost.AIX, task))
}
