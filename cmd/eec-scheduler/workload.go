package main

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"

	"github.com/ayjanu/eec/simharness"
	"github.com/ayjanu/eec/simhost"
)

// workload is the YAML shape of a scenario file: the fleet to seed and
// the tasks to submit against it. This is the "workload generator"
// external collaborator the core scheduler never sees directly.
type workload struct {
	PeriodicInterval int64           `yaml:"periodic_interval"`
	StateDelay       int64           `yaml:"state_delay"`
	MigrateDelay     int64           `yaml:"migrate_delay"`
	Horizon          int64           `yaml:"horizon"`
	Machines         []machineYAML   `yaml:"machines"`
	Tasks            []taskYAML      `yaml:"tasks"`
}

type machineYAML struct {
	ID       simhost.MachineID `yaml:"id"`
	CPU      cpuFamily         `yaml:"cpu"`
	NumCores int               `yaml:"num_cores"`
	Memory   int64             `yaml:"memory"`
	HasGPU   bool              `yaml:"has_gpu"`
	Initial  sState            `yaml:"initial_state"`
	MIPS     map[string]float64 `yaml:"mips"`
}

type taskYAML struct {
	ID                simhost.TaskID `yaml:"id"`
	At                int64          `yaml:"at"`
	RequiredCPU       cpuFamily      `yaml:"required_cpu"`
	RequiredVMKind    vmKind         `yaml:"required_vm_kind"`
	GPUCapable        bool           `yaml:"gpu_capable"`
	MemoryRequired    int64          `yaml:"memory_required"`
	SLA               slaClass       `yaml:"sla"`
	TotalInstructions uint64         `yaml:"total_instructions"`
	Deadline          int64          `yaml:"deadline"`
}

func loadWorkload(path string) (*workload, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workload file %s: %w", path, err)
	}
	var w workload
	if err := yaml.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("parsing workload file %s: %w", path, err)
	}
	if w.PeriodicInterval == 0 {
		w.PeriodicInterval = 1_000_000
	}
	if w.StateDelay == 0 {
		w.StateDelay = 30_000_000
	}
	if w.MigrateDelay == 0 {
		w.MigrateDelay = 60_000_000
	}
	if w.Horizon == 0 {
		w.Horizon = 3_600_000_000
	}
	return &w, nil
}

// seed builds a Harness from w: every machine is added, and every task
// is scheduled for arrival at its declared offset.
func (w *workload) seed() *simharness.Harness {
	h := simharness.New(w.PeriodicInterval, w.StateDelay, w.MigrateDelay)
	for _, m := range w.Machines {
		mips := make(simhost.PStateTable, len(m.MIPS))
		for k, v := range m.MIPS {
			mips[parsePState(k)] = v
		}
		h.AddMachine(simharness.MachineSpec{
			ID: m.ID, CPU: simhost.CPUFamily(m.CPU), NumCores: m.NumCores,
			Memory: m.Memory, HasGPU: m.HasGPU, Initial: simhost.SState(m.Initial),
			MIPS: mips,
		})
	}
	for _, t := range w.Tasks {
		h.SubmitTask(t.At, simharness.TaskSpec{
			ID: t.ID, RequiredCPU: simhost.CPUFamily(t.RequiredCPU),
			RequiredVMKind: simhost.VMKind(t.RequiredVMKind), GPUCapable: t.GPUCapable,
			MemoryRequired: t.MemoryRequired, SLA: simhost.SLAClass(t.SLA),
			TotalInstructions: t.TotalInstructions, Deadline: t.Deadline,
		})
	}
	return h
}

func parsePState(s string) simhost.PState {
	switch s {
	case "P0":
		return simhost.P0
	case "P1":
		return simhost.P1
	case "P2":
		return simhost.P2
	default:
		return simhost.P3
	}
}

// cpuFamily, vmKind, slaClass, sState wrap their simhost counterparts
// with YAML string unmarshalling, so scenario files read "X86" /
// "LINUX" / "SLA0" / "S3" rather than bare integers.
type cpuFamily simhost.CPUFamily
type vmKind simhost.VMKind
type slaClass simhost.SLAClass
type sState simhost.SState

func (c *cpuFamily) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch s {
	case "X86":
		*c = cpuFamily(simhost.X86)
	case "ARM":
		*c = cpuFamily(simhost.ARM)
	case "POWER":
		*c = cpuFamily(simhost.POWER)
	case "RISCV":
		*c = cpuFamily(simhost.RISCV)
	default:
		return fmt.Errorf("unknown cpu family %q", s)
	}
	return nil
}

func (k *vmKind) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch s {
	case "LINUX":
		*k = vmKind(simhost.LINUX)
	case "LINUX_RT":
		*k = vmKind(simhost.LINUXRT)
	case "WIN":
		*k = vmKind(simhost.WIN)
	case "AIX":
		*k = vmKind(simhost.AIX)
	default:
		return fmt.Errorf("unknown vm kind %q", s)
	}
	return nil
}

func (c *slaClass) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch s {
	case "SLA0":
		*c = slaClass(simhost.SLA0)
	case "SLA1":
		*c = slaClass(simhost.SLA1)
	case "SLA2":
		*c = slaClass(simhost.SLA2)
	case "SLA3":
		*c = slaClass(simhost.SLA3)
	default:
		return fmt.Errorf("unknown sla class %q", s)
	}
	return nil
}

func (s *sState) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	switch str {
	case "S0":
		*s = sState(simhost.S0)
	case "S1":
		*s = sState(simhost.S1)
	case "S2":
		*s = sState(simhost.S2)
	case "S3":
		*s = sState(simhost.S3)
	case "S4":
		*s = sState(simhost.S4)
	case "S5":
		*s = sState(simhost.S5)
	default:
		return fmt.Errorf("unknown s-state %q", str)
	}
	return nil
}
