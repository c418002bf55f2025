package simhost

import "github.com/stretchr/testify/mock"

// MockSimulator is a testify/mock-based double for Simulator, used by
// component-level tests that need to assert on individual outbound
// calls rather than run a full reference simulator.
type MockSimulator struct {
	mock.Mock
}

// NewMockSimulator returns an empty MockSimulator ready for .On() setup.
func NewMockSimulator() *MockSimulator {
	return &MockSimulator{}
}

func (m *MockSimulator) MachineTotal() int {
	return m.Called().Int(0)
}

func (m *MockSimulator) MachineAt(i int) MachineID {
	return m.Called(i).Get(0).(MachineID)
}

func (m *MockSimulator) MachineInfo(id MachineID) (MachineInfo, error) {
	args := m.Called(id)
	return args.Get(0).(MachineInfo), args.Error(1)
}

func (m *MockSimulator) MachineCPU(id MachineID) (CPUFamily, error) {
	args := m.Called(id)
	return args.Get(0).(CPUFamily), args.Error(1)
}

func (m *MockSimulator) MachineEnergy(id MachineID) (float64, error) {
	args := m.Called(id)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockSimulator) SetMachineState(id MachineID, s SState) error {
	return m.Called(id, s).Error(0)
}

func (m *MockSimulator) SetCorePerf(id MachineID, core int, p PState) error {
	return m.Called(id, core, p).Error(0)
}

func (m *MockSimulator) CreateVM(kind VMKind, cpu CPUFamily) (VMID, error) {
	args := m.Called(kind, cpu)
	return args.Get(0).(VMID), args.Error(1)
}

func (m *MockSimulator) AttachVM(vm VMID, machine MachineID) error {
	return m.Called(vm, machine).Error(0)
}

func (m *MockSimulator) VMInfo(vm VMID) (VMInfo, error) {
	args := m.Called(vm)
	return args.Get(0).(VMInfo), args.Error(1)
}

func (m *MockSimulator) AddTask(vm VMID, task TaskID, priority Priority) error {
	return m.Called(vm, task, priority).Error(0)
}

func (m *MockSimulator) RemoveTask(vm VMID, task TaskID) error {
	return m.Called(vm, task).Error(0)
}

func (m *MockSimulator) MigrateStart(vm VMID) error {
	return m.Called(vm).Error(0)
}

func (m *MockSimulator) Migrate(vm VMID, target MachineID) error {
	return m.Called(vm, target).Error(0)
}

func (m *MockSimulator) IsPendingMigration(vm VMID) (bool, error) {
	args := m.Called(vm)
	return args.Bool(0), args.Error(1)
}

func (m *MockSimulator) ShutdownVM(vm VMID) error {
	return m.Called(vm).Error(0)
}

func (m *MockSimulator) TaskInfo(t TaskID) (TaskInfo, error) {
	args := m.Called(t)
	return args.Get(0).(TaskInfo), args.Error(1)
}

func (m *MockSimulator) RemainingInstructions(t TaskID) (uint64, error) {
	args := m.Called(t)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockSimulator) SetTaskPriority(t TaskID, priority Priority) error {
	return m.Called(t, priority).Error(0)
}

func (m *MockSimulator) ClusterEnergy() (float64, error) {
	args := m.Called()
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockSimulator) SLAReport(sla SLAClass) (float64, error) {
	args := m.Called(sla)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockSimulator) Now() int64 {
	return m.Called().Get(0).(int64)
}

func (m *MockSimulator) Log(message string, verbosity int) {
	m.Called(message, verbosity)
}
