package statemachine

// State is a named state in a StateMachine.
type State string

// Transition describes a single state change, passed to callbacks so
// they can inspect where the machine came from and where it's going.
type Transition struct {
	StateMachine StateMachine
	From         State
	To           State
	// Params carries whatever extra arguments TransitTo was called
	// with, for callbacks that need more than the state names.
	Params []interface{}
}
