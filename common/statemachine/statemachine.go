// Package statemachine is a small rule-based state machine: each
// state names the states it may transition to, with an optional
// per-rule callback plus one machine-wide transition callback.
//
// There is no timeout/auto-transition support here — the domain this
// machine is used for (machine S-states) only advances on
// an explicit request followed by an explicit completion event from an
// external driver; nothing here ever times out on its own.
package statemachine

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Rule defines the allowed destinations from one source state, with an
// optional callback invoked on a successful transition out of it.
type Rule struct {
	From     State
	To       []State
	Callback func(*Transition) error
}

// Callback is invoked on every transition of a machine, regardless of
// which rule fired.
type Callback func(*Transition) error

// StateMachine transitions an object between named states along rules
// registered at construction time.
type StateMachine interface {
	// TransitTo moves the machine to `to` if a rule permits it from
	// the current state, running callbacks in order: the per-rule
	// callback, then the machine-wide transition callback.
	TransitTo(to State, reason string, args ...interface{}) error
	GetCurrentState() State
	GetReason() string
	GetName() string
	GetLastUpdateTime() time.Time
}

type statemachine struct {
	sync.RWMutex

	name    string
	current State
	reason  string

	rules              map[State]*Rule
	transitionCallback Callback

	lastUpdatedTime time.Time
}

// NewStateMachine constructs a StateMachine with the given name,
// starting state, and transition rules keyed by source state.
func NewStateMachine(
	name string,
	current State,
	rules map[State]*Rule,
	transitionCallback Callback,
) (StateMachine, error) {
	sm := &statemachine{
		name:            name,
		current:         current,
		rules:           make(map[State]*Rule),
		transitionCallback: transitionCallback,
		lastUpdatedTime: time.Now(),
		reason:          "created",
	}
	if err := sm.addRules(rules); err != nil {
		return nil, err
	}
	return sm, nil
}

func (sm *statemachine) addRules(rules map[State]*Rule) error {
	for _, r := range rules {
		if err := validateRule(r); err != nil {
			return err
		}
	}
	sm.rules = rules
	return nil
}

func validateRule(rule *Rule) error {
	seen := make(map[State]bool)
	for _, to := range rule.To {
		if seen[to] {
			return errors.Errorf("duplicate destination state %q in rule from %q", to, rule.From)
		}
		seen[to] = true
	}
	return nil
}

func (sm *statemachine) isValidTransition(to State) error {
	rule, ok := sm.rules[sm.current]
	if !ok {
		return errors.Errorf("%s: no rule defined for state %q", sm.name, sm.current)
	}
	for _, candidate := range rule.To {
		if candidate == to {
			return nil
		}
	}
	return errors.Errorf("%s: invalid transition %q -> %q", sm.name, sm.current, to)
}

func (sm *statemachine) TransitTo(to State, reason string, args ...interface{}) error {
	sm.Lock()
	defer sm.Unlock()

	if err := sm.isValidTransition(to); err != nil {
		return err
	}

	t := &Transition{StateMachine: sm, From: sm.current, To: to, Params: args}
	from := sm.current

	sm.current = to
	sm.lastUpdatedTime = time.Now()
	sm.reason = reason

	if cb := sm.rules[from].Callback; cb != nil {
		if err := cb(t); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"name": sm.name,
				"from": from,
				"to":   to,
			}).Error("state machine rule callback failed")
			return err
		}
	}

	if sm.transitionCallback != nil {
		if err := sm.transitionCallback(t); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"name": sm.name,
				"from": from,
				"to":   to,
			}).Error("state machine transition callback failed")
			return err
		}
	}

	return nil
}

func (sm *statemachine) GetCurrentState() State {
	sm.RLock()
	defer sm.RUnlock()
	return sm.current
}

func (sm *statemachine) GetReason() string {
	sm.RLock()
	defer sm.RUnlock()
	return sm.reason
}

func (sm *statemachine) GetName() string {
	return sm.name
}

func (sm *statemachine) GetLastUpdateTime() time.Time {
	sm.RLock()
	defer sm.RUnlock()
	return sm.lastUpdatedTime
}
