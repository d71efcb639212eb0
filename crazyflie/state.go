package crazyflie

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

type State uint8

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateServicesDiscovered
	StateCharacteristicsDiscovered
	StateConnected
)

// names as reported by the transports
var stateNames = [...]string{
	StateIdle:                      "idle",
	StateScanning:                  "scanning",
	StateConnecting:                "connecting",
	StateServicesDiscovered:        "services",
	StateCharacteristicsDiscovered: "characteristics",
	StateConnected:                 "connected",
}

var stateAliases = map[string]State{
	"servicesDiscovered":        StateServicesDiscovered,
	"characteristicsDiscovered": StateCharacteristicsDiscovered,
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// ParseState maps a transport state name onto a State.
func ParseState(name string) (State, bool) {
	for s, n := range stateNames {
		if n == name {
			return State(s), true
		}
	}
	s, ok := stateAliases[name]
	return s, ok
}

// StateMachine tracks the connection lifecycle. Any state may follow any other:
// transports report states in their own order and the last one applied wins.
// The observer runs once per transition, never for a repeated state, and must
// not call back into the machine.
type StateMachine struct {
	mu       sync.Mutex
	fsm      *fsm.FSM
	observer func(from, to State)
}

func NewStateMachine(observer func(from, to State)) *StateMachine {
	m := &StateMachine{observer: observer}

	all := stateNames[:]
	events := make(fsm.Events, 0, len(stateNames))
	for _, name := range stateNames {
		events = append(events, fsm.EventDesc{Name: name, Src: all, Dst: name})
	}

	m.fsm = fsm.NewFSM(StateIdle.String(), events, fsm.Callbacks{
		"enter_state": m.onEnter,
	})
	return m
}

func (m *StateMachine) onEnter(_ context.Context, e *fsm.Event) {
	if m.observer == nil {
		return
	}
	from, _ := ParseState(e.Src)
	to, _ := ParseState(e.Dst)
	m.observer(from, to)
}

func (m *StateMachine) Current() State {
	s, _ := ParseState(m.fsm.Current())
	return s
}

// Apply moves to s and reports whether a transition happened.
func (m *StateMachine) Apply(s State) bool {
	if int(s) >= len(stateNames) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsm.Event(context.Background(), s.String()) == nil
}

// HandleTransportState applies a state by its transport name. Unknown names
// are ignored.
func (m *StateMachine) HandleTransportState(name string) bool {
	s, ok := ParseState(name)
	if !ok {
		return false
	}
	return m.Apply(s)
}

func (m *StateMachine) Reset() bool {
	return m.Apply(StateIdle)
}
