package sis

import (
	"github.com/rhartert/sparsesets"
)

// State is the infection state of a node.
type State int8

const (
	Susceptible State = 0
	Infected    State = 1
)

func (s State) String() string {
	switch s {
	case Susceptible:
		return "S"
	case Infected:
		return "I"
	default:
		return "?"
	}
}

// StateChange is a pair made of a node and its state before the last commit.
type StateChange struct {
	Node     int
	Previous State
}

// NodeStates holds the state of every node. Updates are staged and only
// become visible once committed, so that every decision taken between two
// commits observes the same states.
type NodeStates struct {
	states    []State
	nInfected int

	// Nodes whose state will flip on the next commit.
	staged *sparsesets.Set

	// Changes applied by the last commit.
	changes []StateChange
}

// NewNodeStates initializes and returns a new NodeStates holding a copy of
// the given states.
func NewNodeStates(states []State) *NodeStates {
	ns := &NodeStates{
		states:  make([]State, len(states)),
		staged:  sparsesets.New(len(states)),
		changes: make([]StateChange, 0, len(states)),
	}
	copy(ns.states, states)
	for _, s := range states {
		if s == Infected {
			ns.nInfected++
		}
	}
	return ns
}

// Len returns the number of nodes.
func (ns *NodeStates) Len() int {
	return len(ns.states)
}

// State returns the committed state of the node.
func (ns *NodeStates) State(node int) State {
	return ns.states[node]
}

// NumInfected returns the number of infected nodes in the committed state.
func (ns *NodeStates) NumInfected() int {
	return ns.nInfected
}

// SetNext stages the state of node for the next commit. Staging the
// committed state is a no-op.
func (ns *NodeStates) SetNext(node int, s State) {
	if s == ns.states[node] {
		return
	}
	ns.staged.Insert(node)
}

// IsStaged returns true if the node will change state on the next commit.
func (ns *NodeStates) IsStaged(node int) bool {
	return ns.staged.Contains(node)
}

// Commit applies all the staged changes at once. Changes are recorded in the
// order they were staged and can be retrieved with Changes until the next
// commit.
func (ns *NodeStates) Commit() {
	ns.changes = ns.changes[:0]
	for _, node := range ns.staged.Content() {
		prev := ns.states[node]
		ns.changes = append(ns.changes, StateChange{node, prev})
		if prev == Infected {
			ns.states[node] = Susceptible
			ns.nInfected--
		} else {
			ns.states[node] = Infected
			ns.nInfected++
		}
	}
	ns.staged.Clear()
}

// Discard drops all the staged changes.
func (ns *NodeStates) Discard() {
	ns.staged.Clear()
}

// Changes returns the changes applied by the last commit.
//
// Important: the slice is a view on one of the structure's internal buffers
// and is only valid until the next commit.
func (ns *NodeStates) Changes() []StateChange {
	return ns.changes
}

// Snapshot returns a copy of the committed states in node order.
func (ns *NodeStates) Snapshot() Snapshot {
	s := make(Snapshot, len(ns.states))
	copy(s, ns.states)
	return s
}
