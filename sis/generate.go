package sis

import (
	"math"
)

// Initial describes how the initial states of a network are assigned. It is
// implemented by Fraction and Sequence.
type Initial interface {
	states(n int) ([]State, error)
}

// Fraction infects the first floor(n*f) nodes of a network of n nodes. The
// fraction must be in [0, 1].
type Fraction float64

func (f Fraction) states(n int) ([]State, error) {
	v := float64(f)
	if math.IsNaN(v) || v < 0 || v > 1 {
		return nil, invalidInput("initial fraction must be in [0, 1], got %v", v)
	}
	nInfected := int(math.Floor(float64(n) * v))
	states := make([]State, n)
	for i := 0; i < nInfected; i++ {
		states[i] = Infected
	}
	return states, nil
}

// Sequence assigns an explicit state to each node, in node order.
type Sequence []State

func (s Sequence) states(n int) ([]State, error) {
	if len(s) != n {
		return nil, invalidInput("initial sequence has %d states, want %d", len(s), n)
	}
	for i, st := range s {
		if st != Susceptible && st != Infected {
			return nil, invalidInput("initial state of node %d must be 0 or 1, got %d", i, st)
		}
	}
	states := make([]State, n)
	copy(states, s)
	return states, nil
}

// Network is a topology together with the state of its nodes.
type Network struct {
	Topology *Topology
	States   *NodeStates
}

// NewNetwork returns a network over the given topology with the given
// initial states.
func NewNetwork(t *Topology, initial Initial) (*Network, error) {
	if t == nil {
		return nil, invalidInput("nil topology")
	}
	if initial == nil {
		return nil, invalidInput("missing initial state")
	}
	states, err := initial.states(t.NumNodes())
	if err != nil {
		return nil, err
	}
	return &Network{
		Topology: t,
		States:   NewNodeStates(states),
	}, nil
}

// Generate builds a directed ring of n nodes and assigns the initial states
// of its nodes.
func Generate(n int, initial Initial) (*Network, error) {
	if n < 1 {
		return nil, invalidInput("number of nodes must be positive, got %d", n)
	}
	return NewNetwork(Ring(n), initial)
}
