package sis

// Snapshot is the state of every node at a given step, in node order.
type Snapshot []State

// NumInfected returns the number of infected nodes in the snapshot.
func (s Snapshot) NumInfected() int {
	n := 0
	for _, st := range s {
		if st == Infected {
			n++
		}
	}
	return n
}

// Ints returns the snapshot as a slice of 0/1 integers.
func (s Snapshot) Ints() []int {
	out := make([]int, len(s))
	for i, st := range s {
		out[i] = int(st)
	}
	return out
}

// TimeSeries is the sequence of snapshots recorded once per completed step.
type TimeSeries []Snapshot

// Len returns the number of recorded steps.
func (ts TimeSeries) Len() int {
	return len(ts)
}

// Prevalence returns the number of infected nodes at each step.
func (ts TimeSeries) Prevalence() []int {
	p := make([]int, len(ts))
	for i, s := range ts {
		p[i] = s.NumInfected()
	}
	return p
}

// Transitions returns the nodes whose state at the given step differs from
// the previous step, in node order. The first step is compared against
// initial; if initial is nil, every infected node of the first step is
// reported.
func (ts TimeSeries) Transitions(step int, initial Snapshot) []int {
	prev := initial
	if step > 0 {
		prev = ts[step-1]
	}
	var nodes []int
	for node, st := range ts[step] {
		before := Susceptible
		if prev != nil {
			before = prev[node]
		}
		if st != before {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// Clone returns a deep copy of the time series.
func (ts TimeSeries) Clone() TimeSeries {
	if ts == nil {
		return nil
	}
	out := make(TimeSeries, len(ts))
	for i, s := range ts {
		out[i] = append(Snapshot(nil), s...)
	}
	return out
}
