// Package analysis computes statistics over the time series produced by a
// simulation.
package analysis

import (
	"github.com/leomarlo/simulate-sis-on-circle/sis"
	"github.com/rhartert/yagh"
)

// NodeStats aggregates the history of a single node over a series.
type NodeStats struct {
	Node int

	// InfectedSteps is the number of recorded steps the node ended infected.
	InfectedSteps int

	// Infections and Recoveries count the S->I and I->S transitions.
	Infections int
	Recoveries int
}

// Summary describes a recorded run.
type Summary struct {
	Steps int
	Nodes int

	// Prevalence is the number of infected nodes after each step.
	Prevalence []int

	// MeanPrevalence is the average fraction of infected nodes over all the
	// recorded steps (0 for an empty series).
	MeanPrevalence float64

	// PeakInfected is the largest number of infected nodes reached at
	// PeakStep (0-based, first occurrence). PeakStep is -1 for an empty
	// series.
	PeakInfected int
	PeakStep     int

	// ExtinctionStep is the first step (0-based) after which no node is
	// infected, or -1 if the infection never died out. Without infected
	// nodes, no node can be infected again.
	ExtinctionStep int

	NodeStats []NodeStats
}

// Summarize computes the summary of the series. The initial snapshot is used
// to count the transitions of the first step; it may be nil if unknown, in
// which case all nodes are assumed susceptible before the first step.
func Summarize(initial sis.Snapshot, ts sis.TimeSeries) Summary {
	nNodes := len(initial)
	if len(ts) > 0 {
		nNodes = len(ts[0])
	}

	s := Summary{
		Steps:          len(ts),
		Nodes:          nNodes,
		Prevalence:     ts.Prevalence(),
		PeakStep:       -1,
		ExtinctionStep: -1,
		NodeStats:      make([]NodeStats, nNodes),
	}
	for n := range s.NodeStats {
		s.NodeStats[n].Node = n
	}

	total := 0
	for step, p := range s.Prevalence {
		total += p
		if s.PeakStep == -1 || p > s.PeakInfected {
			s.PeakInfected = p
			s.PeakStep = step
		}
		if p == 0 && s.ExtinctionStep == -1 {
			s.ExtinctionStep = step
		}
	}
	if len(ts) > 0 && nNodes > 0 {
		s.MeanPrevalence = float64(total) / float64(len(ts)*nNodes)
	}

	for step, snapshot := range ts {
		for node, st := range snapshot {
			if st == sis.Infected {
				s.NodeStats[node].InfectedSteps++
			}
		}
		for _, node := range ts.Transitions(step, initial) {
			if snapshot[node] == sis.Infected {
				s.NodeStats[node].Infections++
			} else {
				s.NodeStats[node].Recoveries++
			}
		}
	}

	return s
}

// MostInfected returns the k nodes that spent the most steps infected, in
// decreasing order. Ties are broken by position in stats, which is the node
// index for the stats of a Summary. If k is larger than the number of nodes,
// all the nodes are returned.
func MostInfected(stats []NodeStats, k int) []NodeStats {
	n := len(stats)
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}

	// Costs order nodes by decreasing infected steps and then by increasing
	// position. Costs are unique since 0 <= i < n.
	heap := yagh.New[int](n)
	for i, ns := range stats {
		heap.Put(i, i-ns.InfectedSteps*n)
	}

	top := make([]NodeStats, 0, k)
	for len(top) < k && heap.Size() > 0 {
		entry := heap.Pop()
		top = append(top, stats[entry.Elem])
	}
	return top
}
