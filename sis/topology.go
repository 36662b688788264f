package sis

// Edge represents a directed edge between two nodes.
type Edge struct {
	From int
	To   int
}

// Topology represents the contact network as a directed graph. Nexts[i] and
// Prevs[i] hold the indices (in Edges) of the outgoing and incoming edges of
// node i respectively.
type Topology struct {
	Nexts [][]int
	Prevs [][]int
	Edges []Edge
}

// NewTopology creates a new topology with the specified edges and number of
// nodes. It is important to ensure that edges are only between nodes within
// the range [0, nNodes); otherwise, the function will panic.
func NewTopology(edges []Edge, nNodes int) *Topology {
	t := &Topology{
		Nexts: make([][]int, nNodes),
		Prevs: make([][]int, nNodes),
		Edges: make([]Edge, len(edges)),
	}
	for i, e := range edges {
		t.Edges[i] = e
		t.Nexts[e.From] = append(t.Nexts[e.From], i)
		t.Prevs[e.To] = append(t.Prevs[e.To], i)
	}
	return t
}

// Ring creates the directed ring over n nodes: node i has a single outgoing
// edge to node (i+1) mod n. A ring of one node is a self-loop.
func Ring(n int) *Topology {
	edges := make([]Edge, n)
	for i := range edges {
		edges[i] = Edge{From: i, To: (i + 1) % n}
	}
	return NewTopology(edges, n)
}

// NumNodes returns the number of nodes in the topology.
func (t *Topology) NumNodes() int {
	return len(t.Nexts)
}

// Predecessors returns the source nodes of the edges entering node, in edge
// order. A node appears once per edge, so parallel edges count twice.
func (t *Topology) Predecessors(node int) []int {
	preds := make([]int, len(t.Prevs[node]))
	for i, e := range t.Prevs[node] {
		preds[i] = t.Edges[e].From
	}
	return preds
}

// Successors returns the target nodes of the edges leaving node, in edge
// order.
func (t *Topology) Successors(node int) []int {
	succs := make([]int, len(t.Nexts[node]))
	for i, e := range t.Nexts[node] {
		succs[i] = t.Edges[e].To
	}
	return succs
}

// Clone returns a deep copy of the topology.
func (t *Topology) Clone() *Topology {
	return NewTopology(t.Edges, len(t.Nexts))
}
