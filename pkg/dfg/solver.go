package dfg

import (
	"container/list"

	"golang.org/x/tools/container/intsets"

	"github.com/l3aro/go-nullflow/pkg/cfg"
	"github.com/l3aro/go-nullflow/pkg/snapshot"
)

// Solve iterates g to a fixpoint. The entry starts from the empty snapshot
// and every other node from Unreachable; nodes no feasible path reaches stay
// there. Every transfer is monotone over a lattice of height 2, so the
// iteration terminates.
func Solve(g *cfg.Graph) *Solution {
	n := len(g.Nodes)
	s := &Solution{
		graph: g,
		in:    make([]snapshot.Snapshot, n),
		out:   make([]snapshot.Snapshot, n),
	}
	for i := range n {
		s.in[i] = snapshot.Unreachable()
		s.out[i] = snapshot.Unreachable()
	}

	// Worklist algorithm; queued mirrors the list contents.
	var queued intsets.Sparse
	worklist := list.New()
	push := func(id int) {
		if queued.Insert(id) {
			worklist.PushBack(id)
		}
	}
	push(g.Entry)

	for worklist.Len() > 0 {
		id := worklist.Remove(worklist.Front()).(int)
		queued.Remove(id)
		s.Visits++

		node := &g.Nodes[id]
		in := s.incoming(id)
		out := Transfer(node, in)
		s.in[id] = in

		changed := !out.Equal(s.out[id])
		s.out[id] = out
		if !changed {
			continue
		}
		for _, ei := range node.Succs {
			push(g.Edges[ei].To)
		}
	}

	return s
}

// incoming computes the state before node id: the meet over all incoming
// edges of the predecessor's outgoing state with the edge's assumptions.
func (s *Solution) incoming(id int) snapshot.Snapshot {
	g := s.graph
	if id == g.Entry {
		return snapshot.Empty()
	}
	acc := snapshot.Unreachable()
	for _, ei := range g.Nodes[id].Preds {
		e := &g.Edges[ei]
		acc = acc.Meet(ApplyEdge(e, s.out[e.From]))
	}
	return acc
}
