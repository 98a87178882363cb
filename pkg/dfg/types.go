// Package dfg runs the forward nullability dataflow over a control flow
// graph and holds the resulting snapshots.
package dfg

import (
	"github.com/l3aro/go-nullflow/pkg/cfg"
	"github.com/l3aro/go-nullflow/pkg/nullness"
	"github.com/l3aro/go-nullflow/pkg/snapshot"
	"github.com/l3aro/go-nullflow/pkg/stable"
)

// Solution holds the fixpoint snapshots of one graph. It is read-only once
// Solve returns.
type Solution struct {
	graph *cfg.Graph
	in    []snapshot.Snapshot // state before each node
	out   []snapshot.Snapshot // state after each node

	// Visits counts node evaluations until the fixpoint was reached.
	Visits int
}

// Graph returns the solved graph.
func (s *Solution) Graph() *cfg.Graph { return s.graph }

// In returns the snapshot holding immediately before node n.
func (s *Solution) In(n int) snapshot.Snapshot { return s.in[n] }

// Out returns the snapshot holding immediately after node n.
func (s *Solution) Out(n int) snapshot.Snapshot { return s.out[n] }

// Reachable reports whether any execution reaches node n.
func (s *Solution) Reachable(n int) bool { return !s.in[n].IsUnreachable() }

// State returns what is known about k immediately before node n.
func (s *Solution) State(n int, k stable.Key) nullness.State {
	return s.in[n].State(k)
}

// Describe renders the incoming snapshot of node n with source names.
func (s *Solution) Describe(n int) string {
	return s.in[n].Format(s.graph.Names)
}
