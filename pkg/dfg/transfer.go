package dfg

import (
	"fmt"

	"github.com/l3aro/go-nullflow/pkg/cfg"
	"github.com/l3aro/go-nullflow/pkg/nullness"
	"github.com/l3aro/go-nullflow/pkg/snapshot"
	"github.com/l3aro/go-nullflow/pkg/stable"
)

// Transfer computes the state after node n from the state before it. It
// depends on nothing but its arguments.
func Transfer(n *cfg.Node, in snapshot.Snapshot) snapshot.Snapshot {
	if in.IsUnreachable() {
		return in
	}

	switch n.Kind {
	case cfg.NodeEntry, cfg.NodeExit, cfg.NodeJoin, cfg.NodeBranch,
		cfg.NodeRead, cfg.NodeUse, cfg.NodeJump:
		return in

	case cfg.NodeAssert:
		if !n.HasKey {
			return in
		}
		return in.With(snapshot.Fact{
			Key:    n.Key,
			State:  nullness.NotNull,
			Origin: snapshot.Origin{Kind: snapshot.OriginAssertion, At: n.Op},
		})

	case cfg.NodeAssign, cfg.NodeDecl:
		out := in
		if n.Path != "" {
			out = out.WithoutRoot(n.Path)
		}
		if !n.HasKey {
			return out
		}
		if n.SeedNotNull || (n.SeedFrom != "" && in.State(n.SeedFrom) == nullness.NotNull) {
			out = out.With(snapshot.Fact{
				Key:    n.Key,
				State:  nullness.NotNull,
				Origin: snapshot.Origin{Kind: snapshot.OriginAssignment, At: n.At},
			})
		}
		return out

	default:
		panic(&cfg.InternalError{Msg: fmt.Sprintf("dfg: no transfer for node kind %s", n.Kind)})
	}
}

// ApplyEdge returns what holds at the target of e given the state s at its
// source. Infeasible edges carry nothing.
func ApplyEdge(e *cfg.Edge, s snapshot.Snapshot) snapshot.Snapshot {
	if e.Infeasible || s.IsUnreachable() {
		return snapshot.Unreachable()
	}

	out := s
	for _, r := range e.Assume {
		if r.Equal == "" {
			out = out.With(snapshot.Fact{Key: r.Key, State: r.State, Origin: r.Origin})
			continue
		}

		st := nullness.Refine(s.State(r.Key), s.State(r.Equal))
		if st == nullness.Unreachable {
			return snapshot.Unreachable()
		}
		for _, key := range []stable.Key{r.Key, r.Equal} {
			if s.State(key) != st {
				out = out.With(snapshot.Fact{Key: key, State: st, Origin: r.Origin})
			}
		}
	}
	return out
}
