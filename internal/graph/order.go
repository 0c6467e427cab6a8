// Package graph orders context nodes by their declared edges.
// All functions are pure and deterministic.
package graph

import "github.com/loomworks/loom/internal/model"

// Ordering is the result of a topological sort attempt.
//
// When CycleDetected is true, Nodes holds the input in its original order:
// partial output is more useful than none during interactive editing, so a
// cycle downgrades the ordering guarantee instead of failing the render.
type Ordering struct {
	Nodes         []model.Node
	CycleDetected bool
}

// Order topologically sorts nodes using Kahn's algorithm. The sort is
// stable: among nodes with no remaining unmet dependency, original array
// order breaks ties, so semantically-neutral edge reorderings cannot change
// the output. Edges referencing unknown node IDs are ignored.
func Order(nodes []model.Node, edges []model.Edge) Ordering {
	if len(edges) == 0 {
		return Ordering{Nodes: copyNodes(nodes)}
	}

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}

	indegree := make([]int, len(nodes))
	succ := make(map[int][]int, len(nodes))
	for _, e := range edges {
		from, okFrom := index[e.Source]
		to, okTo := index[e.Target]
		if !okFrom || !okTo || from == to {
			continue
		}
		indegree[to]++
		succ[from] = append(succ[from], to)
	}

	// Ready nodes are visited in ascending original position. A sorted
	// insert keeps the frontier ordered without re-sorting on every pop.
	var ready []int
	for i := range nodes {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	ordered := make([]model.Node, 0, len(nodes))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		ordered = append(ordered, nodes[i])
		for _, next := range succ[i] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = insertSorted(ready, next)
			}
		}
	}

	if len(ordered) != len(nodes) {
		// Cycle: some nodes never reached indegree zero.
		return Ordering{Nodes: copyNodes(nodes), CycleDetected: true}
	}
	return Ordering{Nodes: ordered}
}

func insertSorted(s []int, v int) []int {
	pos := len(s)
	for i, x := range s {
		if v < x {
			pos = i
			break
		}
	}
	s = append(s, 0)
	copy(s[pos+1:], s[pos:])
	s[pos] = v
	return s
}

func copyNodes(nodes []model.Node) []model.Node {
	out := make([]model.Node, len(nodes))
	copy(out, nodes)
	return out
}
