// Package refgraph builds a dependency graph over a document's "$ref"
// strings: nodes are canonical refs, edges point from a ref to every ref
// reachable by walking its target. It reports strongly-connected components
// of size >= 2 (plus self-loops) as cycles, and produces a deterministic
// topological order over the acyclic condensation using Kahn's algorithm,
// ties broken by first-seen (insertion) order.
package refgraph

import (
	"github.com/speclab/schemacore/document"
	"github.com/speclab/schemacore/pointer"
	"github.com/speclab/schemacore/refresolver"
)

// Graph is the built reference dependency graph.
type Graph struct {
	nodes  []string            // insertion order
	index  map[string]int      // ref -> position in nodes
	edges  map[string][]string // ref -> refs it depends on
	Cycles [][]string          // strongly-connected components of size >= 2, or self-loops
	cyclic map[string]bool     // ref -> participates in some cycle
}

// Nodes returns every ref in the graph, in first-seen order.
func (g *Graph) Nodes() []string { return g.nodes }

// Edges returns the refs that ref directly depends on.
func (g *Graph) Edges(ref string) []string { return g.edges[ref] }

// IsCyclic reports whether ref participates in any cycle (a self-loop or a
// strongly-connected component of size >= 2).
func (g *Graph) IsCyclic(ref string) bool { return g.cyclic[ref] }

// Build scans doc for every "$ref" string (the same nodes
// refresolver.GetAllReferences would find), walks each target to find its
// outbound refs, and computes cycles plus a topological order.
func Build(doc document.Value) *Graph {
	g := &Graph{
		index: make(map[string]int),
		edges: make(map[string][]string),
	}

	var addNode func(ref string) int
	addNode = func(ref string) int {
		if idx, ok := g.index[ref]; ok {
			return idx
		}
		idx := len(g.nodes)
		g.index[ref] = idx
		g.nodes = append(g.nodes, ref)
		return idx
	}

	var visit func(ref string, seen map[string]bool)
	visit = func(ref string, seen map[string]bool) {
		if seen[ref] {
			return
		}
		seen[ref] = true
		addNode(ref)
		if _, exists := g.edges[ref]; exists {
			return
		}
		parsed, err := refresolver.ParseRef(ref)
		if err != nil || parsed.IsAnchor {
			g.edges[ref] = nil
			return
		}
		target, perr := pointer.Resolve(doc, parsed.Pointer)
		if perr != nil {
			g.edges[ref] = nil
			return
		}
		var deps []string
		walkRefs(target, func(dep string) {
			deps = append(deps, dep)
			addNode(dep)
		})
		g.edges[ref] = deps
		for _, dep := range deps {
			visit(dep, seen)
		}
	}

	seen := make(map[string]bool)
	walkRefs(doc, func(ref string) {
		addNode(ref)
		visit(ref, seen)
	})

	g.computeCycles()
	return g
}

func walkRefs(v document.Value, visit func(raw string)) {
	switch document.KindOf(v) {
	case document.KindObject:
		obj := v.(*document.Object)
		obj.Range(func(k string, child document.Value) bool {
			if k == "$ref" {
				if s, ok := child.(string); ok {
					visit(s)
				}
				return true
			}
			walkRefs(child, visit)
			return true
		})
	case document.KindArray:
		for _, child := range v.([]document.Value) {
			walkRefs(child, visit)
		}
	}
}

// computeCycles runs Tarjan's strongly-connected-components algorithm over
// the graph and records every SCC of size >= 2, plus any self-loop, as a
// cycle; every ref in such an SCC is marked cyclic.
func (g *Graph) computeCycles() {
	g.cyclic = make(map[string]bool)

	var (
		indexCounter int
		stack        []string
		onStack      = make(map[string]bool)
		lowlink      = make(map[string]int)
		idx          = make(map[string]int)
	)

	var strongconnect func(v string)
	strongconnect = func(v string) {
		idx[v] = indexCounter
		lowlink[v] = indexCounter
		indexCounter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, ok := idx[w]; !ok {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if idx[w] < lowlink[v] {
					lowlink[v] = idx[w]
				}
			}
		}

		if lowlink[v] == idx[v] {
			var scc []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			isSelfLoop := len(scc) == 1 && containsEdge(g.edges[scc[0]], scc[0])
			if len(scc) >= 2 || isSelfLoop {
				ordered := orderByInsertion(scc, g.index)
				g.Cycles = append(g.Cycles, ordered)
				for _, ref := range ordered {
					g.cyclic[ref] = true
				}
			}
		}
	}

	for _, v := range g.nodes {
		if _, ok := idx[v]; !ok {
			strongconnect(v)
		}
	}
}

func containsEdge(edges []string, target string) bool {
	for _, e := range edges {
		if e == target {
			return true
		}
	}
	return false
}

func orderByInsertion(refs []string, index map[string]int) []string {
	out := make([]string, len(refs))
	copy(out, refs)
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && index[out[j-1]] > index[out[j]] {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	return out
}

// TopologicalOrder computes Kahn's algorithm over the acyclic condensation
// of the graph: a cyclic ref's internal edges are ignored (it is treated as
// a single unit already "ready"), ties are broken by first-seen order so
// the result is deterministic across runs.
func (g *Graph) TopologicalOrder() []string {
	// Kahn's: a node is ready once all of its (acyclic) dependencies have
	// been emitted. We process dependency edges n -> dep meaning "n depends
	// on dep", so n is ready when every dep it points to has been emitted.
	emitted := make(map[string]bool, len(g.nodes))
	var order []string

	ready := func(n string) bool {
		for _, dep := range g.edges[n] {
			if g.sameSCC(n, dep) {
				continue
			}
			if !emitted[dep] {
				return false
			}
		}
		return true
	}

	remaining := append([]string(nil), g.nodes...)
	for len(remaining) > 0 {
		progressed := false
		var next []string
		for _, n := range remaining {
			if !emitted[n] && ready(n) {
				order = append(order, n)
				emitted[n] = true
				progressed = true
			} else if !emitted[n] {
				next = append(next, n)
			}
		}
		if !progressed {
			// Only cyclic leftovers (by construction, since ready() ignores
			// intra-SCC edges); emit them in first-seen order to guarantee
			// termination and determinism.
			for _, n := range remaining {
				if !emitted[n] {
					order = append(order, n)
					emitted[n] = true
				}
			}
			break
		}
		remaining = next
	}
	return order
}

func (g *Graph) sameSCC(a, b string) bool {
	if !g.cyclic[a] || !g.cyclic[b] {
		return false
	}
	for _, scc := range g.Cycles {
		hasA, hasB := false, false
		for _, r := range scc {
			if r == a {
				hasA = true
			}
			if r == b {
				hasB = true
			}
		}
		if hasA && hasB {
			return true
		}
	}
	return false
}
