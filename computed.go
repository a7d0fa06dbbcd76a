package entitystore

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// A node is a vertex of a store's dependency graph. State slices and
// collections are leaf nodes without a compute function; computed values carry
// their compute function, their cached value and a dirty flag.
//
// Invariant: a clean computed node has only clean sources. Marking a node dirty
// therefore stops at dependents that are already dirty.
type node struct {
	name       string
	kind       Kind
	sources    []*node
	dependents []*node

	compute func(Reader) any
	value   any
	dirty   bool
}

// markDependentsDirty marks every transitive dependent of n dirty without
// recomputing any of them.
func (n *node) markDependentsDirty() {
	for _, d := range n.dependents {
		if d.dirty {
			continue
		}
		d.dirty = true
		d.markDependentsDirty()
	}
}

func (n *node) dependsOn(name string) bool {
	return slices.ContainsFunc(n.sources, func(s *node) bool { return s.name == name })
}

// A graph is the dependency graph of a store. Its nodes are fixed at Build; only
// the caches and dirty flags of computed nodes change afterwards, guarded by
// the store's cache lock.
type graph struct {
	nodes map[string]*node
	// storeAttr labels recomputation measurements.
	storeAttr attribute.Set
}

// invalidate marks the dependents of the changed slices dirty, and returns the
// names of every transitive dependent in the given order.
func (g *graph) invalidate(changed []string, order []string) []string {
	affected := make(map[*node]bool)
	var walk func(n *node)
	walk = func(n *node) {
		for _, d := range n.dependents {
			if !affected[d] {
				affected[d] = true
				walk(d)
			}
		}
	}
	for _, name := range changed {
		if n, ok := g.nodes[name]; ok {
			n.markDependentsDirty()
			walk(n)
		}
	}
	if len(affected) == 0 {
		return nil
	}
	var names []string
	for _, name := range order {
		if affected[g.nodes[name]] {
			names = append(names, name)
		}
	}
	return names
}

// release drops every cached value.
func (g *graph) release() {
	for _, n := range g.nodes {
		if n.kind == KindComputed {
			n.value = nil
			n.dirty = true
		}
	}
}

// eval returns the value of the computed node n over the given snapshot,
// recomputing it only when dirty.
func (g *graph) eval(n *node, snap *Snapshot) any {
	if !n.dirty {
		return n.value
	}
	n.value = n.compute(Reader{g: g, n: n, snap: snap})
	n.dirty = false
	recomputations.Add(context.Background(), 1, metric.WithAttributeSet(g.storeAttr))
	return n.value
}

// A Reader gives a computed value's compute function access to its declared
// sources. Use the From methods of the keys to read through a Reader.
//
// Reading a slice that is not a declared source of the computed value panics:
// computed values must be pure functions of their declared sources.
type Reader struct {
	g    *graph
	n    *node
	snap *Snapshot
}

// Snapshot returns the snapshot the computed value is evaluated over.
func (r Reader) Snapshot() *Snapshot {
	return r.snap
}

func (r Reader) read(name string) any {
	if r.n == nil || !r.n.dependsOn(name) {
		panic(fmt.Sprintf("entitystore: computed %q reads %q, which is not one of its declared sources", r.nodeName(), name))
	}
	src := r.g.nodes[name]
	if src.kind == KindComputed {
		return r.g.eval(src, r.snap)
	}
	v, _ := r.snap.value(name)
	return v
}

func (r Reader) nodeName() string {
	if r.n == nil {
		return ""
	}
	return r.n.name
}

// findCycle reports a cycle among the computed nodes of g, if any, as the path of
// names along it. It runs a depth-first search colouring nodes white (unseen),
// grey (on the current path) and black (finished); an edge into a grey node
// closes a cycle.
func findCycle(g *graph, order []string) []string {
	const (
		white = iota
		grey
		black
	)
	colour := make(map[*node]int, len(g.nodes))
	var path []*node
	var cycle []string

	var visit func(n *node) bool
	visit = func(n *node) bool {
		colour[n] = grey
		path = append(path, n)
		for _, src := range n.sources {
			switch colour[src] {
			case grey:
				start := slices.Index(path, src)
				for _, p := range path[start:] {
					cycle = append(cycle, p.name)
				}
				cycle = append(cycle, src.name)
				return true
			case white:
				if visit(src) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		colour[n] = black
		return false
	}

	for _, name := range order {
		n := g.nodes[name]
		if n.kind == KindComputed && colour[n] == white && visit(n) {
			return cycle
		}
	}
	return nil
}
