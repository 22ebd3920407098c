// Package graph holds the pure topology of a data-flow graph: node
// registration, edges, structural rewrites, and graphviz export. It does
// not itself decide how a Step is executed — that is the job of the
// executor package, which reads this topology to build its own routing.
package graph

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/alxayo/omaf-creator/internal/omaf/node"
)

// Edge connects one node's output to a Processor's input, carrying only
// the subset of streams that pass Filter.
type Edge struct {
	ID     uuid.UUID
	From   node.Node
	To     node.Processor
	Filter StreamFilter
	Label  string
}

// Graph is the topology shared by every executor: the set of registered
// nodes, which of them are sources, the edge list keyed by producing
// node, and bookkeeping for debug/graphviz output.
type Graph struct {
	mu sync.Mutex

	nodes   map[node.ID]node.Node
	active  map[node.ID]bool
	sources map[node.ID]node.Source
	owned   []node.Node

	edgesFrom map[node.ID][]*Edge

	graphvizNodes map[string]string
	graphvizEdges []graphvizEdge

	errorSignaled bool
}

type graphvizEdge struct {
	from, to string
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		nodes:         make(map[node.ID]node.Node),
		active:        make(map[node.ID]bool),
		sources:       make(map[node.ID]node.Source),
		edgesFrom:     make(map[node.ID][]*Edge),
		graphvizNodes: make(map[string]string),
	}
}

// Register adds n to the graph's node set, marking it active.
func (g *Graph) Register(n node.Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[n.ID()] = n
	g.active[n.ID()] = true
}

// Unregister removes n from the graph's node and active sets.
func (g *Graph) Unregister(n node.Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.nodes, n.ID())
	delete(g.active, n.ID())
	delete(g.sources, n.ID())
}

// RegisterSource additionally marks s as an originating node whose
// Produce the executor calls every step.
func (g *Graph) RegisterSource(s node.Source) {
	g.Register(s)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sources[s.ID()] = s
}

// Connect adds an edge from one node's output to a Processor's input,
// filtered to the stream indices filter allows.
func (g *Graph) Connect(from node.Node, to node.Processor, filter StreamFilter) *Edge {
	e := &Edge{ID: uuid.New(), From: from, To: to, Filter: filter}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edgesFrom[from.ID()] = append(g.edgesFrom[from.ID()], e)
	return e
}

// EdgesFrom returns the edges whose source is n, in connection order.
func (g *Graph) EdgesFrom(n node.Node) []*Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Edge, len(g.edgesFrom[n.ID()]))
	copy(out, g.edgesFrom[n.ID()])
	return out
}

// ReplaceConnectionsTo redirects every edge whose destination is old so it
// points at replacement instead, leaving old's own outgoing edges (if any)
// untouched.
func (g *Graph) ReplaceConnectionsTo(old, replacement node.Processor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, edges := range g.edgesFrom {
		for _, e := range edges {
			if e.To.ID() == old.ID() {
				e.To = replacement
			}
		}
	}
}

// ReplaceConnectionsFrom redirects every edge whose source is old so it
// originates from replacement instead, leaving edges into old untouched.
func (g *Graph) ReplaceConnectionsFrom(old, replacement node.Processor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	edges := g.edgesFrom[old.ID()]
	delete(g.edgesFrom, old.ID())
	g.edgesFrom[replacement.ID()] = append(g.edgesFrom[replacement.ID()], edges...)
	for _, e := range edges {
		e.From = replacement
	}
}

// ReplaceInputOutput splices a graph like `-->original-->` into
// `-->in    out-->`: every edge that fed original now feeds in, and every
// edge that original fed is now fed by out. in and out may be the same
// node as original or each other.
func (g *Graph) ReplaceInputOutput(original node.Processor, in, out node.Processor) {
	g.ReplaceConnectionsTo(original, in)
	g.ReplaceConnectionsFrom(original, out)
}

// Eliminate splices n out of the graph: every edge feeding n is redirected
// to each of n's own downstream destinations, with the two edges' filters
// intersected and their labels concatenated.
func (g *Graph) Eliminate(n node.Processor) {
	g.mu.Lock()
	downstream := append([]*Edge(nil), g.edgesFrom[n.ID()]...)
	delete(g.edgesFrom, n.ID())
	g.mu.Unlock()

	for _, edges := range g.allEdges() {
		for _, up := range edges {
			if up.To.ID() != n.ID() {
				continue
			}
			for _, down := range downstream {
				g.mu.Lock()
				g.edgesFrom[up.From.ID()] = append(g.edgesFrom[up.From.ID()], &Edge{
					ID:     uuid.New(),
					From:   up.From,
					To:     down.To,
					Filter: up.Filter.Intersect(down.Filter),
					Label:  concatLabel(up.Label, down.Label),
				})
				g.mu.Unlock()
			}
		}
	}
	g.removeEdgesTo(n)
}

func concatLabel(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "/" + b
	}
}

func (g *Graph) allEdges() map[node.ID][]*Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[node.ID][]*Edge, len(g.edgesFrom))
	for k, v := range g.edgesFrom {
		out[k] = append([]*Edge(nil), v...)
	}
	return out
}

func (g *Graph) removeEdgesTo(n node.Processor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for from, edges := range g.edgesFrom {
		kept := edges[:0]
		for _, e := range edges {
			if e.To.ID() != n.ID() {
				kept = append(kept, e)
			}
		}
		g.edgesFrom[from] = kept
	}
}

// FindNodeByID returns the registered node with the given id, or nil, by a
// lookup in the graph's node map; intended for debugging.
func (g *Graph) FindNodeByID(id node.ID) node.Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nodes[id]
}

// GiveOwnership keeps n alive for the graph's lifetime when nothing else
// holds a reference to it, expressing "the graph is now responsible for
// keeping this reachable" even though Go's GC does not require it.
func (g *Graph) GiveOwnership(n node.Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.owned = append(g.owned, n)
}

// SetErrorSignaled records that a fatal error has already been reported,
// so later cleanup code can avoid signaling a second, less useful error
// during unwind.
func (g *Graph) SetErrorSignaled() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errorSignaled = true
}

// HasErrorSignaled reports whether SetErrorSignaled has been called.
func (g *Graph) HasErrorSignaled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.errorSignaled
}

// Nodes returns every registered node, for executors to build their own
// per-node bookkeeping from.
func (g *Graph) Nodes() []node.Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]node.Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// Sources returns every registered source.
func (g *Graph) Sources() []node.Source {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]node.Source, 0, len(g.sources))
	for _, s := range g.sources {
		out = append(out, s)
	}
	return out
}

// SetNodeInactive marks a node inactive in the graph's active-node
// bookkeeping (distinct from node.Node.SetInactive, which only flips the
// node's own flag). Neither executor in package exec calls it, so that
// bookkeeping changes only when a caller invokes it directly.
func (g *Graph) SetNodeInactive(n node.Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active[n.ID()] = false
}

// NumActiveNodes reports how many registered nodes are still marked
// active in the graph's bookkeeping.
func (g *Graph) NumActiveNodes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, a := range g.active {
		if a {
			n++
		}
	}
	return n
}

// AddGraphvizNode adds or overwrites a node label for graphviz export,
// used for nodes that exist purely for visualization.
func (g *Graph) AddGraphvizNode(id, label string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.graphvizNodes[id] = label
}

// AddGraphvizEdge records an extra edge for graphviz export, used to
// annotate relationships the execution graph itself does not carry as a
// real Edge (e.g. a config dependency).
func (g *Graph) AddGraphvizEdge(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.graphvizEdges = append(g.graphvizEdges, graphvizEdge{from: from, to: to})
}

// Graphviz writes a DOT-format rendering of the graph's nodes and edges to
// w, suitable for `dot -Tpng` or any graphviz viewer.
func (g *Graph) Graphviz(w io.Writer) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := fmt.Fprintln(w, "digraph G {"); err != nil {
		return err
	}

	ids := make([]node.ID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		n := g.nodes[id]
		if _, err := fmt.Fprintf(w, "  n%d [label=%q];\n", n.ID(), n.Name()); err != nil {
			return err
		}
	}
	for _, id := range ids {
		for _, e := range g.edgesFrom[id] {
			label := e.Label
			if label == "" {
				if _, err := fmt.Fprintf(w, "  n%d -> n%d;\n", e.From.ID(), e.To.ID()); err != nil {
					return err
				}
				continue
			}
			if _, err := fmt.Fprintf(w, "  n%d -> n%d [label=%q];\n", e.From.ID(), e.To.ID(), label); err != nil {
				return err
			}
		}
	}
	for id, label := range g.graphvizNodes {
		if _, err := fmt.Fprintf(w, "  %s [label=%q,shape=note];\n", id, label); err != nil {
			return err
		}
	}
	for _, e := range g.graphvizEdges {
		if _, err := fmt.Fprintf(w, "  %s -> %s [style=dashed];\n", e.from, e.to); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}
