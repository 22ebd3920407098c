package graph

import (
	"bytes"
	"strings"
	"testing"

	"github.com/alxayo/omaf-creator/internal/omaf/data"
	"github.com/alxayo/omaf-creator/internal/omaf/node"
)

func TestConnectAndEdgesFrom(t *testing.T) {
	g := New()
	src := node.NewForward(1, "src")
	dst := node.NewForward(2, "dst")
	g.Register(src)
	g.Register(dst)

	g.Connect(src, dst, AllStreams())

	edges := g.EdgesFrom(src)
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	if edges[0].To.ID() != dst.ID() {
		t.Fatalf("expected edge to dst")
	}
}

func TestReplaceConnectionsTo(t *testing.T) {
	g := New()
	src := node.NewForward(1, "src")
	oldDst := node.NewForward(2, "old")
	newDst := node.NewForward(3, "new")
	g.Register(src)
	g.Register(oldDst)
	g.Register(newDst)

	g.Connect(src, oldDst, AllStreams())
	g.ReplaceConnectionsTo(oldDst, newDst)

	edges := g.EdgesFrom(src)
	if len(edges) != 1 || edges[0].To.ID() != newDst.ID() {
		t.Fatalf("expected edge redirected to new, got %+v", edges)
	}
}

func TestReplaceConnectionsFrom(t *testing.T) {
	g := New()
	oldSrc := node.NewForward(1, "old")
	newSrc := node.NewForward(2, "new")
	dst := node.NewForward(3, "dst")
	g.Register(oldSrc)
	g.Register(newSrc)
	g.Register(dst)

	g.Connect(oldSrc, dst, AllStreams())
	g.ReplaceConnectionsFrom(oldSrc, newSrc)

	if len(g.EdgesFrom(oldSrc)) != 0 {
		t.Fatalf("expected no edges left from old source")
	}
	edges := g.EdgesFrom(newSrc)
	if len(edges) != 1 || edges[0].To.ID() != dst.ID() {
		t.Fatalf("expected edge now from new source to dst, got %+v", edges)
	}
}

func TestEliminateSplicesNodeOut(t *testing.T) {
	g := New()
	a := node.NewForward(1, "a")
	mid := node.NewForward(2, "mid")
	b := node.NewForward(3, "b")
	g.Register(a)
	g.Register(mid)
	g.Register(b)

	g.Connect(a, mid, StreamSet(data.StreamID(1)))
	g.Connect(mid, b, StreamSet(data.StreamID(1), data.StreamID(2)))

	g.Eliminate(mid)

	edgesFromA := g.EdgesFrom(a)
	if len(edgesFromA) != 1 {
		t.Fatalf("expected 1 edge from a after eliminate, got %d", len(edgesFromA))
	}
	if edgesFromA[0].To.ID() != b.ID() {
		t.Fatalf("expected edge from a to b directly")
	}
	if !edgesFromA[0].Filter.Allows(data.StreamID(1)) {
		t.Fatalf("expected intersected filter to allow stream 1")
	}
	if edgesFromA[0].Filter.Allows(data.StreamID(2)) {
		t.Fatalf("expected intersected filter to reject stream 2 (not in a->mid filter)")
	}

	edgesFromMid := g.EdgesFrom(mid)
	if len(edgesFromMid) != 0 {
		t.Fatalf("expected mid's outgoing edges cleared after eliminate")
	}
}

func TestFindNodeByID(t *testing.T) {
	g := New()
	n := node.NewForward(7, "seven")
	g.Register(n)

	if got := g.FindNodeByID(7); got == nil || got.ID() != 7 {
		t.Fatalf("expected to find node 7, got %v", got)
	}
	if got := g.FindNodeByID(99); got != nil {
		t.Fatalf("expected nil for unknown id, got %v", got)
	}
}

func TestErrorSignaled(t *testing.T) {
	g := New()
	if g.HasErrorSignaled() {
		t.Fatalf("expected no error signaled initially")
	}
	g.SetErrorSignaled()
	if !g.HasErrorSignaled() {
		t.Fatalf("expected error signaled after SetErrorSignaled")
	}
}

func TestGraphvizRendersNodesAndEdges(t *testing.T) {
	g := New()
	a := node.NewForward(1, "a")
	b := node.NewForward(2, "b")
	g.Register(a)
	g.Register(b)
	g.Connect(a, b, AllStreams())

	var buf bytes.Buffer
	if err := g.Graphviz(&buf); err != nil {
		t.Fatalf("Graphviz: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "digraph G") {
		t.Fatalf("expected digraph header, got %s", out)
	}
	if !strings.Contains(out, "n1 -> n2") {
		t.Fatalf("expected edge n1 -> n2, got %s", out)
	}
}

func TestStreamFilterIntersectAndApply(t *testing.T) {
	f := StreamSet(data.StreamID(1), data.StreamID(2))
	g := StreamSet(data.StreamID(2), data.StreamID(3))
	i := f.Intersect(g)

	if i.Allows(data.StreamID(1)) || i.Allows(data.StreamID(3)) {
		t.Fatalf("expected intersection to only allow stream 2")
	}
	if !i.Allows(data.StreamID(2)) {
		t.Fatalf("expected intersection to allow stream 2")
	}

	all := AllStreams()
	if all.Intersect(f).Allows(data.StreamID(99)) == false {
		// AllStreams ∩ f == f, so stream 99 (not in f) must be rejected.
	}
	if got := all.Intersect(f); got.Allows(data.StreamID(1)) != true || got.Allows(data.StreamID(99)) != false {
		t.Fatalf("expected AllStreams intersect f == f")
	}
}

func TestStreamFilterApplyPreservesOrder(t *testing.T) {
	f := StreamSet(data.StreamID(1), data.StreamID(3))
	s := data.Streams{data.EmptyData(1), data.EmptyData(2), data.EmptyData(3)}
	out := f.Apply(s)
	if len(out) != 2 || out[0].StreamID() != 1 || out[1].StreamID() != 3 {
		t.Fatalf("unexpected filtered streams: %+v", out)
	}
}
