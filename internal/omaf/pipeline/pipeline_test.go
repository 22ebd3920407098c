package pipeline

import (
	"strings"
	"testing"

	"github.com/alxayo/omaf-creator/internal/omaf/config"
	"github.com/alxayo/omaf-creator/internal/omaf/data"
	"github.com/alxayo/omaf-creator/internal/omaf/exec"
	"github.com/alxayo/omaf-creator/internal/omaf/node"
)

func mustLoad(t *testing.T, doc string) *config.Pipeline {
	t.Helper()
	p, err := config.Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return p
}

func TestBuildWiresCombineFanInRegardlessOfDeclarationOrder(t *testing.T) {
	// The combine.sink nodes are declared before their group's
	// combine.source, exercising the two-phase group resolution.
	doc := `{
		"nodes": [
			{"id": 1, "kind": "processor", "type": "combine.sink", "params": {"group": "g", "index": 0}},
			{"id": 2, "kind": "processor", "type": "combine.sink", "params": {"group": "g", "index": 1}},
			{"id": 3, "kind": "source", "type": "combine.source", "params": {"group": "g"}},
			{"id": 4, "kind": "sink", "type": "debugsave"}
		],
		"edges": [
			{"from": 3, "to": 4}
		]
	}`
	built, err := Build(mustLoad(t, doc), Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	sinkA, ok := built.Nodes[1].(node.Processor)
	if !ok {
		t.Fatalf("node 1 is not a Processor: %T", built.Nodes[1])
	}
	sinkB, ok := built.Nodes[2].(node.Processor)
	if !ok {
		t.Fatalf("node 2 is not a Processor: %T", built.Nodes[2])
	}
	src, ok := built.Nodes[3].(node.Source)
	if !ok {
		t.Fatalf("node 3 is not a Source: %T", built.Nodes[3])
	}
	if src.ID() != 3 {
		t.Fatalf("expected combine source to keep its declared id 3, got %d", src.ID())
	}

	e := exec.NewSequential(built.Graph)

	sinkA.HasInput(data.Streams{data.New(10, data.CPUBytes{Planes: []data.Plane{{Bytes: []byte("a")}}}, data.Metadata{})})
	sinkB.HasInput(data.Streams{data.New(11, data.CPUBytes{Planes: []data.Plane{{Bytes: []byte("b")}}}, data.Metadata{})})

	if _, err := e.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !src.Active() {
		t.Fatalf("expected combine source still active after one tuple")
	}
}

func TestBuildRejectsCombineSinkWithUnknownGroup(t *testing.T) {
	doc := `{"nodes":[{"id":1,"kind":"processor","type":"combine.sink","params":{"group":"missing","index":0}}]}`
	if _, err := Build(mustLoad(t, doc), Options{}); err == nil {
		t.Fatalf("expected an error for a combine.sink whose group has no source")
	}
}

func TestBuildWiresTileProxySinkAndSource(t *testing.T) {
	doc := `{
		"nodes": [
			{"id": 1, "kind": "processor", "type": "tileproxy.sink", "params": {"stream_ids": [10]}},
			{"id": 2, "kind": "processor", "type": "tileproxy.sink", "params": {"stream_ids": [11]}},
			{"id": 3, "kind": "source", "type": "tileproxy.source"},
			{"id": 4, "kind": "sink", "type": "debugsave"}
		],
		"edges": [{"from": 3, "to": 4}],
		"tile_merge": {"tile_count": 2, "output_mode": "mono", "extractor_stream_id": 100, "extractor_track_id": 1}
	}`
	built, err := Build(mustLoad(t, doc), Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if built.TileProxy == nil {
		t.Fatalf("expected a tile proxy to be built")
	}
	if len(built.Graph.Sources()) != 1 {
		t.Fatalf("expected exactly one registered source, got %d", len(built.Graph.Sources()))
	}
}

func TestBuildRejectsTileProxyNodeWithoutTileMergeSection(t *testing.T) {
	doc := `{"nodes":[{"id":1,"kind":"source","type":"tileproxy.source"}]}`
	if _, err := Build(mustLoad(t, doc), Options{}); err == nil {
		t.Fatalf("expected an error when tileproxy.source is used without a tile_merge section")
	}
}

func TestBuildRejectsUnknownNodeType(t *testing.T) {
	doc := `{"nodes":[{"id":1,"kind":"sink","type":"nonexistent"}]}`
	if _, err := Build(mustLoad(t, doc), Options{}); err == nil {
		t.Fatalf("expected an error for an unknown node type")
	}
}
