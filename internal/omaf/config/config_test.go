package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadParsesNodesEdgesAndTileMerge(t *testing.T) {
	doc := `{
		"nodes": [
			{"id": 1, "kind": "sink", "type": "debugsave", "name": "dbg"},
			{"id": 2, "kind": "sink", "type": "save", "name": "seg", "params": {"file_template": "out/seg-$Number$.m4s"}}
		],
		"edges": [
			{"from": 1, "to": 2}
		],
		"tile_merge": {"tile_count": 4, "output_mode": "side_by_side", "extractor_stream_id": 100, "extractor_track_id": 1}
	}`

	p, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(p.Nodes) != 2 || len(p.Edges) != 1 {
		t.Fatalf("unexpected parse result: %+v", p)
	}
	if p.TileMerge == nil || p.TileMerge.TileCount != 4 || p.TileMerge.OutputMode != "side_by_side" {
		t.Fatalf("unexpected tile merge: %+v", p.TileMerge)
	}

	var params struct {
		FileTemplate string `json:"file_template"`
	}
	if err := json.Unmarshal(p.Nodes[1].Params, &params); err != nil {
		t.Fatalf("unmarshal node params: %v", err)
	}
	if params.FileTemplate != "out/seg-$Number$.m4s" {
		t.Fatalf("unexpected file template %q", params.FileTemplate)
	}
}

func TestLoadRejectsEdgeToUnknownNode(t *testing.T) {
	doc := `{"nodes":[{"id":1,"kind":"source","type":"tileproxy.source"}],"edges":[{"from":1,"to":99}]}`
	if _, err := Load(strings.NewReader(doc)); err == nil {
		t.Fatalf("expected an error for an edge referencing an unknown node")
	}
}

func TestLoadRejectsDuplicateNodeID(t *testing.T) {
	doc := `{"nodes":[{"id":1,"kind":"sink","type":"debugsave"},{"id":1,"kind":"sink","type":"debugsave"}]}`
	if _, err := Load(strings.NewReader(doc)); err == nil {
		t.Fatalf("expected an error for a duplicate node id")
	}
}

func TestLoadRejectsUnknownKind(t *testing.T) {
	doc := `{"nodes":[{"id":1,"kind":"weird","type":"debugsave"}]}`
	if _, err := Load(strings.NewReader(doc)); err == nil {
		t.Fatalf("expected an error for an unknown node kind")
	}
}

func TestLoadRejectsNonPositiveTileCount(t *testing.T) {
	doc := `{"nodes":[],"tile_merge":{"tile_count":0,"output_mode":"mono"}}`
	if _, err := Load(strings.NewReader(doc)); err == nil {
		t.Fatalf("expected an error for a non-positive tile_count")
	}
}

func TestWatchFileReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.json")
	initial := `{"nodes":[{"id":1,"kind":"sink","type":"debugsave"}]}`
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	type result struct {
		p   *Pipeline
		err error
	}
	results := make(chan result, 8)
	w, err := WatchFile(path, func(p *Pipeline, err error) {
		results <- result{p, err}
	})
	if err != nil {
		t.Fatalf("WatchFile: %v", err)
	}
	defer w.Close()

	select {
	case r := <-results:
		if r.err != nil || len(r.p.Nodes) != 1 {
			t.Fatalf("unexpected initial callback: %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for initial callback")
	}

	updated := `{"nodes":[{"id":1,"kind":"sink","type":"debugsave"},{"id":2,"kind":"sink","type":"save","params":{"file_template":"x-$Number$"}}]}`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case r := <-results:
		if r.err != nil || len(r.p.Nodes) != 2 {
			t.Fatalf("unexpected reload callback: %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for reload callback")
	}
}
