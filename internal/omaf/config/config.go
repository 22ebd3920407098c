// Package config loads the JSON description of a pipeline graph: which
// nodes to create, how they connect, and the tile-merge layout a
// tileproxy.Proxy should use. It is deliberately thin: it does not parse
// codec-specific OMAF packaging options, only enough to construct a
// graph.Graph and wire it with internal/omaf/pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alxayo/omaf-creator/internal/omaf/errs"
)

// NodeKind names which graph role a NodeSpec plays.
type NodeKind string

const (
	KindSource    NodeKind = "source"
	KindProcessor NodeKind = "processor"
	KindSink      NodeKind = "sink"
)

// NodeSpec describes one node to create. Type selects the concrete
// implementation (e.g. "save", "debugsave", "azuresave", "metacapture",
// "tileproxy.sink", "tileproxy.source", "combine.sink", "combine.source");
// Params carries the implementation-specific fields, left raw here so this
// package does not need to know about every node type's config shape.
type NodeSpec struct {
	ID     uint32          `json:"id"`
	Kind   NodeKind        `json:"kind"`
	Type   string          `json:"type"`
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params,omitempty"`
}

// EdgeSpec describes one connection between two NodeSpec.ID values. An
// empty Streams list passes every stream index through unfiltered.
type EdgeSpec struct {
	From    uint32   `json:"from"`
	To      uint32   `json:"to"`
	Streams []uint32 `json:"streams,omitempty"`
	Label   string   `json:"label,omitempty"`
}

// TileMergeSpec configures a tileproxy.Proxy, when the pipeline includes
// one. OutputMode is "mono", "side_by_side", or "top_bottom".
//
// ExtractorStreamID/ExtractorTrackID describe the common case of a single
// merged extractor track. Extractors describes the general case: one
// entry per merged track (e.g. one per viewing direction), each optionally
// carrying a Tiles layout that enables the multi-resolution assembly path
// for that track when its tiles don't share one resolution. When
// Extractors is non-empty it is used instead of the top-level
// ExtractorStreamID/ExtractorTrackID fields.
type TileMergeSpec struct {
	TileCount         int                  `json:"tile_count"`
	OutputMode        string               `json:"output_mode"`
	ExtractorStreamID uint32               `json:"extractor_stream_id"`
	ExtractorTrackID  uint32               `json:"extractor_track_id"`
	Extractors        []ExtractorMergeSpec `json:"extractors,omitempty"`
}

// ExtractorMergeSpec describes one merged extractor track the tile proxy
// assembles: which stream/track it is emitted as, which tile streams feed
// it, and (for the multi-resolution variant) each tile's placement and
// native resolution plus the picture size their parameter sets are
// rewritten to describe.
type ExtractorMergeSpec struct {
	StreamID      uint32           `json:"stream_id"`
	TrackID       uint32           `json:"track_id"`
	TileStreamIDs []uint32         `json:"tile_stream_ids,omitempty"`
	Tiles         []TileLayoutSpec `json:"tiles,omitempty"`
	MergedWidth   uint32           `json:"merged_width,omitempty"`
	MergedHeight  uint32           `json:"merged_height,omitempty"`
}

// TileLayoutSpec places one tile's native-resolution picture within a
// merged canvas.
type TileLayoutSpec struct {
	StreamID uint32 `json:"stream_id"`
	X        uint32 `json:"x"`
	Y        uint32 `json:"y"`
	Width    uint32 `json:"width"`
	Height   uint32 `json:"height"`
}

// Pipeline is the parsed shape of a pipeline configuration file.
type Pipeline struct {
	Nodes     []NodeSpec     `json:"nodes"`
	Edges     []EdgeSpec     `json:"edges"`
	TileMerge *TileMergeSpec `json:"tile_merge,omitempty"`
}

// Load parses a Pipeline from r and validates that every edge references a
// declared node.
func Load(r io.Reader) (*Pipeline, error) {
	var p Pipeline
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, errs.NewConfigError("config.Load", fmt.Errorf("decode pipeline: %w", err))
	}
	if err := p.validate(); err != nil {
		return nil, errs.NewConfigError("config.Load", err)
	}
	return &p, nil
}

// LoadFile opens path and parses it as a Pipeline.
func LoadFile(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

func (p *Pipeline) validate() error {
	ids := make(map[uint32]bool, len(p.Nodes))
	for _, n := range p.Nodes {
		if ids[n.ID] {
			return fmt.Errorf("config: duplicate node id %d", n.ID)
		}
		ids[n.ID] = true
		switch n.Kind {
		case KindSource, KindProcessor, KindSink:
		default:
			return fmt.Errorf("config: node %d: unknown kind %q", n.ID, n.Kind)
		}
		if n.Type == "" {
			return fmt.Errorf("config: node %d: missing type", n.ID)
		}
	}
	for _, e := range p.Edges {
		if !ids[e.From] {
			return fmt.Errorf("config: edge references unknown node %d", e.From)
		}
		if !ids[e.To] {
			return fmt.Errorf("config: edge references unknown node %d", e.To)
		}
	}
	if p.TileMerge != nil && p.TileMerge.TileCount <= 0 {
		return fmt.Errorf("config: tile_merge.tile_count must be positive, got %d", p.TileMerge.TileCount)
	}
	return nil
}

// JSONLoader satisfies external.ConfigLoader by decoding JSON into
// whatever struct into points to, for collaborators that only need the
// generic Load(r, into) shape rather than this package's Pipeline type
// specifically.
type JSONLoader struct{}

func (JSONLoader) Load(r io.Reader, into interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return errs.NewConfigError("config.JSONLoader.Load", err)
	}
	return nil
}
