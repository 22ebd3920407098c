// Package pipeline turns a parsed config.Pipeline description into a live
// graph.Graph: it instantiates the node type each config.NodeSpec names,
// registers it, and connects the edges, so cmd/omafctl only has to load a
// file and hand it here rather than hand-wiring every run.
package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/alxayo/omaf-creator/internal/omaf/combine"
	"github.com/alxayo/omaf-creator/internal/omaf/config"
	"github.com/alxayo/omaf-creator/internal/omaf/data"
	"github.com/alxayo/omaf-creator/internal/omaf/external"
	"github.com/alxayo/omaf-creator/internal/omaf/graph"
	"github.com/alxayo/omaf-creator/internal/omaf/node"
	"github.com/alxayo/omaf-creator/internal/omaf/sink"
	"github.com/alxayo/omaf-creator/internal/omaf/tileproxy"
)

// Options carries the collaborators a Build needs beyond what the config
// file itself describes: the bitstream rewriter a tile-merge node uses,
// primarily, since it is a stateful external dependency rather than
// something JSON can express.
type Options struct {
	Rewriter external.HEVCRewriter
}

// Built is the product of Build: the graph ready to hand to an executor,
// plus lookups a caller needs afterward (to fetch a MetaCaptureSink's
// future, say, or to tear down a tile-proxy's owning group).
type Built struct {
	Graph     *graph.Graph
	Nodes     map[uint32]node.Node
	TileProxy *tileproxy.Proxy
}

// combineGroup tracks the shared combine.Combine for every distinct
// "group" key a combine.sink/combine.source pair names in its params, so
// sinks and their source end up wired to the same fan-in instance even
// though they appear as independent NodeSpecs.
type combineGroup struct {
	c *combine.Combine
}

// Build constructs a graph from cfg. Every edge's Streams list (if
// non-empty) becomes a graph.StreamSet filter; an empty list passes every
// stream through.
func Build(cfg *config.Pipeline, opts Options) (*Built, error) {
	g := graph.New()
	nodes := make(map[uint32]node.Node, len(cfg.Nodes))
	combines := make(map[string]*combineGroup)

	var proxy *tileproxy.Proxy
	if cfg.TileMerge != nil {
		rewriter := opts.Rewriter
		if rewriter == nil {
			rewriter = external.NopRewriter{}
		}
		targets, err := tileMergeTargets(cfg.TileMerge)
		if err != nil {
			return nil, fmt.Errorf("pipeline: tile_merge: %w", err)
		}
		proxy = tileproxy.New(tileproxy.Config{
			TileCount:  cfg.TileMerge.TileCount,
			Extractors: targets,
			Merge:      tileproxy.MergeConfig{OutputMode: parseOutputMode(cfg.TileMerge.OutputMode)},
			Rewriter:   rewriter,
		})
	}

	// combine.source NodeSpecs establish their group's shared Combine
	// before anything else is built, so a combine.sink processed earlier
	// in cfg.Nodes than its group's source still finds the real node
	// identity rather than a placeholder.
	for _, spec := range cfg.Nodes {
		if spec.Type != "combine.source" {
			continue
		}
		var p struct {
			Group string `json:"group"`
		}
		if err := unmarshalParams(spec.Params, &p); err != nil {
			return nil, fmt.Errorf("pipeline: node %d (%s): %w", spec.ID, spec.Type, err)
		}
		if p.Group == "" {
			return nil, fmt.Errorf("pipeline: node %d (combine.source): requires a non-empty group", spec.ID)
		}
		if _, exists := combines[p.Group]; exists {
			return nil, fmt.Errorf("pipeline: node %d (combine.source): group %q already has a source", spec.ID, p.Group)
		}
		combines[p.Group] = &combineGroup{c: combine.New(node.ID(spec.ID), spec.Name)}
	}

	for _, spec := range cfg.Nodes {
		n, err := build(spec, proxy, combines)
		if err != nil {
			return nil, fmt.Errorf("pipeline: node %d (%s): %w", spec.ID, spec.Type, err)
		}
		nodes[spec.ID] = n

		switch spec.Kind {
		case config.KindSource:
			src, ok := n.(node.Source)
			if !ok {
				return nil, fmt.Errorf("pipeline: node %d declared kind source but type %q is not a Source", spec.ID, spec.Type)
			}
			g.RegisterSource(src)
		default:
			g.Register(n)
		}
	}

	for _, e := range cfg.Edges {
		from, ok := nodes[e.From]
		if !ok {
			return nil, fmt.Errorf("pipeline: edge references unregistered node %d", e.From)
		}
		to, ok := nodes[e.To]
		if !ok {
			return nil, fmt.Errorf("pipeline: edge references unregistered node %d", e.To)
		}
		proc, ok := to.(node.Processor)
		if !ok {
			return nil, fmt.Errorf("pipeline: edge target %d (%T) does not implement Processor", e.To, to)
		}
		filter := graph.AllStreams()
		if len(e.Streams) > 0 {
			ids := make([]data.StreamID, len(e.Streams))
			for i, s := range e.Streams {
				ids[i] = data.StreamID(s)
			}
			filter = graph.StreamSet(ids...)
		}
		edge := g.Connect(from, proc, filter)
		edge.Label = e.Label
	}

	return &Built{Graph: g, Nodes: nodes, TileProxy: proxy}, nil
}

func parseOutputMode(s string) tileproxy.OutputMode {
	switch s {
	case "side_by_side":
		return tileproxy.OutputSideBySide
	case "top_bottom":
		return tileproxy.OutputTopBottom
	default:
		return tileproxy.OutputMono
	}
}

// tileMergeTargets builds one tileproxy.ExtractorTarget per merged track a
// tile_merge section names. A config that lists Extractors describes the
// general case (one target per direction, with an optional per-tile
// Layout that enables multi-resolution assembly); one that only sets the
// legacy ExtractorStreamID/ExtractorTrackID fields gets a single
// single-resolution target, same as before that field existed.
func tileMergeTargets(m *config.TileMergeSpec) ([]tileproxy.ExtractorTarget, error) {
	if len(m.Extractors) == 0 {
		return []tileproxy.ExtractorTarget{{
			StreamID: data.StreamID(m.ExtractorStreamID),
			TrackID:  m.ExtractorTrackID,
		}}, nil
	}

	targets := make([]tileproxy.ExtractorTarget, 0, len(m.Extractors))
	for _, e := range m.Extractors {
		target := tileproxy.ExtractorTarget{
			StreamID:     data.StreamID(e.StreamID),
			TrackID:      e.TrackID,
			MergedWidth:  e.MergedWidth,
			MergedHeight: e.MergedHeight,
		}
		if len(e.TileStreamIDs) > 0 {
			target.TileStreamIDs = make([]data.StreamID, len(e.TileStreamIDs))
			for i, id := range e.TileStreamIDs {
				target.TileStreamIDs[i] = data.StreamID(id)
			}
		}
		if len(e.Tiles) > 0 {
			target.Layout = make(map[data.StreamID]tileproxy.TileLayout, len(e.Tiles))
			for _, tl := range e.Tiles {
				target.Layout[data.StreamID(tl.StreamID)] = tileproxy.TileLayout{
					X: tl.X, Y: tl.Y, Width: tl.Width, Height: tl.Height,
				}
			}
			if target.MergedWidth == 0 || target.MergedHeight == 0 {
				return nil, fmt.Errorf("extractor track %d: merged_width/merged_height required when tiles is set", e.StreamID)
			}
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func build(spec config.NodeSpec, proxy *tileproxy.Proxy, combines map[string]*combineGroup) (node.Node, error) {
	id := node.ID(spec.ID)
	switch spec.Type {
	case "debugsave":
		return sink.NewDebugSave(id, spec.Name), nil

	case "save":
		var p struct {
			FileTemplate string `json:"file_template"`
			Disabled     bool   `json:"disabled"`
		}
		if err := unmarshalParams(spec.Params, &p); err != nil {
			return nil, err
		}
		return sink.NewSave(id, spec.Name, sink.SaveConfig{FileTemplate: p.FileTemplate, Disabled: p.Disabled})

	case "azuresave":
		var p struct {
			FileTemplate  string `json:"file_template"`
			Disabled      bool   `json:"disabled"`
			LocalDir      string `json:"local_dir"`
			AccountURL    string `json:"account_url"`
			ContainerName string `json:"container_name"`
		}
		if err := unmarshalParams(spec.Params, &p); err != nil {
			return nil, err
		}
		return sink.NewAzureSave(id, spec.Name, sink.AzureSaveConfig{
			FileTemplate:  p.FileTemplate,
			Disabled:      p.Disabled,
			LocalDir:      p.LocalDir,
			AccountURL:    p.AccountURL,
			ContainerName: p.ContainerName,
		})

	case "metacapture":
		var p struct {
			PickFirstOne bool   `json:"pick_first_one"`
			StreamID     uint32 `json:"stream_id"`
		}
		if err := unmarshalParams(spec.Params, &p); err != nil {
			return nil, err
		}
		return sink.NewMetaCaptureSink(id, spec.Name, sink.MetaCaptureConfig{
			PickFirstOne: p.PickFirstOne,
			StreamID:     data.StreamID(p.StreamID),
		}), nil

	case "forward":
		return node.NewForward(id, spec.Name), nil

	case "tileproxy.sink":
		if proxy == nil {
			return nil, fmt.Errorf("tileproxy.sink requires a tile_merge section in the config")
		}
		var p struct {
			StreamIDs []uint32 `json:"stream_ids"`
		}
		if err := unmarshalParams(spec.Params, &p); err != nil {
			return nil, err
		}
		ids := make([]data.StreamID, len(p.StreamIDs))
		for i, s := range p.StreamIDs {
			ids[i] = data.StreamID(s)
		}
		return tileproxy.NewSinkNode(id, spec.Name, proxy, ids...), nil

	case "tileproxy.source":
		if proxy == nil {
			return nil, fmt.Errorf("tileproxy.source requires a tile_merge section in the config")
		}
		return tileproxy.NewSourceNode(id, spec.Name, proxy), nil

	case "combine.sink":
		var p struct {
			Group string `json:"group"`
			Index int    `json:"index"`
		}
		if err := unmarshalParams(spec.Params, &p); err != nil {
			return nil, err
		}
		grp, ok := combines[p.Group]
		if !ok {
			return nil, fmt.Errorf("combine.sink: group %q has no combine.source node", p.Group)
		}
		return grp.c.NewSink(id, spec.Name, p.Index), nil

	case "combine.source":
		var p struct {
			Group string `json:"group"`
		}
		if err := unmarshalParams(spec.Params, &p); err != nil {
			return nil, err
		}
		// Build's first pass already created this group's Combine keyed
		// by this exact spec, so the lookup here cannot miss.
		return combines[p.Group].c.Source(), nil

	default:
		return nil, fmt.Errorf("unknown node type %q", spec.Type)
	}
}

func unmarshalParams(raw json.RawMessage, into interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, into)
}
