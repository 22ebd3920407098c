// Package tileproxy fans a set of per-tile bitstreams, plus one extractor
// construct per tile per frame, back into a single pooled set of streams:
// the tiles forwarded unchanged and one assembled extractor-track sample
// per merged output per frame once every one of its tiles has contributed
// a construct. It is the many-producers-one-consumer junction sitting
// between per-tile encoders and the segmenter, built around a
// mutex-protected shared core and the node wrappers that drive it from the
// graph.
//
// A Proxy supports two assembly variants per merged output
// (ExtractorTarget): single-resolution, which concatenates each tile's
// extractor construct unchanged and only rewrites the pooled region
// packing, and multi-resolution, which additionally rebuilds every tile's
// inline parameter-set construct for the merged picture size the first
// time it is emitted. A target's Layout decides which variant applies: if
// every tile it lists shares one resolution, single-resolution assembly
// runs; otherwise multi-resolution assembly does.
package tileproxy

import (
	"sort"
	"sync"

	"github.com/alxayo/omaf-creator/internal/omaf/data"
	"github.com/alxayo/omaf-creator/internal/omaf/external"
	"github.com/alxayo/omaf-creator/internal/omaf/node"
)

// OutputMode names the stereo frame-packing layout applied to the merged
// picture, matching the handful of layouts the region-rewrite logic below
// special-cases.
type OutputMode int

const (
	OutputMono OutputMode = iota
	OutputSideBySide
	OutputTopBottom
)

// TileLayout places one tile's native-resolution picture within a merged
// canvas: its offset and size. The multi-resolution assembly path uses
// this both to decide that a target needs parameter-set rewriting (its
// tiles don't all share one Width/Height) and to build the merged output's
// region packing directly from declared placement rather than from each
// tile's own (now-inconsistent) region packing.
type TileLayout struct {
	X, Y, Width, Height uint32
}

// ExtractorTarget names one merged extractor track to assemble: the
// stream/track identity it is emitted as, which tile streams feed it, and
// (for the multi-resolution variant) each tile's placement and native
// resolution plus the picture size every tile's parameter sets are
// rewritten to describe.
type ExtractorTarget struct {
	StreamID data.StreamID
	TrackID  uint32

	// TileStreamIDs restricts which registered tile streams feed this
	// target. Empty means every tile stream registered via
	// AddTileStreamIDs, the common single-direction case.
	TileStreamIDs []data.StreamID

	// Layout gives each tile's placement and native resolution, keyed by
	// tile stream ID. Required for the multi-resolution path; nil or
	// single-valued for single-resolution targets, which instead derive
	// the pooled size from each tile's own RegionPacking.
	Layout map[data.StreamID]TileLayout

	// MergedWidth/MergedHeight is the picture size multi-resolution
	// assembly rewrites every tile's parameter sets to describe.
	MergedWidth, MergedHeight uint32
}

// multiRes reports whether t's tiles span more than one resolution, which
// is what distinguishes the multi-resolution assembly path from the
// single-resolution one.
func (t ExtractorTarget) multiRes() bool {
	if len(t.Layout) < 2 {
		return false
	}
	var w, h uint32
	first := true
	for _, l := range t.Layout {
		if first {
			w, h = l.Width, l.Height
			first = false
			continue
		}
		if l.Width != w || l.Height != h {
			return true
		}
	}
	return false
}

// MergeConfig describes the stereo layout, if any, applied to a merged
// picture's region packing.
type MergeConfig struct {
	OutputMode OutputMode
}

// Config parameterizes a Proxy.
type Config struct {
	TileCount  int
	Extractors []ExtractorTarget
	Merge      MergeConfig
	Rewriter   external.HEVCRewriter
}

// SinkID identifies one tile-producing branch feeding a Proxy, handed out
// by NextSinkID and used to track per-branch progress for back-pressure.
type SinkID uint32

type cachedExtractor struct {
	d           data.Data
	endOfStream bool
}

type sinkInfo struct {
	latestCodingIndex int64
}

// extractorGroup holds one ExtractorTarget's assembly state: the tile
// constructs cached so far, whether its merged track has finished, and (for
// the multi-resolution path) the rewritten parameter sets computed once per
// tile and reused for every later emission.
type extractorGroup struct {
	target             ExtractorTarget
	streamSet          map[data.StreamID]bool
	cache              map[data.StreamID][]cachedExtractor
	finished           bool
	seiCreated         bool
	rewrittenParamSets map[data.StreamID][]byte
}

func (g *extractorGroup) expectedStreamCount(total int) int {
	if len(g.streamSet) > 0 {
		return len(g.streamSet)
	}
	return total
}

func (g *extractorGroup) feeds(id data.StreamID) bool {
	return len(g.streamSet) == 0 || g.streamSet[id]
}

// Proxy is the shared, mutex-protected core a set of sink-side nodes submit
// into and a single source-side node drains from. It outlives any one
// Submit/MoveTiles call, unlike the per-step Processor/Source node pair
// that wrap it for graph scheduling.
type Proxy struct {
	mu sync.Mutex

	cfg Config

	tileStreamIDs       map[data.StreamID]bool
	finishedTileStreams map[data.StreamID]bool
	tiles               []data.Streams
	sinkInfo            map[SinkID]*sinkInfo
	groups              []*extractorGroup
	nextSinkID          SinkID
}

// New returns a Proxy pooling cfg.TileCount tiles' worth of per-frame
// extractor constructs into one merged extractor track per cfg.Extractors
// entry.
func New(cfg Config) *Proxy {
	p := &Proxy{
		cfg:                 cfg,
		tileStreamIDs:       make(map[data.StreamID]bool),
		finishedTileStreams: make(map[data.StreamID]bool),
		sinkInfo:            make(map[SinkID]*sinkInfo),
	}
	for _, t := range cfg.Extractors {
		set := make(map[data.StreamID]bool, len(t.TileStreamIDs))
		for _, id := range t.TileStreamIDs {
			set[id] = true
		}
		p.groups = append(p.groups, &extractorGroup{
			target:    t,
			streamSet: set,
			cache:     make(map[data.StreamID][]cachedExtractor),
		})
	}
	return p
}

// NextSinkID hands out a fresh SinkID for a new tile-producing branch to
// register against. Call once per branch, before it ever calls Submit.
func (p *Proxy) NextSinkID() SinkID {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSinkID
	p.nextSinkID++
	return id
}

// AddTileStreamIDs registers the stream IDs a branch carries, so MoveTiles
// knows how many distinct tile streams must reach end-of-stream before the
// whole proxy is done.
func (p *Proxy) AddTileStreamIDs(ids ...data.StreamID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		p.tileStreamIDs[id] = true
	}
}

func (p *Proxy) groupsForLocked(id data.StreamID) []*extractorGroup {
	var out []*extractorGroup
	for _, g := range p.groups {
		if g.feeds(id) {
			out = append(out, g)
		}
	}
	return out
}

// Submit hands one batch from sink to the proxy: non-extractor samples are
// queued for forwarding as-is, extractor samples are cached per target
// stream until every tile feeding that target has contributed one for the
// same frame, at which point they are assembled into a single merged
// extractor sample.
func (p *Proxy) Submit(input data.Streams, sink SinkID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	eos := input.IsEndOfStream()
	for _, d := range input {
		streamID := d.StreamID()

		if eos {
			if p.tileStreamIDs[streamID] {
				p.finishedTileStreams[streamID] = true
			}

			for _, g := range p.groupsForLocked(streamID) {
				for p.extractorDataCollectionReadyLocked(g) {
					p.processExtractorsLocked(g)
				}
				if _, known := g.cache[streamID]; known {
					g.cache[streamID] = append(g.cache[streamID], cachedExtractor{d: d, endOfStream: true})
					if p.extractorReadyForEoSLocked(g) {
						p.createEoSLocked(g)
						g.finished = true
					}
				}
			}

			p.tiles = append(p.tiles, data.Streams{d})
			continue
		}

		if info := p.sinkInfo[sink]; info != nil {
			info.latestCodingIndex = d.Metadata().Coded.CodingIndex
		} else {
			p.sinkInfo[sink] = &sinkInfo{latestCodingIndex: d.Metadata().Coded.CodingIndex}
		}

		if d.Metadata().Coded.Format == data.CodedFormatHEVCExtractor {
			for _, g := range p.groupsForLocked(streamID) {
				g.cache[streamID] = append(g.cache[streamID], cachedExtractor{d: d})
			}
			for _, g := range p.groupsForLocked(streamID) {
				for p.extractorDataCollectionReadyLocked(g) {
					p.processExtractorsLocked(g)
				}
			}
		} else {
			p.tiles = append(p.tiles, data.Streams{d})
		}
	}
}

// MoveTiles hands over every batch queued since the last call, plus whether
// the proxy as a whole has reached end-of-stream (every registered tile
// stream finished and every merged extractor track closed out).
func (p *Proxy) MoveTiles() (tiles []data.Streams, isEndOfStream bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tiles, p.tiles = p.tiles, nil
	isEndOfStream = len(p.finishedTileStreams) == len(p.tileStreamIDs)
	for _, g := range p.groups {
		if !g.finished {
			isEndOfStream = false
		}
	}
	return tiles, isEndOfStream
}

// IsOutputFull reports whether the queued-but-undrained batch backlog has
// grown large enough that submitting branches should pause.
func (p *Proxy) IsOutputFull() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tiles) >= 100
}

// FullTiles reports which tile streams currently have an un-assembled
// extractor construct cached in any target, i.e. are running ahead of
// their siblings.
func (p *Proxy) FullTiles() map[data.StreamID]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[data.StreamID]bool)
	for _, g := range p.groups {
		for id, cached := range g.cache {
			if len(cached) > 0 {
				out[id] = true
			}
		}
	}
	return out
}

// IsAhead reports whether sink has produced strictly more coded frames than
// the slowest sibling sink registered so far.
func (p *Proxy) IsAhead(sink SinkID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.sinkInfo[sink]
	if !ok {
		return false
	}
	smallest := info.latestCodingIndex
	for _, other := range p.sinkInfo {
		if other.latestCodingIndex < smallest {
			smallest = other.latestCodingIndex
		}
	}
	return info.latestCodingIndex >= smallest+1
}

func (p *Proxy) extractorDataCollectionReadyLocked(g *extractorGroup) bool {
	expected := g.expectedStreamCount(p.cfg.TileCount)
	if len(g.cache) < expected {
		return false
	}
	for _, cached := range g.cache {
		if len(cached) == 0 {
			return false
		}
	}
	return true
}

func (p *Proxy) extractorReadyForEoSLocked(g *extractorGroup) bool {
	expected := g.expectedStreamCount(p.cfg.TileCount)
	if len(g.cache) < expected {
		return false
	}
	for _, cached := range g.cache {
		if len(cached) == 0 || !cached[0].endOfStream {
			return false
		}
	}
	return true
}

func (p *Proxy) processExtractorsLocked(g *extractorGroup) {
	var d data.Data
	if g.target.multiRes() {
		d = p.collectMultiResLocked(g)
	} else {
		d = p.collectSingleResLocked(g)
	}
	p.tiles = append(p.tiles, data.Streams{d})
}

func (p *Proxy) createEoSLocked(g *extractorGroup) {
	p.tiles = append(p.tiles, data.Streams{data.EndOfStreamData(g.target.StreamID)})
	g.cache = make(map[data.StreamID][]cachedExtractor)
}

func sortedStreamIDs(cache map[data.StreamID][]cachedExtractor) []data.StreamID {
	ids := make([]data.StreamID, 0, len(cache))
	for id := range cache {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// collectSingleResLocked pops the oldest cached construct from every tile
// feeding g and assembles them into one merged extractor sample: the
// region packing is rewritten to describe the pooled picture, and (on the
// very first emission) a synthetic SEI NAL buffer is prepended via the
// configured rewriter.
func (p *Proxy) collectSingleResLocked(g *extractorGroup) data.Data {
	streamIDs := sortedStreamIDs(g.cache)

	first := g.cache[streamIDs[0]][0].d
	meta := first.Metadata()
	cMeta := meta.Coded

	var merged *data.RegionPacking
	if cMeta.RegionPacking != nil {
		// The pooled canvas is the full projected picture every tile's own
		// region packing already describes; only the packed dimensions
		// collapse to match it, since after pooling there is exactly one
		// packed picture rather than one per tile.
		m := *cMeta.RegionPacking
		m.PackedPictureWidth = m.ProjPictureWidth
		m.PackedPictureHeight = m.ProjPictureHeight
		if p.cfg.Merge.OutputMode == OutputSideBySide || p.cfg.Merge.OutputMode == OutputTopBottom {
			m.ConstituentPictMatching = true
		}
		m.Regions = nil
		merged = &m
	}

	var extractors []data.Extractor
	for _, id := range streamIDs {
		cached := g.cache[id]
		d := cached[0].d
		exList := d.Extractors()
		if len(exList) > 0 {
			extractors = append(extractors, exList[0])
		}

		rp := d.Metadata().Coded.RegionPacking
		if merged != nil && rp != nil && len(rp.Regions) > 0 {
			region := rp.Regions[0]
			switch p.cfg.Merge.OutputMode {
			case OutputTopBottom:
				if region.PackedY < merged.PackedPictureHeight/2 {
					merged.Regions = append(merged.Regions, region)
				}
			case OutputSideBySide:
				if region.PackedX < merged.PackedPictureWidth/2 {
					merged.Regions = append(merged.Regions, region)
				}
			default:
				merged.Regions = append(merged.Regions, region)
			}
		}

		g.cache[id] = cached[1:]
	}

	outMeta := data.NewCodedMetadata(cMeta)
	outMeta.Coded.Format = data.CodedFormatHEVCExtractor
	outMeta.Coded.RegionPacking = merged
	outMeta.Coded.TrackID = g.target.TrackID

	var seiBytes []byte
	if !g.seiCreated && p.cfg.Rewriter != nil {
		g.seiCreated = true
		seiBytes = p.cfg.Rewriter.CreateExtractorSEI(merged, 1)
	}

	storage := data.Empty
	if len(seiBytes) > 0 {
		storage = data.CPUBytes{Planes: []data.Plane{{Bytes: seiBytes}}}
	}
	return data.NewWithExtractors(g.target.StreamID, storage, outMeta, extractors)
}

// collectMultiResLocked assembles a merged extractor sample for a target
// whose tiles do not share one native resolution: each tile's inline
// parameter-set construct is rebuilt for the merged picture size via the
// configured rewriter's RewriteParameterSets, the rewritten bytes are
// cached so the rewrite runs only once per tile, and the region packing is
// built directly from the target's declared tile layout rather than from
// each tile's own (now-inconsistent) one.
func (p *Proxy) collectMultiResLocked(g *extractorGroup) data.Data {
	streamIDs := sortedStreamIDs(g.cache)

	first := g.cache[streamIDs[0]][0].d
	cMeta := first.Metadata().Coded

	if g.rewrittenParamSets == nil {
		g.rewrittenParamSets = make(map[data.StreamID][]byte)
	}

	regions := make([]data.PackedRegion, 0, len(streamIDs))
	var extractors []data.Extractor
	for _, id := range streamIDs {
		cached := g.cache[id]
		d := cached[0].d

		if layout, ok := g.target.Layout[id]; ok {
			regions = append(regions, data.PackedRegion{
				ProjX: layout.X, ProjY: layout.Y, ProjWidth: layout.Width, ProjHeight: layout.Height,
				PackedX: layout.X, PackedY: layout.Y, PackedWidth: layout.Width, PackedHeight: layout.Height,
			})
		}

		if exList := d.Extractors(); len(exList) > 0 {
			extractors = append(extractors, p.rewriteTileExtractorLocked(g, id, exList[0]))
		}

		g.cache[id] = cached[1:]
	}

	outMeta := data.NewCodedMetadata(cMeta)
	outMeta.Coded.Format = data.CodedFormatHEVCExtractor
	outMeta.Coded.TrackID = g.target.TrackID
	outMeta.Coded.RegionPacking = &data.RegionPacking{
		ProjPictureWidth:    g.target.MergedWidth,
		ProjPictureHeight:   g.target.MergedHeight,
		PackedPictureWidth:  g.target.MergedWidth,
		PackedPictureHeight: g.target.MergedHeight,
		Regions:             regions,
	}

	return data.NewWithExtractors(g.target.StreamID, data.Empty, outMeta, extractors)
}

// rewriteTileExtractorLocked rebuilds ex's inline parameter-set construct
// for g's merged resolution, calling the configured rewriter once per tile
// stream (on the construct's first emission) and reusing the cached result
// for every later one; sample constructs, which reference slice data
// unaffected by the resolution change, pass through unchanged.
func (p *Proxy) rewriteTileExtractorLocked(g *extractorGroup, id data.StreamID, ex data.Extractor) data.Extractor {
	var rebuilt data.Extractor
	for _, c := range ex.Constructs() {
		if c.Inline == nil {
			rebuilt.Insert(c)
			continue
		}
		bytes := c.Inline.Bytes
		if rewritten, ok := g.rewrittenParamSets[id]; ok {
			bytes = rewritten
		} else if p.cfg.Rewriter != nil {
			bytes = p.cfg.Rewriter.RewriteParameterSets(c.Inline.Bytes, g.target.MergedWidth, g.target.MergedHeight)
			g.rewrittenParamSets[id] = bytes
		}
		rebuilt.Insert(data.ExtractorConstruct{Inline: &data.InlineConstruct{Idx: c.Inline.Idx, Bytes: bytes}})
	}
	return rebuilt
}

// SinkNode is the Processor a single tile-producing branch is wired to: it
// forwards every batch into the shared Proxy and reports back-pressure via
// IsBlocked, going inactive once every stream it carries has reached
// end-of-stream.
type SinkNode struct {
	node.Base

	proxy         *Proxy
	sinkID        SinkID
	streamIDs     map[data.StreamID]bool
	activeStreams map[data.StreamID]bool
}

// NewSinkNode registers a new branch with proxy and returns the node that
// feeds it, covering the given stream IDs.
func NewSinkNode(id node.ID, name string, proxy *Proxy, streamIDs ...data.StreamID) *SinkNode {
	set := make(map[data.StreamID]bool, len(streamIDs))
	for _, s := range streamIDs {
		set[s] = true
	}
	proxy.AddTileStreamIDs(streamIDs...)

	return &SinkNode{
		Base:          node.NewBase(id, name),
		proxy:         proxy,
		sinkID:        proxy.NextSinkID(),
		streamIDs:     set,
		activeStreams: set,
	}
}

// HasInput submits input to the shared proxy and goes inactive once every
// stream this branch carries has signaled end-of-stream.
func (s *SinkNode) HasInput(input data.Streams) {
	s.proxy.Submit(input, s.sinkID)
	if input.IsEndOfStream() {
		for _, d := range input {
			delete(s.activeStreams, d.StreamID())
		}
		if len(s.activeStreams) == 0 {
			s.SetInactive()
		}
	}
}

// IsBlocked reports back-pressure from three sources: this branch running
// ahead of its siblings, the proxy's output backlog being full, or this
// branch already holding a cached-but-unassembled extractor construct for
// any stream it carries.
func (s *SinkNode) IsBlocked() bool {
	if s.proxy.IsAhead(s.sinkID) {
		return true
	}
	if s.proxy.IsOutputFull() {
		return true
	}
	full := s.proxy.FullTiles()
	fillable := 0
	for id := range s.streamIDs {
		if !full[id] {
			fillable++
		}
	}
	return fillable < len(s.streamIDs)
}

// SourceNode is the Source draining the shared Proxy on each scheduler
// step, emitting whatever batches accumulated since the last step and
// going inactive once the proxy reports end-of-stream.
type SourceNode struct {
	node.Base

	proxy *Proxy
}

// NewSourceNode returns the single Source node draining proxy. Construct at
// most one per Proxy.
func NewSourceNode(id node.ID, name string, proxy *Proxy) *SourceNode {
	return &SourceNode{Base: node.NewBase(id, name), proxy: proxy}
}

// Produce drains every batch the proxy has accumulated and emits them in
// order, going inactive once the proxy reports every tile stream (and every
// merged extractor track) finished.
func (s *SourceNode) Produce() {
	tiles, isEOS := s.proxy.MoveTiles()
	for _, t := range tiles {
		s.Emit(t)
	}
	if isEOS {
		s.SetInactive()
	}
}

// Abort is a no-op: the proxy only ever forces end-of-stream once every
// registered branch's sink node has gone inactive, which already unwinds
// the graph without further action here.
func (s *SourceNode) Abort() {}
