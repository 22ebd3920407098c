package data

import "sort"

// SliceInfo carries the HEVC slice segment header fields an extractor
// sample construct needs to rewrite when it stitches tile bitstreams
// together (slice address, POC delta, ...).
type SliceInfo struct {
	SliceSegmentAddress uint32
	FirstSliceInPic     bool
}

// SampleConstruct is an extractor track NAL unit referencing bytes from
// another track's sample by offset, used to stitch tile bitstreams into a
// single decodable picture without recompressing them.
type SampleConstruct struct {
	Idx         int
	TrackRefIdx int
	DataOffset  int64
	DataLength  int64
	SliceInfo   SliceInfo
}

// InlineConstruct is an extractor track NAL unit whose bytes are carried
// inline in the extractor sample itself, rather than referenced from
// another track.
type InlineConstruct struct {
	Idx   int
	Bytes []byte
}

// ExtractorConstruct is the union of the two extractor NAL unit kinds,
// ordered by Idx within one extractor sample.
type ExtractorConstruct struct {
	Sample  *SampleConstruct
	Inline  *InlineConstruct
}

func (c ExtractorConstruct) idx() int {
	if c.Sample != nil {
		return c.Sample.Idx
	}
	return c.Inline.Idx
}

// Extractor is one extractor track sample: an ordered sequence of
// constructs that, concatenated, form the bitstream an OMAF player decodes
// in place of a full frame.
type Extractor struct {
	constructs []ExtractorConstruct
}

// Insert adds c to the extractor, keeping constructs ordered by Idx.
func (e *Extractor) Insert(c ExtractorConstruct) {
	i := sort.Search(len(e.constructs), func(i int) bool {
		return e.constructs[i].idx() >= c.idx()
	})
	e.constructs = append(e.constructs, ExtractorConstruct{})
	copy(e.constructs[i+1:], e.constructs[i:])
	e.constructs[i] = c
}

// Constructs returns the extractor's constructs in Idx order.
func (e *Extractor) Constructs() []ExtractorConstruct {
	return e.constructs
}

// Len reports how many constructs the extractor holds.
func (e *Extractor) Len() int { return len(e.constructs) }
