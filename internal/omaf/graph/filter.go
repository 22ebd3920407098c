package graph

import "github.com/alxayo/omaf-creator/internal/omaf/data"

// StreamFilter selects the subset of a batch's stream indices an edge
// carries forward to its destination node.
type StreamFilter struct {
	all bool
	set map[data.StreamID]bool
}

// AllStreams returns a filter that passes every stream index through
// unchanged, the default for a plain Connect call.
func AllStreams() StreamFilter {
	return StreamFilter{all: true}
}

// StreamSet returns a filter that passes only the named stream indices.
func StreamSet(ids ...data.StreamID) StreamFilter {
	set := make(map[data.StreamID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return StreamFilter{set: set}
}

// Intersect returns the filter that passes only stream indices both f and
// g would pass, used by Graph.Eliminate to compose the filters of the
// edges on either side of the eliminated node.
func (f StreamFilter) Intersect(g StreamFilter) StreamFilter {
	if f.all {
		return g
	}
	if g.all {
		return f
	}
	out := make(map[data.StreamID]bool)
	for id := range f.set {
		if g.set[id] {
			out[id] = true
		}
	}
	return StreamFilter{set: out}
}

// Allows reports whether id passes the filter.
func (f StreamFilter) Allows(id data.StreamID) bool {
	if f.all {
		return true
	}
	return f.set[id]
}

// Apply returns the subset of s whose stream IDs pass the filter,
// preserving order.
func (f StreamFilter) Apply(s data.Streams) data.Streams {
	if f.all {
		return s
	}
	out := make(data.Streams, 0, len(s))
	for _, d := range s {
		if f.Allows(d.StreamID()) {
			out = append(out, d)
		}
	}
	return out
}
