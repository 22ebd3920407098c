// Package combine provides an N-to-1 fan-in node: one Sink per input
// branch, all feeding a single Source that emits a tuple built from the
// oldest still-unread batch on every branch, in lockstep. It is how
// independently scheduled branches of a graph (e.g. per-tile HEVC
// encoders) are reassembled into one frame-aligned stream.
package combine

import (
	"sync"

	"github.com/alxayo/omaf-creator/internal/omaf/data"
	"github.com/alxayo/omaf-creator/internal/omaf/node"
)

// Combine owns one Source and however many Sinks are requested of it via
// NewSink; a graph wires each Sink's upstream edge and the Source's
// downstream edge independently, with the Combine gluing them together.
type Combine struct {
	source *Source
}

// New returns a Combine whose fan-in output node has the given id and
// name. Call NewSink once per input branch before the graph starts; the
// Source will wait on exactly that many branches.
func New(sourceID node.ID, sourceName string) *Combine {
	return &Combine{source: newSource(sourceID, sourceName)}
}

// NewSink allocates a new input branch and returns the Sink that feeds it.
// index identifies the branch for back-pressure and debug purposes; it
// need not be contiguous but is typically assigned 0..N-1 in call order.
func (c *Combine) NewSink(id node.ID, name string, index int) *Sink {
	c.source.addInput(index)
	return &Sink{Base: node.NewBase(id, name), source: c.source, index: index}
}

// Source returns the fan-in output node; register it with a graph as a
// source and connect its output downstream like any other.
func (c *Combine) Source() *Source {
	return c.source
}

// Sink is one input branch of a Combine. It is a Processor, not a
// graph-level Sink: its HasInput hands the batch to the shared Source
// rather than consuming it terminally.
type Sink struct {
	node.Base
	source *Source
	index  int
}

// HasInput enqueues in on this branch. An end-of-stream batch marks the
// branch finished rather than being enqueued, so Source.Produce knows not
// to wait on it again.
func (s *Sink) HasInput(in data.Streams) {
	s.source.addFrame(s.index, in)
	if in.IsEndOfStream() {
		s.SetInactive()
	}
}

// IsBlocked reports back-pressure from the Source: a branch that already
// has an unread batch queued must not be handed another until Produce has
// drained it, or the combine's queues would grow without bound whenever
// one branch runs ahead of the others.
func (s *Sink) IsBlocked() bool {
	return s.source.isBranchBlocked(s.index)
}

// Source is the fan-in output of a Combine: it holds one FIFO per input
// branch and emits a tuple only once every branch has either produced a
// batch or gone finished.
type Source struct {
	node.Base

	mu       sync.Mutex
	frames   map[int][]data.Streams
	finished map[int][]data.StreamID
	order    []int
}

func newSource(id node.ID, name string) *Source {
	return &Source{
		Base:     node.NewBase(id, name),
		frames:   make(map[int][]data.Streams),
		finished: make(map[int][]data.StreamID),
	}
}

func (s *Source) addInput(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.frames[index]; !exists {
		s.frames[index] = nil
		s.order = append(s.order, index)
	}
}

func (s *Source) addFrame(index int, in data.Streams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.IsEndOfStream() {
		ids := make([]data.StreamID, len(in))
		for i, d := range in {
			ids[i] = d.StreamID()
		}
		s.finished[index] = ids
		return
	}
	s.frames[index] = append(s.frames[index], in)
}

func (s *Source) isBranchBlocked(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames[index]) >= 1
}

// Produce pops one tuple for every branch that currently has a queued
// batch, as long as every branch is either ready or finished; it keeps
// doing so until a branch falls behind, then stops for this step. Once
// every branch has gone finished it emits one end-of-stream Data per
// stream seen across all branches and goes inactive.
func (s *Source) Produce() {
	for s.drainOneTuple() {
	}

	s.mu.Lock()
	allFinished := len(s.finished) == len(s.order) && len(s.order) > 0
	var eos data.Streams
	if allFinished {
		for _, index := range s.order {
			for _, id := range s.finished[index] {
				eos = append(eos, data.EndOfStreamData(id))
			}
		}
	}
	s.mu.Unlock()

	if allFinished {
		s.Emit(eos)
		s.SetInactive()
	}
}

// drainOneTuple emits one tuple if every branch has something available
// (a queued batch or finished status) and reports whether it did.
func (s *Source) drainOneTuple() bool {
	s.mu.Lock()

	ready := 0
	for _, index := range s.order {
		if len(s.frames[index]) > 0 {
			ready++
		} else if _, done := s.finished[index]; done {
			ready++
		}
	}
	if ready != len(s.order) || len(s.order) == 0 {
		s.mu.Unlock()
		return false
	}

	var tuple data.Streams
	anyData := false
	for _, index := range s.order {
		if len(s.frames[index]) > 0 {
			tuple = append(tuple, s.frames[index][0]...)
			s.frames[index] = s.frames[index][1:]
			anyData = true
		} else {
			tuple = append(tuple, data.EmptyData(data.NoStreamID))
		}
	}
	s.mu.Unlock()

	if !anyData {
		// Every branch is finished; nothing left to purge this round.
		return false
	}
	s.Emit(tuple)
	return true
}

// Abort is a no-op: Combine has no upstream of its own to unwind, it only
// reacts to its Sinks going inactive.
func (s *Source) Abort() {}
