package exec

import (
	"sync"
	"testing"

	"github.com/alxayo/omaf-creator/internal/omaf/data"
	"github.com/alxayo/omaf-creator/internal/omaf/graph"
	"github.com/alxayo/omaf-creator/internal/omaf/node"
)

// countingSource emits `total` data batches (StreamID 1, increasing
// PresIndex) and then end-of-stream, after which it goes inactive.
type countingSource struct {
	node.Base
	total int
	sent  int
}

func newCountingSource(id node.ID, total int) *countingSource {
	return &countingSource{Base: node.NewBase(id, "counting-source"), total: total}
}

func (s *countingSource) Produce() {
	if s.sent >= s.total {
		s.Emit(data.Streams{data.EndOfStreamData(1)})
		s.SetInactive()
		return
	}
	meta := data.NewRawMetadata(data.RawMeta{PresIndex: int64(s.sent)})
	s.Emit(data.Streams{data.New(1, data.Empty, meta)})
	s.sent++
}

func (s *countingSource) Abort() {
	s.sent = s.total
}

// collectingSink records every batch it receives.
type collectingSink struct {
	node.Base
	mu       sync.Mutex
	received []data.Streams
}

func newCollectingSink(id node.ID) *collectingSink {
	return &collectingSink{Base: node.NewBase(id, "collecting-sink")}
}

func (s *collectingSink) HasInput(in data.Streams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, in)
}

func (s *collectingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func TestSequentialStepDeliversToSink(t *testing.T) {
	g := graph.New()
	src := newCountingSource(1, 3)
	sink := newCollectingSink(2)

	g.RegisterSource(src)
	g.Register(sink)
	g.Connect(src, sink, graph.AllStreams())

	seq := NewSequential(g)

	for i := 0; i < 3; i++ {
		more, err := seq.Step()
		if err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		if !more {
			t.Fatalf("Step %d: expected more work", i)
		}
	}
	if sink.count() != 3 {
		t.Fatalf("expected 3 batches delivered, got %d", sink.count())
	}

	// Fourth step: source was still active when checked, so it emits
	// end-of-stream and goes inactive; this step itself still reports
	// more work having been attempted.
	more, err := seq.Step()
	if err != nil {
		t.Fatalf("eos step: %v", err)
	}
	if !more {
		t.Fatalf("expected this step to report work attempted")
	}
	if sink.count() != 4 {
		t.Fatalf("expected end-of-stream batch delivered, got %d total", sink.count())
	}
	if !sink.received[3][0].IsEndOfStream() {
		t.Fatalf("expected last batch to be end-of-stream")
	}

	// Fifth step: source is now inactive.
	more, err = seq.Step()
	if err == nil {
		t.Fatalf("expected NoActiveSourcesError once source is inactive")
	}
	if more {
		t.Fatalf("expected no more work once source is inactive")
	}
}

func TestSequentialStepNoActiveSourcesErrors(t *testing.T) {
	g := graph.New()
	src := newCountingSource(1, 0)
	g.RegisterSource(src)

	seq := NewSequential(g)
	// First step: source produces EOS immediately and goes inactive.
	if _, err := seq.Step(); err != nil {
		t.Fatalf("unexpected error on first step: %v", err)
	}

	// Second step: no active sources remain.
	_, err := seq.Step()
	if err == nil {
		t.Fatalf("expected NoActiveSourcesError on second step")
	}
}
