// Package steplock synchronizes several independently scheduled frame
// sources (e.g. per-track MP4 loaders) so that none of them can run more
// than a configured number of frames ahead of the slowest one. Once any
// source reaches end-of-stream, every other source is flushed up to that
// point and end-of-stream is forced on all of them, ignoring whatever
// they produce afterward.
package steplock

import (
	"sync"
	"sync/atomic"

	"github.com/alxayo/omaf-creator/internal/omaf/data"
	"github.com/alxayo/omaf-creator/internal/omaf/node"
)

// Config bounds how far ahead a branch may run before it is paused.
type Config struct {
	// ThrottleLimit is how many frames a branch may have queued beyond
	// what every other branch has already consumed before it is told to
	// pause.
	ThrottleLimit int
}

// DefaultConfig is the throttle depth used by multi-track loaders unless
// a caller overrides it.
var DefaultConfig = Config{ThrottleLimit: 5}

// branch is one source's bookkeeping, guarded by StepLock.mu.
type branch struct {
	proc *Processor

	frameCounter          int // does not count end-of-stream
	forwardedFrameCounter int
	frames                []data.Streams
	paused                bool
	eosReceived           bool
}

// StepLock is shared by every Processor it hands out via Get; it is the
// single point of coordination deciding when a branch may be forwarded,
// paused, or forced to end-of-stream.
type StepLock struct {
	mu        sync.Mutex
	cfg       Config
	branches  map[int]*branch
	order     []int
	idGen     int
	lastFrame *int
	eosSent   bool
}

// New returns a StepLock coordinating however many branches are later
// registered via Get.
func New(cfg Config) *StepLock {
	return &StepLock{cfg: cfg, branches: make(map[int]*branch)}
}

// Get registers one more branch and returns the Processor node that feeds
// it. Call this once per source before the graph starts.
func (l *StepLock) Get(id node.ID, name string) *Processor {
	l.mu.Lock()
	l.idGen++
	branchID := l.idGen

	p := &Processor{
		Base:          node.NewBase(id, name),
		branchID:      branchID,
		lock:          l,
		knownStreams:  make(map[data.StreamID]bool),
		activeStreams: make(map[data.StreamID]bool),
	}
	l.branches[branchID] = &branch{proc: p}
	l.order = append(l.order, branchID)
	l.mu.Unlock()

	return p
}

func (l *StepLock) submit(branchID int, s data.Streams) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.eosSent {
		return
	}

	b := l.branches[branchID]
	if s.IsEndOfStream() {
		b.eosReceived = true
	} else {
		b.frames = append(b.frames, s)
		b.frameCounter++
	}

	l.workLocked()
}

func (l *StepLock) workLocked() {
	numAvailable := l.smallestQueueLenLocked()
	for i := 0; i < numAvailable; i++ {
		for _, id := range l.order {
			b := l.branches[id]
			frame := b.frames[0]
			b.forwardedFrameCounter++
			b.proc.Emit(frame)
			b.frames = b.frames[1:]
		}
	}

	if numAvailable == 0 && l.lastFrame == nil {
		smallest := l.smallestFrameCounterLocked()
		for _, id := range l.order {
			b := l.branches[id]
			if b.frameCounter == smallest && b.eosReceived {
				v := smallest
				l.lastFrame = &v
			}
		}
	}

	if l.lastFrame != nil {
		for _, id := range l.order {
			b := l.branches[id]
			for b.forwardedFrameCounter < *l.lastFrame {
				frame := b.frames[0]
				b.forwardedFrameCounter++
				b.proc.Emit(frame)
				b.frames = b.frames[1:]
			}
			b.proc.produceEOS()
			if b.paused {
				b.paused = false
				b.proc.setPaused(false)
			}
		}
		l.eosSent = true
	} else {
		for _, id := range l.order {
			b := l.branches[id]
			needsPausing := len(b.frames) > l.cfg.ThrottleLimit
			if needsPausing != b.paused {
				b.paused = needsPausing
				b.proc.setPaused(needsPausing)
			}
		}
	}
}

func (l *StepLock) smallestFrameCounterLocked() int {
	smallest := 0
	first := true
	for _, id := range l.order {
		c := l.branches[id].frameCounter
		if first || c < smallest {
			smallest = c
			first = false
		}
	}
	return smallest
}

func (l *StepLock) smallestQueueLenLocked() int {
	smallest := 0
	first := true
	for _, id := range l.order {
		n := len(l.branches[id].frames)
		if first || n < smallest {
			smallest = n
			first = false
		}
	}
	return smallest
}

// Processor is one synchronized input branch. It is registered with a
// graph like any other Processor; HasInput submits every batch to the
// shared StepLock, which decides when (and whether) it is actually
// forwarded.
type Processor struct {
	node.Base

	branchID int
	lock     *StepLock
	paused   atomic.Bool

	// knownStreams records every stream this branch has carried, so
	// produceEOS can emit end-of-stream for each of them; activeStreams
	// tracks which have not yet ended. encounteredEOS catches a branch that
	// keeps producing after end-of-stream. Batches that disagree on which
	// streams they carry are not checked.
	mu             sync.Mutex
	knownStreams   map[data.StreamID]bool
	activeStreams  map[data.StreamID]bool
	encounteredEOS bool
}

// IsBlocked reports whether the shared lock has paused this branch for
// running too far ahead of its siblings.
func (p *Processor) IsBlocked() bool { return p.paused.Load() }

func (p *Processor) setPaused(v bool) { p.paused.Store(v) }

// HasInput hands s to the shared lock, which forwards it (possibly
// alongside batches from other branches) once every branch has
// contributed, pauses this branch if it is running too far ahead, or
// forces early end-of-stream if a sibling branch has already finished.
func (p *Processor) HasInput(s data.Streams) {
	p.mu.Lock()
	if p.encounteredEOS {
		p.mu.Unlock()
		panic("steplock: HasInput called again after end-of-stream")
	}
	for _, d := range s {
		p.knownStreams[d.StreamID()] = true
	}
	if s.IsEndOfStream() {
		for _, d := range s {
			delete(p.activeStreams, d.StreamID())
		}
		p.encounteredEOS = true
	} else {
		for _, d := range s {
			p.activeStreams[d.StreamID()] = true
		}
	}
	p.mu.Unlock()

	p.lock.submit(p.branchID, s)
}

// produceEOS emits end-of-stream for every stream this branch has ever
// carried and goes inactive; called by the shared lock once every branch
// has reached (or been forced to) the same frame.
func (p *Processor) produceEOS() {
	p.mu.Lock()
	var eos data.Streams
	for id := range p.knownStreams {
		eos = append(eos, data.EndOfStreamData(id))
	}
	p.mu.Unlock()

	p.Emit(eos)
	p.SetInactive()
}
