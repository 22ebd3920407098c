// Package node defines the capability surface every graph participant
// implements: the common Node identity and lifecycle, plus the Source,
// Processor, and Sink roles a concrete node composes from via embedding.
package node

import (
	"log/slog"

	"github.com/alxayo/omaf-creator/internal/omaf/data"
)

// ID identifies a node within a single graph, used for debug output and
// error attribution rather than routing (routing goes through the Node
// value itself).
type ID uint32

// ViewMask selects a subset of stream indices as a bit mask. Base.Emit
// does not take one, and the executors do not apply it: per-edge stream
// selection goes through graph.StreamFilter.
type ViewMask uint64

// AllViews is the mask selecting every stream index.
const AllViews ViewMask = ^ViewMask(0)

// Node is the identity and lifecycle surface common to every graph
// participant, independent of whether it produces, transforms, or
// consumes data.
type Node interface {
	ID() ID
	Name() string
	SetName(string)

	// Active reports whether the node still has work to do. A Source
	// that turned inactive will not be scheduled to Produce again; a
	// Processor or Sink turns inactive once it observes end-of-stream
	// on every input it cares about.
	Active() bool
	SetInactive()

	// IsBlocked reports whether the node is busy or blocked even though
	// it is not currently executing. The parallel executor polls this
	// on child nodes before skipping them. Never called concurrently
	// with Produce/HasInput/Consume for the same node.
	IsBlocked() bool

	// GraphStarted is called once, after every node has been connected
	// and before the first Step, so a Source knows it is now safe to
	// call its bound Emit.
	GraphStarted()

	SetLog(*slog.Logger)
	Info() string
}

// Source is a Node with no data inputs that manufactures Streams batches
// on demand when the executor calls Produce.
type Source interface {
	Node
	// Produce may emit zero or more Streams batches via the node's bound
	// Emit closure and returns. Returning having emitted nothing is
	// valid and means "no output this step".
	Produce()
	// Abort arranges for the next Produce to emit end-of-stream instead
	// of further data, used to unwind a graph early (e.g. on a fatal
	// sibling error).
	Abort()
}

// Processor is a Node that transforms input batches into zero or more
// output batches.
type Processor interface {
	Node
	HasInput(data.Streams)
}

// Sink is a Node with no data outputs; it is the terminal consumer of a
// stream (a file writer, a debug dump, a network upload).
type Sink interface {
	Node
	Consume(data.Streams)
}

// EmitFunc is the closure a node calls to push a produced or transformed
// batch downstream. The executor binds each node's EmitFunc at graph-start
// time rather than the node holding a back-reference to the graph or
// executor, avoiding a cyclic node-graph ownership relationship.
type EmitFunc func(data.Streams)

// Base implements the identity and lifecycle half of Node; concrete
// sources, processors, and sinks embed it and implement only the data
// method (Produce/HasInput/Consume) their role requires.
type Base struct {
	id     ID
	name   string
	active bool
	log    *slog.Logger

	emit EmitFunc
}

// NewBase constructs a Base with the given id and name, active by default.
func NewBase(id ID, name string) Base {
	return Base{id: id, name: name, active: true}
}

func (b *Base) ID() ID           { return b.id }
func (b *Base) Name() string     { return b.name }
func (b *Base) SetName(n string) { b.name = n }
func (b *Base) Active() bool     { return b.active }
func (b *Base) SetInactive()     { b.active = false }
func (b *Base) IsBlocked() bool  { return false }
func (b *Base) GraphStarted()    {}
func (b *Base) SetLog(l *slog.Logger) { b.log = l }
func (b *Base) Info() string     { return b.name }
func (b *Base) Log() *slog.Logger { return b.log }

// BindEmit registers the closure Emit forwards to. Called once by the
// executor per node when it is first scheduled.
func (b *Base) BindEmit(fn EmitFunc) { b.emit = fn }

// Emit pushes a batch to every edge connected to this node's output. It is
// exported, not unexported, because concrete node types live in other
// packages and Go embedding cannot reach an unexported method across a
// package boundary.
func (b *Base) Emit(s data.Streams) {
	if b.emit != nil {
		b.emit(s)
	}
}
