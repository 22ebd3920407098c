package node

import "github.com/alxayo/omaf-creator/internal/omaf/data"

// FuncSink adapts a plain function to a Processor, the Go counterpart of
// AsyncFunctionSink: used to splice a debug probe or instrumentation
// callback into a graph without writing a dedicated node type.
type FuncSink struct {
	Base
	fn func(data.Streams)
}

// NewFuncSink returns a FuncSink that calls fn for every batch it receives
// and does not forward anything further downstream.
func NewFuncSink(id ID, name string, fn func(data.Streams)) *FuncSink {
	return &FuncSink{Base: NewBase(id, name), fn: fn}
}

func (f *FuncSink) HasInput(s data.Streams) {
	if f.fn != nil {
		f.fn(s)
	}
}

// Forward is a no-op passthrough Processor, the Go counterpart of
// AsyncForwardProcessor: graph-surgery call sites use it to keep a slot in
// the edge list occupied while the real processor it stands in for is
// being swapped out or instrumented, and can later remove it again with
// Graph.Eliminate.
type Forward struct {
	Base
}

// NewForward returns a Forward node with the given id and name.
func NewForward(id ID, name string) *Forward {
	return &Forward{Base: NewBase(id, name)}
}

func (f *Forward) HasInput(s data.Streams) {
	f.Emit(s)
}
