// Package exec provides the two ways a graph.Graph can be driven: a
// Sequential executor that calls straight through the call stack on the
// invoking goroutine, and a Parallel executor that schedules node work
// across a worker pool.
package exec

import (
	"sync"

	"github.com/alxayo/omaf-creator/internal/omaf/data"
	"github.com/alxayo/omaf-creator/internal/omaf/errs"
	"github.com/alxayo/omaf-creator/internal/omaf/graph"
	"github.com/alxayo/omaf-creator/internal/omaf/node"
)

// Sequential drives a graph.Graph with no concurrency: one call to Step
// calls Produce once per active source and pushes whatever it emits
// straight through every downstream HasInput call on the calling
// goroutine, recursing for chained processors.
type Sequential struct {
	g *graph.Graph

	startOnce sync.Once
	bound     map[node.ID]bool
}

// NewSequential returns an executor over g. Nodes may still be registered
// on g after construction, as long as it happens before the first Step.
func NewSequential(g *graph.Graph) *Sequential {
	return &Sequential{g: g, bound: make(map[node.ID]bool)}
}

// Step calls Produce on every active source once, routing whatever each
// source (and everything it transitively feeds) emits synchronously. It
// returns false once every source has gone inactive and nothing further
// can ever be produced.
func (s *Sequential) Step() (bool, error) {
	s.startOnce.Do(func() {
		for _, n := range s.g.Nodes() {
			s.bindEmit(n)
		}
		for _, n := range s.g.Nodes() {
			n.GraphStarted()
		}
	})

	anyActive := false
	var firstErr error

	for _, src := range s.g.Sources() {
		if !src.Active() {
			continue
		}
		anyActive = true
		if err := s.produce(src); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if !anyActive {
		return false, errs.NewNoActiveSources("Sequential.Step")
	}
	return true, firstErr
}

// produce recovers declared errors raised from inside a node body via
// panic. Produce and HasInput have no error return, so a node reports a
// recoverable taxonomy error by panicking with it, possibly deep in a
// recursive HasInput chain; produce returns such an error to Step and
// re-panics with anything else.
func (s *Sequential) produce(src node.Source) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && errs.IsRecoverable(e) {
				err = e
				return
			}
			panic(r)
		}
	}()
	src.Produce()
	return nil
}

func (s *Sequential) bindEmit(n node.Node) {
	if s.bound[n.ID()] {
		return
	}
	s.bound[n.ID()] = true

	type emitBinder interface {
		BindEmit(node.EmitFunc)
	}
	eb, ok := n.(emitBinder)
	if !ok {
		return
	}
	eb.BindEmit(func(out data.Streams) {
		s.route(n, out)
	})
}

func (s *Sequential) route(from node.Node, out data.Streams) {
	for _, e := range s.g.EdgesFrom(from) {
		filtered := e.Filter.Apply(out)
		if len(filtered) == 0 {
			continue
		}
		s.bindEmit(e.To)
		e.To.HasInput(filtered)
	}
}

// Abort tells every source to emit end-of-stream on its next Produce
// instead of further data.
func (s *Sequential) Abort() {
	for _, src := range s.g.Sources() {
		src.Abort()
	}
}
