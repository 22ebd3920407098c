package exec

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alxayo/omaf-creator/internal/logger"
	"github.com/alxayo/omaf-creator/internal/omaf/data"
	"github.com/alxayo/omaf-creator/internal/omaf/errs"
	"github.com/alxayo/omaf-creator/internal/omaf/graph"
	"github.com/alxayo/omaf-creator/internal/omaf/node"
)

// Config controls optional diagnostics on a Parallel executor.
type Config struct {
	// PerformanceLogging enables the CSV + stderr heartbeat described in
	// perflog.go, written under LogDir (default: current directory).
	PerformanceLogging bool
	LogDir             string
}

// nodeInfo is the scheduler's private bookkeeping for one graph node. It
// is built once per graph, in buildNodeInfo, and never resized afterward,
// so only its fields (not the map holding it) need synchronization.
type nodeInfo struct {
	mu sync.Mutex

	id        node.ID
	nd        node.Node
	processor node.Processor // nil for pure sources
	isSource  bool

	enqueued       []data.Streams
	oldestEnqueued atomic.Int64

	running             bool
	numBlockedOutputs   int
	numOutputNodes      int
	setParentBlocked    bool
	isInternallyBlocked bool
	terminated          bool

	parents []*nodeInfo

	runtime time.Duration

	numInputs  uint64
	numOutputs uint64
}

func (ni *nodeInfo) areOutputsBlocked() bool {
	if ni.isSource {
		return ni.numBlockedOutputs >= 1
	}
	min := 1
	if ni.numOutputNodes > min {
		min = ni.numOutputNodes
	}
	return ni.numBlockedOutputs >= min
}

func (ni *nodeInfo) nodeHasWork() bool { return len(ni.enqueued) > 0 }

func (ni *nodeInfo) isNodeOverEmployed() bool {
	return len(ni.enqueued) >= 1 || ni.isInternallyBlocked
}

type nodeException struct {
	node node.Node
	err  error
}

// Parallel drives a graph.Graph across a worker goroutine pool: sources
// are stepped from the calling goroutine, but every HasInput call —
// including the ones chained transitively from a source's own output — is
// scheduled on whichever worker next picks up the node carrying the
// oldest outstanding data.
type Parallel struct {
	g   *graph.Graph
	cfg Config
	log *slog.Logger

	workMu        sync.Mutex
	workAvailable *sync.Cond
	workReady     *sync.Cond

	// nodeAge indexes nodes with outstanding work by the presentation
	// index of their oldest enqueued batch, so a worker always picks up
	// the node that has been waiting longest — never letting a fast
	// downstream node starve a slow one that arrived first.
	nodeAge map[int64]map[node.ID]*nodeInfo

	numWaiting        int
	aborted           bool
	quit              bool
	readySequence     uint64
	stepReadySequence uint64
	exceptions        []nodeException

	threads   sync.WaitGroup
	startOnce sync.Once

	builtInfo bool
	byID      map[node.ID]*nodeInfo

	perf perfState
}

// NewParallel returns an executor over g. Worker goroutines are started
// lazily on the first Step call.
func NewParallel(g *graph.Graph, cfg Config) *Parallel {
	p := &Parallel{
		g:       g,
		cfg:     cfg,
		log:     logger.Logger(),
		nodeAge: make(map[int64]map[node.ID]*nodeInfo),
		byID:    make(map[node.ID]*nodeInfo),
	}
	p.workAvailable = sync.NewCond(&p.workMu)
	p.workReady = sync.NewCond(&p.workMu)
	return p
}

// SetLog overrides the logger used for scheduler diagnostics.
func (p *Parallel) SetLog(l *slog.Logger) { p.log = l }

func (p *Parallel) buildNodeInfo() {
	p.builtInfo = true

	for _, n := range p.g.Nodes() {
		ni := &nodeInfo{id: n.ID(), nd: n}
		if proc, ok := n.(node.Processor); ok {
			ni.processor = proc
		}
		p.byID[n.ID()] = ni
	}
	for _, s := range p.g.Sources() {
		p.byID[s.ID()].isSource = true
	}

	for _, n := range p.g.Nodes() {
		parentInfo := p.byID[n.ID()]
		for _, e := range p.g.EdgesFrom(n) {
			childInfo := p.byID[e.To.ID()]
			childInfo.parents = append(childInfo.parents, parentInfo)
			parentInfo.numOutputNodes++
		}
	}

	for _, n := range p.g.Nodes() {
		p.bindEmit(n)
	}
	for _, n := range p.g.Nodes() {
		n.GraphStarted()
	}
}

func (p *Parallel) bindEmit(n node.Node) {
	type emitBinder interface{ BindEmit(node.EmitFunc) }
	eb, ok := n.(emitBinder)
	if !ok {
		return
	}
	eb.BindEmit(func(out data.Streams) {
		p.nodeHasOutput(n, out)
	})
}

func (p *Parallel) nodeHasOutput(n node.Node, out data.Streams) {
	ni := p.byID[n.ID()]
	ni.mu.Lock()
	ni.numOutputs++
	ni.mu.Unlock()

	for _, e := range p.g.EdgesFrom(n) {
		filtered := e.Filter.Apply(out)
		if len(filtered) == 0 {
			continue
		}
		p.nodeHasInput(e.To, filtered)
	}
}

// nodeHasInput enqueues a batch for proc. Lock order: proc's own
// nodeInfo first, then (if the node just became over-employed) each of
// its parents in turn, and only then the scheduler's workMu — always in
// that order, never reversed, to rule out lock-order deadlock between
// concurrent producers feeding a shared child.
func (p *Parallel) nodeHasInput(proc node.Processor, in data.Streams) {
	ni := p.byID[proc.ID()]
	ni.mu.Lock()

	ni.numInputs++
	if ni.terminated {
		ni.mu.Unlock()
		return
	}

	nodeHadWork := ni.nodeHasWork()
	ni.enqueued = append(ni.enqueued, in)

	if ni.isNodeOverEmployed() && !ni.setParentBlocked {
		for _, parent := range ni.parents {
			// lock-order: child-before-parent
			parent.mu.Lock()
			parent.numBlockedOutputs++
			parent.mu.Unlock()
		}
		ni.setParentBlocked = true
	}

	if !nodeHadWork && ni.nodeHasWork() {
		p.workMu.Lock()
		p.numWaiting++
		idx := presIndexOf(in)
		ni.mu.Unlock()

		p.updateNodeAgeLocked(ni, idx)
		p.wakeLocked(ni)
		p.workMu.Unlock()
	} else {
		ni.mu.Unlock()
	}
}

// updateNodeAgeLocked moves ni out of its previous age bucket. Requires
// workMu held. Does not insert ni under its new index — wakeLocked does
// that — matching the two-step update/wake split the scheduler always
// performs together.
func (p *Parallel) updateNodeAgeLocked(ni *nodeInfo, newIndex int64) {
	oldIndex := ni.oldestEnqueued.Load()
	if set, ok := p.nodeAge[oldIndex]; ok {
		delete(set, ni.id)
		if len(set) == 0 {
			delete(p.nodeAge, oldIndex)
		}
	}
	ni.oldestEnqueued.Store(newIndex)
}

// wakeLocked inserts ni into the age index under its current
// oldestEnqueued value and signals a worker. Requires workMu held.
func (p *Parallel) wakeLocked(ni *nodeInfo) {
	idx := ni.oldestEnqueued.Load()
	set, ok := p.nodeAge[idx]
	if !ok {
		set = make(map[node.ID]*nodeInfo)
		p.nodeAge[idx] = set
	}
	set[ni.id] = ni
	p.workAvailable.Signal()
}

func (p *Parallel) wakeListLocked(nis []*nodeInfo) {
	for _, ni := range nis {
		p.wakeLocked(ni)
	}
}

// checkAndDecrementParentBlockedOutputsLocked reports the parents that
// should be woken because ni just stopped being over-employed. Requires
// ni.mu held by the caller; locks each parent in turn (child-before-parent).
func (p *Parallel) checkAndDecrementParentBlockedOutputsLocked(ni *nodeInfo) []*nodeInfo {
	var wake []*nodeInfo
	if !ni.isNodeOverEmployed() && ni.setParentBlocked {
		ni.setParentBlocked = false
		for _, parent := range ni.parents {
			parent.mu.Lock()
			parent.numBlockedOutputs--
			if !parent.areOutputsBlocked() && parent.nodeHasWork() {
				wake = append(wake, parent)
			}
			parent.mu.Unlock()
		}
	}
	return wake
}

func presIndexOf(s data.Streams) int64 {
	if len(s) == 0 {
		return 0
	}
	m := s[0].Metadata()
	if m.IsCoded() {
		return m.Coded.PresIndex
	}
	return m.Raw.PresIndex
}

// callHasInput recovers a panic carrying one of the errs taxonomy's
// recoverable kinds and returns it as a plain error; any other panic is
// re-raised, since it indicates a programming error rather than an
// expected operational failure.
func callHasInput(proc node.Processor, s data.Streams) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && errs.IsRecoverable(e) {
				err = e
				return
			}
			panic(r)
		}
	}()
	proc.HasInput(s)
	return nil
}

func (p *Parallel) startWorkersOnce() {
	p.startOnce.Do(func() {
		n := runtime.GOMAXPROCS(0)
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			p.threads.Add(1)
			go p.workerLoop()
		}
	})
}

func (p *Parallel) workerLoop() {
	defer p.threads.Done()

	p.workMu.Lock()
	for {
		for !(p.aborted || p.quit || len(p.nodeAge) > 0) {
			p.workAvailable.Wait()
		}

		quit := (len(p.nodeAge) == 0 && p.quit) || p.aborted
		if quit {
			p.workMu.Unlock()
			return
		}

		ni := p.popOldestLocked()
		p.workMu.Unlock()

		ni.mu.Lock()
		if !ni.areOutputsBlocked() && !ni.running && ni.nodeHasWork() {
			p.runNodeLocked(ni)
			// loop continues holding workMu
		} else {
			ni.mu.Unlock()
			p.workMu.Lock()
		}
	}
}

// popOldestLocked removes and returns the node carrying the
// longest-waiting batch. Requires workMu held; len(p.nodeAge) > 0.
func (p *Parallel) popOldestLocked() *nodeInfo {
	var minAge int64
	first := true
	for age := range p.nodeAge {
		if first || age < minAge {
			minAge = age
			first = false
		}
	}
	set := p.nodeAge[minAge]
	var chosen node.ID
	for id := range set {
		chosen = id
		break
	}
	delete(set, chosen)
	if len(set) == 0 {
		delete(p.nodeAge, minAge)
	}
	return p.byID[chosen]
}

// runNodeLocked drains ni's queue by calling its processor's HasInput for
// every enqueued batch, unlocking ni.mu while each call runs so the node
// can keep receiving work from other producers concurrently, and leaves
// workMu locked (but not ni.mu) when it returns, matching the caller's
// lock state expectations at the top of workerLoop's next iteration.
func (p *Parallel) runNodeLocked(ni *nodeInfo) {
	ni.running = true
	t0 := time.Now()

	var firstErr error
	if ni.terminated {
		ni.enqueued = nil
	} else {
		for len(ni.enqueued) > 0 && !ni.terminated {
			batch := ni.enqueued[0]
			ni.mu.Unlock()
			err := callHasInput(ni.processor, batch)
			ni.mu.Lock()
			if err != nil {
				firstErr = err
				ni.terminated = true
			}
			ni.enqueued = ni.enqueued[1:]
		}
	}
	ni.runtime += time.Since(t0)

	wake := p.checkAndDecrementParentBlockedOutputsLocked(ni)
	ni.running = false

	p.workMu.Lock()
	p.numWaiting--
	if ni.nodeHasWork() && !ni.terminated && p.log != nil {
		p.log.Debug("node finished with work still enqueued",
			"node_id", ni.id, "node_name", ni.nd.Name())
	}
	ni.mu.Unlock()

	if firstErr != nil {
		p.exceptions = append(p.exceptions, nodeException{node: ni.nd, err: firstErr})
	}
	p.wakeListLocked(wake)
	p.readySequence++
	p.workReady.Signal()
}

// waitForProgressOrTimeoutLocked blocks until either the scheduler has
// made visible progress since the last Step, there is nothing left
// in-flight, or five seconds have elapsed, whichever comes first.
// Requires workMu held.
func (p *Parallel) waitForProgressOrTimeoutLocked() {
	const stepTimeout = 5 * time.Second
	deadline := time.Now().Add(stepTimeout)

	timer := time.AfterFunc(stepTimeout, func() {
		p.workMu.Lock()
		p.workReady.Broadcast()
		p.workMu.Unlock()
	})
	defer timer.Stop()

	for !(p.readySequence > p.stepReadySequence || p.numWaiting == 0) {
		if !time.Now().Before(deadline) {
			return
		}
		p.workReady.Wait()
	}
}

// Step calls Produce on every unblocked active source, waits for the
// scheduler to make progress (or for 5 seconds to elapse), and returns
// whether there is still work to do, plus any GraphErrors raised by nodes
// during the wait.
func (p *Parallel) Step() (bool, errs.GraphErrors) {
	if p.aborted {
		return false, nil
	}
	if !p.builtInfo {
		p.buildNodeInfo()
	}
	p.startWorkersOnce()

	for _, n := range p.g.Nodes() {
		ni := p.byID[n.ID()]
		ni.mu.Lock()
		if !ni.running {
			ni.isInternallyBlocked = n.IsBlocked()
		} else {
			ni.isInternallyBlocked = false
		}
		wake := p.checkAndDecrementParentBlockedOutputsLocked(ni)
		ni.mu.Unlock()

		if len(wake) > 0 {
			p.workMu.Lock()
			p.wakeListLocked(wake)
			p.workMu.Unlock()
		}
	}

	anyActive := false
	for _, src := range p.g.Sources() {
		if !src.Active() {
			continue
		}
		anyActive = true

		ni := p.byID[src.ID()]
		ni.mu.Lock()
		unblocked := !ni.areOutputsBlocked()
		ni.mu.Unlock()

		if unblocked {
			t0 := time.Now()
			src.Produce()
			ni.mu.Lock()
			ni.runtime += time.Since(t0)
			ni.mu.Unlock()
		}
	}

	p.workMu.Lock()
	p.waitForProgressOrTimeoutLocked()
	p.stepReadySequence = p.readySequence
	keepWorking := anyActive || p.numWaiting > 0

	var graphErrs errs.GraphErrors
	for _, e := range p.exceptions {
		graphErrs = append(graphErrs, errs.GraphError{
			Message: fmt.Sprintf("node %q (%s): %v", e.node.Name(), e.node.Info(), e.err),
			Err:     e.err,
		})
	}
	needsAbort := len(p.exceptions) > 0
	p.exceptions = nil
	p.workMu.Unlock()

	if needsAbort {
		p.Abort()
	}
	if p.cfg.PerformanceLogging {
		p.performanceLogging()
	}

	return keepWorking, graphErrs
}

// Abort tells every source to emit end-of-stream next, then wakes every
// worker so they observe the abort flag and quit their current wait.
func (p *Parallel) Abort() {
	for _, src := range p.g.Sources() {
		src.Abort()
	}
	p.workMu.Lock()
	p.aborted = true
	p.workAvailable.Broadcast()
	p.workMu.Unlock()
}

// Stop requests worker shutdown and blocks until every worker goroutine
// has exited, for ordered teardown ahead of process exit.
func (p *Parallel) Stop() {
	p.workMu.Lock()
	p.quit = true
	p.workAvailable.Broadcast()
	p.workMu.Unlock()
	p.threads.Wait()
}

// NumActiveNodes reports how many nodes the underlying graph still
// considers active.
func (p *Parallel) NumActiveNodes() int {
	return p.g.NumActiveNodes()
}
