package exec

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alxayo/omaf-creator/internal/omaf/node"
)

// nodePerfSnapshot is a point-in-time copy of one node's scheduler
// counters, taken under its nodeInfo lock so the CSV writer never reads a
// torn value.
type nodePerfSnapshot struct {
	runtime           time.Duration
	queueLength       int
	running           bool
	numBlockedOutputs int
	oldestEnqueued    int64
	setParentBlocked  bool
	numInputs         uint64
	numOutputs        uint64
}

// perfState holds the open files and previous snapshot for performance
// logging; separated from Parallel's scheduling fields because it is only
// ever touched from Step's calling goroutine, never from a worker.
type perfState struct {
	mu sync.Mutex

	started      time.Time
	lastSnapshot time.Time
	prev         map[node.ID]nodePerfSnapshot
	order        []node.ID

	generalFile *os.File
	generalW    *csv.Writer

	nodeFiles   map[node.ID]*os.File
	nodeWriters map[node.ID]*csv.Writer
}

func (p *Parallel) snapshotNodes() map[node.ID]nodePerfSnapshot {
	out := make(map[node.ID]nodePerfSnapshot, len(p.byID))
	for id, ni := range p.byID {
		ni.mu.Lock()
		out[id] = nodePerfSnapshot{
			runtime:           ni.runtime,
			queueLength:       len(ni.enqueued),
			running:           ni.running,
			numBlockedOutputs: ni.numBlockedOutputs,
			oldestEnqueued:    ni.oldestEnqueued.Load(),
			setParentBlocked:  ni.setParentBlocked,
			numInputs:         ni.numInputs,
			numOutputs:        ni.numOutputs,
		}
		ni.mu.Unlock()
	}
	return out
}

// performanceLogging writes a general.csv row, one row per node CSV, and
// a single-character-per-node stderr heartbeat, at most 10 times a
// second. It never reports a write error to the caller: logging is
// diagnostic, and a full disk must not stall the pipeline.
func (p *Parallel) performanceLogging() {
	now := time.Now()

	p.perf.mu.Lock()
	defer p.perf.mu.Unlock()

	if p.perf.started.IsZero() {
		p.perf.started = now
	}
	if !p.perf.lastSnapshot.IsZero() && now.Sub(p.perf.lastSnapshot) <= 100*time.Millisecond {
		return
	}
	p.perf.lastSnapshot = now
	elapsed := now.Sub(p.perf.started).Seconds()

	snapshot := p.snapshotNodes()
	dir := p.cfg.LogDir
	if dir == "" {
		dir = "."
	}

	if p.perf.generalW == nil {
		p.openGeneralLocked(dir)
	}
	if p.perf.generalW != nil {
		totalQueued := 0
		for _, s := range snapshot {
			totalQueued += s.queueLength
		}
		p.perf.generalW.Write([]string{
			fmt.Sprintf("%.3f", elapsed),
			fmt.Sprintf("%d", len(snapshot)),
			fmt.Sprintf("%d", totalQueued),
		})
		p.perf.generalW.Flush()
	}

	if p.perf.nodeWriters == nil {
		p.openCatalogLocked(dir, snapshot)
	}

	for id, s := range snapshot {
		w := p.perf.nodeWriters[id]
		if w == nil {
			continue
		}
		runtimeVal := s.runtime.Seconds()
		if prev, ok := p.perf.prev[id]; ok {
			runtimeVal = s.runtime.Seconds() - prev.runtime.Seconds()
		}
		w.Write([]string{
			fmt.Sprintf("%.3f", elapsed),
			fmt.Sprintf("%.3f", runtimeVal),
			fmt.Sprintf("%d", s.queueLength),
			fmt.Sprintf("%t", s.running),
			fmt.Sprintf("%d", s.numBlockedOutputs),
			fmt.Sprintf("%d", s.oldestEnqueued),
			fmt.Sprintf("%t", s.setParentBlocked),
			fmt.Sprintf("%d", s.numInputs),
			fmt.Sprintf("%d", s.numOutputs),
		})
		w.Flush()
	}

	if p.perf.prev != nil {
		var sb strings.Builder
		for _, id := range p.perf.order {
			cur := snapshot[id]
			old := p.perf.prev[id]
			switch {
			case cur.running:
				sb.WriteByte('@')
			case cur.numInputs != old.numInputs:
				if cur.numOutputs != old.numOutputs {
					sb.WriteByte('=')
				} else {
					sb.WriteByte('<')
				}
			default:
				if cur.numOutputs != old.numOutputs {
					sb.WriteByte('>')
				} else {
					sb.WriteByte('.')
				}
			}
		}
		fmt.Fprintln(os.Stderr, sb.String())
	}

	p.perf.prev = snapshot
}

func (p *Parallel) openGeneralLocked(dir string) {
	f, err := os.Create(filepath.Join(dir, "general.csv"))
	if err != nil {
		if p.log != nil {
			p.log.Warn("cannot open performance log", "file", "general.csv", "error", err)
		}
		return
	}
	p.perf.generalFile = f
	p.perf.generalW = csv.NewWriter(f)
	p.perf.generalW.Comma = ';'
	p.perf.generalW.Write([]string{"time", "activeNodes", "totalQueued"})
	p.perf.generalW.Flush()
}

func (p *Parallel) openCatalogLocked(dir string, snapshot map[node.ID]nodePerfSnapshot) {
	catalog, err := os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		if p.log != nil {
			p.log.Warn("cannot open performance catalog", "error", err)
		}
		return
	}
	defer catalog.Close()

	catalogW := csv.NewWriter(catalog)
	catalogW.Comma = ';'
	catalogW.Write([]string{"file", "info"})

	p.perf.nodeWriters = make(map[node.ID]*csv.Writer)
	p.perf.nodeFiles = make(map[node.ID]*os.File)
	p.perf.order = nil

	for _, n := range p.g.Nodes() {
		id := n.ID()
		if _, ok := snapshot[id]; !ok {
			continue
		}
		name := fmt.Sprintf("%d.csv", id)
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			if p.log != nil {
				p.log.Warn("cannot open per-node performance log", "node_id", id, "error", err)
			}
			continue
		}
		w := csv.NewWriter(f)
		w.Comma = ';'
		w.Write([]string{
			"time", "runtime", "queueLength", "running", "numBlockedOutputs",
			"oldestEnqueuedIndex", "setParentBlocked", "numInputs", "numOutputs",
		})
		w.Flush()

		p.perf.nodeFiles[id] = f
		p.perf.nodeWriters[id] = w
		p.perf.order = append(p.perf.order, id)
		catalogW.Write([]string{name, n.Info()})
	}
	catalogW.Flush()
}
