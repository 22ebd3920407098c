package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alxayo/omaf-creator/internal/omaf/data"
	"github.com/alxayo/omaf-creator/internal/omaf/errs"
	"github.com/alxayo/omaf-creator/internal/omaf/node"
)

// DebugSave dumps every batch it receives to disk: one "<prefix>.NNNN.II.data"
// file per stream index holding the raw payload, plus a sidecar
// "<prefix>.NNNN.II.meta" JSON file describing it. It is a debugging aid,
// not a production sink.
type DebugSave struct {
	node.Base

	count int
}

// NewDebugSave returns a DebugSave writing into the current directory,
// prefixed with its own node id so two instances in one graph never
// collide.
func NewDebugSave(id node.ID, name string) *DebugSave {
	return &DebugSave{Base: node.NewBase(id, name)}
}

type debugMeta struct {
	EndOfStream bool          `json:"end_of_stream"`
	StreamID    data.StreamID `json:"stream_id,omitempty"`
}

func (d *DebugSave) prefix() string {
	return fmt.Sprintf("debugsave-%d", d.ID())
}

// Ready removes any dump files this node's id left behind from a previous
// run, so repeated runs do not accumulate stale frames. Call once before
// the graph starts.
func (d *DebugSave) Ready() error {
	for _, ext := range []string{"data", "meta"} {
		matches, err := filepath.Glob(fmt.Sprintf("%s.*.*.%s", d.prefix(), ext))
		if err != nil {
			return errs.NewCannotOpenFile("DebugSave.Ready", d.prefix(), err)
		}
		for _, m := range matches {
			os.Remove(m)
		}
	}
	return nil
}

// HasInput writes every stream index in in to its own numbered file pair.
func (d *DebugSave) HasInput(in data.Streams) {
	d.count++
	eos := in.IsEndOfStream()

	for index, frame := range in {
		metaName := fmt.Sprintf("%s.%04d.%02d.meta", d.prefix(), d.count, index)
		meta := debugMeta{EndOfStream: eos, StreamID: frame.StreamID()}
		buf, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			panic(errs.NewCannotWriteFile("DebugSave.HasInput", metaName, err))
		}
		if err := os.WriteFile(metaName, buf, 0o644); err != nil {
			panic(errs.NewCannotWriteFile("DebugSave.HasInput", metaName, err))
		}

		if eos {
			continue
		}

		dataName := fmt.Sprintf("%s.%04d.%02d.data", d.prefix(), d.count, index)
		var out bytes.Buffer
		if err := writeStorage(&out, frame.Storage()); err != nil {
			panic(errs.NewCannotWriteFile("DebugSave.HasInput", dataName, err))
		}
		if err := os.WriteFile(dataName, out.Bytes(), 0o644); err != nil {
			panic(errs.NewCannotWriteFile("DebugSave.HasInput", dataName, err))
		}
	}

	if eos {
		d.SetInactive()
	}
}
