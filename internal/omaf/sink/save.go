package sink

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alxayo/omaf-creator/internal/omaf/data"
	"github.com/alxayo/omaf-creator/internal/omaf/errs"
	"github.com/alxayo/omaf-creator/internal/omaf/node"
)

// SaveConfig parameterizes a Save sink.
type SaveConfig struct {
	// FileTemplate names the output file per sequence step, containing
	// exactly one "$Number$" token (e.g. "segments/seg-$Number$.m4s").
	FileTemplate string
	// Disabled makes Save a no-op passthrough: end-of-stream still goes
	// through, but every other batch is silently dropped rather than
	// written, for pipelines that wire a Save sink only conditionally.
	Disabled bool
}

// Save writes one file per sequence step, rendering FileTemplate with the
// current step index. It is the terminal sink a segmenter stage feeds.
type Save struct {
	node.Base

	cfg      SaveConfig
	seq      int
	prevName string
}

// NewSave validates cfg.FileTemplate up front (unless disabled) so a
// misconfigured template is reported at graph construction rather than on
// the first frame.
func NewSave(id node.ID, name string, cfg SaveConfig) (*Save, error) {
	if !cfg.Disabled {
		if err := validateTemplate(cfg.FileTemplate); err != nil {
			return nil, err
		}
	}
	return &Save{Base: node.NewBase(id, name), cfg: cfg, seq: 1}, nil
}

// HasInput writes in to this step's rendered filename, or does nothing
// (besides advancing no counter) if Disabled.
func (s *Save) HasInput(in data.Streams) {
	if in.IsEndOfStream() {
		s.SetInactive()
		return
	}
	if s.cfg.Disabled {
		return
	}

	name, err := applyTemplate(s.cfg.FileTemplate, s.seq)
	if err != nil {
		panic(err)
	}
	if name == s.prevName {
		panic(errs.NewConfigError("sink.Save", fmt.Errorf("template %q resulted in overwriting the file just written", s.cfg.FileTemplate)))
	}
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			panic(errs.NewCannotOpenFile("sink.Save", name, err))
		}
	}

	var buf bytes.Buffer
	for _, d := range in {
		if err := writeStorage(&buf, d.Storage()); err != nil {
			panic(errs.NewCannotWriteFile("sink.Save", name, err))
		}
	}
	if err := os.WriteFile(name, buf.Bytes(), 0o644); err != nil {
		panic(errs.NewCannotWriteFile("sink.Save", name, err))
	}

	s.seq++
	s.prevName = name
}
