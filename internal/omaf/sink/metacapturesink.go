package sink

import (
	"github.com/alxayo/omaf-creator/internal/omaf/data"
	"github.com/alxayo/omaf-creator/internal/omaf/future"
	"github.com/alxayo/omaf-creator/internal/omaf/node"
)

// MetaCaptureConfig selects which frame a MetaCaptureSink resolves its
// promise from: either the very first one it sees, or the first one
// carrying the named stream.
type MetaCaptureConfig struct {
	PickFirstOne bool
	StreamID     data.StreamID
}

// MetaCaptureSink watches a stream for its first coded frame and resolves
// a future with its metadata, for collaborators that need to know (say) a
// track's coding configuration before they can start producing their own
// output. It forwards every frame unchanged afterward so it can be spliced
// inline rather than only terminating a branch.
type MetaCaptureSink struct {
	node.Base

	cfg     MetaCaptureConfig
	done    bool
	promise future.Promise[[]data.CodedMeta]
}

// NewMetaCaptureSink returns a MetaCaptureSink configured per cfg.
func NewMetaCaptureSink(id node.ID, name string, cfg MetaCaptureConfig) *MetaCaptureSink {
	return &MetaCaptureSink{
		Base:    node.NewBase(id, name),
		cfg:     cfg,
		promise: future.NewPromise[[]data.CodedMeta](),
	}
}

// CodedFrameMeta returns the future that resolves with the captured
// frame's per-stream coded metadata.
func (m *MetaCaptureSink) CodedFrameMeta() future.Future[[]data.CodedMeta] {
	return m.promise.GetFuture()
}

// HasInput captures metadata from the first qualifying frame, then
// forwards in unchanged regardless of whether this batch qualified.
func (m *MetaCaptureSink) HasInput(in data.Streams) {
	if !m.done && !in.IsEndOfStream() {
		if m.cfg.PickFirstOne {
			m.done = true
			metas := make([]data.CodedMeta, 0, len(in))
			for _, d := range in {
				metas = append(metas, d.Metadata().Coded)
			}
			m.promise.Set(metas)
		} else {
			var metas []data.CodedMeta
			for _, d := range in {
				if d.StreamID() == m.cfg.StreamID {
					metas = append(metas, d.Metadata().Coded)
					m.done = true
				}
			}
			if len(metas) > 0 {
				m.promise.Set(metas)
			}
		}
	}

	m.Emit(in)
	if in.IsEndOfStream() {
		m.SetInactive()
	}
}
