// Package external declares the collaborator interfaces the core engine
// consumes without implementing: bitstream rewriting, container I/O,
// segmenting, configuration loading, and storage upload. Each is deliberately
// narrow, mirroring the RTMP relay client interface pattern of depending on
// the smallest surface a caller actually needs rather than a concrete type.
package external

import (
	"context"
	"io"

	"github.com/alxayo/omaf-creator/internal/omaf/data"
)

// HEVCRewriter synthesizes the SEI NAL units and parameter-set rewrites the
// tile-proxy assembly needs but cannot produce itself: projection and
// region-wise-packing SEI messages for the first extractor sample of a
// merged picture, and SPS/PPS rewritten for a combined resolution when
// tiles of different source resolutions are pooled into one track.
type HEVCRewriter interface {
	// CreateExtractorSEI returns a buffer carrying the projection SEI, and
	// (if regionPacking is non-nil) the region-wise-packing SEI, each
	// prefixed with its own 32-bit length field, ready to prepend as an
	// inline extractor construct.
	CreateExtractorSEI(regionPacking *data.RegionPacking, temporalIDPlus1 int) []byte

	// RewriteParameterSets returns the NAL bytes for a VPS/SPS/PPS set
	// patched to describe the merged picture width/height, used once per
	// tile stream of a target whose tiles of mismatched source resolution
	// are pooled (the multi-resolution tile-proxy variant).
	RewriteParameterSets(original []byte, width, height uint32) []byte
}

// MP4Reader reads sample-level data out of an ISOBMFF/MP4 container,
// handing each track's samples to the graph as Data batches.
type MP4Reader interface {
	Open(path string) error
	NextSample(trackID uint32) (data.Data, error)
	Close() error
}

// MP4Writer writes finished tracks (including extractor tracks) back out
// to an ISOBMFF/MP4 container.
type MP4Writer interface {
	AddTrack(trackID uint32, meta data.CodedMeta) error
	WriteSample(trackID uint32, d data.Data) error
	Close() error
}

// SegmenterLibrary produces DASH-compatible media segments (and the MPD
// manifest referencing them) from finished tracks, including extractor
// tracks and their constituent-picture-matching region packing.
type SegmenterLibrary interface {
	WriteSegment(trackID uint32, segmentIndex int, d data.Data) (path string, err error)
	WriteManifest(outputDir string) error
}

// ConfigLoader parses a pipeline configuration document (JSON) into
// whatever shape the caller expects, returning errs.ConfigError on
// malformed input.
type ConfigLoader interface {
	Load(r io.Reader, into interface{}) error
}

// FilesystemSaver abstracts where a rendered segment or debug dump ends up:
// a local path, an object store, or both. AzureSave and DebugSave do not
// use it; they write local files with os.WriteFile directly.
type FilesystemSaver interface {
	Save(ctx context.Context, name string, content []byte) error
}

// Logger is the structured logging surface the core depends on. *slog.Logger
// satisfies this directly; it exists as a named interface purely so
// collaborators can be substituted in tests without importing log/slog.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Renderer consumes decoded frames for on-screen (or headless) playback.
// Declared for cmd/omafctl to typecheck a future player wiring point; the
// authoring core never calls it.
type Renderer interface {
	RenderFrame(d data.Data) error
	Close() error
}

// AudioPlayer consumes decoded audio samples for playback, alongside a
// Renderer. Declared for the same forward-compatibility reason.
type AudioPlayer interface {
	PlaySamples(d data.Data) error
	Close() error
}

// NopRewriter is a zero-value HEVCRewriter for tests and configurations
// that do not need real SEI/parameter-set bytes.
type NopRewriter struct{}

func (NopRewriter) CreateExtractorSEI(*data.RegionPacking, int) []byte { return nil }
func (NopRewriter) RewriteParameterSets(original []byte, _, _ uint32) []byte {
	return original
}

// NopSegmenter is a zero-value SegmenterLibrary for tests.
type NopSegmenter struct{}

func (NopSegmenter) WriteSegment(uint32, int, data.Data) (string, error) { return "", nil }
func (NopSegmenter) WriteManifest(string) error                          { return nil }

// NopSaver is a zero-value FilesystemSaver for tests that need the
// interface satisfied without touching a real filesystem or object store.
type NopSaver struct{}

func (NopSaver) Save(context.Context, string, []byte) error { return nil }
