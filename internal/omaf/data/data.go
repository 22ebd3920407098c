package data

import "sync/atomic"

// StreamID names one of the data streams a node produces or consumes
// (e.g. a specific tile's video, the combined audio track, ...).
type StreamID uint32

// NoStreamID is the uninitialized sentinel; a node.Node that has not yet
// been told which stream index it owns reports this.
const NoStreamID StreamID = 0

// storageHandle is the heap allocation shared by every copy of a Data
// value taken from the same producer call, so releasing one copy does not
// invalidate others still holding a reference.
type storageHandle struct {
	storage    Storage
	meta       Metadata
	extractors []Extractor
	refcount   atomic.Int64
}

// Data is an immutable, reference-counted handle to a payload: the small
// struct is passed by value across node boundaries while the backing
// bytes (pooled via internal/bufpool for CPUBytes) are shared until the
// last holder calls Release.
type Data struct {
	streamID StreamID
	handle   *storageHandle
}

// New wraps storage and meta into a fresh Data with a single reference.
func New(streamID StreamID, storage Storage, meta Metadata) Data {
	h := &storageHandle{storage: storage, meta: meta}
	h.refcount.Store(1)
	return Data{streamID: streamID, handle: h}
}

// NewWithExtractors is New plus extractor track constructs attached to the
// sample (used by tile-proxy assembly nodes).
func NewWithExtractors(streamID StreamID, storage Storage, meta Metadata, extractors []Extractor) Data {
	d := New(streamID, storage, meta)
	d.handle.extractors = extractors
	return d
}

// EndOfStreamData returns the sentinel Data signaling the named stream has no
// further samples.
func EndOfStreamData(streamID StreamID) Data {
	return New(streamID, EndOfStream, Metadata{})
}

// EmptyData returns the sentinel Data occupying an output slot a node
// declines to fill on a given step.
func EmptyData(streamID StreamID) Data {
	return New(streamID, Empty, Metadata{})
}

// Retain increments the reference count and returns d unchanged, for call
// sites that hand the same Data to more than one downstream consumer.
func (d Data) Retain() Data {
	if d.handle != nil {
		d.handle.refcount.Add(1)
	}
	return d
}

// Release decrements the reference count. Go's garbage collector reclaims
// the backing storage once every holder has released and no reference
// remains reachable; Release exists so bufpool-backed CPUBytes planes can
// be returned to the pool deterministically rather than only at GC time.
func (d Data) Release(putBack func(Storage)) {
	if d.handle == nil {
		return
	}
	if d.handle.refcount.Add(-1) == 0 && putBack != nil {
		putBack(d.handle.storage)
	}
}

// StreamID reports which stream this Data belongs to.
func (d Data) StreamID() StreamID { return d.streamID }

// Storage returns the backing payload variant.
func (d Data) Storage() Storage {
	if d.handle == nil {
		return Empty
	}
	return d.handle.storage
}

// Metadata returns the sample-level description attached to d.
func (d Data) Metadata() Metadata {
	if d.handle == nil {
		return Metadata{}
	}
	return d.handle.meta
}

// Extractors returns the extractor track constructs attached to d, if any.
func (d Data) Extractors() []Extractor {
	if d.handle == nil {
		return nil
	}
	return d.handle.extractors
}

// IsEndOfStream reports whether d is the end-of-stream sentinel.
func (d Data) IsEndOfStream() bool {
	return d.Storage().Kind() == StorageEndOfStream
}

// IsEmpty reports whether d is the empty "not stored anywhere" sentinel.
func (d Data) IsEmpty() bool {
	return d.Storage().Kind() == StorageEmpty
}
