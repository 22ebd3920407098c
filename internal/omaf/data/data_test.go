package data

import "testing"

func TestDataRefcountReleasesOnLastHolder(t *testing.T) {
	released := false
	d := New(1, CPUBytes{Planes: []Plane{{Bytes: []byte{1, 2, 3}}}}, Metadata{})
	d2 := d.Retain()

	d.Release(func(Storage) { released = true })
	if released {
		t.Fatalf("storage released while a reference remains")
	}
	d2.Release(func(Storage) { released = true })
	if !released {
		t.Fatalf("storage not released after last reference dropped")
	}
}

func TestEndOfStreamSentinel(t *testing.T) {
	d := EndOfStreamData(StreamID(3))
	if !d.IsEndOfStream() {
		t.Fatalf("expected IsEndOfStream true")
	}
	if d.StreamID() != 3 {
		t.Fatalf("unexpected stream id: %d", d.StreamID())
	}

	s := Streams{d, EndOfStreamData(StreamID(4))}
	if !s.IsEndOfStream() {
		t.Fatalf("expected Streams.IsEndOfStream true")
	}
}

func TestEmptySentinel(t *testing.T) {
	d := EmptyData(StreamID(1))
	if !d.IsEmpty() {
		t.Fatalf("expected IsEmpty true")
	}
	if d.IsEndOfStream() {
		t.Fatalf("empty data must not read as end of stream")
	}
}

func TestStreamsIsEndOfStreamEmptyBatch(t *testing.T) {
	var s Streams
	if s.IsEndOfStream() {
		t.Fatalf("empty batch must not report end of stream")
	}
}

func TestZeroValueDataIsEmptySafe(t *testing.T) {
	var d Data
	if d.StreamID() != NoStreamID {
		t.Fatalf("zero-value Data should carry NoStreamID, got %d", d.StreamID())
	}
	if !d.IsEmpty() {
		t.Fatalf("zero-value Data should read as empty storage")
	}
	d.Release(func(Storage) { t.Fatalf("putBack must not run on zero-value Data") })
}
