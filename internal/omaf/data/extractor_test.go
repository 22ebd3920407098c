package data

import "testing"

func TestExtractorInsertKeepsIdxOrder(t *testing.T) {
	var e Extractor
	e.Insert(ExtractorConstruct{Inline: &InlineConstruct{Idx: 2, Bytes: []byte("b")}})
	e.Insert(ExtractorConstruct{Inline: &InlineConstruct{Idx: 0, Bytes: []byte("a")}})
	e.Insert(ExtractorConstruct{Sample: &SampleConstruct{Idx: 1, TrackRefIdx: 1}})

	got := e.Constructs()
	if len(got) != 3 {
		t.Fatalf("expected 3 constructs, got %d", len(got))
	}
	for i, c := range got {
		if c.idx() != i {
			t.Fatalf("construct %d has idx %d, want %d", i, c.idx(), i)
		}
	}
}

func TestExtractorLen(t *testing.T) {
	var e Extractor
	if e.Len() != 0 {
		t.Fatalf("expected empty extractor len 0")
	}
	e.Insert(ExtractorConstruct{Inline: &InlineConstruct{Idx: 0}})
	if e.Len() != 1 {
		t.Fatalf("expected len 1 after insert")
	}
}
