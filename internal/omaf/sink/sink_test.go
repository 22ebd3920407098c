package sink

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alxayo/omaf-creator/internal/omaf/data"
	"github.com/alxayo/omaf-creator/internal/omaf/errs"
)

func TestApplyTemplateRejectsMissingOrRepeatedOrUnknownTokens(t *testing.T) {
	cases := []struct {
		name    string
		tmpl    string
		wantErr bool
	}{
		{"valid", "seg-$Number$.m4s", false},
		{"missing", "seg.m4s", true},
		{"repeated", "seg-$Number$-$Number$.m4s", true},
		{"unknown", "seg-$Frame$.m4s", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := applyTemplate(c.tmpl, 3)
			if (err != nil) != c.wantErr {
				t.Fatalf("applyTemplate(%q): err=%v, wantErr=%v", c.tmpl, err, c.wantErr)
			}
		})
	}
}

func TestApplyTemplateRendersSequenceNumber(t *testing.T) {
	got, err := applyTemplate("out/seg-$Number$.m4s", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "out/seg-7.m4s" {
		t.Fatalf("expected rendered name out/seg-7.m4s, got %q", got)
	}
}

// TestSaveThenReloadRoundTrips writes two sequential frames through Save
// and reads the rendered files back, checking that each reloaded payload
// is byte-equal to what was written: round-trip law #7.
func TestSaveThenReloadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSave(1, "save", SaveConfig{FileTemplate: filepath.Join(dir, "seg-$Number$.bin")})
	if err != nil {
		t.Fatalf("NewSave: %v", err)
	}

	payloads := [][]byte{[]byte("first segment payload"), []byte("second segment payload")}
	for _, payload := range payloads {
		d := data.New(42, data.CPUBytes{Planes: []data.Plane{{Bytes: payload}}}, data.Metadata{})
		s.HasInput(data.Streams{d})
	}
	s.HasInput(data.Streams{data.EndOfStreamData(42)})

	if s.Active() {
		t.Fatalf("expected Save to go inactive on end-of-stream")
	}

	for i, want := range payloads {
		name := filepath.Join(dir, "seg-"+strconv.Itoa(i+1)+".bin")
		got, err := os.ReadFile(name)
		if err != nil {
			t.Fatalf("reading back %s: %v", name, err)
		}
		if string(got) != string(want) {
			t.Fatalf("round-trip mismatch for %s: got %q, want %q", name, got, want)
		}
	}
}

func TestSaveRejectsTemplateThatWouldOverwrite(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSave(1, "save", SaveConfig{FileTemplate: filepath.Join(dir, "constant.bin")})
	if err != nil {
		t.Fatalf("NewSave: %v", err)
	}

	d := data.New(1, data.CPUBytes{Planes: []data.Plane{{Bytes: []byte("x")}}}, data.Metadata{})
	s.HasInput(data.Streams{d})

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected the second write with a constant-rendered template to panic")
		}
		if err, ok := r.(error); !ok || !errs.IsRecoverable(err) {
			t.Fatalf("expected a recoverable errs taxonomy panic, got %v", r)
		}
	}()
	s.HasInput(data.Streams{d})
}

func TestSaveDisabledDropsFramesButPassesEndOfStream(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSave(1, "save", SaveConfig{FileTemplate: filepath.Join(dir, "seg-$Number$.bin"), Disabled: true})
	if err != nil {
		t.Fatalf("NewSave: %v", err)
	}
	d := data.New(1, data.CPUBytes{Planes: []data.Plane{{Bytes: []byte("x")}}}, data.Metadata{})
	s.HasInput(data.Streams{d})

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files written while disabled, found %d", len(entries))
	}

	s.HasInput(data.Streams{data.EndOfStreamData(1)})
	if s.Active() {
		t.Fatalf("expected Save to still go inactive on end-of-stream while disabled")
	}
}

func TestDebugSaveWritesDataAndJSONMeta(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(cwd)

	ds := NewDebugSave(9, "debug")
	if err := ds.Ready(); err != nil {
		t.Fatalf("Ready: %v", err)
	}

	d := data.New(5, data.CPUBytes{Planes: []data.Plane{{Bytes: []byte("payload")}}}, data.Metadata{})
	ds.HasInput(data.Streams{d})

	dataBytes, err := os.ReadFile("debugsave-9.0001.00.data")
	if err != nil {
		t.Fatalf("reading dumped data file: %v", err)
	}
	if string(dataBytes) != "payload" {
		t.Fatalf("expected dumped payload %q, got %q", "payload", dataBytes)
	}

	metaBytes, err := os.ReadFile("debugsave-9.0001.00.meta")
	if err != nil {
		t.Fatalf("reading dumped meta file: %v", err)
	}
	var meta debugMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		t.Fatalf("unmarshaling meta JSON: %v", err)
	}
	if meta.StreamID != 5 || meta.EndOfStream {
		t.Fatalf("unexpected meta contents: %+v", meta)
	}

	ds.HasInput(data.Streams{data.EndOfStreamData(5)})
	if ds.Active() {
		t.Fatalf("expected DebugSave to go inactive on end-of-stream")
	}
}

func TestMetaCaptureSinkResolvesOnFirstCodedFrameAndForwards(t *testing.T) {
	m := NewMetaCaptureSink(1, "capture", MetaCaptureConfig{PickFirstOne: true})
	var forwarded []data.Streams
	m.BindEmit(func(s data.Streams) { forwarded = append(forwarded, s) })

	var got []data.CodedMeta
	m.CodedFrameMeta().Then(func(v []data.CodedMeta) { got = v })

	d := data.New(1, data.Empty, data.NewCodedMetadata(data.CodedMeta{TrackID: 7}))
	m.HasInput(data.Streams{d})

	if len(got) != 1 || got[0].TrackID != 7 {
		t.Fatalf("expected captured metadata with TrackID 7, got %+v", got)
	}
	if len(forwarded) != 1 {
		t.Fatalf("expected the frame forwarded downstream, got %d forwarded batches", len(forwarded))
	}

	m.HasInput(data.Streams{data.EndOfStreamData(1)})
	if m.Active() {
		t.Fatalf("expected MetaCaptureSink to go inactive on end-of-stream")
	}
	if len(forwarded) != 2 {
		t.Fatalf("expected end-of-stream forwarded too, got %d forwarded batches", len(forwarded))
	}
}
