package steplock

import (
	"testing"

	"github.com/alxayo/omaf-creator/internal/omaf/data"
)

func collect(p *Processor) *[]data.Streams {
	out := &[]data.Streams{}
	p.BindEmit(func(s data.Streams) { *out = append(*out, s) })
	return out
}

func TestStepLockHoldsBackUntilEveryBranchContributes(t *testing.T) {
	l := New(Config{ThrottleLimit: 5})
	a := l.Get(1, "a")
	b := l.Get(2, "b")
	c := l.Get(3, "c")

	aOut, bOut, cOut := collect(a), collect(b), collect(c)

	a.HasInput(data.Streams{data.New(1, data.Empty, data.Metadata{})})
	if len(*aOut) != 0 {
		t.Fatalf("expected a's frame held back until b and c contribute")
	}

	b.HasInput(data.Streams{data.New(2, data.Empty, data.Metadata{})})
	if len(*bOut) != 0 {
		t.Fatalf("expected b's frame held back until c contributes")
	}

	c.HasInput(data.Streams{data.New(3, data.Empty, data.Metadata{})})
	if len(*aOut) != 1 || len(*bOut) != 1 || len(*cOut) != 1 {
		t.Fatalf("expected all three frames forwarded once every branch contributed: %d %d %d",
			len(*aOut), len(*bOut), len(*cOut))
	}
}

func TestStepLockPausesBranchOverThrottleLimit(t *testing.T) {
	l := New(Config{ThrottleLimit: 2})
	a := l.Get(1, "a")
	b := l.Get(2, "b")
	collect(a)
	collect(b)

	for i := 0; i < 3; i++ {
		a.HasInput(data.Streams{data.New(1, data.Empty, data.Metadata{})})
	}

	if !a.IsBlocked() {
		t.Fatalf("expected branch a paused after exceeding the throttle limit")
	}
	if b.IsBlocked() {
		t.Fatalf("expected branch b, which has not sent anything, to remain unpaused")
	}
}

func TestStepLockForcesEarlyEndOfStreamAndDropsTheTrailingFrame(t *testing.T) {
	l := New(DefaultConfig)
	a := l.Get(1, "a")
	b := l.Get(2, "b")

	aOut, bOut := collect(a), collect(b)

	// Both branches contribute one frame in lockstep; these forward
	// immediately.
	a.HasInput(data.Streams{data.New(101, data.Empty, data.Metadata{})})
	b.HasInput(data.Streams{data.New(201, data.Empty, data.Metadata{})})

	// a runs one frame ahead before b ends its stream.
	a.HasInput(data.Streams{data.New(102, data.Empty, data.Metadata{})})
	b.HasInput(data.Streams{data.EndOfStreamData(201)})

	if len(*aOut) != 2 {
		t.Fatalf("expected a's trailing frame dropped, only [frame, eos] forwarded, got %d", len(*aOut))
	}
	if (*aOut)[0][0].StreamID() != 101 {
		t.Fatalf("expected a's first forwarded frame to be stream 101, got %d", (*aOut)[0][0].StreamID())
	}
	if !(*aOut)[1].IsEndOfStream() {
		t.Fatalf("expected a's second batch to be the forced end-of-stream")
	}

	if len(*bOut) != 2 || !(*bOut)[1].IsEndOfStream() {
		t.Fatalf("expected b to have forwarded its one frame then end-of-stream")
	}
	if a.Active() || b.Active() {
		t.Fatalf("expected both branches inactive once end-of-stream is forced")
	}
}
