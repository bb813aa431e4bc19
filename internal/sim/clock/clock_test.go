package clock

import (
	"math"
	"testing"
	"time"

	"worldsim.ai/internal/protocol"
)

type fakeTime struct{ t time.Time }

func (f *fakeTime) now() time.Time      { return f.t }
func (f *fakeTime) add(d time.Duration) { f.t = f.t.Add(d) }

func newFake() *fakeTime { return &fakeTime{t: time.Unix(1_700_000_000, 0)} }

func newClock(f *fakeTime, s float64) *Clock {
	return New(100*time.Millisecond, s).WithNow(f.now)
}

func TestAdvance_CarriesFraction(t *testing.T) {
	f := newFake()
	c := newClock(f, 1)

	f.add(150 * time.Millisecond)
	if n := c.Advance(); n != 1 {
		t.Fatalf("first advance=%d want 1", n)
	}
	f.add(50 * time.Millisecond)
	if n := c.Advance(); n != 1 {
		t.Fatalf("carry lost: advance=%d want 1", n)
	}
	f.add(30 * time.Millisecond)
	if n := c.Advance(); n != 0 {
		t.Fatalf("advance=%d want 0", n)
	}
	if c.Ticks() != 2 {
		t.Fatalf("ticks=%d", c.Ticks())
	}
}

func TestAdvance_MonotonicInScale(t *testing.T) {
	prev := -1
	for _, s := range []float64{0.1, 0.5, 1, 1.5, 2, 3.3, 10} {
		f := newFake()
		c := newClock(f, 1)
		if err := c.SetTimeScale(s); err != nil {
			t.Fatalf("scale %v: %v", s, err)
		}
		f.add(time.Second)
		n := c.Advance()
		if n < prev {
			t.Fatalf("scale %v: ticks %d < previous %d", s, n, prev)
		}
		prev = n
	}
}

func TestSetTimeScale_RejectsInvalid(t *testing.T) {
	c := newClock(newFake(), 2)
	for _, v := range []float64{-1, 0, math.NaN(), math.Inf(1)} {
		if err := c.SetTimeScale(v); !protocol.IsCode(err, protocol.ErrInvalidArgument) {
			t.Fatalf("%v: expected invalid argument, got %v", v, err)
		}
	}
	if c.TimeScale() != 2 {
		t.Fatalf("scale changed: %v", c.TimeScale())
	}
}

func TestSetTimeScale_NotRetroactive(t *testing.T) {
	f := newFake()
	c := newClock(f, 1)
	f.add(500 * time.Millisecond)
	if err := c.SetTimeScale(4); err != nil {
		t.Fatal(err)
	}
	// 5 ticks at scale 1 plus 100ms at scale 4.
	f.add(100 * time.Millisecond)
	if n := c.Advance(); n != 9 {
		t.Fatalf("advance=%d want 9", n)
	}
}

func TestStepAndReset(t *testing.T) {
	f := newFake()
	c := newClock(f, 1)
	if c.Step() != 1 {
		t.Fatalf("step must return 1")
	}
	f.add(10 * time.Second)
	c.Reset(0.5)
	if n := c.Advance(); n != 0 {
		t.Fatalf("reset should drop elapsed time, got %d", n)
	}
	if c.TimeScale() != 0.5 {
		t.Fatalf("reset scale=%v", c.TimeScale())
	}
	c.Reset(-3)
	if c.TimeScale() != 0.5 {
		t.Fatalf("invalid reset scale applied")
	}
}
