package clock

import (
	"math"
	"sync"
	"time"

	"worldsim.ai/internal/protocol"
)

// Clock converts wall time into whole ticks. Fractional ticks carry over
// between Advance calls so pacing does not drift with the poll interval.
type Clock struct {
	mu sync.Mutex

	tickDuration time.Duration
	scale        float64
	last         time.Time
	carry        float64
	emitted      int64

	now func() time.Time
}

func New(tickDuration time.Duration, scale float64) *Clock {
	if tickDuration <= 0 {
		tickDuration = time.Second
	}
	if !validScale(scale) {
		scale = 1.0
	}
	c := &Clock{tickDuration: tickDuration, scale: scale, now: time.Now}
	c.last = c.now()
	return c
}

// WithNow swaps the time source; used by tests.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	c.mu.Lock()
	c.now = now
	c.last = now()
	c.mu.Unlock()
	return c
}

func validScale(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (c *Clock) Advance() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	elapsed := now.Sub(c.last)
	c.last = now
	if elapsed < 0 {
		elapsed = 0
	}
	acc := c.carry + float64(elapsed)/float64(c.tickDuration)*c.scale
	n := math.Floor(acc)
	c.carry = acc - n
	c.emitted += int64(n)
	return int(n)
}

// SetTimeScale settles elapsed time at the old scale before switching.
func (c *Clock) SetTimeScale(v float64) error {
	if !validScale(v) {
		return protocol.Errorf(protocol.ErrInvalidArgument, "time_scale must be > 0, got %v", v)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.carry += float64(now.Sub(c.last)) / float64(c.tickDuration) * c.scale
	c.last = now
	c.scale = v
	return nil
}

func (c *Clock) TimeScale() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scale
}

// Step is a manual advance of exactly one tick.
func (c *Clock) Step() int {
	c.mu.Lock()
	c.emitted++
	c.mu.Unlock()
	return 1
}

// Reset drops accumulated wall time, e.g. when a loop starts or the world changes.
func (c *Clock) Reset(scale float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if validScale(scale) {
		c.scale = scale
	}
	c.last = c.now()
	c.carry = 0
}

func (c *Clock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emitted
}

func (c *Clock) TickDuration() time.Duration { return c.tickDuration }
