package narrative

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Sink is the durable half of the log.
type Sink interface {
	AppendLog(ctx context.Context, worldID string, line []byte) error
	TailLog(ctx context.Context, worldID string, n int, kind string) ([][]byte, error)
}

const DefaultRingSize = 500

// Log dual-writes entries to a bounded ring and a best-effort durable sink.
type Log struct {
	mu      sync.Mutex
	worldID string
	ring    []Entry
	head    int
	count   int
	seq     int64
	subs    map[chan Entry]struct{}

	sinkMu sync.Mutex
	sink   Sink

	appended atomic.Int64
	failures atomic.Int64

	logger *log.Logger
	now    func() time.Time
}

type Stats struct {
	Appended        int64 `json:"appended"`
	DurableFailures int64 `json:"durable_failures"`
	RingLen         int   `json:"ring_len"`
	Subscribers     int   `json:"subscribers"`
}

func New(size int, sink Sink, logger *log.Logger) *Log {
	if size <= 0 {
		size = DefaultRingSize
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Log{
		ring:   make([]Entry, size),
		sink:   sink,
		subs:   map[chan Entry]struct{}{},
		logger: logger,
		now:    time.Now,
	}
}

// SetWorld rebinds the log to another world and clears the ring. The sequence
// resumes after the newest durable entry when one is readable.
func (l *Log) SetWorld(ctx context.Context, worldID string) {
	var seq int64
	if l.sink != nil {
		if lines, err := l.sink.TailLog(ctx, worldID, 1, ""); err == nil && len(lines) == 1 {
			var e Entry
			if json.Unmarshal(lines[0], &e) == nil {
				seq = e.Seq
			}
		}
	}
	l.mu.Lock()
	l.worldID = worldID
	l.head, l.count = 0, 0
	for i := range l.ring {
		l.ring[i] = Entry{}
	}
	l.seq = seq
	l.mu.Unlock()
}

func (l *Log) WorldID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.worldID
}

// Append records e. A durable failure is counted and logged, never returned.
func (l *Log) Append(ctx context.Context, e Entry) Entry {
	l.mu.Lock()
	l.seq++
	e.Seq = l.seq
	e.WorldID = l.worldID
	if e.Time.IsZero() {
		e.Time = l.now().UTC()
	}
	idx := (l.head + l.count) % len(l.ring)
	if l.count < len(l.ring) {
		l.count++
	} else {
		l.head = (l.head + 1) % len(l.ring)
	}
	l.ring[idx] = e
	subs := make([]chan Entry, 0, len(l.subs))
	for ch := range l.subs {
		subs = append(subs, ch)
	}
	l.mu.Unlock()
	l.appended.Add(1)

	for _, ch := range subs {
		deliver(ch, e)
	}
	l.writeDurable(ctx, e)
	return e
}

func (l *Log) writeDurable(ctx context.Context, e Entry) {
	if l.sink == nil {
		return
	}
	line, err := json.Marshal(e)
	if err == nil {
		l.sinkMu.Lock()
		err = l.sink.AppendLog(ctx, e.WorldID, line)
		l.sinkMu.Unlock()
	}
	if err != nil {
		n := l.failures.Add(1)
		if n == 1 || n%100 == 0 {
			l.logger.Printf("narrative append failed (world=%s seq=%d failures=%d): %v", e.WorldID, e.Seq, n, err)
		}
	}
}

// deliver drops the oldest queued entry when a subscriber lags.
func deliver(ch chan Entry, e Entry) {
	for i := 0; i < 2; i++ {
		select {
		case ch <- e:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Tail returns up to n newest entries, optionally of one kind, oldest first.
// Durable storage is read first; the ring serves when it fails or is empty.
func (l *Log) Tail(ctx context.Context, n int, kind Kind) []Entry {
	if n <= 0 {
		n = 50
	}
	if out, ok := l.tailDurable(ctx, n, kind); ok {
		return out
	}
	return l.tailRing(n, kind)
}

func (l *Log) tailDurable(ctx context.Context, n int, kind Kind) ([]Entry, bool) {
	if l.sink == nil {
		return nil, false
	}
	lines, err := l.sink.TailLog(ctx, l.WorldID(), n, string(kind))
	if err != nil || len(lines) == 0 {
		return nil, false
	}
	out := make([]Entry, 0, n)
	for _, line := range lines {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if kind != "" && e.Kind != kind {
			continue
		}
		out = append(out, e)
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, true
}

func (l *Log) tailRing(n int, kind Kind) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var rev []Entry
	for i := l.count - 1; i >= 0 && len(rev) < n; i-- {
		e := l.ring[(l.head+i)%len(l.ring)]
		if kind != "" && e.Kind != kind {
			continue
		}
		rev = append(rev, e)
	}
	out := make([]Entry, len(rev))
	for i := range rev {
		out[len(rev)-1-i] = rev[i]
	}
	return out
}

// Subscribe streams new entries; cancel releases the subscription.
func (l *Log) Subscribe(buf int) (<-chan Entry, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan Entry, buf)
	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, ch)
			l.mu.Unlock()
		})
	}
}

func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Appended:        l.appended.Load(),
		DurableFailures: l.failures.Load(),
		RingLen:         l.count,
		Subscribers:     len(l.subs),
	}
}
