// Package runtime drives the active world: the tick pipeline, the background
// loop, and the operations the transports call.
package runtime

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"worldsim.ai/internal/gen"
	"worldsim.ai/internal/persistence/storage"
	"worldsim.ai/internal/protocol"
	"worldsim.ai/internal/sim/clock"
	"worldsim.ai/internal/sim/fate"
	"worldsim.ai/internal/sim/narrative"
	"worldsim.ai/internal/sim/tuning"
	"worldsim.ai/internal/sim/world"
)

const tracerName = "worldsim.ai/internal/sim/runtime"

type Options struct {
	Tuning tuning.Tuning
	// Storage receives world documents and the narrative stream; nil keeps
	// everything in memory.
	Storage   storage.Storage
	Generator gen.Generator
	Logger    *log.Logger
	// Now replaces the wall clock; tests use it to drive Advance.
	Now func() time.Time
}

type Runtime struct {
	tun     tuning.Tuning
	store   *world.Store
	clock   *clock.Clock
	fate    *fate.Engine
	log     *narrative.Log
	gen     gen.Generator
	storage storage.Storage
	logger  *log.Logger
	tracer  trace.Tracer

	// tickMu serializes ticks, world swaps and multi-step API operations.
	tickMu sync.Mutex

	runMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}

	ticks           atomic.Int64
	eventsResolved  atomic.Int64
	fateFired       atomic.Int64
	warnings        atomic.Int64
	dialogues       atomic.Int64
	genFailures     atomic.Int64
	persistFailures atomic.Int64
}

func New(w *world.World, opts Options) (*Runtime, error) {
	opts.Tuning.ApplyDefaults()
	if err := opts.Tuning.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Generator == nil {
		opts.Generator = gen.Nop{}
	}
	engine, err := fate.NewEngine(opts.Tuning.Seed, fate.FromTuning(opts.Tuning)...)
	if err != nil {
		return nil, err
	}
	store := world.NewStore(w)
	clk := clock.New(opts.Tuning.TickDuration(), store.Snapshot().TimeScale)
	if opts.Now != nil {
		clk.WithNow(opts.Now)
	}
	var sink narrative.Sink
	if opts.Storage != nil {
		sink = opts.Storage
	}
	r := &Runtime{
		tun:     opts.Tuning,
		store:   store,
		clock:   clk,
		fate:    engine,
		log:     narrative.New(opts.Tuning.LogRingSize, sink, opts.Logger),
		gen:     opts.Generator,
		storage: opts.Storage,
		logger:  opts.Logger,
		tracer:  otel.Tracer(tracerName),
	}
	r.log.SetWorld(context.Background(), store.ID())
	return r, nil
}

// Fate exposes the rule engine for registration.
func (r *Runtime) Fate() *fate.Engine { return r.fate }

// Log exposes the narrative log, e.g. for live subscriptions.
func (r *Runtime) Log() *narrative.Log { return r.log }

func (r *Runtime) Tuning() tuning.Tuning { return r.tun }

func (r *Runtime) WorldID() string { return r.store.ID() }

func (r *Runtime) Epoch() int64 { return r.store.Epoch() }

// Swap replaces the active world with the one returned by next, which
// receives a copy of the current world. No tick runs while next executes.
// A nil world or an error from next leaves the active world in place.
func (r *Runtime) Swap(ctx context.Context, next func(current *world.World) (*world.World, error)) error {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()
	w, err := next(r.store.Snapshot())
	if err != nil || w == nil {
		return err
	}
	r.store.Replace(w)
	r.clock.Reset(w.TimeScale)
	r.log.SetWorld(ctx, w.ID)
	r.logger.Printf("active world: %s (epoch=%d)", w.ID, w.Epoch)
	return nil
}

// Persist writes the whole active world to storage.
func (r *Runtime) Persist(ctx context.Context) error {
	if r.storage == nil {
		return nil
	}
	return r.write(ctx, r.store.Snapshot())
}

func (r *Runtime) write(ctx context.Context, w *world.World) error {
	if err := r.storage.WriteWorld(ctx, w); err != nil {
		r.persistFailures.Add(1)
		r.logger.Printf("persist world=%s epoch=%d: %v", w.ID, w.Epoch, err)
		return protocol.External("persist world", err)
	}
	return nil
}

// persistBestEffort is used after API mutations; the mutation already happened.
func (r *Runtime) persistBestEffort(ctx context.Context) {
	_ = r.Persist(ctx)
}

// Start launches the background loop. Starting a running loop is a no-op.
func (r *Runtime) Start(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.runningLocked() {
		return nil
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	r.stop, r.done = stop, done
	r.clock.Reset(r.clock.TimeScale())
	go r.run(ctx, stop, done)
	r.logger.Printf("loop started (world=%s)", r.store.ID())
	return nil
}

// Stop signals the loop and waits for the in-flight tick. Stopping a stopped
// loop is a no-op.
func (r *Runtime) Stop() error {
	r.runMu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.runMu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	r.logger.Printf("loop stopped (world=%s)", r.store.ID())
	return nil
}

func (r *Runtime) Running() bool {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.runningLocked()
}

func (r *Runtime) runningLocked() bool {
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

func (r *Runtime) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.tun.PollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			n := r.clock.Advance()
			for i := 0; i < n; i++ {
				select {
				case <-ctx.Done():
					return
				case <-stop:
					return
				default:
				}
				r.tickMu.Lock()
				r.tick(ctx, false)
				r.tickMu.Unlock()
			}
		}
	}
}

// Step runs exactly one tick, whether or not the loop is running, and
// persists the result. The background loop persists on the snapshot cadence.
func (r *Runtime) Step(ctx context.Context) (TickReport, error) {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()
	r.clock.Step()
	return r.tick(ctx, true), nil
}

// SetTimeScale holds tickMu so a world swap cannot land between the clock
// change and the world update.
func (r *Runtime) SetTimeScale(ctx context.Context, v float64) error {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()
	if err := r.clock.SetTimeScale(v); err != nil {
		return err
	}
	_ = r.store.Update(func(w *world.World) error {
		w.TimeScale = v
		return nil
	})
	r.persistBestEffort(ctx)
	return nil
}

// Snapshot returns a point-in-time copy of the active world.
func (r *Runtime) Snapshot() *world.World { return r.store.Snapshot() }

func (r *Runtime) LogTail(ctx context.Context, n int, kind narrative.Kind) ([]narrative.Entry, error) {
	if n < 0 {
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "n must be >= 0, got %d", n)
	}
	if kind != "" && !kind.Valid() {
		return nil, protocol.Errorf(protocol.ErrInvalidArgument, "unknown log kind %q", kind)
	}
	if n == 0 {
		n = 50
	}
	return r.log.Tail(ctx, n, kind), nil
}

type Metrics struct {
	WorldID   string  `json:"world_id"`
	Epoch     int64   `json:"epoch"`
	TimeScale float64 `json:"time_scale"`
	Running   bool    `json:"running"`

	Ticks              int64 `json:"ticks"`
	EventsResolved     int64 `json:"events_resolved"`
	FateFired          int64 `json:"fate_fired"`
	Warnings           int64 `json:"warnings"`
	Dialogues          int64 `json:"dialogues"`
	GenerationFailures int64 `json:"generation_failures"`
	PersistFailures    int64 `json:"persist_failures"`

	Characters      int `json:"characters"`
	Memories        int `json:"memories"`
	ScheduledEvents int `json:"scheduled_events"`

	Log narrative.Stats `json:"log"`
}

func (r *Runtime) Metrics() Metrics {
	m := Metrics{
		Running:            r.Running(),
		Ticks:              r.ticks.Load(),
		EventsResolved:     r.eventsResolved.Load(),
		FateFired:          r.fateFired.Load(),
		Warnings:           r.warnings.Load(),
		Dialogues:          r.dialogues.Load(),
		GenerationFailures: r.genFailures.Load(),
		PersistFailures:    r.persistFailures.Load(),
		Log:                r.log.Stats(),
	}
	r.store.View(func(w *world.World) {
		m.WorldID = w.ID
		m.Epoch = w.Epoch
		m.TimeScale = w.TimeScale
		m.Characters = len(w.Characters)
		m.Memories = len(w.Memories)
		for _, ev := range w.Events {
			if ev.Status == world.StatusScheduled {
				m.ScheduledEvents++
			}
		}
	})
	return m
}

func isUnavailable(err error) bool { return errors.Is(err, gen.ErrUnavailable) }
