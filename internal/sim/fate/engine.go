package fate

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync"

	"worldsim.ai/internal/protocol"
	"worldsim.ai/internal/sim/world"
)

// Trigger says when a rule is eligible. Tick and Probability rules are
// eligible every tick; a non-empty WorldTag additionally requires the tag
// to be set in env_state.
type Trigger struct {
	Tick        bool   `json:"tick,omitempty"`
	Probability bool   `json:"probability,omitempty"`
	WorldTag    string `json:"world_tag,omitempty"`
}

func (t Trigger) Eligible(w *world.World) bool {
	if t.WorldTag != "" && !w.HasTag(t.WorldTag) {
		return false
	}
	return true
}

// Rule proposes events. Weight is the firing probability once the
// condition holds: the rule fires when roll < weight, and always at >= 1.
type Rule interface {
	ID() string
	Trigger() Trigger
	Weight() float64
	Evaluate(w *world.World) bool
	Generate(w *world.World, epoch int64, rng *rand.Rand) ([]world.Event, error)
}

// RuleFunc builds a Rule from closures.
type RuleFunc struct {
	Name      string
	When      Trigger
	Chance    float64
	Condition func(w *world.World) bool
	Factory   func(w *world.World, epoch int64, rng *rand.Rand) ([]world.Event, error)
}

func (r RuleFunc) ID() string       { return r.Name }
func (r RuleFunc) Trigger() Trigger { return r.When }
func (r RuleFunc) Weight() float64  { return r.Chance }

func (r RuleFunc) Evaluate(w *world.World) bool {
	if r.Condition == nil {
		return true
	}
	return r.Condition(w)
}

func (r RuleFunc) Generate(w *world.World, epoch int64, rng *rand.Rand) ([]world.Event, error) {
	if r.Factory == nil {
		return nil, nil
	}
	return r.Factory(w, epoch, rng)
}

// Decision is one rule's outcome for one tick.
type Decision struct {
	RuleID     string         `json:"rule_id"`
	Condition  bool           `json:"condition"`
	Roll       float64        `json:"roll"`
	Fired      bool           `json:"fired"`
	EventIDs   []string       `json:"event_ids"`
	Error      string         `json:"error,omitempty"`
	Candidates []*world.Event `json:"-"`
}

type Engine struct {
	mu    sync.RWMutex
	seed  int64
	rules []Rule
}

func NewEngine(seed int64, rules ...Rule) (*Engine, error) {
	e := &Engine{seed: seed}
	for _, r := range rules {
		if err := e.Register(r); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Register appends r; evaluation follows registration order.
func (e *Engine) Register(r Rule) error {
	if r == nil || r.ID() == "" {
		return protocol.Errorf(protocol.ErrInvalidArgument, "rule id is required")
	}
	if w := r.Weight(); w < 0 {
		return protocol.Errorf(protocol.ErrInvalidArgument, "rule %s: weight must be >= 0", r.ID())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, have := range e.rules {
		if have.ID() == r.ID() {
			return protocol.Errorf(protocol.ErrAlreadyExists, "rule %s", r.ID())
		}
	}
	e.rules = append(e.rules, r)
	return nil
}

func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.rules {
		if r.ID() == id {
			e.rules = append(e.rules[:i:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Rule(nil), e.rules...)
}

// Evaluate runs every eligible rule against w at w.Epoch. Candidates are
// returned on each decision for the caller to admit; a failing rule only
// marks its own decision.
func (e *Engine) Evaluate(w *world.World) []Decision {
	rules := e.Rules()
	epoch := w.Epoch
	out := make([]Decision, 0, len(rules))
	for _, r := range rules {
		if !r.Trigger().Eligible(w) {
			continue
		}
		out = append(out, e.evaluateOne(r, w, epoch))
	}
	return out
}

func (e *Engine) evaluateOne(r Rule, w *world.World, epoch int64) (d Decision) {
	d = Decision{RuleID: r.ID(), Roll: -1, EventIDs: []string{}}
	defer func() {
		if p := recover(); p != nil {
			d.Fired = false
			d.Candidates = nil
			d.Error = fmt.Sprintf("panic: %v", p)
		}
	}()

	d.Condition = r.Evaluate(w)
	if !d.Condition {
		return d
	}
	rng := rand.New(rand.NewPCG(uint64(e.seed), seedFor(epoch, r.ID())))
	d.Roll = rng.Float64()
	if wt := r.Weight(); wt < 1 && d.Roll >= wt {
		return d
	}
	d.Fired = true

	evs, err := r.Generate(w, epoch, rng)
	if err != nil {
		d.Fired = false
		d.Error = err.Error()
		return d
	}
	for i := range evs {
		ev := evs[i]
		ev.Origin = world.OriginFate
		ev.CreatedAt = epoch
		if ev.ScheduledFor < epoch {
			ev.ScheduledFor = epoch
		}
		if ev.Status == "" {
			ev.Status = world.StatusScheduled
		}
		if ev.ID == "" {
			ev.ID = fmt.Sprintf("fate-%s-%d-%d", r.ID(), epoch, i)
		}
		d.Candidates = append(d.Candidates, &ev)
	}
	return d
}

func seedFor(epoch int64, ruleID string) uint64 {
	h := fnv.New64a()
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(uint64(epoch) >> (8 * i))
	}
	_, _ = h.Write(b[:])
	_, _ = h.Write([]byte(ruleID))
	return h.Sum64()
}
