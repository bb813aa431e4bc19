package world

import (
	"math"
	"strings"

	"worldsim.ai/internal/protocol"
)

type Namespace string

const (
	NSRel   Namespace = "rel"
	NSState Namespace = "state"
	NSAttr  Namespace = "attr"
	NSTrait Namespace = "trait"
)

// Selector is a parsed effect field such as "rel:c2" or "state:mood".
type Selector struct {
	NS  Namespace
	Key string
}

func (s Selector) String() string { return string(s.NS) + ":" + s.Key }

func ParseSelector(field string) (Selector, error) {
	ns, key, ok := strings.Cut(field, ":")
	if !ok || key == "" {
		return Selector{}, protocol.Errorf(protocol.ErrInvalidArgument, "bad field selector %q", field)
	}
	switch Namespace(ns) {
	case NSRel, NSState, NSAttr, NSTrait:
		return Selector{NS: Namespace(ns), Key: key}, nil
	}
	return Selector{}, protocol.Errorf(protocol.ErrInvalidArgument, "unknown selector namespace %q", ns)
}

// Bounds returns the clamp range for the namespace; attr is unbounded.
func (s Selector) Bounds() (lo, hi float64) {
	switch s.NS {
	case NSRel:
		return -1, 1
	case NSState, NSTrait:
		return 0, 1
	}
	return math.Inf(-1), math.Inf(1)
}

func (s Selector) Clamp(v float64) float64 {
	lo, hi := s.Bounds()
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Get reads the current value; missing keys read as 0.
func (s Selector) Get(c *Character) float64 {
	switch s.NS {
	case NSRel:
		return c.Relationships[s.Key]
	case NSState:
		return c.States[s.Key]
	case NSAttr:
		return c.Attributes[s.Key]
	case NSTrait:
		return c.Traits[s.Key]
	}
	return 0
}

func (s Selector) Put(c *Character, v float64) {
	v = s.Clamp(v)
	switch s.NS {
	case NSRel:
		if c.Relationships == nil {
			c.Relationships = map[string]float64{}
		}
		c.Relationships[s.Key] = v
	case NSState:
		if c.States == nil {
			c.States = Axes{}
		}
		c.States[s.Key] = v
	case NSAttr:
		if c.Attributes == nil {
			c.Attributes = Axes{}
		}
		c.Attributes[s.Key] = v
	case NSTrait:
		if c.Traits == nil {
			c.Traits = Axes{}
		}
		c.Traits[s.Key] = v
	}
}
