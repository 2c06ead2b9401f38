package payload

import (
	"github.com/guided-traffic/payload-gateway/internal/qs"
)

// slot holds every value recorded under one name. One value is a scalar,
// more than one is a list in arrival order.
type slot struct {
	values []any
}

func (s *slot) value() any {
	if len(s.values) == 1 {
		return s.values[0]
	}
	out := make([]any, len(s.values))
	copy(out, s.values)
	return out
}

// Accumulator collects multipart fields and parts by name. It is owned by a
// single coordinator and must not be touched after Finalize.
type Accumulator struct {
	order           []string
	slots           map[string]*slot
	pairs           []qs.Pair
	hasBracketNames bool
}

// NewAccumulator returns an empty accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{slots: make(map[string]*slot)}
}

// Set records value under name; a repeated name turns into a list
func (a *Accumulator) Set(name string, value any) {
	if qs.HasBrackets(name) {
		a.hasBracketNames = true
	}

	s, ok := a.slots[name]
	if !ok {
		s = &slot{}
		a.slots[name] = s
		a.order = append(a.order, name)
	}
	s.values = append(s.values, value)
	a.pairs = append(a.pairs, qs.Pair{Key: name, Value: value})
}

// HasBracketNames reports whether any recorded name used bracket notation
func (a *Accumulator) HasBracketNames() bool {
	return a.hasBracketNames
}

// Finalize returns the collected mapping, expanded into nested objects and
// arrays when bracket names were seen
func (a *Accumulator) Finalize() map[string]any {
	if a.hasBracketNames {
		return qs.Expand(a.pairs)
	}

	out := make(map[string]any, len(a.order))
	for _, name := range a.order {
		out[name] = a.slots[name].value()
	}
	return out
}
