package session

import "math"

// Extrema is a running (min, max) pair. It starts empty and only widens.
type Extrema struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Set bool    `json:"set"`
}

// Observe widens the pair to include v.
func (e *Extrema) Observe(v float64) {
	if !e.Set {
		e.Min, e.Max, e.Set = v, v, true
		return
	}
	e.Min = math.Min(e.Min, v)
	e.Max = math.Max(e.Max, v)
}

// Spread returns Max-Min, or 0 for an empty pair.
func (e Extrema) Spread() float64 {
	if !e.Set {
		return 0
	}
	return e.Max - e.Min
}

// Range is the visible span of one chart axis.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// padded returns [max(0, min-margin), max+margin].
func padded(e Extrema, margin float64) Range {
	return Range{
		Min: math.Max(0, e.Min-margin),
		Max: e.Max + margin,
	}
}
