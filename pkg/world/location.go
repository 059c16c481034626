package world

import "fmt"

// Location is a named spot in the village the agent can walk to.
type Location struct {
	Key  string `json:"key" yaml:"key"`
	Name string `json:"name" yaml:"name"`
	Icon string `json:"icon,omitempty" yaml:"icon"`
	Row  int    `json:"row" yaml:"row"`
	Col  int    `json:"col" yaml:"col"`
	Work bool   `json:"work,omitempty" yaml:"work"` // Arq may do work tasks here
}

// Position returns the location's grid coordinate.
func (l Location) Position() Position {
	return Position{Row: l.Row, Col: l.Col}
}

// Locations is an ordered, read-only location table.
type Locations struct {
	order []string
	byKey map[string]Location
}

// NewLocations builds a table, keeping the given order. Keys must be unique and
// non-empty.
func NewLocations(locs []Location) (*Locations, error) {
	t := &Locations{
		order: make([]string, 0, len(locs)),
		byKey: make(map[string]Location, len(locs)),
	}
	for _, l := range locs {
		if l.Key == "" {
			return nil, fmt.Errorf("location with empty key")
		}
		if _, dup := t.byKey[l.Key]; dup {
			return nil, fmt.Errorf("duplicate location key %q", l.Key)
		}
		t.order = append(t.order, l.Key)
		t.byKey[l.Key] = l
	}
	return t, nil
}

// Get looks up a location by key.
func (t *Locations) Get(key string) (Location, bool) {
	l, ok := t.byKey[key]
	return l, ok
}

// Keys returns location keys in table order.
func (t *Locations) Keys() []string {
	return append([]string(nil), t.order...)
}

// All returns every location in table order.
func (t *Locations) All() []Location {
	out := make([]Location, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.byKey[k])
	}
	return out
}

func (t *Locations) Len() int { return len(t.order) }

// At returns the location sitting exactly on pos.
func (t *Locations) At(pos Position) (Location, bool) {
	for _, k := range t.order {
		if l := t.byKey[k]; l.Position() == pos {
			return l, true
		}
	}
	return Location{}, false
}

// Nearest returns the location at pos, or failing that the closest one by
// Manhattan distance. Ties go to the earlier entry in the table.
func (t *Locations) Nearest(pos Position) (Location, bool) {
	if l, ok := t.At(pos); ok {
		return l, true
	}
	var (
		best  Location
		bestD = -1
	)
	for _, k := range t.order {
		l := t.byKey[k]
		if d := l.Position().Manhattan(pos); bestD < 0 || d < bestD {
			best, bestD = l, d
		}
	}
	return best, bestD >= 0
}
