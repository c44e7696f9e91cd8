// Package delta compares two snapshots of the same entity.
//
// Diff is pure: no clock, no I/O. It never assumes a counter only grows.
package delta

import (
	"fmt"

	"rrtracker/internal/entity"
)

type Direction int

const (
	Unchanged Direction = iota
	Increased
	Decreased
)

func (d Direction) String() string {
	switch d {
	case Increased:
		return "increased"
	case Decreased:
		return "decreased"
	default:
		return "unchanged"
	}
}

// Change is the comparison of one counter between two polls.
type Change struct {
	Field     entity.Field
	Previous  int64
	Current   int64
	Direction Direction
	Magnitude int64
}

// Signed returns current-previous.
func (c Change) Signed() int64 { return c.Current - c.Previous }

// ChangeSet holds one Change per field of the kind, in kind order.
type ChangeSet []Change

// Compare classifies a single counter pair.
func Compare(field entity.Field, previous, current int64) Change {
	c := Change{Field: field, Previous: previous, Current: current}
	switch {
	case current > previous:
		c.Direction = Increased
		c.Magnitude = current - previous
	case current < previous:
		c.Direction = Decreased
		c.Magnitude = previous - current
	}
	return c
}

// Diff compares prev and cur field by field in kind order.
//
// Both snapshots must belong to k. Anything else is a caller bug and panics.
func Diff(k entity.Kind, prev, cur entity.Snapshot) ChangeSet {
	if prev.Kind() != k.Name || cur.Kind() != k.Name {
		panic(fmt.Sprintf("delta: snapshot kinds %q/%q do not match %q", prev.Kind(), cur.Kind(), k.Name))
	}
	out := make(ChangeSet, 0, len(k.Fields))
	for _, f := range k.Fields {
		p, ok1 := prev.Get(f)
		c, ok2 := cur.Get(f)
		if !ok1 || !ok2 {
			panic(fmt.Sprintf("delta: field %q missing from %s snapshot", f, k.Name))
		}
		out = append(out, Compare(f, p, c))
	}
	return out
}

// Notable reports whether any change moved.
func (cs ChangeSet) Notable() bool {
	for _, c := range cs {
		if c.Direction != Unchanged {
			return true
		}
	}
	return false
}

// Only returns the changes for fields, preserving the set's order.
// A nil fields slice selects everything.
func (cs ChangeSet) Only(fields []entity.Field) ChangeSet {
	if fields == nil {
		return cs
	}
	want := make(map[entity.Field]struct{}, len(fields))
	for _, f := range fields {
		want[f] = struct{}{}
	}
	out := make(ChangeSet, 0, len(fields))
	for _, c := range cs {
		if _, ok := want[c.Field]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Has reports whether any change goes in direction d.
func (cs ChangeSet) Has(d Direction) bool {
	for _, c := range cs {
		if c.Direction == d {
			return true
		}
	}
	return false
}
