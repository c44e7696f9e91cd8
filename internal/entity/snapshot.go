package entity

import "fmt"

// Snapshot is the set of counters observed for one entity at one poll.
// It is immutable once built.
type Snapshot struct {
	kind     string
	counters map[Field]int64
}

// NewSnapshot validates counters against the kind: every field must be
// present, non-negative, and no foreign field may appear.
func NewSnapshot(k Kind, counters map[Field]int64) (Snapshot, error) {
	if len(counters) != len(k.Fields) {
		return Snapshot{}, fmt.Errorf("%s snapshot: want %d counters, got %d", k.Name, len(k.Fields), len(counters))
	}
	cp := make(map[Field]int64, len(k.Fields))
	for _, f := range k.Fields {
		v, ok := counters[f]
		if !ok {
			return Snapshot{}, fmt.Errorf("%s snapshot: missing counter %q", k.Name, f)
		}
		if v < 0 {
			return Snapshot{}, fmt.Errorf("%s snapshot: negative counter %q=%d", k.Name, f, v)
		}
		cp[f] = v
	}
	return Snapshot{kind: k.Name, counters: cp}, nil
}

// MustSnapshot is NewSnapshot for literals in tests and fixtures.
func MustSnapshot(k Kind, counters map[Field]int64) Snapshot {
	s, err := NewSnapshot(k, counters)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Snapshot) Kind() string { return s.kind }

func (s Snapshot) IsZero() bool { return s.kind == "" }

// Get returns the counter for f and whether it exists.
func (s Snapshot) Get(f Field) (int64, bool) {
	v, ok := s.counters[f]
	return v, ok
}

// Meta is entity metadata captured once when a tracker is created.
type Meta struct {
	Name     string
	ImageURL string
}

// Credential is the bearer token used for upstream calls on kinds that need one.
type Credential string

func (c Credential) Empty() bool { return c == "" }
