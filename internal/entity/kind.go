// Package entity describes the remote objects rrtracker observes: their kinds,
// the counters each kind exposes and how those counters are grouped into
// notifications.
package entity

import (
	"sort"
	"strings"
)

// Field names one counter of an entity kind.
type Field string

const (
	Subscribers Field = "subscribers"
	Visits      Field = "visits"
	Visitors    Field = "visitors"
	Cheers      Field = "cheers"
	Favorites   Field = "favorites"
)

// Label is the human-facing name of the field ("Visits").
func (f Field) Label() string {
	s := string(f)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Resource tells the fetcher which upstream object backs a kind.
type Resource string

const (
	ResourceAccount Resource = "account"
	ResourceRoom    Resource = "room"
)

// Group is one independently notified set of fields.
type Group struct {
	// Label is the plural noun used in titles ("subscribers", "room stats").
	Label  string
	Fields []Field
}

// Kind is the descriptor that parameterizes a tracker.
type Kind struct {
	Name     string
	Resource Resource
	Fields   []Field
	// Groups are notified in order. A kind with one group covering every field
	// sends one combined notification per cycle.
	Groups []Group

	NeedsCredential bool

	// Footer is the label in front of the entity name ("Account", "Room").
	Footer string
	// Sigil decorates the display name ("@" for accounts, "^" for rooms).
	Sigil string
	Color int
}

// DecoratedName returns the entity name with the kind's sigil.
func (k Kind) DecoratedName(name string) string { return k.Sigil + name }

// HasField reports whether f is one of the kind's counters.
func (k Kind) HasField(f Field) bool {
	for _, kf := range k.Fields {
		if kf == f {
			return true
		}
	}
	return false
}

const accent = 0xE67E22

var (
	Account = Kind{
		Name:            "account",
		Resource:        ResourceAccount,
		Fields:          []Field{Subscribers},
		Groups:          []Group{{Label: "subscribers", Fields: []Field{Subscribers}}},
		NeedsCredential: true,
		Footer:          "Account",
		Sigil:           "@",
		Color:           accent,
	}

	// Room notifies visits and engagement separately.
	Room = Kind{
		Name:     "room",
		Resource: ResourceRoom,
		Fields:   []Field{Visits, Visitors, Cheers, Favorites},
		Groups: []Group{
			{Label: "visits", Fields: []Field{Visits, Visitors}},
			{Label: "room stats", Fields: []Field{Cheers, Favorites}},
		},
		Footer: "Room",
		Sigil:  "^",
		Color:  accent,
	}

	// RoomStats sends every room counter in one combined notification.
	RoomStats = Kind{
		Name:     "room_stats",
		Resource: ResourceRoom,
		Fields:   []Field{Visits, Visitors, Cheers, Favorites},
		Groups: []Group{
			{Label: "room stats", Fields: []Field{Visits, Visitors, Cheers, Favorites}},
		},
		Footer: "Room",
		Sigil:  "^",
		Color:  accent,
	}
)

var kinds = map[string]Kind{
	Account.Name:   Account,
	Room.Name:      Room,
	RoomStats.Name: RoomStats,
}

// Lookup resolves a kind by name (case-insensitive).
func Lookup(name string) (Kind, bool) {
	k, ok := kinds[strings.ToLower(strings.TrimSpace(name))]
	return k, ok
}

// KindNames lists the registered kind names, sorted.
func KindNames() []string {
	out := make([]string, 0, len(kinds))
	for n := range kinds {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
