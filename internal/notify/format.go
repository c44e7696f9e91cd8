package notify

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"rrtracker/internal/delta"
	"rrtracker/internal/entity"
)

const allLabel = "stats"

// Format builds the message for group g of a change set.
//
// The zero Group selects every change. Title follows the group's direction:
// only gains -> "Gained <label>!", only losses -> "Lost <label>!", both ->
// "<Label> updated!".
func Format(k entity.Kind, meta entity.Meta, changes delta.ChangeSet, g entity.Group) Message {
	label := g.Label
	if label == "" {
		label = allLabel
	}
	selected := changes.Only(g.Fields)

	msg := Message{
		Title:        title(label, selected),
		Fields:       make([]Field, 0, len(selected)),
		Color:        k.Color,
		ThumbnailURL: meta.ImageURL,
		Footer:       fmt.Sprintf("%s: %s", k.Footer, k.DecoratedName(meta.Name)),
	}
	for _, c := range selected {
		msg.Fields = append(msg.Fields, Field{
			Label:    c.Field.Label(),
			Previous: humanize.Comma(c.Previous),
			Current:  humanize.Comma(c.Current),
			Delta:    signedDelta(c),
			Inline:   true,
		})
	}
	return msg
}

func title(label string, cs delta.ChangeSet) string {
	gained, lost := cs.Has(delta.Increased), cs.Has(delta.Decreased)
	switch {
	case gained && lost:
		return capitalize(label) + " updated!"
	case gained:
		return "Gained " + label + "!"
	case lost:
		return "Lost " + label + "!"
	default:
		return "No new " + label
	}
}

func signedDelta(c delta.Change) string {
	switch c.Direction {
	case delta.Increased:
		return "+" + humanize.Comma(c.Magnitude)
	case delta.Decreased:
		return "-" + humanize.Comma(c.Magnitude)
	default:
		return ""
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
