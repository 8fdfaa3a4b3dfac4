// Package decision selects an NPC's next action from the fixed catalogue.
// It only reads state; it never mutates it.
package decision

import (
	"slices"
	"strings"

	"github.com/nathoo/npcmind/types"
)

// maxKeyTags is how many recent tags contribute to a context key.
const maxKeyTags = 2

// Band buckets affinity into one of five coarse levels.
func Band(affinity float64) string {
	switch {
	case affinity >= 0.6:
		return "++"
	case affinity >= 0.2:
		return "+"
	case affinity >= -0.2:
		return "0"
	case affinity >= -0.6:
		return "-"
	default:
		return "--"
	}
}

// Bands lists every band in ascending order.
var Bands = []string{"--", "-", "0", "+", "++"}

// BuildContextKey summarizes state as "aff:<band>|mood:<mood>|recent:<tags>".
// Tags are most recent first; the first two distinct ones are kept and
// sorted so the key does not depend on their arrival order. The recent part
// is omitted when there are no tags.
func BuildContextKey(affinity float64, mood types.Mood, tags []string) string {
	var b strings.Builder
	b.WriteString("aff:")
	b.WriteString(Band(affinity))
	b.WriteString("|mood:")
	if mood == "" {
		mood = types.MoodNeutral
	}
	b.WriteString(strings.ToLower(string(mood)))

	if recent := RecentTags(tags); len(recent) > 0 {
		b.WriteString("|recent:")
		b.WriteString(strings.Join(recent, ","))
	}
	return b.String()
}

// RecentTags returns the tags that enter a context key, sorted.
func RecentTags(tags []string) []string {
	out := make([]string, 0, maxKeyTags)
	for _, t := range tags {
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
		if len(out) == maxKeyTags {
			break
		}
	}
	slices.Sort(out)
	return out
}

// KeyForState builds the context key for a state snapshot.
func KeyForState(s types.NPCState) string {
	return BuildContextKey(s.Affinity, s.Mood, s.RecentTags)
}
