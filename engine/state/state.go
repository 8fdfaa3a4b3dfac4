// Package state owns NPC state: the reducer that is its only writer, the
// per-NPC store that serializes dispatches, and the roster definitions.
package state

import (
	"slices"

	"github.com/nathoo/npcmind/types"
)

// Defs holds the immutable NPC roster loaded from Lua.
type Defs struct {
	Settings Settings
	NPCs     map[string]types.NPCDef
	Order    []string // definition order
}

// Settings are roster-wide overrides loaded with the NPCs.
type Settings struct {
	Title       string
	MaxFacts    int
	MaxTags     int
	Exploration float64
}

// Limits bound every mutable sequence and scalar in an NPCState.
type Limits struct {
	AffinityMin   float64
	AffinityMax   float64
	MaxFacts      int
	MaxRecentTags int
	MaxFactChars  int
	FactDecayRate float64 // salience lost per hour
	FactMinimum   float64 // facts below this salience are dropped
}

// DefaultLimits returns the limits used when nothing overrides them.
func DefaultLimits() Limits {
	return Limits{
		AffinityMin:   -1.0,
		AffinityMax:   1.0,
		MaxFacts:      64,
		MaxRecentTags: 8,
		MaxFactChars:  2000,
		FactDecayRate: 0.05,
		FactMinimum:   0.1,
	}
}

// NewState creates the initial state for an NPC definition.
func NewState(def types.NPCDef, limits Limits) types.NPCState {
	mood := def.Mood
	if mood == "" {
		mood = types.MoodNeutral
	}
	trust := def.Trust
	if trust == 0 {
		trust = 0.5
	}
	s := types.NPCState{
		NPCID:      def.ID,
		Affinity:   clamp(def.Affinity, limits.AffinityMin, limits.AffinityMax),
		Mood:       mood,
		Facts:      []types.Fact{},
		RecentTags: []string{},
		Relationship: types.Relationship{
			Trust: clamp01(trust),
		},
	}
	for _, text := range def.Facts {
		s.Facts = append(s.Facts, types.Fact{Text: text, Salience: 1.0, Tags: []string{"lore"}})
	}
	s.Facts = evictFacts(s.Facts, limits.MaxFacts)
	return s
}

// evictFacts drops facts until at most limit remain, lowest salience first
// and the oldest of equally salient facts before newer ones. Facts are kept
// in insertion order, so the first minimum is the oldest.
func evictFacts(facts []types.Fact, limit int) []types.Fact {
	limit = max(limit, 0)
	if len(facts) <= limit {
		return facts
	}
	out := slices.Clone(facts)
	for len(out) > limit {
		low := 0
		for i := 1; i < len(out); i++ {
			if out[i].Salience < out[low].Salience {
				low = i
			}
		}
		out = slices.Delete(out, low, low+1)
	}
	return out
}

// Clone returns a deep copy so callers never share slices with the store.
func Clone(s types.NPCState) types.NPCState {
	out := s
	out.Facts = make([]types.Fact, len(s.Facts))
	for i, f := range s.Facts {
		f.Tags = slices.Clone(f.Tags)
		out.Facts[i] = f
	}
	out.RecentTags = slices.Clone(s.RecentTags)
	if out.RecentTags == nil {
		out.RecentTags = []string{}
	}
	if s.LastAction != nil {
		la := *s.LastAction
		out.LastAction = &la
	}
	return out
}

// ValidMood reports whether m is in the mood vocabulary.
func ValidMood(m types.Mood) bool {
	return slices.Contains(types.Moods, m)
}

// ParseEventType maps a wire name back to its EventType.
func ParseEventType(name string) (types.EventType, bool) {
	for i, n := range types.EventTypeNames {
		if n == name && types.EventType(i) != types.EventUnknown {
			return types.EventType(i), true
		}
	}
	return types.EventUnknown, false
}

// EventTypeName returns the wire name of t, or "unknown".
func EventTypeName(t types.EventType) string {
	if t <= types.EventUnknown || t >= types.NumEventTypes {
		return "unknown"
	}
	return types.EventTypeNames[t]
}

// FactsTagged returns facts carrying the given tag, most salient first.
func FactsTagged(s types.NPCState, tag string) []types.Fact {
	var out []types.Fact
	for _, f := range s.Facts {
		if slices.Contains(f.Tags, tag) {
			out = append(out, f)
		}
	}
	slices.SortStableFunc(out, func(a, b types.Fact) int {
		switch {
		case a.Salience > b.Salience:
			return -1
		case a.Salience < b.Salience:
			return 1
		}
		return 0
	})
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}
