package signal

import (
	"slices"

	"github.com/nathoo/npcmind/types"
)

type mapping struct {
	consequence types.ConsequenceType
	base        float64
}

// consequences is the fixed event type -> signal table. Order within an
// entry is the order signals are combined in.
var consequences = map[string][]mapping{
	"dialogue_started":    {{types.ConsequenceBonding, 0.3}},
	"dialogue_ended":      {{types.ConsequenceRelief, 0.2}},
	"persuasion_success":  {{types.ConsequenceBonding, 0.5}},
	"persuasion_failure":  {{types.ConsequenceAlienation, 0.4}},
	"player_sentiment":    nil, // resolved from payload.sentiment
	"player_hostility":    {{types.ConsequenceThreat, 0.7}, {types.ConsequenceAlienation, 0.6}},
	"combat_started":      {{types.ConsequenceStress, 0.6}, {types.ConsequenceThreat, 0.7}},
	"combat_ended":        {{types.ConsequenceRelief, 0.5}},
	"combat_damage_taken": {{types.ConsequenceStress, 0.7}, {types.ConsequenceThreat, 0.8}},
	"combat_damage_dealt": {{types.ConsequenceAchievement, 0.4}},
	"combat_ally_died":    {{types.ConsequenceStress, 0.9}, {types.ConsequenceFailure, 0.6}},
	"combat_enemy_died":   {{types.ConsequenceRelief, 0.6}, {types.ConsequenceSafety, 0.5}},
	"quest_started":       {{types.ConsequenceBonding, 0.3}, {types.ConsequenceAchievement, 0.2}},
	"quest_completed":     {{types.ConsequenceAchievement, 0.8}, {types.ConsequenceBonding, 0.7}},
	"quest_failed":        {{types.ConsequenceFailure, 0.7}, {types.ConsequenceAlienation, 0.5}},
	"proximity_entered":   {{types.ConsequenceBonding, 0.1}},
	"proximity_exited":    {{types.ConsequenceRelief, 0.1}},
	"gift":                {{types.ConsequenceBonding, 0.85}},
	"theft":               {{types.ConsequenceInjustice, 0.9}, {types.ConsequenceAlienation, 0.8}},
	"assist":              {{types.ConsequenceBonding, 0.6}, {types.ConsequenceSafety, 0.3}},
	"crime_witnessed":     {{types.ConsequenceInjustice, 0.7}, {types.ConsequenceAlienation, 0.6}},
	"good_deed_witnessed": {{types.ConsequenceJustice, 0.6}, {types.ConsequenceBonding, 0.5}},
	"time_passed":         {{types.ConsequenceRelief, 0.1}},
	"location_changed":    {},
}

// consequenceMood is the mood each consequence pushes toward.
var consequenceMood = map[types.ConsequenceType]types.Mood{
	types.ConsequenceStress:      types.MoodAnxious,
	types.ConsequenceRelief:      types.MoodCalm,
	types.ConsequenceThreat:      types.MoodFearful,
	types.ConsequenceSafety:      types.MoodSecure,
	types.ConsequenceBonding:     types.MoodWarm,
	types.ConsequenceAlienation:  types.MoodDistant,
	types.ConsequenceAchievement: types.MoodProud,
	types.ConsequenceFailure:     types.MoodDisappointed,
	types.ConsequenceInjustice:   types.MoodOutraged,
	types.ConsequenceJustice:     types.MoodSatisfied,
}

// Known reports whether typ is in the closed boundary vocabulary.
func Known(typ string) bool {
	_, ok := consequences[typ]
	return ok
}

// EventTypes returns the boundary vocabulary in sorted order.
func EventTypes() []string {
	out := make([]string, 0, len(consequences))
	for k := range consequences {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Mapper converts a validated event into consequence signals. It is a pure
// table lookup.
type Mapper struct{}

// Map returns the signals for ev. Intensity is base × magnitude, with an
// absent magnitude treated as 1.
func (Mapper) Map(ev types.EnvironmentEvent) []types.Signal {
	magnitude := 1.0
	if ev.HasMagnitude {
		magnitude = ev.Magnitude
	}

	table := consequences[ev.Type]
	if ev.Type == "player_sentiment" {
		table = sentimentMapping(ev)
	}

	out := make([]types.Signal, 0, len(table))
	for _, m := range table {
		out = append(out, types.Signal{
			Consequence: m.consequence,
			Intensity:   clamp01(m.base * magnitude),
			MoodImpact:  consequenceMood[m.consequence],
		})
	}
	return out
}

// sentimentMapping picks bonding or alienation from the payload's sign and
// scales the base by its size.
func sentimentMapping(ev types.EnvironmentEvent) []mapping {
	s, _ := number(ev.Payload["sentiment"])
	switch {
	case s > 0:
		return []mapping{{types.ConsequenceBonding, 0.5 * s}}
	case s < 0:
		return []mapping{{types.ConsequenceAlienation, 0.5 * -s}}
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
