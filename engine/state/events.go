package state

import "github.com/nathoo/npcmind/types"

// PlayerEvent builds a PLAYER_EVENT. Strength is clamped by the reducer.
func PlayerEvent(kind types.PlayerKind, strength, ts float64) types.StateEvent {
	return types.StateEvent{
		Type:      types.EventPlayer,
		Timestamp: ts,
		Tag:       "player:" + string(kind),
		Kind:      string(kind),
		Amount:    strength,
	}
}

// FactAdd builds a FACT_ADD.
func FactAdd(text string, salience float64, tags []string, ts float64) types.StateEvent {
	return types.StateEvent{
		Type:      types.EventFactAdd,
		Timestamp: ts,
		Text:      text,
		Salience:  salience,
		Tags:      tags,
	}
}

// AffinityDelta builds an AFFINITY_DELTA.
func AffinityDelta(delta, ts float64) types.StateEvent {
	return types.StateEvent{Type: types.EventAffinityDelta, Timestamp: ts, Amount: delta}
}

// MoodSet builds a MOOD_SET.
func MoodSet(mood types.Mood, ts float64) types.StateEvent {
	return types.StateEvent{Type: types.EventMoodSet, Timestamp: ts, Mood: mood}
}

// RelationshipDelta builds a RELATIONSHIP_DELTA for one kind.
func RelationshipDelta(kind types.RelationshipKind, delta, ts float64) types.StateEvent {
	return types.StateEvent{
		Type:      types.EventRelationshipDelta,
		Timestamp: ts,
		Kind:      string(kind),
		Amount:    delta,
	}
}

// TimePassed builds a TIME_PASSED covering the given hours.
func TimePassed(hours, ts float64) types.StateEvent {
	return types.StateEvent{Type: types.EventTimePassed, Timestamp: ts, Amount: hours}
}

// FactReinforce builds a FACT_REINFORCE for facts containing fragment.
func FactReinforce(fragment string, boost, ts float64) types.StateEvent {
	return types.StateEvent{Type: types.EventFactReinforce, Timestamp: ts, Text: fragment, Amount: boost}
}

// ActionRecorded builds an ACTION_RECORDED. A nil record clears last_action.
func ActionRecorded(rec *types.ActionRecord, ts float64) types.StateEvent {
	return types.StateEvent{Type: types.EventActionRecorded, Timestamp: ts, Action: rec}
}
