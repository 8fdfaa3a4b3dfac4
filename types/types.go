// Package types defines the shared data structures for the npcmind engine.
// This package contains only type definitions and constants, no logic.
package types

// Mood is an NPC's current emotional state, drawn from a fixed vocabulary.
type Mood string

const (
	MoodNeutral      Mood = "neutral"
	MoodPleased      Mood = "pleased"
	MoodWarm         Mood = "warm"
	MoodGrateful     Mood = "grateful"
	MoodAngry        Mood = "angry"
	MoodOffended     Mood = "offended"
	MoodHostile      Mood = "hostile"
	MoodSuspicious   Mood = "suspicious"
	MoodAnxious      Mood = "anxious"
	MoodCalm         Mood = "calm"
	MoodFearful      Mood = "fearful"
	MoodSecure       Mood = "secure"
	MoodDistant      Mood = "distant"
	MoodProud        Mood = "proud"
	MoodDisappointed Mood = "disappointed"
	MoodOutraged     Mood = "outraged"
	MoodSatisfied    Mood = "satisfied"
)

// Moods lists the mood vocabulary in a fixed order (used for one-hot features).
var Moods = []Mood{
	MoodNeutral, MoodPleased, MoodWarm, MoodGrateful, MoodAngry, MoodOffended,
	MoodHostile, MoodSuspicious, MoodAnxious, MoodCalm, MoodFearful, MoodSecure,
	MoodDistant, MoodProud, MoodDisappointed, MoodOutraged, MoodSatisfied,
}

// PlayerKind is the kind of a direct player interaction.
type PlayerKind string

const (
	PlayerGift     PlayerKind = "gift"
	PlayerPraise   PlayerKind = "praise"
	PlayerHelp     PlayerKind = "help"
	PlayerTalk     PlayerKind = "talk"
	PlayerInsult   PlayerKind = "insult"
	PlayerThreaten PlayerKind = "threaten"
	PlayerPunch    PlayerKind = "punch"
	PlayerTheft    PlayerKind = "theft"
)

// RelationshipKind names one relationship dimension.
type RelationshipKind string

const (
	RelTrust      RelationshipKind = "trust"
	RelFear       RelationshipKind = "fear"
	RelAttraction RelationshipKind = "attraction"
	RelResentment RelationshipKind = "resentment"
	RelObligation RelationshipKind = "obligation"
)

// EventType enumerates the state events the reducer accepts.
// Values index the reducer's dispatch table; append only.
type EventType int

const (
	EventUnknown EventType = iota
	EventPlayer
	EventFactAdd
	EventAffinityDelta
	EventMoodSet
	EventRelationshipDelta
	EventTimePassed
	EventFactReinforce
	EventActionRecorded

	NumEventTypes
)

// EventTypeNames maps each EventType to its stable wire name.
var EventTypeNames = [NumEventTypes]string{
	EventUnknown:           "unknown",
	EventPlayer:            "player_event",
	EventFactAdd:           "fact_add",
	EventAffinityDelta:     "affinity_delta",
	EventMoodSet:           "mood_set",
	EventRelationshipDelta: "relationship_delta",
	EventTimePassed:        "time_passed",
	EventFactReinforce:     "fact_reinforce",
	EventActionRecorded:    "action_recorded",
}

// StateEvent is an immutable command consumed by the reducer. It is the unit
// of replay. Which fields are meaningful depends on Type:
//
//	EventPlayer            Kind (PlayerKind), Amount (strength 0..1)
//	EventFactAdd           Text, Salience, Tags
//	EventAffinityDelta     Amount (delta)
//	EventMoodSet           Mood
//	EventRelationshipDelta Kind (RelationshipKind), Amount (delta)
//	EventTimePassed        Amount (hours)
//	EventFactReinforce     Text (fragment), Amount (boost)
//	EventActionRecorded    Action (nil clears last_action)
type StateEvent struct {
	Type      EventType     `json:"type"`
	Timestamp float64       `json:"ts"`
	Tag       string        `json:"tag,omitempty"` // pushed onto RecentTags when set
	Kind      string        `json:"kind,omitempty"`
	Amount    float64       `json:"amount,omitempty"`
	Mood      Mood          `json:"mood,omitempty"`
	Text      string        `json:"text,omitempty"`
	Salience  float64       `json:"salience,omitempty"`
	Tags      []string      `json:"tags,omitempty"`
	Action    *ActionRecord `json:"action,omitempty"`
}

// Fact is an immutable memory entry owned by an NPC's state.
type Fact struct {
	Text      string   `json:"text"`
	Salience  float64  `json:"salience"`
	Tags      []string `json:"tags"`
	CreatedAt float64  `json:"created_at"`
}

// Relationship holds the continuous relationship dimensions, each in [0, 1].
type Relationship struct {
	Trust      float64 `json:"trust"`
	Fear       float64 `json:"fear"`
	Attraction float64 `json:"attraction"`
	Resentment float64 `json:"resentment"`
	Obligation float64 `json:"obligation"`
}

// ActionRecord is the decision an NPC made on its most recent turn.
// Outcome feedback is attributed to it.
type ActionRecord struct {
	Action           ActionID `json:"action"`
	Style            Style    `json:"style"`
	ContextKey       string   `json:"context_key"`
	AffinityAtChoice float64  `json:"affinity_at_choice"`
	Turn             int      `json:"turn"`
}

// NPCState is the complete state of one NPC. It is owned by that NPC's store
// and only ever replaced by the reducer.
type NPCState struct {
	NPCID        string        `json:"npc_id"`
	Affinity     float64       `json:"affinity"`
	Mood         Mood          `json:"mood"`
	Facts        []Fact        `json:"facts"`
	RecentTags   []string      `json:"recent_tags"` // most recent first
	LastAction   *ActionRecord `json:"last_action,omitempty"`
	Relationship Relationship  `json:"relationship"`
	Turn         int           `json:"turn"`
	Seq          uint64        `json:"seq"`
}

// ActionID identifies a catalogue action.
type ActionID string

// ActionClass groups actions for affinity gating.
type ActionClass string

const (
	ClassFriendly ActionClass = "friendly"
	ClassNeutral  ActionClass = "neutral"
	ClassHostile  ActionClass = "hostile"
)

// Style is the delivery hint handed to the realization layer.
type Style string

const (
	StyleWarm    Style = "warm"
	StyleNeutral Style = "neutral"
	StyleFirm    Style = "firm"
	StyleHostile Style = "hostile"
)

// Action is one member of the fixed action catalogue.
type Action struct {
	ID        ActionID
	Class     ActionClass
	Style     Style
	BaseScore float64
	Directive string
}

// Decision is the output of one policy call.
type Decision struct {
	ContextKey string
	Action     Action
	Style      Style
	Score      float64
	Explored   bool
}

// TurnResult is what the core hands to the realization layer per turn.
type TurnResult struct {
	NPCID      string
	ContextKey string
	Action     ActionID
	Style      Style
	Directive  string
	Explored   bool
	Reward     float64 // reward applied to the previous action, 0 if none
	State      NPCState
}

// EnvironmentEvent is a validated boundary event.
type EnvironmentEvent struct {
	Type         string         `json:"event_type"`
	NPCID        string         `json:"npc_id"`
	PlayerID     string         `json:"player_id"`
	Magnitude    float64        `json:"magnitude"`
	HasMagnitude bool           `json:"-"`
	Payload      map[string]any `json:"payload"`
	Timestamp    float64        `json:"timestamp"`
	Version      int            `json:"version"`
}

// ConsequenceType is the semantic category a raw event maps to.
type ConsequenceType string

const (
	ConsequenceStress      ConsequenceType = "stress"
	ConsequenceRelief      ConsequenceType = "relief"
	ConsequenceThreat      ConsequenceType = "threat"
	ConsequenceSafety      ConsequenceType = "safety"
	ConsequenceBonding     ConsequenceType = "bonding"
	ConsequenceAlienation  ConsequenceType = "alienation"
	ConsequenceAchievement ConsequenceType = "achievement"
	ConsequenceFailure     ConsequenceType = "failure"
	ConsequenceInjustice   ConsequenceType = "injustice"
	ConsequenceJustice     ConsequenceType = "justice"
)

// Signal is the intermediate form of one consequence of an event.
type Signal struct {
	Consequence ConsequenceType
	Intensity   float64 // 0..1
	MoodImpact  Mood    // optional
}

// NormalizedSignal is a signal after dampening and capping.
type NormalizedSignal struct {
	Consequence       ConsequenceType
	Intensity         float64 // damped
	AffinityDelta     float64 // capped, before combination
	Weight            float64 // diminishing-returns factor for its batch position
	Mood              Mood    // empty unless Intensity exceeds the mood threshold
	RelationshipKind  RelationshipKind
	RelationshipDelta float64
}

// NPCDef is an NPC definition loaded from the roster.
type NPCDef struct {
	ID          string
	Name        string
	Description string
	Affinity    float64
	Mood        Mood
	Seed        int64
	Exploration float64
	Trust       float64
	Facts       []string
}
