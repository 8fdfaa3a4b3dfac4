package state

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/nathoo/npcmind/types"
)

// ErrUnknownEvent is returned for event types outside the dispatch table.
// It is a caller error, not a reducer fault.
var ErrUnknownEvent = errors.New("unknown event type")

// ReducerError reports an event that is internally inconsistent. The event
// is dropped and the state is left untouched.
type ReducerError struct {
	Event  types.EventType
	Reason string
}

func (e *ReducerError) Error() string {
	return fmt.Sprintf("reduce %s: %s", EventTypeName(e.Event), e.Reason)
}

// handler mutates a private copy of the state and returns derived facts.
type handler func(r *Reducer, s *types.NPCState, e types.StateEvent) ([]types.Fact, error)

// Reducer is the only writer of NPC state. Reduce is pure: it never reads
// the clock or any shared mutable data.
type Reducer struct {
	limits Limits
	table  [types.NumEventTypes]handler
}

// NewReducer builds a reducer with its fixed dispatch table.
func NewReducer(limits Limits) *Reducer {
	r := &Reducer{limits: limits}
	r.table = [types.NumEventTypes]handler{
		types.EventPlayer:            reducePlayer,
		types.EventFactAdd:           reduceFactAdd,
		types.EventAffinityDelta:     reduceAffinityDelta,
		types.EventMoodSet:           reduceMoodSet,
		types.EventRelationshipDelta: reduceRelationshipDelta,
		types.EventTimePassed:        reduceTimePassed,
		types.EventFactReinforce:     reduceFactReinforce,
		types.EventActionRecorded:    reduceActionRecorded,
	}
	return r
}

// Limits returns the bounds this reducer enforces.
func (r *Reducer) Limits() Limits {
	return r.limits
}

// Reduce applies one event and returns the next state and any derived facts.
// On error the input state is returned unchanged.
func (r *Reducer) Reduce(s types.NPCState, e types.StateEvent) (types.NPCState, []types.Fact, error) {
	if e.Type <= types.EventUnknown || e.Type >= types.NumEventTypes || r.table[e.Type] == nil {
		return s, nil, fmt.Errorf("%w: %d", ErrUnknownEvent, e.Type)
	}
	next := Clone(s)
	facts, err := r.table[e.Type](r, &next, e)
	if err != nil {
		return s, nil, err
	}
	if e.Tag != "" {
		next.RecentTags = pushTag(next.RecentTags, e.Tag, r.limits.MaxRecentTags)
	}
	r.enforce(&next)
	next.Seq++
	return next, facts, nil
}

// Replay folds events over initial and returns the final state.
func (r *Reducer) Replay(initial types.NPCState, events []types.StateEvent) (types.NPCState, error) {
	s := Clone(initial)
	for i, e := range events {
		next, _, err := r.Reduce(s, e)
		if err != nil {
			return s, fmt.Errorf("replaying event %d: %w", i, err)
		}
		s = next
	}
	return s, nil
}

// enforce re-clamps every bounded field and trims capped sequences.
func (r *Reducer) enforce(s *types.NPCState) {
	s.Affinity = clamp(s.Affinity, r.limits.AffinityMin, r.limits.AffinityMax)
	for i := range s.Facts {
		s.Facts[i].Salience = clamp01(s.Facts[i].Salience)
	}
	s.Facts = evictFacts(s.Facts, r.limits.MaxFacts)
	rel := &s.Relationship
	rel.Trust = clamp01(rel.Trust)
	rel.Fear = clamp01(rel.Fear)
	rel.Attraction = clamp01(rel.Attraction)
	rel.Resentment = clamp01(rel.Resentment)
	rel.Obligation = clamp01(rel.Obligation)
}

func pushTag(tags []string, tag string, max int) []string {
	out := make([]string, 0, max)
	out = append(out, tag)
	for _, t := range tags {
		if len(out) >= max {
			break
		}
		out = append(out, t)
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Normalize re-applies every bound to a state that did not come from this
// reducer, such as one read from a save file. Values that cannot be
// clamped into range are rejected.
func (r *Reducer) Normalize(s types.NPCState) (types.NPCState, error) {
	out := Clone(s)
	if out.Mood == "" {
		out.Mood = types.MoodNeutral
	}
	if !ValidMood(out.Mood) {
		return s, fmt.Errorf("npc %s: unknown mood %q", s.NPCID, s.Mood)
	}
	rel := out.Relationship
	for _, v := range []float64{out.Affinity, rel.Trust, rel.Fear, rel.Attraction, rel.Resentment, rel.Obligation} {
		if !finite(v) {
			return s, fmt.Errorf("npc %s: non-finite value in state", s.NPCID)
		}
	}
	for _, f := range out.Facts {
		if !finite(f.Salience) {
			return s, fmt.Errorf("npc %s: fact %q has non-finite salience", s.NPCID, f.Text)
		}
	}
	if len(out.RecentTags) > r.limits.MaxRecentTags {
		out.RecentTags = out.RecentTags[:r.limits.MaxRecentTags]
	}
	r.enforce(&out)
	return out, nil
}

// playerEffect is the effect of one player interaction kind at
// full strength.
type playerEffect struct {
	affinity float64
	mood     types.Mood
	rel      types.RelationshipKind
	relDelta float64
	memory   string
}

var playerEffects = map[types.PlayerKind]playerEffect{
	types.PlayerGift:     {0.15, types.MoodPleased, types.RelTrust, 0.05, "The player gave me a gift."},
	types.PlayerPraise:   {0.08, types.MoodWarm, types.RelAttraction, 0.03, "The player praised me."},
	types.PlayerHelp:     {0.06, types.MoodGrateful, types.RelObligation, 0.08, "The player helped me."},
	types.PlayerTalk:     {0, "", "", 0, ""},
	types.PlayerInsult:   {-0.20, types.MoodOffended, types.RelResentment, 0.08, "The player insulted me."},
	types.PlayerThreaten: {-0.25, types.MoodHostile, types.RelFear, 0.15, "The player threatened me."},
	types.PlayerPunch:    {-0.35, types.MoodAngry, types.RelFear, 0.20, "The player struck me."},
	types.PlayerTheft:    {-0.15, types.MoodSuspicious, types.RelTrust, -0.10, "The player stole from me."},
}

func reducePlayer(r *Reducer, s *types.NPCState, e types.StateEvent) ([]types.Fact, error) {
	eff, ok := playerEffects[types.PlayerKind(e.Kind)]
	if !ok {
		return nil, &ReducerError{Event: e.Type, Reason: fmt.Sprintf("unknown player event kind %q", e.Kind)}
	}
	if !finite(e.Amount) {
		return nil, &ReducerError{Event: e.Type, Reason: "strength is not finite"}
	}
	strength := clamp01(e.Amount)

	s.Affinity += eff.affinity * strength
	if eff.mood != "" {
		s.Mood = eff.mood
	}
	if eff.rel != "" {
		addRelationship(&s.Relationship, eff.rel, eff.relDelta*strength)
	}
	if eff.memory == "" || strength == 0 {
		return nil, nil
	}
	f := types.Fact{
		Text:      eff.memory,
		Salience:  clamp01(0.2 + 0.8*strength),
		Tags:      []string{"player", e.Kind},
		CreatedAt: e.Timestamp,
	}
	s.Facts = append(s.Facts, f)
	return []types.Fact{f}, nil
}

var controlSequence = regexp.MustCompile(`(?i)<\||\|>|system instruction`)

// StripControl removes the control sequences FACT_ADD rejects, repeating
// until none remain so removals cannot splice a new one together.
func StripControl(text string) string {
	for controlSequence.MatchString(text) {
		text = controlSequence.ReplaceAllString(text, "")
	}
	return text
}

func reduceFactAdd(r *Reducer, s *types.NPCState, e types.StateEvent) ([]types.Fact, error) {
	text := strings.TrimSpace(e.Text)
	if text == "" {
		return nil, &ReducerError{Event: e.Type, Reason: "fact text is empty"}
	}
	if len(text) > r.limits.MaxFactChars {
		return nil, &ReducerError{Event: e.Type, Reason: fmt.Sprintf("fact text exceeds %d characters", r.limits.MaxFactChars)}
	}
	if controlSequence.MatchString(text) {
		return nil, &ReducerError{Event: e.Type, Reason: "fact text contains a control sequence"}
	}
	if !finite(e.Salience) {
		return nil, &ReducerError{Event: e.Type, Reason: "salience is not finite"}
	}
	f := types.Fact{
		Text:      text,
		Salience:  clamp01(e.Salience),
		Tags:      slices.Clone(e.Tags),
		CreatedAt: e.Timestamp,
	}
	if f.Tags == nil {
		f.Tags = []string{}
	}
	s.Facts = append(s.Facts, f)
	return []types.Fact{f}, nil
}

func reduceAffinityDelta(r *Reducer, s *types.NPCState, e types.StateEvent) ([]types.Fact, error) {
	if !finite(e.Amount) {
		return nil, &ReducerError{Event: e.Type, Reason: "delta is not finite"}
	}
	s.Affinity += e.Amount
	return nil, nil
}

func reduceMoodSet(r *Reducer, s *types.NPCState, e types.StateEvent) ([]types.Fact, error) {
	if !ValidMood(e.Mood) {
		return nil, &ReducerError{Event: e.Type, Reason: fmt.Sprintf("unknown mood %q", e.Mood)}
	}
	s.Mood = e.Mood
	return nil, nil
}

func reduceRelationshipDelta(r *Reducer, s *types.NPCState, e types.StateEvent) ([]types.Fact, error) {
	if !finite(e.Amount) {
		return nil, &ReducerError{Event: e.Type, Reason: "delta is not finite"}
	}
	if !addRelationship(&s.Relationship, types.RelationshipKind(e.Kind), e.Amount) {
		return nil, &ReducerError{Event: e.Type, Reason: fmt.Sprintf("unknown relationship kind %q", e.Kind)}
	}
	return nil, nil
}

func addRelationship(rel *types.Relationship, kind types.RelationshipKind, delta float64) bool {
	switch kind {
	case types.RelTrust:
		rel.Trust += delta
	case types.RelFear:
		rel.Fear += delta
	case types.RelAttraction:
		rel.Attraction += delta
	case types.RelResentment:
		rel.Resentment += delta
	case types.RelObligation:
		rel.Obligation += delta
	default:
		return false
	}
	return true
}

// Relationship drift per hour.
const (
	trustDrift      = 0.01
	fearDrift       = 0.05
	resentmentDrift = 0.02
	slowDrift       = 0.01
)

func reduceTimePassed(r *Reducer, s *types.NPCState, e types.StateEvent) ([]types.Fact, error) {
	hours := e.Amount
	if !finite(hours) || hours < 0 {
		return nil, &ReducerError{Event: e.Type, Reason: "hours must be a non-negative number"}
	}

	kept := s.Facts[:0]
	for _, f := range s.Facts {
		if !slices.Contains(f.Tags, "lore") {
			f.Salience -= r.limits.FactDecayRate * hours
			if f.Salience < r.limits.FactMinimum {
				continue
			}
		}
		kept = append(kept, f)
	}
	s.Facts = kept

	rel := &s.Relationship
	rel.Trust = toward(rel.Trust, 0.5, trustDrift*hours)
	rel.Fear = toward(rel.Fear, 0, fearDrift*hours)
	rel.Resentment = toward(rel.Resentment, 0, resentmentDrift*hours)
	rel.Attraction = toward(rel.Attraction, 0, slowDrift*hours)
	rel.Obligation = toward(rel.Obligation, 0, slowDrift*hours)
	return nil, nil
}

// toward moves v toward target by at most step without overshooting.
func toward(v, target, step float64) float64 {
	if v > target {
		return math.Max(target, v-step)
	}
	return math.Min(target, v+step)
}

func reduceFactReinforce(r *Reducer, s *types.NPCState, e types.StateEvent) ([]types.Fact, error) {
	fragment := strings.ToLower(strings.TrimSpace(e.Text))
	if fragment == "" {
		return nil, &ReducerError{Event: e.Type, Reason: "reinforce fragment is empty"}
	}
	boost := e.Amount
	if !finite(boost) || boost < 0 {
		return nil, &ReducerError{Event: e.Type, Reason: "boost must be a non-negative number"}
	}
	for i := range s.Facts {
		if strings.Contains(strings.ToLower(s.Facts[i].Text), fragment) {
			s.Facts[i].Salience += boost
		}
	}
	return nil, nil
}

func reduceActionRecorded(r *Reducer, s *types.NPCState, e types.StateEvent) ([]types.Fact, error) {
	if e.Action == nil {
		s.LastAction = nil
		return nil, nil
	}
	if e.Action.Action == "" {
		return nil, &ReducerError{Event: e.Type, Reason: "action record has no action"}
	}
	rec := *e.Action
	s.Turn++
	rec.Turn = s.Turn
	s.LastAction = &rec
	return nil, nil
}
