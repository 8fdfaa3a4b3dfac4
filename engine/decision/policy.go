package decision

import (
	"github.com/nathoo/npcmind/types"
)

// Weights supplies learned multipliers. Weight must return 1.0 for keys it
// has never seen.
type Weights interface {
	Weight(contextKey, key string) float64
}

// WeightFunc adapts a function to Weights.
type WeightFunc func(contextKey, key string) float64

func (f WeightFunc) Weight(contextKey, key string) float64 { return f(contextKey, key) }

// Product multiplies several weight sources. Nil sources are skipped.
func Product(ws ...Weights) Weights {
	return WeightFunc(func(ctx, key string) float64 {
		w := 1.0
		for _, src := range ws {
			if src != nil {
				w *= src.Weight(ctx, key)
			}
		}
		return w
	})
}

// Random is the per-NPC source used for exploration.
type Random interface {
	Float64() float64
	Intn(n int) int
}

// Gates are the affinity thresholds that make action classes legal.
type Gates struct {
	HostileBelow  float64
	FriendlyAbove float64
}

// DefaultGates returns the standard thresholds.
func DefaultGates() Gates {
	return Gates{HostileBelow: -0.3, FriendlyAbove: 0.2}
}

// Allows reports whether class is legal at affinity. Neutral always is.
func (g Gates) Allows(class types.ActionClass, affinity float64) bool {
	switch class {
	case types.ClassHostile:
		return affinity < g.HostileBelow
	case types.ClassFriendly:
		return affinity > g.FriendlyAbove
	default:
		return true
	}
}

// classStyles lists the styles each class may be delivered in, in tie-break
// order.
var classStyles = map[types.ActionClass][]types.Style{
	types.ClassFriendly: {types.StyleWarm, types.StyleNeutral},
	types.ClassNeutral:  {types.StyleNeutral, types.StyleWarm, types.StyleFirm},
	types.ClassHostile:  {types.StyleFirm, types.StyleHostile},
}

const (
	ownStylePrior   = 1.0
	otherStylePrior = 0.9
	moodStyleBonus  = 0.05
)

// Policy chooses actions. The zero value is not usable; use NewPolicy.
type Policy struct {
	Gates       Gates
	Exploration float64 // probability of a uniform pick among legal actions
}

// NewPolicy creates a policy with default gates and the given exploration
// rate. A rate of 0 makes Choose a pure arg-max.
func NewPolicy(exploration float64) *Policy {
	return &Policy{Gates: DefaultGates(), Exploration: exploration}
}

// Legal returns the catalogue actions allowed at affinity, in catalogue
// order. The result is never empty.
func (p *Policy) Legal(affinity float64) []types.Action {
	out := make([]types.Action, 0, len(catalogue))
	for _, a := range catalogue {
		if p.Gates.Allows(a.Class, affinity) {
			out = append(out, a)
		}
	}
	return out
}

// Choose picks an action and style for contextKey. actions weighs
// (contextKey, action id) and styles weighs (contextKey, style); either may
// be nil. rng is only consulted when exploration is enabled.
func (p *Policy) Choose(contextKey string, affinity float64, mood types.Mood, actions, styles Weights, rng Random) types.Decision {
	legal := p.Legal(affinity)

	bestIdx, bestScore := 0, -1.0
	for i, a := range legal {
		s := a.BaseScore * weight(actions, contextKey, string(a.ID))
		if s > bestScore {
			bestIdx, bestScore = i, s
		}
	}

	d := types.Decision{ContextKey: contextKey, Action: legal[bestIdx], Score: bestScore}
	if p.Exploration > 0 && rng != nil && rng.Float64() < p.Exploration {
		a := legal[rng.Intn(len(legal))]
		d.Action = a
		d.Score = a.BaseScore * weight(actions, contextKey, string(a.ID))
		d.Explored = true
	}
	d.Style = ChooseStyle(contextKey, d.Action, mood, styles)
	return d
}

// ChooseStyle picks the delivery style for a chosen action.
func ChooseStyle(contextKey string, a types.Action, mood types.Mood, styles Weights) types.Style {
	candidates := classStyles[a.Class]
	if len(candidates) == 0 {
		return a.Style
	}
	best, bestScore := a.Style, -1.0
	for _, st := range candidates {
		prior := otherStylePrior
		if st == a.Style {
			prior = ownStylePrior
		}
		prior += moodBonus(mood, st)
		s := prior * weight(styles, contextKey, string(st))
		if s > bestScore {
			best, bestScore = st, s
		}
	}
	return best
}

// moodBonus nudges style toward the NPC's current temper.
func moodBonus(mood types.Mood, st types.Style) float64 {
	switch mood {
	case types.MoodPleased, types.MoodWarm, types.MoodGrateful, types.MoodSatisfied, types.MoodProud:
		if st == types.StyleWarm {
			return moodStyleBonus
		}
	case types.MoodAngry, types.MoodOffended, types.MoodHostile, types.MoodOutraged, types.MoodSuspicious:
		if st == types.StyleFirm || st == types.StyleHostile {
			return moodStyleBonus
		}
	}
	return 0
}

func weight(w Weights, ctx, key string) float64 {
	if w == nil {
		return 1.0
	}
	return w.Weight(ctx, key)
}
