package signal

import (
	"math"

	"github.com/nathoo/npcmind/types"
)

// Config holds the normalizer constants. They are defaults, not physics.
type Config struct {
	Dampening            float64 // multiplier applied to every raw intensity
	MaxAffinityDelta     float64 // per-signal cap on |affinity delta|
	MaxRelationshipDelta float64 // per-signal cap on |relationship delta|
	DecayFactor          float64 // weight of the n-th signal is DecayFactor^(n-1)
	MoodThreshold        float64 // mood emitted only above this damped intensity
}

// DefaultConfig returns the standard normalizer constants.
func DefaultConfig() Config {
	return Config{
		Dampening:            0.5,
		MaxAffinityDelta:     0.15,
		MaxRelationshipDelta: 0.15,
		DecayFactor:          0.8,
		MoodThreshold:        0.4,
	}
}

// affinityImpact is the affinity delta per unit of damped intensity.
var affinityImpact = map[types.ConsequenceType]float64{
	types.ConsequenceBonding:     0.18,
	types.ConsequenceAlienation:  -0.24,
	types.ConsequenceAchievement: 0.10,
	types.ConsequenceFailure:     -0.08,
	types.ConsequenceJustice:     0.12,
	types.ConsequenceInjustice:   -0.20,
	types.ConsequenceStress:      -0.04,
	types.ConsequenceRelief:      0.02,
	types.ConsequenceThreat:      -0.06,
	types.ConsequenceSafety:      0.04,
}

type relationshipImpact struct {
	kind types.RelationshipKind
	per  float64
}

// relationshipImpacts maps consequences onto one relationship dimension.
var relationshipImpacts = map[types.ConsequenceType]relationshipImpact{
	types.ConsequenceBonding:     {types.RelTrust, 0.10},
	types.ConsequenceAlienation:  {types.RelTrust, -0.10},
	types.ConsequenceThreat:      {types.RelFear, 0.12},
	types.ConsequenceSafety:      {types.RelFear, -0.08},
	types.ConsequenceStress:      {types.RelFear, 0.04},
	types.ConsequenceInjustice:   {types.RelResentment, 0.12},
	types.ConsequenceJustice:     {types.RelResentment, -0.06},
	types.ConsequenceAchievement: {types.RelObligation, 0.05},
}

// Normalizer dampens, caps and combines signals into bounded deltas.
type Normalizer struct {
	cfg Config
}

// NewNormalizer creates a normalizer with cfg.
func NewNormalizer(cfg Config) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Config returns the normalizer's constants.
func (n *Normalizer) Config() Config {
	return n.cfg
}

// Normalize processes one signal on its own (weight 1).
func (n *Normalizer) Normalize(sig types.Signal) types.NormalizedSignal {
	damped := clamp01(sig.Intensity) * n.cfg.Dampening
	out := types.NormalizedSignal{
		Consequence:   sig.Consequence,
		Intensity:     damped,
		AffinityDelta: capAbs(damped*affinityImpact[sig.Consequence], n.cfg.MaxAffinityDelta),
		Weight:        1,
	}
	if damped > n.cfg.MoodThreshold {
		out.Mood = sig.MoodImpact
	}
	if ri, ok := relationshipImpacts[sig.Consequence]; ok {
		out.RelationshipKind = ri.kind
		out.RelationshipDelta = capAbs(damped*ri.per, n.cfg.MaxRelationshipDelta)
	}
	return out
}

// NormalizeBatch processes signals that arrived together. The n-th signal
// in the batch is weighted DecayFactor^(n-1).
func (n *Normalizer) NormalizeBatch(signals []types.Signal) []types.NormalizedSignal {
	out := make([]types.NormalizedSignal, 0, len(signals))
	weight := 1.0
	for _, sig := range signals {
		ns := n.Normalize(sig)
		ns.Weight = weight
		out = append(out, ns)
		weight *= n.cfg.DecayFactor
	}
	return out
}

// CombinedAffinity is the batch's total affinity delta before the state
// range is applied.
func CombinedAffinity(batch []types.NormalizedSignal) float64 {
	total := 0.0
	for _, ns := range batch {
		total += ns.AffinityDelta * ns.Weight
	}
	return total
}

// RelationshipDelta is the combined change for one relationship dimension.
type RelationshipDelta struct {
	Kind  types.RelationshipKind
	Delta float64
}

var relationshipOrder = []types.RelationshipKind{
	types.RelTrust, types.RelFear, types.RelAttraction, types.RelResentment, types.RelObligation,
}

// CombinedRelationships returns the non-zero combined relationship deltas
// in a fixed kind order.
func CombinedRelationships(batch []types.NormalizedSignal) []RelationshipDelta {
	sums := map[types.RelationshipKind]float64{}
	for _, ns := range batch {
		if ns.RelationshipKind != "" {
			sums[ns.RelationshipKind] += ns.RelationshipDelta * ns.Weight
		}
	}
	var out []RelationshipDelta
	for _, k := range relationshipOrder {
		if d := sums[k]; d != 0 {
			out = append(out, RelationshipDelta{Kind: k, Delta: d})
		}
	}
	return out
}

// StrongestMood returns the mood of the most intense mood-bearing signal,
// earliest first on ties, or "" if none crossed the threshold.
func StrongestMood(batch []types.NormalizedSignal) types.Mood {
	var mood types.Mood
	best := -1.0
	for _, ns := range batch {
		if ns.Mood != "" && ns.Intensity > best {
			best = ns.Intensity
			mood = ns.Mood
		}
	}
	return mood
}

// FilterByIntensity drops signals whose damped intensity is below min.
// Batch weights are kept as assigned.
func FilterByIntensity(batch []types.NormalizedSignal, min float64) []types.NormalizedSignal {
	out := make([]types.NormalizedSignal, 0, len(batch))
	for _, ns := range batch {
		if ns.Intensity >= min {
			out = append(out, ns)
		}
	}
	return out
}

func capAbs(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
