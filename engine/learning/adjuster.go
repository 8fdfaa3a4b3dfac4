package learning

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nathoo/npcmind/types"
)

// DefaultLearningRate is the step applied per unit of reward.
const DefaultLearningRate = 0.05

// ErrAttributionMiss means feedback arrived with no decision on record to
// attribute it to. Callers treat it as a no-op.
var ErrAttributionMiss = errors.New("no action on record")

// Feedback describes one applied update.
type Feedback struct {
	ContextKey     string
	Action         types.ActionID
	Style          types.Style
	Delta          float64
	Reward         float64
	DecisionWeight float64
	StyleWeight    float64
}

// AdjusterStats counts feedback outcomes.
type AdjusterStats struct {
	Applied  int
	Misses   int
	Positive int
	Negative int
}

// PolicyAdjuster owns one NPC's learned weights and turns affinity changes
// into weight updates.
type PolicyAdjuster struct {
	state        *LearningState
	bandit       *Bandit
	learningRate float64

	mu    sync.Mutex
	stats AdjusterStats
}

// AdjusterOption configures a PolicyAdjuster.
type AdjusterOption func(*PolicyAdjuster)

// WithBandit also trains b on every feedback.
func WithBandit(b *Bandit) AdjusterOption {
	return func(a *PolicyAdjuster) { a.bandit = b }
}

// WithLearningRate overrides DefaultLearningRate. Values outside (0, 1] are
// ignored.
func WithLearningRate(lr float64) AdjusterOption {
	return func(a *PolicyAdjuster) {
		if lr > 0 && lr <= 1 {
			a.learningRate = lr
		}
	}
}

// NewPolicyAdjuster creates an adjuster over state. A nil state gets a fresh
// default one.
func NewPolicyAdjuster(state *LearningState, opts ...AdjusterOption) *PolicyAdjuster {
	if state == nil {
		state = NewLearningState(0)
	}
	a := &PolicyAdjuster{state: state, learningRate: DefaultLearningRate}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the underlying weight tables.
func (a *PolicyAdjuster) State() *LearningState { return a.state }

// Bandit returns the attached bandit, or nil.
func (a *PolicyAdjuster) Bandit() *Bandit { return a.bandit }

// LearningRate returns the configured step size.
func (a *PolicyAdjuster) LearningRate() float64 { return a.learningRate }

// ApplyFeedback attributes an affinity change to last. It updates the
// decision weight for (context, action) and the style weight for
// (context, style). With no decision on record it returns
// ErrAttributionMiss and changes nothing.
func (a *PolicyAdjuster) ApplyFeedback(last *types.ActionRecord, delta float64) (Feedback, error) {
	if last == nil || last.Action == "" {
		a.mu.Lock()
		a.stats.Misses++
		a.mu.Unlock()
		return Feedback{}, ErrAttributionMiss
	}

	reward := AffinityReward(delta)
	fb := Feedback{
		ContextKey: last.ContextKey,
		Action:     last.Action,
		Style:      last.Style,
		Delta:      delta,
		Reward:     reward,
	}

	de, err := a.state.Update(NamespaceDecision, last.ContextKey, string(last.Action), reward, a.learningRate)
	if err != nil {
		return fb, fmt.Errorf("decision weight: %w", err)
	}
	fb.DecisionWeight = de.Weight

	if last.Style != "" {
		se, err := a.state.Update(NamespaceStyle, last.ContextKey, string(last.Style), reward, a.learningRate)
		if err != nil {
			return fb, fmt.Errorf("style weight: %w", err)
		}
		fb.StyleWeight = se.Weight
	}

	if a.bandit != nil {
		a.bandit.Update(EncodeKey(last.ContextKey), string(last.Action), reward)
	}

	a.mu.Lock()
	a.stats.Applied++
	switch {
	case reward > 0:
		a.stats.Positive++
	case reward < 0:
		a.stats.Negative++
	}
	a.mu.Unlock()
	return fb, nil
}

// DecisionWeights is the weight source for action scoring. With a bandit
// attached its weight multiplies the flat table's.
func (a *PolicyAdjuster) DecisionWeights() func(ctx, key string) float64 {
	flat := a.state.View(NamespaceDecision)
	if a.bandit == nil {
		return flat.Weight
	}
	return func(ctx, key string) float64 {
		return flat.Weight(ctx, key) * a.bandit.Weight(ctx, key)
	}
}

// StyleWeights is the weight source for style selection.
func (a *PolicyAdjuster) StyleWeights() func(ctx, key string) float64 {
	return a.state.View(NamespaceStyle).Weight
}

// Stats returns feedback counters.
func (a *PolicyAdjuster) Stats() AdjusterStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Reset clears learned weights, bandit parameters and counters.
func (a *PolicyAdjuster) Reset() {
	a.state.Reset()
	if a.bandit != nil {
		a.bandit.Reset()
	}
	a.mu.Lock()
	a.stats = AdjusterStats{}
	a.mu.Unlock()
}
