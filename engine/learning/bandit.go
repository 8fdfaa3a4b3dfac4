package learning

import (
	"math"
	"slices"
	"sync"
)

const (
	DefaultAlpha  = 0.2
	DefaultLambda = 1.0
	thetaLimit    = 2.0
)

// Arm is the linear model for one action. A is the diagonal of the
// regularized design matrix.
type Arm struct {
	Theta []float64 `json:"theta"`
	A     []float64 `json:"a_diag"`
	B     []float64 `json:"b"`
	N     int       `json:"n"`
}

// Bandit is a diagonal LinUCB scorer. Arms that were never updated score 0,
// so as a weight source they read as 1.0 like any unseen weight.
type Bandit struct {
	mu          sync.Mutex
	alpha       float64
	lambda      float64
	arms        map[string]*Arm
	pulls       int
	totalReward float64
}

// NewBandit creates an empty bandit. alpha is clamped to [0, 2] and lambda
// to [0.01, 10].
func NewBandit(alpha, lambda float64) *Bandit {
	return &Bandit{
		alpha:  math.Max(0, math.Min(2, alpha)),
		lambda: math.Max(0.01, math.Min(10, lambda)),
		arms:   map[string]*Arm{},
	}
}

// Score returns theta·x + alpha·sqrt(Σ x²/A) for action.
func (b *Bandit) Score(x Features, action string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	arm, ok := b.arms[action]
	if !ok {
		return 0
	}
	expected, spread := 0.0, 0.0
	for i, v := range x {
		expected += arm.Theta[i] * v
		spread += v * v / arm.A[i]
	}
	return expected + b.alpha*math.Sqrt(spread)
}

// Update folds one observed reward in [-1, 1] into action's arm.
func (b *Bandit) Update(x Features, action string, reward float64) {
	reward = math.Max(-1, math.Min(1, reward))

	b.mu.Lock()
	defer b.mu.Unlock()
	arm, ok := b.arms[action]
	if !ok {
		arm = b.newArm()
		b.arms[action] = arm
	}
	for i, v := range x {
		arm.A[i] += v * v
		arm.B[i] += reward * v
		arm.Theta[i] = math.Max(-thetaLimit, math.Min(thetaLimit, arm.B[i]/arm.A[i]))
	}
	arm.N++
	b.pulls++
	b.totalReward += reward
}

func (b *Bandit) newArm() *Arm {
	arm := &Arm{
		Theta: make([]float64, NumFeatures),
		A:     make([]float64, NumFeatures),
		B:     make([]float64, NumFeatures),
	}
	for i := range arm.A {
		arm.A[i] = b.lambda
	}
	return arm
}

// Weight implements decision.Weights over the context key's features.
func (b *Bandit) Weight(ctx, action string) float64 {
	return clampWeight(1 + b.Score(EncodeKey(ctx), action))
}

// BanditStats summarizes training so far.
type BanditStats struct {
	Pulls       int
	TotalReward float64
	Arms        int
}

// Stats returns training totals.
func (b *Bandit) Stats() BanditStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BanditStats{Pulls: b.pulls, TotalReward: b.totalReward, Arms: len(b.arms)}
}

// Reset forgets every arm.
func (b *Bandit) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arms = map[string]*Arm{}
	b.pulls = 0
	b.totalReward = 0
}

// BanditSnapshot is the persisted form of a bandit.
type BanditSnapshot struct {
	Alpha       float64         `json:"alpha"`
	Lambda      float64         `json:"lambda"`
	Arms        map[string]*Arm `json:"arms"`
	Pulls       int             `json:"total_pulls"`
	TotalReward float64         `json:"total_reward"`
}

// Snapshot deep-copies the bandit's parameters.
func (b *Bandit) Snapshot() *BanditSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	arms := make(map[string]*Arm, len(b.arms))
	for id, a := range b.arms {
		arms[id] = &Arm{
			Theta: slices.Clone(a.Theta),
			A:     slices.Clone(a.A),
			B:     slices.Clone(a.B),
			N:     a.N,
		}
	}
	return &BanditSnapshot{
		Alpha:       b.alpha,
		Lambda:      b.lambda,
		Arms:        arms,
		Pulls:       b.pulls,
		TotalReward: b.totalReward,
	}
}

// Restore replaces the bandit's parameters. Arms whose vectors do not match
// the feature layout are dropped.
func (b *Bandit) Restore(s *BanditSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arms = map[string]*Arm{}
	b.pulls, b.totalReward = 0, 0
	if s == nil {
		return
	}
	for id, a := range s.Arms {
		if a == nil || len(a.Theta) != NumFeatures || len(a.A) != NumFeatures || len(a.B) != NumFeatures {
			continue
		}
		if slices.ContainsFunc(a.A, func(v float64) bool { return v <= 0 }) {
			continue
		}
		b.arms[id] = &Arm{
			Theta: slices.Clone(a.Theta),
			A:     slices.Clone(a.A),
			B:     slices.Clone(a.B),
			N:     a.N,
		}
	}
	b.pulls = s.Pulls
	b.totalReward = s.TotalReward
}
