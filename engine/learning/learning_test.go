package learning

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nathoo/npcmind/engine/decision"
	"github.com/nathoo/npcmind/types"
)

func record(ctx string, action types.ActionID, style types.Style) *types.ActionRecord {
	return &types.ActionRecord{Action: action, Style: style, ContextKey: ctx}
}

func TestAffinityReward(t *testing.T) {
	tests := []struct {
		delta float64
		want  float64
	}{
		{0, 0},
		{0.1, 0},
		{-0.1, 0},
		{0.15, 0.75},
		{-0.12, -0.6},
		{0.3, 1},
		{-0.9, -1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := AffinityReward(tt.delta); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("AffinityReward(%v): expected %v, got %v", tt.delta, tt.want, got)
		}
	}
}

func TestLearningState_DefaultWeight(t *testing.T) {
	s := NewLearningState(4)
	if w := s.Weight(NamespaceDecision, "ctx", "ACT_GREET"); w != 1.0 {
		t.Errorf("expected 1.0 for unseen key, got %v", w)
	}
	if w := s.Weight("bogus", "ctx", "ACT_GREET"); w != 1.0 {
		t.Errorf("expected 1.0 for unknown namespace, got %v", w)
	}
}

func TestLearningState_WeightClamped(t *testing.T) {
	s := NewLearningState(4)
	for i := 0; i < 100; i++ {
		if _, err := s.Update(NamespaceDecision, "ctx", "up", 1, 0.5); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Update(NamespaceDecision, "ctx", "down", -1, 0.5); err != nil {
			t.Fatal(err)
		}
	}
	if w := s.Weight(NamespaceDecision, "ctx", "up"); w != MaxWeight {
		t.Errorf("expected %v, got %v", MaxWeight, w)
	}
	if w := s.Weight(NamespaceDecision, "ctx", "down"); w != MinWeight {
		t.Errorf("expected %v, got %v", MinWeight, w)
	}
	e, _ := s.Entry(NamespaceDecision, "ctx", "up")
	if e.Total != 100 || e.Success != 100 || e.Failure != 0 {
		t.Errorf("unexpected stats: %+v", e)
	}
	if e.SuccessRate() != 1 {
		t.Errorf("expected success rate 1, got %v", e.SuccessRate())
	}
}

func TestLearningState_NamespaceIsolation(t *testing.T) {
	s := NewLearningState(4)
	s.Update(NamespaceStyle, "ctx", "warm", 1, 0.2)
	if w := s.Weight(NamespaceDecision, "ctx", "warm"); w != 1.0 {
		t.Errorf("style write leaked into decision namespace: %v", w)
	}
	if s.Len(NamespaceDecision) != 0 || s.Len(NamespaceStyle) != 1 {
		t.Errorf("unexpected sizes: style=%d decision=%d", s.Len(NamespaceStyle), s.Len(NamespaceDecision))
	}

	styleBefore, _ := s.Entry(NamespaceStyle, "ctx", "warm")
	for i := 0; i < 3; i++ {
		s.Update(NamespaceDecision, "ctx", "warm", -1, 0.2)
	}
	styleAfter, ok := s.Entry(NamespaceStyle, "ctx", "warm")
	if !ok {
		t.Fatal("decision writes evicted the style entry")
	}
	if diff := cmp.Diff(styleBefore, styleAfter); diff != "" {
		t.Errorf("decision write changed the style entry (-before +after):\n%s", diff)
	}
	if w := s.Weight(NamespaceDecision, "ctx", "warm"); w >= 1.0 {
		t.Errorf("expected decision weight below 1 after negative rewards, got %v", w)
	}
	if s.Len(NamespaceDecision) != 1 || s.Len(NamespaceStyle) != 1 {
		t.Errorf("unexpected sizes: style=%d decision=%d", s.Len(NamespaceStyle), s.Len(NamespaceDecision))
	}
}

func TestLearningState_LRUEviction(t *testing.T) {
	s := NewLearningState(3)
	for i := 0; i < 3; i++ {
		s.Update(NamespaceDecision, "ctx", fmt.Sprintf("k%d", i), 1, 0.1)
	}
	// Reading k0 must not protect it; writing k1 does.
	s.Weight(NamespaceDecision, "ctx", "k0")
	s.Update(NamespaceDecision, "ctx", "k1", 1, 0.1)
	s.Update(NamespaceDecision, "ctx", "k3", 1, 0.1)

	if s.Len(NamespaceDecision) != 3 {
		t.Fatalf("expected 3 entries, got %d", s.Len(NamespaceDecision))
	}
	if _, ok := s.Entry(NamespaceDecision, "ctx", "k0"); ok {
		t.Error("expected k0 evicted")
	}
	var keys []string
	for _, e := range s.Entries(NamespaceDecision) {
		keys = append(keys, e.Key)
	}
	if diff := cmp.Diff([]string{"k2", "k1", "k3"}, keys); diff != "" {
		t.Errorf("recency order mismatch (-want +got):\n%s", diff)
	}
}

func TestLearningState_ConcurrentUpdates(t *testing.T) {
	s := NewLearningState(8)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(NamespaceDecision, "ctx", "k", 0.1, 0.01)
		}()
	}
	wg.Wait()
	e, _ := s.Entry(NamespaceDecision, "ctx", "k")
	if e.Total != 50 {
		t.Errorf("expected 50 updates, got %d", e.Total)
	}
	if e.LastUsed != 50 {
		t.Errorf("expected tick 50, got %d", e.LastUsed)
	}
}

func TestApplyFeedback(t *testing.T) {
	a := NewPolicyAdjuster(nil)
	fb, err := a.ApplyFeedback(record("ctx", "ACT_GREET", types.StyleNeutral), 0.2)
	if err != nil {
		t.Fatalf("ApplyFeedback failed: %v", err)
	}
	if fb.Reward != 1 {
		t.Errorf("expected reward 1, got %v", fb.Reward)
	}
	if math.Abs(fb.DecisionWeight-1.05) > 1e-9 || math.Abs(fb.StyleWeight-1.05) > 1e-9 {
		t.Errorf("expected weights 1.05, got %v and %v", fb.DecisionWeight, fb.StyleWeight)
	}
	if w := a.State().Weight(NamespaceStyle, "ctx", "neutral"); math.Abs(w-1.05) > 1e-9 {
		t.Errorf("expected style weight stored, got %v", w)
	}

	// Noise-level changes are recorded but do not move the weight.
	fb, _ = a.ApplyFeedback(record("ctx", "ACT_GREET", types.StyleNeutral), 0.05)
	if fb.Reward != 0 || math.Abs(fb.DecisionWeight-1.05) > 1e-9 {
		t.Errorf("expected unchanged weight, got %+v", fb)
	}
}

func TestApplyFeedback_NoActionOnRecord(t *testing.T) {
	a := NewPolicyAdjuster(nil)
	if _, err := a.ApplyFeedback(nil, 0.5); !errors.Is(err, ErrAttributionMiss) {
		t.Errorf("expected ErrAttributionMiss, got %v", err)
	}
	if _, err := a.ApplyFeedback(&types.ActionRecord{}, 0.5); !errors.Is(err, ErrAttributionMiss) {
		t.Errorf("expected ErrAttributionMiss for empty record, got %v", err)
	}
	if a.State().Len(NamespaceDecision) != 0 || a.State().Len(NamespaceStyle) != 0 {
		t.Error("expected no weights written")
	}
	if st := a.Stats(); st.Misses != 2 || st.Applied != 0 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestApplyFeedback_ShiftsPolicy(t *testing.T) {
	a := NewPolicyAdjuster(nil, WithLearningRate(0.2))
	p := decision.NewPolicy(0)
	ctx := "aff:0|mood:neutral"

	before := p.Choose(ctx, 0, types.MoodNeutral, decision.WeightFunc(a.DecisionWeights()), nil, nil)
	if before.Action.ID != decision.ActSmalltalk {
		t.Fatalf("expected %s first, got %s", decision.ActSmalltalk, before.Action.ID)
	}
	a.ApplyFeedback(record(ctx, decision.ActSmalltalk, types.StyleNeutral), -0.5)
	after := p.Choose(ctx, 0, types.MoodNeutral, decision.WeightFunc(a.DecisionWeights()), nil, nil)
	if after.Action.ID == decision.ActSmalltalk {
		t.Error("expected negative feedback to move the choice away")
	}
}

func TestEncodeKeyMatchesEncode(t *testing.T) {
	tags := []string{"player:gift", "env:quest_completed", "player:talk"}
	key := decision.BuildContextKey(0.7, types.MoodPleased, tags)
	if diff := cmp.Diff(Encode(0.7, types.MoodPleased, tags), EncodeKey(key)); diff != "" {
		t.Errorf("features differ (-raw +key):\n%s", diff)
	}
	f := EncodeKey(key)
	sum := 0.0
	for _, v := range f {
		sum += v
	}
	// bias + band + mood + two tags
	if sum != 5 {
		t.Errorf("expected 5 active feature units, got %v", sum)
	}
}

func TestBandit(t *testing.T) {
	b := NewBandit(DefaultAlpha, DefaultLambda)
	x := EncodeKey("aff:+|mood:warm|recent:player:gift")

	if s := b.Score(x, "ACT_GREET"); s != 0 {
		t.Errorf("expected unseen arm to score 0, got %v", s)
	}
	if w := b.Weight("aff:+|mood:warm", "ACT_GREET"); w != 1.0 {
		t.Errorf("expected unseen weight 1.0, got %v", w)
	}

	for i := 0; i < 20; i++ {
		b.Update(x, "good", 1)
		b.Update(x, "bad", -1)
	}
	if good, bad := b.Score(x, "good"), b.Score(x, "bad"); good <= bad {
		t.Errorf("expected good > bad, got %v <= %v", good, bad)
	}
	for _, arm := range b.Snapshot().Arms {
		for _, th := range arm.Theta {
			if th < -2 || th > 2 {
				t.Fatalf("theta %v outside [-2, 2]", th)
			}
		}
	}
	if w := b.Weight("aff:+|mood:warm|recent:player:gift", "bad"); w < MinWeight || w > MaxWeight {
		t.Errorf("weight %v outside clamp", w)
	}
	if st := b.Stats(); st.Pulls != 40 || st.Arms != 2 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestBandit_Deterministic(t *testing.T) {
	run := func() float64 {
		b := NewBandit(DefaultAlpha, DefaultLambda)
		x := EncodeKey("aff:-|mood:angry|recent:player:insult")
		b.Update(x, "a", 0.5)
		b.Update(x, "a", -0.2)
		return b.Score(x, "a")
	}
	if a, b := run(), run(); a != b {
		t.Errorf("expected identical scores, got %v and %v", a, b)
	}
}

func TestPersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	a := NewPolicyAdjuster(NewLearningState(8), WithBandit(NewBandit(DefaultAlpha, DefaultLambda)))
	a.ApplyFeedback(record("c1", "ACT_GREET", types.StyleWarm), 0.3)
	a.ApplyFeedback(record("c2", "ACT_TRADE", types.StyleFirm), -0.3)
	if err := store.Save("lydia", a); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	b := NewPolicyAdjuster(NewLearningState(8), WithBandit(NewBandit(DefaultAlpha, DefaultLambda)))
	if err := store.Load("lydia", b); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for _, ns := range Namespaces {
		if diff := cmp.Diff(a.State().Entries(ns), b.State().Entries(ns)); diff != "" {
			t.Errorf("%s entries mismatch (-saved +loaded):\n%s", ns, diff)
		}
	}
	x := EncodeKey("c1")
	if a.Bandit().Score(x, "ACT_GREET") != b.Bandit().Score(x, "ACT_GREET") {
		t.Error("bandit parameters not restored")
	}

	// No temp files left behind.
	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("expected no temp files, got %v", matches)
	}
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	a := NewPolicyAdjuster(nil)
	if err := NewStore(t.TempDir()).Load("nobody", a); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestLoad_VersionMismatchDegrades(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	data := `{"version": 99, "npc_id": "lydia", "namespaces": {"decision": [{"context_key": "c", "key": "ACT_GREET", "weight": 1.8}]}}`
	if err := os.WriteFile(store.Path("lydia"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	a := NewPolicyAdjuster(nil)
	a.ApplyFeedback(record("old", "ACT_WAIT", types.StyleNeutral), 0.5)

	err := store.Load("lydia", a)
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("expected ErrVersionMismatch, got %v", err)
	}
	if a.State().Len(NamespaceDecision) != 0 {
		t.Error("expected tables reset to defaults")
	}
	if w := a.State().Weight(NamespaceDecision, "c", "ACT_GREET"); w != 1.0 {
		t.Errorf("expected default weight, got %v", w)
	}
}

func TestLoad_CorruptFileDegrades(t *testing.T) {
	store := NewStore(t.TempDir())
	os.WriteFile(store.Path("lydia"), []byte("{not json"), 0o644)
	a := NewPolicyAdjuster(nil)
	var pe *PersistenceError
	if err := store.Load("lydia", a); !errors.As(err, &pe) {
		t.Errorf("expected PersistenceError, got %v", err)
	}
}

func TestLoad_LegacyFileGoesToStyle(t *testing.T) {
	store := NewStore(t.TempDir())
	data := `{
  "enabled": true,
  "max_entries": 100,
  "weights": [
    {"action": "warm", "context_key": "aff:+|mood:pleased", "weight": 1.4, "success_count": 3, "failure_count": 1, "total_count": 4, "last_reward": 0.5},
    {"action": "firm", "context_key": "aff:-|mood:angry", "weight": 9.0, "success_count": 0, "failure_count": 0, "total_count": 0, "last_reward": 0}
  ]
}`
	os.WriteFile(store.Path("lydia"), []byte(data), 0o644)

	a := NewPolicyAdjuster(nil)
	if err := store.Load("lydia", a); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if w := a.State().Weight(NamespaceStyle, "aff:+|mood:pleased", "warm"); w != 1.4 {
		t.Errorf("expected legacy weight 1.4 in style, got %v", w)
	}
	if w := a.State().Weight(NamespaceStyle, "aff:-|mood:angry", "firm"); w != MaxWeight {
		t.Errorf("expected legacy weight clamped to %v, got %v", MaxWeight, w)
	}
	if a.State().Len(NamespaceDecision) != 0 {
		t.Error("legacy file leaked into decision namespace")
	}
}

func TestLoad_BanditSchemaMismatchKeepsWeights(t *testing.T) {
	store := NewStore(t.TempDir())
	a := NewPolicyAdjuster(nil, WithBandit(NewBandit(DefaultAlpha, DefaultLambda)))
	a.ApplyFeedback(record("c", "ACT_GREET", types.StyleWarm), 0.3)
	data, err := Marshal("lydia", a)
	if err != nil {
		t.Fatal(err)
	}
	// Rewrite the feature schema to a future one.
	data = []byte(strings.Replace(string(data), fmt.Sprintf(`"feature_schema_version": %d`, FeatureSchemaVersion), `"feature_schema_version": 42`, 1))
	os.WriteFile(store.Path("lydia"), data, 0o644)

	b := NewPolicyAdjuster(nil, WithBandit(NewBandit(DefaultAlpha, DefaultLambda)))
	if err := store.Load("lydia", b); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if b.State().Len(NamespaceDecision) != 1 {
		t.Error("expected flat weights kept")
	}
	if st := b.Bandit().Stats(); st.Arms != 0 {
		t.Errorf("expected bandit discarded, got %+v", st)
	}
}

func TestStorePath_Sanitized(t *testing.T) {
	got := NewStore("/tmp/x").Path("../evil npc")
	want := filepath.Join("/tmp/x", "___evil_npc_learning.json")
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSaveWithoutBandit(t *testing.T) {
	a := NewPolicyAdjuster(nil)
	data, err := Marshal("x", a)
	if err != nil {
		t.Fatal(err)
	}
	b := NewPolicyAdjuster(nil)
	if err := Unmarshal(data, b); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if diff := cmp.Diff(a.State().Entries(NamespaceStyle), b.State().Entries(NamespaceStyle), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("mismatch:\n%s", diff)
	}
}
