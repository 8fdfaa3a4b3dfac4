// Package learning adapts action and style preferences from observed
// affinity changes. Weights only rescale catalogue actions; nothing here can
// introduce a new behavior.
package learning

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Namespace isolates one family of learned weights.
type Namespace string

const (
	NamespaceStyle    Namespace = "style"
	NamespaceDecision Namespace = "decision"
)

// Namespaces lists every namespace in persistence order.
var Namespaces = []Namespace{NamespaceStyle, NamespaceDecision}

const (
	MinWeight         = 0.5
	MaxWeight         = 2.0
	DefaultMaxEntries = 256
)

// ErrUnknownNamespace is returned for a namespace outside Namespaces.
var ErrUnknownNamespace = errors.New("unknown learning namespace")

// Entry is one learned weight with its running statistics.
type Entry struct {
	ContextKey string  `json:"context_key"`
	Key        string  `json:"key"`
	Weight     float64 `json:"weight"`
	Success    int     `json:"success"`
	Failure    int     `json:"failure"`
	Total      int     `json:"total"`
	LastReward float64 `json:"last_reward"`
	LastUsed   uint64  `json:"last_used"`
}

// SuccessRate is the share of positive outcomes, 0.5 before any.
func (e Entry) SuccessRate() float64 {
	if e.Total == 0 {
		return 0.5
	}
	return float64(e.Success) / float64(e.Total)
}

type entryKey struct {
	ctx, key string
}

type table struct {
	mu  sync.Mutex
	lru *simplelru.LRU[entryKey, Entry]
}

// LearningState is a bounded weight store with one LRU table per namespace.
// Each table holds at most maxEntries records; the least recently written
// record is evicted first.
type LearningState struct {
	maxEntries int
	tick       atomic.Uint64
	tables     map[Namespace]*table
}

// NewLearningState creates empty tables. maxEntries <= 0 selects the
// default.
func NewLearningState(maxEntries int) *LearningState {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	s := &LearningState{
		maxEntries: maxEntries,
		tables:     make(map[Namespace]*table, len(Namespaces)),
	}
	for _, ns := range Namespaces {
		lru, err := simplelru.NewLRU[entryKey, Entry](maxEntries, nil)
		if err != nil {
			panic(fmt.Sprintf("learning: new lru: %v", err))
		}
		s.tables[ns] = &table{lru: lru}
	}
	return s
}

// MaxEntries is the per-namespace capacity.
func (s *LearningState) MaxEntries() int {
	return s.maxEntries
}

// Weight returns the weight for (ctx, key) in ns, or 1.0 if none is
// recorded. Reads do not affect eviction order.
func (s *LearningState) Weight(ns Namespace, ctx, key string) float64 {
	if e, ok := s.Entry(ns, ctx, key); ok {
		return e.Weight
	}
	return 1.0
}

// Entry returns the full record for (ctx, key) in ns.
func (s *LearningState) Entry(ns Namespace, ctx, key string) (Entry, bool) {
	t := s.tables[ns]
	if t == nil {
		return Entry{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Peek(entryKey{ctx, key})
}

// Update applies reward to (ctx, key) in ns: the weight moves by lr×reward
// and is clamped to [MinWeight, MaxWeight].
func (s *LearningState) Update(ns Namespace, ctx, key string, reward, lr float64) (Entry, error) {
	t := s.tables[ns]
	if t == nil {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownNamespace, ns)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	k := entryKey{ctx, key}
	e, ok := t.lru.Peek(k)
	if !ok {
		e = Entry{ContextKey: ctx, Key: key, Weight: 1.0}
	}
	e.Total++
	e.LastReward = reward
	switch {
	case reward > 0:
		e.Success++
	case reward < 0:
		e.Failure++
	}
	e.Weight = clampWeight(e.Weight + lr*reward)
	e.LastUsed = s.tick.Add(1)
	t.lru.Add(k, e)
	return e, nil
}

// Put stores e as is, apart from clamping its weight. Used when restoring
// from disk; entries are expected oldest first.
func (s *LearningState) Put(ns Namespace, e Entry) error {
	t := s.tables[ns]
	if t == nil {
		return fmt.Errorf("%w: %q", ErrUnknownNamespace, ns)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e.Weight = clampWeight(e.Weight)
	for {
		cur := s.tick.Load()
		if e.LastUsed <= cur || s.tick.CompareAndSwap(cur, e.LastUsed) {
			break
		}
	}
	t.lru.Add(entryKey{e.ContextKey, e.Key}, e)
	return nil
}

// Entries returns ns's records from least to most recently written.
func (s *LearningState) Entries(ns Namespace) []Entry {
	t := s.tables[ns]
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, t.lru.Len())
	for _, k := range t.lru.Keys() {
		if e, ok := t.lru.Peek(k); ok {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of records in ns.
func (s *LearningState) Len(ns Namespace) int {
	t := s.tables[ns]
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Len()
}

// Reset empties every namespace.
func (s *LearningState) Reset() {
	for _, ns := range Namespaces {
		t := s.tables[ns]
		t.mu.Lock()
		t.lru.Purge()
		t.mu.Unlock()
	}
	s.tick.Store(0)
}

// View returns a read-only weight source over one namespace.
func (s *LearningState) View(ns Namespace) View {
	return View{state: s, ns: ns}
}

// View exposes one namespace as a decision weight source.
type View struct {
	state *LearningState
	ns    Namespace
}

// Weight implements decision.Weights.
func (v View) Weight(ctx, key string) float64 {
	if v.state == nil {
		return 1.0
	}
	return v.state.Weight(v.ns, ctx, key)
}

func clampWeight(w float64) float64 {
	if math.IsNaN(w) {
		return 1.0
	}
	if w < MinWeight {
		return MinWeight
	}
	if w > MaxWeight {
		return MaxWeight
	}
	return w
}
