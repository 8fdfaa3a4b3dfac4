package state

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/nathoo/npcmind/engine/events"
	"github.com/nathoo/npcmind/types"
)

// DefaultLogCap is how many events a store keeps in memory before folding
// the oldest into its replay checkpoint.
const DefaultLogCap = 1000

// Store serializes every dispatch for one NPC and caches the latest
// snapshot. Dispatches are processed one at a time in arrival order.
type Store struct {
	npcID   string
	reducer *Reducer
	bus     *events.Bus
	logCap  int

	lock ticketLock

	// Guarded by lock.
	base types.NPCState // checkpoint the in-memory log starts from
	log  []types.StateEvent

	snapshot atomic.Pointer[types.NPCState]
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithBus publishes every committed dispatch to b.
func WithBus(b *events.Bus) StoreOption {
	return func(s *Store) { s.bus = b }
}

// WithLogCap bounds the in-memory event log.
func WithLogCap(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.logCap = n
		}
	}
}

// NewStore creates a store whose history starts at initial.
func NewStore(initial types.NPCState, reducer *Reducer, opts ...StoreOption) *Store {
	s := &Store{
		npcID:   initial.NPCID,
		reducer: reducer,
		logCap:  DefaultLogCap,
		base:    Clone(initial),
	}
	for _, opt := range opts {
		opt(s)
	}
	snap := Clone(initial)
	s.snapshot.Store(&snap)
	return s
}

// NPCID returns the NPC this store owns.
func (s *Store) NPCID() string {
	return s.npcID
}

// Snapshot returns a copy of the cached state without touching the reducer.
func (s *Store) Snapshot() types.NPCState {
	return Clone(*s.snapshot.Load())
}

// Dispatch applies one event.
func (s *Store) Dispatch(e types.StateEvent) (types.NPCState, []types.Fact, error) {
	return s.DispatchBatch([]types.StateEvent{e})
}

// DispatchBatch applies events atomically: either all of them commit or
// none do.
func (s *Store) DispatchBatch(batch []types.StateEvent) (types.NPCState, []types.Fact, error) {
	return s.Update(func(types.NPCState) ([]types.StateEvent, error) {
		return batch, nil
	})
}

// Update runs fn with the current state while holding the NPC's writer
// lock, then applies the events it returns as one atomic batch. Reads and
// the resulting write therefore belong to the same logical turn.
func (s *Store) Update(fn func(types.NPCState) ([]types.StateEvent, error)) (types.NPCState, []types.Fact, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	current := *s.snapshot.Load()
	batch, err := fn(Clone(current))
	if err != nil {
		return Clone(current), nil, err
	}
	if len(batch) == 0 {
		return Clone(current), nil, nil
	}

	next := current
	var facts []types.Fact
	for i, e := range batch {
		n, f, err := s.reducer.Reduce(next, e)
		if err != nil {
			return Clone(current), nil, fmt.Errorf("npc %s: batch event %d: %w", s.npcID, i, err)
		}
		next = n
		facts = append(facts, f...)
	}

	s.log = append(s.log, batch...)
	s.fold()
	committed := next
	s.snapshot.Store(&committed)

	if s.bus != nil {
		s.bus.Publish(events.Commit{
			NPCID:  s.npcID,
			Events: slices.Clone(batch),
			Facts:  facts,
			State:  Clone(committed),
		})
	}
	return Clone(committed), facts, nil
}

// fold moves the oldest log entries into the checkpoint once the log
// exceeds its cap. Caller holds the lock.
func (s *Store) fold() {
	over := len(s.log) - s.logCap
	if over <= 0 {
		return
	}
	base, err := s.reducer.Replay(s.base, s.log[:over])
	if err != nil {
		// Every logged event already reduced cleanly once.
		panic(fmt.Sprintf("npc %s: checkpoint fold: %v", s.npcID, err))
	}
	s.base = base
	s.log = slices.Clone(s.log[over:])
}

// Log returns the checkpoint state and the events applied since it.
func (s *Store) Log() (types.NPCState, []types.StateEvent) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return Clone(s.base), slices.Clone(s.log)
}

// Replay recomputes the state from the checkpoint and the in-memory log.
// The result equals Snapshot() for a correctly functioning store.
func (s *Store) Replay() (types.NPCState, error) {
	base, log := s.Log()
	return s.reducer.Replay(base, log)
}

// Reset replaces the store's history with a single checkpoint, as when a
// saved snapshot is loaded.
func (s *Store) Reset(st types.NPCState) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.base = Clone(st)
	s.log = nil
	snap := Clone(st)
	s.snapshot.Store(&snap)
}

// ticketLock is a mutex that admits waiters in the order they arrived.
type ticketLock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    uint64
	serving uint64
}

func (l *ticketLock) Lock() {
	l.mu.Lock()
	if l.cond == nil {
		l.cond = sync.NewCond(&l.mu)
	}
	ticket := l.next
	l.next++
	for ticket != l.serving {
		l.cond.Wait()
	}
	l.mu.Unlock()
}

func (l *ticketLock) Unlock() {
	l.mu.Lock()
	l.serving++
	if l.cond != nil {
		l.cond.Broadcast()
	}
	l.mu.Unlock()
}

// Registry maps NPC ids to stores. Lookups for different NPCs never block
// on each other's dispatches.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{stores: map[string]*Store{}}
}

// Get returns the store for id.
func (r *Registry) Get(id string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[id]
	return s, ok
}

// GetOrCreate returns the store for id, creating it with create on first use.
func (r *Registry) GetOrCreate(id string, create func() (*Store, error)) (*Store, error) {
	if s, ok := r.Get(id); ok {
		return s, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[id]; ok {
		return s, nil
	}
	s, err := create()
	if err != nil {
		return nil, err
	}
	r.stores[id] = s
	return s, nil
}

// Remove drops the store for id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, id)
}

// IDs returns the registered NPC ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
