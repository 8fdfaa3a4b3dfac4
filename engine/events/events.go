// Package events implements single-pass notification of committed state
// changes. Subscribers observe commits but can never write state back.
package events

import (
	"sync"

	"github.com/nathoo/npcmind/types"
)

// Commit describes one atomic batch applied to an NPC's state.
type Commit struct {
	NPCID  string
	Events []types.StateEvent
	Facts  []types.Fact
	State  types.NPCState
}

// Handler observes a commit.
type Handler func(Commit)

// Bus fans commits out to subscribers in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers []subscription
	nextID   int
}

type subscription struct {
	id int
	fn Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, subscription{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, h := range b.handlers {
			if h.id == id {
				b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers c to every subscriber. Single pass, no recursion: a
// handler that dispatches more events produces a separate commit.
func (b *Bus) Publish(c Commit) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	for i, h := range b.handlers {
		handlers[i] = h.fn
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(c)
	}
}
