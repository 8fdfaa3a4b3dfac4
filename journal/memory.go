package journal

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/nathoo/npcmind/engine/state"
	"github.com/nathoo/npcmind/types"
)

// Memory is an in-process journal. It enforces the same (npc, seq)
// uniqueness as the SQL stores.
type Memory struct {
	mu          sync.RWMutex
	closed      bool
	events      map[string][]Record
	checkpoints map[string]types.NPCState
}

var _ Journal = (*Memory)(nil)

// NewMemory creates an empty in-memory journal.
func NewMemory() *Memory {
	return &Memory{
		events:      make(map[string][]Record),
		checkpoints: make(map[string]types.NPCState),
	}
}

func (m *Memory) Append(_ context.Context, recs []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	seen := make(map[string]map[uint64]bool)
	for _, rec := range recs {
		if seen[rec.NPCID] == nil {
			seen[rec.NPCID] = make(map[uint64]bool)
			for _, r := range m.events[rec.NPCID] {
				seen[rec.NPCID][r.Seq] = true
			}
		}
		if seen[rec.NPCID][rec.Seq] {
			return fmt.Errorf("duplicate record %s/%d", rec.NPCID, rec.Seq)
		}
		seen[rec.NPCID][rec.Seq] = true
	}
	for _, rec := range recs {
		m.events[rec.NPCID] = append(m.events[rec.NPCID], rec)
	}
	return nil
}

func (m *Memory) Events(_ context.Context, npcID string, after uint64) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []Record
	for _, rec := range m.events[npcID] {
		if rec.Seq > after {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b Record) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *Memory) Checkpoint(_ context.Context, npcID string) (*types.NPCState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	st, ok := m.checkpoints[npcID]
	if !ok {
		return nil, nil
	}
	cp := state.Clone(st)
	return &cp, nil
}

func (m *Memory) Rebase(_ context.Context, st types.NPCState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.events, st.NPCID)
	m.checkpoints[st.NPCID] = state.Clone(st)
	return nil
}

func (m *Memory) NPCs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []string
	for id := range m.events {
		out = append(out, id)
	}
	for id := range m.checkpoints {
		if _, ok := m.events[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
