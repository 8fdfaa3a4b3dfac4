// Package journal durably records every committed StateEvent so an NPC's
// state can be rebuilt from its definition (or its last checkpoint) after a
// restart.
package journal

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nathoo/npcmind/engine/events"
	"github.com/nathoo/npcmind/engine/state"
	"github.com/nathoo/npcmind/types"
)

// ErrClosed is returned by a journal used after Close.
var ErrClosed = errors.New("journal closed")

// Record is one journaled event. Seq matches the NPCState.Seq the event
// produced, so records for an NPC are densely numbered from its checkpoint.
type Record struct {
	ID         uuid.UUID
	NPCID      string
	Seq        uint64
	Type       string
	Event      types.StateEvent
	RecordedAt time.Time
}

// Journal is an append-only event store keyed by NPC.
type Journal interface {
	// Append writes records atomically.
	Append(ctx context.Context, recs []Record) error
	// Events returns the NPC's records with Seq > after, in Seq order.
	Events(ctx context.Context, npcID string, after uint64) ([]Record, error)
	// Checkpoint returns the state history restarts from, or nil if the
	// NPC's history starts at its definition.
	Checkpoint(ctx context.Context, npcID string) (*types.NPCState, error)
	// Rebase discards the NPC's records and restarts its history at st.
	Rebase(ctx context.Context, st types.NPCState) error
	// NPCs lists every NPC with records or a checkpoint.
	NPCs(ctx context.Context) ([]string, error)
	Close() error
}

// FromCommit turns a committed batch into records. The last event of the
// batch carries the commit's Seq.
func FromCommit(c events.Commit, now time.Time) []Record {
	if len(c.Events) == 0 {
		return nil
	}
	first := c.State.Seq - uint64(len(c.Events)) + 1
	recs := make([]Record, len(c.Events))
	for i, e := range c.Events {
		recs[i] = Record{
			ID:         uuid.New(),
			NPCID:      c.NPCID,
			Seq:        first + uint64(i),
			Type:       state.EventTypeName(e.Type),
			Event:      e,
			RecordedAt: now.UTC(),
		}
	}
	return recs
}

// Replay rebuilds npcID's state from the journal. initial is used when the
// journal holds no checkpoint for the NPC.
func Replay(ctx context.Context, j Journal, r *state.Reducer, initial types.NPCState) (types.NPCState, error) {
	base := initial
	cp, err := j.Checkpoint(ctx, initial.NPCID)
	if err != nil {
		return initial, err
	}
	if cp != nil {
		base = *cp
	}
	recs, err := j.Events(ctx, initial.NPCID, base.Seq)
	if err != nil {
		return initial, err
	}
	evs := make([]types.StateEvent, len(recs))
	for i, rec := range recs {
		evs[i] = rec.Event
	}
	return r.Replay(base, evs)
}

// Recorder appends every commit published on a bus. Append failures are
// logged and counted but never block the store.
type Recorder struct {
	j       Journal
	logger  *log.Logger
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	appended int
	failures int
	lastErr  error
}

// DefaultAppendTimeout bounds a single Append issued by a Recorder.
const DefaultAppendTimeout = 5 * time.Second

// NewRecorder creates a recorder writing to j. A nil logger discards output.
func NewRecorder(j Journal, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Recorder{
		j:       j,
		logger:  logger,
		timeout: DefaultAppendTimeout,
		now:     time.Now,
	}
}

// Attach subscribes the recorder to bus and returns the unsubscribe func.
func (r *Recorder) Attach(bus *events.Bus) func() {
	return bus.Subscribe(r.Handle)
}

// Handle records one commit.
func (r *Recorder) Handle(c events.Commit) {
	recs := FromCommit(c, r.now())
	if len(recs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	err := r.j.Append(ctx, recs)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failures++
		r.lastErr = err
		r.logger.Printf("[journal] npc %s: append seq %d..%d: %v",
			c.NPCID, recs[0].Seq, recs[len(recs)-1].Seq, err)
		return
	}
	r.appended += len(recs)
}

// Stats returns how many records were appended and how many appends failed.
func (r *Recorder) Stats() (appended, failures int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appended, r.failures
}

// Err returns the most recent append error.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}
