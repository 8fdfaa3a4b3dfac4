// Package engine wires the signal pipeline, per-NPC stores, the decision
// policy and the learning subsystem into a single turn loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nathoo/npcmind/config"
	"github.com/nathoo/npcmind/engine/decision"
	"github.com/nathoo/npcmind/engine/events"
	"github.com/nathoo/npcmind/engine/learning"
	"github.com/nathoo/npcmind/engine/parser"
	"github.com/nathoo/npcmind/engine/queue"
	"github.com/nathoo/npcmind/engine/save"
	"github.com/nathoo/npcmind/engine/signal"
	"github.com/nathoo/npcmind/engine/state"
	"github.com/nathoo/npcmind/journal"
	"github.com/nathoo/npcmind/types"
)

var (
	// ErrUnknownNPC is returned for an NPC id missing from the roster.
	ErrUnknownNPC = errors.New("unknown npc")
	// ErrEmptyInput is returned by Step for a blank utterance.
	ErrEmptyInput = errors.New("empty input")
)

// Options configure an Engine. The zero value is usable: no persistence,
// no journal, no bandit, pure arg-max decisions.
type Options struct {
	LearningDir   string // empty disables learning persistence
	MaxEntries    int
	LearningRate  float64
	Exploration   float64 // used when neither the NPC nor the roster sets one
	Bandit        bool
	BanditAlpha   float64
	QueueCapacity int
	LogCap        int
	Trace         bool

	Journal journal.Journal // optional; owned by the caller
	Logger  *log.Logger
	Signal  signal.Config
	Clock   func() float64 // timestamps for events the engine creates
}

// OptionsFromConfig maps environment configuration onto engine options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		LearningDir:   cfg.LearningDir,
		MaxEntries:    cfg.MaxEntries,
		LearningRate:  cfg.LearningRate,
		Exploration:   cfg.Exploration,
		Bandit:        cfg.Bandit,
		BanditAlpha:   cfg.BanditAlpha,
		QueueCapacity: cfg.QueueCapacity,
		LogCap:        cfg.LogCap,
		Trace:         cfg.Trace,
	}
}

// EnvResult is the outcome of one environment event.
type EnvResult struct {
	Signal signal.Result
	State  types.NPCState
	Facts  []types.Fact
}

// Engine holds the roster definitions and every live NPC runtime.
type Engine struct {
	Defs *state.Defs

	opts     Options
	limits   state.Limits
	reducer  *state.Reducer
	pipeline *signal.Pipeline
	bus      *events.Bus
	stores   *state.Registry
	learning *learning.Store
	recorder *journal.Recorder
	detach   func()
	queue    *queue.Queue[signal.RawEvent]
	logger   *log.Logger
	trace    atomic.Bool

	mu   sync.Mutex
	npcs map[string]*npcRuntime
}

// npcRuntime is everything one NPC owns besides its definition. rng and
// policy are only touched inside the store's Update callback.
type npcRuntime struct {
	def      types.NPCDef
	store    *state.Store
	adjuster *learning.PolicyAdjuster
	policy   *decision.Policy
	rng      *RNG
	logger   *log.Logger
}

// New creates an engine for defs. NPC runtimes are built on first use.
func New(defs *state.Defs, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Clock == nil {
		opts.Clock = func() float64 { return float64(time.Now().UnixNano()) / 1e9 }
	}
	if opts.Signal == (signal.Config{}) {
		opts.Signal = signal.DefaultConfig()
	}
	if opts.LearningRate <= 0 || opts.LearningRate > 1 {
		opts.LearningRate = learning.DefaultLearningRate
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = learning.DefaultMaxEntries
	}
	if opts.BanditAlpha <= 0 {
		opts.BanditAlpha = learning.DefaultAlpha
	}

	limits := state.DefaultLimits()
	if defs.Settings.MaxFacts > 0 {
		limits.MaxFacts = defs.Settings.MaxFacts
	}
	if defs.Settings.MaxTags > 0 {
		limits.MaxRecentTags = defs.Settings.MaxTags
	}

	e := &Engine{
		Defs:     defs,
		opts:     opts,
		limits:   limits,
		reducer:  state.NewReducer(limits),
		pipeline: signal.NewPipeline(opts.Signal),
		bus:      events.NewBus(),
		stores:   state.NewRegistry(),
		queue:    queue.New[signal.RawEvent](opts.QueueCapacity),
		logger:   opts.Logger,
		npcs:     make(map[string]*npcRuntime),
	}
	e.pipeline.Adapter.Clock = opts.Clock
	e.trace.Store(opts.Trace)
	if opts.LearningDir != "" {
		e.learning = learning.NewStore(opts.LearningDir)
	}
	if opts.Journal != nil {
		e.recorder = journal.NewRecorder(opts.Journal, opts.Logger)
		e.detach = e.recorder.Attach(e.bus)
	}
	return e
}

// Bus returns the commit bus so callers can observe state changes.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// SetTrace toggles per-turn logging.
func (e *Engine) SetTrace(on bool) {
	e.trace.Store(on)
}

// Tracing reports whether per-turn logging is on.
func (e *Engine) Tracing() bool {
	return e.trace.Load()
}

// NPCs returns roster ids in definition order.
func (e *Engine) NPCs() []string {
	return append([]string(nil), e.Defs.Order...)
}

// Active returns the ids of NPCs whose runtime has been built, sorted.
func (e *Engine) Active() []string {
	return e.stores.IDs()
}

// runtime returns npcID's runtime, building it on first use.
func (e *Engine) runtime(npcID string) (*npcRuntime, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rt, ok := e.npcs[npcID]; ok {
		return rt, nil
	}
	def, ok := e.Defs.NPCs[npcID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNPC, npcID)
	}

	logger := log.New(e.logger.Writer(), fmt.Sprintf("[npc %s] ", npcID), e.logger.Flags())
	store, err := e.stores.GetOrCreate(npcID, func() (*state.Store, error) {
		initial := state.NewState(def, e.limits)
		if e.opts.Journal != nil {
			// Resume from earlier sessions so new commits continue the
			// journal's sequence.
			ctx, cancel := context.WithTimeout(context.Background(), journal.DefaultAppendTimeout)
			defer cancel()
			st, err := journal.Replay(ctx, e.opts.Journal, e.reducer, initial)
			if err != nil {
				return nil, fmt.Errorf("npc %s: restore from journal: %w", npcID, err)
			}
			initial = st
		}
		return state.NewStore(initial, e.reducer, state.WithBus(e.bus), state.WithLogCap(e.opts.LogCap)), nil
	})
	if err != nil {
		return nil, err
	}

	var adjOpts []learning.AdjusterOption
	adjOpts = append(adjOpts, learning.WithLearningRate(e.opts.LearningRate))
	if e.opts.Bandit {
		adjOpts = append(adjOpts, learning.WithBandit(learning.NewBandit(e.opts.BanditAlpha, learning.DefaultLambda)))
	}
	adj := learning.NewPolicyAdjuster(learning.NewLearningState(e.opts.MaxEntries), adjOpts...)
	if e.learning != nil {
		if err := e.learning.Load(npcID, adj); err != nil {
			// Degrade to defaults rather than refuse the NPC.
			logger.Printf("learning state reset: %v", err)
		}
	}

	rt := &npcRuntime{
		def:      def,
		store:    store,
		adjuster: adj,
		policy:   decision.NewPolicy(e.exploration(def)),
		rng:      NewRNG(seedFor(def)),
		logger:   logger,
	}
	e.npcs[npcID] = rt
	return rt, nil
}

func (e *Engine) exploration(def types.NPCDef) float64 {
	switch {
	case def.Exploration > 0:
		return def.Exploration
	case e.Defs.Settings.Exploration > 0:
		return e.Defs.Settings.Exploration
	}
	return e.opts.Exploration
}

// seedFor derives a stable seed from the NPC id when the roster gives none.
func seedFor(def types.NPCDef) int64 {
	if def.Seed != 0 {
		return def.Seed
	}
	return int64(xxhash.Sum64String(def.ID) >> 1)
}

// State returns npcID's current snapshot.
func (e *Engine) State(npcID string) (types.NPCState, error) {
	rt, err := e.runtime(npcID)
	if err != nil {
		return types.NPCState{}, err
	}
	return rt.store.Snapshot(), nil
}

// Learning returns npcID's policy adjuster for inspection.
func (e *Engine) Learning(npcID string) (*learning.PolicyAdjuster, error) {
	rt, err := e.runtime(npcID)
	if err != nil {
		return nil, err
	}
	return rt.adjuster, nil
}

// HandleEnvironment validates a boundary event and applies the state events
// it implies to the target NPC as one atomic batch.
func (e *Engine) HandleEnvironment(ctx context.Context, raw signal.RawEvent) (EnvResult, error) {
	res, err := e.pipeline.Process(raw)
	if err != nil {
		return EnvResult{}, err
	}
	return e.apply(ctx, res)
}

// HandleEnvironmentJSON is HandleEnvironment for an encoded event.
func (e *Engine) HandleEnvironmentJSON(ctx context.Context, data []byte) (EnvResult, error) {
	ev, err := e.pipeline.Adapter.Decode(data)
	if err != nil {
		return EnvResult{}, err
	}
	return e.apply(ctx, e.pipeline.ProcessEvent(ev))
}

func (e *Engine) apply(ctx context.Context, res signal.Result) (EnvResult, error) {
	rt, err := e.runtime(res.Event.NPCID)
	if err != nil {
		return EnvResult{}, err
	}
	// Once dispatched a batch runs to completion.
	if err := ctx.Err(); err != nil {
		return EnvResult{}, err
	}
	st, facts, err := rt.store.DispatchBatch(res.Events)
	if err != nil {
		return EnvResult{}, err
	}
	if e.trace.Load() {
		rt.logger.Printf("env %s: %d signals, affinity %.3f, mood %s", res.Event.Type, len(res.Normalized), st.Affinity, st.Mood)
	}
	return EnvResult{Signal: res, State: st, Facts: facts}, nil
}

// Step classifies a player utterance, applies it as a player event and
// runs the NPC's turn, all in one commit.
func (e *Engine) Step(ctx context.Context, npcID, input string) (types.TurnResult, error) {
	u := parser.Classify(input)
	if u.Empty() {
		return types.TurnResult{}, ErrEmptyInput
	}
	ev := state.PlayerEvent(u.Kind, u.Strength, e.opts.Clock())
	return e.turn(ctx, npcID, ev)
}

// Turn runs one decision turn for npcID: the affinity change since its last
// action is fed back to learning, then a new action is chosen and recorded.
func (e *Engine) Turn(ctx context.Context, npcID string) (types.TurnResult, error) {
	return e.turn(ctx, npcID)
}

func (e *Engine) turn(ctx context.Context, npcID string, pre ...types.StateEvent) (types.TurnResult, error) {
	rt, err := e.runtime(npcID)
	if err != nil {
		return types.TurnResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.TurnResult{}, err
	}

	var out types.TurnResult
	actions := decision.WeightFunc(rt.adjuster.DecisionWeights())
	styles := decision.WeightFunc(rt.adjuster.StyleWeights())
	ts := e.opts.Clock()

	next, _, err := rt.store.Update(func(cur types.NPCState) ([]types.StateEvent, error) {
		view := cur
		if len(pre) > 0 {
			v, err := e.reducer.Replay(cur, pre)
			if err != nil {
				return nil, err
			}
			view = v
		}

		if e.trace.Load() {
			for _, ev := range pre {
				if ev.Type == types.EventPlayer {
					kind := types.PlayerKind(ev.Kind)
					rt.logger.Printf("player %s x%.2f: reaction %+.2f", kind, ev.Amount, learning.PlayerReward(kind))
				}
			}
		}

		reward := 0.0
		if last := view.LastAction; last != nil {
			fb, err := rt.adjuster.ApplyFeedback(last, view.Affinity-last.AffinityAtChoice)
			switch {
			case err == nil:
				reward = fb.Reward
				if e.trace.Load() {
					rt.logger.Printf("feedback %s/%s in %s: delta %+.3f reward %+.2f weight %.3f",
						fb.Action, fb.Style, fb.ContextKey, fb.Delta, fb.Reward, fb.DecisionWeight)
				}
			case errors.Is(err, learning.ErrAttributionMiss):
			default:
				rt.logger.Printf("feedback: %v", err)
			}
		}

		key := decision.KeyForState(view)
		d := rt.policy.Choose(key, view.Affinity, view.Mood, actions, styles, rt.rng)
		rec := &types.ActionRecord{
			Action:           d.Action.ID,
			Style:            d.Style,
			ContextKey:       key,
			AffinityAtChoice: view.Affinity,
		}
		out = types.TurnResult{
			NPCID:      npcID,
			ContextKey: key,
			Action:     d.Action.ID,
			Style:      d.Style,
			Directive:  d.Action.Directive,
			Explored:   d.Explored,
			Reward:     reward,
		}
		if e.trace.Load() {
			rt.logger.Printf("turn %d: %s chose %s/%s score %.3f explored=%v",
				view.Turn+1, key, d.Action.ID, d.Style, d.Score, d.Explored)
		}
		batch := append([]types.StateEvent(nil), pre...)
		return append(batch, state.ActionRecorded(rec, ts)), nil
	})
	if err != nil {
		return types.TurnResult{}, err
	}
	out.State = next
	return out, nil
}

// Enqueue buffers a raw event for Drain. When the queue is full the oldest
// low-priority event is dropped; if every queued event is high priority
// the push fails with queue.ErrFull.
func (e *Engine) Enqueue(raw signal.RawEvent, p queue.Priority) error {
	evicted, dropped, err := e.queue.Push(raw, p)
	if err != nil {
		return err
	}
	if dropped {
		e.logger.Printf("[queue] dropped %v for npc %v", evicted["event_type"], evicted["npc_id"])
	}
	return nil
}

// QueueStats reports queue traffic.
func (e *Engine) QueueStats() queue.Stats {
	return e.queue.Stats()
}

// Drain processes queued events in arrival order until the queue is empty
// or ctx is done. Per-event failures are joined into the returned error.
func (e *Engine) Drain(ctx context.Context) (int, error) {
	var errs []error
	n := 0
	for ctx.Err() == nil {
		raw, ok := e.queue.Pop()
		if !ok {
			break
		}
		if _, err := e.HandleEnvironment(ctx, raw); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Run drains the queue whenever it signals readiness, until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.queue.Ready():
			if _, err := e.Drain(ctx); err != nil {
				e.logger.Printf("[queue] %v", err)
			}
		}
	}
}

// Replay rebuilds npcID's state from the journal when one is configured,
// otherwise from the store's in-memory log.
func (e *Engine) Replay(ctx context.Context, npcID string) (types.NPCState, error) {
	rt, err := e.runtime(npcID)
	if err != nil {
		return types.NPCState{}, err
	}
	if e.opts.Journal != nil {
		return journal.Replay(ctx, e.opts.Journal, e.reducer, state.NewState(rt.def, e.limits))
	}
	return rt.store.Replay()
}

// VerifyReplay checks that replaying npcID's history reproduces its live
// snapshot.
func (e *Engine) VerifyReplay(ctx context.Context, npcID string) error {
	replayed, err := e.Replay(ctx, npcID)
	if err != nil {
		return err
	}
	live, err := e.State(npcID)
	if err != nil {
		return err
	}
	if diff := cmp.Diff(live, replayed, cmpopts.EquateEmpty()); diff != "" {
		return fmt.Errorf("npc %s: replay diverged (-live +replayed):\n%s", npcID, diff)
	}
	return nil
}

// SaveLearning writes every live NPC's learning state.
func (e *Engine) SaveLearning() error {
	if e.learning == nil {
		return nil
	}
	e.mu.Lock()
	rts := make(map[string]*npcRuntime, len(e.npcs))
	for id, rt := range e.npcs {
		rts[id] = rt
	}
	e.mu.Unlock()

	var errs []error
	for id, rt := range rts {
		if err := e.learning.Save(id, rt.adjuster); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Persist saves learning state every interval until ctx is done, then
// saves once more.
func (e *Engine) Persist(ctx context.Context, interval time.Duration) {
	if e.learning == nil || interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := e.SaveLearning(); err != nil {
				e.logger.Printf("[persist] final save: %v", err)
			}
			return
		case <-ticker.C:
			if err := e.SaveLearning(); err != nil {
				e.logger.Printf("[persist] %v", err)
			}
		}
	}
}

// SaveGame serializes every live NPC's state and RNG position.
func (e *Engine) SaveGame() ([]byte, error) {
	var npcs []save.NPCSave
	for _, id := range e.Active() {
		rt, err := e.runtime(id)
		if err != nil {
			return nil, err
		}
		var entry save.NPCSave
		// An empty batch commits nothing but runs under the store lock, so
		// the state and the RNG position are read together.
		if _, _, err := rt.store.Update(func(cur types.NPCState) ([]types.StateEvent, error) {
			entry = save.NPCSave{State: cur, RNGSeed: rt.rng.Seed(), RNGPosition: rt.rng.Position()}
			return nil, nil
		}); err != nil {
			return nil, err
		}
		npcs = append(npcs, entry)
	}
	return save.Save(e.Defs, npcs)
}

// LoadGame restores NPC states and RNG positions from data. Each restored
// NPC's journal history restarts from the loaded state.
func (e *Engine) LoadGame(ctx context.Context, data []byte) error {
	sd, err := save.Load(data)
	if err != nil {
		return err
	}
	// Check every entry before touching any store so a bad file loads nothing.
	rts := make([]*npcRuntime, len(sd.NPCs))
	for i := range sd.NPCs {
		n := &sd.NPCs[i]
		rt, err := e.runtime(n.State.NPCID)
		if err != nil {
			return err
		}
		st, err := e.reducer.Normalize(n.State)
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}
		n.State = st
		rts[i] = rt
	}
	for i, n := range sd.NPCs {
		rt := rts[i]
		rt.store.Reset(n.State)
		rt.store.Update(func(types.NPCState) ([]types.StateEvent, error) {
			rt.rng = RestoreRNG(n.RNGSeed, n.RNGPosition)
			return nil, nil
		})
		if e.opts.Journal != nil {
			if err := e.opts.Journal.Rebase(ctx, n.State); err != nil {
				return fmt.Errorf("npc %s: rebase journal: %w", n.State.NPCID, err)
			}
		}
	}
	return nil
}

// Close stops journaling and the queue and saves learning state. The
// journal itself stays open.
func (e *Engine) Close() error {
	if e.detach != nil {
		e.detach()
	}
	e.queue.Close()
	return e.SaveLearning()
}
