package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nathoo/npcmind/engine"
	"github.com/nathoo/npcmind/engine/decision"
	"github.com/nathoo/npcmind/engine/learning"
	"github.com/nathoo/npcmind/engine/signal"
	"github.com/nathoo/npcmind/engine/state"
	"github.com/nathoo/npcmind/types"
)

// DefaultPlayer is the player id attached to console events.
const DefaultPlayer = "player"

// Output is what one console line produced.
type Output struct {
	Lines  []string
	System bool // meta-command output, rendered in brackets
	Quit   bool
}

// Session interprets console lines against an engine. The line-based CLI
// and the TUI share it.
type Session struct {
	Engine   *engine.Engine
	SaveDir  string
	PlayerID string
	NPC      string // active NPC

	Last *types.TurnResult
}

// NewSession talks to the first NPC in the roster.
func NewSession(eng *engine.Engine) *Session {
	home, _ := os.UserHomeDir()
	s := &Session{
		Engine:   eng,
		SaveDir:  filepath.Join(home, ".npcmind", "saves"),
		PlayerID: DefaultPlayer,
	}
	if ids := eng.NPCs(); len(ids) > 0 {
		s.NPC = ids[0]
	}
	return s
}

// Name returns the display name of the active NPC.
func (s *Session) Name() string {
	if def, ok := s.Engine.Defs.NPCs[s.NPC]; ok && def.Name != "" {
		return def.Name
	}
	return s.NPC
}

// Exec runs one console line. Lines starting with '/' are meta-commands;
// anything else is said to the active NPC.
func (s *Session) Exec(ctx context.Context, input string) Output {
	input = strings.TrimSpace(input)
	if input == "" {
		return Output{}
	}
	if strings.HasPrefix(input, "/") {
		return s.meta(ctx, input)
	}
	res, err := s.Engine.Step(ctx, s.NPC, input)
	if err != nil {
		if errors.Is(err, engine.ErrEmptyInput) {
			return system("Say something.")
		}
		return system(fmt.Sprintf("Step failed: %v", err))
	}
	return Output{Lines: s.turnLines(res)}
}

func system(lines ...string) Output {
	return Output{Lines: lines, System: true}
}

func (s *Session) meta(ctx context.Context, input string) Output {
	parts := strings.Fields(input)
	cmd := parts[0]
	args := parts[1:]
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}

	switch cmd {
	case "/quit", "/exit":
		out := system("Goodbye.")
		out.Quit = true
		return out
	case "/npc":
		return s.cmdNPC(arg)
	case "/event":
		return s.cmdEvent(ctx, args)
	case "/turn":
		res, err := s.Engine.Turn(ctx, s.NPC)
		if err != nil {
			return system(fmt.Sprintf("Turn failed: %v", err))
		}
		return Output{Lines: s.turnLines(res)}
	case "/state":
		return s.cmdState(arg)
	case "/weights":
		return s.cmdWeights()
	case "/replay":
		return s.cmdReplay(ctx)
	case "/save":
		return s.cmdSave(arg)
	case "/load":
		return s.cmdLoad(ctx, arg)
	case "/trace":
		on := !s.Engine.Tracing()
		s.Engine.SetTrace(on)
		if on {
			return system("Trace output enabled.")
		}
		return system("Trace output disabled.")
	case "/help":
		return s.cmdHelp()
	default:
		return system(fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd))
	}
}

func (s *Session) turnLines(res types.TurnResult) []string {
	s.Last = &res
	var lines []string
	if res.Reward != 0 {
		lines = append(lines, fmt.Sprintf("feedback: reward %+.2f", res.Reward))
	}
	lines = append(lines,
		fmt.Sprintf("%s (%s) %s", s.Name(), res.Style, res.Action),
		"  "+res.Directive,
	)
	if s.Engine.Tracing() {
		lines = append(lines,
			fmt.Sprintf("[trace] key %s", res.ContextKey),
			fmt.Sprintf("[trace] affinity %.3f mood %s turn %d seq %d explored %t",
				res.State.Affinity, res.State.Mood, res.State.Turn, res.State.Seq, res.Explored),
		)
	}
	return lines
}

func (s *Session) cmdNPC(id string) Output {
	if id == "" {
		var lines []string
		for _, npc := range s.Engine.NPCs() {
			marker := " "
			if npc == s.NPC {
				marker = "*"
			}
			def := s.Engine.Defs.NPCs[npc]
			lines = append(lines, fmt.Sprintf("%s %s: %s", marker, npc, def.Name))
		}
		return system(lines...)
	}
	if _, ok := s.Engine.Defs.NPCs[id]; !ok {
		return system(fmt.Sprintf("Unknown NPC: %s.", id))
	}
	s.NPC = id
	s.Last = nil
	return system(fmt.Sprintf("Now talking to %s.", s.Name()))
}

// cmdEvent handles "/event <type> [magnitude] [key=value...]".
func (s *Session) cmdEvent(ctx context.Context, args []string) Output {
	if len(args) == 0 {
		return system("Usage: /event <type> [magnitude] [key=value...]",
			"Types: "+strings.Join(signal.EventTypes(), ", "))
	}
	raw, err := s.parseEvent(args)
	if err != nil {
		return system(fmt.Sprintf("Event failed: %v", err))
	}

	before, err := s.Engine.State(s.NPC)
	if err != nil {
		return system(fmt.Sprintf("Event failed: %v", err))
	}
	res, err := s.Engine.HandleEnvironment(ctx, raw)
	if err != nil {
		return system(fmt.Sprintf("Event failed: %v", err))
	}
	after := res.State
	lines := []string{
		fmt.Sprintf("%s: affinity %.3f -> %.3f, mood %s -> %s",
			args[0], before.Affinity, after.Affinity, before.Mood, after.Mood),
	}
	if s.Engine.Tracing() {
		for _, n := range res.Signal.Normalized {
			lines = append(lines, fmt.Sprintf("[trace] %s intensity %.3f affinity %+.3f",
				n.Consequence, n.Intensity, n.AffinityDelta))
		}
	}
	return system(lines...)
}

func (s *Session) parseEvent(args []string) (signal.RawEvent, error) {
	raw := signal.RawEvent{
		"event_type": args[0],
		"npc_id":     s.NPC,
		"player_id":  s.PlayerID,
		"version":    signal.SchemaVersion,
	}
	payload := map[string]any{}
	for i, a := range args[1:] {
		k, v, ok := strings.Cut(a, "=")
		if !ok {
			if i != 0 {
				return nil, fmt.Errorf("expected key=value, got %q", a)
			}
			m, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return nil, fmt.Errorf("magnitude %q is not a number", a)
			}
			raw["magnitude"] = m
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			payload[k] = f
		} else {
			payload[k] = v
		}
	}
	if len(payload) > 0 {
		raw["payload"] = payload
	}
	return raw, nil
}

func (s *Session) cmdState(tag string) Output {
	st, err := s.Engine.State(s.NPC)
	if err != nil {
		return system(fmt.Sprintf("State failed: %v", err))
	}
	if tag != "" {
		facts := state.FactsTagged(st, tag)
		if len(facts) == 0 {
			return system(fmt.Sprintf("No facts tagged %s.", tag))
		}
		lines := make([]string, len(facts))
		for i, f := range facts {
			lines[i] = fmt.Sprintf("Fact %.2f: %s", f.Salience, f.Text)
		}
		return system(lines...)
	}
	r := st.Relationship
	lines := []string{
		fmt.Sprintf("NPC: %s (%s)", s.Name(), st.NPCID),
		fmt.Sprintf("Affinity: %.3f (%s)", st.Affinity, decision.Band(st.Affinity)),
		fmt.Sprintf("Mood: %s", st.Mood),
		fmt.Sprintf("Turn: %d  Seq: %d", st.Turn, st.Seq),
		fmt.Sprintf("Relationship: trust %.2f fear %.2f attraction %.2f resentment %.2f obligation %.2f",
			r.Trust, r.Fear, r.Attraction, r.Resentment, r.Obligation),
		fmt.Sprintf("Context: %s", decision.KeyForState(st)),
	}
	if len(st.RecentTags) > 0 {
		lines = append(lines, "Recent: "+strings.Join(st.RecentTags, ", "))
	}
	if st.LastAction != nil {
		lines = append(lines, fmt.Sprintf("Last action: %s (%s) at turn %d",
			st.LastAction.Action, st.LastAction.Style, st.LastAction.Turn))
	}
	for _, f := range st.Facts {
		lines = append(lines, fmt.Sprintf("Fact %.2f: %s", f.Salience, f.Text))
	}
	return system(lines...)
}

func (s *Session) cmdWeights() Output {
	adj, err := s.Engine.Learning(s.NPC)
	if err != nil {
		return system(fmt.Sprintf("Weights failed: %v", err))
	}
	var lines []string
	for _, ns := range learning.Namespaces {
		for _, e := range adj.State().Entries(ns) {
			lines = append(lines, fmt.Sprintf("%s %s %s w=%.4f %d/%d",
				ns, e.ContextKey, e.Key, e.Weight, e.Success, e.Total))
		}
	}
	if len(lines) == 0 {
		lines = append(lines, "No learned weights yet.")
	}
	st := adj.Stats()
	lines = append(lines, fmt.Sprintf("Feedback: %d applied, %d positive, %d negative, %d missed",
		st.Applied, st.Positive, st.Negative, st.Misses))
	if b := adj.Bandit(); b != nil {
		bs := b.Stats()
		lines = append(lines, fmt.Sprintf("Bandit: %d arms, %d pulls, total reward %.2f",
			bs.Arms, bs.Pulls, bs.TotalReward))
	}
	return system(lines...)
}

func (s *Session) cmdReplay(ctx context.Context) Output {
	if err := s.Engine.VerifyReplay(ctx, s.NPC); err != nil {
		return system(fmt.Sprintf("Replay failed: %v", err))
	}
	st, _ := s.Engine.State(s.NPC)
	return system(fmt.Sprintf("Replay matches live state at seq %d.", st.Seq))
}

func (s *Session) savePath(name string) string {
	if name == "" {
		name = "quicksave"
	}
	return filepath.Join(s.SaveDir, filepath.Base(name)+".json")
}

func (s *Session) cmdSave(name string) Output {
	data, err := s.Engine.SaveGame()
	if err != nil {
		return system(fmt.Sprintf("Save failed: %v", err))
	}
	if err := os.MkdirAll(s.SaveDir, 0o755); err != nil {
		return system(fmt.Sprintf("Save failed: %v", err))
	}
	path := s.savePath(name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return system(fmt.Sprintf("Save failed: %v", err))
	}
	return system(fmt.Sprintf("Saved to %s.", strings.TrimSuffix(filepath.Base(path), ".json")))
}

func (s *Session) cmdLoad(ctx context.Context, name string) Output {
	path := s.savePath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return system(fmt.Sprintf("Load failed: %v", err))
	}
	if err := s.Engine.LoadGame(ctx, data); err != nil {
		return system(fmt.Sprintf("Load failed: %v", err))
	}
	s.Last = nil
	st, err := s.Engine.State(s.NPC)
	if err != nil {
		return system(fmt.Sprintf("Load failed: %v", err))
	}
	return system(fmt.Sprintf("Loaded %s (%s at turn %d).",
		strings.TrimSuffix(filepath.Base(path), ".json"), s.Name(), st.Turn))
}

func (s *Session) cmdHelp() Output {
	return system(
		"System:",
		"  /npc [id]             List NPCs or switch to one",
		"  /event <type> [m] [k=v...]  Send an environment event to the NPC",
		"  /turn                 Let the NPC act without speaking",
		"  /state [tag]          Show the NPC's state, or its facts with a tag",
		"  /weights              Show learned weights",
		"  /replay               Check that replay reproduces the live state",
		"  /save [name]          Save (default: quicksave)",
		"  /load [name]          Load (default: quicksave)",
		"  /trace                Toggle trace output",
		"  /quit                 Exit",
		"",
		"Anything else is said to the NPC, e.g. \"hello\", \"here is a gift\", \"you fool\".",
	)
}
