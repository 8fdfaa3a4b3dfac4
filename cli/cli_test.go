package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/nathoo/npcmind/engine"
	"github.com/nathoo/npcmind/engine/state"
	"github.com/nathoo/npcmind/types"
)

// testDefs returns a two-NPC roster for console testing.
func testDefs() *state.Defs {
	return &state.Defs{
		Settings: state.Settings{Title: "Test Village"},
		NPCs: map[string]types.NPCDef{
			"lydia": {ID: "lydia", Name: "Lydia", Affinity: 0.5, Mood: types.MoodNeutral, Seed: 42,
				Facts: []string{"keeps the inn"}},
			"gareth": {ID: "gareth", Name: "Gareth", Affinity: -0.5, Mood: types.MoodSuspicious, Seed: 7},
		},
		Order: []string{"lydia", "gareth"},
	}
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng := engine.New(testDefs(), engine.Options{Clock: func() float64 { return 100 }})
	t.Cleanup(func() { eng.Close() })
	return eng
}

func newTestCLI(t *testing.T, input string) (*CLI, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	c := New(newTestEngine(t))
	c.In = strings.NewReader(input)
	c.Out = &out
	c.SaveDir = t.TempDir()
	return c, &out
}

func run(t *testing.T, input string) string {
	t.Helper()
	c, out := newTestCLI(t, input)
	c.Run(context.Background())
	return out.String()
}

func TestCLI_Intro(t *testing.T) {
	output := run(t, "/quit\n")
	if !strings.Contains(output, "Test Village") {
		t.Error("expected title in output")
	}
	if !strings.Contains(output, "[Talking to Lydia. Type /help for commands.]") {
		t.Errorf("expected intro line, got:\n%s", output)
	}
	if !strings.Contains(output, "[Goodbye.]") {
		t.Error("expected goodbye")
	}
}

func TestCLI_Utterance(t *testing.T) {
	output := run(t, "hello there\n/quit\n")
	if !strings.Contains(output, "Lydia (") {
		t.Errorf("expected the NPC to act, got:\n%s", output)
	}
	if strings.Contains(output, "[Lydia (") {
		t.Error("turn output should not be bracketed")
	}
}

func TestCLI_GiftRewardsPreviousAction(t *testing.T) {
	output := run(t, "/turn\nhere is a gift for you\n/quit\n")
	if !strings.Contains(output, "feedback: reward +0.75") {
		t.Errorf("expected reward line, got:\n%s", output)
	}
}

func TestCLI_HelpCommand(t *testing.T) {
	output := run(t, "/help\n/quit\n")
	for _, cmd := range []string{"/npc", "/event", "/turn", "/weights", "/replay", "/save", "/load", "/quit"} {
		if !strings.Contains(output, cmd) {
			t.Errorf("expected %s in help output", cmd)
		}
	}
}

func TestCLI_SwitchNPC(t *testing.T) {
	output := run(t, "/npc\n/npc gareth\n/state\n/npc nobody\n/quit\n")
	if !strings.Contains(output, "[* lydia: Lydia]") {
		t.Errorf("expected roster listing with active marker, got:\n%s", output)
	}
	if !strings.Contains(output, "[Now talking to Gareth.]") {
		t.Error("expected switch confirmation")
	}
	if !strings.Contains(output, "[Mood: suspicious]") {
		t.Error("expected gareth's state after switching")
	}
	if !strings.Contains(output, "[Unknown NPC: nobody.]") {
		t.Error("expected unknown NPC message")
	}
}

func TestCLI_Event(t *testing.T) {
	output := run(t, "/event gift 0.8 item=flower\n/quit\n")
	if !strings.Contains(output, "[gift: affinity 0.500 -> 0.561, mood neutral -> neutral]") {
		t.Errorf("expected gift effect, got:\n%s", output)
	}
}

func TestCLI_EventErrors(t *testing.T) {
	output := run(t, "/event\n/event meteor\n/event gift loud\n/event gift 2\n/quit\n")
	if !strings.Contains(output, "Usage: /event") {
		t.Error("expected usage")
	}
	if !strings.Contains(output, `unknown event type "meteor"`) {
		t.Error("expected unknown type error")
	}
	if !strings.Contains(output, `magnitude "loud" is not a number`) {
		t.Error("expected magnitude parse error")
	}
	if !strings.Contains(output, "must be a number in [0, 1]") {
		t.Error("expected magnitude range error")
	}
}

func TestCLI_StateCommand(t *testing.T) {
	output := run(t, "/state\n/quit\n")
	for _, want := range []string{
		"[NPC: Lydia (lydia)]",
		"[Affinity: 0.500 (+)]",
		"[Turn: 0  Seq: 0]",
		"[Fact 1.00: keeps the inn]",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in state output", want)
		}
	}
}

func TestCLI_StateFactsByTag(t *testing.T) {
	output := run(t, "/event gift\n/state lore\n/state env\n/state nothing\n/quit\n")
	if !strings.Contains(output, "[Fact 1.00: keeps the inn]") {
		t.Errorf("expected lore fact, got:\n%s", output)
	}
	if !strings.Contains(output, "[Fact 0.30: [env] gift") {
		t.Errorf("expected provenance fact under env, got:\n%s", output)
	}
	if !strings.Contains(output, "[No facts tagged nothing.]") {
		t.Error("expected empty tag message")
	}
}

func TestCLI_WeightsCommand(t *testing.T) {
	output := run(t, "/weights\n/turn\nhere is a gift\n/weights\n/quit\n")
	if !strings.Contains(output, "[No learned weights yet.]") {
		t.Error("expected empty weights before any feedback")
	}
	if !strings.Contains(output, "w=1.0375") {
		t.Errorf("expected a learned weight after the gift, got:\n%s", output)
	}
	if !strings.Contains(output, "1 applied, 1 positive") {
		t.Error("expected feedback counters")
	}
}

func TestCLI_Replay(t *testing.T) {
	output := run(t, "hello\n/event gift\n/replay\n/quit\n")
	if !strings.Contains(output, "[Replay matches live state at seq ") {
		t.Errorf("expected replay confirmation, got:\n%s", output)
	}
}

func TestCLI_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	var out bytes.Buffer
	c := New(newTestEngine(t))
	c.In = strings.NewReader("hello\nthanks friend\n/save test\n/quit\n")
	c.Out = &out
	c.SaveDir = dir
	c.Run(ctx)
	if !strings.Contains(out.String(), "[Saved to test.]") {
		t.Errorf("expected save confirmation, got:\n%s", out.String())
	}

	var out2 bytes.Buffer
	c2 := New(newTestEngine(t))
	c2.In = strings.NewReader("/load test\n/quit\n")
	c2.Out = &out2
	c2.SaveDir = dir
	c2.Run(ctx)
	if !strings.Contains(out2.String(), "[Loaded test (Lydia at turn 2).]") {
		t.Errorf("expected load confirmation, got:\n%s", out2.String())
	}
}

func TestCLI_LoadNonexistent(t *testing.T) {
	output := run(t, "/load nonexistent\n/quit\n")
	if !strings.Contains(output, "Load failed") {
		t.Error("expected load failure message")
	}
}

func TestCLI_UnknownMetaCommand(t *testing.T) {
	output := run(t, "/bogus\n/quit\n")
	if !strings.Contains(output, "Unknown command: /bogus") {
		t.Error("expected unknown command message")
	}
}

func TestCLI_TraceToggle(t *testing.T) {
	output := run(t, "/trace\nhello\n/trace\n/quit\n")
	if !strings.Contains(output, "Trace output enabled") {
		t.Error("expected trace enabled message")
	}
	if !strings.Contains(output, "[trace] key aff:+|mood:neutral") {
		t.Errorf("expected trace lines, got:\n%s", output)
	}
	if !strings.Contains(output, "Trace output disabled") {
		t.Error("expected trace disabled message")
	}
}

func TestCLI_SkipsBlankAndComments(t *testing.T) {
	output := run(t, "\n# a comment\n\n/quit\n")
	if strings.Contains(output, "Say something") || strings.Contains(output, "Lydia (") {
		t.Errorf("blank and comment lines should be skipped, got:\n%s", output)
	}
}

func TestCLI_EchoInput(t *testing.T) {
	c, out := newTestCLI(t, "/state\n/quit\n")
	c.EchoInput = true
	c.Run(context.Background())
	if !strings.Contains(out.String(), "lydia> /state\n") {
		t.Errorf("expected echoed input, got:\n%s", out.String())
	}
}

func TestCLI_StopsOnCancel(t *testing.T) {
	c, out := newTestCLI(t, "hello\nhello\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Run(ctx)
	if strings.Contains(out.String(), "Lydia (") {
		t.Error("expected no turns after cancel")
	}
}

func TestParseEvent(t *testing.T) {
	s := NewSession(newTestEngine(t))
	raw, err := s.parseEvent([]string{"player_sentiment", "0.5", "sentiment=-0.4", "topic=bread"})
	if err != nil {
		t.Fatal(err)
	}
	if raw["magnitude"] != 0.5 {
		t.Errorf("expected magnitude 0.5, got %v", raw["magnitude"])
	}
	payload := raw["payload"].(map[string]any)
	if payload["sentiment"] != -0.4 || payload["topic"] != "bread" {
		t.Errorf("unexpected payload %v", payload)
	}
	if raw["npc_id"] != "lydia" || raw["player_id"] != DefaultPlayer {
		t.Errorf("unexpected routing %v", raw)
	}
	if _, err := s.parseEvent([]string{"gift", "item=x", "0.5"}); err == nil {
		t.Error("expected error for magnitude after payload")
	}
}
