package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nathoo/npcmind/cli"
	"github.com/nathoo/npcmind/config"
	"github.com/nathoo/npcmind/engine"
	"github.com/nathoo/npcmind/journal"
	"github.com/nathoo/npcmind/loader"
)

func newTestEngine(t *testing.T, opts engine.Options) *engine.Engine {
	t.Helper()
	defs, err := loader.Load("../../rosters/village")
	if err != nil {
		t.Fatalf("load roster: %v", err)
	}
	opts.Clock = func() float64 { return 100 }
	eng := engine.New(defs, opts)
	t.Cleanup(func() { eng.Close() })
	return eng
}

const events = `# morning
{"event_type":"gift","npc_id":"lydia","player_id":"p1","magnitude":0.8,"version":1}

{"event_type":"theft","npc_id":"gareth","player_id":"p1","version":1}
not json
{"event_type":"meteor","npc_id":"lydia","player_id":"p1","version":1}
{"event_type":"assist","npc_id":"wren","player_id":"p1","version":1}
`

func TestFeedEvents(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, engine.Options{QueueCapacity: 2})

	n, err := feedEvents(ctx, eng, strings.NewReader(events), 2)
	if n != 3 {
		t.Errorf("expected 3 applied events, got %d", n)
	}
	if err == nil {
		t.Fatal("expected joined errors for the bad lines")
	}
	if !strings.Contains(err.Error(), "line 5:") {
		t.Errorf("expected the malformed line to be reported, got %v", err)
	}
	if !strings.Contains(err.Error(), `unknown event type "meteor"`) {
		t.Errorf("expected the unknown type to be reported, got %v", err)
	}
	if stats := eng.QueueStats(); stats.Dropped != 0 {
		t.Errorf("expected no evictions, got %d", stats.Dropped)
	}

	st, _ := eng.State("lydia")
	if st.Affinity <= 0.5 {
		t.Errorf("expected the gift to raise affinity, got %v", st.Affinity)
	}
}

func TestOpenJournal(t *testing.T) {
	ctx := context.Background()

	j, err := openJournal(ctx, config.Config{JournalDriver: config.JournalNone})
	if err != nil || j != nil {
		t.Errorf("expected no journal, got %v, %v", j, err)
	}

	j, err = openJournal(ctx, config.Config{JournalDriver: config.JournalMemory})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := j.(*journal.Memory); !ok {
		t.Errorf("expected memory journal, got %T", j)
	}

	path := filepath.Join(t.TempDir(), "journal.sqlite")
	j, err = openJournal(ctx, config.Config{JournalDriver: config.JournalSQLite, JournalDSN: path})
	if err != nil {
		t.Fatalf("open sqlite journal: %v", err)
	}
	j.Close()

	if _, err := openJournal(ctx, config.Config{JournalDriver: "mongo"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestVerifyAll(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, engine.Options{Journal: journal.NewMemory()})

	if _, err := eng.Step(ctx, "lydia", "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Step(ctx, "gareth", "you fool"); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := verifyAll(ctx, eng, &out); err != nil {
		t.Fatalf("verifyAll failed: %v", err)
	}
	if out.String() != "replay ok: gareth\nreplay ok: lydia\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestConfigureSession(t *testing.T) {
	eng := newTestEngine(t, engine.Options{})
	s := cli.NewSession(eng)
	cfg := config.Config{SaveDir: "/tmp/npcmind"}

	if err := configureSession(s, cfg, "gareth"); err != nil {
		t.Fatal(err)
	}
	if s.NPC != "gareth" || s.SaveDir != "/tmp/npcmind/saves" {
		t.Errorf("unexpected session %+v", s)
	}
	if err := configureSession(s, cfg, "nobody"); err == nil {
		t.Error("expected error for unknown npc")
	}
}
